// Package images stores uploaded source images for later transmission.
package images

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"matrix-server-go/internal/domain/image"
	"matrix-server-go/internal/domain/image/store"
	"matrix-server-go/internal/platform/errors"
	"matrix-server-go/internal/platform/logging"
	httptransport "matrix-server-go/internal/transport/http"
)

// FormField is the multipart field carrying the upload.
const FormField = "file"

type Service struct {
	ingestor *image.Ingestor
	store    store.Store
	logger   *logging.Logger
}

func NewService(ingestor *image.Ingestor, st store.Store, logger *logging.Logger) (*Service, error) {
	if ingestor == nil {
		return nil, errors.New(errors.KindConfig, "images.new", "ingestor is required")
	}
	if st == nil {
		return nil, errors.New(errors.KindConfig, "images.new", "image store is required")
	}
	return &Service{ingestor: ingestor, store: st, logger: logger}, nil
}

func (s *Service) Register(_ context.Context, router *gin.RouterGroup) error {
	group := router.Group("/images")
	group.POST("", s.handleUpload)
	group.GET("", s.handleList)
	group.GET("/:id", s.handleGet)
	group.GET("/:id/raw", s.handleRaw)
	group.DELETE("/:id", s.handleDelete)
	s.logger.InfoTag("HTTP", "image routes registered (driver=%s)", s.store.Driver())
	return nil
}

// handleUpload 上传图片
// @Summary 上传源图片
// @Description 图片经过大小与格式校验后存入图片仓库，返回的 id 可用于 /transmissions/stored
// @Tags Images
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "image file"
// @Param name formData string false "display name"
// @Success 201 {object} httptransport.APIResponse{data=image.Image}
// @Failure 400 {object} httptransport.APIResponse
// @Failure 413 {object} httptransport.APIResponse
// @Router /images [post]
func (s *Service) handleUpload(c *gin.Context) {
	fh, err := c.FormFile(FormField)
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "multipart field \"file\" is required", nil)
		return
	}
	f, err := fh.Open()
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "cannot read upload: "+err.Error(), nil)
		return
	}
	defer f.Close()

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		name = fh.Filename
	}

	out, err := s.ingestor.Ingest(c.Request.Context(), image.Input{
		Reader:         f,
		DeclaredFormat: declaredFormat(fh.Filename),
		Name:           name,
	})
	if err != nil {
		s.respondIngestError(c, err)
		return
	}

	saved, err := s.store.Save(c.Request.Context(), image.Image{Name: name, ContentType: out.ContentType}, out.Bytes)
	if err != nil {
		httptransport.RespondServiceError(c, err)
		return
	}
	s.logger.InfoTag("Image", "stored %s (%s, %d bytes) as %s", saved.Name, out.Format, saved.Size, saved.ID)
	httptransport.RespondSuccess(c, http.StatusCreated, saved, "image stored")
}

// handleList 列出图片
// @Summary 列出已存储图片
// @Tags Images
// @Produce json
// @Success 200 {object} httptransport.APIResponse{data=[]image.Image}
// @Router /images [get]
func (s *Service) handleList(c *gin.Context) {
	list, err := s.store.List(c.Request.Context())
	if err != nil {
		httptransport.RespondServiceError(c, err)
		return
	}
	if list == nil {
		list = []image.Image{}
	}
	httptransport.RespondSuccess(c, http.StatusOK, list, "")
}

// handleGet 获取图片元数据
// @Summary 获取图片元数据
// @Tags Images
// @Produce json
// @Param id path string true "image id"
// @Success 200 {object} httptransport.APIResponse{data=image.Image}
// @Failure 404 {object} httptransport.APIResponse
// @Router /images/{id} [get]
func (s *Service) handleGet(c *gin.Context) {
	meta, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httptransport.RespondServiceError(c, err)
		return
	}
	if meta == nil {
		httptransport.RespondError(c, http.StatusNotFound, "image not found", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, meta, "")
}

// handleRaw 下载原图
// @Summary 下载原始图片
// @Tags Images
// @Produce octet-stream
// @Param id path string true "image id"
// @Success 200 {file} binary
// @Failure 404 {object} httptransport.APIResponse
// @Router /images/{id}/raw [get]
func (s *Service) handleRaw(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	meta, err := s.store.Get(ctx, id)
	if err != nil {
		httptransport.RespondServiceError(c, err)
		return
	}
	data, err := s.store.GetBinaryByID(ctx, id)
	if err != nil {
		httptransport.RespondServiceError(c, err)
		return
	}
	if meta == nil || data == nil {
		httptransport.RespondError(c, http.StatusNotFound, "image not found", nil)
		return
	}

	contentType := meta.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	c.Data(http.StatusOK, contentType, data)
}

// handleDelete 删除图片
// @Summary 删除图片
// @Tags Images
// @Param id path string true "image id"
// @Success 200 {object} httptransport.APIResponse
// @Failure 404 {object} httptransport.APIResponse
// @Router /images/{id} [delete]
func (s *Service) handleDelete(c *gin.Context) {
	deleted, err := s.store.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		httptransport.RespondServiceError(c, err)
		return
	}
	if !deleted {
		httptransport.RespondError(c, http.StatusNotFound, "image not found", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, nil, "image deleted")
}

func (s *Service) respondIngestError(c *gin.Context, err error) {
	var rejected *image.RejectedError
	var download *image.DownloadError
	switch {
	case stderrors.As(err, &download) && download.Reason == image.DownloadReasonTooLarge:
		httptransport.RespondError(c, http.StatusRequestEntityTooLarge, download.Error(), nil)
	case stderrors.As(err, &rejected):
		httptransport.RespondError(c, http.StatusBadRequest, "image rejected: "+rejected.Error(), nil)
	default:
		httptransport.RespondError(c, http.StatusBadRequest, err.Error(), nil)
	}
}

// declaredFormat derives the claimed format from a filename extension.
func declaredFormat(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 || i == len(filename)-1 {
		return ""
	}
	ext := strings.ToLower(filename[i+1:])
	if ext == "jpg" {
		return "jpeg"
	}
	return ext
}

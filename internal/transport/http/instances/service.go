// Package instances manages registered matrix devices over HTTP.
package instances

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"matrix-server-go/internal/domain/instance/service"
	"matrix-server-go/internal/domain/transmission"
	"matrix-server-go/internal/platform/errors"
	"matrix-server-go/internal/platform/logging"
	httptransport "matrix-server-go/internal/transport/http"
)

// Sender pushes images to a device endpoint.
type Sender interface {
	SendImageByURL(ctx context.Context, imageURL, endpointURL string) transmission.Result
	SendStoredImage(ctx context.Context, imageID, endpointURL string) transmission.Result
}

// CreateRequest 注册实例请求
type CreateRequest struct {
	Name     string            `json:"name" binding:"required" example:"lobby"`
	Endpoint string            `json:"endpoint" binding:"required" example:"http://192.168.1.50"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// UpdateRequest 部分更新请求，缺省字段保持不变
type UpdateRequest struct {
	Name     *string           `json:"name,omitempty"`
	Endpoint *string           `json:"endpoint,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// DisplayRequest 在实例上显示图片，imageUrl 与 imageId 二选一
type DisplayRequest struct {
	ImageURL string `json:"imageUrl,omitempty"`
	ImageID  string `json:"imageId,omitempty"`
}

type Service struct {
	instances *service.InstanceService
	sender    Sender
	logger    *logging.Logger
}

func NewService(instances *service.InstanceService, sender Sender, logger *logging.Logger) (*Service, error) {
	if instances == nil {
		return nil, errors.New(errors.KindConfig, "instances.new", "instance service is required")
	}
	if sender == nil {
		return nil, errors.New(errors.KindConfig, "instances.new", "sender is required")
	}
	return &Service{instances: instances, sender: sender, logger: logger}, nil
}

func (s *Service) Register(_ context.Context, router *gin.RouterGroup) error {
	group := router.Group("/instances")
	group.GET("", s.handleList)
	group.POST("", s.handleCreate)
	group.GET("/:id", s.handleGet)
	group.PUT("/:id", s.handleUpdate)
	group.DELETE("/:id", s.handleDelete)
	group.POST("/:id/display", s.handleDisplay)
	s.logger.InfoTag("HTTP", "instance routes registered")
	return nil
}

// handleList 列出实例
// @Summary 列出已注册的点阵屏
// @Tags Instances
// @Produce json
// @Success 200 {object} httptransport.APIResponse{data=[]aggregate.Instance}
// @Router /instances [get]
func (s *Service) handleList(c *gin.Context) {
	list, err := s.instances.List(c.Request.Context())
	if err != nil {
		httptransport.RespondServiceError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, list, "")
}

// handleCreate 注册实例
// @Summary 注册点阵屏
// @Tags Instances
// @Accept json
// @Produce json
// @Param request body CreateRequest true "instance"
// @Success 201 {object} httptransport.APIResponse{data=aggregate.Instance}
// @Failure 400 {object} httptransport.APIResponse
// @Router /instances [post]
func (s *Service) handleCreate(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	inst, err := s.instances.Create(c.Request.Context(), req.Name, req.Endpoint, req.Labels)
	if err != nil {
		httptransport.RespondServiceError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusCreated, inst, "instance registered")
}

// handleGet 获取实例
// @Summary 获取点阵屏
// @Tags Instances
// @Produce json
// @Param id path string true "instance id"
// @Success 200 {object} httptransport.APIResponse{data=aggregate.Instance}
// @Failure 404 {object} httptransport.APIResponse
// @Router /instances/{id} [get]
func (s *Service) handleGet(c *gin.Context) {
	inst, err := s.instances.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httptransport.RespondServiceError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, inst, "")
}

// handleUpdate 更新实例
// @Summary 更新点阵屏
// @Tags Instances
// @Accept json
// @Produce json
// @Param id path string true "instance id"
// @Param request body UpdateRequest true "fields to change"
// @Success 200 {object} httptransport.APIResponse{data=aggregate.Instance}
// @Failure 400 {object} httptransport.APIResponse
// @Failure 404 {object} httptransport.APIResponse
// @Router /instances/{id} [put]
func (s *Service) handleUpdate(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	inst, err := s.instances.Update(c.Request.Context(), c.Param("id"), service.UpdateInput{
		Name:     req.Name,
		Endpoint: req.Endpoint,
		Labels:   req.Labels,
	})
	if err != nil {
		httptransport.RespondServiceError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, inst, "instance updated")
}

// handleDelete 删除实例
// @Summary 删除点阵屏
// @Tags Instances
// @Param id path string true "instance id"
// @Success 200 {object} httptransport.APIResponse
// @Failure 404 {object} httptransport.APIResponse
// @Router /instances/{id} [delete]
func (s *Service) handleDelete(c *gin.Context) {
	if err := s.instances.Delete(c.Request.Context(), c.Param("id")); err != nil {
		httptransport.RespondServiceError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, nil, "instance deleted")
}

// handleDisplay 在实例上显示图片
// @Summary 推送图片到已注册的点阵屏
// @Description imageUrl 与 imageId 必须且只能提供一个
// @Tags Instances
// @Accept json
// @Produce json
// @Param id path string true "instance id"
// @Param request body DisplayRequest true "image source"
// @Success 200 {object} transmission.Result
// @Failure 400 {object} httptransport.APIResponse
// @Failure 404 {object} httptransport.APIResponse
// @Router /instances/{id}/display [post]
func (s *Service) handleDisplay(c *gin.Context) {
	var req DisplayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	imageURL := strings.TrimSpace(req.ImageURL)
	imageID := strings.TrimSpace(req.ImageID)
	if (imageURL == "") == (imageID == "") {
		httptransport.RespondError(c, http.StatusBadRequest, "exactly one of imageUrl or imageId is required", nil)
		return
	}

	inst, err := s.instances.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httptransport.RespondServiceError(c, err)
		return
	}

	var result transmission.Result
	if imageURL != "" {
		result = s.sender.SendImageByURL(c.Request.Context(), imageURL, inst.Endpoint)
	} else {
		result = s.sender.SendStoredImage(c.Request.Context(), imageID, inst.Endpoint)
	}
	if !result.Success {
		s.logger.WarnTag("Device", "display on %s (%s) failed: %s", inst.Name, inst.ID, result.Error)
	}
	c.JSON(http.StatusOK, result)
}

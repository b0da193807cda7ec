// Package transmissions exposes the frame pipeline and its history over HTTP.
package transmissions

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"matrix-server-go/internal/domain/eventbus"
	"matrix-server-go/internal/domain/eventbus/repository"
	"matrix-server-go/internal/domain/transmission"
	"matrix-server-go/internal/platform/errors"
	"matrix-server-go/internal/platform/logging"
	httptransport "matrix-server-go/internal/transport/http"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Sender is the subset of transmission.Pipeline used by the handlers.
type Sender interface {
	SendImageByURL(ctx context.Context, imageURL, endpointURL string) transmission.Result
	SendStoredImage(ctx context.Context, imageID, endpointURL string) transmission.Result
}

// URLRequest 按 URL 发送图片
type URLRequest struct {
	ImageURL    string `json:"imageUrl" example:"https://example.com/cat.png"`
	EndpointURL string `json:"endpointUrl" example:"http://192.168.1.50"`
}

// StoredRequest 发送已存储的图片
type StoredRequest struct {
	ImageID     string `json:"imageId" example:"2f1c1b1e-5b7e-4a55-9d0c-8c7b3e1e2a10"`
	EndpointURL string `json:"endpointUrl" example:"http://192.168.1.50"`
}

// Service wires the pipeline and the history repository to gin.
type Service struct {
	sender  Sender
	history repository.TransmissionRepository
	logger  *logging.Logger
}

func NewService(sender Sender, history repository.TransmissionRepository, logger *logging.Logger) (*Service, error) {
	if sender == nil {
		return nil, errors.New(errors.KindConfig, "transmissions.new", "sender is required")
	}
	return &Service{sender: sender, history: history, logger: logger}, nil
}

func (s *Service) Register(_ context.Context, router *gin.RouterGroup) error {
	group := router.Group("/transmissions")
	group.POST("/url", s.handleSendURL)
	group.POST("/stored", s.handleSendStored)
	if s.history != nil {
		group.GET("", s.handleList)
		group.GET("/stats", s.handleStats)
	}
	s.logger.InfoTag("HTTP", "transmission routes registered")
	return nil
}

// handleSendURL 下载并推送图片
// @Summary 按 URL 推送图片到点阵屏
// @Description 下载图片，按设备尺寸裁剪缩放后以 RGBA 帧发送。失败时 success=false 且 error 为可读原因
// @Tags Transmissions
// @Accept json
// @Produce json
// @Param request body URLRequest true "image and device"
// @Success 200 {object} transmission.Result
// @Failure 400 {object} httptransport.APIResponse
// @Router /transmissions/url [post]
func (s *Service) handleSendURL(c *gin.Context) {
	var req URLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, s.sender.SendImageByURL(c.Request.Context(), req.ImageURL, req.EndpointURL))
}

// handleSendStored 推送已存储的图片
// @Summary 推送已存储图片到点阵屏
// @Tags Transmissions
// @Accept json
// @Produce json
// @Param request body StoredRequest true "image id and device"
// @Success 200 {object} transmission.Result
// @Failure 400 {object} httptransport.APIResponse
// @Router /transmissions/stored [post]
func (s *Service) handleSendStored(c *gin.Context) {
	var req StoredRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, s.sender.SendStoredImage(c.Request.Context(), req.ImageID, req.EndpointURL))
}

// handleList 查询传输历史
// @Summary 最近的传输记录
// @Tags Transmissions
// @Produce json
// @Param limit query int false "max records (default 50, max 500)"
// @Param endpoint query string false "only this device endpoint"
// @Success 200 {object} httptransport.APIResponse{data=[]eventbus.TransmissionEvent}
// @Router /transmissions [get]
func (s *Service) handleList(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		httptransport.RespondServiceError(c, err)
		return
	}

	var events []eventbus.TransmissionEvent
	if ep := c.Query("endpoint"); ep != "" {
		events, err = s.history.FindByEndpoint(c.Request.Context(), ep, limit)
	} else {
		events, err = s.history.FindRecent(c.Request.Context(), limit)
	}
	if err != nil {
		httptransport.RespondServiceError(c, err)
		return
	}
	if events == nil {
		events = []eventbus.TransmissionEvent{}
	}
	httptransport.RespondSuccess(c, http.StatusOK, events, "")
}

// handleStats 传输统计
// @Summary 传输成功/失败统计
// @Tags Transmissions
// @Produce json
// @Success 200 {object} httptransport.APIResponse{data=repository.Stats}
// @Router /transmissions/stats [get]
func (s *Service) handleStats(c *gin.Context) {
	stats, err := s.history.GetEventStats(c.Request.Context())
	if err != nil {
		httptransport.RespondServiceError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, stats, "")
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New(errors.KindValidation, "transmissions.list", "limit must be a positive integer")
	}
	return min(n, maxHistoryLimit), nil
}

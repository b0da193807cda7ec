// Package system reports process and dependency health.
package system

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"matrix-server-go/internal/platform/logging"
	"matrix-server-go/internal/platform/observability"
	httptransport "matrix-server-go/internal/transport/http"
)

const probeTimeout = 2 * time.Second

// Check probes one dependency; a nil error means healthy.
type Check func(ctx context.Context) error

// Health is the body of GET /system/health.
type Health struct {
	Status     string             `json:"status"`
	Version    string             `json:"version"`
	StartedAt  time.Time          `json:"startedAt"`
	Uptime     string             `json:"uptime"`
	Components map[string]string  `json:"components"`
	Host       HostStats          `json:"host"`
	Runtime    RuntimeStats       `json:"runtime"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

type HostStats struct {
	MemoryTotal   uint64  `json:"memoryTotal"`
	MemoryUsed    uint64  `json:"memoryUsed"`
	MemoryPercent float64 `json:"memoryPercent"`
	CPUPercent    float64 `json:"cpuPercent"`
	UptimeSeconds uint64  `json:"uptimeSeconds"`
}

type RuntimeStats struct {
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heapAlloc"`
	GoVersion  string `json:"goVersion"`
}

type Service struct {
	version string
	started time.Time
	checks  map[string]Check
	logger  *logging.Logger
}

func NewService(version string, checks map[string]Check, logger *logging.Logger) *Service {
	return &Service{
		version: version,
		started: time.Now(),
		checks:  checks,
		logger:  logger,
	}
}

func (s *Service) Register(_ context.Context, router *gin.RouterGroup) error {
	router.GET("/system/health", s.handleHealth)
	return nil
}

// handleHealth 健康检查
// @Summary 服务健康状态
// @Description 各依赖的连通性、主机资源与传输计数。任一依赖异常时返回 503
// @Tags System
// @Produce json
// @Success 200 {object} httptransport.APIResponse{data=Health}
// @Failure 503 {object} httptransport.APIResponse{data=Health}
// @Router /system/health [get]
func (s *Service) handleHealth(c *gin.Context) {
	health := s.collect(c.Request.Context())
	if health.Status != "ok" {
		httptransport.RespondError(c, http.StatusServiceUnavailable, "degraded", health)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, health, "")
}

func (s *Service) collect(ctx context.Context) Health {
	health := Health{
		Status:     "ok",
		Version:    s.version,
		StartedAt:  s.started,
		Uptime:     time.Since(s.started).Truncate(time.Second).String(),
		Components: make(map[string]string, len(s.checks)),
		Host:       hostStats(ctx),
		Runtime:    runtimeStats(),
		Metrics:    observability.SnapshotPrefix("transmission."),
	}

	for name, check := range s.checks {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := check(probeCtx)
		cancel()
		if err != nil {
			s.logger.WarnTag("Health", "%s unhealthy: %v", name, err)
			health.Components[name] = err.Error()
			health.Status = "degraded"
			continue
		}
		health.Components[name] = "ok"
	}
	return health
}

// hostStats is best effort; unsupported platforms leave fields zero.
func hostStats(ctx context.Context) HostStats {
	var stats HostStats
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryTotal = vm.Total
		stats.MemoryUsed = vm.Used
		stats.MemoryPercent = vm.UsedPercent
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		stats.CPUPercent = pct[0]
	}
	if up, err := host.UptimeWithContext(ctx); err == nil {
		stats.UptimeSeconds = up
	}
	return stats
}

func runtimeStats() RuntimeStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return RuntimeStats{
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  ms.HeapAlloc,
		GoVersion:  runtime.Version(),
	}
}

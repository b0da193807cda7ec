package repository

import (
	"context"
	"time"

	"matrix-server-go/internal/domain/eventbus"
)

// TransmissionRepository 传输历史数据访问接口
type TransmissionRepository interface {
	// Store 存储传输事件
	Store(ctx context.Context, event eventbus.TransmissionEvent) error

	// FindRecent 按完成时间倒序返回最近的传输
	FindRecent(ctx context.Context, limit int) ([]eventbus.TransmissionEvent, error)

	// FindByEndpoint 查找指定设备的传输
	FindByEndpoint(ctx context.Context, endpoint string, limit int) ([]eventbus.TransmissionEvent, error)

	// DeleteOldEvents 删除指定时间之前的记录
	DeleteOldEvents(ctx context.Context, before time.Time) (int64, error)

	// GetEventStats 获取统计信息
	GetEventStats(ctx context.Context) (Stats, error)
}

// Stats summarizes recorded transmissions.
type Stats struct {
	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

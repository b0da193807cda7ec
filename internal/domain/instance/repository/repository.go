package repository

import (
	"context"

	"matrix-server-go/internal/domain/instance/aggregate"
)

// InstanceRepository 实例仓库接口
type InstanceRepository interface {
	// Save 保存新实例
	Save(ctx context.Context, inst *aggregate.Instance) error

	// Update 更新实例
	Update(ctx context.Context, inst *aggregate.Instance) error

	// FindByID 根据ID查找实例，不存在时返回 nil, nil
	FindByID(ctx context.Context, id string) (*aggregate.Instance, error)

	// FindAll 按创建时间列出全部实例
	FindAll(ctx context.Context) ([]*aggregate.Instance, error)

	// Delete 删除实例
	Delete(ctx context.Context, id string) error
}

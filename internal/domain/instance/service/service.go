package service

import (
	"context"
	"fmt"

	"matrix-server-go/internal/domain/instance/aggregate"
	"matrix-server-go/internal/domain/instance/repository"
	"matrix-server-go/internal/platform/errors"
	"matrix-server-go/internal/platform/logging"
)

// InstanceService 实例领域服务
type InstanceService struct {
	repo   repository.InstanceRepository
	logger *logging.Logger
}

// UpdateInput 部分更新参数，nil 字段保持不变
type UpdateInput struct {
	Name     *string
	Endpoint *string
	Labels   map[string]string
}

// NewInstanceService 创建实例服务
func NewInstanceService(repo repository.InstanceRepository, logger *logging.Logger) *InstanceService {
	return &InstanceService{
		repo:   repo,
		logger: logger,
	}
}

// Create 创建实例
func (s *InstanceService) Create(ctx context.Context, name, endpoint string, labels map[string]string) (*aggregate.Instance, error) {
	inst, err := aggregate.NewInstance(name, endpoint, labels)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, inst); err != nil {
		return nil, errors.Wrap(errors.KindDomain, "instance.create", "failed to save instance", err)
	}

	s.logger.InfoTag("Device", "instance %s registered at %s", inst.ID, inst.Endpoint)
	return inst, nil
}

// Get 获取实例
func (s *InstanceService) Get(ctx context.Context, id string) (*aggregate.Instance, error) {
	inst, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(errors.KindDomain, "instance.get", "failed to find instance", err)
	}
	if inst == nil {
		return nil, errors.New(errors.KindNotFound, "instance.get", fmt.Sprintf("instance %s not found", id))
	}
	return inst, nil
}

// List 列出全部实例
func (s *InstanceService) List(ctx context.Context) ([]*aggregate.Instance, error) {
	list, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.KindDomain, "instance.list", "failed to list instances", err)
	}
	return list, nil
}

// Update 部分更新实例
func (s *InstanceService) Update(ctx context.Context, id string, in UpdateInput) (*aggregate.Instance, error) {
	inst, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		if err := inst.Rename(*in.Name); err != nil {
			return nil, err
		}
	}
	if in.Endpoint != nil {
		if err := inst.ChangeEndpoint(*in.Endpoint); err != nil {
			return nil, err
		}
	}
	if in.Labels != nil {
		inst.SetLabels(in.Labels)
	}

	if err := s.repo.Update(ctx, inst); err != nil {
		return nil, errors.Wrap(errors.KindDomain, "instance.update", "failed to update instance", err)
	}
	return inst, nil
}

// Delete 删除实例
func (s *InstanceService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Wrap(errors.KindDomain, "instance.delete", "failed to delete instance", err)
	}
	s.logger.InfoTag("Device", "instance %s removed", id)
	return nil
}

package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"matrix-server-go/internal/domain/instance/aggregate"
	"matrix-server-go/internal/domain/instance/repository"
	"matrix-server-go/internal/platform/errors"
)

// instanceRepository 实例仓库实现
type instanceRepository struct {
	db *gorm.DB
}

// NewInstanceRepository 创建实例仓库
func NewInstanceRepository(db *gorm.DB) repository.InstanceRepository {
	return &instanceRepository{db: db}
}

// Save 保存实例
func (r *instanceRepository) Save(ctx context.Context, inst *aggregate.Instance) error {
	model, err := r.toModel(inst)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "instance.save", "failed to save instance", err)
	}
	return nil
}

// Update 更新实例
func (r *instanceRepository) Update(ctx context.Context, inst *aggregate.Instance) error {
	model, err := r.toModel(inst)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "instance.update", "failed to update instance", err)
	}
	return nil
}

// FindByID 根据ID查找实例
func (r *instanceRepository) FindByID(ctx context.Context, id string) (*aggregate.Instance, error) {
	var model InstanceRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // 实例不存在
		}
		return nil, errors.Wrap(errors.KindStorage, "instance.find_by_id", "failed to find instance", err)
	}
	return r.fromModel(&model)
}

// FindAll 获取所有实例
func (r *instanceRepository) FindAll(ctx context.Context) ([]*aggregate.Instance, error) {
	var models []InstanceRecord
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "instance.find_all", "failed to find instances", err)
	}

	out := make([]*aggregate.Instance, 0, len(models))
	for i := range models {
		inst, err := r.fromModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// Delete 删除实例
func (r *instanceRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&InstanceRecord{}).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "instance.delete", "failed to delete instance", err)
	}
	return nil
}

// toModel 将领域对象转换为存储模型
func (r *instanceRepository) toModel(inst *aggregate.Instance) (*InstanceRecord, error) {
	var labels datatypes.JSON
	if len(inst.Labels) > 0 {
		raw, err := json.Marshal(inst.Labels)
		if err != nil {
			return nil, errors.Wrap(errors.KindStorage, "instance.encode_labels", "failed to encode labels", err)
		}
		labels = datatypes.JSON(raw)
	}
	return &InstanceRecord{
		ID:        inst.ID,
		Name:      inst.Name,
		Endpoint:  inst.Endpoint,
		Labels:    labels,
		CreatedAt: inst.CreatedAt,
		UpdatedAt: inst.UpdatedAt,
	}, nil
}

// fromModel 将存储模型转换为领域对象
func (r *instanceRepository) fromModel(model *InstanceRecord) (*aggregate.Instance, error) {
	inst := &aggregate.Instance{
		ID:        model.ID,
		Name:      model.Name,
		Endpoint:  model.Endpoint,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
	if len(model.Labels) > 0 && string(model.Labels) != "null" {
		if err := json.Unmarshal(model.Labels, &inst.Labels); err != nil {
			return nil, errors.Wrap(errors.KindStorage, "instance.decode_labels", "failed to decode labels", err)
		}
	}
	return inst, nil
}

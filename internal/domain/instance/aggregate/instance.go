package aggregate

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"matrix-server-go/internal/domain/endpoint"
	"matrix-server-go/internal/platform/errors"
)

// MaxNameLength 实例名称最大长度
const MaxNameLength = 255

// Instance 点阵屏实例聚合根
type Instance struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Endpoint  string            `json:"endpoint"`         // 设备控制接口地址，不带结尾斜杠
	Labels    map[string]string `json:"labels,omitempty"` // 自定义标签
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// NewInstance 创建新实例
func NewInstance(name, rawEndpoint string, labels map[string]string) (*Instance, error) {
	inst := &Instance{ID: uuid.NewString()}
	if err := inst.Rename(name); err != nil {
		return nil, err
	}
	if err := inst.ChangeEndpoint(rawEndpoint); err != nil {
		return nil, err
	}
	inst.SetLabels(labels)

	now := time.Now()
	inst.CreatedAt = now
	inst.UpdatedAt = now
	return inst, nil
}

// Rename 修改名称
func (i *Instance) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New(errors.KindValidation, "instance.rename", "instance name cannot be empty")
	}
	if len(name) > MaxNameLength {
		return errors.New(errors.KindValidation, "instance.rename", "instance name is too long")
	}
	i.Name = name
	i.touch()
	return nil
}

// ChangeEndpoint 校验并更新设备地址
func (i *Instance) ChangeEndpoint(raw string) error {
	ep, err := endpoint.ValidateField("endpoint", raw)
	if err != nil {
		return errors.Wrap(errors.KindValidation, "instance.change_endpoint", "invalid endpoint", err)
	}
	i.Endpoint = ep.String()
	i.touch()
	return nil
}

// SetLabels 替换全部标签
func (i *Instance) SetLabels(labels map[string]string) {
	if len(labels) == 0 {
		i.Labels = nil
	} else {
		i.Labels = make(map[string]string, len(labels))
		for k, v := range labels {
			i.Labels[k] = v
		}
	}
	i.touch()
}

func (i *Instance) touch() {
	if !i.CreatedAt.IsZero() {
		i.UpdatedAt = time.Now()
	}
}

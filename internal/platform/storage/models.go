package storage

import (
	"time"

	"gorm.io/datatypes"
)

// ImageRecord 图片存储模型
type ImageRecord struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Name        string    `gorm:"size:255;not null"`
	ContentType string    `gorm:"size:100"`
	Size        int64     `gorm:"not null;default:0"`
	Data        []byte    `gorm:"type:blob;not null"`
	CreatedAt   time.Time `gorm:"index;not null"`
}

func (ImageRecord) TableName() string {
	return "images"
}

// InstanceRecord 设备实例存储模型
type InstanceRecord struct {
	ID        string         `gorm:"primaryKey;size:36"`
	Name      string         `gorm:"size:255;not null"`
	Endpoint  string         `gorm:"size:2048;not null;index"`
	Labels    datatypes.JSON `gorm:"type:json"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (InstanceRecord) TableName() string {
	return "instances"
}

// TransmissionRecord 传输历史存储模型
type TransmissionRecord struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Mode       string    `gorm:"size:16;not null"`
	Source     string    `gorm:"size:2048;not null"`
	Endpoint   string    `gorm:"size:2048;not null;index"`
	Success    bool      `gorm:"not null"`
	Error      string    `gorm:"type:text"`
	DurationMs int64     `gorm:"not null;default:0"`
	FinishedAt time.Time `gorm:"index;not null"`
}

func (TransmissionRecord) TableName() string {
	return "transmissions"
}

package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"matrix-server-go/internal/domain/image"
)

// Store persists source images. Lookups of a missing id return (nil, nil);
// transient backend failures are platform errors of kind storage.
type Store interface {
	Save(ctx context.Context, meta image.Image, data []byte) (image.Image, error)
	Get(ctx context.Context, id string) (*image.Image, error)
	GetBinaryByID(ctx context.Context, id string) ([]byte, error)
	List(ctx context.Context) ([]image.Image, error)
	Delete(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context) (map[string]any, error)
	Driver() string
	Close(ctx context.Context) error
}

// Config describes the store selection parameters.
type Config struct {
	Driver string
	Redis  *RedisConfig
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// prepare fills the generated fields of a new record.
func prepare(meta image.Image, data []byte) image.Image {
	if strings.TrimSpace(meta.ID) == "" {
		meta.ID = uuid.NewString()
	}
	meta.Name = strings.TrimSpace(meta.Name)
	if meta.Name == "" {
		meta.Name = meta.ID
	}
	meta.Size = int64(len(data))
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	return meta
}

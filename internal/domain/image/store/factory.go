package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"matrix-server-go/internal/platform/config"
)

// Driver identifiers supported by the image store.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Dependencies captures external handles required by certain drivers.
type Dependencies struct {
	SQLiteDB *gorm.DB
}

// New creates an image store based on the provided configuration.
func New(ctx context.Context, cfg Config, deps Dependencies) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		if deps.SQLiteDB == nil {
			return nil, fmt.Errorf("sqlite driver requires database handle")
		}
		return NewSQLite(deps.SQLiteDB)
	case DriverRedis:
		return NewRedis(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported image store driver: %s", driver)
	}
}

// ConfigFrom maps the image_store section of the server configuration.
func ConfigFrom(cfg config.ImageStoreConfig) Config {
	out := Config{Driver: cfg.Driver}
	if strings.EqualFold(cfg.Driver, DriverRedis) {
		out.Redis = &RedisConfig{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}
	}
	return out
}

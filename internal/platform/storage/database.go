package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"matrix-server-go/internal/platform/errors"
	"matrix-server-go/internal/platform/storage/migrations"
)

// Open 打开 SQLite 数据库并执行全部迁移
func Open(ctx context.Context, dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New(errors.KindConfig, "storage.open", "database dsn is empty")
	}

	if isFilePath(dsn) {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to create data directory", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to open database", err)
	}

	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate 执行内置迁移
func Migrate(ctx context.Context, db *gorm.DB) error {
	manager := NewMigrationManager(db)
	for _, m := range migrations.All() {
		manager.AddMigration(m)
	}
	return manager.RunMigrations(ctx)
}

// Close 关闭底层连接
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(errors.KindStorage, "storage.close", "failed to get sql handle", err)
	}
	return sqlDB.Close()
}

// Ping 检查数据库连通性
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(errors.KindStorage, "storage.ping", "failed to get sql handle", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errors.Wrap(errors.KindStorage, "storage.ping", "database unreachable", err)
	}
	return nil
}

func isFilePath(dsn string) bool {
	return dsn != ":memory:" && !strings.HasPrefix(dsn, "file:")
}

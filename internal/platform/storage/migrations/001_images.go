package migrations

import (
	"gorm.io/gorm"
)

// Migration001Images 创建图片表
type Migration001Images struct{}

func (m *Migration001Images) Version() string {
	return "001_images"
}

func (m *Migration001Images) Description() string {
	return "Create images table for stored frame sources"
}

func (m *Migration001Images) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS images (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			content_type VARCHAR(100),
			size INTEGER NOT NULL DEFAULT 0,
			data BLOB NOT NULL,
			created_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return err
	}
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_images_created_at ON images(created_at)`).Error
}

func (m *Migration001Images) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS images`).Error
}

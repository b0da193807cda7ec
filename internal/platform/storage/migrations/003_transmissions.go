package migrations

import (
	"gorm.io/gorm"
)

// Migration003Transmissions 创建传输历史表
type Migration003Transmissions struct{}

func (m *Migration003Transmissions) Version() string {
	return "003_transmissions"
}

func (m *Migration003Transmissions) Description() string {
	return "Create transmissions table for completed pipeline runs"
}

func (m *Migration003Transmissions) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transmissions (
			id VARCHAR(36) PRIMARY KEY,
			mode VARCHAR(16) NOT NULL,
			source VARCHAR(2048) NOT NULL,
			endpoint VARCHAR(2048) NOT NULL,
			success BOOLEAN NOT NULL DEFAULT 0,
			error TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			finished_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_transmissions_endpoint ON transmissions(endpoint)`).Error; err != nil {
		return err
	}
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_transmissions_finished_at ON transmissions(finished_at)`).Error
}

func (m *Migration003Transmissions) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS transmissions`).Error
}

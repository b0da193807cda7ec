package migrations

import (
	"gorm.io/gorm"
)

// Migration002Instances 创建设备实例表
type Migration002Instances struct{}

func (m *Migration002Instances) Version() string {
	return "002_instances"
}

func (m *Migration002Instances) Description() string {
	return "Create instances table for device endpoints"
}

func (m *Migration002Instances) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS instances (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			endpoint VARCHAR(2048) NOT NULL,
			labels JSON,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return err
	}
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_instances_endpoint ON instances(endpoint)`).Error
}

func (m *Migration002Instances) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS instances`).Error
}

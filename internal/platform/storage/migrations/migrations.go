package migrations

import "gorm.io/gorm"

// Migration mirrors storage.Migration so this package stays import-free.
type Migration interface {
	Version() string
	Description() string
	Up(db *gorm.DB) error
	Down(db *gorm.DB) error
}

// All returns every schema migration in version order.
func All() []Migration {
	return []Migration{
		&Migration001Images{},
		&Migration002Instances{},
		&Migration003Transmissions{},
	}
}

package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/saharasol/relief-admin/internal/repository"
)

func createOperationsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_operations",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.OperationModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_operations_status_created ON operations (status, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_operations_admin_key ON operations (admin_key)`,
				`CREATE INDEX IF NOT EXISTS idx_operations_stale_running ON operations (started_at) WHERE status = 'RUNNING'`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.OperationModel{})
		},
	}
}

package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/saharasol/relief-admin/internal/repository"
)

func createActionItemsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_action_items",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ActionItemModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_action_items_operation_position ON action_items (operation_id, position)`,
				`CREATE INDEX IF NOT EXISTS idx_action_items_nonterminal ON action_items (operation_id) WHERE status IN ('PENDING', 'PROCESSING')`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ActionItemModel{})
		},
	}
}

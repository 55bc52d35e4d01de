package repository

import (
	"context"

	"github.com/saharasol/relief-admin/internal/domain"
	"gorm.io/gorm"
)

type ItemRepository interface {
	GetByOperationID(ctx context.Context, operationID string) ([]domain.ActionItem, error)
	SyncRun(ctx context.Context, operationID string, items []domain.ActionItem) error
	ResolveNonTerminal(ctx context.Context, operationID string, errMsg string) (int64, error)
}

type GormItemRepo struct {
	db *gorm.DB
}

func NewGormItemRepo(db *gorm.DB) *GormItemRepo {
	return &GormItemRepo{db: db}
}

func (r *GormItemRepo) GetByOperationID(ctx context.Context, operationID string) ([]domain.ActionItem, error) {
	var models []ActionItemModel
	err := r.db.WithContext(ctx).
		Where("operation_id = ?", operationID).
		Order("position ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	items := make([]domain.ActionItem, 0, len(models))
	for i := range models {
		items = append(items, *itemModelToDomain(&models[i]))
	}

	return items, nil
}

// SyncRun writes one progress snapshot back to action_items. Rows are matched
// by (operation_id, position) because positions are fixed for the life of the
// run; only run-mutable columns are touched.
func (r *GormItemRepo) SyncRun(ctx context.Context, operationID string, items []domain.ActionItem) error {
	if len(items) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range items {
			item := &items[i]
			err := tx.
				Model(&ActionItemModel{}).
				Where("operation_id = ? AND position = ?", operationID, item.Position).
				Updates(map[string]any{
					"status":    item.Status,
					"note":      item.Note,
					"error":     item.Error,
					"action_id": item.ActionID,
					"signature": item.Signature,
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ResolveNonTerminal forces every PENDING or PROCESSING item of the operation
// into ERROR. Used by the janitor when a worker died mid-run.
func (r *GormItemRepo) ResolveNonTerminal(ctx context.Context, operationID string, errMsg string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&ActionItemModel{}).
		Where("operation_id = ? AND status IN ?", operationID, []domain.ItemStatus{
			domain.ItemPending, domain.ItemProcessing,
		}).
		Updates(map[string]any{
			"status": domain.ItemError,
			"error":  errMsg,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/saharasol/relief-admin/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ListParams struct {
	Status   *domain.OperationStatus
	Action   *domain.ActionKind
	AdminKey *string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

type OperationRepository interface {
	Create(ctx context.Context, op *domain.Operation) error
	GetByID(ctx context.Context, id string) (*domain.Operation, error)
	List(ctx context.Context, params ListParams) ([]domain.Operation, int64, error)
	UpdateStatus(ctx context.Context, id string, status domain.OperationStatus) error
	MarkStarted(ctx context.Context, id string) error
	Finish(ctx context.Context, id string, status domain.OperationStatus, opErr *string) error
	RequestCancel(ctx context.Context, id string) error
	IsCancelRequested(ctx context.Context, id string) (bool, error)
	ClaimForRun(ctx context.Context, id string) (*domain.Operation, error)
	GetStaleRunning(ctx context.Context, olderThan time.Time, limit int) ([]domain.Operation, error)
}

type GormOperationRepo struct {
	db *gorm.DB
}

func NewGormOperationRepo(db *gorm.DB) *GormOperationRepo {
	return &GormOperationRepo{db: db}
}

// Create persists the operation together with its items in one transaction so
// a crash never leaves an operation without its target rows.
func (r *GormOperationRepo) Create(ctx context.Context, op *domain.Operation) error {
	model := operationModelFromDomain(op)
	if model == nil {
		return domain.ErrValidation
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(model).Error
	})
	if err != nil {
		return err
	}

	*op = *operationModelToDomain(model)
	return nil
}

func (r *GormOperationRepo) GetByID(ctx context.Context, id string) (*domain.Operation, error) {
	var model OperationModel
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return operationModelToDomain(&model), nil
}

func (r *GormOperationRepo) List(ctx context.Context, params ListParams) ([]domain.Operation, int64, error) {
	query := r.db.WithContext(ctx).Model(&OperationModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Action != nil {
		query = query.Where("action = ?", *params.Action)
	}
	if params.AdminKey != nil {
		query = query.Where("admin_key = ?", *params.AdminKey)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []OperationModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	operations := make([]domain.Operation, 0, len(models))
	for i := range models {
		operations = append(operations, *operationModelToDomain(&models[i]))
	}

	return operations, total, nil
}

func (r *GormOperationRepo) UpdateStatus(ctx context.Context, id string, status domain.OperationStatus) error {
	result := r.db.WithContext(ctx).
		Model(&OperationModel{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormOperationRepo) MarkStarted(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&OperationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     domain.OperationRunning,
			"started_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormOperationRepo) Finish(ctx context.Context, id string, status domain.OperationStatus, opErr *string) error {
	result := r.db.WithContext(ctx).
		Model(&OperationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      status,
			"error":       opErr,
			"finished_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RequestCancel flags the operation for cancellation. The flag is honored
// between batches by the worker; operations that already reached a terminal
// state cannot be canceled.
func (r *GormOperationRepo) RequestCancel(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&OperationModel{}).
		Where("id = ? AND status IN ?", id, []domain.OperationStatus{
			domain.OperationAccepted, domain.OperationQueued, domain.OperationRunning,
		}).
		Update("cancel_requested", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormOperationRepo) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	var model OperationModel
	err := r.db.WithContext(ctx).
		Select("cancel_requested").
		First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return model.CancelRequested, nil
}

// ClaimForRun takes a row lock and moves the operation to RUNNING. A nil
// operation with nil error means another worker already claimed it or the
// operation is past the point of running.
func (r *GormOperationRepo) ClaimForRun(ctx context.Context, id string) (*domain.Operation, error) {
	var claimed *domain.Operation

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model OperationModel
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		switch model.Status {
		case domain.OperationAccepted, domain.OperationQueued:
		default:
			return nil
		}

		now := time.Now()
		if err := tx.
			Model(&model).
			Updates(map[string]any{
				"status":     domain.OperationRunning,
				"started_at": now,
			}).Error; err != nil {
			return err
		}

		var items []ActionItemModel
		if err := tx.
			Where("operation_id = ?", id).
			Order("position ASC").
			Find(&items).Error; err != nil {
			return err
		}
		model.Items = items
		model.Status = domain.OperationRunning
		model.StartedAt = &now

		claimed = operationModelToDomain(&model)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *GormOperationRepo) GetStaleRunning(ctx context.Context, olderThan time.Time, limit int) ([]domain.Operation, error) {
	var models []OperationModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND started_at <= ?", domain.OperationRunning, olderThan).
		Order("started_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	operations := make([]domain.Operation, 0, len(models))
	for i := range models {
		operations = append(operations, *operationModelToDomain(&models[i]))
	}
	return operations, nil
}

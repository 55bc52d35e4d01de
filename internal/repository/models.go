package repository

import (
	"time"

	"github.com/saharasol/relief-admin/internal/domain"
)

// OperationModel is the persistence model for the operations table.
type OperationModel struct {
	ID              string                 `gorm:"type:uuid;primaryKey"`
	Action          domain.ActionKind      `gorm:"type:varchar(30);not null"`
	Strategy        domain.Strategy        `gorm:"type:varchar(15);not null"`
	Reason          string                 `gorm:"type:varchar(500);not null;default:''"`
	AdminKey        string                 `gorm:"type:varchar(64);not null"`
	Status          domain.OperationStatus `gorm:"type:varchar(20);not null"`
	TotalCount      int                    `gorm:"not null"`
	CancelRequested bool                   `gorm:"not null;default:false"`
	Error           *string                `gorm:"type:text"`
	StartedAt       *time.Time             `gorm:"type:timestamptz"`
	FinishedAt      *time.Time             `gorm:"type:timestamptz"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Items []ActionItemModel `gorm:"foreignKey:OperationID;references:ID"`
}

func (OperationModel) TableName() string {
	return "operations"
}

// ActionItemModel is the persistence model for action_items.
type ActionItemModel struct {
	ID          string            `gorm:"type:uuid;primaryKey"`
	OperationID string            `gorm:"type:uuid;not null;index:idx_action_items_operation"`
	Position    int               `gorm:"not null"`
	Name        string            `gorm:"type:varchar(255);not null"`
	Authority   string            `gorm:"type:varchar(64);not null"`
	Status      domain.ItemStatus `gorm:"type:varchar(15);not null"`
	Note        string            `gorm:"type:varchar(255);not null;default:''"`
	Error       *string           `gorm:"type:text"`
	ActionID    *uint64           `gorm:"type:numeric(20,0)"`
	Signature   *string           `gorm:"type:varchar(96)"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (ActionItemModel) TableName() string {
	return "action_items"
}

func operationModelFromDomain(o *domain.Operation) *OperationModel {
	if o == nil {
		return nil
	}

	model := &OperationModel{
		ID:              o.ID,
		Action:          o.Action,
		Strategy:        o.Strategy,
		Reason:          o.Reason,
		AdminKey:        o.AdminKey,
		Status:          o.Status,
		TotalCount:      o.TotalCount,
		CancelRequested: o.CancelRequested,
		Error:           o.Error,
		StartedAt:       o.StartedAt,
		FinishedAt:      o.FinishedAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for i := range o.Items {
		model.Items = append(model.Items, *itemModelFromDomain(&o.Items[i]))
	}
	return model
}

func operationModelToDomain(m *OperationModel) *domain.Operation {
	if m == nil {
		return nil
	}

	op := &domain.Operation{
		ID:              m.ID,
		Action:          m.Action,
		Strategy:        m.Strategy,
		Reason:          m.Reason,
		AdminKey:        m.AdminKey,
		Status:          m.Status,
		TotalCount:      m.TotalCount,
		CancelRequested: m.CancelRequested,
		Error:           m.Error,
		StartedAt:       m.StartedAt,
		FinishedAt:      m.FinishedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	for i := range m.Items {
		op.Items = append(op.Items, *itemModelToDomain(&m.Items[i]))
	}
	return op
}

func itemModelFromDomain(i *domain.ActionItem) *ActionItemModel {
	if i == nil {
		return nil
	}

	return &ActionItemModel{
		ID:          i.ID,
		OperationID: i.OperationID,
		Position:    i.Position,
		Name:        i.Name,
		Authority:   i.Authority,
		Status:      i.Status,
		Note:        i.Note,
		Error:       i.Error,
		ActionID:    i.ActionID,
		Signature:   i.Signature,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
}

func itemModelToDomain(m *ActionItemModel) *domain.ActionItem {
	if m == nil {
		return nil
	}

	return &domain.ActionItem{
		ID:          m.ID,
		OperationID: m.OperationID,
		Position:    m.Position,
		Name:        m.Name,
		Authority:   m.Authority,
		Status:      m.Status,
		Note:        m.Note,
		Error:       m.Error,
		ActionID:    m.ActionID,
		Signature:   m.Signature,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

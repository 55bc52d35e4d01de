package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saharasol/relief-admin/internal/domain"
	"github.com/saharasol/relief-admin/internal/observability"
	"github.com/saharasol/relief-admin/internal/queue"
	"github.com/saharasol/relief-admin/internal/repository"
)

// TargetInput is one requested target before validation.
type TargetInput struct {
	Authority string
	Name      string
}

// CreateOperationInput is the request to start a batch admin action.
type CreateOperationInput struct {
	Action   string
	Strategy string
	Reason   string
	AdminKey string
	Targets  []TargetInput
}

type OperationService struct {
	operations repository.OperationRepository
	publisher  queue.Publisher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

func NewOperationService(
	operations repository.OperationRepository,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*OperationService, error) {
	if operations == nil {
		return nil, fmt.Errorf("operation repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("queue publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OperationService{
		operations: operations,
		publisher:  publisher,
		logger:     logger,
	}, nil
}

// SetMetrics attaches Prometheus collectors. A nil receiver on Metrics methods
// is safe, so wiring is optional.
func (s *OperationService) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// Create validates the request, persists the operation with one PENDING item
// per target, and hands it to the action's work queue. A publish failure
// leaves the operation FAILED rather than silently parked.
func (s *OperationService) Create(ctx context.Context, input CreateOperationInput) (*domain.Operation, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	op, err := buildOperation(input)
	if err != nil {
		return nil, err
	}

	if err := s.operations.Create(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to persist operation: %w", err)
	}

	msg := queue.OperationMessage{
		OperationID: op.ID,
		Action:      op.Action,
		Strategy:    op.Strategy,
		AdminKey:    op.AdminKey,
	}
	if err := s.publisher.Publish(ctx, queue.QueueName(op.Action), msg); err != nil {
		s.logger.Error("failed to publish operation",
			zap.String("operationId", op.ID),
			zap.String("action", op.Action.String()),
			zap.Error(err),
		)
		failMsg := fmt.Sprintf("failed to enqueue operation: %v", err)
		if finishErr := s.operations.Finish(ctx, op.ID, domain.OperationFailed, &failMsg); finishErr != nil {
			s.logger.Error("failed to mark operation as failed after publish error",
				zap.String("operationId", op.ID),
				zap.Error(finishErr),
			)
			return nil, fmt.Errorf("failed to publish operation: %w (failed to mark as failed: %v)", err, finishErr)
		}
		op.Status = domain.OperationFailed
		return nil, fmt.Errorf("failed to publish operation: %w", err)
	}

	if err := s.operations.UpdateStatus(ctx, op.ID, domain.OperationQueued); err != nil {
		return nil, fmt.Errorf("failed to update operation status to queued: %w", err)
	}
	op.Status = domain.OperationQueued

	s.metrics.IncOperationAccepted(op.Action.String())
	s.logger.Info("operation accepted",
		zap.String("operationId", op.ID),
		zap.String("action", op.Action.String()),
		zap.String("strategy", op.Strategy.String()),
		zap.Int("targets", op.TotalCount),
	)

	return op, nil
}

func (s *OperationService) GetByID(ctx context.Context, id string) (*domain.Operation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: operation id is required", domain.ErrValidation)
	}
	return s.operations.GetByID(ctx, strings.TrimSpace(id))
}

func (s *OperationService) List(
	ctx context.Context,
	params repository.ListParams,
) ([]domain.Operation, int64, error) {
	return s.operations.List(ctx, params)
}

// Cancel requests cooperative cancellation. The worker honors the flag at the
// next batch boundary; batches already confirmed stay confirmed.
func (s *OperationService) Cancel(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: operation id is required", domain.ErrValidation)
	}
	return s.operations.RequestCancel(ctx, strings.TrimSpace(id))
}

func buildOperation(input CreateOperationInput) (*domain.Operation, error) {
	action, err := domain.ParseActionKindFromString(input.Action)
	if err != nil {
		return nil, err
	}

	strategy := action.DefaultStrategy()
	if strings.TrimSpace(input.Strategy) != "" {
		strategy, err = domain.ParseStrategyFromString(input.Strategy)
		if err != nil {
			return nil, err
		}
	}

	adminKey := strings.TrimSpace(input.AdminKey)
	if adminKey == "" {
		return nil, fmt.Errorf("%w: admin key is required", domain.ErrValidation)
	}
	if _, err := solana.PublicKeyFromBase58(adminKey); err != nil {
		return nil, fmt.Errorf("%w: invalid admin key: %v", domain.ErrValidation, err)
	}

	if len(input.Targets) == 0 {
		return nil, fmt.Errorf("%w: at least one target is required", domain.ErrValidation)
	}
	if len(input.Targets) > domain.MaxOperationTargets {
		return nil, fmt.Errorf("%w: operation exceeds %d targets", domain.ErrValidation, domain.MaxOperationTargets)
	}

	op := &domain.Operation{
		ID:         uuid.NewString(),
		Action:     action,
		Strategy:   strategy,
		Reason:     strings.TrimSpace(input.Reason),
		AdminKey:   adminKey,
		Status:     domain.OperationAccepted,
		TotalCount: len(input.Targets),
	}

	seen := make(map[string]struct{}, len(input.Targets))
	for i, target := range input.Targets {
		authority := strings.TrimSpace(target.Authority)
		if authority == "" {
			return nil, fmt.Errorf("%w: target %d has no authority", domain.ErrValidation, i)
		}
		if _, err := solana.PublicKeyFromBase58(authority); err != nil {
			return nil, fmt.Errorf("%w: target %d authority is not a valid key: %v", domain.ErrValidation, i, err)
		}
		if _, dup := seen[authority]; dup {
			return nil, fmt.Errorf("%w: target authority %s appears twice", domain.ErrValidation, authority)
		}
		seen[authority] = struct{}{}

		op.Items = append(op.Items, domain.ActionItem{
			ID:          uuid.NewString(),
			OperationID: op.ID,
			Position:    i,
			Name:        strings.TrimSpace(target.Name),
			Authority:   authority,
			Status:      domain.ItemPending,
		})
	}

	if err := op.Validate(); err != nil {
		return nil, err
	}

	return op, nil
}

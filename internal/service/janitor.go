package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/saharasol/relief-admin/internal/domain"
	"github.com/saharasol/relief-admin/internal/repository"
)

const (
	defaultJanitorInterval = time.Minute
	defaultStaleAfter      = 15 * time.Minute
	defaultJanitorLimit    = 100

	staleRunNote = "worker terminated before the operation finished"
)

// Janitor sweeps operations left RUNNING by crashed workers. Every swept
// operation ends FAILED with its non-terminal items resolved as errors, so no
// item ever stays PENDING or PROCESSING forever.
type Janitor struct {
	operations repository.OperationRepository
	items      repository.ItemRepository
	logger     *zap.Logger
	interval   time.Duration
	staleAfter time.Duration
	limit      int
	now        func() time.Time
}

func NewJanitor(
	operations repository.OperationRepository,
	items repository.ItemRepository,
	interval time.Duration,
	staleAfter time.Duration,
	logger *zap.Logger,
) (*Janitor, error) {
	if operations == nil {
		return nil, fmt.Errorf("operation repository is required")
	}
	if items == nil {
		return nil, fmt.Errorf("item repository is required")
	}
	if interval <= 0 {
		interval = defaultJanitorInterval
	}
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Janitor{
		operations: operations,
		items:      items,
		logger:     logger,
		interval:   interval,
		staleAfter: staleAfter,
		limit:      defaultJanitorLimit,
		now:        time.Now,
	}, nil
}

func (j *Janitor) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Sweep once at startup so operations orphaned by the previous process do
	// not wait for the first ticker edge.
	if err := j.sweep(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("janitor initial sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := j.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				j.logger.Error("janitor sweep failed", zap.Error(err))
			}
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) error {
	cutoff := j.now().Add(-j.staleAfter)
	stale, err := j.operations.GetStaleRunning(ctx, cutoff, j.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch stale operations: %w", err)
	}

	for i := range stale {
		op := stale[i]

		resolved, err := j.items.ResolveNonTerminal(ctx, op.ID, staleRunNote)
		if err != nil {
			j.logger.Error("failed to resolve stale items",
				zap.String("operationId", op.ID),
				zap.Error(err),
			)
			continue
		}

		msg := staleRunNote
		if err := j.operations.Finish(ctx, op.ID, domain.OperationFailed, &msg); err != nil {
			j.logger.Error("failed to finish stale operation",
				zap.String("operationId", op.ID),
				zap.Error(err),
			)
			continue
		}

		j.logger.Warn("stale operation swept",
			zap.String("operationId", op.ID),
			zap.String("action", op.Action.String()),
			zap.Int64("resolvedItems", resolved),
			zap.Timep("startedAt", op.StartedAt),
		)
	}

	return nil
}

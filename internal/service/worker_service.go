package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saharasol/relief-admin/internal/chain"
	"github.com/saharasol/relief-admin/internal/domain"
	"github.com/saharasol/relief-admin/internal/engine"
	"github.com/saharasol/relief-admin/internal/notifier"
	"github.com/saharasol/relief-admin/internal/observability"
	"github.com/saharasol/relief-admin/internal/queue"
	"github.com/saharasol/relief-admin/internal/repository"
)

const minWorkerConcurrency = 1

type WorkerService struct {
	operations  repository.OperationRepository
	items       repository.ItemRepository
	consumer    queue.Consumer
	engine      *engine.Engine
	ngoReader   chain.NGOReader
	notifier    notifier.Notifier
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
}

func NewWorkerService(
	operations repository.OperationRepository,
	items repository.ItemRepository,
	consumer queue.Consumer,
	eng *engine.Engine,
	ngoReader chain.NGOReader,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if operations == nil {
		return nil, fmt.Errorf("operation repository is required")
	}
	if items == nil {
		return nil, fmt.Errorf("item repository is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("queue consumer is required")
	}
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if ngoReader == nil {
		return nil, fmt.Errorf("ngo reader is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		operations:  operations,
		items:       items,
		consumer:    consumer,
		engine:      eng,
		ngoReader:   ngoReader,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *WorkerService) SetNotifier(n notifier.Notifier) {
	if s == nil {
		return
	}
	s.notifier = n
}

// Start consumes the action work queues until context cancellation. Each
// worker goroutine owns one queue subscription; the engine itself is strictly
// sequential within an operation, so parallelism only exists across
// operations.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := s.consumer.Consume(groupCtx, queueName, s.processMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) processMessage(ctx context.Context, msg queue.OperationMessage) error {
	op, err := s.operations.ClaimForRun(ctx, msg.OperationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("operation not found during claim, skipping",
				zap.String("operationId", msg.OperationID),
			)
			return nil
		}
		return fmt.Errorf("failed to claim operation: %w", err)
	}

	// Nil means another worker claimed it or the operation is already past
	// running; ack and skip.
	if op == nil {
		return nil
	}

	ctx = observability.WithOperationID(ctx, op.ID)
	logger := observability.WithContextLogger(s.logger, ctx)

	actionName := strings.ToLower(op.Action.String())
	if s.metrics != nil {
		s.metrics.IncWorkerInFlight(actionName)
		defer s.metrics.DecWorkerInFlight(actionName)
	}

	runStart := s.now()
	result, runErr := s.runOperation(ctx, op)
	if s.metrics != nil {
		s.metrics.ObserveOperationDuration(actionName, s.now().Sub(runStart))
		for _, item := range result.Items {
			s.metrics.IncTransaction(actionName, transactionOutcome(item))
		}
	}

	status, opErrMsg := finalStatus(result, runErr)
	if err := s.operations.Finish(ctx, op.ID, status, opErrMsg); err != nil {
		return fmt.Errorf("failed to finish operation: %w", err)
	}
	if s.metrics != nil {
		s.metrics.IncOperationFinished(actionName, strings.ToLower(status.String()))
	}

	logger.Info("operation finished",
		zap.String("action", op.Action.String()),
		zap.String("status", status.String()),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)

	s.notifyFinal(ctx, op, status, result)
	return nil
}

// runOperation evaluates the idempotence predicate for every target and hands
// the operation to the engine. The engine guarantees every item reaches a
// terminal state; the observer mirrors each snapshot into Postgres.
func (s *WorkerService) runOperation(ctx context.Context, op *domain.Operation) (engine.Result, error) {
	targets := make([]engine.Target, 0, len(op.Items))
	for i := range op.Items {
		item := &op.Items[i]

		authority, err := solana.PublicKeyFromBase58(item.Authority)
		if err != nil {
			return engine.Result{}, fmt.Errorf("%w: item %d authority %q", domain.ErrValidation, item.Position, item.Authority)
		}

		target := engine.Target{
			Authority: item.Authority,
			Name:      item.Name,
		}

		ngo, err := s.ngoReader.FetchNGO(ctx, authority)
		switch {
		case err == nil:
			target.InTargetState = ngo.InTargetState(op.Action)
			if target.Name == "" {
				target.Name = ngo.Name
			}
		case errors.Is(err, domain.ErrNotFound):
			// The submission itself will surface the missing account as a
			// per-item error.
			s.logger.Warn("ngo account not found, submitting anyway",
				zap.String("operationId", op.ID),
				zap.String("authority", item.Authority),
			)
		default:
			return engine.Result{}, fmt.Errorf("failed to load ngo state for %s: %w", item.Authority, err)
		}

		targets = append(targets, target)
	}

	req := engine.Request{
		Action:   op.Action,
		Strategy: op.Strategy,
		Reason:   op.Reason,
		Targets:  targets,
		Observer: func(items []domain.ActionItem, current int) {
			if err := s.items.SyncRun(ctx, op.ID, items); err != nil {
				s.logger.Error("failed to persist item snapshot",
					zap.String("operationId", op.ID),
					zap.Error(err),
				)
			}
		},
		Canceled: func(ctx context.Context) bool {
			requested, err := s.operations.IsCancelRequested(ctx, op.ID)
			if err != nil {
				s.logger.Warn("failed to probe cancel flag",
					zap.String("operationId", op.ID),
					zap.Error(err),
				)
				return false
			}
			return requested
		},
	}

	result, runErr := s.engine.Run(ctx, req)

	// Persist the final snapshot regardless of outcome.
	if len(result.Items) > 0 {
		if err := s.items.SyncRun(ctx, op.ID, result.Items); err != nil {
			s.logger.Error("failed to persist final item snapshot",
				zap.String("operationId", op.ID),
				zap.Error(err),
			)
		}
	} else if runErr != nil {
		// Validation failures never produce items; make sure no row stays
		// PENDING forever.
		if _, err := s.items.ResolveNonTerminal(ctx, op.ID, runErr.Error()); err != nil {
			s.logger.Error("failed to resolve items after run error",
				zap.String("operationId", op.ID),
				zap.Error(err),
			)
		}
	}

	return result, runErr
}

func (s *WorkerService) notifyFinal(
	ctx context.Context,
	op *domain.Operation,
	status domain.OperationStatus,
	result engine.Result,
) {
	if s.notifier == nil {
		return
	}

	event := notifier.Event{
		OperationID: op.ID,
		Action:      op.Action,
		Status:      status,
		Total:       op.TotalCount,
		Succeeded:   result.Succeeded,
		Failed:      result.Failed,
		Skipped:     result.Skipped,
		At:          s.now().UTC(),
	}
	if _, err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Warn("progress webhook failed",
			zap.String("operationId", op.ID),
			zap.Error(err),
		)
	}
}

// transactionOutcome buckets a terminal item for the transactions counter.
// A SUCCESS without a signature means the target was skipped or remapped from
// a duplicate, so no transaction landed on its behalf.
func transactionOutcome(item domain.ActionItem) string {
	switch {
	case item.Status == domain.ItemSuccess && item.Signature != nil:
		return "confirmed"
	case item.Status == domain.ItemSuccess:
		return "skipped"
	default:
		return "failed"
	}
}

// finalStatus maps an engine outcome onto the operation lifecycle.
func finalStatus(result engine.Result, runErr error) (domain.OperationStatus, *string) {
	switch {
	case errors.Is(runErr, domain.ErrNothingToDo):
		return domain.OperationNothingToDo, nil
	case result.Canceled || errors.Is(runErr, context.Canceled):
		return domain.OperationCanceled, nil
	case runErr != nil:
		msg := runErr.Error()
		return domain.OperationFailed, &msg
	case result.Failed == 0:
		return domain.OperationCompleted, nil
	case result.Succeeded > 0:
		return domain.OperationPartialFailure, nil
	default:
		msg := "all batches failed"
		return domain.OperationFailed, &msg
	}
}

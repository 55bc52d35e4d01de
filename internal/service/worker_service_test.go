package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/saharasol/relief-admin/internal/chain"
	"github.com/saharasol/relief-admin/internal/domain"
	"github.com/saharasol/relief-admin/internal/engine"
	"github.com/saharasol/relief-admin/internal/notifier"
	"github.com/saharasol/relief-admin/internal/queue"
)

type fakeInstructionBuilder struct {
	err error
}

func (b *fakeInstructionBuilder) BuildInstruction(
	action domain.ActionKind,
	admin solana.PublicKey,
	ngoAuthority solana.PublicKey,
	reason string,
	actionID uint64,
) (solana.Instruction, error) {
	if b.err != nil {
		return nil, b.err
	}
	return solana.NewInstruction(
		solana.SystemProgramID,
		solana.AccountMetaSlice{solana.Meta(ngoAuthority)},
		[]byte{1},
	), nil
}

type fakeSubmitter struct {
	err   error
	calls int
}

func (s *fakeSubmitter) SubmitBundle(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	s.calls++
	if s.err != nil {
		return solana.Signature{}, s.err
	}
	return solana.Signature{byte(s.calls)}, nil
}

func (s *fakeSubmitter) SubmitSingle(ctx context.Context, instruction solana.Instruction) (solana.Signature, error) {
	s.calls++
	if s.err != nil {
		return solana.Signature{}, s.err
	}
	return solana.Signature{byte(s.calls)}, nil
}

type fakeItemRepo struct {
	syncRunFn            func(ctx context.Context, operationID string, items []domain.ActionItem) error
	resolveNonTerminalFn func(ctx context.Context, operationID string, errMsg string) (int64, error)
}

func (f *fakeItemRepo) GetByOperationID(ctx context.Context, operationID string) ([]domain.ActionItem, error) {
	return nil, nil
}

func (f *fakeItemRepo) SyncRun(ctx context.Context, operationID string, items []domain.ActionItem) error {
	if f.syncRunFn != nil {
		return f.syncRunFn(ctx, operationID, items)
	}
	return nil
}

func (f *fakeItemRepo) ResolveNonTerminal(ctx context.Context, operationID string, errMsg string) (int64, error) {
	if f.resolveNonTerminalFn != nil {
		return f.resolveNonTerminalFn(ctx, operationID, errMsg)
	}
	return 0, nil
}

type fakeNGOReader struct {
	fetchFn func(ctx context.Context, authority solana.PublicKey) (domain.NGO, error)
}

func (f *fakeNGOReader) FetchNGO(ctx context.Context, authority solana.PublicKey) (domain.NGO, error) {
	if f.fetchFn != nil {
		return f.fetchFn(ctx, authority)
	}
	return domain.NGO{Authority: authority.String()}, nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

type fakeNotifier struct {
	events []notifier.Event
}

func (f *fakeNotifier) Notify(ctx context.Context, event notifier.Event) (*notifier.Receipt, error) {
	f.events = append(f.events, event)
	return &notifier.Receipt{StatusCode: 200}, nil
}

func newTestOperation(action domain.ActionKind, strategy domain.Strategy, targets int) *domain.Operation {
	op := &domain.Operation{
		ID:         uuid.NewString(),
		Action:     action,
		Strategy:   strategy,
		AdminKey:   solana.NewWallet().PublicKey().String(),
		Status:     domain.OperationRunning,
		TotalCount: targets,
	}
	for i := 0; i < targets; i++ {
		op.Items = append(op.Items, domain.ActionItem{
			ID:          uuid.NewString(),
			OperationID: op.ID,
			Position:    i,
			Name:        "NGO",
			Authority:   solana.NewWallet().PublicKey().String(),
			Status:      domain.ItemPending,
		})
	}
	return op
}

func newWorkerEngine(t *testing.T, submitter chain.Submitter) *engine.Engine {
	t.Helper()

	eng, err := engine.New(
		&fakeInstructionBuilder{},
		submitter,
		solana.NewWallet().PublicKey(),
		nil,
		engine.Config{
			BundledDelay:    time.Millisecond,
			SequentialDelay: time.Millisecond,
			SkipDelay:       time.Millisecond,
		},
		nil,
	)
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	return eng
}

func newTestWorker(
	t *testing.T,
	ops *fakeOperationRepo,
	items *fakeItemRepo,
	submitter chain.Submitter,
	reader chain.NGOReader,
) *WorkerService {
	t.Helper()

	worker, err := NewWorkerService(
		ops,
		items,
		&fakeConsumer{},
		newWorkerEngine(t, submitter),
		reader,
		1,
		nil,
	)
	if err != nil {
		t.Fatalf("NewWorkerService() error = %v", err)
	}
	return worker
}

func TestWorkerProcessMessageCompletes(t *testing.T) {
	t.Parallel()

	op := newTestOperation(domain.ActionVerify, domain.StrategyBundled, 3)

	var finishedStatus domain.OperationStatus
	ops := &fakeOperationRepo{
		claimForRunFn: func(ctx context.Context, id string) (*domain.Operation, error) {
			if id != op.ID {
				t.Fatalf("claim id = %s, want %s", id, op.ID)
			}
			return op, nil
		},
		finishFn: func(ctx context.Context, id string, status domain.OperationStatus, opErr *string) error {
			finishedStatus = status
			if opErr != nil {
				t.Fatalf("finish error = %q, want nil", *opErr)
			}
			return nil
		},
	}

	var lastSnapshot []domain.ActionItem
	items := &fakeItemRepo{
		syncRunFn: func(ctx context.Context, operationID string, snapshot []domain.ActionItem) error {
			lastSnapshot = snapshot
			return nil
		},
	}

	worker := newTestWorker(t, ops, items, &fakeSubmitter{}, &fakeNGOReader{})
	hook := &fakeNotifier{}
	worker.SetNotifier(hook)

	err := worker.processMessage(context.Background(), queue.OperationMessage{
		OperationID: op.ID,
		Action:      op.Action,
		Strategy:    op.Strategy,
	})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	if finishedStatus != domain.OperationCompleted {
		t.Fatalf("final status = %s, want COMPLETED", finishedStatus)
	}
	if len(lastSnapshot) != 3 {
		t.Fatalf("last snapshot = %d items, want 3", len(lastSnapshot))
	}
	for _, item := range lastSnapshot {
		if item.Status != domain.ItemSuccess {
			t.Fatalf("item %d = %s, want SUCCESS", item.Position, item.Status)
		}
	}

	if len(hook.events) != 1 {
		t.Fatalf("notifier events = %d, want 1", len(hook.events))
	}
	if hook.events[0].Status != domain.OperationCompleted || hook.events[0].Succeeded != 3 {
		t.Fatalf("notifier event = %+v", hook.events[0])
	}
}

func TestWorkerProcessMessageNothingToDo(t *testing.T) {
	t.Parallel()

	op := newTestOperation(domain.ActionVerify, domain.StrategyBundled, 2)

	var finishedStatus domain.OperationStatus
	ops := &fakeOperationRepo{
		claimForRunFn: func(ctx context.Context, id string) (*domain.Operation, error) {
			return op, nil
		},
		finishFn: func(ctx context.Context, id string, status domain.OperationStatus, opErr *string) error {
			finishedStatus = status
			return nil
		},
	}

	submitter := &fakeSubmitter{}
	reader := &fakeNGOReader{
		fetchFn: func(ctx context.Context, authority solana.PublicKey) (domain.NGO, error) {
			return domain.NGO{Authority: authority.String(), IsVerified: true}, nil
		},
	}

	worker := newTestWorker(t, ops, &fakeItemRepo{}, submitter, reader)

	err := worker.processMessage(context.Background(), queue.OperationMessage{
		OperationID: op.ID,
		Action:      op.Action,
		Strategy:    op.Strategy,
	})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	if finishedStatus != domain.OperationNothingToDo {
		t.Fatalf("final status = %s, want NOTHING_TO_DO", finishedStatus)
	}
	if submitter.calls != 0 {
		t.Fatalf("submissions = %d, want 0", submitter.calls)
	}
}

func TestWorkerProcessMessageSubmitFailure(t *testing.T) {
	t.Parallel()

	op := newTestOperation(domain.ActionDeactivate, domain.StrategyBundled, 2)

	var finishedStatus domain.OperationStatus
	var finishErr *string
	ops := &fakeOperationRepo{
		claimForRunFn: func(ctx context.Context, id string) (*domain.Operation, error) {
			return op, nil
		},
		finishFn: func(ctx context.Context, id string, status domain.OperationStatus, opErr *string) error {
			finishedStatus = status
			finishErr = opErr
			return nil
		},
	}

	worker := newTestWorker(t, ops, &fakeItemRepo{}, &fakeSubmitter{err: errors.New("rpc down")}, &fakeNGOReader{})

	err := worker.processMessage(context.Background(), queue.OperationMessage{
		OperationID: op.ID,
		Action:      op.Action,
		Strategy:    op.Strategy,
	})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	if finishedStatus != domain.OperationFailed {
		t.Fatalf("final status = %s, want FAILED", finishedStatus)
	}
	if finishErr == nil {
		t.Fatal("finish should carry an error summary")
	}
}

func TestWorkerProcessMessagePartialFailure(t *testing.T) {
	t.Parallel()

	// 6 targets bundled: batch 1 (5) succeeds, batch 2 (1) fails.
	op := newTestOperation(domain.ActionVerify, domain.StrategyBundled, 6)

	submitter := &fakeSubmitter{}
	failing := &flakySubmitter{inner: submitter, failFrom: 2}

	var finishedStatus domain.OperationStatus
	ops := &fakeOperationRepo{
		claimForRunFn: func(ctx context.Context, id string) (*domain.Operation, error) {
			return op, nil
		},
		finishFn: func(ctx context.Context, id string, status domain.OperationStatus, opErr *string) error {
			finishedStatus = status
			return nil
		},
	}

	worker := newTestWorker(t, ops, &fakeItemRepo{}, failing, &fakeNGOReader{})

	err := worker.processMessage(context.Background(), queue.OperationMessage{
		OperationID: op.ID,
		Action:      op.Action,
		Strategy:    op.Strategy,
	})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	if finishedStatus != domain.OperationPartialFailure {
		t.Fatalf("final status = %s, want PARTIAL_FAILURE", finishedStatus)
	}
}

func TestWorkerProcessMessageCancelRequested(t *testing.T) {
	t.Parallel()

	op := newTestOperation(domain.ActionVerify, domain.StrategyBundled, 2)

	var finishedStatus domain.OperationStatus
	ops := &fakeOperationRepo{
		claimForRunFn: func(ctx context.Context, id string) (*domain.Operation, error) {
			return op, nil
		},
		isCancelRequestedFn: func(ctx context.Context, id string) (bool, error) {
			return true, nil
		},
		finishFn: func(ctx context.Context, id string, status domain.OperationStatus, opErr *string) error {
			finishedStatus = status
			return nil
		},
	}

	submitter := &fakeSubmitter{}
	worker := newTestWorker(t, ops, &fakeItemRepo{}, submitter, &fakeNGOReader{})

	err := worker.processMessage(context.Background(), queue.OperationMessage{
		OperationID: op.ID,
		Action:      op.Action,
		Strategy:    op.Strategy,
	})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	if finishedStatus != domain.OperationCanceled {
		t.Fatalf("final status = %s, want CANCELED", finishedStatus)
	}
	if submitter.calls != 0 {
		t.Fatalf("submissions = %d, want 0 (cancel before first batch)", submitter.calls)
	}
}

func TestWorkerProcessMessageSkipsUnclaimable(t *testing.T) {
	t.Parallel()

	finished := false
	ops := &fakeOperationRepo{
		claimForRunFn: func(ctx context.Context, id string) (*domain.Operation, error) {
			return nil, nil
		},
		finishFn: func(ctx context.Context, id string, status domain.OperationStatus, opErr *string) error {
			finished = true
			return nil
		},
	}

	worker := newTestWorker(t, ops, &fakeItemRepo{}, &fakeSubmitter{}, &fakeNGOReader{})

	err := worker.processMessage(context.Background(), queue.OperationMessage{
		OperationID: "op-x",
		Action:      domain.ActionVerify,
		Strategy:    domain.StrategyBundled,
	})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}
	if finished {
		t.Fatal("unclaimed operation should not be finished")
	}
}

func TestWorkerProcessMessageChainReadFailure(t *testing.T) {
	t.Parallel()

	op := newTestOperation(domain.ActionVerify, domain.StrategyBundled, 1)

	var finishedStatus domain.OperationStatus
	ops := &fakeOperationRepo{
		claimForRunFn: func(ctx context.Context, id string) (*domain.Operation, error) {
			return op, nil
		},
		finishFn: func(ctx context.Context, id string, status domain.OperationStatus, opErr *string) error {
			finishedStatus = status
			return nil
		},
	}

	resolved := false
	items := &fakeItemRepo{
		resolveNonTerminalFn: func(ctx context.Context, operationID string, errMsg string) (int64, error) {
			resolved = true
			return 1, nil
		},
	}

	reader := &fakeNGOReader{
		fetchFn: func(ctx context.Context, authority solana.PublicKey) (domain.NGO, error) {
			return domain.NGO{}, errors.New("rpc timeout")
		},
	}

	worker := newTestWorker(t, ops, items, &fakeSubmitter{}, reader)

	err := worker.processMessage(context.Background(), queue.OperationMessage{
		OperationID: op.ID,
		Action:      op.Action,
		Strategy:    op.Strategy,
	})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	if finishedStatus != domain.OperationFailed {
		t.Fatalf("final status = %s, want FAILED", finishedStatus)
	}
	if !resolved {
		t.Fatal("items should be resolved when the run never starts")
	}
}

// flakySubmitter fails every submission from failFrom (1-based) onward.
type flakySubmitter struct {
	inner    *fakeSubmitter
	failFrom int
	calls    int
}

func (s *flakySubmitter) SubmitBundle(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	s.calls++
	if s.calls >= s.failFrom {
		return solana.Signature{}, errors.New("rpc down")
	}
	return s.inner.SubmitBundle(ctx, instructions)
}

func (s *flakySubmitter) SubmitSingle(ctx context.Context, instruction solana.Instruction) (solana.Signature, error) {
	s.calls++
	if s.calls >= s.failFrom {
		return solana.Signature{}, errors.New("rpc down")
	}
	return s.inner.SubmitSingle(ctx, instruction)
}

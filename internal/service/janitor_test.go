package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/saharasol/relief-admin/internal/domain"
)

func TestJanitorSweepResolvesStaleOperations(t *testing.T) {
	t.Parallel()

	startedAt := time.Now().Add(-time.Hour)
	stale := domain.Operation{
		ID:        "op-stale",
		Action:    domain.ActionVerify,
		Status:    domain.OperationRunning,
		StartedAt: &startedAt,
	}

	var finishedID string
	var finishedStatus domain.OperationStatus
	ops := &fakeOperationRepo{
		getStaleRunningFn: func(ctx context.Context, olderThan time.Time, limit int) ([]domain.Operation, error) {
			if !olderThan.Before(time.Now()) {
				t.Fatal("cutoff should be in the past")
			}
			return []domain.Operation{stale}, nil
		},
		finishFn: func(ctx context.Context, id string, status domain.OperationStatus, opErr *string) error {
			finishedID = id
			finishedStatus = status
			if opErr == nil {
				t.Fatal("swept operation should carry an error note")
			}
			return nil
		},
	}

	var resolvedID string
	items := &fakeItemRepo{
		resolveNonTerminalFn: func(ctx context.Context, operationID string, errMsg string) (int64, error) {
			resolvedID = operationID
			return 2, nil
		},
	}

	j, err := NewJanitor(ops, items, time.Minute, 15*time.Minute, nil)
	if err != nil {
		t.Fatalf("NewJanitor() error = %v", err)
	}

	if err := j.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}

	if resolvedID != "op-stale" {
		t.Fatalf("resolved operation = %s, want op-stale", resolvedID)
	}
	if finishedID != "op-stale" || finishedStatus != domain.OperationFailed {
		t.Fatalf("finish = %s/%s, want op-stale/FAILED", finishedID, finishedStatus)
	}
}

func TestJanitorSweepSkipsFinishWhenItemsUnresolved(t *testing.T) {
	t.Parallel()

	stale := domain.Operation{ID: "op-stale", Status: domain.OperationRunning}

	finished := false
	ops := &fakeOperationRepo{
		getStaleRunningFn: func(ctx context.Context, olderThan time.Time, limit int) ([]domain.Operation, error) {
			return []domain.Operation{stale}, nil
		},
		finishFn: func(ctx context.Context, id string, status domain.OperationStatus, opErr *string) error {
			finished = true
			return nil
		},
	}

	items := &fakeItemRepo{
		resolveNonTerminalFn: func(ctx context.Context, operationID string, errMsg string) (int64, error) {
			return 0, errors.New("db unavailable")
		},
	}

	j, err := NewJanitor(ops, items, time.Minute, 15*time.Minute, nil)
	if err != nil {
		t.Fatalf("NewJanitor() error = %v", err)
	}

	if err := j.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}
	if finished {
		t.Fatal("operation must stay RUNNING until its items resolve")
	}
}

func TestJanitorStartStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ops := &fakeOperationRepo{}
	items := &fakeItemRepo{}

	j, err := NewJanitor(ops, items, 5*time.Millisecond, 15*time.Minute, nil)
	if err != nil {
		t.Fatalf("NewJanitor() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := j.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

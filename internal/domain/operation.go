package domain

import (
	"fmt"
	"strings"
	"time"
)

// ActionKind identifies the admin action applied to every target of an operation.
type ActionKind string

const (
	ActionVerify             ActionKind = "VERIFY"
	ActionRevokeVerification ActionKind = "REVOKE_VERIFICATION"
	ActionActivate           ActionKind = "ACTIVATE"
	ActionDeactivate         ActionKind = "DEACTIVATE"
	ActionBlacklist          ActionKind = "BLACKLIST"
	ActionRemoveBlacklist    ActionKind = "REMOVE_BLACKLIST"
)

func (a ActionKind) String() string { return string(a) }

func (a ActionKind) IsValid() bool {
	switch a {
	case ActionVerify, ActionRevokeVerification, ActionActivate,
		ActionDeactivate, ActionBlacklist, ActionRemoveBlacklist:
		return true
	}
	return false
}

func ParseActionKindFromString(s string) (ActionKind, error) {
	a := ActionKind(strings.ToUpper(strings.TrimSpace(s)))
	if !a.IsValid() {
		return "", fmt.Errorf("%w: invalid action %q", ErrValidation, s)
	}
	return a, nil
}

// DefaultStrategy returns the submission strategy an action uses unless the
// caller overrides it. Blacklist actions are irreversible enough that operators
// want per-target confirmation, so they go one transaction at a time.
func (a ActionKind) DefaultStrategy() Strategy {
	switch a {
	case ActionBlacklist, ActionRemoveBlacklist:
		return StrategySequential
	default:
		return StrategyBundled
	}
}

// Strategy selects how targets are grouped into transactions.
type Strategy string

const (
	// StrategyBundled packs up to BatchSize instructions into one transaction.
	StrategyBundled Strategy = "BUNDLED"
	// StrategySequential submits one transaction per target with explicit
	// per-signature confirmation.
	StrategySequential Strategy = "SEQUENTIAL"
)

func (s Strategy) String() string { return string(s) }

func (s Strategy) IsValid() bool {
	switch s {
	case StrategyBundled, StrategySequential:
		return true
	}
	return false
}

func ParseStrategyFromString(s string) (Strategy, error) {
	st := Strategy(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid strategy %q", ErrValidation, s)
	}
	return st, nil
}

// OperationStatus represents the lifecycle state of an operation.
type OperationStatus string

const (
	OperationAccepted       OperationStatus = "ACCEPTED"
	OperationQueued         OperationStatus = "QUEUED"
	OperationRunning        OperationStatus = "RUNNING"
	OperationCompleted      OperationStatus = "COMPLETED"
	OperationPartialFailure OperationStatus = "PARTIAL_FAILURE"
	OperationFailed         OperationStatus = "FAILED"
	OperationNothingToDo    OperationStatus = "NOTHING_TO_DO"
	OperationCanceled       OperationStatus = "CANCELED"
)

func (s OperationStatus) String() string { return string(s) }

func (s OperationStatus) IsValid() bool {
	switch s {
	case OperationAccepted, OperationQueued, OperationRunning, OperationCompleted,
		OperationPartialFailure, OperationFailed, OperationNothingToDo, OperationCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether no further status transitions occur.
func (s OperationStatus) IsTerminal() bool {
	switch s {
	case OperationCompleted, OperationPartialFailure, OperationFailed,
		OperationNothingToDo, OperationCanceled:
		return true
	}
	return false
}

// MaxReasonLen matches the on-chain AdminAction reason capacity.
const MaxReasonLen = 500

// MaxOperationTargets bounds a single operation request.
const MaxOperationTargets = 200

// Operation is one admin batch action applied to a list of NGO targets.
type Operation struct {
	ID              string
	Action          ActionKind
	Strategy        Strategy
	Reason          string
	AdminKey        string
	Status          OperationStatus
	TotalCount      int
	CancelRequested bool
	Error           *string
	StartedAt       *time.Time
	FinishedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Items []ActionItem
}

func (o *Operation) Validate() error {
	if !o.Action.IsValid() {
		return fmt.Errorf("%w: invalid action %q", ErrValidation, o.Action)
	}
	if !o.Strategy.IsValid() {
		return fmt.Errorf("%w: invalid strategy %q", ErrValidation, o.Strategy)
	}
	if strings.TrimSpace(o.AdminKey) == "" {
		return fmt.Errorf("%w: admin key is required", ErrValidation)
	}
	if o.TotalCount <= 0 {
		return fmt.Errorf("%w: operation must include at least one target", ErrValidation)
	}
	if o.TotalCount > MaxOperationTargets {
		return fmt.Errorf("%w: operation exceeds %d targets", ErrValidation, MaxOperationTargets)
	}
	if len([]rune(o.Reason)) > MaxReasonLen {
		return fmt.Errorf("%w: reason exceeds %d characters", ErrValidation, MaxReasonLen)
	}
	return nil
}

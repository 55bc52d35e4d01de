package domain

import (
	"fmt"
	"strings"
	"time"
)

// ItemStatus is the per-target progress state machine:
// PENDING -> PROCESSING -> {SUCCESS, ERROR}. SUCCESS and ERROR are terminal.
type ItemStatus string

const (
	ItemPending    ItemStatus = "PENDING"
	ItemProcessing ItemStatus = "PROCESSING"
	ItemSuccess    ItemStatus = "SUCCESS"
	ItemError      ItemStatus = "ERROR"
)

func (s ItemStatus) String() string { return string(s) }

func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemPending, ItemProcessing, ItemSuccess, ItemError:
		return true
	}
	return false
}

func (s ItemStatus) IsTerminal() bool {
	return s == ItemSuccess || s == ItemError
}

// ActionItem tracks one target through a single operation run. Indices are
// fixed once the run starts; updates target items by position, never by
// reordering.
type ActionItem struct {
	ID          string
	OperationID string
	Position    int
	Name        string
	Authority   string
	Status      ItemStatus
	// Note carries informational text on a SUCCESS outcome, e.g. "Already
	// blacklisted" for a target skipped by the idempotence filter.
	Note      string
	Error     *string
	ActionID  *uint64
	Signature *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (i *ActionItem) Validate() error {
	if strings.TrimSpace(i.Authority) == "" {
		return fmt.Errorf("%w: target authority is required", ErrValidation)
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("%w: invalid item status %q", ErrValidation, i.Status)
	}
	return nil
}

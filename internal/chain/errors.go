package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// SubmitErrorKind classifies transaction submission failures.
type SubmitErrorKind string

const (
	// SubmitDuplicate means the cluster already recorded this transaction (or
	// the action receipt already exists). Benign under retry: the on-chain
	// effect the caller wanted is in place.
	SubmitDuplicate SubmitErrorKind = "DUPLICATE"
	// SubmitFailed is any other build/send/confirm failure.
	SubmitFailed SubmitErrorKind = "FAILED"
)

// duplicatePatterns are the error substrings the upstream RPC and program emit
// for already-recorded submissions. Substring matching is the fallback when the
// submitter could not classify structurally.
var duplicatePatterns = []string{
	"already been processed",
	"AlreadyProcessed",
	"duplicate transaction",
}

// SubmitError wraps a transaction submission failure with its classification.
type SubmitError struct {
	Kind      SubmitErrorKind
	Signature solana.Signature
	Message   string
	Cause     error
}

func (e *SubmitError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 3)
	parts = append(parts, "submit error")
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *SubmitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Classify wraps err as a SubmitError, detecting benign duplicates by message
// content when no structured classification is already attached.
func Classify(err error, sig solana.Signature) error {
	if err == nil {
		return nil
	}

	var submitErr *SubmitError
	if errors.As(err, &submitErr) {
		return err
	}

	kind := SubmitFailed
	if matchesDuplicate(err.Error()) {
		kind = SubmitDuplicate
	}

	return &SubmitError{
		Kind:      kind,
		Signature: sig,
		Message:   fmt.Sprintf("transaction %s", strings.ToLower(string(kind))),
		Cause:     err,
	}
}

// IsDuplicate reports whether err represents an already-processed submission.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}

	var submitErr *SubmitError
	if errors.As(err, &submitErr) {
		return submitErr.Kind == SubmitDuplicate
	}

	return matchesDuplicate(err.Error())
}

func matchesDuplicate(msg string) bool {
	for _, pattern := range duplicatePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

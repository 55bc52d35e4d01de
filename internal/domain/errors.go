package domain

import "errors"

var (
	// ErrValidation marks input that fails domain validation.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a missing record.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks an update rejected because of the record's current state.
	ErrConflict = errors.New("conflict")

	// ErrNoSigner marks an operation attempted without a usable admin keypair.
	ErrNoSigner = errors.New("no signer available")

	// ErrNothingToDo marks an operation whose every target is already in the
	// action's terminal state; no transaction is submitted.
	ErrNothingToDo = errors.New("nothing to do")
)

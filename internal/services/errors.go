package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidStatus = errors.New("invalid status")
	// ErrConflict is returned on a unique-key violation, e.g. a second row for
	// the same (user, source message id).
	ErrConflict = errors.New("already exists")

	// Extraction outcomes that skip a message.
	ErrNotApplication    = errors.New("not a job application")
	ErrMalformedResponse = errors.New("malformed model response")
	ErrRateLimited       = errors.New("model rate limited")
)

// StorageError is an unexpected persistence failure. It aborts the current
// user's run; the next run picks up where this one stopped.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("db error: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// FetchError is a mailbox failure that survived the retry budget.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("mailbox %s failed: %v", e.Op, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// IsTransient reports whether a per-message extraction failure should be
// retried on a later scan. Only a definite answer from the model (not an
// application, or unparseable) is final.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrNotApplication) && !errors.Is(err, ErrMalformedResponse)
}

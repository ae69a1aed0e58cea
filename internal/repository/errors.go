package repository

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrEmptyQueue       = errors.New("no pending tickets in queue")
	ErrAlreadyCompleted = errors.New("ticket already completed")
	ErrDuplicateEmail   = errors.New("email already registered")
	// ErrConflict marks a concurrent-write failure; the engine retries it a
	// bounded number of times before surfacing a transient error.
	ErrConflict = errors.New("concurrent write conflict")
)

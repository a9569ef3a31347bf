package store

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned by EventStore.Append when the subject's last
	// event is no longer the one the caller based its decision on.
	ErrConflict = errors.New("subject ledger changed concurrently")

	// ErrDuplicateKey is returned by EventStore.Append when an event with
	// the same idempotency key already exists.
	ErrDuplicateKey = errors.New("idempotency key already recorded")
)

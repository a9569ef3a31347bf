package store

import (
	"context"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
)

// EventStore is the canonical, append-only event ledger.
type EventStore interface {
	// GetByIdempotencyKey returns ErrNotFound when no event carries key.
	GetByIdempotencyKey(ctx context.Context, key string) (types.CanonicalEvent, error)

	// LastForSubject returns the subject's most recently accepted event, or
	// ErrNotFound.
	LastForSubject(ctx context.Context, subjectID string) (types.CanonicalEvent, error)

	// Append writes ev only if the subject's last event id still equals
	// prevEventID ("" meaning the subject has no events). Otherwise it
	// returns ErrConflict, or ErrDuplicateKey if ev's idempotency key is
	// already taken.
	Append(ctx context.Context, ev types.CanonicalEvent, prevEventID string) error
}

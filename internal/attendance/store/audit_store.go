package store

import (
	"context"
	"time"
)

// SubmissionAuditRecord captures one ingestion decision, accepted or not.
type SubmissionAuditRecord struct {
	DeviceID       string
	BadgeID        string
	IdempotencyKey string
	OccurredAt     *time.Time
	Outcome        string
	Reason         string
	EventID        string // set when an event was created or replayed
	DecidedAt      time.Time
}

// AuditStore persists submission decisions as an append-only log.
type AuditStore interface {
	RecordSubmission(ctx context.Context, rec SubmissionAuditRecord) error
	// HasDecision reports whether a submission with idempotencyKey was
	// already decided with outcome.
	HasDecision(ctx context.Context, idempotencyKey, outcome string) (bool, error)
}

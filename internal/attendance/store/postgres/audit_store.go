package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
)

type AuditStore struct {
	pool *pgxpool.Pool
}

func NewAuditStore(db *DB) *AuditStore {
	return &AuditStore{pool: db.pool}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *AuditStore) RecordSubmission(ctx context.Context, rec store.SubmissionAuditRecord) error {
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}
	if _, err := s.pool.Exec(ctx, `
INSERT INTO submission_audit (
    device_id, badge_id, idempotency_key, occurred_at, outcome, reason, event_id, decided_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.DeviceID, rec.BadgeID, rec.IdempotencyKey, rec.OccurredAt,
		rec.Outcome, nullable(rec.Reason), nullable(rec.EventID), rec.DecidedAt.UTC(),
	); err != nil {
		return fmt.Errorf("RecordSubmission: %w", err)
	}
	return nil
}

func (s *AuditStore) HasDecision(ctx context.Context, idempotencyKey, outcome string) (bool, error) {
	var found bool
	if err := s.pool.QueryRow(ctx, `
SELECT EXISTS (
    SELECT 1 FROM submission_audit WHERE idempotency_key = $1 AND outcome = $2
)`, idempotencyKey, outcome).Scan(&found); err != nil {
		return false, fmt.Errorf("HasDecision: %w", err)
	}
	return found, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
	dbpkg "github.com/BXA21/NFCCARDREADER-SYSTEM/internal/db"
)

type AuditStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAuditStore(db *sql.DB, writer *dbpkg.Worker) *AuditStore {
	return &AuditStore{db: db, writer: writer}
}

func (s *AuditStore) RecordSubmission(ctx context.Context, rec store.SubmissionAuditRecord) error {
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}

	var occurredMs any
	if rec.OccurredAt != nil {
		occurredMs = rec.OccurredAt.UTC().UnixMilli()
	}
	var reason, eventID any
	if rec.Reason != "" {
		reason = rec.Reason
	}
	if rec.EventID != "" {
		eventID = rec.EventID
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO submission_audit(
  device_id, badge_id, idempotency_key, occurred_at_ms, outcome, reason, event_id, decided_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.DeviceID, rec.BadgeID, rec.IdempotencyKey, occurredMs,
			rec.Outcome, reason, eventID, rec.DecidedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("RecordSubmission insert: %w", err)
		}
		return nil
	})
}

func (s *AuditStore) HasDecision(ctx context.Context, idempotencyKey, outcome string) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, `
SELECT EXISTS(
  SELECT 1 FROM submission_audit WHERE idempotency_key = ? AND outcome = ?
);
`, idempotencyKey, outcome).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("HasDecision query: %w", err)
	}
	return found == 1, nil
}

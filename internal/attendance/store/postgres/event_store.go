package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/pgxscan"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
)

type EventStore struct {
	pool *pgxpool.Pool
}

func NewEventStore(db *DB) *EventStore {
	return &EventStore{pool: db.pool}
}

type eventRow struct {
	EventID        string    `db:"event_id"`
	SubjectID      string    `db:"subject_id"`
	BadgeID        string    `db:"badge_id"`
	Direction      string    `db:"direction"`
	OccurredAt     time.Time `db:"occurred_at"`
	DeviceID       string    `db:"device_id"`
	IdempotencyKey string    `db:"idempotency_key"`
	ReceivedVia    string    `db:"received_via"`
	ReceivedAt     time.Time `db:"received_at"`
	AttendanceDay  string    `db:"attendance_day"`
}

func (r eventRow) event() types.CanonicalEvent {
	return types.CanonicalEvent{
		EventID:        r.EventID,
		SubjectID:      r.SubjectID,
		BadgeID:        r.BadgeID,
		Direction:      types.Direction(r.Direction),
		OccurredAt:     r.OccurredAt.UTC(),
		DeviceID:       r.DeviceID,
		IdempotencyKey: r.IdempotencyKey,
		ReceivedVia:    types.ReceivedVia(r.ReceivedVia),
		ReceivedAt:     r.ReceivedAt.UTC(),
		AttendanceDay:  r.AttendanceDay,
	}
}

const selectEvent = `
SELECT event_id, subject_id, badge_id, direction, occurred_at, device_id,
       idempotency_key, received_via, received_at, to_char(attendance_day, 'YYYY-MM-DD') AS attendance_day
FROM events`

func (s *EventStore) GetByIdempotencyKey(ctx context.Context, key string) (types.CanonicalEvent, error) {
	var row eventRow
	err := pgxscan.Get(ctx, s.pool, &row, selectEvent+` WHERE idempotency_key = $1`, key)
	if pgxscan.NotFound(err) {
		return types.CanonicalEvent{}, store.ErrNotFound
	}
	if err != nil {
		return types.CanonicalEvent{}, fmt.Errorf("GetByIdempotencyKey: %w", err)
	}
	return row.event(), nil
}

func (s *EventStore) LastForSubject(ctx context.Context, subjectID string) (types.CanonicalEvent, error) {
	var row eventRow
	err := pgxscan.Get(ctx, s.pool, &row, selectEvent+`
WHERE event_id = (SELECT last_event_id FROM subject_heads WHERE subject_id = $1)`, subjectID)
	if pgxscan.NotFound(err) {
		return types.CanonicalEvent{}, store.ErrNotFound
	}
	if err != nil {
		return types.CanonicalEvent{}, fmt.Errorf("LastForSubject: %w", err)
	}
	return row.event(), nil
}

// Append serialises writers for one subject with a transaction-scoped
// advisory lock, then swaps the subject head only if it still points at
// prevEventID.
func (s *EventStore) Append(ctx context.Context, ev types.CanonicalEvent, prevEventID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("Append begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ev.SubjectID); err != nil {
		return fmt.Errorf("Append lock subject: %w", err)
	}

	var head string
	err = tx.QueryRow(ctx, `SELECT last_event_id FROM subject_heads WHERE subject_id = $1`, ev.SubjectID).Scan(&head)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("Append read head: %w", err)
	}
	if head != prevEventID {
		return store.ErrConflict
	}

	tag, err := tx.Exec(ctx, `
INSERT INTO events (
    event_id, subject_id, badge_id, direction, occurred_at, device_id,
    idempotency_key, received_via, received_at, attendance_day
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::date)
ON CONFLICT (idempotency_key) DO NOTHING`,
		ev.EventID, ev.SubjectID, ev.BadgeID, string(ev.Direction), ev.OccurredAt.UTC(), ev.DeviceID,
		ev.IdempotencyKey, string(ev.ReceivedVia), ev.ReceivedAt.UTC(), ev.AttendanceDay,
	)
	if err != nil {
		return fmt.Errorf("Append insert event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrDuplicateKey
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO subject_heads (subject_id, last_event_id) VALUES ($1, $2)
ON CONFLICT (subject_id) DO UPDATE SET last_event_id = EXCLUDED.last_event_id`,
		ev.SubjectID, ev.EventID); err != nil {
		return fmt.Errorf("Append move head: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("Append commit: %w", err)
	}
	return nil
}

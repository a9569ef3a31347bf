package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
	dbpkg "github.com/BXA21/NFCCARDREADER-SYSTEM/internal/db"
)

type EventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewEventStore(db *sql.DB, writer *dbpkg.Worker) *EventStore {
	return &EventStore{db: db, writer: writer}
}

const eventColumns = `event_id, subject_id, badge_id, direction, occurred_at_ms,
  device_id, idempotency_key, received_via, received_at_ms, attendance_day`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (types.CanonicalEvent, error) {
	var (
		ev                 types.CanonicalEvent
		direction, via     string
		occurredMs, recvMs int64
	)
	err := row.Scan(&ev.EventID, &ev.SubjectID, &ev.BadgeID, &direction, &occurredMs,
		&ev.DeviceID, &ev.IdempotencyKey, &via, &recvMs, &ev.AttendanceDay)
	if err != nil {
		return types.CanonicalEvent{}, err
	}
	ev.Direction = types.Direction(direction)
	ev.ReceivedVia = types.ReceivedVia(via)
	ev.OccurredAt = time.UnixMilli(occurredMs).UTC()
	ev.ReceivedAt = time.UnixMilli(recvMs).UTC()
	return ev, nil
}

func (s *EventStore) GetByIdempotencyKey(ctx context.Context, key string) (types.CanonicalEvent, error) {
	ev, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE idempotency_key = ?;`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return types.CanonicalEvent{}, store.ErrNotFound
	}
	if err != nil {
		return types.CanonicalEvent{}, fmt.Errorf("GetByIdempotencyKey query: %w", err)
	}
	return ev, nil
}

func (s *EventStore) LastForSubject(ctx context.Context, subjectID string) (types.CanonicalEvent, error) {
	ev, err := scanEvent(s.db.QueryRowContext(ctx, `
SELECT `+eventColumns+`
FROM events
WHERE event_id = (SELECT last_event_id FROM subject_heads WHERE subject_id = ?);
`, subjectID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.CanonicalEvent{}, store.ErrNotFound
	}
	if err != nil {
		return types.CanonicalEvent{}, fmt.Errorf("LastForSubject query: %w", err)
	}
	return ev, nil
}

func (s *EventStore) Append(ctx context.Context, ev types.CanonicalEvent, prevEventID string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM events WHERE idempotency_key = ?;`, ev.IdempotencyKey).Scan(&exists)
		if err == nil {
			return store.ErrDuplicateKey
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("Append check key: %w", err)
		}

		var head sql.NullString
		err = tx.QueryRowContext(ctx,
			`SELECT last_event_id FROM subject_heads WHERE subject_id = ?;`, ev.SubjectID).Scan(&head)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("Append read head: %w", err)
		}
		if head.String != prevEventID {
			return store.ErrConflict
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO events(`+eventColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			ev.EventID, ev.SubjectID, ev.BadgeID, string(ev.Direction), ev.OccurredAt.UTC().UnixMilli(),
			ev.DeviceID, ev.IdempotencyKey, string(ev.ReceivedVia), ev.ReceivedAt.UTC().UnixMilli(), ev.AttendanceDay,
		); err != nil {
			return fmt.Errorf("Append insert event: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO subject_heads(subject_id, last_event_id) VALUES (?, ?)
ON CONFLICT(subject_id) DO UPDATE SET last_event_id = excluded.last_event_id;
`, ev.SubjectID, ev.EventID); err != nil {
			return fmt.Errorf("Append move head: %w", err)
		}
		return nil
	})
}

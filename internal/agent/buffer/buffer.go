// Package buffer is the edge's durable capture queue. Every tap is committed
// to a local SQLite file with synchronous=FULL before the capture loop
// acknowledges it, and stays there until the server has answered for it.
package buffer

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/clock"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/db"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/ids"
)

var ErrNotFound = errors.New("capture not found")

//go:embed migrations/*.sql
var migrationFiles embed.FS

func migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic("buffer: migrations sub-FS: " + err.Error())
	}
	return sub
}

// Capture is a tap as observed by the capture loop.
type Capture struct {
	BadgeID             string
	DeviceID            string
	CapturedAt          time.Time
	OptimisticDirection string
}

// Record is a persisted capture and its delivery state. LocalID doubles as
// the idempotency key sent to the server.
type Record struct {
	LocalID             string
	BadgeID             string
	DeviceID            string
	CapturedAt          time.Time
	State               State
	AttemptCount        int
	LastAttemptAt       *time.Time
	OptimisticDirection string
	AckedAt             *time.Time
	Outcome             string
	RejectReason        string
}

type Stats struct {
	Pending       int64
	Failed        int64
	Synced        int64
	Rejected      int64
	OldestPending *time.Time
}

// Unsent is the number of records still waiting for delivery.
func (s Stats) Unsent() int64 { return s.Pending + s.Failed }

type Options struct {
	Path     string
	IDs      ids.Generator
	Clock    clock.Clock
	Observer Observer
}

type Buffer struct {
	db       *sql.DB
	writer   *db.Worker
	ids      ids.Generator
	clock    clock.Clock
	observer Observer
}

func Open(ctx context.Context, opts Options) (*Buffer, error) {
	conn, err := db.Open(ctx, db.Config{
		Path:        opts.Path,
		Synchronous: db.SyncFull,
		Migrations:  migrations(),
	})
	if err != nil {
		return nil, fmt.Errorf("open buffer: %w", err)
	}
	return newBuffer(conn, opts), nil
}

func newBuffer(conn *sql.DB, opts Options) *Buffer {
	if opts.IDs == nil {
		opts.IDs = ids.UUIDv7{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Buffer{
		db:       conn,
		writer:   db.NewWorker(conn),
		ids:      opts.IDs,
		clock:    opts.Clock,
		observer: opts.Observer,
	}
}

// Close drains pending writes and closes the database.
func (b *Buffer) Close() error {
	b.writer.Close()
	return b.db.Close()
}

// Enqueue persists c as PENDING and returns its local id once the insert
// is committed.
func (b *Buffer) Enqueue(ctx context.Context, c Capture) (string, error) {
	if strings.TrimSpace(c.BadgeID) == "" || strings.TrimSpace(c.DeviceID) == "" {
		return "", errors.New("Enqueue: badge and device id are required")
	}

	localID := b.ids.Generate()
	now := b.clock.Now().UTC()

	err := b.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO captures(local_id, badge_id, device_id, captured_at_ms, state, optimistic_direction, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?);
`, localID, c.BadgeID, c.DeviceID, c.CapturedAt.UTC().UnixMilli(), string(StatePending),
			c.OptimisticDirection, now.UnixMilli())
		return err
	})
	if err != nil {
		return "", fmt.Errorf("Enqueue insert: %w", err)
	}

	b.notify(Transition{LocalID: localID, To: StatePending})
	return localID, nil
}

const recordColumns = `local_id, badge_id, device_id, captured_at_ms, state, attempt_count,
  last_attempt_at_ms, optimistic_direction, acked_at_ms, outcome, reject_reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		r               Record
		state           string
		capturedMs      int64
		lastMs, ackedMs sql.NullInt64
	)
	if err := row.Scan(&r.LocalID, &r.BadgeID, &r.DeviceID, &capturedMs, &state, &r.AttemptCount,
		&lastMs, &r.OptimisticDirection, &ackedMs, &r.Outcome, &r.RejectReason); err != nil {
		return Record{}, err
	}
	r.State = State(state)
	r.CapturedAt = time.UnixMilli(capturedMs).UTC()
	r.LastAttemptAt = msPtr(lastMs)
	r.AckedAt = msPtr(ackedMs)
	return r, nil
}

func msPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

// ListPending returns up to limit PENDING or FAILED records, oldest capture
// first.
func (b *Buffer) ListPending(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := b.db.QueryContext(ctx, `
SELECT `+recordColumns+`
FROM captures
WHERE state IN ('PENDING', 'FAILED')
ORDER BY captured_at_ms ASC, seq ASC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("ListPending query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ListPending scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListPending rows: %w", err)
	}
	return out, nil
}

func (b *Buffer) Get(ctx context.Context, localID string) (Record, error) {
	r, err := scanRecord(b.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM captures WHERE local_id = ?;`, localID))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("Get query: %w", err)
	}
	return r, nil
}

// MarkSynced records the server's acknowledgement. outcome is a short
// summary of the server result. Already-synced records are left unchanged.
func (b *Buffer) MarkSynced(ctx context.Context, localID, outcome string) error {
	return b.transition(ctx, localID, StateSynced, func(ctx context.Context, tx *sql.Tx, now int64) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE captures SET state = ?, acked_at_ms = ?, outcome = ? WHERE local_id = ?;`,
			string(StateSynced), now, outcome, localID)
		return err
	})
}

// MarkFailed counts a failed delivery attempt.
func (b *Buffer) MarkFailed(ctx context.Context, localID string) error {
	return b.transition(ctx, localID, StateFailed, func(ctx context.Context, tx *sql.Tx, now int64) error {
		_, err := tx.ExecContext(ctx, `
UPDATE captures
SET state = ?, attempt_count = attempt_count + 1, last_attempt_at_ms = ?
WHERE local_id = ?;
`, string(StateFailed), now, localID)
		return err
	})
}

// MarkRejected records a terminal server rejection. The record is
// acknowledged and never resubmitted.
func (b *Buffer) MarkRejected(ctx context.Context, localID, reason string) error {
	return b.transition(ctx, localID, StateRejected, func(ctx context.Context, tx *sql.Tx, now int64) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE captures SET state = ?, acked_at_ms = ?, reject_reason = ? WHERE local_id = ?;`,
			string(StateRejected), now, reason, localID)
		return err
	})
}

type applyFn func(ctx context.Context, tx *sql.Tx, nowMs int64) error

// transition checks the move from the record's current state to to and
// applies it in one write transaction. Self-transitions of terminal states
// are no-ops.
func (b *Buffer) transition(ctx context.Context, localID string, to State, apply applyFn) error {
	var (
		from    State
		applied bool
	)
	err := b.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var cur string
		err := tx.QueryRowContext(ctx,
			`SELECT state FROM captures WHERE local_id = ?;`, localID).Scan(&cur)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		from = State(cur)
		if err := checkTransition(from, to); err != nil {
			return err
		}
		if from == to && to.Terminal() {
			return nil
		}

		if err := apply(ctx, tx, b.clock.Now().UTC().UnixMilli()); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark %s %s: %w", strings.ToLower(string(to)), localID, err)
	}

	if applied {
		b.notify(Transition{LocalID: localID, From: from, To: to})
	}
	return nil
}

func (b *Buffer) notify(t Transition) {
	if b.observer != nil {
		b.observer(t)
	}
}

func (b *Buffer) Stats(ctx context.Context) (Stats, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM captures GROUP BY state;`)
	if err != nil {
		return Stats{}, fmt.Errorf("Stats query: %w", err)
	}
	defer rows.Close()

	var st Stats
	for rows.Next() {
		var (
			state string
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return Stats{}, fmt.Errorf("Stats scan: %w", err)
		}
		switch State(state) {
		case StatePending:
			st.Pending = n
		case StateFailed:
			st.Failed = n
		case StateSynced:
			st.Synced = n
		case StateRejected:
			st.Rejected = n
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("Stats rows: %w", err)
	}

	var oldest sql.NullInt64
	if err := b.db.QueryRowContext(ctx,
		`SELECT MIN(captured_at_ms) FROM captures WHERE state IN ('PENDING', 'FAILED');`,
	).Scan(&oldest); err != nil {
		return Stats{}, fmt.Errorf("Stats oldest: %w", err)
	}
	st.OldestPending = msPtr(oldest)
	return st, nil
}

// PruneAcknowledged deletes SYNCED and REJECTED records acknowledged before
// cutoff. Unsent records are never deleted.
func (b *Buffer) PruneAcknowledged(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := b.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM captures
WHERE state IN ('SYNCED', 'REJECTED') AND acked_at_ms < ?;
`, cutoff.UTC().UnixMilli())
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("PruneAcknowledged: %w", err)
	}
	return n, nil
}

// PruneOlderThan lets a retention.Pruner drive PruneAcknowledged.
func (b *Buffer) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return b.PruneAcknowledged(ctx, cutoff)
}

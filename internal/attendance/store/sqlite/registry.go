package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
	dbpkg "github.com/BXA21/NFCCARDREADER-SYSTEM/internal/db"
)

// Registry reads device credentials and badge bindings.
type Registry struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewRegistry(db *sql.DB, writer *dbpkg.Worker) *Registry {
	return &Registry{db: db, writer: writer}
}

func (s *Registry) GetCredential(ctx context.Context, deviceID string) (store.DeviceCredential, error) {
	deviceID = strings.TrimSpace(deviceID)

	var (
		digest  []byte
		enabled int
	)
	err := s.db.QueryRowContext(ctx, `
SELECT key_digest, enabled FROM devices WHERE device_id = ?;
`, deviceID).Scan(&digest, &enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return store.DeviceCredential{}, store.ErrNotFound
	}
	if err != nil {
		return store.DeviceCredential{}, fmt.Errorf("GetCredential query: %w", err)
	}

	return store.DeviceCredential{
		DeviceID:  deviceID,
		KeyDigest: digest,
		Enabled:   enabled == 1 && len(digest) > 0,
	}, nil
}

// MarkSeen ensures a device row exists (even for unknown devices) and
// updates last_seen.
func (s *Registry) MarkSeen(ctx context.Context, deviceID string, _ bool, t time.Time) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	ms := t.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureDevice(ctx, tx, deviceID, ms); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE devices
SET last_seen_at_ms = ?,
    updated_at_ms   = ?
WHERE device_id = ?;
`, ms, ms, deviceID); err != nil {
			return fmt.Errorf("MarkSeen update device: %w", err)
		}
		return nil
	})
}

func (s *Registry) GetBinding(ctx context.Context, badgeID string) (store.BadgeBinding, error) {
	var (
		subject sql.NullString
		state   string
		active  int
	)
	err := s.db.QueryRowContext(ctx, `
SELECT subject_id, state, subject_active FROM badge_bindings WHERE badge_id = ?;
`, badgeID).Scan(&subject, &state, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return store.BadgeBinding{}, store.ErrNotFound
	}
	if err != nil {
		return store.BadgeBinding{}, fmt.Errorf("GetBinding query: %w", err)
	}

	return store.BadgeBinding{
		BadgeID:       badgeID,
		SubjectID:     subject.String,
		State:         store.BindingState(state),
		SubjectActive: active == 1,
	}, nil
}

func (s *Registry) UpsertDevice(ctx context.Context, cred store.DeviceCredential) error {
	now := time.Now().UTC().UnixMilli()
	enabled := 0
	if cred.Enabled {
		enabled = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureDevice(ctx, tx, cred.DeviceID, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE devices
SET key_digest = ?, enabled = ?, updated_at_ms = ?
WHERE device_id = ?;
`, cred.KeyDigest, enabled, now, cred.DeviceID); err != nil {
			return fmt.Errorf("UpsertDevice: %w", err)
		}
		return nil
	})
}

func (s *Registry) UpsertBinding(ctx context.Context, b store.BadgeBinding) error {
	now := time.Now().UTC().UnixMilli()
	var subject any
	if b.SubjectID != "" {
		subject = b.SubjectID
	}
	active := 0
	if b.SubjectActive {
		active = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO badge_bindings(badge_id, subject_id, state, subject_active, updated_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(badge_id) DO UPDATE SET
  subject_id     = excluded.subject_id,
  state          = excluded.state,
  subject_active = excluded.subject_active,
  updated_at_ms  = excluded.updated_at_ms;
`, b.BadgeID, subject, string(b.State), active, now); err != nil {
			return fmt.Errorf("UpsertBinding: %w", err)
		}
		return nil
	})
}

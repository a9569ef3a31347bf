package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/pgxscan"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
)

// Registry reads device credentials and badge bindings.
type Registry struct {
	pool *pgxpool.Pool
}

func NewRegistry(db *DB) *Registry {
	return &Registry{pool: db.pool}
}

func (s *Registry) GetCredential(ctx context.Context, deviceID string) (store.DeviceCredential, error) {
	deviceID = strings.TrimSpace(deviceID)

	var row struct {
		KeyDigest []byte `db:"key_digest"`
		Enabled   bool   `db:"enabled"`
	}
	err := pgxscan.Get(ctx, s.pool, &row,
		`SELECT key_digest, enabled FROM devices WHERE device_id = $1`, deviceID)
	if pgxscan.NotFound(err) {
		return store.DeviceCredential{}, store.ErrNotFound
	}
	if err != nil {
		return store.DeviceCredential{}, fmt.Errorf("GetCredential: %w", err)
	}

	return store.DeviceCredential{
		DeviceID:  deviceID,
		KeyDigest: row.KeyDigest,
		Enabled:   row.Enabled && len(row.KeyDigest) > 0,
	}, nil
}

func (s *Registry) MarkSeen(ctx context.Context, deviceID string, _ bool, t time.Time) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}

	if _, err := s.pool.Exec(ctx, `
INSERT INTO devices (device_id, enabled, last_seen_at, created_at, updated_at)
VALUES ($1, FALSE, $2, $2, $2)
ON CONFLICT (device_id) DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at, updated_at = EXCLUDED.updated_at`,
		deviceID, t.UTC()); err != nil {
		return fmt.Errorf("MarkSeen: %w", err)
	}
	return nil
}

func (s *Registry) GetBinding(ctx context.Context, badgeID string) (store.BadgeBinding, error) {
	var row struct {
		SubjectID     *string `db:"subject_id"`
		State         string  `db:"state"`
		SubjectActive bool    `db:"subject_active"`
	}
	err := pgxscan.Get(ctx, s.pool, &row,
		`SELECT subject_id, state, subject_active FROM badge_bindings WHERE badge_id = $1`, badgeID)
	if pgxscan.NotFound(err) {
		return store.BadgeBinding{}, store.ErrNotFound
	}
	if err != nil {
		return store.BadgeBinding{}, fmt.Errorf("GetBinding: %w", err)
	}

	b := store.BadgeBinding{
		BadgeID:       badgeID,
		State:         store.BindingState(row.State),
		SubjectActive: row.SubjectActive,
	}
	if row.SubjectID != nil {
		b.SubjectID = *row.SubjectID
	}
	return b, nil
}

func (s *Registry) UpsertDevice(ctx context.Context, cred store.DeviceCredential) error {
	if _, err := s.pool.Exec(ctx, `
INSERT INTO devices (device_id, key_digest, enabled)
VALUES ($1, $2, $3)
ON CONFLICT (device_id) DO UPDATE SET
    key_digest = EXCLUDED.key_digest,
    enabled    = EXCLUDED.enabled,
    updated_at = now()`,
		cred.DeviceID, cred.KeyDigest, cred.Enabled); err != nil {
		return fmt.Errorf("UpsertDevice: %w", err)
	}
	return nil
}

func (s *Registry) UpsertBinding(ctx context.Context, b store.BadgeBinding) error {
	var subject *string
	if b.SubjectID != "" {
		subject = &b.SubjectID
	}
	if _, err := s.pool.Exec(ctx, `
INSERT INTO badge_bindings (badge_id, subject_id, state, subject_active)
VALUES ($1, $2, $3, $4)
ON CONFLICT (badge_id) DO UPDATE SET
    subject_id     = EXCLUDED.subject_id,
    state          = EXCLUDED.state,
    subject_active = EXCLUDED.subject_active,
    updated_at     = now()`,
		b.BadgeID, subject, string(b.State), b.SubjectActive); err != nil {
		return fmt.Errorf("UpsertBinding: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
)

type HeartbeatStore struct {
	pool *pgxpool.Pool
}

func NewHeartbeatStore(db *DB) *HeartbeatStore {
	return &HeartbeatStore{pool: db.pool}
}

func (s *HeartbeatStore) UpsertHeartbeat(ctx context.Context, deviceID string, rec store.HeartbeatRecord) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	at := rec.ReceivedAt.UTC()
	req := rec.Request

	var uptimeMs, seq *int64
	if req.UptimeSeconds != 0 {
		v := int64(req.UptimeSeconds) * 1000
		uptimeMs = &v
	}
	if req.Sequence != 0 {
		v := int64(req.Sequence)
		seq = &v
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("UpsertHeartbeat begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
INSERT INTO devices (device_id, enabled, created_at, updated_at)
VALUES ($1, FALSE, $2, $2)
ON CONFLICT (device_id) DO NOTHING`, deviceID, at); err != nil {
		return fmt.Errorf("UpsertHeartbeat ensure device: %w", err)
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO device_heartbeats (
    device_id, received_at, seq, uptime_ms, agent_version,
    pending_count, failed_count, rejected_count, oldest_pending_at, ip
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		deviceID, at, seq, uptimeMs, strings.TrimSpace(req.AgentVersion),
		req.PendingCount, req.FailedCount, req.RejectedCount, nullable(req.OldestPendingAt), strings.TrimSpace(req.IP),
	); err != nil {
		return fmt.Errorf("UpsertHeartbeat insert heartbeat: %w", err)
	}

	if _, err := tx.Exec(ctx, `
UPDATE devices
SET last_seen_at = $2, last_ip = $3, last_agent_version = $4, last_pending_count = $5, updated_at = $2
WHERE device_id = $1`,
		deviceID, at, strings.TrimSpace(req.IP), strings.TrimSpace(req.AgentVersion), req.PendingCount,
	); err != nil {
		return fmt.Errorf("UpsertHeartbeat update device snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("UpsertHeartbeat commit: %w", err)
	}
	return nil
}

func (s *HeartbeatStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM device_heartbeats WHERE received_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("PruneOlderThan: %w", err)
	}
	return tag.RowsAffected(), nil
}

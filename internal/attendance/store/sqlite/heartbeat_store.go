package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
	dbpkg "github.com/BXA21/NFCCARDREADER-SYSTEM/internal/db"
)

type HeartbeatStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewHeartbeatStore(db *sql.DB, writer *dbpkg.Worker) *HeartbeatStore {
	return &HeartbeatStore{db: db, writer: writer}
}

func (s *HeartbeatStore) UpsertHeartbeat(ctx context.Context, deviceID string, rec store.HeartbeatRecord) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil
	}

	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	recvMs := rec.ReceivedAt.UTC().UnixMilli()
	req := rec.Request

	var uptimeMs, seq, oldest any
	if req.UptimeSeconds != 0 {
		uptimeMs = int64(req.UptimeSeconds) * 1000
	}
	if req.Sequence != 0 {
		seq = req.Sequence
	}
	if req.OldestPendingAt != "" {
		oldest = req.OldestPendingAt
	}
	version := strings.TrimSpace(req.AgentVersion)
	ip := strings.TrimSpace(req.IP)

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureDevice(ctx, tx, deviceID, recvMs); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO device_heartbeats(
  device_id, received_at_ms, seq, uptime_ms, agent_version,
  pending_count, failed_count, rejected_count, oldest_pending_at, ip
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, deviceID, recvMs, seq, uptimeMs, version,
			req.PendingCount, req.FailedCount, req.RejectedCount, oldest, ip); err != nil {
			return fmt.Errorf("UpsertHeartbeat insert heartbeat: %w", err)
		}

		// Snapshot on the device row for "current status" reads.
		if _, err := tx.ExecContext(ctx, `
UPDATE devices
SET last_seen_at_ms    = ?,
    last_ip            = ?,
    last_agent_version = ?,
    last_pending_count = ?,
    updated_at_ms      = ?
WHERE device_id = ?;
`, recvMs, ip, version, req.PendingCount, recvMs, deviceID); err != nil {
			return fmt.Errorf("UpsertHeartbeat update device snapshot: %w", err)
		}

		return nil
	})
}

// PruneOlderThan deletes heartbeat rows received before cutoff and returns
// the number deleted.
func (s *HeartbeatStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM device_heartbeats
WHERE received_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}

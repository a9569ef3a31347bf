package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Synchronous levels accepted by Config.Synchronous.
const (
	SyncNormal = "NORMAL"
	SyncFull   = "FULL"
)

type Config struct {
	Path string // e.g. "./data/attendance.db"
	Env  string // "dev" | "prod"

	// Synchronous is the SQLite synchronous pragma. NORMAL is fine for the
	// server (WAL already protects committed data against process crashes);
	// the edge buffer uses FULL so an acknowledged tap survives power loss.
	Synchronous string

	// Migrations holds the *.sql files applied by Migrate, at the root of
	// the FS (use fs.Sub on an embed.FS).
	Migrations fs.FS
}

// DSN builds the modernc.org/sqlite DSN with per-connection PRAGMAs.
//   - foreign_keys ON
//   - WAL for concurrent readers
//   - synchronous as requested
//   - busy_timeout to reduce SQLITE_BUSY under load
func DSN(path, synchronous string) string {
	if synchronous == "" {
		synchronous = SyncNormal
	}
	return fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(%s)&_pragma=busy_timeout(5000)",
		path, synchronous,
	)
}

func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.Path == "" {
		cfg.Path = "./data/attendance.db"
	}
	if cfg.Env == "" {
		cfg.Env = "dev"
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(cfg.Path, cfg.Synchronous))
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	// Single connection: SQLite serialises writers anyway, and one
	// connection means the PRAGMAs above apply to every statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if cfg.Migrations != nil {
		if err := Migrate(ctx, db, cfg.Migrations); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return db, nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store/memory"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store/postgres"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store/sqlite"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/config"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/db"
)

type registry interface {
	store.DeviceStore
	store.BindingStore
	store.Provisioner
}

type stores struct {
	Registry   registry
	Events     store.EventStore
	Audit      store.AuditStore
	Heartbeats store.HeartbeatStore
	close      func()
}

func (s *stores) Close() {
	if s.close != nil {
		s.close()
	}
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*stores, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory stores; events are lost on restart")
		return &stores{
			Registry:   memory.NewRegistry(),
			Events:     memory.NewEventStore(),
			Audit:      memory.NewAuditStore(),
			Heartbeats: memory.NewHeartbeatStore(),
		}, nil

	case config.StoreSQLite:
		conn, err := db.Open(ctx, db.Config{
			Path:       cfg.DBPath,
			Env:        cfg.Env,
			Migrations: sqlite.Migrations(),
		})
		if err != nil {
			return nil, err
		}
		writer := db.NewWorker(conn)
		logger.Info("sqlite store ready", "path", cfg.DBPath)
		return &stores{
			Registry:   sqlite.NewRegistry(conn, writer),
			Events:     sqlite.NewEventStore(conn, writer),
			Audit:      sqlite.NewAuditStore(conn, writer),
			Heartbeats: sqlite.NewHeartbeatStore(conn, writer),
			close: func() {
				writer.Close()
				_ = conn.Close()
			},
		}, nil

	case config.StorePostgres:
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("ATTENDANCE_POSTGRES_URL is required for the postgres store")
		}
		pg, err := postgres.Open(ctx, postgres.Config{ConnString: cfg.PostgresURL})
		if err != nil {
			return nil, err
		}
		logger.Info("postgres store ready")
		return &stores{
			Registry:   postgres.NewRegistry(pg),
			Events:     postgres.NewEventStore(pg),
			Audit:      postgres.NewAuditStore(pg),
			Heartbeats: postgres.NewHeartbeatStore(pg),
			close:      pg.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// seed provisions the configured dev devices and bindings.
func seed(ctx context.Context, st *stores, cfg config.Config) error {
	if err := store.SeedDev(ctx, st.Registry, cfg.Devices, cfg.Bindings); err != nil {
		return fmt.Errorf("seed dev registry: %w", err)
	}
	slog.InfoContext(ctx, "dev registry seeded", "devices", len(cfg.Devices), "bindings", len(cfg.Bindings))
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/enrollment"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/publish"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/service"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/clock"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/config"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/grpcapi"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/httpapi"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/logging"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/retention"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	v := config.New()

	root := &cobra.Command{
		Use:          "attendance-server",
		Short:        "Badge presence ingestion server",
		SilenceUsage: true,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ingestion HTTP and gRPC APIs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config.Load(v))
		},
	}
	f := serve.Flags()
	f.String("http-addr", "", "HTTP listen address (ATTENDANCE_HTTP_ADDR)")
	f.String("grpc-addr", "", `gRPC listen address, "off" to disable (ATTENDANCE_GRPC_ADDR)`)
	f.String("store", "", "memory | sqlite | postgres (ATTENDANCE_STORE)")
	f.String("db-path", "", "SQLite database path (ATTENDANCE_DB_PATH)")
	f.String("log-level", "", "debug | info | warn | error (ATTENDANCE_LOG_LEVEL)")
	bindFlags(v, f, "http_addr", "grpc_addr", "store", "db_path", "log_level")

	root.AddCommand(serve)
	return root
}

// bindFlags binds each key to the flag of the same name with dashes.
// Unset flags fall through to the environment and defaults.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys ...string) {
	for _, key := range keys {
		if fl := fs.Lookup(strings.ReplaceAll(key, "_", "-")); fl != nil {
			_ = v.BindPFlag(key, fl)
		}
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := logging.New(os.Stdout, cfg.LogLevel, logging.FormatJSON).With("service", "attendance-server")
	slog.SetDefault(logger)
	clk := clock.Real()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.Env == "dev" {
		if err := seed(ctx, st, cfg); err != nil {
			return err
		}
	}

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	mailbox := enrollment.NewMailbox(cfg.MailboxTTL, clk)
	registry := service.NewDeviceRegistry(st.Registry, clk)
	ingestion := service.NewIngestionService(service.IngestionDependencies{
		Registry:  registry,
		Events:    st.Events,
		Bindings:  st.Registry,
		Audit:     st.Audit,
		Mailbox:   mailbox,
		Publisher: publisher,
		Clock:     clk,
		Logger:    logger,
		Config: service.IngestionConfig{
			AntiPassbackWindow: cfg.AntiPassbackWindow,
			LiveThreshold:      cfg.LiveThreshold,
			Day:                service.DayBoundary{Location: cfg.DayZone, Cutoff: cfg.DayCutoff},
		},
	})
	heartbeats := service.NewHeartbeatService(st.Heartbeats, registry, clk, logger)

	pruner := retention.New(st.Heartbeats, retention.Config{
		Name:      "heartbeats",
		Retention: time.Duration(cfg.HeartbeatRetentionDays) * 24 * time.Hour,
		Interval:  time.Duration(cfg.PruneIntervalHours) * time.Hour,
	}, clk, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	if len(cfg.ProvisioningTokens) == 0 {
		logger.Warn("no provisioning tokens configured; enrollment polling is disabled")
	}

	httpSrv := httpapi.NewServer(httpapi.Dependencies{
		Logger:             logger,
		Addr:               cfg.HTTPAddr,
		Clock:              clk,
		IngestionService:   ingestion,
		HeartbeatService:   heartbeats,
		EnrollmentService:  service.NewEnrollmentService(mailbox, st.Registry, registry, logger),
		ProvisioningTokens: cfg.ProvisioningTokens,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, 2)

	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr, "env", cfg.Env, "store", cfg.Store)
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
			cancel()
		}
	}()

	var grpcSrv *grpcapi.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen %s: %w", cfg.GRPCAddr, err)
		}
		grpcSrv = grpcapi.NewServer(grpcapi.Dependencies{
			Logger:           logger,
			Clock:            clk,
			IngestionService: ingestion,
			HeartbeatService: heartbeats,
		})
		go func() {
			logger.Info("grpc listening", "addr", cfg.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				errc <- fmt.Errorf("grpc server: %w", err)
				cancel()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	if grpcSrv != nil {
		grpcSrv.Shutdown(shutdownCtx)
	}

	select {
	case err := <-errc:
		return err
	default:
		return nil
	}
}

type closablePublisher interface {
	service.EventPublisher
	Close() error
}

func newPublisher(cfg config.Config, logger *slog.Logger) closablePublisher {
	if len(cfg.KafkaBrokers) == 0 {
		return publish.Nop{}
	}
	logger.Info("publishing events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	return publish.NewKafka(publish.KafkaConfig{
		Brokers: strings.Join(cfg.KafkaBrokers, ","),
		Topic:   cfg.KafkaTopic,
	}, logger)
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent/buffer"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent/config"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/logging"
)

var version = "dev"

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	root := &cobra.Command{
		Use:          "attendance-agent",
		Short:        "Badge reader agent: capture taps offline-first and sync them to the server",
		SilenceUsage: true,
		Version:      version,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "agent.yaml", "path to the agent YAML config")

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(runCmd(&configPath, &verbose), statusCmd(&configPath), pruneCmd(&configPath))
	return root
}

func runCmd(configPath *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Capture badge taps and sync them until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			level := cfg.Logging.Level
			if *verbose {
				level = "debug"
			}
			logger := logging.New(cmd.ErrOrStderr(), level, logging.FormatText)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := agent.New(ctx, agent.Options{
				Config:  cfg,
				Version: version,
				Console: cmd.OutOrStdout(),
				Logger:  logger,
			})
			if err != nil {
				return err
			}
			runErr := a.Run(ctx)
			if err := a.Close(); err != nil {
				logger.Warn("agent close", "err", err)
			}
			return runErr
		},
	}
}

func statusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show buffered capture counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBuffer(cmd.Context(), *configPath, func(ctx context.Context, _ config.Config, buf *buffer.Buffer) error {
				stats, err := buf.Stats(ctx)
				if err != nil {
					return err
				}
				printStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}
}

func pruneCmd(configPath *string) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete acknowledged captures past the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBuffer(cmd.Context(), *configPath, func(ctx context.Context, cfg config.Config, buf *buffer.Buffer) error {
				keep := olderThan
				if keep <= 0 {
					keep = cfg.Retention()
				}
				if keep <= 0 {
					return fmt.Errorf("retention is disabled; pass --older-than")
				}
				deleted, err := buf.PruneAcknowledged(ctx, time.Now().Add(-keep))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d acknowledged capture(s) older than %s\n", deleted, keep)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "override offline.retention_days")
	return cmd
}

// withBuffer opens the configured buffer without requiring server
// credentials.
func withBuffer(ctx context.Context, path string, fn func(context.Context, config.Config, *buffer.Buffer) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return err
	}
	buf, err := buffer.Open(ctx, buffer.Options{Path: cfg.Offline.DatabasePath})
	if err != nil {
		return err
	}
	defer buf.Close()
	return fn(ctx, cfg, buf)
}

func printStats(w io.Writer, s buffer.Stats) {
	fmt.Fprintf(w, "pending:  %d\n", s.Pending)
	fmt.Fprintf(w, "failed:   %d\n", s.Failed)
	fmt.Fprintf(w, "synced:   %d\n", s.Synced)
	fmt.Fprintf(w, "rejected: %d\n", s.Rejected)
	if s.OldestPending != nil {
		fmt.Fprintf(w, "oldest unsent: %s (%s ago)\n",
			s.OldestPending.Local().Format(time.RFC3339), time.Since(*s.OldestPending).Round(time.Second))
	}
}

// Package agent assembles the edge reader agent: capture loop, durable
// buffer, sync engine, heartbeat reporter and buffer retention.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent/buffer"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent/capture"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent/client"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent/config"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent/heartbeat"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent/syncer"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/clock"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/retention"
)

const pruneInterval = 6 * time.Hour

type Options struct {
	Config  config.Config
	Version string

	// Reader defaults to the line source named by Config.Reader.Source.
	Reader capture.Reader
	// Submitter defaults to the transport named by Config.API.Transport.
	Submitter client.Submitter
	// Console receives operator feedback. Defaults to stdout.
	Console io.Writer

	Clock  clock.Clock
	Logger *slog.Logger
}

type Agent struct {
	cfg       config.Config
	buf       *buffer.Buffer
	submitter client.Submitter
	reader    capture.Reader
	console   *capture.Console
	loop      *capture.Loop
	engine    *syncer.Engine
	reporter  *heartbeat.Reporter
	pruner    *retention.Pruner
	logger    *slog.Logger
}

func New(ctx context.Context, opts Options) (*Agent, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}
	logger := opts.Logger.With("device_id", cfg.Device.DeviceID)

	buf, err := buffer.Open(ctx, buffer.Options{Path: cfg.Offline.DatabasePath, Clock: opts.Clock})
	if err != nil {
		return nil, err
	}

	submitter := opts.Submitter
	if submitter == nil {
		if submitter, err = NewSubmitter(cfg); err != nil {
			_ = buf.Close()
			return nil, err
		}
	}

	reader := opts.Reader
	if reader == nil {
		reader = OpenSource(cfg.Reader.Source)
	}

	engine := syncer.New(syncer.Dependencies{
		Queue:     buf,
		Submitter: submitter,
		Clock:     opts.Clock,
		Logger:    logger.With("component", "syncer"),
		Config: syncer.Config{
			Interval:    cfg.SyncInterval(),
			BatchSize:   cfg.Offline.BatchSize,
			CallTimeout: cfg.RequestTimeout(),
			MaxBackoff:  cfg.MaxBackoff(),
		},
	})

	console := capture.NewConsole(opts.Console, time.Local)
	loop := capture.NewLoop(capture.Dependencies{
		Reader:   reader,
		Queue:    buf,
		Tracker:  capture.NewOptimisticTracker(cfg.AntiPassback(), time.Local),
		Notifier: console,
		Trigger:  engine.Trigger,
		Clock:    opts.Clock,
		Logger:   logger.With("component", "capture"),
		Config: capture.Config{
			DeviceID:         cfg.Device.DeviceID,
			PollInterval:     cfg.PollInterval(),
			ReaderRetryDelay: cfg.ReconnectDelay(),
		},
	})

	a := &Agent{
		cfg:       cfg,
		buf:       buf,
		submitter: submitter,
		reader:    reader,
		console:   console,
		loop:      loop,
		engine:    engine,
		logger:    logger,
		pruner: retention.New(retention.TargetFunc(buf.PruneOlderThan), retention.Config{
			Name:      "captures",
			Retention: cfg.Retention(),
			Interval:  pruneInterval,
		}, opts.Clock, logger),
	}

	if cfg.HeartbeatInterval() > 0 {
		a.reporter = heartbeat.New(heartbeat.Dependencies{
			Stats:  buf,
			Sender: submitter,
			Clock:  opts.Clock,
			Logger: logger.With("component", "heartbeat"),
			Config: heartbeat.Config{
				DeviceID:     cfg.Device.DeviceID,
				AgentVersion: opts.Version,
				Interval:     cfg.HeartbeatInterval(),
				Timeout:      cfg.RequestTimeout(),
			},
		})
	}
	return a, nil
}

// NewSubmitter builds the client for the configured transport.
func NewSubmitter(cfg config.Config) (client.Submitter, error) {
	switch cfg.API.Transport {
	case config.TransportGRPC:
		return client.NewGRPC(client.GRPCConfig{
			Addr:    cfg.API.GRPCAddr,
			APIKey:  cfg.Device.APIKey,
			Timeout: cfg.RequestTimeout(),
		})
	case config.TransportHTTP, "":
		return client.NewHTTP(client.HTTPConfig{
			BaseURL: cfg.API.BaseURL,
			APIKey:  cfg.Device.APIKey,
			UseCBOR: cfg.API.Encoding == config.EncodingCBOR,
			Timeout: cfg.RequestTimeout(),
		}), nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.API.Transport)
}

// Buffer exposes the durable buffer for status reporting.
func (a *Agent) Buffer() *buffer.Buffer { return a.buf }

// Run captures and syncs until ctx is cancelled, then reports how many
// captures are still waiting for delivery.
func (a *Agent) Run(ctx context.Context) error {
	a.console.Banner(a.cfg.Device.DeviceID, a.serverLabel())
	a.logger.Info("agent started",
		"transport", a.cfg.API.Transport, "buffer", a.cfg.Offline.DatabasePath)

	a.pruner.Start(ctx)
	defer a.pruner.Stop()

	runners := []func(context.Context) error{a.loop.Run, a.engine.Run}
	if a.reporter != nil {
		runners = append(runners, a.reporter.Run)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, run := range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	a.reportUnsent()
	return errors.Join(errs...)
}

func (a *Agent) reportUnsent() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := a.buf.Stats(ctx)
	if err != nil {
		a.logger.Warn("buffer stats unavailable at shutdown", "err", err)
		return
	}
	a.logger.Info("agent stopped",
		"pending", stats.Pending, "failed", stats.Failed, "synced", stats.Synced, "rejected", stats.Rejected)
	if n := stats.Unsent(); n > 0 {
		a.console.Warn(fmt.Sprintf("%d capture(s) waiting to sync; they will be sent on next start", n))
	}
}

func (a *Agent) serverLabel() string {
	if a.cfg.API.Transport == config.TransportGRPC {
		return "grpc://" + a.cfg.API.GRPCAddr
	}
	return a.cfg.API.BaseURL
}

// Close releases the reader, the transport and the buffer.
func (a *Agent) Close() error {
	var errs []error
	if c, ok := a.reader.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, a.submitter.Close(), a.buf.Close())
	return errors.Join(errs...)
}

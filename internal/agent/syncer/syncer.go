// Package syncer drains the durable buffer to the server. A single
// goroutine submits the oldest unsent captures, records each server
// decision in the buffer and backs off exponentially while the server is
// unreachable.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent/buffer"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent/client"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/clock"
)

const (
	DefaultInterval       = 5 * time.Second
	DefaultBatchSize      = 50
	DefaultCallTimeout    = 10 * time.Second
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 5 * time.Minute
)

// Queue is the durable buffer as seen by the engine.
type Queue interface {
	ListPending(ctx context.Context, limit int) ([]buffer.Record, error)
	MarkSynced(ctx context.Context, localID, outcome string) error
	MarkFailed(ctx context.Context, localID string) error
	MarkRejected(ctx context.Context, localID, reason string) error
}

// Submitter sends one capture to the server.
type Submitter interface {
	Submit(ctx context.Context, req types.CaptureRequest) (client.Result, error)
}

type Config struct {
	Interval       time.Duration
	BatchSize      int
	CallTimeout    time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Dependencies struct {
	Queue     Queue
	Submitter Submitter
	Clock     clock.Clock
	Logger    *slog.Logger
	Config    Config
}

// Pass summarises one sync pass.
type Pass struct {
	Listed   int
	Synced   int // accepted by the server, including replays and redirects
	Rejected int
	// Failed is set when a retryable failure stopped the pass early.
	Failed bool
}

// Full reports whether the pass saw a full batch and delivered all of it,
// meaning more records are probably waiting.
func (p Pass) Full(batch int) bool {
	return !p.Failed && p.Listed >= batch
}

type Engine struct {
	queue     Queue
	submitter Submitter
	clock     clock.Clock
	logger    *slog.Logger
	cfg       Config
	backoff   *backoff.ExponentialBackOff
	trigger   chan struct{}
}

func New(d Dependencies) *Engine {
	cfg := d.Config
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	// No jitter and no elapsed-time limit: successive delays never shrink
	// and the engine never gives up.
	bo := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.InitialBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         cfg.MaxBackoff,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               d.Clock,
	}
	bo.Reset()

	return &Engine{
		queue:     d.Queue,
		submitter: d.Submitter,
		clock:     d.Clock,
		logger:    d.Logger,
		cfg:       cfg,
		backoff:   bo,
		trigger:   make(chan struct{}, 1),
	}
}

// Trigger asks for a pass as soon as possible. Requests coalesce and are
// ignored while the engine is backing off. Trigger never blocks.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Run syncs until ctx is cancelled. The first pass starts immediately so a
// backlog left by a previous run drains at startup.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("sync engine started",
		"interval", e.cfg.Interval.String(),
		"batch", e.cfg.BatchSize,
		"max_backoff", e.cfg.MaxBackoff.String())

	for {
		pass, err := e.SyncOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}

		var (
			wait         time.Duration
			acceptsWakes bool
		)
		switch {
		case err != nil || pass.Failed:
			wait = e.backoff.NextBackOff()
			e.logger.Warn("sync pass failed, backing off",
				"synced", pass.Synced, "delay", wait.String(), "err", err)
		case pass.Full(e.cfg.BatchSize):
			e.backoff.Reset()
			continue
		default:
			e.backoff.Reset()
			wait = e.cfg.Interval
			acceptsWakes = true
		}

		if !e.sleep(ctx, wait, acceptsWakes) {
			return nil
		}
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration, acceptsWakes bool) bool {
	var wake <-chan struct{}
	if acceptsWakes {
		wake = e.trigger
	}
	select {
	case <-ctx.Done():
		return false
	case <-e.clock.After(d):
	case <-wake:
	}
	return true
}

// SyncOnce runs a single pass over at most one batch. It stops at the
// first retryable failure so delivery order is preserved across retries.
func (e *Engine) SyncOnce(ctx context.Context) (Pass, error) {
	// This pass covers whatever the pending wake-up asked for.
	select {
	case <-e.trigger:
	default:
	}

	records, err := e.queue.ListPending(ctx, e.cfg.BatchSize)
	if err != nil {
		return Pass{}, fmt.Errorf("list pending: %w", err)
	}

	pass := Pass{Listed: len(records)}
	for _, rec := range records {
		if ctx.Err() != nil {
			return pass, ctx.Err()
		}

		d, err := e.deliver(ctx, rec)
		if err != nil {
			return pass, err
		}
		switch d {
		case delivered:
			pass.Synced++
		case rejected:
			pass.Rejected++
		default:
			pass.Failed = true
			return pass, nil
		}
	}
	return pass, nil
}

type delivery int

const (
	retryLater delivery = iota
	delivered
	rejected
)

// deliver submits one record and stores the server's decision.
func (e *Engine) deliver(ctx context.Context, rec buffer.Record) (delivery, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	res, err := e.submitter.Submit(callCtx, captureRequest(rec))
	cancel()

	log := e.logger.With("local_id", rec.LocalID, "badge_id", rec.BadgeID)

	if err == nil {
		e.reconcile(log, rec, res)
		if err := e.queue.MarkSynced(ctx, rec.LocalID, res.Outcome); err != nil {
			return retryLater, fmt.Errorf("mark synced %s: %w", rec.LocalID, err)
		}
		log.Debug("capture synced", "outcome", res.Outcome, "replayed", res.Replayed)
		return delivered, nil
	}

	if !client.IsRetryable(err) {
		reason := client.RejectReason(err)
		if err := e.queue.MarkRejected(ctx, rec.LocalID, reason); err != nil {
			return retryLater, fmt.Errorf("mark rejected %s: %w", rec.LocalID, err)
		}
		e.reportRejection(log, rec, reason)
		return rejected, nil
	}

	if ctx.Err() != nil {
		// Shutting down; the attempt does not count against the record.
		return retryLater, ctx.Err()
	}
	if err := e.queue.MarkFailed(ctx, rec.LocalID); err != nil {
		return retryLater, fmt.Errorf("mark failed %s: %w", rec.LocalID, err)
	}
	log.Info("capture delivery failed, will retry",
		"attempt", rec.AttemptCount+1, "err", err)
	return retryLater, nil
}

func (e *Engine) reconcile(log *slog.Logger, rec buffer.Record, res client.Result) {
	if res.Event == nil || rec.OptimisticDirection == "" {
		return
	}
	if res.Event.Direction != rec.OptimisticDirection {
		log.Warn("server direction differs from local feedback",
			"local", rec.OptimisticDirection,
			"server", res.Event.Direction,
			"captured_at", rec.CapturedAt.UTC().Format(time.RFC3339))
	}
}

func (e *Engine) reportRejection(log *slog.Logger, rec buffer.Record, reason string) {
	args := []any{"reason", reason, "captured_at", rec.CapturedAt.UTC().Format(time.RFC3339)}
	if rec.OptimisticDirection != "" {
		args = append(args, "local", rec.OptimisticDirection)
	}
	if types.Reason(reason) == types.ReasonDeviceUnauthenticated {
		log.Error("capture rejected: device credentials refused by server", args...)
		return
	}
	log.Warn("capture rejected by server", args...)
}

func captureRequest(rec buffer.Record) types.CaptureRequest {
	return types.CaptureRequest{
		DeviceID:       rec.DeviceID,
		BadgeID:        rec.BadgeID,
		OccurredAt:     rec.CapturedAt.UTC().Format(time.RFC3339Nano),
		IdempotencyKey: rec.LocalID,
		Attempt:        rec.AttemptCount,
	}
}

// Package retention runs periodic deletion of rows that have outlived their
// retention period: server heartbeats and acknowledged edge captures.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/clock"
)

// Target deletes rows older than cutoff and reports how many it removed.
type Target interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// TargetFunc adapts a function to Target.
type TargetFunc func(ctx context.Context, cutoff time.Time) (int64, error)

func (f TargetFunc) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return f(ctx, cutoff)
}

type Config struct {
	// Name labels log lines, e.g. "heartbeats".
	Name string

	// Retention is how much history to keep. 0 disables the pruner.
	Retention time.Duration

	// Interval between runs. Defaults to 6h.
	Interval time.Duration
}

// Pruner deletes expired rows from a Target in the background. It prunes
// once on Start and then every Interval until Stop or ctx cancellation.
type Pruner struct {
	target    Target
	name      string
	retention time.Duration
	interval  time.Duration
	clock     clock.Clock
	logger    *slog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(t Target, cfg Config, clk clock.Clock, logger *slog.Logger) *Pruner {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pruner{
		target:    t,
		name:      cfg.Name,
		retention: cfg.Retention,
		interval:  interval,
		clock:     clk,
		logger:    logger.With("pruner", cfg.Name),
		done:      make(chan struct{}),
	}
}

func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Info("pruner disabled (retention=0)")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)

	go p.loop(ctx)

	p.logger.Info("pruner started", "retention", p.retention.String(), "interval", p.interval.String())
}

// Stop signals the pruner to exit and waits for it.
func (p *Pruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

// PruneNow runs one pass synchronously and returns the rows deleted.
func (p *Pruner) PruneNow(ctx context.Context) (int64, error) {
	cutoff := p.clock.Now().UTC().Add(-p.retention)
	deleted, err := p.target.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		p.logger.Info("pruned rows", "deleted", deleted, "cutoff", cutoff.Format(time.RFC3339))
	}
	return deleted, nil
}

func (p *Pruner) loop(ctx context.Context) {
	defer close(p.done)

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(p.interval):
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	if _, err := p.PruneNow(ctx); err != nil && ctx.Err() == nil {
		p.logger.Error("prune failed", "err", err)
	}
}

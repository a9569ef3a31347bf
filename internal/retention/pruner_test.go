package retention_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/clock"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/retention"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingTarget struct {
	mu      sync.Mutex
	cutoffs []time.Time
	calls   chan struct{}
	err     error
}

func newRecordingTarget() *recordingTarget {
	return &recordingTarget{calls: make(chan struct{}, 16)}
}

func (r *recordingTarget) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	r.cutoffs = append(r.cutoffs, cutoff)
	r.mu.Unlock()
	r.calls <- struct{}{}
	return 1, r.err
}

func waitCall(t *testing.T, r *recordingTarget) {
	t.Helper()
	select {
	case <-r.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for prune")
	}
}

func TestPruner_DisabledWhenRetentionZero(t *testing.T) {
	target := newRecordingTarget()
	p := retention.New(target, retention.Config{Name: "x"}, nil, silentLogger())

	p.Start(context.Background())
	p.Stop()

	if len(target.calls) != 0 {
		t.Fatal("disabled pruner must not prune")
	}
}

func TestPruner_PrunesOnStartAndEveryInterval(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	clk := clock.Fake(start)
	target := newRecordingTarget()

	p := retention.New(target, retention.Config{
		Name:      "heartbeats",
		Retention: 30 * 24 * time.Hour,
		Interval:  time.Hour,
	}, clk, silentLogger())

	p.Start(context.Background())
	defer p.Stop()

	waitCall(t, target)

	clk.WaitForTimers(1)
	clk.Advance(time.Hour)
	waitCall(t, target)

	target.mu.Lock()
	defer target.mu.Unlock()
	if len(target.cutoffs) != 2 {
		t.Fatalf("expected 2 prunes, got %d", len(target.cutoffs))
	}
	if want := start.Add(-30 * 24 * time.Hour); !target.cutoffs[0].Equal(want) {
		t.Errorf("first cutoff = %v, want %v", target.cutoffs[0], want)
	}
	if want := start.Add(time.Hour - 30*24*time.Hour); !target.cutoffs[1].Equal(want) {
		t.Errorf("second cutoff = %v, want %v", target.cutoffs[1], want)
	}
}

func TestPruner_StopIsIdempotent(t *testing.T) {
	target := newRecordingTarget()
	p := retention.New(target, retention.Config{Retention: time.Hour, Interval: time.Hour}, clock.Fake(time.Now()), silentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	p.Stop()
	p.Stop()
}

func TestPruneNow_ReturnsError(t *testing.T) {
	boom := errors.New("locked")
	target := retention.TargetFunc(func(context.Context, time.Time) (int64, error) { return 0, boom })
	p := retention.New(target, retention.Config{Retention: time.Hour}, nil, silentLogger())

	if _, err := p.PruneNow(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

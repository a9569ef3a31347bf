package heartbeat_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent/buffer"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent/heartbeat"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/clock"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type statsFunc func(ctx context.Context) (buffer.Stats, error)

func (f statsFunc) Stats(ctx context.Context) (buffer.Stats, error) { return f(ctx) }

type recordingSender struct {
	mu   sync.Mutex
	reqs []types.HeartbeatRequest
	err  error
}

func (s *recordingSender) Heartbeat(_ context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return types.HeartbeatResponse{}, s.err
	}
	return types.HeartbeatResponse{OK: true, Known: true, DeviceID: req.DeviceID}, nil
}

func (s *recordingSender) sent() []types.HeartbeatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.HeartbeatRequest(nil), s.reqs...)
}

func newReporter(clk clock.Clock, stats heartbeat.StatsSource, sender heartbeat.Sender) *heartbeat.Reporter {
	return heartbeat.New(heartbeat.Dependencies{
		Stats:   stats,
		Sender:  sender,
		Clock:   clk,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		LocalIP: func() string { return "10.0.0.7" },
		Config: heartbeat.Config{
			DeviceID:     "door-001",
			AgentVersion: "1.2.0",
			Interval:     30 * time.Second,
		},
	})
}

func TestSendCarriesBufferStats(t *testing.T) {
	clk := clock.Fake(baseTime)
	oldest := baseTime.Add(-time.Hour)
	sender := &recordingSender{}
	r := newReporter(clk, statsFunc(func(context.Context) (buffer.Stats, error) {
		return buffer.Stats{Pending: 3, Failed: 2, Rejected: 1, OldestPending: &oldest}, nil
	}), sender)

	clk.Advance(90 * time.Second)
	resp, err := r.Send(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.Known)

	got := sender.sent()
	require.Len(t, got, 1)
	assert.Equal(t, types.HeartbeatRequest{
		DeviceID:        "door-001",
		AgentVersion:    "1.2.0",
		UptimeSeconds:   90,
		PendingCount:    3,
		FailedCount:     2,
		RejectedCount:   1,
		OldestPendingAt: "2026-03-02T08:00:00Z",
		IP:              "10.0.0.7",
		Sequence:        1,
	}, got[0])
}

func TestSendWithoutStatsStillReports(t *testing.T) {
	sender := &recordingSender{}
	r := newReporter(clock.Fake(baseTime), statsFunc(func(context.Context) (buffer.Stats, error) {
		return buffer.Stats{}, errors.New("disk gone")
	}), sender)

	_, err := r.Send(context.Background())
	require.NoError(t, err)
	require.Len(t, sender.sent(), 1)
}

func TestSendPropagatesTransportError(t *testing.T) {
	sender := &recordingSender{err: errors.New("unreachable")}
	r := newReporter(clock.Fake(baseTime), statsFunc(func(context.Context) (buffer.Stats, error) {
		return buffer.Stats{}, nil
	}), sender)

	_, err := r.Send(context.Background())
	assert.Error(t, err)
}

func TestRunReportsEveryInterval(t *testing.T) {
	clk := clock.Fake(baseTime)
	sender := &recordingSender{err: errors.New("unreachable")}
	r := newReporter(clk, statsFunc(func(context.Context) (buffer.Stats, error) {
		return buffer.Stats{}, nil
	}), sender)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	for i := 1; i <= 3; i++ {
		clk.WaitForTimers(1)
		assert.Len(t, sender.sent(), i)
		clk.Advance(30 * time.Second)
	}
	clk.WaitForTimers(1)
	cancel()
	require.NoError(t, <-done)

	sent := sender.sent()
	require.Len(t, sent, 4)
	assert.Equal(t, uint64(4), sent[3].Sequence)
	assert.Equal(t, uint64(90), sent[3].UptimeSeconds)
}

package agent_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent/buffer"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent/capture"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent/config"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/enrollment"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/service"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store/memory"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/clock"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/httpapi"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type server struct {
	url    string
	events *memory.EventStore
	close  func()
}

// startServer runs the ingestion HTTP API on in-memory stores.
func startServer(t *testing.T) *server {
	t.Helper()

	reg := memory.NewRegistry()
	require.NoError(t, store.SeedDev(context.Background(), reg,
		[]store.DevDevice{{DeviceID: "door-001", APIKey: "secret"}},
		[]store.BadgeBinding{{BadgeID: "04A2B3", SubjectID: "S1", State: store.BindingActive, SubjectActive: true}},
	))

	clk := clock.Real()
	events := memory.NewEventStore()
	mailbox := enrollment.NewMailbox(enrollment.DefaultTTL, clk)
	registry := service.NewDeviceRegistry(reg, clk)

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger: discard,
		Addr:   ":0",
		Clock:  clk,
		IngestionService: service.NewIngestionService(service.IngestionDependencies{
			Registry: registry,
			Events:   events,
			Bindings: reg,
			Audit:    memory.NewAuditStore(),
			Mailbox:  mailbox,
			Clock:    clk,
			Logger:   discard,
		}),
		HeartbeatService:  service.NewHeartbeatService(memory.NewHeartbeatStore(), registry, clk, discard),
		EnrollmentService: service.NewEnrollmentService(mailbox, reg, registry, discard),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &server{url: ts.URL, events: events, close: ts.Close}
}

func agentConfig(t *testing.T, baseURL, dbPath string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.API.BaseURL = baseURL
	cfg.Device.DeviceID = "door-001"
	cfg.Device.APIKey = "secret"
	cfg.Reader.PollIntervalMS = 5
	cfg.Offline.DatabasePath = dbPath
	cfg.Heartbeat.IntervalSeconds = 0
	return cfg
}

type running struct {
	agent   *agent.Agent
	console *bytes.Buffer
	stop    func() error
}

func start(t *testing.T, cfg config.Config, reader capture.Reader) *running {
	t.Helper()

	var console bytes.Buffer
	a, err := agent.New(context.Background(), agent.Options{
		Config:  cfg,
		Version: "test",
		Reader:  reader,
		Console: &console,
		Logger:  discard,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	stopped := false
	stop := func() error {
		if stopped {
			return nil
		}
		stopped = true
		cancel()
		err := <-done
		return errors.Join(err, a.Close())
	}
	t.Cleanup(func() { _ = stop() })
	return &running{agent: a, console: &console, stop: stop}
}

func stats(a *agent.Agent) buffer.Stats {
	s, err := a.Buffer().Stats(context.Background())
	if err != nil {
		return buffer.Stats{}
	}
	return s
}

func TestAgentCapturesAndSyncs(t *testing.T) {
	srv := startServer(t)
	cfg := agentConfig(t, srv.url, filepath.Join(t.TempDir(), "agent.db"))

	r := start(t, cfg, capture.NewScriptedReader(capture.ScriptStep{Tag: "04:a2:b3"}))
	require.Eventually(t, func() bool { return stats(r.agent).Synced == 1 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, r.stop())

	out := r.console.String()
	assert.Contains(t, out, "BADGE READER AGENT")
	assert.Contains(t, out, "Welcome")
	assert.NotContains(t, out, "waiting to sync")
}

func TestAgentKeepsCapturesWhileOfflineAndDrainsOnRestart(t *testing.T) {
	srv := startServer(t)
	url := srv.url
	srv.close()

	dbPath := filepath.Join(t.TempDir(), "agent.db")
	offline := start(t, agentConfig(t, url, dbPath), capture.NewScriptedReader(capture.ScriptStep{Tag: "04A2B3"}))
	require.Eventually(t, func() bool { return stats(offline.agent).Failed == 1 }, 5*time.Second, 5*time.Millisecond)

	pending, err := offline.agent.Buffer().ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	localID := pending[0].LocalID

	require.NoError(t, offline.stop())
	assert.Contains(t, offline.console.String(), "Welcome", "feedback does not wait for the network")
	assert.Contains(t, offline.console.String(), "1 capture(s) waiting to sync")

	live := startServer(t)
	online := start(t, agentConfig(t, live.url, dbPath), capture.NewScriptedReader())
	require.Eventually(t, func() bool { return stats(online.agent).Synced == 1 }, 5*time.Second, 5*time.Millisecond)

	ev, err := live.events.GetByIdempotencyKey(context.Background(), localID)
	require.NoError(t, err)
	assert.Equal(t, types.ReceivedDeferredSync, ev.ReceivedVia)
	assert.Equal(t, types.DirectionArrival, ev.Direction)
}

func TestAgentRejectsBadConfig(t *testing.T) {
	cfg := agentConfig(t, "", filepath.Join(t.TempDir(), "agent.db"))
	_, err := agent.New(context.Background(), agent.Options{Config: cfg, Logger: discard})
	assert.Error(t, err)
}

func TestNewSubmitterTransport(t *testing.T) {
	cfg := agentConfig(t, "http://127.0.0.1:1", "x.db")
	s, err := agent.NewSubmitter(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	cfg.API.Transport = config.TransportGRPC
	cfg.API.GRPCAddr = "127.0.0.1:1"
	s, err = agent.NewSubmitter(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	cfg.API.Transport = "carrier-pigeon"
	_, err = agent.NewSubmitter(cfg)
	assert.Error(t, err)
}

func TestDeviceSourceReadsFileOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taps.txt")
	require.NoError(t, os.WriteFile(path, []byte("04A2B3\n"), 0o600))

	r := agent.OpenSource(path)
	ctx := context.Background()

	var tags []string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(tags) == 0 {
		tag, present, err := r.Poll(ctx)
		require.NoError(t, err)
		if present {
			tags = append(tags, tag)
		}
	}
	assert.Equal(t, []string{"04A2B3"}, tags)

	// After the file ends the source stays quiet instead of replaying it.
	for i := 0; i < 50; i++ {
		_, present, err := r.Poll(ctx)
		if err == nil {
			assert.False(t, present)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDeviceSourceMissingPath(t *testing.T) {
	r := agent.OpenSource(filepath.Join(t.TempDir(), "missing"))
	_, _, err := r.Poll(context.Background())
	assert.Error(t, err)
}

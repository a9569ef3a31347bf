package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/enrollment"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/service"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store/memory"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/clock"
)

const (
	testDevice = "door-1"
	testKey    = "key-1"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type harness struct {
	svc      *service.IngestionService
	registry *memory.Registry
	events   *memory.EventStore
	audit    *memory.AuditStore
	mailbox  *enrollment.Mailbox
	clock    *clock.FakeClock
	pub      *recordingPublisher
}

type harnessOption func(*service.IngestionDependencies)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	reg := memory.NewRegistry()
	err := store.SeedDev(context.Background(), reg,
		[]store.DevDevice{{DeviceID: testDevice, APIKey: testKey}},
		[]store.BadgeBinding{
			{BadgeID: "04A2B3", SubjectID: "S1", State: store.BindingActive, SubjectActive: true},
			{BadgeID: "0B0B0B", SubjectID: "S2", State: store.BindingActive, SubjectActive: true},
			{BadgeID: "DEAD01", SubjectID: "S3", State: store.BindingRevoked, SubjectActive: true},
			{BadgeID: "DEAD02", SubjectID: "S4", State: store.BindingLost, SubjectActive: true},
			{BadgeID: "DEAD03", SubjectID: "S5", State: store.BindingActive, SubjectActive: false},
			{BadgeID: "FFEE11", State: store.BindingUnbound},
		},
	)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	clk := clock.Fake(baseTime)
	h := &harness{
		registry: reg,
		events:   memory.NewEventStore(),
		audit:    memory.NewAuditStore(),
		mailbox:  enrollment.NewMailbox(60*time.Second, clk),
		clock:    clk,
		pub:      &recordingPublisher{},
	}

	deps := service.IngestionDependencies{
		Registry:  service.NewDeviceRegistry(reg, clk),
		Events:    h.events,
		Bindings:  reg,
		Audit:     h.audit,
		Mailbox:   h.mailbox,
		Publisher: h.pub,
		Clock:     clk,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: service.IngestionConfig{
			AntiPassbackWindow: 60 * time.Second,
			LiveThreshold:      30 * time.Second,
		},
	}
	for _, o := range opts {
		o(&deps)
	}
	h.svc = service.NewIngestionService(deps)
	return h
}

// submit sends a capture that occurred at baseTime+offset, with the server
// clock set to the same instant.
func (h *harness) submit(t *testing.T, badge, key string, offset time.Duration) service.SubmitResult {
	t.Helper()
	at := baseTime.Add(offset)
	h.clock.Set(at)
	res, err := h.svc.Submit(context.Background(), service.SubmitCommand{
		DeviceID:       testDevice,
		APIKey:         testKey,
		BadgeID:        badge,
		OccurredAt:     at,
		IdempotencyKey: key,
	})
	if err != nil {
		t.Fatalf("Submit(%s): %v", key, err)
	}
	return res
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.CanonicalEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev types.CanonicalEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type failingAudit struct{}

func (failingAudit) RecordSubmission(context.Context, store.SubmissionAuditRecord) error {
	return errors.New("disk full")
}

func (failingAudit) HasDecision(context.Context, string, string) (bool, error) {
	return false, nil
}

// conflictOnce wraps an EventStore and reports a concurrent writer on the
// first append.
type conflictOnce struct {
	store.EventStore
	mu    sync.Mutex
	fired bool
	calls int
}

func (c *conflictOnce) Append(ctx context.Context, ev types.CanonicalEvent, prev string) error {
	c.mu.Lock()
	c.calls++
	fire := !c.fired
	c.fired = true
	c.mu.Unlock()
	if fire {
		return store.ErrConflict
	}
	return c.EventStore.Append(ctx, ev, prev)
}

// seenFails is a device store whose last-seen writes fail.
type seenFails struct {
	store.DeviceStore
}

func (seenFails) MarkSeen(context.Context, string, bool, time.Time) error {
	return errors.New("database is locked")
}

package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/credential"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
	sqlitestore "github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store/sqlite"
)

func TestRegistry_SeedAndRead(t *testing.T) {
	conn := openTestDB(t)
	reg := sqlitestore.NewRegistry(conn, newTestWriter(t, conn))
	ctx := context.Background()

	err := store.SeedDev(ctx, reg,
		[]store.DevDevice{{DeviceID: "door-1", APIKey: "key-1"}},
		[]store.BadgeBinding{
			{BadgeID: "04A2B3", SubjectID: "S1", State: store.BindingActive, SubjectActive: true},
			{BadgeID: "FFFF", State: store.BindingUnbound},
		},
	)
	if err != nil {
		t.Fatalf("SeedDev: %v", err)
	}

	cred, err := reg.GetCredential(ctx, "door-1")
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if !cred.Enabled {
		t.Error("expected enabled device")
	}
	if !credential.Matches("key-1", cred.KeyDigest) {
		t.Error("stored digest does not match key")
	}

	b, err := reg.GetBinding(ctx, "04A2B3")
	if err != nil {
		t.Fatalf("GetBinding: %v", err)
	}
	if b.SubjectID != "S1" || b.State != store.BindingActive || !b.SubjectActive {
		t.Errorf("unexpected binding: %+v", b)
	}

	ub, err := reg.GetBinding(ctx, "FFFF")
	if err != nil {
		t.Fatalf("GetBinding unbound: %v", err)
	}
	if ub.Bound() {
		t.Error("expected unbound badge")
	}

	if _, err := reg.GetBinding(ctx, "0000"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistry_MarkSeenCreatesDisabledDevice(t *testing.T) {
	conn := openTestDB(t)
	reg := sqlitestore.NewRegistry(conn, newTestWriter(t, conn))
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if err := reg.MarkSeen(ctx, "rogue", false, now); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}

	cred, err := reg.GetCredential(ctx, "rogue")
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if cred.Enabled {
		t.Error("unknown device must not become enabled")
	}

	var lastSeen int64
	if err := conn.QueryRow(`SELECT last_seen_at_ms FROM devices WHERE device_id = 'rogue'`).Scan(&lastSeen); err != nil {
		t.Fatalf("query: %v", err)
	}
	if lastSeen != now.UnixMilli() {
		t.Errorf("expected last_seen=%d, got %d", now.UnixMilli(), lastSeen)
	}
}

func TestAuditStore_RecordSubmission(t *testing.T) {
	conn := openTestDB(t)
	as := sqlitestore.NewAuditStore(conn, newTestWriter(t, conn))

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	err := as.RecordSubmission(context.Background(), store.SubmissionAuditRecord{
		DeviceID:       "door-1",
		BadgeID:        "04A2B3",
		IdempotencyKey: "k1",
		OccurredAt:     &at,
		Outcome:        "rejected",
		Reason:         "badge_lost",
	})
	if err != nil {
		t.Fatalf("RecordSubmission: %v", err)
	}

	var outcome, reason string
	if err := conn.QueryRow(`SELECT outcome, reason FROM submission_audit WHERE idempotency_key = 'k1'`).Scan(&outcome, &reason); err != nil {
		t.Fatalf("query: %v", err)
	}
	if outcome != "rejected" || reason != "badge_lost" {
		t.Errorf("unexpected audit row: %s/%s", outcome, reason)
	}
}

func TestAuditStore_HasDecision(t *testing.T) {
	conn := openTestDB(t)
	as := sqlitestore.NewAuditStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	if err := as.RecordSubmission(ctx, store.SubmissionAuditRecord{
		DeviceID: "door-1", BadgeID: "FFEE11", IdempotencyKey: "k1", Outcome: "enrollment_redirect",
	}); err != nil {
		t.Fatalf("RecordSubmission: %v", err)
	}

	cases := []struct {
		key, outcome string
		want         bool
	}{
		{"k1", "enrollment_redirect", true},
		{"k1", "rejected", false},
		{"k2", "enrollment_redirect", false},
	}
	for _, tc := range cases {
		got, err := as.HasDecision(ctx, tc.key, tc.outcome)
		if err != nil {
			t.Fatalf("HasDecision(%s, %s): %v", tc.key, tc.outcome, err)
		}
		if got != tc.want {
			t.Errorf("HasDecision(%s, %s) = %v, want %v", tc.key, tc.outcome, got, tc.want)
		}
	}
}

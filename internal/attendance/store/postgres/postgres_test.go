package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/credential"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store/postgres"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
)

var testDB *postgres.DB

// TestMain starts a throwaway Postgres container when ATTENDANCE_PG_TESTS=1.
// Without it every test in this package skips.
func TestMain(m *testing.M) {
	if os.Getenv("ATTENDANCE_PG_TESTS") != "1" {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:17-alpine",
		tcpostgres.WithDatabase("attendance"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		panic(err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		panic(err)
	}

	testDB, err = postgres.Open(ctx, postgres.Config{ConnString: connStr})
	if err != nil {
		_ = container.Terminate(ctx)
		panic(err)
	}

	code := m.Run()

	testDB.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func requireDB(t *testing.T) *postgres.DB {
	t.Helper()
	if testDB == nil {
		t.Skip("set ATTENDANCE_PG_TESTS=1 to run Postgres store tests")
	}
	return testDB
}

func pgEvent(id, subject, key string, at time.Time) types.CanonicalEvent {
	return types.CanonicalEvent{
		EventID:        id,
		SubjectID:      subject,
		BadgeID:        "04A2B3",
		Direction:      types.DirectionArrival,
		OccurredAt:     at,
		DeviceID:       "door-1",
		IdempotencyKey: key,
		ReceivedVia:    types.ReceivedDeferredSync,
		ReceivedAt:     at.Add(2 * time.Minute),
		AttendanceDay:  at.Format("2006-01-02"),
	}
}

func TestEventStore_AppendReadAndConflicts(t *testing.T) {
	db := requireDB(t)
	es := postgres.NewEventStore(db)
	ctx := context.Background()
	subject := fmt.Sprintf("S-%d", time.Now().UnixNano())
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	e1 := pgEvent(subject+"-e1", subject, subject+"-k1", at)
	require.NoError(t, es.Append(ctx, e1, ""))

	got, err := es.GetByIdempotencyKey(ctx, e1.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, e1, got)

	err = es.Append(ctx, pgEvent(subject+"-e2", subject, subject+"-k2", at.Add(time.Hour)), "")
	assert.True(t, errors.Is(err, store.ErrConflict), "expected ErrConflict, got %v", err)

	err = es.Append(ctx, pgEvent(subject+"-e3", subject, e1.IdempotencyKey, at.Add(time.Hour)), e1.EventID)
	assert.True(t, errors.Is(err, store.ErrDuplicateKey), "expected ErrDuplicateKey, got %v", err)

	last, err := es.LastForSubject(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, e1.EventID, last.EventID)

	_, err = es.LastForSubject(ctx, subject+"-nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEventStore_ConcurrentAppendsSerialised(t *testing.T) {
	db := requireDB(t)
	es := postgres.NewEventStore(db)
	ctx := context.Background()
	subject := fmt.Sprintf("C-%d", time.Now().UnixNano())
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	const n = 6
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := es.Append(ctx, pgEvent(fmt.Sprintf("%s-e%d", subject, i), subject, fmt.Sprintf("%s-k%d", subject, i), at), "")
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, store.ErrConflict)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRegistry_SeedAndRead(t *testing.T) {
	db := requireDB(t)
	reg := postgres.NewRegistry(db)
	ctx := context.Background()

	require.NoError(t, store.SeedDev(ctx, reg,
		[]store.DevDevice{{DeviceID: "pg-door", APIKey: "pg-key"}},
		[]store.BadgeBinding{{BadgeID: "ABCDEF", SubjectID: "S9", State: store.BindingLost, SubjectActive: true}},
	))

	cred, err := reg.GetCredential(ctx, "pg-door")
	require.NoError(t, err)
	assert.True(t, cred.Enabled)
	assert.True(t, credential.Matches("pg-key", cred.KeyDigest))

	b, err := reg.GetBinding(ctx, "ABCDEF")
	require.NoError(t, err)
	assert.Equal(t, store.BindingLost, b.State)
	assert.Equal(t, "S9", b.SubjectID)

	require.NoError(t, reg.MarkSeen(ctx, "pg-unknown", false, time.Now()))
	unknown, err := reg.GetCredential(ctx, "pg-unknown")
	require.NoError(t, err)
	assert.False(t, unknown.Enabled)
}

func TestHeartbeatAndAudit(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	hs := postgres.NewHeartbeatStore(db)
	as := postgres.NewAuditStore(db)

	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, hs.UpsertHeartbeat(ctx, "pg-hb", store.HeartbeatRecord{
		ReceivedAt: old,
		Request:    types.HeartbeatRequest{DeviceID: "pg-hb", PendingCount: 3},
	}))
	n, err := hs.PruneOlderThan(ctx, old.Add(time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	require.NoError(t, as.RecordSubmission(ctx, store.SubmissionAuditRecord{
		DeviceID:       "pg-hb",
		BadgeID:        "04A2B3",
		IdempotencyKey: "audit-k",
		Outcome:        types.OutcomeRejected,
		Reason:         string(types.ReasonBadgeRevoked),
	}))
	seen, err := as.HasDecision(ctx, "audit-k", types.OutcomeRejected)
	require.NoError(t, err)
	assert.True(t, seen)
	seen, err = as.HasDecision(ctx, "audit-k", types.OutcomeEnrollmentRedirect)
	require.NoError(t, err)
	assert.False(t, seen)
}

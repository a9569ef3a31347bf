package memory

import (
	"context"
	"sync"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
)

// AuditStore is an in-memory append-only log of submission decisions.
type AuditStore struct {
	mu      sync.Mutex
	records []store.SubmissionAuditRecord
}

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) RecordSubmission(_ context.Context, rec store.SubmissionAuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *AuditStore) HasDecision(_ context.Context, idempotencyKey, outcome string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.IdempotencyKey == idempotencyKey && r.Outcome == outcome {
			return true, nil
		}
	}
	return false, nil
}

// Records returns a copy of all recorded decisions. Test-only helper.
func (s *AuditStore) Records() []store.SubmissionAuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.SubmissionAuditRecord, len(s.records))
	copy(out, s.records)
	return out
}

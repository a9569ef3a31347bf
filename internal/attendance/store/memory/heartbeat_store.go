package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
)

// HeartbeatStore keeps the latest heartbeat per device.
type HeartbeatStore struct {
	mu   sync.RWMutex
	data map[string]store.HeartbeatRecord
}

func NewHeartbeatStore() *HeartbeatStore {
	return &HeartbeatStore{
		data: make(map[string]store.HeartbeatRecord),
	}
}

func (s *HeartbeatStore) UpsertHeartbeat(_ context.Context, deviceID string, rec store.HeartbeatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	s.data[deviceID] = rec
	return nil
}

func (s *HeartbeatStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rec := range s.data {
		if rec.ReceivedAt.Before(cutoff) {
			delete(s.data, id)
			n++
		}
	}
	return n, nil
}

// Latest returns the last heartbeat from deviceID. Test-only helper.
func (s *HeartbeatStore) Latest(deviceID string) (store.HeartbeatRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[deviceID]
	return rec, ok
}

package memory

import (
	"context"
	"sync"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
)

// EventStore is an in-memory canonical ledger.
type EventStore struct {
	mu     sync.Mutex
	events []types.CanonicalEvent
	byKey  map[string]int
	last   map[string]int // subject -> index of last event
}

func NewEventStore() *EventStore {
	return &EventStore{
		byKey: make(map[string]int),
		last:  make(map[string]int),
	}
}

func (s *EventStore) GetByIdempotencyKey(_ context.Context, key string) (types.CanonicalEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byKey[key]
	if !ok {
		return types.CanonicalEvent{}, store.ErrNotFound
	}
	return s.events[i], nil
}

func (s *EventStore) LastForSubject(_ context.Context, subjectID string) (types.CanonicalEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.last[subjectID]
	if !ok {
		return types.CanonicalEvent{}, store.ErrNotFound
	}
	return s.events[i], nil
}

func (s *EventStore) Append(_ context.Context, ev types.CanonicalEvent, prevEventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byKey[ev.IdempotencyKey]; dup {
		return store.ErrDuplicateKey
	}

	current := ""
	if i, ok := s.last[ev.SubjectID]; ok {
		current = s.events[i].EventID
	}
	if current != prevEventID {
		return store.ErrConflict
	}

	s.events = append(s.events, ev)
	idx := len(s.events) - 1
	s.byKey[ev.IdempotencyKey] = idx
	s.last[ev.SubjectID] = idx
	return nil
}

// Events returns a copy of all events in append order. Test-only helper.
func (s *EventStore) Events() []types.CanonicalEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.CanonicalEvent, len(s.events))
	copy(out, s.events)
	return out
}

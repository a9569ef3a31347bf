package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
)

// Registry holds device credentials and badge bindings in memory. It is
// intended for tests and the dev server.
type Registry struct {
	mu       sync.RWMutex
	devices  map[string]store.DeviceCredential
	bindings map[string]store.BadgeBinding
	seen     map[string]time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		devices:  make(map[string]store.DeviceCredential),
		bindings: make(map[string]store.BadgeBinding),
		seen:     make(map[string]time.Time),
	}
}

func (r *Registry) GetCredential(_ context.Context, deviceID string) (store.DeviceCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.devices[strings.TrimSpace(deviceID)]
	if !ok {
		return store.DeviceCredential{}, store.ErrNotFound
	}
	c.KeyDigest = append([]byte(nil), c.KeyDigest...)
	return c, nil
}

func (r *Registry) MarkSeen(_ context.Context, deviceID string, _ bool, t time.Time) error {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[deviceID] = t
	return nil
}

// LastSeen returns when deviceID was last noted. Test-only helper.
func (r *Registry) LastSeen(deviceID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.seen[deviceID]
	return t, ok
}

func (r *Registry) GetBinding(_ context.Context, badgeID string) (store.BadgeBinding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[badgeID]
	if !ok {
		return store.BadgeBinding{}, store.ErrNotFound
	}
	return b, nil
}

func (r *Registry) UpsertDevice(_ context.Context, cred store.DeviceCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred.KeyDigest = append([]byte(nil), cred.KeyDigest...)
	r.devices[cred.DeviceID] = cred
	return nil
}

func (r *Registry) UpsertBinding(_ context.Context, b store.BadgeBinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[b.BadgeID] = b
	return nil
}

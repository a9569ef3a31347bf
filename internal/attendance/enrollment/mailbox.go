// Package enrollment holds the single-slot mailbox that hands a freshly
// scanned, unassigned badge to whichever provisioning client asks next.
package enrollment

import (
	"sync"
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/clock"
)

const DefaultTTL = 60 * time.Second

type Slot struct {
	BadgeID    string
	DeviceID   string
	DetectedAt time.Time
	ExpiresAt  time.Time
}

// Mailbox is safe for concurrent use. Publish replaces whatever is in the
// slot; Consume empties it. An entry older than the TTL reads as empty.
type Mailbox struct {
	mu    sync.Mutex
	slot  *Slot
	ttl   time.Duration
	clock clock.Clock
}

func NewMailbox(ttl time.Duration, clk clock.Clock) *Mailbox {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Mailbox{ttl: ttl, clock: clk}
}

func (m *Mailbox) Publish(badgeID, deviceID string) Slot {
	now := m.clock.Now().UTC()
	s := Slot{
		BadgeID:    badgeID,
		DeviceID:   deviceID,
		DetectedAt: now,
		ExpiresAt:  now.Add(m.ttl),
	}

	m.mu.Lock()
	m.slot = &s
	m.mu.Unlock()
	return s
}

func (m *Mailbox) TTL() time.Duration { return m.ttl }

// Consume returns and clears the current entry. A stale entry is cleared
// and reported as absent.
func (m *Mailbox) Consume() (Slot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.liveLocked()
	m.slot = nil
	return s, ok
}

// Peek returns the current entry without clearing a live one.
func (m *Mailbox) Peek() (Slot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.liveLocked()
	if !ok {
		m.slot = nil
	}
	return s, ok
}

func (m *Mailbox) liveLocked() (Slot, bool) {
	if m.slot == nil {
		return Slot{}, false
	}
	if m.clock.Now().Sub(m.slot.DetectedAt) > m.ttl {
		return Slot{}, false
	}
	return *m.slot, true
}

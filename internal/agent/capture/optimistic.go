package capture

import (
	"sync"
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
)

// OptimisticTracker guesses the server's verdict for immediate feedback. It
// mirrors the server rules per badge (toggle within a local calendar day,
// anti-passback window) but only knows about taps seen by this device.
type OptimisticTracker struct {
	window time.Duration
	loc    *time.Location

	mu   sync.Mutex
	last map[string]lastTap
}

type lastTap struct {
	at        time.Time
	day       string
	direction types.Direction
}

// Prediction is the tracker's guess for one tap. Duplicate means the tap
// falls inside the anti-passback window of the previous one.
type Prediction struct {
	Direction types.Direction
	Duplicate bool
}

func NewOptimisticTracker(window time.Duration, loc *time.Location) *OptimisticTracker {
	if loc == nil {
		loc = time.Local
	}
	return &OptimisticTracker{window: window, loc: loc, last: make(map[string]lastTap)}
}

// Observe predicts the outcome of a tap and records it. Duplicates do not
// move the toggle.
func (t *OptimisticTracker) Observe(badgeID string, at time.Time) Prediction {
	t.mu.Lock()
	defer t.mu.Unlock()

	day := at.In(t.loc).Format(time.DateOnly)
	prev, ok := t.last[badgeID]

	if ok && at.Sub(prev.at) < t.window {
		return Prediction{Direction: prev.direction, Duplicate: true}
	}

	dir := types.DirectionArrival
	if ok && prev.day == day {
		dir = prev.direction.Toggle()
	}
	t.last[badgeID] = lastTap{at: at, day: day, direction: dir}
	return Prediction{Direction: dir}
}

// Forget drops what the tracker knows about a badge, e.g. after the server
// rejected it.
func (t *OptimisticTracker) Forget(badgeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, badgeID)
}

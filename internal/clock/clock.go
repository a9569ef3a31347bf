// Package clock abstracts wall-clock time so that TTLs, retry delays and
// anti-passback windows can be exercised deterministically in tests.
//
// Production code takes a Clock (usually Real()); tests inject Fake().
package clock

import "time"

// Clock is the subset of the time package the attendance components use.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

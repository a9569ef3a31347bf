// Package ids generates the identifiers used for capture records and
// canonical events.
package ids

import (
	"sync"

	"github.com/google/uuid"
)

// Generator produces unique identifiers.
type Generator interface {
	Generate() string
}

// UUIDv7 generates time-sortable UUIDv7 strings. Stateless and safe for
// concurrent use.
type UUIDv7 struct{}

func (UUIDv7) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Fixed returns predetermined identifiers in order, for tests. Panics when
// exhausted so a test that creates more records than expected fails loudly.
type Fixed struct {
	mu  sync.Mutex
	ids []string
	idx int
}

func NewFixed(ids ...string) *Fixed {
	return &Fixed{ids: ids}
}

func (g *Fixed) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("ids.Fixed: all identifiers exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

package ids

import (
	"testing"

	"github.com/google/uuid"
)

func TestUUIDv7_SortableAndVersioned(t *testing.T) {
	var g UUIDv7
	prev := g.Generate()
	for i := 0; i < 100; i++ {
		next := g.Generate()
		if next <= prev {
			t.Fatalf("ids not increasing: %s then %s", prev, next)
		}
		u, err := uuid.Parse(next)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if u.Version() != 7 {
			t.Fatalf("expected version 7, got %d", u.Version())
		}
		prev = next
	}
}

func TestFixed_InOrderThenPanics(t *testing.T) {
	g := NewFixed("a", "b")
	if g.Generate() != "a" || g.Generate() != "b" {
		t.Fatal("unexpected order")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when exhausted")
		}
	}()
	g.Generate()
}

func TestValid(t *testing.T) {
	if !Valid(UUIDv7{}.Generate()) {
		t.Fatal("generated id should be valid")
	}
	if Valid("not-a-uuid") {
		t.Fatal("garbage should be invalid")
	}
}

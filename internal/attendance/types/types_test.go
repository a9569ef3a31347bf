package types

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDirectionToggle(t *testing.T) {
	if DirectionArrival.Toggle() != DirectionDeparture {
		t.Fatal("arrival should toggle to departure")
	}
	if DirectionDeparture.Toggle() != DirectionArrival {
		t.Fatal("departure should toggle to arrival")
	}
	if _, err := ParseDirection("SIDEWAYS"); err == nil {
		t.Fatal("expected error for unknown direction")
	}
}

func TestNormalizeBadgeID(t *testing.T) {
	cases := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "04a2b3", want: "04A2B3"},
		{in: " 04 A2 B3 ", want: "04A2B3"},
		{in: "04:a2:b3:c4", want: "04A2B3C4"},
		{in: "", err: true},
		{in: "   ", err: true},
		{in: "XYZ", err: true},
		{in: strings.Repeat("A", 32), want: strings.Repeat("A", 32)},
		{in: strings.Repeat("A", 33), err: true},
	}
	for _, tc := range cases {
		got, err := NormalizeBadgeID(tc.in)
		if tc.err {
			if !errors.Is(err, ErrInvalidBadgeID) {
				t.Errorf("NormalizeBadgeID(%q): expected ErrInvalidBadgeID, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeBadgeID(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeBadgeID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEventView(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.FixedZone("x", 3600))
	v := CanonicalEvent{
		EventID:     "e1",
		Direction:   DirectionArrival,
		OccurredAt:  at,
		ReceivedVia: ReceivedLive,
	}.View()

	if v.OccurredAt != "2026-03-02T08:00:00Z" {
		t.Errorf("expected UTC timestamp, got %q", v.OccurredAt)
	}
	if v.Direction != "ARRIVAL" || v.ReceivedVia != "LIVE" {
		t.Errorf("unexpected enums: %+v", v)
	}
}

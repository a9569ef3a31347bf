package types

import (
	"fmt"
	"time"
)

type Direction string

const (
	DirectionArrival   Direction = "ARRIVAL"
	DirectionDeparture Direction = "DEPARTURE"
)

func (d Direction) Valid() bool {
	return d == DirectionArrival || d == DirectionDeparture
}

// Toggle returns the other direction. Anything that is not a departure
// toggles to a departure, so an unset direction behaves like an arrival.
func (d Direction) Toggle() Direction {
	if d == DirectionDeparture {
		return DirectionArrival
	}
	return DirectionDeparture
}

func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown direction %q", s)
	}
	return d, nil
}

type ReceivedVia string

const (
	ReceivedLive         ReceivedVia = "LIVE"
	ReceivedDeferredSync ReceivedVia = "DEFERRED_SYNC"
)

// CanonicalEvent is an accepted presence event in the server ledger.
// Events are immutable once written.
type CanonicalEvent struct {
	EventID        string
	SubjectID      string
	BadgeID        string
	Direction      Direction
	OccurredAt     time.Time // device clock
	DeviceID       string
	IdempotencyKey string
	ReceivedVia    ReceivedVia
	ReceivedAt     time.Time // server clock
	AttendanceDay  string    // YYYY-MM-DD
}

// EventView is the wire form of a CanonicalEvent.
type EventView struct {
	EventID        string `json:"event_id"`
	SubjectID      string `json:"subject_id"`
	BadgeID        string `json:"badge_id"`
	Direction      string `json:"direction"`
	OccurredAt     string `json:"occurred_at"`
	DeviceID       string `json:"device_id"`
	IdempotencyKey string `json:"idempotency_key"`
	ReceivedVia    string `json:"received_via"`
	AttendanceDay  string `json:"attendance_day"`
}

func (e CanonicalEvent) View() EventView {
	return EventView{
		EventID:        e.EventID,
		SubjectID:      e.SubjectID,
		BadgeID:        e.BadgeID,
		Direction:      string(e.Direction),
		OccurredAt:     e.OccurredAt.UTC().Format(time.RFC3339Nano),
		DeviceID:       e.DeviceID,
		IdempotencyKey: e.IdempotencyKey,
		ReceivedVia:    string(e.ReceivedVia),
		AttendanceDay:  e.AttendanceDay,
	}
}

package types

import (
	"errors"
	"strings"
)

// Outcome values carried in CaptureResponse.Outcome.
const (
	OutcomeEventCreated       = "event_created"
	OutcomeEnrollmentRedirect = "enrollment_redirect"
	OutcomeRejected           = "rejected"
)

type CaptureRequest struct {
	DeviceID       string `json:"device_id"`
	BadgeID        string `json:"badge_id"`
	OccurredAt     string `json:"occurred_at"` // RFC3339, device clock
	IdempotencyKey string `json:"idempotency_key"`
	Attempt        int    `json:"attempt,omitempty"` // prior failed deliveries
}

type CaptureResponse struct {
	OK         bool       `json:"ok"`
	Outcome    string     `json:"outcome"`
	Reason     string     `json:"reason,omitempty"`
	Replayed   bool       `json:"replayed,omitempty"`
	Event      *EventView `json:"event,omitempty"`
	Message    string     `json:"message,omitempty"`
	ServerTime string     `json:"server_time"`
}

var ErrInvalidBadgeID = errors.New("badge_id must be 1-32 hex characters")

const maxBadgeIDLen = 32

// NormalizeBadgeID upper-cases a reader-produced tag id and strips the
// separators readers commonly emit (spaces, colons, dashes). The result must
// be non-empty hex of at most 32 characters.
func NormalizeBadgeID(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r == ' ' || r == ':' || r == '-' || r == '\t':
			continue
		case r >= '0' && r <= '9', r >= 'A' && r <= 'F':
			b.WriteRune(r)
		case r >= 'a' && r <= 'f':
			b.WriteRune(r - 'a' + 'A')
		default:
			return "", ErrInvalidBadgeID
		}
	}
	id := b.String()
	if id == "" || len(id) > maxBadgeIDLen {
		return "", ErrInvalidBadgeID
	}
	return id, nil
}

package service

import (
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/enrollment"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
)

type ResultKind int

const (
	ResultEventCreated ResultKind = iota + 1
	ResultEnrollmentRedirect
	ResultRejected
)

func (k ResultKind) String() string {
	switch k {
	case ResultEventCreated:
		return types.OutcomeEventCreated
	case ResultEnrollmentRedirect:
		return types.OutcomeEnrollmentRedirect
	case ResultRejected:
		return types.OutcomeRejected
	}
	return "unknown"
}

type SubmitCommand struct {
	DeviceID       string
	APIKey         string
	BadgeID        string
	OccurredAt     time.Time
	IdempotencyKey string

	// Deferred is set by the client when the capture has failed delivery
	// before, so it is known to arrive late.
	Deferred bool
}

// SubmitResult is the outcome of one submission. Terminal rejections are
// results, not errors.
type SubmitResult struct {
	Kind       ResultKind
	Reason     types.Reason
	Event      *types.CanonicalEvent
	Replayed   bool
	Enrollment *enrollment.Slot
}

func rejected(reason types.Reason) SubmitResult {
	return SubmitResult{Kind: ResultRejected, Reason: reason}
}

// Response renders the result in wire form.
func (r SubmitResult) Response(now time.Time) types.CaptureResponse {
	resp := types.CaptureResponse{
		OK:         r.Kind != ResultRejected,
		Outcome:    r.Kind.String(),
		Reason:     string(r.Reason),
		Replayed:   r.Replayed,
		ServerTime: now.UTC().Format(time.RFC3339Nano),
	}
	switch r.Kind {
	case ResultEventCreated:
		if r.Event != nil {
			v := r.Event.View()
			resp.Event = &v
			resp.Message = Greeting(*r.Event)
		}
	case ResultEnrollmentRedirect:
		resp.Message = "Badge not assigned; sent to enrollment"
	}
	return resp
}

// Package client submits buffered captures and heartbeats to the server and
// classifies every failure as retryable or terminal.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
)

// Submitter delivers captures and heartbeats. Implementations return
// either a Result or an *Error.
type Submitter interface {
	Submit(ctx context.Context, req types.CaptureRequest) (Result, error)
	Heartbeat(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error)
	Close() error
}

// Result is an accepted submission: a created or replayed event, or an
// enrollment redirect.
type Result struct {
	Outcome  string
	Replayed bool
	Event    *types.EventView
	Message  string
}

func resultFrom(resp types.CaptureResponse) Result {
	return Result{
		Outcome:  resp.Outcome,
		Replayed: resp.Replayed,
		Event:    resp.Event,
		Message:  resp.Message,
	}
}

// Error is a failed submission. Retryable errors leave the outcome
// unknown; the record must be sent again with the same idempotency key.
// Terminal errors are final server decisions carrying a reason code.
type Error struct {
	Retryable bool
	Reason    string
	Status    int // HTTP status or gRPC code, 0 for transport failures
	Err       error
}

func (e *Error) Error() string {
	kind := "terminal"
	if e.Retryable {
		kind = "retryable"
	}
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", kind, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", kind, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", kind, e.Err)
	}
	return kind
}

func (e *Error) Unwrap() error { return e.Err }

func retryable(status int, err error) *Error {
	return &Error{Retryable: true, Status: status, Err: err}
}

func terminal(status int, reason string, err error) *Error {
	if reason == "" {
		reason = string(types.ReasonInvalidRequest)
	}
	return &Error{Reason: reason, Status: status, Err: err}
}

// IsRetryable reports whether err leaves a submission's outcome unknown.
// Errors that are not *Error (context cancellation, bugs) count as
// retryable so the record is never dropped.
func IsRetryable(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return err != nil
}

// RejectReason returns the server's reason code for a terminal error, or ""
// when err is not a terminal rejection.
func RejectReason(err error) string {
	var ce *Error
	if errors.As(err, &ce) && !ce.Retryable {
		return ce.Reason
	}
	return ""
}

// knownReason reports whether s is one of the server's rejection codes.
func knownReason(s string) bool {
	switch types.Reason(s) {
	case types.ReasonDeviceUnauthenticated, types.ReasonBadgeRevoked, types.ReasonBadgeLost,
		types.ReasonDuplicateWithinWindow, types.ReasonSubjectInactive, types.ReasonInvalidRequest:
		return true
	}
	return false
}

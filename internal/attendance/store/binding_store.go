package store

import "context"

type BindingState string

const (
	BindingActive  BindingState = "ACTIVE"
	BindingUnbound BindingState = "UNBOUND"
	BindingRevoked BindingState = "REVOKED"
	BindingLost    BindingState = "LOST"
)

func (s BindingState) Valid() bool {
	switch s {
	case BindingActive, BindingUnbound, BindingRevoked, BindingLost:
		return true
	}
	return false
}

// BadgeBinding maps a physical badge to the subject it identifies. The
// ingestion core only reads bindings.
type BadgeBinding struct {
	BadgeID       string
	SubjectID     string // empty when unbound
	State         BindingState
	SubjectActive bool
}

// Bound reports whether the badge identifies a subject.
func (b BadgeBinding) Bound() bool {
	return b.State == BindingActive && b.SubjectID != ""
}

type BindingStore interface {
	// GetBinding returns ErrNotFound for badges the registry has never seen.
	GetBinding(ctx context.Context, badgeID string) (BadgeBinding, error)
}

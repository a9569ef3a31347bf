package types

// Reason is a machine-readable rejection code. The string values are what
// travels on the wire.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonDeviceUnauthenticated Reason = "device_unauthenticated"
	ReasonBadgeRevoked          Reason = "badge_revoked"
	ReasonBadgeLost             Reason = "badge_lost"
	ReasonDuplicateWithinWindow Reason = "duplicate_within_window"
	ReasonSubjectInactive       Reason = "subject_inactive"
	ReasonInvalidRequest        Reason = "invalid_request"
)

func (r Reason) String() string { return string(r) }

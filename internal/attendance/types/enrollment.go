package types

type EnrollmentDetectRequest struct {
	DeviceID string `json:"device_id"`
	BadgeID  string `json:"badge_id"`
}

// EnrollmentSlot is the wire form of a mailbox entry handed to a
// provisioning client.
type EnrollmentSlot struct {
	BadgeID      string `json:"badge_id"`
	DeviceID     string `json:"device_id"`
	DetectedAt   string `json:"detected_at"`
	ExpiresAt    string `json:"expires_at"`
	AlreadyBound bool   `json:"already_bound"`
	SubjectID    string `json:"subject_id,omitempty"`
}

type EnrollmentStatus struct {
	Pending bool            `json:"pending"`
	Slot    *EnrollmentSlot `json:"slot,omitempty"`
}

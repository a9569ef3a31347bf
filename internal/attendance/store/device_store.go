package store

import (
	"context"
	"time"
)

type DeviceCredential struct {
	DeviceID  string
	KeyDigest []byte
	Enabled   bool
}

type DeviceStore interface {
	// GetCredential returns ErrNotFound for devices never provisioned.
	GetCredential(ctx context.Context, deviceID string) (DeviceCredential, error)
	MarkSeen(ctx context.Context, deviceID string, known bool, t time.Time) error
}

package service

import (
	"context"
	"errors"
	"strings"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/credential"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/clock"
)

type DeviceRegistry struct {
	store store.DeviceStore
	clock clock.Clock
}

func NewDeviceRegistry(st store.DeviceStore, clk clock.Clock) *DeviceRegistry {
	if clk == nil {
		clk = clock.Real()
	}
	return &DeviceRegistry{store: st, clock: clk}
}

// Authenticate reports whether apiKey is the current credential of an
// enabled device. Unknown devices are not an error.
func (r *DeviceRegistry) Authenticate(ctx context.Context, deviceID, apiKey string) (bool, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" || apiKey == "" {
		return false, nil
	}

	cred, err := r.store.GetCredential(ctx, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !cred.Enabled {
		return false, nil
	}
	return credential.Matches(apiKey, cred.KeyDigest), nil
}

func (r *DeviceRegistry) NoteSeen(ctx context.Context, deviceID string, known bool) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil
	}
	return r.store.MarkSeen(ctx, deviceID, known, r.clock.Now().UTC())
}

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/credential"
)

// Provisioner writes the registry rows the core otherwise only reads.
// Used by dev seeding and tests.
type Provisioner interface {
	UpsertDevice(ctx context.Context, cred DeviceCredential) error
	UpsertBinding(ctx context.Context, b BadgeBinding) error
}

// DevDevice is a device id with its plain API key.
type DevDevice struct {
	DeviceID string
	APIKey   string
}

// SeedDev provisions devices and bindings for development. Existing rows
// are overwritten.
func SeedDev(ctx context.Context, p Provisioner, devices []DevDevice, bindings []BadgeBinding) error {
	for _, d := range devices {
		id := strings.TrimSpace(d.DeviceID)
		if id == "" || d.APIKey == "" {
			return fmt.Errorf("seed device %q: id and key are required", d.DeviceID)
		}
		if err := p.UpsertDevice(ctx, DeviceCredential{
			DeviceID:  id,
			KeyDigest: credential.Digest(d.APIKey),
			Enabled:   true,
		}); err != nil {
			return fmt.Errorf("seed device %s: %w", id, err)
		}
	}

	for _, b := range bindings {
		if !b.State.Valid() {
			return fmt.Errorf("seed binding %s: invalid state %q", b.BadgeID, b.State)
		}
		if err := p.UpsertBinding(ctx, b); err != nil {
			return fmt.Errorf("seed binding %s: %w", b.BadgeID, err)
		}
	}
	return nil
}

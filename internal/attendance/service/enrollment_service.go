package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/enrollment"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
)

// EnrollmentService fronts the mailbox for devices in scan mode and for
// provisioning clients.
type EnrollmentService struct {
	mailbox  *enrollment.Mailbox
	bindings store.BindingStore
	registry *DeviceRegistry
	logger   *slog.Logger
}

func NewEnrollmentService(mb *enrollment.Mailbox, bindings store.BindingStore, reg *DeviceRegistry, logger *slog.Logger) *EnrollmentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnrollmentService{mailbox: mb, bindings: bindings, registry: reg, logger: logger}
}

// Detect publishes a badge straight to the mailbox, whatever its binding
// state. Used by devices switched into scan mode.
func (s *EnrollmentService) Detect(ctx context.Context, apiKey string, req types.EnrollmentDetectRequest) (types.EnrollmentSlot, error) {
	badgeID, err := types.NormalizeBadgeID(req.BadgeID)
	if err != nil {
		return types.EnrollmentSlot{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	ok, err := s.registry.Authenticate(ctx, req.DeviceID, apiKey)
	if err != nil {
		return types.EnrollmentSlot{}, fmt.Errorf("authenticate device: %w", err)
	}
	if err := s.registry.NoteSeen(ctx, req.DeviceID, ok); err != nil {
		s.logger.WarnContext(ctx, "device last-seen update failed", "device_id", req.DeviceID, "err", err)
	}
	if !ok {
		return types.EnrollmentSlot{}, ErrDeviceUnauthenticated
	}

	slot := s.mailbox.Publish(badgeID, req.DeviceID)
	s.logger.InfoContext(ctx, "badge detected for enrollment", "badge_id", badgeID, "device_id", req.DeviceID)
	return s.view(ctx, slot), nil
}

// Next consumes the pending badge, if any.
func (s *EnrollmentService) Next(ctx context.Context) (types.EnrollmentSlot, bool) {
	slot, ok := s.mailbox.Consume()
	if !ok {
		return types.EnrollmentSlot{}, false
	}
	return s.view(ctx, slot), true
}

// Status reports the pending badge without consuming it.
func (s *EnrollmentService) Status(ctx context.Context) types.EnrollmentStatus {
	slot, ok := s.mailbox.Peek()
	if !ok {
		return types.EnrollmentStatus{}
	}
	v := s.view(ctx, slot)
	return types.EnrollmentStatus{Pending: true, Slot: &v}
}

// view renders a slot and flags badges that are already assigned, so the
// provisioning client can warn before rebinding. A failed binding lookup
// only loses the flag; the slot has already been consumed.
func (s *EnrollmentService) view(ctx context.Context, slot enrollment.Slot) types.EnrollmentSlot {
	v := types.EnrollmentSlot{
		BadgeID:    slot.BadgeID,
		DeviceID:   slot.DeviceID,
		DetectedAt: slot.DetectedAt.Format(time.RFC3339Nano),
		ExpiresAt:  slot.ExpiresAt.Format(time.RFC3339Nano),
	}

	b, err := s.bindings.GetBinding(ctx, slot.BadgeID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		s.logger.WarnContext(ctx, "enrollment binding lookup failed", "badge_id", slot.BadgeID, "err", err)
	case b.SubjectID != "" && b.State != store.BindingUnbound:
		v.AlreadyBound = true
		v.SubjectID = b.SubjectID
	}
	return v
}

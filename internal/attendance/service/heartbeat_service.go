package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/clock"
)

type HeartbeatService struct {
	heartbeatStore store.HeartbeatStore
	registry       *DeviceRegistry
	clock          clock.Clock
	logger         *slog.Logger
}

func NewHeartbeatService(hs store.HeartbeatStore, reg *DeviceRegistry, clk clock.Clock, logger *slog.Logger) *HeartbeatService {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HeartbeatService{heartbeatStore: hs, registry: reg, clock: clk, logger: logger}
}

// Record stores a heartbeat. Heartbeats from unknown or unauthenticated
// devices are still accepted and reported back with Known=false.
func (s *HeartbeatService) Record(ctx context.Context, apiKey string, req types.HeartbeatRequest) (types.HeartbeatResponse, error) {
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		return types.HeartbeatResponse{}, fmt.Errorf("%w: device_id is required", ErrInvalidRequest)
	}

	known, err := s.registry.Authenticate(ctx, deviceID, apiKey)
	if err != nil {
		return types.HeartbeatResponse{}, err
	}
	if err := s.registry.NoteSeen(ctx, deviceID, known); err != nil {
		s.logger.WarnContext(ctx, "device last-seen update failed", "device_id", deviceID, "err", err)
	}

	now := s.clock.Now().UTC()
	if err := s.heartbeatStore.UpsertHeartbeat(ctx, deviceID, store.HeartbeatRecord{
		ReceivedAt: now,
		Request:    req,
	}); err != nil {
		return types.HeartbeatResponse{}, err
	}

	return types.HeartbeatResponse{
		OK:         true,
		Known:      known,
		DeviceID:   deviceID,
		ServerTime: now.Format(time.RFC3339Nano),
	}, nil
}

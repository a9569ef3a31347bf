package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/service"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store/memory"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
)

func TestHeartbeat_KnownAndUnknownDevices(t *testing.T) {
	h := newHarness(t)
	hs := memory.NewHeartbeatStore()
	svc := service.NewHeartbeatService(hs, service.NewDeviceRegistry(h.registry, h.clock), h.clock, nil)
	ctx := context.Background()

	resp, err := svc.Record(ctx, testKey, types.HeartbeatRequest{DeviceID: testDevice, PendingCount: 4})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !resp.OK || !resp.Known {
		t.Errorf("expected known device, got %+v", resp)
	}
	rec, ok := hs.Latest(testDevice)
	if !ok || rec.Request.PendingCount != 4 {
		t.Errorf("heartbeat not stored: %+v", rec)
	}

	resp, err = svc.Record(ctx, "", types.HeartbeatRequest{DeviceID: "stranger"})
	if err != nil {
		t.Fatalf("Record unknown: %v", err)
	}
	if !resp.OK || resp.Known {
		t.Errorf("expected accepted but unknown, got %+v", resp)
	}
}

func TestHeartbeat_MissingDeviceID(t *testing.T) {
	h := newHarness(t)
	svc := service.NewHeartbeatService(memory.NewHeartbeatStore(), service.NewDeviceRegistry(h.registry, h.clock), h.clock, nil)

	_, err := svc.Record(context.Background(), testKey, types.HeartbeatRequest{})
	if !errors.Is(err, service.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

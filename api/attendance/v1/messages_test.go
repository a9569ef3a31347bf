package v1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
)

func TestSchemaDescribesIngestionService(t *testing.T) {
	svc := File.Services().ByName("Ingestion")
	require.NotNil(t, svc)
	assert.Equal(t, ServiceName, string(svc.FullName()))
	assert.NotNil(t, svc.Methods().ByName("SubmitCapture"))
	assert.NotNil(t, svc.Methods().ByName("Heartbeat"))
}

func TestCaptureRequestWireRoundTrip(t *testing.T) {
	in := types.CaptureRequest{
		DeviceID:       "dev-1",
		BadgeID:        "04A2B3",
		OccurredAt:     "2026-03-02T09:00:00Z",
		IdempotencyKey: "k-1",
		Attempt:        3,
	}

	b, err := proto.Marshal(CaptureRequestToProto(in))
	require.NoError(t, err)

	m := NewCaptureRequest()
	require.NoError(t, proto.Unmarshal(b, m))
	assert.Equal(t, in, CaptureRequestFromProto(m))
}

func TestCaptureResponseWithoutEvent(t *testing.T) {
	in := types.CaptureResponse{
		OK:         false,
		Outcome:    types.OutcomeRejected,
		Reason:     string(types.ReasonBadgeRevoked),
		ServerTime: "2026-03-02T09:00:01Z",
	}

	b, err := proto.Marshal(CaptureResponseToProto(in))
	require.NoError(t, err)

	m := NewCaptureResponse()
	require.NoError(t, proto.Unmarshal(b, m))
	out := CaptureResponseFromProto(m)
	assert.Nil(t, out.Event)
	assert.Equal(t, in, out)
}

func TestCaptureResponseCarriesEvent(t *testing.T) {
	in := types.CaptureResponse{
		OK:       true,
		Outcome:  types.OutcomeEventCreated,
		Replayed: true,
		Message:  "Welcome, S1",
		Event: &types.EventView{
			EventID:        "e-1",
			SubjectID:      "S1",
			BadgeID:        "04A2B3",
			Direction:      "ARRIVAL",
			OccurredAt:     "2026-03-02T09:00:00Z",
			DeviceID:       "dev-1",
			IdempotencyKey: "k-1",
			ReceivedVia:    "LIVE",
			AttendanceDay:  "2026-03-02",
		},
	}

	b, err := proto.Marshal(CaptureResponseToProto(in))
	require.NoError(t, err)

	m := NewCaptureResponse()
	require.NoError(t, proto.Unmarshal(b, m))
	assert.Equal(t, in, CaptureResponseFromProto(m))
}

func TestHeartbeatWireRoundTrip(t *testing.T) {
	in := types.HeartbeatRequest{
		DeviceID:        "dev-1",
		AgentVersion:    "0.3.0",
		UptimeSeconds:   3600,
		PendingCount:    4,
		FailedCount:     1,
		RejectedCount:   2,
		OldestPendingAt: "2026-03-02T08:59:00Z",
		IP:              "10.0.0.7",
		Sequence:        42,
	}

	b, err := proto.Marshal(HeartbeatRequestToProto(in))
	require.NoError(t, err)

	m := NewHeartbeatRequest()
	require.NoError(t, proto.Unmarshal(b, m))
	assert.Equal(t, in, HeartbeatRequestFromProto(m))

	resp := types.HeartbeatResponse{OK: true, Known: false, DeviceID: "dev-1", ServerTime: "2026-03-02T09:00:00Z"}
	assert.Equal(t, resp, HeartbeatResponseFromProto(HeartbeatResponseToProto(resp)))
}

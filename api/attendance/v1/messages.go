package v1

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
)

func NewCaptureRequest() *dynamicpb.Message    { return dynamicpb.NewMessage(captureRequestDesc) }
func NewCaptureResponse() *dynamicpb.Message   { return dynamicpb.NewMessage(captureResponseDesc) }
func NewHeartbeatRequest() *dynamicpb.Message  { return dynamicpb.NewMessage(heartbeatRequestDesc) }
func NewHeartbeatResponse() *dynamicpb.Message { return dynamicpb.NewMessage(heartbeatResponseDesc) }

// fields wraps a message for by-name access. Unknown names panic, which
// only a schema/code mismatch can cause.
type fields struct {
	m protoreflect.Message
}

func wrap(m proto.Message) fields { return fields{m: m.ProtoReflect()} }

func (f fields) fd(name string) protoreflect.FieldDescriptor {
	fd := f.m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		panic("attendance/v1: no field " + name + " in " + string(f.m.Descriptor().FullName()))
	}
	return fd
}

func (f fields) setString(name, v string) {
	if v != "" {
		f.m.Set(f.fd(name), protoreflect.ValueOfString(v))
	}
}

func (f fields) setBool(name string, v bool) {
	if v {
		f.m.Set(f.fd(name), protoreflect.ValueOfBool(v))
	}
}

func (f fields) setInt64(name string, v int64) {
	if v != 0 {
		f.m.Set(f.fd(name), protoreflect.ValueOfInt64(v))
	}
}

func (f fields) setUint64(name string, v uint64) {
	if v != 0 {
		f.m.Set(f.fd(name), protoreflect.ValueOfUint64(v))
	}
}

func (f fields) str(name string) string    { return f.m.Get(f.fd(name)).String() }
func (f fields) boolean(name string) bool  { return f.m.Get(f.fd(name)).Bool() }
func (f fields) int64(name string) int64   { return f.m.Get(f.fd(name)).Int() }
func (f fields) uint64(name string) uint64 { return f.m.Get(f.fd(name)).Uint() }

// ── Capture ──────────────────────────────────────────────────────────────────

func CaptureRequestToProto(r types.CaptureRequest) *dynamicpb.Message {
	m := NewCaptureRequest()
	f := wrap(m)
	f.setString("device_id", r.DeviceID)
	f.setString("badge_id", r.BadgeID)
	f.setString("occurred_at", r.OccurredAt)
	f.setString("idempotency_key", r.IdempotencyKey)
	if r.Attempt != 0 {
		m.Set(f.fd("attempt"), protoreflect.ValueOfInt32(int32(r.Attempt)))
	}
	return m
}

func CaptureRequestFromProto(m proto.Message) types.CaptureRequest {
	f := wrap(m)
	return types.CaptureRequest{
		DeviceID:       f.str("device_id"),
		BadgeID:        f.str("badge_id"),
		OccurredAt:     f.str("occurred_at"),
		IdempotencyKey: f.str("idempotency_key"),
		Attempt:        int(f.int64("attempt")),
	}
}

func CaptureResponseToProto(r types.CaptureResponse) *dynamicpb.Message {
	m := NewCaptureResponse()
	f := wrap(m)
	f.setBool("ok", r.OK)
	f.setString("outcome", r.Outcome)
	f.setString("reason", r.Reason)
	f.setBool("replayed", r.Replayed)
	f.setString("message", r.Message)
	f.setString("server_time", r.ServerTime)

	if r.Event != nil {
		ev := dynamicpb.NewMessage(eventDesc)
		e := wrap(ev)
		e.setString("event_id", r.Event.EventID)
		e.setString("subject_id", r.Event.SubjectID)
		e.setString("badge_id", r.Event.BadgeID)
		e.setString("direction", r.Event.Direction)
		e.setString("occurred_at", r.Event.OccurredAt)
		e.setString("device_id", r.Event.DeviceID)
		e.setString("idempotency_key", r.Event.IdempotencyKey)
		e.setString("received_via", r.Event.ReceivedVia)
		e.setString("attendance_day", r.Event.AttendanceDay)
		m.Set(f.fd("event"), protoreflect.ValueOfMessage(ev))
	}
	return m
}

func CaptureResponseFromProto(m proto.Message) types.CaptureResponse {
	f := wrap(m)
	r := types.CaptureResponse{
		OK:         f.boolean("ok"),
		Outcome:    f.str("outcome"),
		Reason:     f.str("reason"),
		Replayed:   f.boolean("replayed"),
		Message:    f.str("message"),
		ServerTime: f.str("server_time"),
	}

	if evFD := f.fd("event"); f.m.Has(evFD) {
		e := fields{m: f.m.Get(evFD).Message()}
		r.Event = &types.EventView{
			EventID:        e.str("event_id"),
			SubjectID:      e.str("subject_id"),
			BadgeID:        e.str("badge_id"),
			Direction:      e.str("direction"),
			OccurredAt:     e.str("occurred_at"),
			DeviceID:       e.str("device_id"),
			IdempotencyKey: e.str("idempotency_key"),
			ReceivedVia:    e.str("received_via"),
			AttendanceDay:  e.str("attendance_day"),
		}
	}
	return r
}

// ── Heartbeat ────────────────────────────────────────────────────────────────

func HeartbeatRequestToProto(r types.HeartbeatRequest) *dynamicpb.Message {
	m := NewHeartbeatRequest()
	f := wrap(m)
	f.setString("device_id", r.DeviceID)
	f.setString("agent_version", r.AgentVersion)
	f.setUint64("uptime_s", r.UptimeSeconds)
	f.setInt64("pending_count", r.PendingCount)
	f.setInt64("failed_count", r.FailedCount)
	f.setInt64("rejected_count", r.RejectedCount)
	f.setString("oldest_pending_at", r.OldestPendingAt)
	f.setString("ip", r.IP)
	f.setUint64("seq", r.Sequence)
	return m
}

func HeartbeatRequestFromProto(m proto.Message) types.HeartbeatRequest {
	f := wrap(m)
	return types.HeartbeatRequest{
		DeviceID:        f.str("device_id"),
		AgentVersion:    f.str("agent_version"),
		UptimeSeconds:   f.uint64("uptime_s"),
		PendingCount:    f.int64("pending_count"),
		FailedCount:     f.int64("failed_count"),
		RejectedCount:   f.int64("rejected_count"),
		OldestPendingAt: f.str("oldest_pending_at"),
		IP:              f.str("ip"),
		Sequence:        f.uint64("seq"),
	}
}

func HeartbeatResponseToProto(r types.HeartbeatResponse) *dynamicpb.Message {
	m := NewHeartbeatResponse()
	f := wrap(m)
	f.setBool("ok", r.OK)
	f.setBool("known", r.Known)
	f.setString("device_id", r.DeviceID)
	f.setString("server_time", r.ServerTime)
	return m
}

func HeartbeatResponseFromProto(m proto.Message) types.HeartbeatResponse {
	f := wrap(m)
	return types.HeartbeatResponse{
		OK:         f.boolean("ok"),
		Known:      f.boolean("known"),
		DeviceID:   f.str("device_id"),
		ServerTime: f.str("server_time"),
	}
}

// Package v1 defines the attendance.v1 protobuf schema shared by the HTTP
// protobuf encoding and the gRPC service. The file descriptor is built at
// init, equivalent to:
//
//	syntax = "proto3";
//	package attendance.v1;
//
//	message CaptureRequest {
//	  string device_id = 1; string badge_id = 2; string occurred_at = 3;
//	  string idempotency_key = 4; int32 attempt = 5;
//	}
//	message Event {
//	  string event_id = 1; string subject_id = 2; string badge_id = 3;
//	  string direction = 4; string occurred_at = 5; string device_id = 6;
//	  string idempotency_key = 7; string received_via = 8; string attendance_day = 9;
//	}
//	message CaptureResponse {
//	  bool ok = 1; string outcome = 2; string reason = 3; bool replayed = 4;
//	  Event event = 5; string message = 6; string server_time = 7;
//	}
//	message HeartbeatRequest {
//	  string device_id = 1; string agent_version = 2; uint64 uptime_s = 3;
//	  int64 pending_count = 4; int64 failed_count = 5; int64 rejected_count = 6;
//	  string oldest_pending_at = 7; string ip = 8; uint64 seq = 9;
//	}
//	message HeartbeatResponse {
//	  bool ok = 1; bool known = 2; string device_id = 3; string server_time = 4;
//	}
//	service Ingestion {
//	  rpc SubmitCapture(CaptureRequest) returns (CaptureResponse);
//	  rpc Heartbeat(HeartbeatRequest) returns (HeartbeatResponse);
//	}
package v1

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

const (
	ServiceName = "attendance.v1.Ingestion"

	SubmitCaptureMethod = "/" + ServiceName + "/SubmitCapture"
	HeartbeatMethod     = "/" + ServiceName + "/Heartbeat"
)

var (
	File protoreflect.FileDescriptor

	captureRequestDesc    protoreflect.MessageDescriptor
	eventDesc             protoreflect.MessageDescriptor
	captureResponseDesc   protoreflect.MessageDescriptor
	heartbeatRequestDesc  protoreflect.MessageDescriptor
	heartbeatResponseDesc protoreflect.MessageDescriptor
)

func init() {
	fd, err := protodesc.NewFile(fileProto(), nil)
	if err != nil {
		panic("attendance/v1: build descriptor: " + err.Error())
	}
	File = fd

	msgs := fd.Messages()
	captureRequestDesc = msgs.ByName("CaptureRequest")
	eventDesc = msgs.ByName("Event")
	captureResponseDesc = msgs.ByName("CaptureResponse")
	heartbeatRequestDesc = msgs.ByName("HeartbeatRequest")
	heartbeatResponseDesc = msgs.ByName("HeartbeatResponse")
}

type fieldSpec struct {
	name     string
	typ      descriptorpb.FieldDescriptorProto_Type
	typeName string // message fields only
}

func message(name string, fields ...fieldSpec) *descriptorpb.DescriptorProto {
	m := &descriptorpb.DescriptorProto{Name: proto.String(name)}
	for i, f := range fields {
		fp := &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(f.name),
			Number:   proto.Int32(int32(i + 1)),
			Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:     f.typ.Enum(),
			JsonName: proto.String(f.name),
		}
		if f.typeName != "" {
			fp.TypeName = proto.String(f.typeName)
		}
		m.Field = append(m.Field, fp)
	}
	return m
}

func str(name string) fieldSpec {
	return fieldSpec{name: name, typ: descriptorpb.FieldDescriptorProto_TYPE_STRING}
}

func boolean(name string) fieldSpec {
	return fieldSpec{name: name, typ: descriptorpb.FieldDescriptorProto_TYPE_BOOL}
}

func fileProto() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("attendance/v1/attendance.proto"),
		Package: proto.String("attendance.v1"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			message("CaptureRequest",
				str("device_id"),
				str("badge_id"),
				str("occurred_at"),
				str("idempotency_key"),
				fieldSpec{name: "attempt", typ: descriptorpb.FieldDescriptorProto_TYPE_INT32},
			),
			message("Event",
				str("event_id"),
				str("subject_id"),
				str("badge_id"),
				str("direction"),
				str("occurred_at"),
				str("device_id"),
				str("idempotency_key"),
				str("received_via"),
				str("attendance_day"),
			),
			message("CaptureResponse",
				boolean("ok"),
				str("outcome"),
				str("reason"),
				boolean("replayed"),
				fieldSpec{name: "event", typ: descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, typeName: ".attendance.v1.Event"},
				str("message"),
				str("server_time"),
			),
			message("HeartbeatRequest",
				str("device_id"),
				str("agent_version"),
				fieldSpec{name: "uptime_s", typ: descriptorpb.FieldDescriptorProto_TYPE_UINT64},
				fieldSpec{name: "pending_count", typ: descriptorpb.FieldDescriptorProto_TYPE_INT64},
				fieldSpec{name: "failed_count", typ: descriptorpb.FieldDescriptorProto_TYPE_INT64},
				fieldSpec{name: "rejected_count", typ: descriptorpb.FieldDescriptorProto_TYPE_INT64},
				str("oldest_pending_at"),
				str("ip"),
				fieldSpec{name: "seq", typ: descriptorpb.FieldDescriptorProto_TYPE_UINT64},
			),
			message("HeartbeatResponse",
				boolean("ok"),
				boolean("known"),
				str("device_id"),
				str("server_time"),
			),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("Ingestion"),
			Method: []*descriptorpb.MethodDescriptorProto{
				{
					Name:       proto.String("SubmitCapture"),
					InputType:  proto.String(".attendance.v1.CaptureRequest"),
					OutputType: proto.String(".attendance.v1.CaptureResponse"),
				},
				{
					Name:       proto.String("Heartbeat"),
					InputType:  proto.String(".attendance.v1.HeartbeatRequest"),
					OutputType: proto.String(".attendance.v1.HeartbeatResponse"),
				},
			},
		}},
	}
}

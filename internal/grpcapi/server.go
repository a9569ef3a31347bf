// Package grpcapi serves the attendance.v1.Ingestion service. Messages are
// the dynamic descriptors from api/attendance/v1, so the service descriptor
// is declared by hand instead of generated.
package grpcapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	v1 "github.com/BXA21/NFCCARDREADER-SYSTEM/api/attendance/v1"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/service"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/clock"
)

// ReplayMetadataKey is set in the response header of a replayed capture.
const ReplayMetadataKey = "idempotent-replayed"

type Dependencies struct {
	Logger           *slog.Logger
	Clock            clock.Clock
	IngestionService *service.IngestionService
	HeartbeatService *service.HeartbeatService
}

type Server struct {
	grpcServer       *grpc.Server
	logger           *slog.Logger
	clock            clock.Clock
	ingestionService *service.IngestionService
	heartbeatService *service.HeartbeatService
}

// ingestionServer is the handler type the service descriptor dispatches to.
type ingestionServer interface {
	submitCapture(ctx context.Context, req types.CaptureRequest) (types.CaptureResponse, error)
	heartbeat(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: v1.ServiceName,
	HandlerType: (*ingestionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitCapture", Handler: submitCaptureHandler},
		{MethodName: "Heartbeat", Handler: heartbeatHandler},
	},
	Metadata: v1.File.Path(),
}

func NewServer(d Dependencies, opts ...grpc.ServerOption) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}

	s := &Server{
		logger:           d.Logger,
		clock:            d.Clock,
		ingestionService: d.IngestionService,
		heartbeatService: d.HeartbeatService,
	}

	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(loggingInterceptor(d.Logger))}, opts...)
	s.grpcServer = grpc.NewServer(opts...)
	s.grpcServer.RegisterService(&serviceDesc, s)
	return s
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Shutdown stops accepting RPCs and waits for in-flight ones until ctx is
// done, then forces the remainder closed.
func (s *Server) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

func submitCaptureHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := v1.NewCaptureRequest()
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		resp, err := srv.(ingestionServer).submitCapture(ctx, v1.CaptureRequestFromProto(in))
		if err != nil {
			return nil, err
		}
		return v1.CaptureResponseToProto(resp), nil
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: v1.SubmitCaptureMethod}, call)
}

func heartbeatHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := v1.NewHeartbeatRequest()
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		resp, err := srv.(ingestionServer).heartbeat(ctx, v1.HeartbeatRequestFromProto(in))
		if err != nil {
			return nil, err
		}
		return v1.HeartbeatResponseToProto(resp), nil
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: v1.HeartbeatMethod}, call)
}

func (s *Server) submitCapture(ctx context.Context, req types.CaptureRequest) (types.CaptureResponse, error) {
	occurredAt, err := time.Parse(time.RFC3339Nano, req.OccurredAt)
	if err != nil {
		return types.CaptureResponse{}, status.Error(codes.InvalidArgument, "occurred_at must be an RFC3339 timestamp")
	}

	res, err := s.ingestionService.Submit(ctx, service.SubmitCommand{
		DeviceID:       req.DeviceID,
		APIKey:         apiKey(ctx),
		BadgeID:        req.BadgeID,
		OccurredAt:     occurredAt,
		IdempotencyKey: req.IdempotencyKey,
		Deferred:       req.Attempt > 0,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return types.CaptureResponse{}, status.Error(codes.InvalidArgument, err.Error())
		}
		s.logger.ErrorContext(ctx, "capture submission failed",
			"device_id", req.DeviceID, "idempotency_key", req.IdempotencyKey, "err", err)
		return types.CaptureResponse{}, status.Error(codes.Internal, "unexpected server error")
	}

	if res.Kind == service.ResultRejected {
		return types.CaptureResponse{}, status.Error(rejectionCode(res.Reason), string(res.Reason))
	}
	if res.Replayed {
		_ = grpc.SetHeader(ctx, metadata.Pairs(ReplayMetadataKey, "true"))
	}
	return res.Response(s.clock.Now()), nil
}

// rejectionCode maps a terminal rejection to a status code. The status
// message carries the reason code.
func rejectionCode(reason types.Reason) codes.Code {
	switch reason {
	case types.ReasonDeviceUnauthenticated:
		return codes.Unauthenticated
	case types.ReasonBadgeRevoked, types.ReasonBadgeLost, types.ReasonSubjectInactive:
		return codes.PermissionDenied
	case types.ReasonDuplicateWithinWindow:
		return codes.AlreadyExists
	}
	return codes.InvalidArgument
}

func (s *Server) heartbeat(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error) {
	resp, err := s.heartbeatService.Record(ctx, apiKey(ctx), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return types.HeartbeatResponse{}, status.Error(codes.InvalidArgument, err.Error())
		}
		s.logger.ErrorContext(ctx, "heartbeat failed", "device_id", req.DeviceID, "err", err)
		return types.HeartbeatResponse{}, status.Error(codes.Internal, "unexpected server error")
	}
	return resp, nil
}

// apiKey reads the device key from "authorization: Bearer <key>" or
// "x-api-key" metadata.
func apiKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get("authorization") {
		scheme, token, ok := strings.Cut(strings.TrimSpace(v), " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if v := md.Get("x-api-key"); len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		level := slog.LevelInfo
		if code == codes.Internal || code == codes.Unknown {
			level = slog.LevelError
		}
		logger.LogAttrs(ctx, level, "grpc request",
			slog.String("method", info.FullMethod),
			slog.String("code", code.String()),
			slog.Duration("dur", time.Since(start)),
		)
		return resp, err
	}
}

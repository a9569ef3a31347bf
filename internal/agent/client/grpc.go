package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	v1 "github.com/BXA21/NFCCARDREADER-SYSTEM/api/attendance/v1"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
)

type GRPCConfig struct {
	Addr    string
	APIKey  string
	Timeout time.Duration
	// DialOptions replace the default insecure transport credentials.
	DialOptions []grpc.DialOption
}

type GRPCClient struct {
	conn    *grpc.ClientConn
	apiKey  string
	timeout time.Duration
}

func NewGRPC(cfg GRPCConfig) (*GRPCClient, error) {
	opts := cfg.DialOptions
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", cfg.Addr, err)
	}
	return &GRPCClient{conn: conn, apiKey: cfg.APIKey, timeout: cfg.Timeout}, nil
}

func (c *GRPCClient) Close() error { return c.conn.Close() }

func (c *GRPCClient) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.apiKey)
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

func (c *GRPCClient) Submit(ctx context.Context, req types.CaptureRequest) (Result, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	out := v1.NewCaptureResponse()
	if err := c.conn.Invoke(ctx, v1.SubmitCaptureMethod, v1.CaptureRequestToProto(req), out); err != nil {
		return Result{}, classifyStatus(err)
	}
	return resultFrom(v1.CaptureResponseFromProto(out)), nil
}

func (c *GRPCClient) Heartbeat(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	out := v1.NewHeartbeatResponse()
	if err := c.conn.Invoke(ctx, v1.HeartbeatMethod, v1.HeartbeatRequestToProto(req), out); err != nil {
		return types.HeartbeatResponse{}, classifyStatus(err)
	}
	return v1.HeartbeatResponseFromProto(out), nil
}

func classifyStatus(err error) error {
	st := status.Convert(err)
	code := int(st.Code())

	switch st.Code() {
	case codes.Unauthenticated:
		return terminal(code, string(types.ReasonDeviceUnauthenticated), err)
	case codes.AlreadyExists:
		return terminal(code, string(types.ReasonDuplicateWithinWindow), err)
	case codes.PermissionDenied, codes.InvalidArgument, codes.FailedPrecondition, codes.NotFound:
		reason := st.Message()
		if !knownReason(reason) {
			reason = string(types.ReasonInvalidRequest)
		}
		return terminal(code, reason, err)
	}
	// Unavailable, DeadlineExceeded, Internal, Unknown and the rest leave
	// the outcome unknown.
	return retryable(code, err)
}

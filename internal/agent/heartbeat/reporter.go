// Package heartbeat reports agent liveness and buffer health to the server.
package heartbeat

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent/buffer"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/clock"
)

const (
	DefaultInterval = time.Minute
	DefaultTimeout  = 10 * time.Second
)

type StatsSource interface {
	Stats(ctx context.Context) (buffer.Stats, error)
}

type Sender interface {
	Heartbeat(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error)
}

type Config struct {
	DeviceID     string
	AgentVersion string
	Interval     time.Duration
	Timeout      time.Duration
}

type Dependencies struct {
	Stats  StatsSource
	Sender Sender
	Clock  clock.Clock
	Logger *slog.Logger
	// LocalIP overrides interface address discovery.
	LocalIP func() string
	Config  Config
}

type Reporter struct {
	stats   StatsSource
	sender  Sender
	clock   clock.Clock
	logger  *slog.Logger
	localIP func() string
	cfg     Config
	started time.Time
	seq     uint64
	known   *bool
}

func New(d Dependencies) *Reporter {
	if d.Config.Interval <= 0 {
		d.Config.Interval = DefaultInterval
	}
	if d.Config.Timeout <= 0 {
		d.Config.Timeout = DefaultTimeout
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.LocalIP == nil {
		d.LocalIP = interfaceIP
	}
	return &Reporter{
		stats:   d.Stats,
		sender:  d.Sender,
		clock:   d.Clock,
		logger:  d.Logger,
		localIP: d.LocalIP,
		cfg:     d.Config,
		started: d.Clock.Now(),
	}
}

// Run sends a heartbeat immediately and then every Interval until ctx is
// cancelled. Failures are logged and never stop the reporter.
func (r *Reporter) Run(ctx context.Context) error {
	for {
		if _, err := r.Send(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("heartbeat failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-r.clock.After(r.cfg.Interval):
		}
	}
}

// Send reports once. Run calls it from a single goroutine; concurrent
// callers must serialise.
func (r *Reporter) Send(ctx context.Context) (types.HeartbeatResponse, error) {
	stats, err := r.stats.Stats(ctx)
	if err != nil {
		r.logger.Warn("buffer stats unavailable", "err", err)
	}

	r.seq++
	req := types.HeartbeatRequest{
		DeviceID:      r.cfg.DeviceID,
		AgentVersion:  r.cfg.AgentVersion,
		UptimeSeconds: uint64(r.clock.Now().Sub(r.started) / time.Second),
		PendingCount:  stats.Pending,
		FailedCount:   stats.Failed,
		RejectedCount: stats.Rejected,
		IP:            r.localIP(),
		Sequence:      r.seq,
	}
	if stats.OldestPending != nil {
		req.OldestPendingAt = stats.OldestPending.UTC().Format(time.RFC3339)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	resp, err := r.sender.Heartbeat(ctx, req)
	if err != nil {
		return types.HeartbeatResponse{}, err
	}

	// Log registry membership only when it changes.
	if r.known == nil || *r.known != resp.Known {
		known := resp.Known
		r.known = &known
		if known {
			r.logger.Info("server recognises device", "device_id", r.cfg.DeviceID)
		} else {
			r.logger.Warn("server does not recognise device; check device id and key", "device_id", r.cfg.DeviceID)
		}
	}
	r.logger.Debug("heartbeat sent", "seq", r.seq, "pending", stats.Pending, "failed", stats.Failed)
	return resp, nil
}

// interfaceIP returns the first non-loopback IPv4 address, or "".
func interfaceIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}

// Package capture runs the edge read loop: poll the reader, debounce, queue
// each tap durably and give immediate feedback. It never touches the
// network.
package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/agent/buffer"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/clock"
)

const (
	DefaultPollInterval     = 200 * time.Millisecond
	DefaultReaderRetryDelay = time.Second
)

// Queue is the durable buffer as seen by the loop.
type Queue interface {
	Enqueue(ctx context.Context, c buffer.Capture) (string, error)
}

type Config struct {
	DeviceID         string
	PollInterval     time.Duration
	ReaderRetryDelay time.Duration
}

type Dependencies struct {
	Reader   Reader
	Queue    Queue
	Tracker  *OptimisticTracker
	Notifier Notifier // optional
	Trigger  func()   // optional, called after each queued tap
	Clock    clock.Clock
	Logger   *slog.Logger
	Config   Config
}

type Loop struct {
	reader   Reader
	queue    Queue
	tracker  *OptimisticTracker
	notifier Notifier
	trigger  func()
	clock    clock.Clock
	logger   *slog.Logger
	cfg      Config
	debounce debouncer
}

func NewLoop(d Dependencies) *Loop {
	if d.Config.PollInterval <= 0 {
		d.Config.PollInterval = DefaultPollInterval
	}
	if d.Config.ReaderRetryDelay <= 0 {
		d.Config.ReaderRetryDelay = DefaultReaderRetryDelay
	}
	if d.Tracker == nil {
		d.Tracker = NewOptimisticTracker(time.Minute, nil)
	}
	if d.Notifier == nil {
		d.Notifier = NotifierFunc(func(Feedback) {})
	}
	if d.Trigger == nil {
		d.Trigger = func() {}
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Loop{
		reader:   d.Reader,
		queue:    d.Queue,
		tracker:  d.Tracker,
		notifier: d.Notifier,
		trigger:  d.Trigger,
		clock:    d.Clock,
		logger:   d.Logger,
		cfg:      d.Config,
	}
}

// Run polls until ctx is cancelled. Reader errors are logged and retried;
// they never end the loop.
func (l *Loop) Run(ctx context.Context) error {
	for {
		delay := l.cfg.PollInterval

		tag, present, err := l.reader.Poll(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			l.logger.WarnContext(ctx, "reader poll failed", "err", err, "retry_in", l.cfg.ReaderRetryDelay)
			l.debounce.observe("", false)
			delay = l.cfg.ReaderRetryDelay
		case l.debounce.observe(tag, present):
			l.handleTap(ctx, tag)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(delay):
		}
	}
}

func (l *Loop) handleTap(ctx context.Context, tag string) {
	now := l.clock.Now().UTC()

	badgeID, err := types.NormalizeBadgeID(tag)
	if err != nil {
		l.logger.WarnContext(ctx, "ignoring unreadable tag", "raw", tag, "err", err)
		l.notifier.Notify(Feedback{Kind: FeedbackInvalid, At: now, Err: err})
		return
	}

	pred := l.tracker.Observe(badgeID, now)
	capture := buffer.Capture{
		BadgeID:    badgeID,
		DeviceID:   l.cfg.DeviceID,
		CapturedAt: now,
	}
	if !pred.Duplicate {
		capture.OptimisticDirection = string(pred.Direction)
	}

	localID, err := l.queue.Enqueue(ctx, capture)
	if err != nil {
		l.logger.ErrorContext(ctx, "tap not recorded", "badge_id", badgeID, "err", err)
		l.notifier.Notify(Feedback{Kind: FeedbackFailed, BadgeID: badgeID, At: now, Err: err})
		return
	}

	kind := FeedbackAccepted
	if pred.Duplicate {
		kind = FeedbackDuplicate
	}
	l.logger.InfoContext(ctx, "tap queued",
		"local_id", localID, "badge_id", badgeID, "optimistic", capture.OptimisticDirection)
	l.notifier.Notify(Feedback{Kind: kind, BadgeID: badgeID, Direction: pred.Direction, LocalID: localID, At: now})
	l.trigger()
}

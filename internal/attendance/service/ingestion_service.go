package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/moby/locker"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/enrollment"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/clock"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/ids"
)

var (
	ErrInvalidRequest = errors.New("invalid request")

	// ErrDeviceUnauthenticated is returned by operations that have no
	// result value to carry a rejection in.
	ErrDeviceUnauthenticated = errors.New("device unauthenticated")
)

const (
	DefaultAntiPassbackWindow = 60 * time.Second
	DefaultLiveThreshold      = 30 * time.Second
	defaultAppendAttempts     = 5
	maxIdempotencyKeyLen      = 128
)

// EventPublisher receives every newly created canonical event after it is
// committed.
type EventPublisher interface {
	Publish(ctx context.Context, ev types.CanonicalEvent) error
}

type IngestionConfig struct {
	AntiPassbackWindow time.Duration
	LiveThreshold      time.Duration
	Day                DayBoundary
	MaxAppendAttempts  int
}

type IngestionDependencies struct {
	Registry  *DeviceRegistry
	Events    store.EventStore
	Bindings  store.BindingStore
	Audit     store.AuditStore
	Mailbox   *enrollment.Mailbox
	Publisher EventPublisher // optional
	IDs       ids.Generator
	Clock     clock.Clock
	Logger    *slog.Logger
	Config    IngestionConfig
}

type IngestionService struct {
	registry  *DeviceRegistry
	events    store.EventStore
	bindings  store.BindingStore
	audit     store.AuditStore
	mailbox   *enrollment.Mailbox
	publisher EventPublisher
	ids       ids.Generator
	clock     clock.Clock
	logger    *slog.Logger
	cfg       IngestionConfig
	locks     *locker.Locker
}

func NewIngestionService(d IngestionDependencies) *IngestionService {
	cfg := d.Config
	if cfg.AntiPassbackWindow <= 0 {
		cfg.AntiPassbackWindow = DefaultAntiPassbackWindow
	}
	if cfg.LiveThreshold <= 0 {
		cfg.LiveThreshold = DefaultLiveThreshold
	}
	if cfg.MaxAppendAttempts <= 0 {
		cfg.MaxAppendAttempts = defaultAppendAttempts
	}
	if d.IDs == nil {
		d.IDs = ids.UUIDv7{}
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	return &IngestionService{
		registry:  d.Registry,
		events:    d.Events,
		bindings:  d.Bindings,
		audit:     d.Audit,
		mailbox:   d.Mailbox,
		publisher: d.Publisher,
		ids:       d.IDs,
		clock:     d.Clock,
		logger:    d.Logger,
		cfg:       cfg,
		locks:     locker.New(),
	}
}

// Submit ingests one capture. Rejections and enrollment redirects are
// reported in the result; a non-nil error means the request was malformed
// (wrapping ErrInvalidRequest) or the server failed and the client should
// retry.
func (s *IngestionService) Submit(ctx context.Context, cmd SubmitCommand) (SubmitResult, error) {
	cmd.DeviceID = strings.TrimSpace(cmd.DeviceID)
	cmd.IdempotencyKey = strings.TrimSpace(cmd.IdempotencyKey)

	if cmd.DeviceID == "" {
		return SubmitResult{}, fmt.Errorf("%w: device_id is required", ErrInvalidRequest)
	}
	if cmd.IdempotencyKey == "" || len(cmd.IdempotencyKey) > maxIdempotencyKeyLen {
		return SubmitResult{}, fmt.Errorf("%w: idempotency_key is required (max %d chars)", ErrInvalidRequest, maxIdempotencyKeyLen)
	}
	if cmd.OccurredAt.IsZero() {
		return SubmitResult{}, fmt.Errorf("%w: occurred_at is required", ErrInvalidRequest)
	}
	badgeID, err := types.NormalizeBadgeID(cmd.BadgeID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	cmd.BadgeID = badgeID
	// Stores keep millisecond precision; truncating here keeps a created
	// event identical to its later replays.
	cmd.OccurredAt = cmd.OccurredAt.UTC().Truncate(time.Millisecond)

	ok, err := s.registry.Authenticate(ctx, cmd.DeviceID, cmd.APIKey)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("authenticate device: %w", err)
	}
	if err := s.registry.NoteSeen(ctx, cmd.DeviceID, ok); err != nil {
		s.logger.WarnContext(ctx, "device last-seen update failed", "device_id", cmd.DeviceID, "err", err)
	}
	if !ok {
		return s.finish(ctx, cmd, rejected(types.ReasonDeviceUnauthenticated)), nil
	}

	if prior, err := s.events.GetByIdempotencyKey(ctx, cmd.IdempotencyKey); err == nil {
		return s.finish(ctx, cmd, SubmitResult{Kind: ResultEventCreated, Event: &prior, Replayed: true}), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return SubmitResult{}, fmt.Errorf("idempotency lookup: %w", err)
	}

	binding, err := s.bindings.GetBinding(ctx, cmd.BadgeID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return SubmitResult{}, fmt.Errorf("binding lookup: %w", err)
	}

	switch {
	case binding.State == store.BindingRevoked:
		return s.finish(ctx, cmd, rejected(types.ReasonBadgeRevoked)), nil
	case binding.State == store.BindingLost:
		return s.finish(ctx, cmd, rejected(types.ReasonBadgeLost)), nil
	case !binding.Bound():
		return s.redirect(ctx, cmd)
	case !binding.SubjectActive:
		return s.finish(ctx, cmd, rejected(types.ReasonSubjectInactive)), nil
	}

	res, err := s.appendForSubject(ctx, cmd, binding.SubjectID)
	if err != nil {
		return SubmitResult{}, err
	}
	return s.finish(ctx, cmd, res), nil
}

// redirect answers an unassigned badge. Only a first delivery of a tap that
// is still within the mailbox TTL is offered to provisioning; retries and
// backlog taps are acknowledged without touching the slot.
func (s *IngestionService) redirect(ctx context.Context, cmd SubmitCommand) (SubmitResult, error) {
	res := SubmitResult{Kind: ResultEnrollmentRedirect}

	seen, err := s.audit.HasDecision(ctx, cmd.IdempotencyKey, types.OutcomeEnrollmentRedirect)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("redirect lookup: %w", err)
	}
	if seen {
		res.Replayed = true
		return s.finish(ctx, cmd, res), nil
	}

	if age := s.clock.Now().Sub(cmd.OccurredAt); age > s.mailbox.TTL() {
		s.logger.InfoContext(ctx, "stale unassigned badge not offered to enrollment",
			"badge_id", cmd.BadgeID, "device_id", cmd.DeviceID, "age", age)
		return s.finish(ctx, cmd, res), nil
	}

	slot := s.mailbox.Publish(cmd.BadgeID, cmd.DeviceID)
	res.Enrollment = &slot
	s.logger.InfoContext(ctx, "unassigned badge sent to enrollment",
		"badge_id", cmd.BadgeID, "device_id", cmd.DeviceID)
	return s.finish(ctx, cmd, res), nil
}

// appendForSubject runs the anti-passback check, direction inference and
// append for one subject. The in-process lock serialises submissions for
// the subject; the store's compare-and-swap covers writers in other
// processes.
func (s *IngestionService) appendForSubject(ctx context.Context, cmd SubmitCommand, subjectID string) (SubmitResult, error) {
	s.locks.Lock(subjectID)
	defer s.locks.Unlock(subjectID)

	for attempt := 0; attempt < s.cfg.MaxAppendAttempts; attempt++ {
		// A concurrent retry of the same capture may have committed while
		// this one waited for the lock.
		if prior, err := s.events.GetByIdempotencyKey(ctx, cmd.IdempotencyKey); err == nil {
			return SubmitResult{Kind: ResultEventCreated, Event: &prior, Replayed: true}, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return SubmitResult{}, fmt.Errorf("idempotency lookup: %w", err)
		}

		var last *types.CanonicalEvent
		prev, err := s.events.LastForSubject(ctx, subjectID)
		switch {
		case err == nil:
			last = &prev
		case errors.Is(err, store.ErrNotFound):
		default:
			return SubmitResult{}, fmt.Errorf("last event lookup: %w", err)
		}

		if last != nil && cmd.OccurredAt.Sub(last.OccurredAt) < s.cfg.AntiPassbackWindow {
			return rejected(types.ReasonDuplicateWithinWindow), nil
		}

		now := s.clock.Now().UTC().Truncate(time.Millisecond)
		day := s.cfg.Day.Day(cmd.OccurredAt)
		ev := types.CanonicalEvent{
			EventID:        s.ids.Generate(),
			SubjectID:      subjectID,
			BadgeID:        cmd.BadgeID,
			Direction:      inferDirection(last, day),
			OccurredAt:     cmd.OccurredAt,
			DeviceID:       cmd.DeviceID,
			IdempotencyKey: cmd.IdempotencyKey,
			ReceivedVia:    s.receivedVia(cmd, now),
			ReceivedAt:     now,
			AttendanceDay:  day,
		}

		prevID := ""
		if last != nil {
			prevID = last.EventID
		}

		err = s.events.Append(ctx, ev, prevID)
		switch {
		case err == nil:
			s.publish(ctx, ev)
			return SubmitResult{Kind: ResultEventCreated, Event: &ev}, nil
		case errors.Is(err, store.ErrConflict):
			s.logger.DebugContext(ctx, "subject ledger moved, retrying",
				"subject_id", subjectID, "attempt", attempt+1)
			continue
		case errors.Is(err, store.ErrDuplicateKey):
			winner, gerr := s.events.GetByIdempotencyKey(ctx, cmd.IdempotencyKey)
			if gerr != nil {
				return SubmitResult{}, fmt.Errorf("load concurrent winner: %w", gerr)
			}
			return SubmitResult{Kind: ResultEventCreated, Event: &winner, Replayed: true}, nil
		default:
			return SubmitResult{}, fmt.Errorf("append event: %w", err)
		}
	}

	return SubmitResult{}, fmt.Errorf("append event for %s: %w", subjectID, store.ErrConflict)
}

func (s *IngestionService) receivedVia(cmd SubmitCommand, now time.Time) types.ReceivedVia {
	if cmd.Deferred || now.Sub(cmd.OccurredAt) > s.cfg.LiveThreshold {
		return types.ReceivedDeferredSync
	}
	return types.ReceivedLive
}

func (s *IngestionService) publish(ctx context.Context, ev types.CanonicalEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "event publish failed", "event_id", ev.EventID, "err", err)
	}
}

// finish appends the decision to the audit log and returns res. A failed
// audit write is logged but does not change the submission's outcome.
func (s *IngestionService) finish(ctx context.Context, cmd SubmitCommand, res SubmitResult) SubmitResult {
	occurred := cmd.OccurredAt
	rec := store.SubmissionAuditRecord{
		DeviceID:       cmd.DeviceID,
		BadgeID:        cmd.BadgeID,
		IdempotencyKey: cmd.IdempotencyKey,
		OccurredAt:     &occurred,
		Outcome:        res.Kind.String(),
		Reason:         string(res.Reason),
		DecidedAt:      s.clock.Now().UTC(),
	}
	if res.Event != nil {
		rec.EventID = res.Event.EventID
	}

	if err := s.audit.RecordSubmission(ctx, rec); err != nil {
		s.logger.WarnContext(ctx, "submission audit write failed",
			"idempotency_key", cmd.IdempotencyKey, "err", err)
	}

	if res.Kind == ResultRejected {
		s.logger.InfoContext(ctx, "submission rejected",
			"device_id", cmd.DeviceID, "badge_id", cmd.BadgeID, "reason", string(res.Reason))
	}
	return res
}

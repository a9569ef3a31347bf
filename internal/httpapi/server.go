package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/BXA21/NFCCARDREADER-SYSTEM/api/attendance/v1"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/service"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/clock"
)

// ReplayHeader is set on capture responses that return an event created by
// an earlier submission with the same idempotency key.
const ReplayHeader = "Idempotent-Replayed"

type Dependencies struct {
	Logger             *slog.Logger
	Addr               string
	Clock              clock.Clock
	IngestionService   *service.IngestionService
	HeartbeatService   *service.HeartbeatService
	EnrollmentService  *service.EnrollmentService
	ProvisioningTokens []string
}

type Server struct {
	httpServer        *http.Server
	logger            *slog.Logger
	clock             clock.Clock
	ingestionService  *service.IngestionService
	heartbeatService  *service.HeartbeatService
	enrollmentService *service.EnrollmentService
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}

	s := &Server{
		logger:            d.Logger,
		clock:             d.Clock,
		ingestionService:  d.IngestionService,
		heartbeatService:  d.HeartbeatService,
		enrollmentService: d.EnrollmentService,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware(d.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/captures", s.handleCapture)
		r.Post("/heartbeat", s.handleHeartbeat)
		r.Post("/enrollment/detect", s.handleEnrollmentDetect)

		r.Group(func(r chi.Router) {
			r.Use(provisioningAuth(d.ProvisioningTokens))
			r.Get("/enrollment/next", s.handleEnrollmentNext)
			r.Get("/enrollment/status", s.handleEnrollmentStatus)
		})
	})

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeBody(w, formatJSON, http.StatusOK, map[string]string{
		"status":      "healthy",
		"server_time": s.clock.Now().UTC().Format(time.RFC3339Nano),
	})
}

// ── Captures ─────────────────────────────────────────────────────────────────

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	f := requestFormat(r)

	var req types.CaptureRequest
	if f == formatProtobuf {
		msg := v1.NewCaptureRequest()
		if err := readProto(r, msg); err != nil {
			s.writeCaptureInvalid(w, f, "invalid protobuf body")
			return
		}
		req = v1.CaptureRequestFromProto(msg)
	} else if err := decodeBody(r, f, &req); err != nil {
		s.writeCaptureInvalid(w, f, "invalid request body")
		return
	}

	occurredAt, err := time.Parse(time.RFC3339Nano, req.OccurredAt)
	if err != nil {
		s.writeCaptureInvalid(w, f, "occurred_at must be an RFC3339 timestamp")
		return
	}

	res, err := s.ingestionService.Submit(r.Context(), service.SubmitCommand{
		DeviceID:       req.DeviceID,
		APIKey:         deviceKey(r),
		BadgeID:        req.BadgeID,
		OccurredAt:     occurredAt,
		IdempotencyKey: req.IdempotencyKey,
		Deferred:       req.Attempt > 0,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			s.writeCaptureInvalid(w, f, err.Error())
			return
		}
		s.logger.ErrorContext(r.Context(), "capture submission failed",
			"device_id", req.DeviceID, "idempotency_key", req.IdempotencyKey, "err", err)
		writeError(w, f, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	if res.Replayed {
		w.Header().Set(ReplayHeader, "true")
	}
	s.writeCapture(w, f, captureStatus(res), res.Response(s.clock.Now()))
}

// captureStatus maps a submission outcome to its HTTP status.
func captureStatus(res service.SubmitResult) int {
	switch res.Kind {
	case service.ResultEventCreated:
		if res.Replayed {
			return http.StatusOK
		}
		return http.StatusCreated
	case service.ResultEnrollmentRedirect:
		return http.StatusAccepted
	}

	switch res.Reason {
	case types.ReasonDeviceUnauthenticated:
		return http.StatusUnauthorized
	case types.ReasonBadgeRevoked, types.ReasonBadgeLost, types.ReasonSubjectInactive:
		return http.StatusForbidden
	case types.ReasonDuplicateWithinWindow:
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

func (s *Server) writeCaptureInvalid(w http.ResponseWriter, f wireFormat, msg string) {
	s.writeCapture(w, f, http.StatusBadRequest, types.CaptureResponse{
		OK:         false,
		Outcome:    types.OutcomeRejected,
		Reason:     string(types.ReasonInvalidRequest),
		Message:    msg,
		ServerTime: s.clock.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) writeCapture(w http.ResponseWriter, f wireFormat, status int, resp types.CaptureResponse) {
	if f == formatProtobuf {
		writeProto(w, status, v1.CaptureResponseToProto(resp))
		return
	}
	writeBody(w, f, status, resp)
}

// ── Heartbeat ────────────────────────────────────────────────────────────────

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	f := requestFormat(r)

	var req types.HeartbeatRequest
	if f == formatProtobuf {
		msg := v1.NewHeartbeatRequest()
		if err := readProto(r, msg); err != nil {
			writeError(w, f, http.StatusBadRequest, "bad_proto", "invalid protobuf body")
			return
		}
		req = v1.HeartbeatRequestFromProto(msg)
	} else if err := decodeBody(r, f, &req); err != nil {
		writeError(w, f, http.StatusBadRequest, "bad_body", "invalid request body")
		return
	}

	resp, err := s.heartbeatService.Record(r.Context(), deviceKey(r), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			writeError(w, f, http.StatusBadRequest, string(types.ReasonInvalidRequest), err.Error())
			return
		}
		s.logger.ErrorContext(r.Context(), "heartbeat failed", "device_id", req.DeviceID, "err", err)
		writeError(w, f, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	if f == formatProtobuf {
		writeProto(w, http.StatusOK, v1.HeartbeatResponseToProto(resp))
		return
	}
	writeBody(w, f, http.StatusOK, resp)
}

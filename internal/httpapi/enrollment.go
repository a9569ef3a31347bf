package httpapi

import (
	"errors"
	"net/http"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/service"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
)

func (s *Server) handleEnrollmentDetect(w http.ResponseWriter, r *http.Request) {
	f := requestFormat(r)
	if f == formatProtobuf {
		writeError(w, f, http.StatusUnsupportedMediaType, "unsupported_media_type", errUnsupportedFormat.Error())
		return
	}

	var req types.EnrollmentDetectRequest
	if err := decodeBody(r, f, &req); err != nil {
		writeError(w, f, http.StatusBadRequest, "bad_body", "invalid request body")
		return
	}

	slot, err := s.enrollmentService.Detect(r.Context(), deviceKey(r), req)
	switch {
	case err == nil:
		writeBody(w, f, http.StatusAccepted, slot)
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(w, f, http.StatusBadRequest, string(types.ReasonInvalidRequest), err.Error())
	case errors.Is(err, service.ErrDeviceUnauthenticated):
		writeError(w, f, http.StatusUnauthorized, string(types.ReasonDeviceUnauthenticated), "device credentials rejected")
	default:
		s.logger.ErrorContext(r.Context(), "enrollment detect failed", "device_id", req.DeviceID, "err", err)
		writeError(w, f, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}

// handleEnrollmentNext hands the pending badge to one provisioning client.
// An empty mailbox answers 204.
func (s *Server) handleEnrollmentNext(w http.ResponseWriter, r *http.Request) {
	slot, ok := s.enrollmentService.Next(r.Context())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeBody(w, acceptFormat(r), http.StatusOK, slot)
}

func (s *Server) handleEnrollmentStatus(w http.ResponseWriter, r *http.Request) {
	writeBody(w, acceptFormat(r), http.StatusOK, s.enrollmentService.Status(r.Context()))
}

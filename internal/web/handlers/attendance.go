package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/route-attendance/internal/attendance"
	"github.com/kozaktomas/route-attendance/internal/constants"
)

// AttendanceHandler handles attendance submission and route views
type AttendanceHandler struct {
	service *attendance.Service
	logger  *zap.Logger
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(svc *attendance.Service, logger *zap.Logger) *AttendanceHandler {
	return &AttendanceHandler{service: svc, logger: logger}
}

// SubmitRequest represents a probe submitted as a vector. The submission
// time is always the server's clock.
type SubmitRequest struct {
	Embedding []float32 `json:"embedding"`
}

// Submit matches a probe against the route and records attendance. The probe
// is either a JSON embedding or a multipart "image" file. Every decided
// outcome, including no_match and ambiguous, is a 200 response.
func (h *AttendanceHandler) Submit(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "route")

	var (
		result attendance.Result
		err    error
	)
	if isMultipart(r) {
		image, readErr := readImage(w, r)
		if readErr != nil {
			respondServiceError(w, r, h.logger, readErr)
			return
		}
		result, err = h.service.AttendImage(r.Context(), routeID, image, time.Time{})
	} else {
		var req SubmitRequest
		if decodeErr := decodeJSON(w, r, &req); decodeErr != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
		result, err = h.service.Attend(r.Context(), routeID, req.Embedding, time.Time{})
	}

	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Day returns the attendance of the route for ?date=, today by default.
func (h *AttendanceHandler) Day(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r, h.service.Today())
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	day, err := h.service.Day(r.Context(), chi.URLParam(r, "route"), date)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, dayResponse(day))
}

// Audit returns the newest audit entries of the route.
func (h *AttendanceHandler) Audit(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, constants.DefaultAuditLimit)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	entries, err := h.service.AuditLog(r.Context(), chi.URLParam(r, "route"), limit)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	resp := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, auditResponse(e))
	}
	respondJSON(w, http.StatusOK, resp)
}

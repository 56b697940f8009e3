package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/route-attendance/internal/attendance"
	"github.com/kozaktomas/route-attendance/internal/constants"
	"github.com/kozaktomas/route-attendance/internal/database"
)

// IdentitiesHandler handles identity endpoints
type IdentitiesHandler struct {
	service *attendance.Service
	logger  *zap.Logger
}

// NewIdentitiesHandler creates a new identities handler
func NewIdentitiesHandler(svc *attendance.Service, logger *zap.Logger) *IdentitiesHandler {
	return &IdentitiesHandler{service: svc, logger: logger}
}

// Search finds identities by ?name=.
func (h *IdentitiesHandler) Search(w http.ResponseWriter, r *http.Request) {
	identities, err := h.service.FindIdentities(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	resp := make([]IdentityResponse, 0, len(identities))
	for _, i := range identities {
		resp = append(resp, identityResponse(i))
	}
	respondJSON(w, http.StatusOK, resp)
}

// Get returns one identity.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, err := h.service.Identity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, identityResponse(*identity))
}

// Deactivate excludes the identity from matching.
func (h *IdentitiesHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Attendance returns the identity's history, or with ?date= whether the
// identity is marked on that day.
func (h *IdentitiesHandler) Attendance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if r.URL.Query().Has("date") {
		h.status(w, r, id)
		return
	}

	limit, err := parseLimit(r, constants.DefaultHistoryLimit)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	records, err := h.service.History(r.Context(), id, limit)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	resp := make([]AttendanceRecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, recordResponse(rec))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *IdentitiesHandler) status(w http.ResponseWriter, r *http.Request, id string) {
	date, err := database.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	rec, err := h.service.Status(r.Context(), id, date)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	resp := StatusResponse{IdentityID: id, Date: date.String(), Present: rec != nil}
	if rec != nil {
		out := recordResponse(*rec)
		resp.Record = &out
	}
	respondJSON(w, http.StatusOK, resp)
}

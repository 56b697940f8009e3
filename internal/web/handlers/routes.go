package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/route-attendance/internal/attendance"
)

// RoutesHandler handles route and enrollment endpoints
type RoutesHandler struct {
	service *attendance.Service
	logger  *zap.Logger
}

// NewRoutesHandler creates a new routes handler
func NewRoutesHandler(svc *attendance.Service, logger *zap.Logger) *RoutesHandler {
	return &RoutesHandler{service: svc, logger: logger}
}

// CreateRouteRequest represents the request body for creating a route
type CreateRouteRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

// List returns all routes.
func (h *RoutesHandler) List(w http.ResponseWriter, r *http.Request) {
	routes, err := h.service.ListRoutes(r.Context())
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	resp := make([]RouteResponse, 0, len(routes))
	for _, route := range routes {
		resp = append(resp, routeResponse(route))
	}
	respondJSON(w, http.StatusOK, resp)
}

// Create creates a route with an optional enrollment secret.
func (h *RoutesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRouteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	route, err := h.service.CreateRoute(r.Context(), req.ID, req.Name, req.Secret)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, routeResponse(*route))
}

// EnrollRequest represents the JSON body for enrolling from a vector
type EnrollRequest struct {
	IdentityID string    `json:"identity_id"`
	Name       string    `json:"name"`
	Secret     string    `json:"secret"`
	Embedding  []float32 `json:"embedding"`
}

// Enroll enrolls an identity into the route. It accepts either a JSON body
// with an embedding or a multipart form with an "image" file.
func (h *RoutesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	req := attendance.EnrollRequest{RouteID: chi.URLParam(r, "route")}

	if isMultipart(r) {
		image, err := readImage(w, r)
		if err != nil {
			respondServiceError(w, r, h.logger, err)
			return
		}
		req.Image = image
		req.IdentityID = r.FormValue("identity_id")
		req.Name = r.FormValue("name")
		req.Secret = r.FormValue("secret")
	} else {
		var body EnrollRequest
		if err := decodeJSON(w, r, &body); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
		req.IdentityID = body.IdentityID
		req.Name = body.Name
		req.Secret = body.Secret
		req.Embedding = body.Embedding
	}

	identity, err := h.service.Enroll(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, identityResponse(*identity))
}

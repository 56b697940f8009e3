package handlers

import (
	"time"

	"github.com/kozaktomas/route-attendance/internal/attendance"
	"github.com/kozaktomas/route-attendance/internal/database"
)

// RouteResponse represents a route in API responses
type RouteResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	HasSecret bool      `json:"has_secret"`
	CreatedAt time.Time `json:"created_at"`
}

func routeResponse(r database.Route) RouteResponse {
	return RouteResponse{ID: r.ID, Name: r.Name, HasSecret: r.HasSecret(), CreatedAt: r.CreatedAt}
}

// IdentityResponse represents an enrolled identity. The template is never exposed.
type IdentityResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	RouteID    string    `json:"route_id"`
	Active     bool      `json:"active"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

func identityResponse(i database.Identity) IdentityResponse {
	return IdentityResponse{ID: i.ID, Name: i.Name, RouteID: i.RouteID, Active: i.Active, EnrolledAt: i.EnrolledAt}
}

// AttendanceRecordResponse represents an attendance record
type AttendanceRecordResponse struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	RouteID    string    `json:"route_id"`
	Date       string    `json:"date"`
	Status     string    `json:"status"`
	Score      float64   `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
}

func recordResponse(r database.AttendanceRecord) AttendanceRecordResponse {
	return AttendanceRecordResponse{
		ID:         r.ID,
		IdentityID: r.IdentityID,
		RouteID:    r.RouteID,
		Date:       r.Date.String(),
		Status:     string(r.Status),
		Score:      r.Score,
		CreatedAt:  r.CreatedAt,
	}
}

// DayRecordResponse is one present identity in a day view
type DayRecordResponse struct {
	IdentityID string    `json:"identity_id"`
	Name       string    `json:"name"`
	Score      float64   `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
}

// DayResponse is the attendance of a route on one day
type DayResponse struct {
	RouteID string              `json:"route_id"`
	Date    string              `json:"date"`
	Present int                 `json:"present"`
	Absent  int                 `json:"absent"`
	Total   int                 `json:"total"`
	Records []DayRecordResponse `json:"records"`
}

func dayResponse(d attendance.DaySummary) DayResponse {
	resp := DayResponse{
		RouteID: d.RouteID,
		Date:    d.Date.String(),
		Present: d.Present,
		Absent:  d.Absent,
		Total:   d.Total,
		Records: make([]DayRecordResponse, 0, len(d.Records)),
	}
	for _, r := range d.Records {
		resp.Records = append(resp.Records, DayRecordResponse{
			IdentityID: r.IdentityID,
			Name:       r.Name,
			Score:      r.Score,
			CreatedAt:  r.CreatedAt,
		})
	}
	return resp
}

// StatusResponse answers whether an identity is marked on a date
type StatusResponse struct {
	IdentityID string                    `json:"identity_id"`
	Date       string                    `json:"date"`
	Present    bool                      `json:"present"`
	Record     *AttendanceRecordResponse `json:"record,omitempty"`
}

// AuditEntryResponse represents an audit log entry
type AuditEntryResponse struct {
	ID             string    `json:"id"`
	RouteID        string    `json:"route_id"`
	Timestamp      time.Time `json:"timestamp"`
	IdentityID     *string   `json:"identity_id"`
	Score          *float64  `json:"score"`
	RunnerUpScore  *float64  `json:"runner_up_score"`
	CandidateCount int       `json:"candidate_count"`
	ProbeDim       int       `json:"probe_dim"`
	Outcome        string    `json:"outcome"`
	Diagnostic     string    `json:"diagnostic"`
}

func auditResponse(e database.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:             e.ID,
		RouteID:        e.RouteID,
		Timestamp:      e.Timestamp,
		IdentityID:     e.IdentityID,
		Score:          e.Score,
		RunnerUpScore:  e.RunnerUpScore,
		CandidateCount: e.CandidateCount,
		ProbeDim:       e.ProbeDim,
		Outcome:        string(e.Outcome),
		Diagnostic:     e.Diagnostic,
	}
}

package database

import (
	"fmt"
	"time"
)

// dateLayout is the ISO calendar-day layout used for attendance dates.
const dateLayout = "2006-01-02"

// Date is a calendar day in YYYY-MM-DD form. The timezone used to derive it
// is fixed at the application boundary (see config.AttendanceConfig).
type Date string

// DateOf returns the calendar day of t in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return Date(t.In(loc).Format(dateLayout))
}

// ParseDate validates s and returns it as a Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return "", &ValidationError{Field: "date", Message: fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s)}
	}
	return Date(t.Format(dateLayout)), nil
}

// String returns the date in YYYY-MM-DD form.
func (d Date) String() string {
	return string(d)
}

// Route is a named candidate pool (a bus route).
type Route struct {
	ID         string
	Name       string
	SecretHash string // bcrypt hash, empty when enrollment needs no secret
	CreatedAt  time.Time
}

// HasSecret reports whether enrollment into this route requires a secret.
func (r *Route) HasSecret() bool {
	return r.SecretHash != ""
}

// Identity is an enrolled person (a student) together with their template.
type Identity struct {
	ID         string
	Name       string
	RouteID    string
	Active     bool
	Embedding  []float32
	EnrolledAt time.Time
}

// Template is the (identity, vector) pair handed to the matcher.
type Template struct {
	IdentityID string
	Name       string
	RouteID    string
	Embedding  []float32
	EnrolledAt time.Time
}

// AttendanceStatus is the state of an attendance record.
type AttendanceStatus string

// StatusPresent is the only status the matching core produces.
const StatusPresent AttendanceStatus = "present"

// AttendanceRecord is one identity's presence for one calendar day.
type AttendanceRecord struct {
	ID         string
	IdentityID string
	RouteID    string
	Date       Date
	Status     AttendanceStatus
	Score      float64
	CreatedAt  time.Time
}

// DayRecord is an attendance record joined with the identity's display name.
type DayRecord struct {
	AttendanceRecord
	Name string
}

// AuditOutcome is the result of a single match attempt as written to the audit log.
type AuditOutcome string

const (
	AuditMatched      AuditOutcome = "matched"
	AuditNoMatch      AuditOutcome = "no_match"
	AuditAmbiguous    AuditOutcome = "ambiguous"
	AuditNoCandidates AuditOutcome = "no_candidates"
	AuditError        AuditOutcome = "error"
)

// AuditEntry records one match attempt. Entries are append-only.
type AuditEntry struct {
	ID             string
	RouteID        string
	Timestamp      time.Time
	IdentityID     *string  // best candidate, nil when there was none
	Score          *float64 // best score, nil when nothing was scored
	RunnerUpScore  *float64
	CandidateCount int
	ProbeDim       int
	Outcome        AuditOutcome
	Diagnostic     string
}

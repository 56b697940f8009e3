package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/route-attendance/internal/database"
)

// ErrUnresolvedConflict is returned when an insert keeps conflicting but no
// existing record becomes visible.
var ErrUnresolvedConflict = errors.New("attendance conflict could not be resolved")

// MarkStatus tells whether Mark created a record or found one.
type MarkStatus string

const (
	MarkMarked        MarkStatus = "marked"
	MarkAlreadyMarked MarkStatus = "already_marked"
)

// MarkResult is the record an identity holds for the day after Mark.
type MarkResult struct {
	Status MarkStatus
	Record database.AttendanceRecord
}

// DaySummary is the attendance of one route on one day.
type DaySummary struct {
	RouteID string
	Date    database.Date
	Records []database.DayRecord
	Present int
	Absent  int
	Total   int
}

// Ledger records at most one attendance per identity per day. Uniqueness is
// enforced by the store, so concurrent marks need no locking here.
type Ledger struct {
	store  database.AttendanceStore
	roster database.TemplateReader
}

// NewLedger creates a ledger. roster is used by Day to count enrolled identities.
func NewLedger(store database.AttendanceStore, roster database.TemplateReader) *Ledger {
	return &Ledger{store: store, roster: roster}
}

// markAttempts is the number of inserts tried before a conflict is fatal.
const markAttempts = 2

// Mark inserts a present record for the identity on date. When the identity
// is already marked it returns the existing record with MarkAlreadyMarked.
func (l *Ledger) Mark(ctx context.Context, identityID, routeID string, date database.Date, score float64) (MarkResult, error) {
	if strings.TrimSpace(identityID) == "" {
		return MarkResult{}, &database.ValidationError{Field: "identity", Message: "is required"}
	}
	if strings.TrimSpace(routeID) == "" {
		return MarkResult{}, &database.ValidationError{Field: "route", Message: "is required"}
	}
	if _, err := database.ParseDate(date.String()); err != nil {
		return MarkResult{}, err
	}

	var lastErr error
	for range markAttempts {
		rec := &database.AttendanceRecord{
			IdentityID: identityID,
			RouteID:    routeID,
			Date:       date,
			Status:     database.StatusPresent,
			Score:      score,
		}
		err := l.store.InsertAttendance(ctx, rec)
		if err == nil {
			return MarkResult{Status: MarkMarked, Record: *rec}, nil
		}
		if !errors.Is(err, database.ErrStorageConflict) {
			return MarkResult{}, fmt.Errorf("insert attendance: %w", err)
		}

		existing, err2 := l.store.GetAttendance(ctx, identityID, date)
		if err2 != nil {
			return MarkResult{}, fmt.Errorf("read attendance after conflict: %w", err2)
		}
		if existing != nil {
			return MarkResult{Status: MarkAlreadyMarked, Record: *existing}, nil
		}
		lastErr = err
	}
	return MarkResult{}, fmt.Errorf("%w: identity %s on %s: %w", ErrUnresolvedConflict, identityID, date, lastErr)
}

// Status returns the record of the identity for date, or nil when absent.
func (l *Ledger) Status(ctx context.Context, identityID string, date database.Date) (*database.AttendanceRecord, error) {
	if strings.TrimSpace(identityID) == "" {
		return nil, &database.ValidationError{Field: "identity", Message: "is required"}
	}
	rec, err := l.store.GetAttendance(ctx, identityID, date)
	if err != nil {
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	return rec, nil
}

// History returns the newest records of an identity, by date descending.
func (l *Ledger) History(ctx context.Context, identityID string, limit int) ([]database.AttendanceRecord, error) {
	if strings.TrimSpace(identityID) == "" {
		return nil, &database.ValidationError{Field: "identity", Message: "is required"}
	}
	records, err := l.store.ListAttendance(ctx, identityID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return records, nil
}

// Day returns the records of a route for date with present and absent counts.
// Total is the number of currently active identities, so a record of an
// identity deactivated later still counts as present.
func (l *Ledger) Day(ctx context.Context, routeID string, date database.Date) (DaySummary, error) {
	if strings.TrimSpace(routeID) == "" {
		return DaySummary{}, &database.ValidationError{Field: "route", Message: "is required"}
	}
	records, err := l.store.ListDay(ctx, routeID, date)
	if err != nil {
		return DaySummary{}, fmt.Errorf("list day: %w", err)
	}
	total, err := l.roster.CountActive(ctx, routeID)
	if err != nil {
		return DaySummary{}, fmt.Errorf("count active identities: %w", err)
	}

	present := len(records)
	return DaySummary{
		RouteID: routeID,
		Date:    date,
		Records: records,
		Present: present,
		Absent:  max(total-present, 0),
		Total:   max(total, present),
	}, nil
}

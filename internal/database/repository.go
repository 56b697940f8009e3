package database

import (
	"context"
	"iter"
)

// RouteStore manages route scopes.
type RouteStore interface {
	// CreateRoute inserts a route. secretHash may be empty.
	CreateRoute(ctx context.Context, route Route) error
	// GetRoute returns the route or ErrNotFound
	GetRoute(ctx context.Context, id string) (*Route, error)
	// ListRoutes returns all routes ordered by id
	ListRoutes(ctx context.Context) ([]Route, error)
}

// TemplateReader provides read access to enrolled templates.
type TemplateReader interface {
	// Candidates yields every active template in the route. Each range over the
	// returned sequence runs a fresh query against a consistent snapshot, so the
	// sequence can be restarted. An empty sequence is valid.
	Candidates(ctx context.Context, routeID string) iter.Seq2[Template, error]
	// Get returns an identity with its template, or ErrNotFound
	Get(ctx context.Context, identityID string) (*Identity, error)
	// CountActive returns the number of active identities in a route
	CountActive(ctx context.Context, routeID string) (int, error)
	// FindByName returns identities whose normalized name matches
	FindByName(ctx context.Context, name string) ([]Identity, error)
}

// TemplateStore is the Template Store: the only owner of enrolled vectors.
type TemplateStore interface {
	TemplateReader

	// Enroll creates the identity if needed and replaces its vector.
	// Returns a *ValidationError when the vector has the wrong dimension.
	Enroll(ctx context.Context, identity Identity) error
	// Deactivate excludes an identity from future Candidates calls without
	// erasing it. Returns ErrNotFound for unknown identities.
	Deactivate(ctx context.Context, identityID string) error
	// ListActive returns all active templates across routes, used to build indexes
	ListActive(ctx context.Context) ([]Template, error)
	// Dim returns the configured embedding dimension
	Dim() int
}

// NearestFinder is implemented by stores that can rank templates server side.
type NearestFinder interface {
	// Nearest returns up to k active templates in a route closest to probe.
	Nearest(ctx context.Context, routeID string, probe []float32, k int, euclidean bool) ([]Template, error)
}

// AttendanceStore is the storage side of the Attendance Ledger.
type AttendanceStore interface {
	// InsertAttendance inserts a record. A uniqueness violation on
	// (identity, date) must be reported as ErrStorageConflict.
	InsertAttendance(ctx context.Context, record *AttendanceRecord) error
	// GetAttendance returns the record for (identity, date) or nil if none exists
	GetAttendance(ctx context.Context, identityID string, date Date) (*AttendanceRecord, error)
	// ListAttendance returns the newest records of an identity, by date descending
	ListAttendance(ctx context.Context, identityID string, limit int) ([]AttendanceRecord, error)
	// ListDay returns all records of a route for a date ordered by creation time
	ListDay(ctx context.Context, routeID string, date Date) ([]DayRecord, error)
}

// AuditLog is the Recognition Audit Log.
type AuditLog interface {
	// AppendAudit writes one entry
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	// ListAudit returns the newest entries of a route
	ListAudit(ctx context.Context, routeID string, limit int) ([]AuditEntry, error)
}

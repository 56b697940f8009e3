// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/route-attendance/internal/database"
	"github.com/kozaktomas/route-attendance/internal/facematch"
)

// MockRouteStore is a mock implementation of database.RouteStore
type MockRouteStore struct {
	mu     sync.RWMutex
	routes map[string]database.Route

	// Error injection
	CreateError error
	GetError    error
}

// NewMockRouteStore creates a new mock route store
func NewMockRouteStore() *MockRouteStore {
	return &MockRouteStore{routes: make(map[string]database.Route)}
}

// CreateRoute stores a route; duplicates are validation errors as in PostgreSQL.
func (m *MockRouteStore) CreateRoute(ctx context.Context, route database.Route) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	if strings.TrimSpace(route.ID) == "" {
		return &database.ValidationError{Field: "id", Message: "is required"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routes[route.ID]; ok {
		return &database.ValidationError{Field: "id", Message: fmt.Sprintf("route %q already exists", route.ID)}
	}
	if route.Name == "" {
		route.Name = route.ID
	}
	if route.CreatedAt.IsZero() {
		route.CreatedAt = time.Now()
	}
	m.routes[route.ID] = route
	return nil
}

// GetRoute returns a route or database.ErrNotFound
func (m *MockRouteStore) GetRoute(ctx context.Context, id string) (*database.Route, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	route, ok := m.routes[id]
	if !ok {
		return nil, fmt.Errorf("route %s: %w", id, database.ErrNotFound)
	}
	return &route, nil
}

// ListRoutes returns all routes ordered by id
func (m *MockRouteStore) ListRoutes(ctx context.Context) ([]database.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	routes := make([]database.Route, 0, len(m.routes))
	for _, r := range m.routes {
		routes = append(routes, r)
	}
	slices.SortFunc(routes, func(a, b database.Route) int { return cmp.Compare(a.ID, b.ID) })
	return routes, nil
}

// MockTemplateStore is a mock implementation of database.TemplateStore and
// database.NearestFinder
type MockTemplateStore struct {
	mu         sync.RWMutex
	identities map[string]database.Identity
	dim        int

	// Error injection
	EnrollError     error
	CandidatesError error
	DeactivateError error
	NearestError    error
}

// NewMockTemplateStore creates a new mock template store for vectors of dim components
func NewMockTemplateStore(dim int) *MockTemplateStore {
	return &MockTemplateStore{identities: make(map[string]database.Identity), dim: dim}
}

// Dim returns the configured dimension
func (m *MockTemplateStore) Dim() int {
	return m.dim
}

// Enroll validates and stores an identity, reactivating it
func (m *MockTemplateStore) Enroll(ctx context.Context, identity database.Identity) error {
	if m.EnrollError != nil {
		return m.EnrollError
	}
	if err := database.ValidateIdentity(&identity, m.dim); err != nil {
		return err
	}
	if identity.EnrolledAt.IsZero() {
		identity.EnrolledAt = time.Now()
	}
	identity.Active = true
	identity.Embedding = slices.Clone(identity.Embedding)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[identity.ID] = identity
	return nil
}

func toTemplate(i database.Identity) database.Template {
	return database.Template{
		IdentityID: i.ID,
		Name:       i.Name,
		RouteID:    i.RouteID,
		Embedding:  slices.Clone(i.Embedding),
		EnrolledAt: i.EnrolledAt,
	}
}

func (m *MockTemplateStore) active(routeID string) []database.Template {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.Template
	for _, i := range m.identities {
		if i.Active && (routeID == "" || i.RouteID == routeID) {
			out = append(out, toTemplate(i))
		}
	}
	slices.SortFunc(out, func(a, b database.Template) int { return cmp.Compare(a.IdentityID, b.IdentityID) })
	return out
}

// Candidates yields the active templates of a route ordered by id
func (m *MockTemplateStore) Candidates(ctx context.Context, routeID string) iter.Seq2[database.Template, error] {
	return func(yield func(database.Template, error) bool) {
		if m.CandidatesError != nil {
			yield(database.Template{}, m.CandidatesError)
			return
		}
		for _, t := range m.active(routeID) {
			if !yield(t, nil) {
				return
			}
		}
	}
}

// Get returns an identity or database.ErrNotFound
func (m *MockTemplateStore) Get(ctx context.Context, identityID string) (*database.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.identities[identityID]
	if !ok {
		return nil, fmt.Errorf("identity %s: %w", identityID, database.ErrNotFound)
	}
	i.Embedding = slices.Clone(i.Embedding)
	return &i, nil
}

// CountActive returns the number of active identities in a route
func (m *MockTemplateStore) CountActive(ctx context.Context, routeID string) (int, error) {
	return len(m.active(routeID)), nil
}

// FindByName matches on the normalized name
func (m *MockTemplateStore) FindByName(ctx context.Context, name string) ([]database.Identity, error) {
	key := facematch.NormalizePersonName(name)
	if key == "" {
		return nil, &database.ValidationError{Field: "name", Message: "is required"}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.Identity
	for _, i := range m.identities {
		if strings.Contains(facematch.NormalizePersonName(i.Name), key) {
			i.Embedding = nil
			out = append(out, i)
		}
	}
	slices.SortFunc(out, func(a, b database.Identity) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// Deactivate marks an identity inactive
func (m *MockTemplateStore) Deactivate(ctx context.Context, identityID string) error {
	if m.DeactivateError != nil {
		return m.DeactivateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.identities[identityID]
	if !ok {
		return fmt.Errorf("identity %s: %w", identityID, database.ErrNotFound)
	}
	i.Active = false
	m.identities[identityID] = i
	return nil
}

// ListActive returns the active templates of all routes
func (m *MockTemplateStore) ListActive(ctx context.Context) ([]database.Template, error) {
	return m.active(""), nil
}

// Nearest ranks the active templates of a route by exact distance
func (m *MockTemplateStore) Nearest(
	ctx context.Context, routeID string, probe []float32, k int, euclidean bool,
) ([]database.Template, error) {
	if m.NearestError != nil {
		return nil, m.NearestError
	}
	if k <= 0 {
		k = database.DefaultCandidateLimit
	}

	type ranked struct {
		t    database.Template
		dist float64
	}
	var all []ranked
	for _, t := range m.active(routeID) {
		if len(t.Embedding) != len(probe) {
			continue
		}
		d := 1 - facematch.CosineSimilarity(probe, t.Embedding)
		if euclidean {
			d = facematch.EuclideanDistance(probe, t.Embedding)
		}
		all = append(all, ranked{t: t, dist: d})
	}
	slices.SortStableFunc(all, func(a, b ranked) int { return cmp.Compare(a.dist, b.dist) })

	out := make([]database.Template, 0, min(k, len(all)))
	for _, r := range all[:min(k, len(all))] {
		out = append(out, r.t)
	}
	return out, nil
}

// MockAttendanceStore is a mock implementation of database.AttendanceStore.
// It enforces uniqueness of (identity, date) like the database constraint.
type MockAttendanceStore struct {
	mu      sync.RWMutex
	records map[string]database.AttendanceRecord

	// SpuriousConflicts makes the next n inserts fail with
	// database.ErrStorageConflict without writing, like a serialization failure.
	SpuriousConflicts int

	// Error injection
	InsertError error
	GetError    error
	ListError   error

	inserts int
}

// NewMockAttendanceStore creates a new mock attendance store
func NewMockAttendanceStore() *MockAttendanceStore {
	return &MockAttendanceStore{records: make(map[string]database.AttendanceRecord)}
}

func attendanceKey(identityID string, date database.Date) string {
	return identityID + "|" + string(date)
}

// InsertAttendance inserts a record or reports database.ErrStorageConflict
func (m *MockAttendanceStore) InsertAttendance(ctx context.Context, record *database.AttendanceRecord) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++

	if m.SpuriousConflicts > 0 {
		m.SpuriousConflicts--
		return fmt.Errorf("%w: could not serialize access", database.ErrStorageConflict)
	}

	key := attendanceKey(record.IdentityID, record.Date)
	if _, ok := m.records[key]; ok {
		return fmt.Errorf("%w: duplicate attendance", database.ErrStorageConflict)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = database.StatusPresent
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	m.records[key] = *record
	return nil
}

// Inserts returns the number of insert attempts, including failed ones
func (m *MockAttendanceStore) Inserts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inserts
}

// GetAttendance returns the record or nil
func (m *MockAttendanceStore) GetAttendance(
	ctx context.Context, identityID string, date database.Date,
) (*database.AttendanceRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[attendanceKey(identityID, date)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// ListAttendance returns the newest records of an identity
func (m *MockAttendanceStore) ListAttendance(
	ctx context.Context, identityID string, limit int,
) ([]database.AttendanceRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.AttendanceRecord
	for _, r := range m.records {
		if r.IdentityID == identityID {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b database.AttendanceRecord) int { return cmp.Compare(b.Date, a.Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListDay returns all records of a route for a day. The mock has no identity
// table, so Name carries the identity id.
func (m *MockAttendanceStore) ListDay(
	ctx context.Context, routeID string, date database.Date,
) ([]database.DayRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.DayRecord
	for _, r := range m.records {
		if r.RouteID == routeID && r.Date == date {
			out = append(out, database.DayRecord{AttendanceRecord: r, Name: r.IdentityID})
		}
	}
	slices.SortFunc(out, func(a, b database.DayRecord) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.IdentityID, b.IdentityID))
	})
	return out, nil
}

// Count returns the number of stored records
func (m *MockAttendanceStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// MockAuditLog is a mock implementation of database.AuditLog
type MockAuditLog struct {
	mu      sync.RWMutex
	entries []database.AuditEntry

	// Error injection
	AppendError error
}

// NewMockAuditLog creates a new mock audit log
func NewMockAuditLog() *MockAuditLog {
	return &MockAuditLog{}
}

// AppendAudit stores an entry
func (m *MockAuditLog) AppendAudit(ctx context.Context, entry *database.AuditEntry) error {
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	m.entries = append(m.entries, *entry)
	return nil
}

// ListAudit returns the newest entries of a route
func (m *MockAuditLog) ListAudit(ctx context.Context, routeID string, limit int) ([]database.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.AuditEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].RouteID == routeID {
			out = append(out, m.entries[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Entries returns a copy of all stored entries in append order
func (m *MockAuditLog) Entries() []database.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.entries)
}

package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/route-attendance/internal/database"
)

func newMockPool(t *testing.T) (*Pool, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPoolFromDB(db), mock
}

var enrolledAt = time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)

func templateRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "route_id", "embedding", "enrolled_at"}).
		AddRow("s1", "Asha Rao", "bus-1", []byte("[1,0,0,0]"), enrolledAt).
		AddRow("s2", "Ravi Kumar", "bus-1", []byte("[0,1,0,0]"), enrolledAt)
}

func TestRouteRepository_CreateRoute(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewRouteRepository(pool)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO routes")).
		WithArgs("bus-1", "Bus 1", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO routes")).
		WithArgs("bus-1", "bus-1", "", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	require.NoError(t, repo.CreateRoute(context.Background(), database.Route{ID: "bus-1", Name: "Bus 1"}))

	err := repo.CreateRoute(context.Background(), database.Route{ID: "bus-1"})
	assert.True(t, database.IsValidation(err), "duplicate route should be a validation error, got %v", err)

	err = repo.CreateRoute(context.Background(), database.Route{ID: " "})
	assert.True(t, database.IsValidation(err))
}

func TestRouteRepository_GetRouteNotFound(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewRouteRepository(pool)

	mock.ExpectQuery(regexp.QuoteMeta("FROM routes WHERE id = $1")).
		WithArgs("bus-9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "secret_hash", "created_at"}))

	_, err := repo.GetRoute(context.Background(), "bus-9")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestTemplateRepository_Enroll(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewTemplateRepository(pool, 4)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO identities")).
		WithArgs("s1", "Ásha  Rao", "asha rao", "bus-1", enrolledAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO templates")).
		WithArgs("s1", sqlmock.AnyArg(), 4, enrolledAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Enroll(context.Background(), database.Identity{
		ID: "s1", Name: "Ásha  Rao", RouteID: "bus-1",
		Embedding: []float32{1, 0, 0, 0}, EnrolledAt: enrolledAt,
	})
	require.NoError(t, err)
}

func TestTemplateRepository_EnrollValidation(t *testing.T) {
	pool, _ := newMockPool(t)
	repo := NewTemplateRepository(pool, 4)

	err := repo.Enroll(context.Background(), database.Identity{
		ID: "s1", Name: "Asha", RouteID: "bus-1", Embedding: []float32{1, 0, 0},
	})
	assert.True(t, database.IsValidation(err), "expected validation error, got %v", err)
}

func TestTemplateRepository_EnrollUnknownRoute(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewTemplateRepository(pool, 2)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO identities")).
		WillReturnError(&pq.Error{Code: "23503"})
	mock.ExpectRollback()

	err := repo.Enroll(context.Background(), database.Identity{
		ID: "s1", Name: "Asha", RouteID: "nowhere", Embedding: []float32{1, 0},
	})
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestTemplateRepository_CandidatesIsRestartable(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewTemplateRepository(pool, 4)

	for range 2 {
		mock.ExpectQuery(regexp.QuoteMeta("WHERE i.route_id = $1 AND i.active")).
			WithArgs("bus-1").
			WillReturnRows(templateRows())
	}

	seq := repo.Candidates(context.Background(), "bus-1")
	for pass := range 2 {
		var ids []string
		for tmpl, err := range seq {
			require.NoError(t, err)
			ids = append(ids, tmpl.IdentityID)
			assert.Len(t, tmpl.Embedding, 4)
		}
		assert.Equal(t, []string{"s1", "s2"}, ids, "pass %d", pass)
	}
}

func TestTemplateRepository_CandidatesUnavailable(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewTemplateRepository(pool, 4)

	mock.ExpectQuery(regexp.QuoteMeta("FROM identities i")).
		WillReturnError(&pq.Error{Code: "57P01"})

	var gotErr error
	for _, err := range repo.Candidates(context.Background(), "bus-1") {
		gotErr = err
	}
	assert.ErrorIs(t, gotErr, database.ErrStorageUnavailable)
}

func TestTemplateRepository_Deactivate(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewTemplateRepository(pool, 4)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE identities SET active = FALSE")).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE identities SET active = FALSE")).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Deactivate(context.Background(), "s1"))
	assert.ErrorIs(t, repo.Deactivate(context.Background(), "ghost"), database.ErrNotFound)
}

func TestTemplateRepository_NearestOperator(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewTemplateRepository(pool, 4)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY t.embedding <=> $2::vector")).
		WithArgs("bus-1", sqlmock.AnyArg(), 4, 5).
		WillReturnRows(templateRows())
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY t.embedding <-> $2::vector")).
		WithArgs("bus-1", sqlmock.AnyArg(), 4, database.DefaultCandidateLimit).
		WillReturnRows(templateRows())

	got, err := repo.Nearest(context.Background(), "bus-1", []float32{1, 0, 0, 0}, 5, false)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repo.Nearest(context.Background(), "bus-1", []float32{1, 0, 0, 0}, 0, true)
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", got[0].Name)
}

func TestTemplateRepository_FindByName(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewTemplateRepository(pool, 4)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE i.name_key LIKE")).
		WithArgs("asha").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "route_id", "active", "enrolled_at"}).
			AddRow("s1", "Asha Rao", "bus-1", true, enrolledAt))

	got, err := repo.FindByName(context.Background(), "ASHA")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].ID)

	_, err = repo.FindByName(context.Background(), "  ")
	assert.True(t, database.IsValidation(err))
}

func TestTemplateRepository_FindByNameMatchesWildcardsLiterally(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewTemplateRepository(pool, 4)

	mock.ExpectQuery(regexp.QuoteMeta(`LIKE '%' || $1 || '%' ESCAPE '\'`)).
		WithArgs(`100\% a\\b`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "route_id", "active", "enrolled_at"}))

	got, err := repo.FindByName(context.Background(), `100% A\B`)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"asha", "asha"},
		{"%", `\%`},
		{"a_b", `a\_b`},
		{`c:\`, `c:\\`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeLike(tt.in), tt.in)
	}
}

func TestAttendanceRepository_InsertConflict(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewAttendanceRepository(pool)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance")).
		WithArgs(sqlmock.AnyArg(), "s1", "bus-1", "2024-01-10", "present", 0.93, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "attendance_identity_date_key"})

	rec := &database.AttendanceRecord{IdentityID: "s1", RouteID: "bus-1", Date: "2024-01-10", Score: 0.93}
	require.NoError(t, repo.InsertAttendance(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, database.StatusPresent, rec.Status)
	assert.False(t, rec.CreatedAt.IsZero())

	dup := &database.AttendanceRecord{IdentityID: "s1", RouteID: "bus-1", Date: "2024-01-10", Score: 0.95}
	assert.ErrorIs(t, repo.InsertAttendance(context.Background(), dup), database.ErrStorageConflict)
}

func TestAttendanceRepository_Get(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewAttendanceRepository(pool)
	created := time.Date(2024, 1, 10, 7, 30, 0, 0, time.UTC)

	cols := []string{"id", "identity_id", "route_id", "date", "status", "score", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.identity_id = $1 AND a.date = $2::date")).
		WithArgs("s1", "2024-01-10").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("r1", "s1", "bus-1", "2024-01-10", "present", 0.93, created))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.identity_id = $1 AND a.date = $2::date")).
		WithArgs("s1", "2024-01-11").
		WillReturnRows(sqlmock.NewRows(cols))

	rec, err := repo.GetAttendance(context.Background(), "s1", "2024-01-10")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, database.Date("2024-01-10"), rec.Date)
	assert.True(t, rec.CreatedAt.Equal(created))

	rec, err = repo.GetAttendance(context.Background(), "s1", "2024-01-11")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestAttendanceRepository_ListDay(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewAttendanceRepository(pool)

	mock.ExpectQuery(regexp.QuoteMeta("JOIN identities i ON i.id = a.identity_id")).
		WithArgs("bus-1", "2024-01-10").
		WillReturnRows(sqlmock.NewRows([]string{"id", "identity_id", "route_id", "date", "status", "score", "created_at", "name"}).
			AddRow("r1", "s1", "bus-1", "2024-01-10", "present", 0.93, enrolledAt, "Asha Rao"))

	got, err := repo.ListDay(context.Background(), "bus-1", "2024-01-10")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Asha Rao", got[0].Name)
	assert.Equal(t, "s1", got[0].IdentityID)
}

func TestAuditRepository_AppendAndList(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewAuditRepository(pool)
	ts := time.Date(2024, 1, 10, 7, 30, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_log")).
		WithArgs(sqlmock.AnyArg(), "bus-1", ts, nil, nil, nil, 0, 4, "no_candidates", "empty").
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &database.AuditEntry{
		RouteID: "bus-1", Timestamp: ts, ProbeDim: 4,
		Outcome: database.AuditNoCandidates, Diagnostic: "empty",
	}
	require.NoError(t, repo.AppendAudit(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_log")).
		WithArgs("bus-1", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "route_id", "ts", "identity_id", "score", "runner_up_score",
			"candidate_count", "probe_dim", "outcome", "diagnostic"}).
			AddRow("a2", "bus-1", ts, "s1", 0.97, 0.41, 2, 4, "matched", "ok").
			AddRow("a1", "bus-1", ts, nil, nil, nil, 0, 4, "no_candidates", "empty"))

	entries, err := repo.ListAudit(context.Background(), "bus-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NotNil(t, entries[0].IdentityID)
	assert.Equal(t, "s1", *entries[0].IdentityID)
	assert.InDelta(t, 0.41, *entries[0].RunnerUpScore, 1e-9)
	assert.Nil(t, entries[1].IdentityID)
	assert.Nil(t, entries[1].Score)
	assert.Equal(t, database.AuditNoCandidates, entries[1].Outcome)
}

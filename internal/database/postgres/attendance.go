package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/route-attendance/internal/database"
)

// AttendanceRepository stores attendance records. Uniqueness of
// (identity_id, date) is enforced by the attendance_identity_date_key constraint.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

const attendanceColumns = `a.id, a.identity_id, a.route_id, to_char(a.date, 'YYYY-MM-DD'), a.status, a.score, a.created_at`

// InsertAttendance inserts a record, assigning id, status and created_at
// when unset. A duplicate (identity, date) is reported as database.ErrStorageConflict.
func (r *AttendanceRepository) InsertAttendance(ctx context.Context, record *database.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = database.StatusPresent
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO attendance (id, identity_id, route_id, date, status, score, created_at)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7)
	`, record.ID, record.IdentityID, record.RouteID, string(record.Date), string(record.Status), record.Score, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttendance(row rowScanner, extra ...any) (database.AttendanceRecord, error) {
	var rec database.AttendanceRecord
	var date, status string
	dest := append([]any{&rec.ID, &rec.IdentityID, &rec.RouteID, &date, &status, &rec.Score, &rec.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return rec, err
	}
	rec.Date = database.Date(date)
	rec.Status = database.AttendanceStatus(status)
	return rec, nil
}

// GetAttendance returns the record of an identity for a day, nil if none exists.
func (r *AttendanceRepository) GetAttendance(
	ctx context.Context, identityID string, date database.Date,
) (*database.AttendanceRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance a
		WHERE a.identity_id = $1 AND a.date = $2::date
	`, identityID, string(date))

	rec, err := scanAttendance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance: %w", translateError(err))
	}
	return &rec, nil
}

// ListAttendance returns the newest records of an identity, newest date first.
func (r *AttendanceRepository) ListAttendance(
	ctx context.Context, identityID string, limit int,
) ([]database.AttendanceRecord, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance a
		WHERE a.identity_id = $1
		ORDER BY a.date DESC
		LIMIT $2
	`, identityID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", translateError(err))
	}
	return records, nil
}

// ListDay returns all records of a route for one day with the identity names.
func (r *AttendanceRepository) ListDay(
	ctx context.Context, routeID string, date database.Date,
) ([]database.DayRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+attendanceColumns+`, i.name
		FROM attendance a
		JOIN identities i ON i.id = a.identity_id
		WHERE a.route_id = $1 AND a.date = $2::date
		ORDER BY a.created_at, a.identity_id
	`, routeID, string(date))
	if err != nil {
		return nil, fmt.Errorf("list day attendance: %w", err)
	}
	defer rows.Close()

	var records []database.DayRecord
	for rows.Next() {
		var name string
		rec, err := scanAttendance(rows, &name)
		if err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		records = append(records, database.DayRecord{AttendanceRecord: rec, Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", translateError(err))
	}
	return records, nil
}

package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
)

// LegacyStudent is one row of the legacy students table.
type LegacyStudent struct {
	UniversityID string
	Name         string
	BusNumber    int
	Embedding    []float32 // nil when face_encoding could not be decoded
	DecodeErr    error
}

// RouteID is the route scope the student is imported into.
func (s LegacyStudent) RouteID() string {
	return RouteIDForBus(s.BusNumber)
}

// RouteIDForBus maps a legacy bus number to a route id.
func RouteIDForBus(bus int) string {
	return fmt.Sprintf("bus-%d", bus)
}

// CountStudents returns the number of rows in the legacy students table.
func (p *Pool) CountStudents(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM students").Scan(&n); err != nil {
		return 0, fmt.Errorf("count legacy students: %w", err)
	}
	return n, nil
}

// BusNumbers returns the distinct bus numbers referenced by students.
func (p *Pool) BusNumbers(ctx context.Context) ([]int, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT DISTINCT bus_number FROM students WHERE bus_number IS NOT NULL ORDER BY bus_number")
	if err != nil {
		return nil, fmt.Errorf("query bus numbers: %w", err)
	}
	defer rows.Close()

	var buses []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan bus number: %w", err)
		}
		buses = append(buses, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bus numbers: %w", err)
	}
	return buses, nil
}

// Students streams the legacy students ordered by university id. A row with a
// NULL name or bus number, or whose face_encoding is not valid JSON, is still
// yielded with DecodeErr set, so the caller can report it and continue.
func (p *Pool) Students(ctx context.Context) iter.Seq2[LegacyStudent, error] {
	return func(yield func(LegacyStudent, error) bool) {
		rows, err := p.db.QueryContext(ctx, `
			SELECT university_id, name, bus_number, face_encoding
			FROM students
			ORDER BY university_id
		`)
		if err != nil {
			yield(LegacyStudent{}, fmt.Errorf("query legacy students: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var s LegacyStudent
			var name sql.NullString
			var bus sql.NullInt64
			var encoding sql.RawBytes
			if err := rows.Scan(&s.UniversityID, &name, &bus, &encoding); err != nil {
				yield(LegacyStudent{}, fmt.Errorf("scan legacy student: %w", err))
				return
			}
			s.Name = name.String
			s.BusNumber = int(bus.Int64)
			switch {
			case !name.Valid:
				s.DecodeErr = errors.New("missing name")
			case !bus.Valid:
				s.DecodeErr = errors.New("missing bus number")
			default:
				s.Embedding, s.DecodeErr = DecodeEncoding(encoding)
			}
			if !yield(s, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(LegacyStudent{}, fmt.Errorf("iterate legacy students: %w", err))
		}
	}
}

// DecodeEncoding parses a face_encoding column. Both a flat JSON list
// [e1, e2, ...] and a list-of-lists [[e1, e2, ...]] are accepted.
func DecodeEncoding(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty face encoding")
	}

	var flat []float32
	if err := json.Unmarshal(data, &flat); err == nil {
		if len(flat) == 0 {
			return nil, fmt.Errorf("empty face encoding")
		}
		return flat, nil
	}

	var nested [][]float32
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("decode face encoding: %w", err)
	}
	if len(nested) != 1 || len(nested[0]) == 0 {
		return nil, fmt.Errorf("expected exactly one face encoding, got %d", len(nested))
	}
	return nested[0], nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/route-attendance/internal/database"
)

// RouteRepository stores route scopes.
type RouteRepository struct {
	pool *Pool
}

// NewRouteRepository creates a new route repository.
func NewRouteRepository(pool *Pool) *RouteRepository {
	return &RouteRepository{pool: pool}
}

// CreateRoute inserts a route. An existing id is a validation error.
func (r *RouteRepository) CreateRoute(ctx context.Context, route database.Route) error {
	if strings.TrimSpace(route.ID) == "" {
		return &database.ValidationError{Field: "id", Message: "is required"}
	}
	if route.Name == "" {
		route.Name = route.ID
	}
	if route.CreatedAt.IsZero() {
		route.CreatedAt = time.Now()
	}

	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO routes (id, name, secret_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, route.ID, route.Name, route.SecretHash, route.CreatedAt)
	if isUniqueViolation(err) {
		return &database.ValidationError{Field: "id", Message: fmt.Sprintf("route %q already exists", route.ID)}
	}
	if err != nil {
		return fmt.Errorf("insert route: %w", translateError(err))
	}
	return nil
}

// GetRoute returns a route by id.
func (r *RouteRepository) GetRoute(ctx context.Context, id string) (*database.Route, error) {
	var route database.Route
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, secret_hash, created_at FROM routes WHERE id = $1
	`, id).Scan(&route.ID, &route.Name, &route.SecretHash, &route.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("route %s: %w", id, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get route: %w", translateError(err))
	}
	return &route, nil
}

// ListRoutes returns all routes ordered by id.
func (r *RouteRepository) ListRoutes(ctx context.Context) ([]database.Route, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, name, secret_hash, created_at FROM routes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer rows.Close()

	var routes []database.Route
	for rows.Next() {
		var route database.Route
		if err := rows.Scan(&route.ID, &route.Name, &route.SecretHash, &route.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		routes = append(routes, route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate routes: %w", translateError(err))
	}
	return routes, nil
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/kozaktomas/route-attendance/internal/database"
)

// AuditRepository is the append-only recognition audit log.
type AuditRepository struct {
	pool *Pool
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(pool *Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// AppendAudit writes one entry, assigning an id when empty.
func (r *AuditRepository) AppendAudit(ctx context.Context, entry *database.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (id, route_id, ts, identity_id, score, runner_up_score,
		                       candidate_count, probe_dim, outcome, diagnostic)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		entry.ID,
		entry.RouteID,
		entry.Timestamp,
		entry.IdentityID,
		entry.Score,
		entry.RunnerUpScore,
		entry.CandidateCount,
		entry.ProbeDim,
		string(entry.Outcome),
		entry.Diagnostic,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListAudit returns the newest entries of a route.
func (r *AuditRepository) ListAudit(ctx context.Context, routeID string, limit int) ([]database.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, route_id, ts, identity_id, score, runner_up_score,
		       candidate_count, probe_dim, outcome, diagnostic
		FROM audit_log
		WHERE route_id = $1
		ORDER BY ts DESC, id
		LIMIT $2
	`, routeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []database.AuditEntry
	for rows.Next() {
		var e database.AuditEntry
		var identityID sql.NullString
		var score, runnerUp sql.NullFloat64
		var outcome string
		if err := rows.Scan(&e.ID, &e.RouteID, &e.Timestamp, &identityID, &score, &runnerUp,
			&e.CandidateCount, &e.ProbeDim, &outcome, &e.Diagnostic); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if identityID.Valid {
			e.IdentityID = &identityID.String
		}
		if score.Valid {
			e.Score = &score.Float64
		}
		if runnerUp.Valid {
			e.RunnerUpScore = &runnerUp.Float64
		}
		e.Outcome = database.AuditOutcome(outcome)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", translateError(err))
	}
	return entries, nil
}

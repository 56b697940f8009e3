package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/route-attendance/internal/database"
	"github.com/kozaktomas/route-attendance/internal/facematch"
)

// TemplateRepository is the PostgreSQL template store. Identities and their
// single template live in separate tables joined by identity id.
type TemplateRepository struct {
	pool *Pool
	dim  int
}

// NewTemplateRepository creates a template repository for vectors of dim components.
func NewTemplateRepository(pool *Pool, dim int) *TemplateRepository {
	return &TemplateRepository{pool: pool, dim: dim}
}

// Dim returns the configured embedding dimension.
func (r *TemplateRepository) Dim() int {
	return r.dim
}

// Enroll creates or updates the identity and replaces its template in one
// transaction. Re-enrolling a deactivated identity reactivates it.
func (r *TemplateRepository) Enroll(ctx context.Context, identity database.Identity) error {
	if err := database.ValidateIdentity(&identity, r.dim); err != nil {
		return err
	}
	if identity.EnrolledAt.IsZero() {
		identity.EnrolledAt = time.Now()
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO identities (id, name, name_key, route_id, active, created_at)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			name_key = EXCLUDED.name_key,
			route_id = EXCLUDED.route_id,
			active = TRUE
	`, identity.ID, identity.Name, facematch.NormalizePersonName(identity.Name), identity.RouteID, identity.EnrolledAt)
	if err != nil {
		return fmt.Errorf("upsert identity %s: %w", identity.ID, translateError(err))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO templates (identity_id, embedding, dim, enrolled_at)
		VALUES ($1, $2::vector, $3, $4)
		ON CONFLICT (identity_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			dim = EXCLUDED.dim,
			enrolled_at = EXCLUDED.enrolled_at
	`, identity.ID, pgvector.NewVector(identity.Embedding), len(identity.Embedding), identity.EnrolledAt)
	if err != nil {
		return fmt.Errorf("upsert template %s: %w", identity.ID, translateError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", translateError(err))
	}
	return nil
}

const candidateColumns = `i.id, i.name, i.route_id, t.embedding, t.enrolled_at`

// Candidates yields the active templates of a route. Every range over the
// sequence runs one query, so each iteration sees a single snapshot.
func (r *TemplateRepository) Candidates(ctx context.Context, routeID string) iter.Seq2[database.Template, error] {
	return func(yield func(database.Template, error) bool) {
		rows, err := r.pool.Query(ctx, `
			SELECT `+candidateColumns+`
			FROM identities i
			JOIN templates t ON t.identity_id = i.id
			WHERE i.route_id = $1 AND i.active
			ORDER BY i.id
		`, routeID)
		if err != nil {
			yield(database.Template{}, fmt.Errorf("query candidates: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanTemplate(rows)
			if err != nil {
				yield(database.Template{}, err)
				return
			}
			if !yield(t, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(database.Template{}, fmt.Errorf("iterate candidates: %w", translateError(err)))
		}
	}
}

func scanTemplate(rows *sql.Rows) (database.Template, error) {
	var t database.Template
	var vec pgvector.Vector
	if err := rows.Scan(&t.IdentityID, &t.Name, &t.RouteID, &vec, &t.EnrolledAt); err != nil {
		return t, fmt.Errorf("scan template: %w", translateError(err))
	}
	t.Embedding = vec.Slice()
	return t, nil
}

func collectTemplates(rows *sql.Rows) ([]database.Template, error) {
	defer rows.Close()

	var templates []database.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", translateError(err))
	}
	return templates, nil
}

// Get returns an identity with its template.
func (r *TemplateRepository) Get(ctx context.Context, identityID string) (*database.Identity, error) {
	var identity database.Identity
	var vec pgvector.Vector
	err := r.pool.QueryRow(ctx, `
		SELECT i.id, i.name, i.route_id, i.active, t.embedding, t.enrolled_at
		FROM identities i
		JOIN templates t ON t.identity_id = i.id
		WHERE i.id = $1
	`, identityID).Scan(&identity.ID, &identity.Name, &identity.RouteID, &identity.Active, &vec, &identity.EnrolledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("identity %s: %w", identityID, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", translateError(err))
	}
	identity.Embedding = vec.Slice()
	return &identity, nil
}

// CountActive returns the number of active identities in a route.
func (r *TemplateRepository) CountActive(ctx context.Context, routeID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM identities WHERE route_id = $1 AND active", routeID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active identities: %w", translateError(err))
	}
	return count, nil
}

// FindByName returns identities whose normalized name contains the normalized query.
func (r *TemplateRepository) FindByName(ctx context.Context, name string) ([]database.Identity, error) {
	key := facematch.NormalizePersonName(name)
	if key == "" {
		return nil, &database.ValidationError{Field: "name", Message: "is required"}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.name, i.route_id, i.active, t.enrolled_at
		FROM identities i
		JOIN templates t ON t.identity_id = i.id
		WHERE i.name_key LIKE '%' || $1 || '%' ESCAPE '\'
		ORDER BY i.name_key, i.id
	`, escapeLike(key))
	if err != nil {
		return nil, fmt.Errorf("find identities: %w", err)
	}
	defer rows.Close()

	var identities []database.Identity
	for rows.Next() {
		var identity database.Identity
		if err := rows.Scan(&identity.ID, &identity.Name, &identity.RouteID, &identity.Active, &identity.EnrolledAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", translateError(err))
	}
	return identities, nil
}

// likeEscaper makes a string match itself literally inside a LIKE pattern
// with ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Deactivate excludes an identity from matching. Its template is kept.
func (r *TemplateRepository) Deactivate(ctx context.Context, identityID string) error {
	result, err := r.pool.Exec(ctx, "UPDATE identities SET active = FALSE WHERE id = $1", identityID)
	if err != nil {
		return fmt.Errorf("deactivate identity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate identity: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("identity %s: %w", identityID, database.ErrNotFound)
	}
	return nil
}

// ListActive returns the active templates of all routes.
func (r *TemplateRepository) ListActive(ctx context.Context) ([]database.Template, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+candidateColumns+`
		FROM identities i
		JOIN templates t ON t.identity_id = i.id
		WHERE i.active
		ORDER BY i.route_id, i.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active templates: %w", err)
	}
	return collectTemplates(rows)
}

// Nearest ranks the active templates of a route in the database using the
// pgvector cosine (<=>) or L2 (<->) operator.
func (r *TemplateRepository) Nearest(
	ctx context.Context, routeID string, probe []float32, k int, euclidean bool,
) ([]database.Template, error) {
	if k <= 0 {
		k = database.DefaultCandidateLimit
	}
	op := "<=>"
	if euclidean {
		op = "<->"
	}

	query := `
		SELECT ` + candidateColumns + `
		FROM identities i
		JOIN templates t ON t.identity_id = i.id
		WHERE i.route_id = $1 AND i.active AND t.dim = $3
		ORDER BY t.embedding ` + op + ` $2::vector
		LIMIT $4
	`

	rows, err := r.pool.Query(ctx, query, routeID, pgvector.NewVector(probe), len(probe), k)
	if err != nil {
		return nil, fmt.Errorf("query nearest templates: %w", err)
	}
	return collectTemplates(rows)
}

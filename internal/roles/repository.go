package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/shared"
)

// RepositoryPort defines data access methods for role definitions.
type RepositoryPort interface {
	List(ctx context.Context) ([]Stored, error)
	Get(ctx context.Context, role authz.Role) (Stored, error)
	Upsert(ctx context.Context, role authz.Role, input UpdateInput) (Stored, error)
	Delete(ctx context.Context, role authz.Role) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanStored(row pgx.Row) (Stored, error) {
	var s Stored
	var role string
	if err := row.Scan(&role, &s.Label, &s.Description, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stored{}, shared.ErrNotFound
		}
		return Stored{}, err
	}
	s.Role = authz.Role(role)
	return s, nil
}

// List returns every customised definition.
func (r *Repository) List(ctx context.Context) ([]Stored, error) {
	rows, err := r.pool.Query(ctx, `SELECT role, label, description, updated_at FROM role_definitions ORDER BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Stored
	for rows.Next() {
		s, err := scanStored(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get returns the customised definition of role.
func (r *Repository) Get(ctx context.Context, role authz.Role) (Stored, error) {
	return scanStored(r.pool.QueryRow(ctx, `SELECT role, label, description, updated_at FROM role_definitions WHERE role = $1`, role.String()))
}

// Upsert stores label and description for role.
func (r *Repository) Upsert(ctx context.Context, role authz.Role, input UpdateInput) (Stored, error) {
	return scanStored(r.pool.QueryRow(ctx, `INSERT INTO role_definitions (role, label, description, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (role) DO UPDATE SET label = EXCLUDED.label, description = EXCLUDED.description, updated_at = NOW()
RETURNING role, label, description, updated_at`, role.String(), input.Label, input.Description))
}

// Delete drops the customisation of role. Missing rows are not an error.
func (r *Repository) Delete(ctx context.Context, role authz.Role) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM role_definitions WHERE role = $1`, role.String())
	return err
}

package content

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/storefront/internal/authz"
)

// RepositoryPort is the document persistence port.
type RepositoryPort interface {
	List(ctx context.Context, kind authz.Resource, limit, offset int) ([]Document, int, error)
	Get(ctx context.Context, kind authz.Resource, id string) (Document, error)
	Insert(ctx context.Context, doc Document) (Document, error)
	Update(ctx context.Context, kind authz.Resource, id string, input Input, actorID int64) (Document, error)
	Delete(ctx context.Context, kind authz.Resource, id string) error
}

// Repository stores documents in content_documents.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const documentColumns = `id, kind, slug, title, data, published, version, created_by, updated_by, created_at, updated_at`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	var kind string
	var data []byte
	err := row.Scan(&d.ID, &kind, &d.Slug, &d.Title, &data, &d.Published, &d.Version, &d.CreatedBy, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrDocumentNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Document{}, ErrSlugTaken
		}
		return Document{}, err
	}
	d.Kind = authz.Resource(kind)
	d.Data = data
	return d, nil
}

// List returns one page of kind ordered by slug.
func (r *Repository) List(ctx context.Context, kind authz.Resource, limit, offset int) ([]Document, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM content_documents WHERE kind = $1`, kind.String()).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM content_documents WHERE kind = $1 ORDER BY slug LIMIT $2 OFFSET $3`, kind.String(), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	docs := make([]Document, 0, limit)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, d)
	}
	return docs, total, rows.Err()
}

// Get returns one document.
func (r *Repository) Get(ctx context.Context, kind authz.Resource, id string) (Document, error) {
	return scanDocument(r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM content_documents WHERE kind = $1 AND id = $2`, kind.String(), id))
}

// Insert stores a new document.
func (r *Repository) Insert(ctx context.Context, doc Document) (Document, error) {
	return scanDocument(r.pool.QueryRow(ctx, `INSERT INTO content_documents (id, kind, slug, title, data, published, version, created_by, updated_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $7, NOW(), NOW())
RETURNING `+documentColumns, doc.ID, doc.Kind.String(), doc.Slug, doc.Title, []byte(doc.Data), doc.Published, doc.CreatedBy))
}

// Update replaces the writable fields and bumps the row version.
func (r *Repository) Update(ctx context.Context, kind authz.Resource, id string, input Input, actorID int64) (Document, error) {
	return scanDocument(r.pool.QueryRow(ctx, `UPDATE content_documents
SET slug = $3, title = $4, data = $5, published = $6, version = version + 1, updated_by = $7, updated_at = NOW()
WHERE kind = $1 AND id = $2
RETURNING `+documentColumns, kind.String(), id, input.Slug, input.Title, []byte(input.Data), input.Published, actorID))
}

// Delete removes one document.
func (r *Repository) Delete(ctx context.Context, kind authz.Resource, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM content_documents WHERE kind = $1 AND id = $2`, kind.String(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

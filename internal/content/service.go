package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/shared"
)

// Service implements section reads and writes. Callers authorize first.
type Service struct {
	repo        RepositoryPort
	cache       *Cache
	idempotency shared.IdempotencyGuard
	logger      *slog.Logger
}

// NewService builds Service. cache and idem may be nil.
func NewService(repo RepositoryPort, cache *Cache, idem shared.IdempotencyGuard, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, idempotency: idem, logger: logger}
}

func checkKind(kind authz.Resource) error {
	if !isContentKind(kind) {
		return fmt.Errorf("%w: %s", ErrNotContentKind, kind)
	}
	return nil
}

// List returns one page of kind through the cache.
func (s *Service) List(ctx context.Context, kind authz.Resource, page, perPage int) (ListResult, error) {
	if err := checkKind(kind); err != nil {
		return ListResult{}, err
	}
	p := shared.NewPagination(page, perPage, 0)
	key, err := s.cache.BuildKey(ctx, kind, "list", strconv.Itoa(p.Page), strconv.Itoa(p.PerPage))
	if err != nil {
		return s.listDirect(ctx, kind, p)
	}
	var result ListResult
	err = s.cache.FetchJSON(ctx, key, &result, func(ctx context.Context) (any, error) {
		return s.listDirect(ctx, kind, p)
	})
	return result, err
}

func (s *Service) listDirect(ctx context.Context, kind authz.Resource, p shared.Pagination) (ListResult, error) {
	docs, total, err := s.repo.List(ctx, kind, p.PerPage, p.Offset())
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Documents: docs, Pagination: shared.NewPagination(p.Page, p.PerPage, total)}, nil
}

// Get returns one document through the cache.
func (s *Service) Get(ctx context.Context, kind authz.Resource, id string) (Document, error) {
	if err := checkKind(kind); err != nil {
		return Document{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return Document{}, ErrDocumentNotFound
	}
	key, err := s.cache.BuildKey(ctx, kind, "doc", id)
	if err != nil {
		return s.repo.Get(ctx, kind, id)
	}
	var doc Document
	err = s.cache.FetchJSON(ctx, key, &doc, func(ctx context.Context) (any, error) {
		return s.repo.Get(ctx, kind, id)
	})
	return doc, err
}

// Create stores a new document. A non-empty idempotency key is claimed
// before the insert and released again if the insert fails.
func (s *Service) Create(ctx context.Context, actorID int64, kind authz.Resource, input Input, idemKey string) (Document, error) {
	if err := checkKind(kind); err != nil {
		return Document{}, err
	}
	idemKey = strings.TrimSpace(idemKey)
	scope := "content." + kind.String()
	if idemKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, scope); err != nil {
			return Document{}, err
		}
	}
	doc, err := s.repo.Insert(ctx, Document{
		ID:        uuid.NewString(),
		Kind:      kind,
		Slug:      input.Slug,
		Title:     strings.TrimSpace(input.Title),
		Data:      normalizeData(input.Data),
		Published: input.Published,
		CreatedBy: actorID,
		UpdatedBy: actorID,
	})
	if err != nil {
		if idemKey != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, idemKey, scope); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		return Document{}, err
	}
	s.bump(ctx, kind)
	return doc, nil
}

// Update replaces the writable fields of a document.
func (s *Service) Update(ctx context.Context, actorID int64, kind authz.Resource, id string, input Input) (Document, error) {
	if err := checkKind(kind); err != nil {
		return Document{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return Document{}, ErrDocumentNotFound
	}
	input.Title = strings.TrimSpace(input.Title)
	input.Data = normalizeData(input.Data)
	doc, err := s.repo.Update(ctx, kind, id, input, actorID)
	if err != nil {
		return Document{}, err
	}
	s.bump(ctx, kind)
	return doc, nil
}

// Delete removes a document.
func (s *Service) Delete(ctx context.Context, kind authz.Resource, id string) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrDocumentNotFound
	}
	if err := s.repo.Delete(ctx, kind, id); err != nil {
		return err
	}
	s.bump(ctx, kind)
	return nil
}

func (s *Service) bump(ctx context.Context, kind authz.Resource) {
	if err := s.cache.Bump(ctx, kind); err != nil {
		s.logger.Warn("bump content cache", slog.String("kind", kind.String()), slog.Any("error", err))
	}
}

func normalizeData(raw json.RawMessage) json.RawMessage {
	if len(strings.TrimSpace(string(raw))) == 0 || string(raw) == "null" {
		return json.RawMessage(`{}`)
	}
	return raw
}

// IsConflict reports errors that map to 409.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSlugTaken) || errors.Is(err, shared.ErrIdempotencyConflict)
}

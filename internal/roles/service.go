package roles

import (
	"context"
	"errors"
	"strings"

	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/rbac"
	"github.com/odyssey-erp/storefront/internal/shared"
)

// Service merges stored labels with the effective policy.
type Service struct {
	repo    RepositoryPort
	decider *authz.Decider
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, decider *authz.Decider) *Service {
	return &Service{repo: repo, decider: decider}
}

// List returns a definition for every fixed role.
func (s *Service) List(ctx context.Context) ([]Definition, error) {
	stored, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	byRole := make(map[authz.Role]Stored, len(stored))
	for _, st := range stored {
		byRole[st.Role] = st
	}
	out := make([]Definition, 0, len(authz.Roles()))
	for _, role := range authz.Roles() {
		st, ok := byRole[role]
		out = append(out, s.merge(role, st, ok))
	}
	return out, nil
}

// Get returns the definition of role.
func (s *Service) Get(ctx context.Context, role authz.Role) (Definition, error) {
	st, err := s.repo.Get(ctx, role)
	switch {
	case err == nil:
		return s.merge(role, st, true), nil
	case errors.Is(err, shared.ErrNotFound):
		return s.merge(role, Stored{}, false), nil
	default:
		return Definition{}, err
	}
}

// Update customises the label and description of role.
func (s *Service) Update(ctx context.Context, role authz.Role, input UpdateInput) (Definition, error) {
	input.Label = strings.TrimSpace(input.Label)
	input.Description = strings.TrimSpace(input.Description)
	st, err := s.repo.Upsert(ctx, role, input)
	if err != nil {
		return Definition{}, err
	}
	return s.merge(role, st, true), nil
}

// Reset restores the built-in label and description of role.
func (s *Service) Reset(ctx context.Context, role authz.Role) (Definition, error) {
	if err := s.repo.Delete(ctx, role); err != nil {
		return Definition{}, err
	}
	return s.merge(role, Stored{}, false), nil
}

func (s *Service) merge(role authz.Role, st Stored, customized bool) Definition {
	def := Definition{
		Role:        role,
		Label:       DefaultLabel(role),
		Description: DefaultDescription(role),
		Grants:      rbac.BuildPermissionsView(s.decider, role).Grants,
	}
	if customized {
		def.Label = st.Label
		def.Description = st.Description
		def.Customized = true
		at := st.UpdatedAt
		def.UpdatedAt = &at
	}
	return def
}

package accounts

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/rbac"
	"github.com/odyssey-erp/storefront/internal/shared"
)

// Service holds account rules.
type Service struct {
	repo     Repository
	hashCost int
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, hashCost: bcrypt.DefaultCost}
}

// List returns one page of accounts.
func (s *Service) List(ctx context.Context, page, perPage int) (ListResult, error) {
	p := shared.NewPagination(page, perPage, 0)
	accounts, total, err := s.repo.List(ctx, p.PerPage, p.Offset())
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Accounts: accounts, Pagination: shared.NewPagination(p.Page, p.PerPage, total)}, nil
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a new operator with a bcrypt password hash.
func (s *Service) Create(ctx context.Context, input CreateInput) (Account, error) {
	role, err := authz.ParseRole(input.Role)
	if err != nil {
		return Account{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}
	var created Account
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err = tx.Insert(ctx, NewAccount{
			Email:        strings.TrimSpace(input.Email),
			Name:         strings.TrimSpace(input.Name),
			PasswordHash: string(hash),
			Role:         role,
		})
		return err
	})
	return created, err
}

// UpdateRole moves account id to role. Demoting the last active superadmin
// fails with ErrLastSuperAdmin.
func (s *Service) UpdateRole(ctx context.Context, id int64, role authz.Role) (Account, error) {
	if !role.Valid() {
		return Account{}, fmt.Errorf("%w: %q", authz.ErrUnknownRole, role)
	}
	var updated Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Role == role {
			updated = current
			return nil
		}
		if err := guardLastSuperAdmin(ctx, tx, current); err != nil {
			return err
		}
		if err := tx.UpdateRole(ctx, id, role); err != nil {
			return err
		}
		current.Role = role
		updated = current
		return nil
	})
	return updated, err
}

// Delete removes account id on behalf of actorID.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return ErrSelfDelete
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := guardLastSuperAdmin(ctx, tx, current); err != nil {
			return err
		}
		return tx.Delete(ctx, id)
	})
}

func guardLastSuperAdmin(ctx context.Context, tx TxRepository, current Account) error {
	if !current.Role.IsTop() || !current.IsActive {
		return nil
	}
	n, err := tx.CountActiveByRole(ctx, authz.RoleSuperAdmin)
	if err != nil {
		return err
	}
	if n <= 1 {
		return ErrLastSuperAdmin
	}
	return nil
}

// ResolvePrincipal implements rbac.RoleResolver. Inactive accounts resolve
// as missing so their sessions stop working at once.
func (s *Service) ResolvePrincipal(ctx context.Context, userID int64) (rbac.Principal, error) {
	a, err := s.repo.Get(ctx, userID)
	if err != nil {
		return rbac.Principal{}, err
	}
	if !a.IsActive {
		return rbac.Principal{}, shared.ErrNotFound
	}
	return rbac.Principal{UserID: a.ID, Email: a.Email, Role: a.Role}, nil
}

var _ rbac.RoleResolver = (*Service)(nil)

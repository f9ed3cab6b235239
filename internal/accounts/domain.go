// Package accounts manages the admin panel's operator accounts and resolves
// session users to authorization principals.
package accounts

import (
	"errors"
	"time"

	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/shared"
)

var (
	ErrEmailTaken      = errors.New("email already registered")
	ErrSelfDelete      = errors.New("cannot delete own account")
	ErrLastSuperAdmin  = errors.New("at least one active superadmin must remain")
	ErrInactiveAccount = errors.New("account is inactive")
)

// Account is an operator of the admin panel.
type Account struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      authz.Role `json:"role"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CreateInput is the payload of POST /api/accounts.
type CreateInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"required,max=120"`
	Password string `json:"password" validate:"required,min=10,max=72"`
	Role     string `json:"role" validate:"required,oneof=viewer admin superadmin"`
}

// UpdateRoleInput is the payload of PUT /api/accounts/{id}/role.
type UpdateRoleInput struct {
	Role string `json:"role" validate:"required,oneof=viewer admin superadmin"`
}

// NewAccount is what the repository inserts.
type NewAccount struct {
	Email        string
	Name         string
	PasswordHash string
	Role         authz.Role
}

// ListResult is a page of accounts.
type ListResult struct {
	Accounts   []Account         `json:"accounts"`
	Pagination shared.Pagination `json:"pagination"`
}

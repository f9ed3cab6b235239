package auth

import (
	"time"

	"github.com/odyssey-erp/storefront/internal/authz"
)

// User is the credential view of an operator account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         authz.Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LoginResponse is returned by a successful POST /auth/login.
type LoginResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

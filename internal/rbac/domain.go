package rbac

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/platform/httpx"
)

var (
	// ErrUnauthenticated means no caller identity could be resolved.
	ErrUnauthenticated = fmt.Errorf("rbac: %w", httpx.ErrUnauthorized)
	// ErrForbidden means the resolved caller lacks the grant. It never says why.
	ErrForbidden = fmt.Errorf("rbac: %w", httpx.ErrForbidden)
)

// Outcome labels an enforcement result for logs and metrics.
type Outcome string

const (
	OutcomeAllowed         Outcome = "allowed"
	OutcomeUnauthenticated Outcome = "unauthenticated"
	OutcomeForbidden       Outcome = "forbidden"
	OutcomeError           Outcome = "error"
)

// Principal describes the authenticated caller.
type Principal struct {
	UserID int64
	Email  string
	Role   authz.Role
}

// RoleResolver maps a session user onto a Principal. Implementations return
// shared.ErrNotFound when the user no longer exists or is inactive.
type RoleResolver interface {
	ResolvePrincipal(ctx context.Context, userID int64) (Principal, error)
}

// DecisionRecorder receives one observation per enforcement.
type DecisionRecorder interface {
	ObserveDecision(resource, action, outcome string)
}

type principalContextKey struct{}

// ContextWithPrincipal attaches p to ctx.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal attached by the middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// RequireTopRole is the handler-level check run before mutating accounts or
// role definitions, independent of the policy table.
func RequireTopRole(ctx context.Context) (Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	if !p.Role.IsTop() {
		return Principal{}, ErrForbidden
	}
	return p, nil
}

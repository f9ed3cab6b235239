package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/platform/httpx"
)

// Middleware wires RBAC enforcement into HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Require rejects the request unless the caller may perform action on res.
// On success the resolved Principal is attached to the request context.
func (m Middleware) Require(res authz.Resource, action authz.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := m.Service.Check(r.Context(), res, action)
			if err != nil {
				m.reject(w, r, res, action, p, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}

// Authenticated only requires a resolvable caller.
func (m Middleware) Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := m.Service.Authenticate(r.Context())
		if err != nil {
			m.reject(w, r, "", 0, p, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}

func (m Middleware) reject(w http.ResponseWriter, r *http.Request, res authz.Resource, action authz.Action, p Principal, err error) {
	if m.Logger != nil {
		attrs := []any{slog.String("path", r.URL.Path)}
		if res != "" {
			attrs = append(attrs, slog.String("resource", res.String()), slog.String("action", action.String()))
		}
		if p.UserID != 0 {
			attrs = append(attrs, slog.Int64("user_id", p.UserID), slog.String("role", p.Role.String()))
		}
		switch {
		case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrForbidden):
			m.Logger.Warn("rbac rejected request", append(attrs, slog.Any("error", err))...)
		default:
			m.Logger.Error("rbac check failed", append(attrs, slog.Any("error", err))...)
		}
	}
	httpx.RespondError(w, err)
}

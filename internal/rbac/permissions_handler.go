package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/platform/httpx"
	"github.com/odyssey-erp/storefront/internal/shared"
)

// PermissionsView is the wire form of one role's effective grants.
type PermissionsView struct {
	Role      string              `json:"role"`
	Grants    map[string][]string `json:"grants"`
	Sensitive []string            `json:"sensitive"`
}

// BuildPermissionsView renders the effective grants of role, overrides applied.
func BuildPermissionsView(d *authz.Decider, role authz.Role) PermissionsView {
	view := PermissionsView{Role: role.String(), Grants: make(map[string][]string)}
	for _, res := range authz.Resources() {
		view.Grants[res.String()] = d.Permitted(role, res).Names()
	}
	for _, res := range d.Table().SensitiveResources() {
		view.Sensitive = append(view.Sensitive, res.String())
	}
	return view
}

// PermissionsHandler serves the policy table to clients that cache it.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
	csrf    *shared.CSRFManager
	rbac    Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, csrf *shared.CSRFManager, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, csrf: csrf, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Authenticated)
		r.Get("/", h.getPermissions)
	})
}

func (h *PermissionsHandler) getPermissions(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	role := p.Role
	if raw := r.URL.Query().Get("role"); raw != "" {
		parsed, err := authz.ParseRole(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Unknown Role", "")
			return
		}
		role = parsed
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil && h.csrf != nil {
		token, err := h.csrf.EnsureToken(sess)
		if err != nil {
			h.logger.Warn("ensure csrf token", slog.Any("error", err))
		} else {
			w.Header().Set(shared.CSRFHeader, token)
		}
	}
	httpx.JSON(w, http.StatusOK, BuildPermissionsView(h.service.Decider(), role))
}

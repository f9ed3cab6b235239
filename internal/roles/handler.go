package roles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/platform/httpx"
	"github.com/odyssey-erp/storefront/internal/rbac"
	"github.com/odyssey-erp/storefront/internal/shared"
)

// Handler manages role definition endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	audit     shared.AuditRecorder
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, audit shared.AuditRecorder, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, audit: audit, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(authz.ResourceRoles, authz.ActionRead))
		r.Get("/", h.list)
		r.Get("/{role}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(authz.ResourceRoles, authz.ActionWrite))
		r.Put("/{role}", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(authz.ResourceRoles, authz.ActionDelete))
		r.Delete("/{role}", h.reset)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	defs, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list roles failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": defs})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	role, ok := roleParam(w, r)
	if !ok {
		return
	}
	def, err := h.service.Get(r.Context(), role)
	if err != nil {
		h.logger.Error("get role failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, def)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, err := rbac.RequireTopRole(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, ok := roleParam(w, r)
	if !ok {
		return
	}
	var input UpdateInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	def, err := h.service.Update(r.Context(), role, input)
	if err != nil {
		h.logger.Error("update role failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.record(r, actor, "ROLE_UPDATE", role)
	httpx.JSON(w, http.StatusOK, def)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	actor, err := rbac.RequireTopRole(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, ok := roleParam(w, r)
	if !ok {
		return
	}
	def, err := h.service.Reset(r.Context(), role)
	if err != nil {
		h.logger.Error("reset role failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.record(r, actor, "ROLE_RESET", role)
	httpx.JSON(w, http.StatusOK, def)
}

func (h *Handler) record(r *http.Request, actor rbac.Principal, action string, role authz.Role) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Record(r.Context(), shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   authz.ResourceRoles.String(),
		EntityID: role.String(),
	}); err != nil {
		h.logger.Warn("audit role change", slog.Any("error", err))
	}
}

func roleParam(w http.ResponseWriter, r *http.Request) (authz.Role, bool) {
	role, err := authz.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown role")
		return "", false
	}
	return role, true
}

package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/platform/httpx"
	"github.com/odyssey-erp/storefront/internal/rbac"
	"github.com/odyssey-erp/storefront/internal/shared"
)

// Handler exposes account management under /api/accounts.
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

// MountRoutes registers account routes. Every mutation also demands the top
// role inside the handler, whatever the policy table grants.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(authz.ResourceAccounts, authz.ActionRead))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(authz.ResourceAccounts, authz.ActionWrite))
		r.Post("/", h.create)
		r.Put("/{id}/role", h.updateRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(authz.ResourceAccounts, authz.ActionDelete))
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageParams(r.URL.Query())
	result, err := h.service.List(r.Context(), page, perPage)
	if err != nil {
		h.fail(w, "list accounts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	account, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, err := rbac.RequireTopRole(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input CreateInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	account, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.fail(w, "create account", err)
		return
	}
	h.record(r, actor, "ACCOUNT_CREATE", account.ID, map[string]any{"role": account.Role.String()})
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	actor, err := rbac.RequireTopRole(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	var input UpdateRoleInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	account, err := h.service.UpdateRole(r.Context(), id, authz.Role(input.Role))
	if err != nil {
		h.fail(w, "update account role", err)
		return
	}
	h.record(r, actor, "ACCOUNT_ROLE_UPDATE", id, map[string]any{"role": account.Role.String()})
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, err := rbac.RequireTopRole(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor.UserID, id); err != nil {
		h.fail(w, "delete account", err)
		return
	}
	h.record(r, actor, "ACCOUNT_DELETE", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "account not found")
	case errors.Is(err, ErrEmailTaken):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrSelfDelete), errors.Is(err, ErrLastSuperAdmin):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, authz.ErrUnknownRole):
		httpx.Problem(w, http.StatusBadRequest, "Unknown Role", "")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) record(r *http.Request, actor rbac.Principal, action string, id int64, meta map[string]any) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Record(r.Context(), shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   authz.ResourceAccounts.String(),
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		h.logger.Warn("audit account change", slog.Any("error", err))
	}
}

func accountID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return 0, false
	}
	return id, true
}

package content

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/platform/httpx"
	"github.com/odyssey-erp/storefront/internal/rbac"
	"github.com/odyssey-erp/storefront/internal/shared"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Handler serves every content section under /api/<section>.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	audit     shared.AuditRecorder
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, audit shared.AuditRecorder, rbac rbac.Middleware) *Handler {
	v := validator.New()
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	return &Handler{logger: logger, service: service, audit: audit, rbac: rbac, validator: v}
}

// MountRoutes registers one subtree per content section on r.
func (h *Handler) MountRoutes(r chi.Router) {
	for _, kind := range authz.ContentResources() {
		r.Route("/"+kind.String(), h.section(kind))
	}
}

func (h *Handler) section(kind authz.Resource) func(chi.Router) {
	return func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.Require(kind, authz.ActionRead))
			r.Get("/", h.list(kind))
			r.Get("/{id}", h.get(kind))
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.Require(kind, authz.ActionWrite))
			r.Post("/", h.create(kind))
			r.Put("/{id}", h.update(kind))
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.Require(kind, authz.ActionDelete))
			r.Delete("/{id}", h.delete(kind))
		})
	}
}

func (h *Handler) list(kind authz.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, perPage := shared.PageParams(r.URL.Query())
		result, err := h.service.List(r.Context(), kind, page, perPage)
		if err != nil {
			h.fail(w, kind, "list", err)
			return
		}
		httpx.JSON(w, http.StatusOK, result)
	}
}

func (h *Handler) get(kind authz.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := h.service.Get(r.Context(), kind, chi.URLParam(r, "id"))
		if err != nil {
			h.fail(w, kind, "get", err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) create(kind authz.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, ok := h.decode(w, r)
		if !ok {
			return
		}
		p, _ := rbac.PrincipalFromContext(r.Context())
		doc, err := h.service.Create(r.Context(), p.UserID, kind, input, r.Header.Get(shared.IdempotencyHeader))
		if err != nil {
			h.fail(w, kind, "create", err)
			return
		}
		h.record(r, p, "CONTENT_CREATE", doc)
		httpx.JSON(w, http.StatusCreated, doc)
	}
}

func (h *Handler) update(kind authz.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, ok := h.decode(w, r)
		if !ok {
			return
		}
		p, _ := rbac.PrincipalFromContext(r.Context())
		doc, err := h.service.Update(r.Context(), p.UserID, kind, chi.URLParam(r, "id"), input)
		if err != nil {
			h.fail(w, kind, "update", err)
			return
		}
		h.record(r, p, "CONTENT_UPDATE", doc)
		httpx.JSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) delete(kind authz.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := h.service.Delete(r.Context(), kind, id); err != nil {
			h.fail(w, kind, "delete", err)
			return
		}
		p, _ := rbac.PrincipalFromContext(r.Context())
		h.record(r, p, "CONTENT_DELETE", Document{ID: id, Kind: kind})
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Input, bool) {
	var input Input
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, err)
		return Input{}, false
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.ValidationProblem(w, err)
		return Input{}, false
	}
	return input, true
}

func (h *Handler) fail(w http.ResponseWriter, kind authz.Resource, op string, err error) {
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case IsConflict(err):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("content "+op, slog.String("kind", kind.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) record(r *http.Request, p rbac.Principal, action string, doc Document) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Record(r.Context(), shared.AuditLog{
		ActorID:  p.UserID,
		Action:   action,
		Entity:   doc.Kind.String(),
		EntityID: doc.ID,
		Meta:     map[string]any{"slug": doc.Slug},
	}); err != nil {
		h.logger.Warn("audit content change", slog.Any("error", err))
	}
}

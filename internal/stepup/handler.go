package stepup

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/platform/httpx"
	"github.com/odyssey-erp/storefront/internal/rbac"
	"github.com/odyssey-erp/storefront/internal/shared"
)

// Handler exposes secret verification to the operator console. A positive
// answer changes nothing on the server; authorization stays with rbac.
type Handler struct {
	logger    *slog.Logger
	verifier  Verifier
	audit     shared.AuditRecorder
	rbac      rbac.Middleware
	validator *validator.Validate
	limit     int
}

// NewHandler builds Handler. limit caps attempts per user per minute.
func NewHandler(logger *slog.Logger, verifier Verifier, audit shared.AuditRecorder, rbac rbac.Middleware, limit int) *Handler {
	if limit <= 0 {
		limit = 10
	}
	return &Handler{logger: logger, verifier: verifier, audit: audit, rbac: rbac, validator: validator.New(), limit: limit}
}

// MountRoutes registers the verification route.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(h.limit, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		if p, ok := rbac.PrincipalFromContext(r.Context()); ok {
			return "stepup:" + strconv.FormatInt(p.UserID, 10), nil
		}
		return httprate.KeyByIP(r)
	}))
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Authenticated)
		r.Use(limiter)
		r.Post("/", h.verify)
	})
}

// VerifyRequest is the body of POST /api/step-up.
type VerifyRequest struct {
	Role   string `json:"role" validate:"required"`
	Secret string `json:"secret" validate:"required,max=256"`
}

// VerifyResponse is returned when the secret matches.
type VerifyResponse struct {
	Role     string `json:"role"`
	Verified bool   `json:"verified"`
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role and secret are required")
		return
	}
	role, err := authz.ParseRole(req.Role)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Unknown Role", "")
		return
	}

	p, _ := rbac.PrincipalFromContext(r.Context())
	err = h.verifier.VerifySecret(r.Context(), role, req.Secret)
	h.record(r, p, role, err)
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, VerifyResponse{Role: role.String(), Verified: true})
	case errors.Is(err, ErrSecretMismatch):
		httpx.Problem(w, http.StatusUnauthorized, "Secret Mismatch", "")
	case errors.Is(err, ErrNotRequired):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Step-Up Not Required", "")
	default:
		h.logger.Error("step-up verify", slog.Any("error", err), slog.String("role", role.String()))
		httpx.Problem(w, http.StatusServiceUnavailable, "Step-Up Unavailable", "")
	}
}

func (h *Handler) record(r *http.Request, p rbac.Principal, role authz.Role, verifyErr error) {
	if h.audit == nil {
		return
	}
	result := "verified"
	if verifyErr != nil {
		result = "rejected"
	}
	err := h.audit.Record(r.Context(), shared.AuditLog{
		ActorID:  p.UserID,
		Action:   "STEP_UP",
		Entity:   "roles",
		EntityID: role.String(),
		Meta:     map[string]any{"result": result},
	})
	if err != nil {
		h.logger.Warn("audit step-up", slog.Any("error", err))
	}
}

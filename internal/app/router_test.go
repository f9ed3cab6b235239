package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/storefront/internal/auth"
	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/observability"
	"github.com/odyssey-erp/storefront/internal/rbac"
	"github.com/odyssey-erp/storefront/internal/roles"
	"github.com/odyssey-erp/storefront/internal/shared"
	"github.com/odyssey-erp/storefront/internal/stepup"
)

type fakeAuthRepo struct {
	user *auth.User
}

func (f *fakeAuthRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if f.user == nil || f.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return f.user, nil
}

func (f *fakeAuthRepo) CreateSession(context.Context, string, int64, time.Time, string, string) error {
	return nil
}

func (f *fakeAuthRepo) DeleteSession(context.Context, string) error { return nil }

func (f *fakeAuthRepo) DeleteExpiredSessions(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeResolver struct {
	user *auth.User
}

func (f fakeResolver) ResolvePrincipal(ctx context.Context, userID int64) (rbac.Principal, error) {
	if f.user == nil || f.user.ID != userID {
		return rbac.Principal{}, shared.ErrNotFound
	}
	return rbac.Principal{UserID: f.user.ID, Email: f.user.Email, Role: f.user.Role}, nil
}

type emptyRoleStore struct{}

func (emptyRoleStore) List(context.Context) ([]roles.Stored, error) { return nil, nil }

func (emptyRoleStore) Get(context.Context, authz.Role) (roles.Stored, error) {
	return roles.Stored{}, shared.ErrNotFound
}

func (emptyRoleStore) Upsert(ctx context.Context, role authz.Role, in roles.UpdateInput) (roles.Stored, error) {
	return roles.Stored{Role: role, Label: in.Label, Description: in.Description, UpdatedAt: time.Now()}, nil
}

func (emptyRoleStore) Delete(context.Context, authz.Role) error { return nil }

type client struct {
	t      *testing.T
	router http.Handler
	cookie *http.Cookie
	csrf   string
}

func (c *client) do(method, target, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	if c.csrf != "" {
		req.Header.Set(shared.CSRFHeader, c.csrf)
	}
	rr := httptest.NewRecorder()
	c.router.ServeHTTP(rr, req)
	for _, ck := range rr.Result().Cookies() {
		if ck.Name == "storefront_session" {
			c.cookie = ck
		}
	}
	if token := rr.Header().Get(shared.CSRFHeader); token != "" {
		c.csrf = token
	}
	return rr
}

func newTestRouter(t *testing.T, checks map[string]HealthCheck) http.Handler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	secret, err := bcrypt.GenerateFromPassword([]byte("open sesame"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &auth.User{ID: 7, Email: "admin@shop.test", PasswordHash: string(hash), Role: authz.RoleAdmin, IsActive: true}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	sessions := shared.NewSessionManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "storefront_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	metrics := observability.NewMetrics()

	decider := authz.NewDecider(authz.DefaultTable())
	rbacService := rbac.NewService(decider, fakeResolver{user: user}, metrics)
	mw := rbac.Middleware{Service: rbacService, Logger: logger}
	verifier, err := stepup.NewHashVerifier(string(secret), nil)
	require.NoError(t, err)

	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, AppRateLimit: 1000}
	return NewRouter(RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessions,
		CSRFManager:        csrf,
		AuthHandler:        auth.NewHandler(logger, auth.NewService(&fakeAuthRepo{user: user}), sessions, csrf),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService, csrf, mw),
		StepUpHandler:      stepup.NewHandler(logger, verifier, shared.NopAudit{}, mw, 5),
		RolesHandler:       roles.NewHandler(logger, roles.NewService(emptyRoleStore{}, decider), shared.NopAudit{}, mw),
		Metrics:            metrics,
		HealthChecks:       checks,
	})
}

func TestLoginRequiresCSRFToken(t *testing.T) {
	c := &client{t: t, router: newTestRouter(t, nil)}

	rr := c.do(http.MethodPost, "/auth/login", `{"email":"admin@shop.test","password":"correct horse"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = c.do(http.MethodGet, "/auth/csrf", "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.NotEmpty(t, c.csrf)
	require.NotNil(t, c.cookie)

	rr = c.do(http.MethodPost, "/auth/login", `{"email":"admin@shop.test","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestAdminSessionEndToEnd(t *testing.T) {
	c := &client{t: t, router: newTestRouter(t, nil)}

	rr := c.do(http.MethodGet, "/api/permissions", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	c.do(http.MethodGet, "/auth/csrf", "")
	rr = c.do(http.MethodPost, "/auth/login", `{"email":"admin@shop.test","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = c.do(http.MethodGet, "/api/permissions", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var view rbac.PermissionsView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, "admin", view.Role)
	assert.Equal(t, []string{"read"}, view.Grants["roles"])

	rr = c.do(http.MethodPost, "/api/step-up", `{"role":"admin","secret":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = c.do(http.MethodPost, "/api/step-up", `{"role":"admin","secret":"open sesame"}`)
	assert.Equal(t, http.StatusOK, rr.Code)

	stale := c.csrf
	c.csrf = "forged"
	rr = c.do(http.MethodPost, "/api/step-up", `{"role":"admin","secret":"open sesame"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	c.csrf = stale

	rr = c.do(http.MethodPost, "/auth/logout", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = c.do(http.MethodGet, "/api/permissions", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAnonymousMutationsAreUnauthenticated(t *testing.T) {
	c := &client{t: t, router: newTestRouter(t, nil)}

	rr := c.do(http.MethodPost, "/api/step-up", `{"role":"admin","secret":"open sesame"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, rr.Body.String())

	// an anonymous session cookie changes nothing
	c.do(http.MethodGet, "/api/permissions", "")
	require.NotNil(t, c.cookie)
	rr = c.do(http.MethodPut, "/api/roles/viewer", `{"label":"Read Only"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, rr.Body.String())
	rr = c.do(http.MethodDelete, "/api/roles/viewer", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code, rr.Body.String())

	rr = c.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `outcome="unauthenticated",resource="roles"`)
	assert.NotContains(t, rr.Body.String(), `outcome="forbidden"`)
}

func TestSignedInMutationsStillNeedCSRFToken(t *testing.T) {
	c := &client{t: t, router: newTestRouter(t, nil)}
	c.do(http.MethodGet, "/auth/csrf", "")
	rr := c.do(http.MethodPost, "/auth/login", `{"email":"admin@shop.test","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	c.csrf = ""
	rr = c.do(http.MethodPost, "/api/step-up", `{"role":"admin","secret":"open sesame"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestSecurityHeadersAndMetrics(t *testing.T) {
	c := &client{t: t, router: newTestRouter(t, nil)}

	rr := c.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	c.do(http.MethodGet, "/api/permissions", "")
	rr = c.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `storefront_http_requests_total{code="401"`)
}

func TestHealthzReportsFailingDependency(t *testing.T) {
	router := newTestRouter(t, map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	c := &client{t: t, router: router}

	rr := c.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body healthStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "down", body.Checks["redis"])
	assert.Equal(t, "ok", body.Checks["postgres"])
}

package e2e

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/storefront/internal/app"
	"github.com/odyssey-erp/storefront/internal/auth"
	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/console"
	"github.com/odyssey-erp/storefront/internal/rbac"
	"github.com/odyssey-erp/storefront/internal/roles"
	"github.com/odyssey-erp/storefront/internal/shared"
	"github.com/odyssey-erp/storefront/internal/stepup"
	_ "github.com/odyssey-erp/storefront/testing"
)

const (
	password = "correct horse battery"
	secret   = "open sesame"
	cookie   = "storefront_session"
)

type directory struct {
	users map[string]*auth.User
}

func (d directory) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	u, ok := d.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (directory) CreateSession(context.Context, string, int64, time.Time, string, string) error {
	return nil
}

func (directory) DeleteSession(context.Context, string) error { return nil }

func (directory) DeleteExpiredSessions(context.Context, time.Time) (int64, error) { return 0, nil }

func (d directory) ResolvePrincipal(ctx context.Context, id int64) (rbac.Principal, error) {
	for _, u := range d.users {
		if u.ID == id {
			return rbac.Principal{UserID: u.ID, Email: u.Email, Role: u.Role}, nil
		}
	}
	return rbac.Principal{}, shared.ErrNotFound
}

type roleStore struct {
	mu   sync.Mutex
	defs map[authz.Role]roles.Stored
}

func (s *roleStore) List(ctx context.Context) ([]roles.Stored, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]roles.Stored, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, d)
	}
	return out, nil
}

func (s *roleStore) Get(ctx context.Context, role authz.Role) (roles.Stored, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[role]
	if !ok {
		return roles.Stored{}, shared.ErrNotFound
	}
	return d, nil
}

func (s *roleStore) Upsert(ctx context.Context, role authz.Role, in roles.UpdateInput) (roles.Stored, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := roles.Stored{Role: role, Label: in.Label, Description: in.Description, UpdatedAt: time.Now()}
	s.defs[role] = d
	return d, nil
}

func (s *roleStore) Delete(ctx context.Context, role authz.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.defs, role)
	return nil
}

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	secretHash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)

	dir := directory{users: map[string]*auth.User{}}
	for i, role := range authz.Roles() {
		email := role.String() + "@shop.test"
		dir.users[email] = &auth.User{ID: int64(i + 1), Email: email, PasswordHash: string(hash), Role: role, IsActive: true}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	sessions := shared.NewSessionManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}), cookie, time.Hour, false)
	csrf := shared.NewCSRFManager("e2e")
	decider := authz.NewDecider(authz.DefaultTable())
	rbacService := rbac.NewService(decider, dir, nil)
	mw := rbac.Middleware{Service: rbacService, Logger: logger}
	verifier, err := stepup.NewHashVerifier(string(secretHash), nil)
	require.NoError(t, err)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             &app.Config{AppRequestTimeout: 5 * time.Second, AppRateLimit: 10000},
		SessionManager:     sessions,
		CSRFManager:        csrf,
		AuthHandler:        auth.NewHandler(logger, auth.NewService(dir), sessions, csrf),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService, csrf, mw),
		StepUpHandler:      stepup.NewHandler(logger, verifier, shared.NopAudit{}, mw, 100),
		RolesHandler:       roles.NewHandler(logger, roles.NewService(&roleStore{defs: map[authz.Role]roles.Stored{}}, decider), shared.NopAudit{}, mw),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

type operator struct {
	client    *console.Client
	auth      *console.Authorizer
	elevation *console.Elevation
}

func login(t *testing.T, srv *httptest.Server, account authz.Role) operator {
	t.Helper()
	client, err := console.NewClient(srv.URL, cookie, "", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, client.Login(context.Background(), account.String()+"@shop.test", password))
	a := console.NewAuthorizer(console.NewMemoryStore(console.DefaultState()), client, slog.New(slog.NewTextHandler(io.Discard, nil)), 5*time.Second)
	return operator{client: client, auth: a, elevation: console.NewElevation(a, client)}
}

func (o operator) actAs(t *testing.T, role authz.Role) {
	t.Helper()
	phase, err := o.elevation.Select(role)
	require.NoError(t, err)
	if phase == console.PhaseAwaitingSecret {
		require.NoError(t, o.elevation.Submit(context.Background(), secret))
	}
	require.NoError(t, o.auth.Refresh(context.Background()))
}

// renameRole performs a sensitive write with the operator's session.
func renameRole(t *testing.T, srv *httptest.Server, o operator) int {
	t.Helper()
	token := csrfFor(t, srv, o.client.Session())

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/roles/viewer", strings.NewReader(`{"label":"Read Only"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(shared.CSRFHeader, token)
	req.AddCookie(&http.Cookie{Name: cookie, Value: o.client.Session()})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func csrfFor(t *testing.T, srv *httptest.Server, session string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/permissions", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: cookie, Value: session})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := resp.Header.Get(shared.CSRFHeader)
	require.NotEmpty(t, token)
	return token
}

func TestConsoleMatchesServerForEveryTriple(t *testing.T) {
	srv := startServer(t)
	decider := authz.NewDecider(authz.DefaultTable())

	for _, role := range authz.Roles() {
		o := login(t, srv, role)
		o.actAs(t, role)
		for _, res := range authz.Resources() {
			for _, action := range authz.Actions() {
				assert.Equal(t, decider.Decide(role, res, action), o.auth.CanDo(res, action), "%s %s %s", role, res, action)
			}
		}
	}
}

func TestUnverifiedConsoleIsStricterThanServer(t *testing.T) {
	srv := startServer(t)
	o := login(t, srv, authz.RoleAdmin)

	phase, err := o.elevation.Select(authz.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, console.PhaseAwaitingSecret, phase)
	require.ErrorIs(t, o.elevation.Submit(context.Background(), "wrong"), console.ErrSecretMismatch)
	require.NoError(t, o.auth.Refresh(context.Background()))

	assert.False(t, o.auth.CanDo(authz.ResourceProducts, authz.ActionWrite))
	assert.True(t, o.auth.CanDo(authz.ResourceProducts, authz.ActionRead))
}

func TestServerIgnoresElevatedClientState(t *testing.T) {
	srv := startServer(t)

	// A viewer account can pass the shared step-up secret and make its
	// console claim superadmin; the server still answers with the account role.
	viewer := login(t, srv, authz.RoleViewer)
	viewer.actAs(t, authz.RoleSuperAdmin)
	assert.True(t, viewer.auth.CanDo(authz.ResourceRoles, authz.ActionWrite))
	assert.Equal(t, http.StatusForbidden, renameRole(t, srv, viewer))

	admin := login(t, srv, authz.RoleAdmin)
	admin.actAs(t, authz.RoleSuperAdmin)
	assert.Equal(t, http.StatusForbidden, renameRole(t, srv, admin))

	owner := login(t, srv, authz.RoleSuperAdmin)
	owner.actAs(t, authz.RoleSuperAdmin)
	assert.Equal(t, http.StatusOK, renameRole(t, srv, owner))
}

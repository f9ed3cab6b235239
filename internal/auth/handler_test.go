package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/storefront/internal/auth"
	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/shared"
	_ "github.com/odyssey-erp/storefront/testing"
)

type stubRepo struct {
	user     *auth.User
	sessions map[string]int64
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func (s *stubRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type harness struct {
	router   http.Handler
	sessions *shared.SessionManager
	repo     *stubRepo
}

// newHarness mounts the auth routes behind a session loader that commits
// before the response is written, like the production stack.
func newHarness(t *testing.T) *harness {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo := &stubRepo{
		user:     &auth.User{ID: 1, Email: "user@test.local", PasswordHash: string(hashed), Role: authz.RoleAdmin, IsActive: true},
		sessions: make(map[string]int64),
	}
	mr := miniredis.RunT(t)
	sessions := shared.NewSessionManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test_session", time.Hour, false)
	handler := auth.NewHandler(nil, auth.NewService(repo), sessions, shared.NewCSRFManager("csrfsecret"))

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.Load(r.Context(), r)
			if err != nil {
				t.Fatalf("load session: %v", err)
			}
			ctx := shared.ContextWithSession(r.Context(), sess)
			rec := httptest.NewRecorder()
			next.ServeHTTP(rec, r.WithContext(ctx))
			if err := sessions.Commit(ctx, w, sess); err != nil {
				t.Fatalf("commit session: %v", err)
			}
			for k, v := range rec.Header() {
				w.Header()[k] = v
			}
			w.WriteHeader(rec.Code)
			_, _ = w.Write(rec.Body.Bytes())
		})
	})
	router.Route("/auth", handler.MountRoutes)
	return &harness{router: router, sessions: sessions, repo: repo}
}

func (h *harness) do(method, target, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req)
	return res
}

func sessionCookie(t *testing.T, res *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range res.Result().Cookies() {
		if c.Name == "test_session" {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t)

	res := h.do(http.MethodPost, "/auth/login", `{"email":"user@test.local","password":"wrongpass"}`, nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "user@test.local") {
		t.Fatalf("error body must not echo the account")
	}
	if len(h.repo.sessions) != 0 {
		t.Fatalf("no session should be registered")
	}
}

func TestLoginRenewsSession(t *testing.T) {
	h := newHarness(t)

	csrfRes := h.do(http.MethodGet, "/auth/csrf", "", nil)
	if csrfRes.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", csrfRes.Code)
	}
	anon := sessionCookie(t, csrfRes)
	anonToken := csrfRes.Header().Get(shared.CSRFHeader)
	if anonToken == "" {
		t.Fatalf("csrf token not issued")
	}

	res := h.do(http.MethodPost, "/auth/login", `{"email":"user@test.local","password":"correctpass"}`, anon)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if !strings.Contains(res.Body.String(), `"role":"admin"`) {
		t.Fatalf("expected role in body, got %s", res.Body.String())
	}
	authed := sessionCookie(t, res)
	if authed.Value == anon.Value {
		t.Fatalf("login must move the session to a new id")
	}
	if token := res.Header().Get(shared.CSRFHeader); token == "" || token == anonToken {
		t.Fatalf("login must rotate the csrf token")
	}
	if h.repo.sessions[authed.Value] != 1 {
		t.Fatalf("session not registered for user")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(anon)
	old, err := h.sessions.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load old session: %v", err)
	}
	if old.User() != "" {
		t.Fatalf("pre-login session id must stay anonymous")
	}

	res = h.do(http.MethodPost, "/auth/logout", "", authed)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if len(h.repo.sessions) != 0 {
		t.Fatalf("logout must drop the session record")
	}
}

package stepup

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/rbac"
	"github.com/odyssey-erp/storefront/internal/shared"
)

type fixedResolver struct{}

func (fixedResolver) ResolvePrincipal(ctx context.Context, userID int64) (rbac.Principal, error) {
	return rbac.Principal{UserID: userID, Role: authz.RoleAdmin}, nil
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (m *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func newRouter(t *testing.T, limit int) (http.Handler, *memoryAudit) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier, err := NewHashVerifier(hash(t, "open-sesame"), nil)
	require.NoError(t, err)
	mw := rbac.Middleware{Service: rbac.NewService(authz.NewDecider(authz.DefaultTable()), fixedResolver{}, nil), Logger: logger}
	audit := &memoryAudit{}
	router := chi.NewRouter()
	router.Route("/api/step-up", NewHandler(logger, verifier, audit, mw, limit).MountRoutes)
	return router, audit
}

func post(t *testing.T, router http.Handler, body string, userID string) *httptest.ResponseRecorder {
	t.Helper()
	mr := miniredis.RunT(t)
	sessions := shared.NewSessionManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "s", time.Hour, false)
	req := httptest.NewRequest(http.MethodPost, "/api/step-up/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	sess, err := sessions.Load(req.Context(), req)
	require.NoError(t, err)
	if userID != "" {
		sess.SetUser(userID)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestVerifyEndpoint(t *testing.T) {
	router, audit := newRouter(t, 100)

	rr := post(t, router, `{"role":"superadmin","secret":"open-sesame"}`, "7")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"role":"superadmin","verified":true}`, rr.Body.String())

	rr = post(t, router, `{"role":"admin","secret":"nope"}`, "7")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = post(t, router, `{"role":"viewer","secret":"open-sesame"}`, "7")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = post(t, router, `{"role":"admin"}`, "7")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	require.Len(t, audit.logs, 3)
	assert.Equal(t, "verified", audit.logs[0].Meta["result"])
	assert.Equal(t, "rejected", audit.logs[1].Meta["result"])
	assert.Equal(t, int64(7), audit.logs[0].ActorID)
}

func TestVerifyRequiresSession(t *testing.T) {
	router, _ := newRouter(t, 100)
	rr := post(t, router, `{"role":"admin","secret":"open-sesame"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestVerifyIsRateLimitedPerUser(t *testing.T) {
	router, _ := newRouter(t, 2)
	for i := 0; i < 2; i++ {
		rr := post(t, router, `{"role":"admin","secret":"nope"}`, "9")
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}
	rr := post(t, router, `{"role":"admin","secret":"open-sesame"}`, "9")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = post(t, router, `{"role":"admin","secret":"open-sesame"}`, "10")
	assert.Equal(t, http.StatusOK, rr.Code)
}

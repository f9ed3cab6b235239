package console

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/storefront/internal/authz"
)

type tableFetcher struct {
	table *authz.Table
	err   error
	calls atomic.Int32
}

func (f *tableFetcher) FetchGrants(ctx context.Context, role authz.Role) (*authz.Table, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.table, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAuthorizer(t *testing.T, st State, fetcher GrantFetcher) (*Authorizer, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(st)
	a := NewAuthorizer(store, fetcher, quietLogger(), 0)
	return a, store
}

func TestCanDoHoldsMutationsUntilVerified(t *testing.T) {
	fetcher := &tableFetcher{table: authz.DefaultTable()}

	unverified, _ := newAuthorizer(t, State{CurrentRole: authz.RoleSuperAdmin}, fetcher)
	require.NoError(t, unverified.Refresh(context.Background()))
	assert.False(t, unverified.CanDo(authz.ResourceAccounts, authz.ActionDelete))
	assert.ErrorIs(t, unverified.Check(authz.ResourceAccounts, authz.ActionDelete), ErrStepUpRequired)
	assert.True(t, unverified.CanDo(authz.ResourceAccounts, authz.ActionRead))
	assert.False(t, unverified.IsTopPrivileged())

	verified, _ := newAuthorizer(t, State{CurrentRole: authz.RoleSuperAdmin, StepUpVerified: true}, fetcher)
	require.NoError(t, verified.Refresh(context.Background()))
	assert.True(t, verified.CanDo(authz.ResourceAccounts, authz.ActionDelete))
	assert.True(t, verified.IsTopPrivileged())
	assert.True(t, verified.IsAtLeastPrivileged())
}

func TestCanDoFollowsDecisionRules(t *testing.T) {
	fetcher := &tableFetcher{table: authz.DefaultTable()}

	admin, _ := newAuthorizer(t, State{CurrentRole: authz.RoleAdmin, StepUpVerified: true}, fetcher)
	require.NoError(t, admin.Refresh(context.Background()))
	assert.True(t, admin.CanDo(authz.ResourceProducts, authz.ActionDelete))
	assert.ErrorIs(t, admin.Check(authz.ResourceAccounts, authz.ActionWrite), ErrNotPermitted)
	assert.True(t, admin.IsAtLeastPrivileged())
	assert.False(t, admin.IsTopPrivileged())

	viewer, _ := newAuthorizer(t, DefaultState(), fetcher)
	require.NoError(t, viewer.Refresh(context.Background()))
	assert.True(t, viewer.CanDo(authz.ResourceFAQs, authz.ActionRead))
	assert.False(t, viewer.CanDo(authz.ResourceFAQs, authz.ActionWrite))
	assert.False(t, viewer.IsAtLeastPrivileged())
}

func TestRefreshFailureDeniesEverything(t *testing.T) {
	fetcher := &tableFetcher{err: errors.New("connection refused")}
	a, _ := newAuthorizer(t, State{CurrentRole: authz.RoleSuperAdmin, StepUpVerified: true}, fetcher)

	require.Error(t, a.Refresh(context.Background()))
	for _, res := range authz.Resources() {
		for _, action := range authz.Actions() {
			assert.False(t, a.CanDo(res, action), "%s %s", res, action)
		}
	}
}

func TestRefreshFetchesOncePerRole(t *testing.T) {
	fetcher := &tableFetcher{table: authz.DefaultTable()}
	a, _ := newAuthorizer(t, DefaultState(), fetcher)

	require.NoError(t, a.Refresh(context.Background()))
	require.NoError(t, a.Refresh(context.Background()))
	assert.Equal(t, int32(1), fetcher.calls.Load())

	a.Invalidate()
	require.NoError(t, a.Refresh(context.Background()))
	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestCapabilitiesForVerifiedAdmin(t *testing.T) {
	a, _ := newAuthorizer(t, State{CurrentRole: authz.RoleAdmin, StepUpVerified: true}, &tableFetcher{table: authz.DefaultTable()})
	require.NoError(t, a.Refresh(context.Background()))

	caps := a.Capabilities()
	assert.Equal(t, authz.AllActions, caps[authz.ResourceBanners])
	assert.Equal(t, authz.NewActionSet(authz.ActionRead), caps[authz.ResourceRoles])
}

func TestNewAuthorizerNormalizesState(t *testing.T) {
	a, _ := newAuthorizer(t, State{CurrentRole: authz.RoleViewer, StepUpVerified: true}, nil)
	assert.Equal(t, DefaultState(), a.State())

	a, _ = newAuthorizer(t, State{CurrentRole: "root", StepUpVerified: true}, nil)
	assert.Equal(t, DefaultState(), a.State())
}

package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/stepup"
)

var (
	// ErrStepUpRequired marks a mutating action held back until the current
	// privileged role is verified.
	ErrStepUpRequired = errors.New("console: step-up verification required")
	// ErrNotPermitted marks an action the policy table denies.
	ErrNotPermitted = errors.New("console: action not permitted")
	// ErrSecretMismatch is returned when a step-up secret is rejected.
	ErrSecretMismatch = stepup.ErrSecretMismatch
)

// GrantFetcher loads the policy table as seen by role.
type GrantFetcher interface {
	FetchGrants(ctx context.Context, role authz.Role) (*authz.Table, error)
}

// Authorizer answers capability queries for the operator console. It is
// advisory: the server decides every request on its own.
type Authorizer struct {
	store   Store
	fetcher GrantFetcher
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	state  State
	tables map[authz.Role]*authz.Table
}

// NewAuthorizer loads the persisted state from store. A store error leaves
// the default state in place.
func NewAuthorizer(store Store, fetcher GrantFetcher, logger *slog.Logger, timeout time.Duration) *Authorizer {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	st, err := store.Load()
	if err != nil {
		logger.Warn("load console state", slog.Any("error", err))
		st = DefaultState()
	}
	return &Authorizer{
		store:   store,
		fetcher: fetcher,
		logger:  logger,
		timeout: timeout,
		state:   st.normalize(),
		tables:  make(map[authz.Role]*authz.Table),
	}
}

// State returns the current session context.
func (a *Authorizer) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Refresh fetches grants for the current role unless they were already
// loaded this session. On failure no grants are cached and every query
// answers false until a later Refresh succeeds.
func (a *Authorizer) Refresh(ctx context.Context) error {
	role := a.State().CurrentRole
	a.mu.RLock()
	_, ok := a.tables[role]
	a.mu.RUnlock()
	if ok {
		return nil
	}
	if a.fetcher == nil {
		return errors.New("console: no grant fetcher configured")
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	table, err := a.fetcher.FetchGrants(ctx, role)
	if err != nil {
		a.logger.Warn("fetch grants", slog.String("role", role.String()), slog.Any("error", err))
		return fmt.Errorf("console: fetch grants for %s: %w", role, err)
	}
	a.mu.Lock()
	a.tables[role] = table
	a.mu.Unlock()
	return nil
}

// Invalidate drops cached grants so the next Refresh refetches them.
func (a *Authorizer) Invalidate() {
	a.mu.Lock()
	a.tables = make(map[authz.Role]*authz.Table)
	a.mu.Unlock()
}

// Check explains why CanDo would answer false: ErrNotPermitted when the
// table denies the action, ErrStepUpRequired when only verification is
// missing.
func (a *Authorizer) Check(res authz.Resource, action authz.Action) error {
	a.mu.RLock()
	st := a.state
	table := a.tables[st.CurrentRole]
	a.mu.RUnlock()

	if !authz.Decide(table, st.CurrentRole, res, action) {
		return ErrNotPermitted
	}
	if action.Mutating() && st.CurrentRole.IsPrivileged() && !st.StepUpVerified {
		return ErrStepUpRequired
	}
	return nil
}

// CanDo reports whether the console should enable action on res.
func (a *Authorizer) CanDo(res authz.Resource, action authz.Action) bool {
	return a.Check(res, action) == nil
}

// IsAtLeastPrivileged reports a verified admin or superadmin.
func (a *Authorizer) IsAtLeastPrivileged() bool {
	st := a.State()
	return st.CurrentRole.IsPrivileged() && st.StepUpVerified
}

// IsTopPrivileged reports a verified superadmin.
func (a *Authorizer) IsTopPrivileged() bool {
	st := a.State()
	return st.CurrentRole.IsTop() && st.StepUpVerified
}

// Capabilities lists the enabled actions per resource for the current state.
func (a *Authorizer) Capabilities() map[authz.Resource]authz.ActionSet {
	out := make(map[authz.Resource]authz.ActionSet, len(authz.Resources()))
	for _, res := range authz.Resources() {
		var set authz.ActionSet
		for _, action := range authz.Actions() {
			if a.CanDo(res, action) {
				set |= authz.NewActionSet(action)
			}
		}
		out[res] = set
	}
	return out
}

// apply replaces and persists the state. Only Elevation calls it.
func (a *Authorizer) apply(st State) error {
	st = st.normalize()
	a.mu.Lock()
	a.state = st
	a.mu.Unlock()
	if err := a.store.Save(st); err != nil {
		return fmt.Errorf("console: save state: %w", err)
	}
	return nil
}

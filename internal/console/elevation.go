package console

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/stepup"
)

// ErrNoPendingElevation is returned by Submit outside AwaitingSecret.
var ErrNoPendingElevation = errors.New("console: no role elevation pending")

// Phase is the elevation state.
type Phase int

const (
	// PhaseIdle means the authorizer state is settled.
	PhaseIdle Phase = iota
	// PhaseAwaitingSecret means a privileged role waits for its secret.
	PhaseAwaitingSecret
)

func (p Phase) String() string {
	if p == PhaseAwaitingSecret {
		return "awaiting_secret"
	}
	return "idle"
}

// Elevation is the only writer of the authorizer state. While a secret is
// pending the authorizer keeps answering for the previous state.
type Elevation struct {
	auth     *Authorizer
	verifier stepup.Verifier

	mu       sync.Mutex
	phase    Phase
	pending  authz.Role
	previous State
}

// NewElevation binds the flow to auth, checking secrets with verifier.
func NewElevation(auth *Authorizer, verifier stepup.Verifier) *Elevation {
	return &Elevation{auth: auth, verifier: verifier}
}

// Phase returns the current phase.
func (e *Elevation) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Pending returns the role awaiting its secret, if any.
func (e *Elevation) Pending() (authz.Role, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending, e.phase == PhaseAwaitingSecret
}

// Select handles an operator picking role. The viewer role applies at once;
// a privileged role already verified is kept as is; any other privileged
// role moves the flow to PhaseAwaitingSecret.
func (e *Elevation) Select(role authz.Role) (Phase, error) {
	if !role.Valid() {
		return e.Phase(), fmt.Errorf("%w: %q", authz.ErrUnknownRole, role)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.auth.State()
	if e.phase == PhaseAwaitingSecret {
		current = e.previous
	}

	if !role.IsPrivileged() {
		e.reset()
		return e.phase, e.auth.apply(State{CurrentRole: role})
	}
	if current.CurrentRole == role && current.StepUpVerified {
		e.reset()
		return e.phase, nil
	}
	e.phase = PhaseAwaitingSecret
	e.pending = role
	e.previous = current
	return e.phase, nil
}

// Submit checks secret for the pending role. On success the role becomes
// current and verified. On any failure the previous state stays in effect
// and the error is returned; ErrSecretMismatch marks a wrong secret.
func (e *Elevation) Submit(ctx context.Context, secret string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseAwaitingSecret {
		return ErrNoPendingElevation
	}
	role := e.pending
	previous := e.previous
	e.reset()

	if err := e.verifier.VerifySecret(ctx, role, secret); err != nil {
		if current := e.auth.State(); current != previous {
			if applyErr := e.auth.apply(previous); applyErr != nil {
				return errors.Join(err, applyErr)
			}
		}
		return err
	}
	return e.auth.apply(State{CurrentRole: role, StepUpVerified: true})
}

// Cancel abandons a pending elevation and returns the state left in effect.
func (e *Elevation) Cancel() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
	return e.auth.State()
}

func (e *Elevation) reset() {
	e.phase = PhaseIdle
	e.pending = ""
	e.previous = State{}
}

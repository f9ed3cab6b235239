package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/shared"
)

// Service resolves the caller and asks the decider. It is the server-side
// authority; nothing the client reports about its own state is consulted.
type Service struct {
	decider  *authz.Decider
	resolver RoleResolver
	recorder DecisionRecorder
}

// NewService builds a Service. recorder may be nil.
func NewService(decider *authz.Decider, resolver RoleResolver, recorder DecisionRecorder) *Service {
	return &Service{decider: decider, resolver: resolver, recorder: recorder}
}

// Decider exposes the decision function backing the service.
func (s *Service) Decider() *authz.Decider {
	return s.decider
}

// Authenticate resolves the session user into a Principal.
func (s *Service) Authenticate(ctx context.Context) (Principal, error) {
	userID, ok := shared.SessionUserID(ctx)
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	p, err := s.resolver.ResolvePrincipal(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, fmt.Errorf("rbac: resolve principal: %w", err)
	}
	if !p.Role.Valid() {
		return Principal{}, ErrUnauthenticated
	}
	return p, nil
}

// Check authenticates the caller and decides (resource, action). It returns
// ErrUnauthenticated, ErrForbidden or a wrapped resolver error.
func (s *Service) Check(ctx context.Context, res authz.Resource, action authz.Action) (Principal, error) {
	p, err := s.Authenticate(ctx)
	if err != nil {
		s.observe(res, action, outcomeFor(err))
		return Principal{}, err
	}
	if !s.decider.Decide(p.Role, res, action) {
		s.observe(res, action, OutcomeForbidden)
		return p, ErrForbidden
	}
	s.observe(res, action, OutcomeAllowed)
	return p, nil
}

func (s *Service) observe(res authz.Resource, action authz.Action, outcome Outcome) {
	if s.recorder == nil {
		return
	}
	s.recorder.ObserveDecision(res.String(), action.String(), string(outcome))
}

func outcomeFor(err error) Outcome {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return OutcomeUnauthenticated
	case errors.Is(err, ErrForbidden):
		return OutcomeForbidden
	default:
		return OutcomeError
	}
}

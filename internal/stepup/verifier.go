// Package stepup verifies the secondary secret a privileged role must supply
// before its destructive actions are enabled in the operator console.
package stepup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/storefront/internal/authz"
)

var (
	// ErrSecretMismatch is returned for a wrong secret.
	ErrSecretMismatch = errors.New("stepup: secret mismatch")
	// ErrNotRequired is returned for roles that never need step-up.
	ErrNotRequired = errors.New("stepup: role does not require verification")
	// ErrNotConfigured is returned when no hash exists for a privileged role.
	ErrNotConfigured = errors.New("stepup: no secret configured for role")
)

// Verifier checks a step-up secret for a role.
type Verifier interface {
	VerifySecret(ctx context.Context, role authz.Role, secret string) error
}

// HashVerifier compares secrets against bcrypt hashes. A per-role hash wins
// over the shared fallback.
type HashVerifier struct {
	shared []byte
	byRole map[authz.Role][]byte
}

// NewHashVerifier builds a verifier from a shared hash and per-role hashes
// keyed by role name. Every hash must be a valid bcrypt hash.
func NewHashVerifier(sharedHash string, roleHashes map[string]string) (*HashVerifier, error) {
	v := &HashVerifier{byRole: make(map[authz.Role][]byte, len(roleHashes))}
	if sharedHash = strings.TrimSpace(sharedHash); sharedHash != "" {
		if _, err := bcrypt.Cost([]byte(sharedHash)); err != nil {
			return nil, fmt.Errorf("stepup: shared hash: %w", err)
		}
		v.shared = []byte(sharedHash)
	}
	for name, hash := range roleHashes {
		role, err := authz.ParseRole(name)
		if err != nil {
			return nil, err
		}
		if !role.IsPrivileged() {
			return nil, fmt.Errorf("%w: %s", ErrNotRequired, role)
		}
		hash = strings.TrimSpace(hash)
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("stepup: hash for %s: %w", role, err)
		}
		v.byRole[role] = []byte(hash)
	}
	return v, nil
}

// VerifySecret implements Verifier.
func (v *HashVerifier) VerifySecret(ctx context.Context, role authz.Role, secret string) error {
	if !role.IsPrivileged() {
		return ErrNotRequired
	}
	hash, ok := v.byRole[role]
	if !ok {
		hash = v.shared
	}
	if len(hash) == 0 {
		return ErrNotConfigured
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil {
		return ErrSecretMismatch
	}
	return nil
}

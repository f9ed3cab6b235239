// Package roles serves the role definitions shown in the admin panel: a
// label and description per fixed role alongside its effective grants.
package roles

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/storefront/internal/authz"
)

// Definition is one role as presented to operators.
type Definition struct {
	Role        authz.Role          `json:"role"`
	Label       string              `json:"label"`
	Description string              `json:"description"`
	Customized  bool                `json:"customized"`
	UpdatedAt   *time.Time          `json:"updated_at,omitempty"`
	Grants      map[string][]string `json:"grants"`
}

// Stored is the editable part of a definition as persisted.
type Stored struct {
	Role        authz.Role
	Label       string
	Description string
	UpdatedAt   time.Time
}

// UpdateInput is the payload of PUT /api/roles/{role}.
type UpdateInput struct {
	Label       string `json:"label" validate:"required,max=60"`
	Description string `json:"description" validate:"max=500"`
}

var defaultDescriptions = map[authz.Role]string{
	authz.RoleViewer:     "Reads every storefront section. Cannot change anything.",
	authz.RoleAdmin:      "Edits catalog and site content. Reads accounts and roles.",
	authz.RoleSuperAdmin: "Full control, including operator accounts and role definitions.",
}

// DefaultLabel is the built-in display name of role.
func DefaultLabel(role authz.Role) string {
	name := strings.ReplaceAll(role.String(), "superadmin", "super admin")
	return cases.Title(language.English).String(name)
}

// DefaultDescription is the built-in description of role.
func DefaultDescription(role authz.Role) string {
	return defaultDescriptions[role]
}

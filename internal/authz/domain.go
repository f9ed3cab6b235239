package authz

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRole is returned when a role name is not one of the fixed roles.
var ErrUnknownRole = errors.New("authz: unknown role")

// ErrUnknownResource is returned when a resource name is not registered.
var ErrUnknownResource = errors.New("authz: unknown resource")

// ErrUnknownAction is returned when an action name is not read, write or delete.
var ErrUnknownAction = errors.New("authz: unknown action")

// Role is a fixed identity class determining baseline privilege.
type Role string

const (
	// RoleViewer may only ever read.
	RoleViewer Role = "viewer"
	// RoleAdmin may write non-sensitive resources.
	RoleAdmin Role = "admin"
	// RoleSuperAdmin is the only role allowed to mutate sensitive resources.
	RoleSuperAdmin Role = "superadmin"
)

// Roles lists every role from least to most privileged.
func Roles() []Role {
	return []Role{RoleViewer, RoleAdmin, RoleSuperAdmin}
}

// ParseRole maps a user supplied name onto a Role.
func ParseRole(name string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(name)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, name)
	}
	return role, nil
}

// Valid reports whether r is one of the fixed roles.
func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsPrivileged is true for roles that may hold write or delete grants.
func (r Role) IsPrivileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// IsTop is true only for the top-privileged role.
func (r Role) IsTop() bool {
	return r == RoleSuperAdmin
}

func (r Role) String() string {
	return string(r)
}

// Resource is an administrative domain subject to access control.
type Resource string

const (
	ResourceProducts    Resource = "products"
	ResourceCollections Resource = "collections"
	ResourceBanners     Resource = "banners"
	ResourceBrand       Resource = "brand"
	ResourceFAQs        Resource = "faqs"
	ResourceSettings    Resource = "settings"
	ResourceAccounts    Resource = "accounts"
	ResourceRoles       Resource = "roles"
)

// Resources lists every registered resource.
func Resources() []Resource {
	return []Resource{
		ResourceProducts,
		ResourceCollections,
		ResourceBanners,
		ResourceBrand,
		ResourceFAQs,
		ResourceSettings,
		ResourceAccounts,
		ResourceRoles,
	}
}

// ContentResources lists the resources stored as content documents.
func ContentResources() []Resource {
	return []Resource{
		ResourceProducts,
		ResourceCollections,
		ResourceBanners,
		ResourceBrand,
		ResourceFAQs,
		ResourceSettings,
	}
}

// ParseResource maps a name onto a registered Resource.
func ParseResource(name string) (Resource, error) {
	res := Resource(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Resources() {
		if res == known {
			return res, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownResource, name)
}

func (r Resource) String() string {
	return string(r)
}

// Action is a single operation kind. Actions are independent grants; holding
// one never implies another.
type Action uint8

const (
	ActionRead Action = 1 << iota
	ActionWrite
	ActionDelete
)

var actionNames = map[Action]string{
	ActionRead:   "read",
	ActionWrite:  "write",
	ActionDelete: "delete",
}

// Actions lists every action in a stable order.
func Actions() []Action {
	return []Action{ActionRead, ActionWrite, ActionDelete}
}

// ParseAction maps a name onto an Action.
func ParseAction(name string) (Action, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for a, n := range actionNames {
		if n == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

// Mutating reports whether the action changes state.
func (a Action) Mutating() bool {
	return a == ActionWrite || a == ActionDelete
}

func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return "unknown"
}

// ActionSet is a union of actions.
type ActionSet uint8

// NewActionSet builds a set from the given actions.
func NewActionSet(actions ...Action) ActionSet {
	var set ActionSet
	for _, a := range actions {
		set |= ActionSet(a)
	}
	return set
}

// AllActions holds read, write and delete.
const AllActions = ActionSet(ActionRead | ActionWrite | ActionDelete)

// Has reports whether a is a member of the set. Only single, known actions can
// be members.
func (s ActionSet) Has(a Action) bool {
	if _, ok := actionNames[a]; !ok {
		return false
	}
	return s&ActionSet(a) != 0
}

// Without returns the set minus the given actions.
func (s ActionSet) Without(actions ...Action) ActionSet {
	return s &^ NewActionSet(actions...)
}

// List returns the members in stable order.
func (s ActionSet) List() []Action {
	out := make([]Action, 0, 3)
	for _, a := range Actions() {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

// Names returns member names in stable order.
func (s ActionSet) Names() []string {
	list := s.List()
	names := make([]string, len(list))
	for i, a := range list {
		names[i] = a.String()
	}
	return names
}

func (s ActionSet) String() string {
	if s.Without(Actions()...) == s {
		return "none"
	}
	return strings.Join(s.Names(), "|")
}

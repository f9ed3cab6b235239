package authz

// Table maps role → resource → allowed actions and records which resources are
// sensitive. A Table is immutable once built and safe for concurrent use.
type Table struct {
	grants    map[Role]map[Resource]ActionSet
	sensitive map[Resource]bool
}

// Grants is the raw grant content used to build a Table.
type Grants map[Role]map[Resource]ActionSet

// NewTable copies the provided grants and sensitivity flags into a new Table.
// Grant content is taken as is; structural guarantees live in the Decider.
func NewTable(grants Grants, sensitive []Resource) *Table {
	t := &Table{
		grants:    make(map[Role]map[Resource]ActionSet, len(grants)),
		sensitive: make(map[Resource]bool, len(sensitive)),
	}
	for role, byResource := range grants {
		inner := make(map[Resource]ActionSet, len(byResource))
		for res, set := range byResource {
			inner[res] = set
		}
		t.grants[role] = inner
	}
	for _, res := range sensitive {
		t.sensitive[res] = true
	}
	return t
}

// DefaultSensitive lists the resources only the top role may mutate.
func DefaultSensitive() []Resource {
	return []Resource{ResourceAccounts, ResourceRoles}
}

// DefaultTable returns the storefront's built-in policy.
func DefaultTable() *Table {
	read := NewActionSet(ActionRead)
	grants := Grants{
		RoleViewer:     {},
		RoleAdmin:      {},
		RoleSuperAdmin: {},
	}
	for _, res := range ContentResources() {
		grants[RoleViewer][res] = read
		grants[RoleAdmin][res] = AllActions
		grants[RoleSuperAdmin][res] = AllActions
	}
	grants[RoleAdmin][ResourceAccounts] = read
	grants[RoleAdmin][ResourceRoles] = read
	grants[RoleSuperAdmin][ResourceAccounts] = AllActions
	grants[RoleSuperAdmin][ResourceRoles] = AllActions
	return NewTable(grants, DefaultSensitive())
}

// Grant returns the raw action set for (role, resource). Missing entries yield
// the empty set.
func (t *Table) Grant(role Role, res Resource) ActionSet {
	if t == nil {
		return 0
	}
	return t.grants[role][res]
}

// Sensitive reports whether res is restricted to the top role for mutations.
func (t *Table) Sensitive(res Resource) bool {
	if t == nil {
		return false
	}
	return t.sensitive[res]
}

// SensitiveResources lists the sensitive resources in registration order,
// followed by any unregistered ones the table marks sensitive.
func (t *Table) SensitiveResources() []Resource {
	if t == nil {
		return nil
	}
	out := make([]Resource, 0, len(t.sensitive))
	seen := make(map[Resource]struct{}, len(t.sensitive))
	for _, res := range Resources() {
		if t.sensitive[res] {
			out = append(out, res)
			seen[res] = struct{}{}
		}
	}
	for res := range t.sensitive {
		if _, ok := seen[res]; !ok {
			out = append(out, res)
		}
	}
	return out
}

// Snapshot returns a deep copy of the grant content.
func (t *Table) Snapshot() Grants {
	out := make(Grants)
	if t == nil {
		return out
	}
	for role, byResource := range t.grants {
		inner := make(map[Resource]ActionSet, len(byResource))
		for res, set := range byResource {
			inner[res] = set
		}
		out[role] = inner
	}
	return out
}

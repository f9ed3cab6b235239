package authz

// Decider answers authorization questions against a Table. It holds no mutable
// state; a single instance serves every request.
type Decider struct {
	table *Table
}

// NewDecider wraps table. A nil table denies everything.
func NewDecider(table *Table) *Decider {
	return &Decider{table: table}
}

// Table exposes the underlying policy table.
func (d *Decider) Table() *Table {
	if d == nil {
		return nil
	}
	return d.table
}

// Decide reports whether role may perform action on res.
func (d *Decider) Decide(role Role, res Resource, action Action) bool {
	if d == nil {
		return false
	}
	return Decide(d.table, role, res, action)
}

// Permitted returns the effective action set for (role, res) once the
// structural overrides are applied.
func (d *Decider) Permitted(role Role, res Resource) ActionSet {
	var set ActionSet
	for _, a := range Actions() {
		if d.Decide(role, res, a) {
			set |= ActionSet(a)
		}
	}
	return set
}

// Decide evaluates, in order:
//  1. the viewer role never writes or deletes;
//  2. the admin role never writes or deletes a sensitive resource;
//  3. otherwise the table grant for (role, res) must contain action.
//
// Rules 1 and 2 hold whatever the table says. Values outside the fixed role
// set are denied before any rule is consulted.
func Decide(t *Table, role Role, res Resource, action Action) bool {
	if !role.Valid() {
		return false
	}
	if role == RoleViewer && action.Mutating() {
		return false
	}
	if role == RoleAdmin && action.Mutating() && t.Sensitive(res) {
		return false
	}
	return t.Grant(role, res).Has(action)
}

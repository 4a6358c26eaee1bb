package rbac

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/odyssey-erp/odyssey-authz/internal/roles"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

type tupleKey struct {
	role   roles.ID
	module ModuleID
}

// overrideSet is an immutable override layer; writers replace it wholesale.
type overrideSet struct {
	flags   map[tupleKey]Flags
	version uint64
}

// Matrix answers capability checks from two layers: administrative overrides,
// consulted first, and the computed defaults, which never change after
// construction.
type Matrix struct {
	roles    *roles.Catalog
	modules  *ModuleCatalog
	defaults map[tupleKey]Flags

	mu        sync.Mutex
	overrides atomic.Pointer[overrideSet]
}

// NewMatrix builds the defaults layer for the full cross-product.
func NewMatrix(rc *roles.Catalog, mc *ModuleCatalog) *Matrix {
	defaults := make(map[tupleKey]Flags)
	for _, p := range BuildDefaults(rc, mc) {
		defaults[tupleKey{p.Role, p.Module}] = p.Flags
	}
	m := &Matrix{roles: rc, modules: mc, defaults: defaults}
	m.overrides.Store(&overrideSet{flags: map[tupleKey]Flags{}})
	return m
}

// Roles exposes the role catalog backing the matrix.
func (m *Matrix) Roles() *roles.Catalog { return m.roles }

// Modules exposes the module catalog backing the matrix.
func (m *Matrix) Modules() *ModuleCatalog { return m.modules }

// Version increments on every applied override batch.
func (m *Matrix) Version() uint64 { return m.overrides.Load().version }

// Effective returns the flags of a tuple. Roles outside the catalog have no
// access and top-level roles never read the override layer. A miss for a
// catalog role is a defect and returns MissingTupleError.
func (m *Matrix) Effective(role roles.ID, module ModuleID) (Flags, error) {
	if !m.roles.Has(role) {
		if !m.modules.Has(module) {
			return Flags{}, &MissingTupleError{Role: role, Module: module}
		}
		return Flags{}, nil
	}
	key := tupleKey{role, module}
	if !m.roles.IsTopLevel(role) {
		if f, ok := m.overrides.Load().flags[key]; ok {
			return f, nil
		}
	}
	f, ok := m.defaults[key]
	if !ok {
		return Flags{}, &MissingTupleError{Role: role, Module: module}
	}
	return f, nil
}

// Check reports whether role may perform c on module.
func (m *Matrix) Check(role roles.ID, module ModuleID, c Capability) (bool, error) {
	f, err := m.Effective(role, module)
	if err != nil {
		return false, err
	}
	return f.Allows(c)
}

// Snapshot returns the effective matrix in catalog order together with the
// override version it was read from.
func (m *Matrix) Snapshot() ([]Permission, uint64) {
	set := m.overrides.Load()
	out := make([]Permission, 0, len(m.defaults))
	for _, r := range m.roles.Roles() {
		for _, mod := range m.modules.Modules() {
			key := tupleKey{r.ID, mod.ID}
			f, ok := set.flags[key]
			if !ok || m.roles.IsTopLevel(r.ID) {
				f = m.defaults[key]
			}
			out = append(out, Permission{Role: r.ID, Module: mod.ID, Flags: f})
		}
	}
	return out, set.version
}

// Validate checks that every update references a known tuple of a role that
// is not top-level.
func (m *Matrix) Validate(updates []Permission) error {
	for _, u := range updates {
		if !m.roles.Has(u.Role) || !m.modules.Has(u.Module) {
			return &UnknownTupleError{Role: u.Role, Module: u.Module}
		}
		if m.roles.IsTopLevel(u.Role) {
			return &TopLevelTupleError{Role: u.Role, Module: u.Module}
		}
	}
	return nil
}

// BulkReplace overrides the listed tuples wholesale and leaves the others
// untouched. Any unknown tuple rejects the whole batch.
func (m *Matrix) BulkReplace(updates []Permission) (int, error) {
	if err := m.Validate(updates); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.overrides.Load()
	next := &overrideSet{flags: make(map[tupleKey]Flags, len(cur.flags)+len(updates)), version: cur.version + 1}
	for k, v := range cur.flags {
		next.flags[k] = v
	}
	for _, u := range updates {
		next.flags[tupleKey{u.Role, u.Module}] = u.Flags
	}
	m.overrides.Store(next)
	return len(updates), nil
}

// ResetOverrides swaps the whole override layer, e.g. after loading it from
// storage. Tuples outside the catalogs and tuples of top-level roles are
// skipped and returned.
func (m *Matrix) ResetOverrides(perms []Permission) []Permission {
	m.mu.Lock()
	defer m.mu.Unlock()

	var skipped []Permission
	next := &overrideSet{flags: make(map[tupleKey]Flags, len(perms)), version: m.overrides.Load().version + 1}
	for _, p := range perms {
		if !m.roles.Has(p.Role) || !m.modules.Has(p.Module) || m.roles.IsTopLevel(p.Role) {
			skipped = append(skipped, p)
			continue
		}
		next.flags[tupleKey{p.Role, p.Module}] = p.Flags
	}
	m.overrides.Store(next)
	return skipped
}

// MustComplete verifies that every catalog tuple resolves.
func (m *Matrix) MustComplete() error {
	for _, r := range m.roles.Roles() {
		for _, mod := range m.modules.Modules() {
			if _, ok := m.defaults[tupleKey{r.ID, mod.ID}]; !ok {
				return fmt.Errorf("%w: (%s, %s)", shared.ErrInvariant, r.ID, mod.ID)
			}
		}
	}
	return nil
}

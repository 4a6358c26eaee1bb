// Package sections controls which navigation sections each role sees.
package sections

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-authz/internal/roles"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// ID identifies a navigation section.
type ID string

const (
	Dashboard      ID = "dashboard"
	HR             ID = "hr"
	Finance        ID = "finance"
	Sales          ID = "sales"
	Marketing      ID = "marketing"
	Operations     ID = "operations"
	IT             ID = "it"
	Legal          ID = "legal"
	Property       ID = "property"
	Requests       ID = "requests"
	Reports        ID = "reports"
	Tools          ID = "tools"
	Settings       ID = "settings"
	Administration ID = "administration"
)

// All lists every section in navigation order.
func All() []ID {
	return []ID{Dashboard, HR, Finance, Sales, Marketing, Operations, IT, Legal, Property, Requests, Reports, Tools, Settings, Administration}
}

var known = func() map[ID]struct{} {
	m := make(map[ID]struct{})
	for _, s := range All() {
		m[s] = struct{}{}
	}
	return m
}()

// IsKnown reports whether id is a catalog section.
func IsKnown(id ID) bool {
	_, ok := known[id]
	return ok
}

// DefaultFor is the visibility of a role with no explicit entry.
func DefaultFor(r roles.Role) []ID {
	set := map[ID]struct{}{Dashboard: {}, Tools: {}, Settings: {}}
	if dept := ID(r.Department); IsKnown(dept) {
		set[dept] = struct{}{}
	}
	if r.IsDepartmentHead() {
		set[Requests] = struct{}{}
		set[Reports] = struct{}{}
	}
	return ordered(set)
}

// normalize deduplicates and orders ids, rejecting unknown ones.
func normalize(ids []ID) ([]ID, error) {
	set := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		if !IsKnown(id) {
			return nil, fmt.Errorf("%w: unknown section %q", shared.ErrValidation, id)
		}
		set[id] = struct{}{}
	}
	return ordered(set), nil
}

func ordered(set map[ID]struct{}) []ID {
	out := make([]ID, 0, len(set))
	for _, id := range All() {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// FixedRoleError rejects edits to top-level roles, whose visibility is fixed.
type FixedRoleError struct {
	Role roles.ID
}

func (e *FixedRoleError) Error() string {
	return fmt.Sprintf("sections: visibility of top-level role %s is fixed", e.Role)
}

func (e *FixedRoleError) Unwrap() error { return shared.ErrForbidden }

// ProblemCode names the failure for API clients.
func (e *FixedRoleError) ProblemCode() string { return "fixed_role" }

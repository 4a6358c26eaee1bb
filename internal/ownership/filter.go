// Package ownership narrows record sets to what a caller may see.
package ownership

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-authz/internal/roles"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// Ownable is implemented by any record carrying creator stamps. An empty
// creator marks legacy/shared data.
type Ownable interface {
	Owner() (createdBy string, createdByDept roles.Department)
}

// Filter is a pure function of (catalog, identity, records).
type Filter struct {
	catalog *roles.Catalog
}

// NewFilter builds a Filter over the role catalog.
func NewFilter(catalog *roles.Catalog) Filter {
	return Filter{catalog: catalog}
}

// Visible decides one record. Top-level identities bypass the rules below.
func (f Filter) Visible(id shared.Identity, rec Ownable) bool {
	if f.catalog.IsTopLevel(roles.ID(id.Role)) {
		return true
	}
	createdBy, createdByDept := rec.Owner()
	if createdBy == "" {
		return true
	}
	if id.UserID != "" && createdBy == id.UserID {
		return true
	}
	if f.catalog.IsDepartmentHead(roles.ID(id.Role)) && id.Department != "" &&
		createdByDept == roles.Department(id.Department) {
		return true
	}
	return false
}

// Apply returns the subset of records visible to id, keeping order.
func Apply[T Ownable](f Filter, id shared.Identity, records []T) []T {
	if f.catalog.IsTopLevel(roles.ID(id.Role)) {
		out := make([]T, len(records))
		copy(out, records)
		return out
	}
	out := make([]T, 0, len(records))
	for _, rec := range records {
		if f.Visible(id, rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Record is an arbitrary business record as received at the boundary. Only
// the createdBy and createdByDept members are interpreted.
type Record map[string]any

// Owner implements Ownable. Missing or null stamps are absent; any other
// value is compared in its printed form so malformed stamps never read as
// legacy data.
func (r Record) Owner() (string, roles.Department) {
	return stamp(r["createdBy"]), roles.Department(stamp(r["createdByDept"]))
}

func stamp(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

package roles

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Catalog is the fixed set of roles known to a deployment.
type Catalog struct {
	roles []Role
	byID  map[ID]Role
}

var titler = cases.Title(language.English)

// NewCatalog validates and indexes roles. Roles without a label get one
// derived from their id.
func NewCatalog(list ...Role) (*Catalog, error) {
	c := &Catalog{roles: make([]Role, 0, len(list)), byID: make(map[ID]Role, len(list))}
	for _, r := range list {
		if strings.TrimSpace(string(r.ID)) == "" {
			return nil, fmt.Errorf("roles: empty role id")
		}
		if _, dup := c.byID[r.ID]; dup {
			return nil, fmt.Errorf("roles: duplicate role %q", r.ID)
		}
		switch r.Kind {
		case KindStaff, KindAssistant, KindManager, KindTopLevel:
		default:
			return nil, fmt.Errorf("roles: role %q has invalid kind %q", r.ID, r.Kind)
		}
		if r.Department == "" || r.Department == DeptAll {
			return nil, fmt.Errorf("roles: role %q has invalid department %q", r.ID, r.Department)
		}
		if r.Label == "" {
			r.Label = Label(string(r.ID))
		}
		c.roles = append(c.roles, r)
		c.byID[r.ID] = r
	}
	sort.SliceStable(c.roles, func(i, j int) bool {
		if c.roles[i].Level != c.roles[j].Level {
			return c.roles[i].Level < c.roles[j].Level
		}
		return c.roles[i].ID < c.roles[j].ID
	})
	return c, nil
}

// Label turns an identifier such as "fixed_assets" into "Fixed Assets".
func Label(id string) string {
	return titler.String(strings.ReplaceAll(id, "_", " "))
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	list := []Role{
		{ID: RoleAdmin, Kind: KindTopLevel, Department: DeptSystem, Label: "System Administrator", Level: 1},
		{ID: RoleCEO, Kind: KindTopLevel, Department: DeptSystem, Label: "CEO", Level: 1},
		{ID: RoleGeneralManager, Kind: KindTopLevel, Department: DeptSystem, Level: 2},
		{ID: RoleEmployee, Kind: KindStaff, Department: DeptNone, Level: 6},
	}
	for _, d := range Departments() {
		name := strings.ToUpper(string(d))
		if len(name) > 2 {
			name = Label(string(d))
		}
		list = append(list,
			Role{ID: ManagerOf(d), Kind: KindManager, Department: d, Label: name + " Manager", Level: 3},
			Role{ID: AssistantOf(d), Kind: KindAssistant, Department: d, Label: name + " Assistant", Level: 4},
			Role{ID: StaffOf(d), Kind: KindStaff, Department: d, Label: name + " Staff", Level: 5},
		)
	}
	c, err := NewCatalog(list...)
	if err != nil {
		panic(err)
	}
	return c
})

// Default returns the deployment role catalog.
func Default() *Catalog {
	return defaultCatalog()
}

// Roles returns the catalog entries ordered by level then id.
func (c *Catalog) Roles() []Role {
	out := make([]Role, len(c.roles))
	copy(out, c.roles)
	return out
}

// Lookup finds a role by id.
func (c *Catalog) Lookup(id ID) (Role, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// Has reports whether the role exists.
func (c *Catalog) Has(id ID) bool {
	_, ok := c.byID[id]
	return ok
}

// DepartmentOf maps a role to its department. Unknown roles map to DeptNone.
func (c *Catalog) DepartmentOf(id ID) Department {
	if r, ok := c.byID[id]; ok {
		return r.Department
	}
	return DeptNone
}

// KindOf returns the role kind, KindUnknown for roles outside the catalog.
func (c *Catalog) KindOf(id ID) Kind {
	return c.byID[id].Kind
}

// IsTopLevel is the single predicate for system-wide roles. Empty or unknown
// ids are never top-level.
func (c *Catalog) IsTopLevel(id ID) bool {
	r, ok := c.byID[id]
	return ok && r.Kind == KindTopLevel
}

// IsDepartmentHead reports whether the role is a manager or assistant.
func (c *Catalog) IsDepartmentHead(id ID) bool {
	r, ok := c.byID[id]
	return ok && r.IsDepartmentHead()
}

// Filter returns the ids of roles matching pred, in catalog order.
func (c *Catalog) Filter(pred func(Role) bool) []ID {
	var ids []ID
	for _, r := range c.roles {
		if pred(r) {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

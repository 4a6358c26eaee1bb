package rbac

import "github.com/odyssey-erp/odyssey-authz/internal/roles"

// BuildDefaults computes one Permission per (role, module) pair.
func BuildDefaults(rc *roles.Catalog, mc *ModuleCatalog) []Permission {
	roleList := rc.Roles()
	moduleList := mc.Modules()
	out := make([]Permission, 0, len(roleList)*len(moduleList))
	for _, r := range roleList {
		for _, m := range moduleList {
			out = append(out, Permission{Role: r.ID, Module: m.ID, Flags: DefaultFlags(r, m)})
		}
	}
	return out
}

// DefaultFlags derives the flags of one tuple. The first matching rule wins.
func DefaultFlags(r roles.Role, m Module) Flags {
	ownDept := m.Department == r.Department
	inScope := ownDept || m.Department == roles.DeptAll

	switch {
	case r.Kind == roles.KindTopLevel:
		return AllFlags()
	case r.Kind == roles.KindManager && inScope:
		return Flags{CanView: true, CanCreate: true, CanEdit: true, CanDelete: ownDept, CanExport: true}
	case r.Kind == roles.KindAssistant && inScope:
		return Flags{CanView: true, CanCreate: true, CanEdit: true, CanExport: true}
	case ownDept:
		return Flags{CanView: true, CanCreate: true, CanEdit: true}
	case m.Category == CategoryDashboard:
		return Flags{CanView: true}
	case m.Category == CategoryTools && m.Department != roles.DeptSystem:
		return Flags{CanView: true}
	}
	return Flags{}
}

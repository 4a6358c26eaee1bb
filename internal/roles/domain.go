// Package roles holds the fixed role catalog and the department mapping used
// by default permissions, section visibility, ownership and approvals.
package roles

// ID identifies a role, e.g. "hr_manager".
type ID string

// Department is the organisational unit a role, module or record belongs to.
type Department string

// Operational departments plus the pseudo departments used by the catalogs.
const (
	DeptHR         Department = "hr"
	DeptFinance    Department = "finance"
	DeptSales      Department = "sales"
	DeptMarketing  Department = "marketing"
	DeptOperations Department = "operations"
	DeptIT         Department = "it"
	DeptLegal      Department = "legal"
	DeptProperty   Department = "property"

	DeptSystem Department = "system"
	DeptNone   Department = "none"
	// DeptAll marks department-agnostic modules; roles never carry it.
	DeptAll Department = "all"
)

// Kind classifies a role once at catalog build time.
type Kind string

const (
	KindUnknown   Kind = ""
	KindStaff     Kind = "staff"
	KindAssistant Kind = "assistant"
	KindManager   Kind = "manager"
	KindTopLevel  Kind = "top_level"
)

// Role is an immutable catalog entry.
type Role struct {
	ID         ID         `json:"id"`
	Kind       Kind       `json:"kind"`
	Department Department `json:"department"`
	Label      string     `json:"label"`
	// Level orders roles for display only.
	Level int `json:"level"`
}

// IsDepartmentHead reports whether the role manages or assists a department.
func (r Role) IsDepartmentHead() bool {
	return r.Kind == KindManager || r.Kind == KindAssistant
}

// Well-known role identifiers.
const (
	RoleAdmin          ID = "admin"
	RoleCEO            ID = "ceo"
	RoleGeneralManager ID = "general_manager"
	RoleEmployee       ID = "employee"
)

// Departments lists the operational departments in display order.
func Departments() []Department {
	return []Department{DeptHR, DeptFinance, DeptSales, DeptMarketing, DeptOperations, DeptIT, DeptLegal, DeptProperty}
}

// ManagerOf returns the manager role id for a department.
func ManagerOf(d Department) ID { return ID(string(d) + "_manager") }

// AssistantOf returns the assistant role id for a department.
func AssistantOf(d Department) ID { return ID(string(d) + "_assistant") }

// StaffOf returns the plain staff role id for a department.
func StaffOf(d Department) ID { return ID(d) }

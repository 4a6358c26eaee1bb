// Package rbac implements the role→module permission matrix.
package rbac

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-authz/internal/roles"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// ModuleID identifies a functional area, e.g. "fixed_assets".
type ModuleID string

// Category groups modules for navigation.
type Category string

const (
	CategoryDashboard  Category = "dashboard"
	CategoryPeople     Category = "people"
	CategoryFinance    Category = "finance"
	CategoryRequests   Category = "requests"
	CategorySales      Category = "sales"
	CategoryMarketing  Category = "marketing"
	CategoryOperations Category = "operations"
	CategoryIT         Category = "it"
	CategoryLegal      Category = "legal"
	CategoryProperty   Category = "property"
	CategoryTools      Category = "tools"
	CategorySystem     Category = "system"
)

// Module is a catalog entry subject to capability checks.
type Module struct {
	ID         ModuleID         `json:"id"`
	Name       string           `json:"name"`
	Category   Category         `json:"category"`
	Department roles.Department `json:"department"`
}

// Capability is one of the five per-module flags.
type Capability string

const (
	CapView   Capability = "view"
	CapCreate Capability = "create"
	CapEdit   Capability = "edit"
	CapDelete Capability = "delete"
	CapExport Capability = "export"
)

// Capabilities lists all capabilities in display order.
func Capabilities() []Capability {
	return []Capability{CapView, CapCreate, CapEdit, CapDelete, CapExport}
}

// Flags holds the capability booleans of one (role, module) tuple.
type Flags struct {
	CanView   bool `json:"canView"`
	CanCreate bool `json:"canCreate"`
	CanEdit   bool `json:"canEdit"`
	CanDelete bool `json:"canDelete"`
	CanExport bool `json:"canExport"`
}

// AllFlags grants every capability.
func AllFlags() Flags {
	return Flags{CanView: true, CanCreate: true, CanEdit: true, CanDelete: true, CanExport: true}
}

// Allows reports whether the flags grant c.
func (f Flags) Allows(c Capability) (bool, error) {
	switch c {
	case CapView:
		return f.CanView, nil
	case CapCreate:
		return f.CanCreate, nil
	case CapEdit:
		return f.CanEdit, nil
	case CapDelete:
		return f.CanDelete, nil
	case CapExport:
		return f.CanExport, nil
	}
	return false, fmt.Errorf("%w: unknown capability %q", shared.ErrValidation, c)
}

// Permission is one row of the matrix.
type Permission struct {
	Role   roles.ID `json:"role"`
	Module ModuleID `json:"module"`
	Flags
}

// CapabilityError reports a denied capability check.
type CapabilityError struct {
	Role       roles.ID
	Module     ModuleID
	Capability Capability
}

func (e *CapabilityError) Error() string {
	role := e.Role
	if role == "" {
		role = "(none)"
	}
	return fmt.Sprintf("rbac: role %s lacks %s on %s", role, e.Capability, e.Module)
}

func (e *CapabilityError) Unwrap() error { return shared.ErrForbidden }

// ProblemCode names the failure for API clients.
func (e *CapabilityError) ProblemCode() string { return "insufficient_capability" }

// UnknownTupleError reports an update that references a (role, module) pair
// outside the catalogs.
type UnknownTupleError struct {
	Role   roles.ID
	Module ModuleID
}

func (e *UnknownTupleError) Error() string {
	return fmt.Sprintf("rbac: unknown permission tuple (%s, %s)", e.Role, e.Module)
}

func (e *UnknownTupleError) Unwrap() error { return shared.ErrValidation }

// TopLevelTupleError rejects overrides for top-level roles, whose access is
// unrestricted and fixed.
type TopLevelTupleError struct {
	Role   roles.ID
	Module ModuleID
}

func (e *TopLevelTupleError) Error() string {
	return fmt.Sprintf("rbac: permissions of top-level role %s are fixed (module %s)", e.Role, e.Module)
}

func (e *TopLevelTupleError) Unwrap() error { return shared.ErrValidation }

// ProblemCode names the failure for API clients.
func (e *TopLevelTupleError) ProblemCode() string { return "top_level_role" }

// MissingTupleError reports a lookup miss in a matrix that must be complete.
type MissingTupleError struct {
	Role   roles.ID
	Module ModuleID
}

func (e *MissingTupleError) Error() string {
	return fmt.Sprintf("rbac: matrix has no tuple for (%s, %s)", e.Role, e.Module)
}

func (e *MissingTupleError) Unwrap() error { return shared.ErrInvariant }

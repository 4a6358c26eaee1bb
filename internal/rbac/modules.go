package rbac

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-authz/internal/roles"
)

// Module identifiers referenced from code.
const (
	ModuleDashboard       ModuleID = "dashboard"
	ModuleEmployees       ModuleID = "employees"
	ModulePayroll         ModuleID = "payroll"
	ModuleLeave           ModuleID = "leave"
	ModuleRecruitment     ModuleID = "recruitment"
	ModuleInvoices        ModuleID = "invoices"
	ModuleFixedAssets     ModuleID = "fixed_assets"
	ModuleLoans           ModuleID = "loans"
	ModuleBudgets         ModuleID = "budgets"
	ModuleExpenseRequests ModuleID = "expense_requests"
	ModuleApprovals       ModuleID = "approvals"
	ModuleLeads           ModuleID = "leads"
	ModuleCustomers       ModuleID = "customers"
	ModuleQuotations      ModuleID = "quotations"
	ModuleCampaigns       ModuleID = "campaigns"
	ModuleInventory       ModuleID = "inventory"
	ModulePurchaseOrders  ModuleID = "purchase_orders"
	ModuleTickets         ModuleID = "tickets"
	ModuleITAssets        ModuleID = "it_assets"
	ModuleContracts       ModuleID = "contracts"
	ModuleLeases          ModuleID = "leases"
	ModuleCalendar        ModuleID = "calendar"
	ModuleChat            ModuleID = "chat"
	ModuleKanban          ModuleID = "kanban"
	ModuleReportBuilder   ModuleID = "report_builder"
	ModuleUsers           ModuleID = "users"
	ModulePermissions     ModuleID = "permissions"
	ModuleSectionAccess   ModuleID = "section_access"
	ModuleAuditLog        ModuleID = "audit_log"
	ModuleSettings        ModuleID = "settings"
)

// ModuleCatalog is the fixed set of modules.
type ModuleCatalog struct {
	modules []Module
	byID    map[ModuleID]Module
}

// NewModuleCatalog validates and indexes modules, keeping declaration order.
func NewModuleCatalog(list ...Module) (*ModuleCatalog, error) {
	c := &ModuleCatalog{modules: make([]Module, 0, len(list)), byID: make(map[ModuleID]Module, len(list))}
	for _, m := range list {
		if m.ID == "" {
			return nil, fmt.Errorf("rbac: empty module id")
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("rbac: duplicate module %q", m.ID)
		}
		if m.Department == "" {
			return nil, fmt.Errorf("rbac: module %q has no department", m.ID)
		}
		if m.Name == "" {
			m.Name = roles.Label(string(m.ID))
		}
		c.modules = append(c.modules, m)
		c.byID[m.ID] = m
	}
	return c, nil
}

// DefaultModules returns the deployment module catalog.
func DefaultModules() *ModuleCatalog {
	c, err := NewModuleCatalog(
		Module{ID: ModuleDashboard, Category: CategoryDashboard, Department: roles.DeptAll},

		Module{ID: ModuleEmployees, Category: CategoryPeople, Department: roles.DeptHR},
		Module{ID: ModulePayroll, Category: CategoryPeople, Department: roles.DeptHR},
		Module{ID: ModuleLeave, Category: CategoryPeople, Department: roles.DeptHR},
		Module{ID: ModuleRecruitment, Category: CategoryPeople, Department: roles.DeptHR},

		Module{ID: ModuleInvoices, Category: CategoryFinance, Department: roles.DeptFinance},
		Module{ID: ModuleFixedAssets, Category: CategoryFinance, Department: roles.DeptFinance},
		Module{ID: ModuleLoans, Category: CategoryFinance, Department: roles.DeptFinance},
		Module{ID: ModuleBudgets, Category: CategoryFinance, Department: roles.DeptFinance},

		Module{ID: ModuleExpenseRequests, Category: CategoryRequests, Department: roles.DeptAll},
		Module{ID: ModuleApprovals, Category: CategoryRequests, Department: roles.DeptAll},

		Module{ID: ModuleLeads, Category: CategorySales, Department: roles.DeptSales},
		Module{ID: ModuleCustomers, Category: CategorySales, Department: roles.DeptSales},
		Module{ID: ModuleQuotations, Category: CategorySales, Department: roles.DeptSales},
		Module{ID: ModuleCampaigns, Category: CategoryMarketing, Department: roles.DeptMarketing},
		Module{ID: ModuleInventory, Category: CategoryOperations, Department: roles.DeptOperations},
		Module{ID: ModulePurchaseOrders, Category: CategoryOperations, Department: roles.DeptOperations},
		Module{ID: ModuleTickets, Category: CategoryIT, Department: roles.DeptIT},
		Module{ID: ModuleITAssets, Name: "IT Assets", Category: CategoryIT, Department: roles.DeptIT},
		Module{ID: ModuleContracts, Category: CategoryLegal, Department: roles.DeptLegal},
		Module{ID: ModuleLeases, Category: CategoryProperty, Department: roles.DeptProperty},

		Module{ID: ModuleCalendar, Category: CategoryTools, Department: roles.DeptAll},
		Module{ID: ModuleChat, Category: CategoryTools, Department: roles.DeptAll},
		Module{ID: ModuleKanban, Category: CategoryTools, Department: roles.DeptAll},
		Module{ID: ModuleReportBuilder, Category: CategoryTools, Department: roles.DeptAll},

		Module{ID: ModuleUsers, Category: CategorySystem, Department: roles.DeptSystem},
		Module{ID: ModulePermissions, Category: CategorySystem, Department: roles.DeptSystem},
		Module{ID: ModuleSectionAccess, Category: CategorySystem, Department: roles.DeptSystem},
		Module{ID: ModuleAuditLog, Category: CategorySystem, Department: roles.DeptSystem},
		Module{ID: ModuleSettings, Category: CategorySystem, Department: roles.DeptSystem},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// Modules returns the catalog entries in declaration order.
func (c *ModuleCatalog) Modules() []Module {
	out := make([]Module, len(c.modules))
	copy(out, c.modules)
	return out
}

// Lookup finds a module by id.
func (c *ModuleCatalog) Lookup(id ModuleID) (Module, bool) {
	m, ok := c.byID[id]
	return m, ok
}

// Has reports whether the module exists.
func (c *ModuleCatalog) Has(id ModuleID) bool {
	_, ok := c.byID[id]
	return ok
}

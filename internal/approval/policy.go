package approval

import (
	"github.com/odyssey-erp/odyssey-authz/internal/roles"
)

// Policy maps stages to eligible approver roles. It is computed once from the
// role catalog.
type Policy struct {
	eligible map[Stage]map[roles.ID]struct{}
	order    map[Stage][]roles.ID
	all      map[roles.ID]struct{}
	allOrder []roles.ID
}

// NewPolicy derives stage eligibility from catalog.
//
// dept_manager accepts a manager of any department; cross-department approval
// is accepted as observed in production.
func NewPolicy(catalog *roles.Catalog) *Policy {
	topLevel := func(r roles.Role) bool { return r.Kind == roles.KindTopLevel }
	ofDept := func(d roles.Department) func(roles.Role) bool {
		return func(r roles.Role) bool { return topLevel(r) || r.Department == d }
	}
	rules := map[Stage]func(roles.Role) bool{
		StageDeptManager:    func(r roles.Role) bool { return topLevel(r) || r.Kind == roles.KindManager },
		StageHRManager:      ofDept(roles.DeptHR),
		StageFinanceManager: ofDept(roles.DeptFinance),
		StageCEO:            topLevel,
		StageGeneralManager: topLevel,
	}

	p := &Policy{
		eligible: make(map[Stage]map[roles.ID]struct{}, len(rules)),
		order:    make(map[Stage][]roles.ID, len(rules)),
		all:      make(map[roles.ID]struct{}),
	}
	for stage, rule := range rules {
		ids := catalog.Filter(rule)
		set := make(map[roles.ID]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
			p.all[id] = struct{}{}
		}
		p.eligible[stage] = set
		p.order[stage] = ids
	}
	for _, r := range catalog.Roles() {
		if _, ok := p.all[r.ID]; ok {
			p.allOrder = append(p.allOrder, r.ID)
		}
	}
	return p
}

// Knows reports whether stage has an eligibility rule.
func (p *Policy) Knows(stage Stage) bool {
	_, ok := p.eligible[stage]
	return ok
}

// Eligible reports whether role may approve at stage.
func (p *Policy) Eligible(stage Stage, role roles.ID) bool {
	_, ok := p.eligible[stage][role]
	return ok
}

// EligibleRoles lists the roles accepted at stage in catalog order.
func (p *Policy) EligibleRoles(stage Stage) []roles.ID {
	return append([]roles.ID(nil), p.order[stage]...)
}

// IsApprover reports whether role is eligible at any stage.
func (p *Policy) IsApprover(role roles.ID) bool {
	_, ok := p.all[role]
	return ok
}

// Approvers lists the union of all per-stage eligible roles.
func (p *Policy) Approvers() []roles.ID {
	return append([]roles.ID(nil), p.allOrder...)
}

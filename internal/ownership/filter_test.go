package ownership

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-authz/internal/roles"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

type invoice struct {
	Number    string
	CreatedBy string
	Dept      roles.Department
}

func (i invoice) Owner() (string, roles.Department) { return i.CreatedBy, i.Dept }

func numbers(list []invoice) []string {
	out := make([]string, 0, len(list))
	for _, inv := range list {
		out = append(out, inv.Number)
	}
	return out
}

var fixtures = []invoice{
	{Number: "legacy"},
	{Number: "u9-hr", CreatedBy: "u9", Dept: roles.DeptHR},
	{Number: "u9-finance", CreatedBy: "u9", Dept: roles.DeptFinance},
	{Number: "u7-finance", CreatedBy: "u7", Dept: roles.DeptFinance},
}

func TestApplyRules(t *testing.T) {
	f := NewFilter(roles.Default())
	cases := []struct {
		name string
		id   shared.Identity
		want []string
	}{
		{"plain staff sees own and legacy", shared.Identity{UserID: "u7", Role: "hr", Department: "hr"}, []string{"legacy", "u7-finance"}},
		{"department manager sees department records", shared.Identity{UserID: "u7", Role: "hr_manager", Department: "hr"}, []string{"legacy", "u9-hr", "u7-finance"}},
		{"department assistant sees department records", shared.Identity{UserID: "u1", Role: "finance_assistant", Department: "finance"}, []string{"legacy", "u9-finance", "u7-finance"}},
		{"top-level sees everything", shared.Identity{UserID: "u1", Role: "ceo", Department: "system"}, []string{"legacy", "u9-hr", "u9-finance", "u7-finance"}},
		{"unknown role sees legacy only", shared.Identity{UserID: "u2", Role: "intern", Department: "hr"}, []string{"legacy"}},
		{"empty identity sees legacy only", shared.Identity{}, []string{"legacy"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, numbers(Apply(f, tc.id, fixtures)))
		})
	}
}

func TestOwnRecordVisibleRegardlessOfDepartment(t *testing.T) {
	f := NewFilter(roles.Default())
	for _, dept := range append(roles.Departments(), roles.DeptNone, "") {
		rec := invoice{Number: "mine", CreatedBy: "u5", Dept: dept}
		require.True(t, f.Visible(shared.Identity{UserID: "u5", Role: "employee"}, rec), "dept %q", dept)
	}
}

func TestLegacyRecordVisibleToEveryone(t *testing.T) {
	f := NewFilter(roles.Default())
	rec := invoice{Number: "legacy"}
	ids := []shared.Identity{{}, {Role: "unknown"}, {UserID: "x", Role: "sales"}, {UserID: "y", Role: "admin"}}
	for _, id := range ids {
		require.True(t, f.Visible(id, rec))
	}
}

func TestEmptyUserIDNeverMatchesOwner(t *testing.T) {
	f := NewFilter(roles.Default())
	require.False(t, f.Visible(shared.Identity{Role: "sales"}, invoice{CreatedBy: "u1", Dept: roles.DeptSales}))
}

func TestManagerWithoutDepartmentTagDoesNotMatchEmptyDept(t *testing.T) {
	f := NewFilter(roles.Default())
	require.False(t, f.Visible(shared.Identity{UserID: "m", Role: "sales_manager"}, invoice{CreatedBy: "u1", Dept: ""}))
}

func TestRecordOwner(t *testing.T) {
	rec := Record{"createdBy": "u9", "createdByDept": "hr", "amount": 12.5}
	by, dept := rec.Owner()
	require.Equal(t, "u9", by)
	require.Equal(t, roles.DeptHR, dept)

	by, _ = Record{"createdBy": nil}.Owner()
	require.Empty(t, by)

	by, dept = Record{"createdBy": float64(42), "createdByDept": true}.Owner()
	require.Equal(t, "42", by)
	require.Equal(t, roles.Department("true"), dept)
}

func TestMalformedStampIsNotLegacy(t *testing.T) {
	f := NewFilter(roles.Default())
	records := []Record{
		{"id": "numeric", "createdBy": float64(42), "createdByDept": "finance"},
		{"id": "object", "createdBy": map[string]any{"id": "u9"}},
		{"id": "null", "createdBy": nil},
	}

	got := Apply(f, shared.Identity{UserID: "u7", Role: "employee"}, records)
	require.Len(t, got, 1)
	require.Equal(t, "null", got[0]["id"])

	got = Apply(f, shared.Identity{UserID: "42", Role: "employee"}, records)
	require.Len(t, got, 2)
	require.Equal(t, "numeric", got[0]["id"])
}

func TestPlainStaffScenario(t *testing.T) {
	f := NewFilter(roles.Default())
	id := shared.Identity{UserID: "u7", Role: "hr", Department: "hr"}
	records := []Record{
		{"id": "a", "createdBy": "u9", "createdByDept": "hr"},
		{"id": "b", "createdBy": "u9", "createdByDept": "finance"},
		{"id": "c"},
	}
	got := Apply(f, id, records)
	require.Len(t, got, 1)
	require.Equal(t, "c", got[0]["id"])
}

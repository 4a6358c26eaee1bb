package approval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-authz/internal/gate"
	"github.com/odyssey-erp/odyssey-authz/internal/rbac"
	"github.com/odyssey-erp/odyssey-authz/internal/roles"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

var (
	salesManager = shared.Identity{UserID: "u3", Role: "sales_manager", Department: "sales", Name: "Sari"}
	salesStaff   = shared.Identity{UserID: "u5", Role: "sales", Department: "sales", Name: "Sandi"}
	hrManager    = shared.Identity{UserID: "u6", Role: "hr_manager", Department: "hr", Name: "Hana"}
	financeStaff = shared.Identity{UserID: "u4", Role: "finance", Department: "finance", Name: "Budi"}
	ceo          = shared.Identity{UserID: "u1", Role: "ceo", Department: "system", Name: "Dewi"}
	admin        = shared.Identity{UserID: "u0", Role: "admin", Department: "system", Name: "Admin"}
)

type memoryHistory struct {
	mu   sync.Mutex
	logs []shared.ApprovalLog
}

func (h *memoryHistory) Record(ctx context.Context, log shared.ApprovalLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	log.ID = int64(len(h.logs) + 1)
	h.logs = append(h.logs, log)
	return nil
}

func (h *memoryHistory) List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []shared.ApprovalLog
	for _, l := range h.logs {
		if l.Module == module && l.RefID == ref {
			out = append(out, l)
		}
	}
	return out, nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[module+"/"+key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+"/"+key] = struct{}{}
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, module+"/"+key)
	return nil
}

type recordingNotifier struct {
	mu          sync.Mutex
	transitions []Transition
}

func (n *recordingNotifier) NotifyTransition(ctx context.Context, t Transition) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transitions = append(n.transitions, t)
	return nil
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) ObserveTransition(kind, action, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[kind+"/"+action+"/"+outcome]++
}

type fixture struct {
	svc      *Service
	store    *MemoryStore
	history  *memoryHistory
	notifier *recordingNotifier
	metrics  *countingMetrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureWith(t, NewMemoryStore(), nil)
}

func newFixtureWith(t *testing.T, store *MemoryStore, locker Locker) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	matrix := rbac.NewMatrix(roles.Default(), rbac.DefaultModules())
	g := gate.New(matrix, logger, gate.Options{PanicOnInvariant: true})
	f := fixture{
		store:    store,
		history:  &memoryHistory{},
		notifier: &recordingNotifier{},
		metrics:  &countingMetrics{counts: map[string]int{}},
	}
	f.svc = NewService(store, g, f.history, &memoryIdempotency{keys: map[string]struct{}{}}, logger, ServiceConfig{
		Locker:   locker,
		Notifier: f.notifier,
		Metrics:  f.metrics,
	})
	return f
}

func (f fixture) createExpense(t *testing.T, submitter shared.Identity) Request {
	t.Helper()
	req, err := f.svc.CreateApprovable(context.Background(), submitter, Draft{Kind: KindExpense, Title: "Client dinner", Amount: 750000}, "")
	require.NoError(t, err)
	return req
}

func TestCreateApprovableStampsOwnerAndNumber(t *testing.T) {
	f := newFixture(t)
	first := f.createExpense(t, salesManager)
	second := f.createExpense(t, salesManager)

	require.Equal(t, "EXP-000001", first.Number)
	require.Equal(t, "EXP-000002", second.Number)
	require.Equal(t, "u3", first.CreatedBy)
	require.Equal(t, roles.DeptSales, first.CreatedByDept)
	require.Equal(t, PendingStatus(StageDeptManager), first.Status)
	require.Equal(t, []Stage{StageDeptManager, StageFinanceManager, StageCEO}, first.Stages)

	logs, err := f.history.List(context.Background(), string(rbac.ModuleExpenseRequests), first.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, shared.ApprovalSubmit, logs[0].Action)
}

func TestCreateApprovableRequiresCreateCapability(t *testing.T) {
	f := newFixture(t)
	draft := Draft{Kind: KindExpense, Title: "Taxi", Amount: 50000}

	_, err := f.svc.CreateApprovable(context.Background(), salesStaff, draft, "")
	require.ErrorIs(t, err, shared.ErrForbidden)
	var capErr *rbac.CapabilityError
	require.True(t, errors.As(err, &capErr))

	_, err = f.svc.CreateApprovable(context.Background(), shared.Identity{Role: "ceo"}, draft, "")
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	_, err = f.svc.CreateApprovable(context.Background(), ceo, Draft{Kind: "travel", Title: "x", Amount: 1}, "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateApprovableRejectsReplayedKey(t *testing.T) {
	f := newFixture(t)
	draft := Draft{Kind: KindExpense, Title: "Hotel", Amount: 900000}

	_, err := f.svc.CreateApprovable(context.Background(), salesManager, draft, "key-1")
	require.NoError(t, err)
	_, err = f.svc.CreateApprovable(context.Background(), salesManager, draft, "key-1")
	require.ErrorIs(t, err, shared.ErrAlreadyProcessed)

	// A failed create releases its key.
	_, err = f.svc.CreateApprovable(context.Background(), salesManager, Draft{Kind: KindExpense, Title: "", Amount: 1}, "key-2")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.CreateApprovable(context.Background(), salesManager, draft, "key-2")
	require.NoError(t, err)

	all, err := f.store.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestExpenseScenarioThroughService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.createExpense(t, salesManager)

	req, err := f.svc.Approve(ctx, req.ID, salesManager, StageDeptManager)
	require.NoError(t, err)
	require.Equal(t, PendingStatus(StageFinanceManager), req.Status)

	_, err = f.svc.Approve(ctx, req.ID, salesManager, StageFinanceManager)
	require.ErrorIs(t, err, shared.ErrForbidden)

	req, err = f.svc.Approve(ctx, req.ID, financeStaff, StageFinanceManager)
	require.NoError(t, err)
	require.Equal(t, PendingStatus(StageCEO), req.Status)

	req, err = f.svc.Approve(ctx, req.ID, ceo, StageCEO)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, req.Status)

	req, err = f.svc.MarkPaid(ctx, req.ID, financeStaff)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, req.Status)
	require.Equal(t, int64(5), req.Version)

	stored, err := f.store.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, req, stored)

	actions := make([]shared.ApprovalAction, 0, len(f.notifier.transitions))
	for _, tr := range f.notifier.transitions {
		actions = append(actions, tr.Action)
	}
	require.Equal(t, []shared.ApprovalAction{shared.ApprovalSubmit, shared.ApprovalApprove, shared.ApprovalApprove, shared.ApprovalApprove, shared.ApprovalPay}, actions)
	require.Equal(t, 1, f.metrics.counts["expense/APPROVE/forbidden"])
	require.Equal(t, 3, f.metrics.counts["expense/APPROVE/ok"])
}

func TestRejectScenarioThroughService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.createExpense(t, salesManager)
	req, err := f.svc.Approve(ctx, req.ID, salesManager, StageDeptManager)
	require.NoError(t, err)

	req, err = f.svc.Reject(ctx, req.ID, admin, StageFinanceManager, "budget exhausted")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, req.Status)
	require.Equal(t, "budget exhausted", req.Reason)
	require.Equal(t, "Admin", req.RejectedBy)

	_, err = f.svc.Approve(ctx, req.ID, admin, StageFinanceManager)
	require.ErrorIs(t, err, shared.ErrAlreadyProcessed)
	var finalized *FinalizedError
	require.ErrorAs(t, err, &finalized)
	_, err = f.svc.MarkPaid(ctx, req.ID, admin)
	require.ErrorIs(t, err, shared.ErrAlreadyProcessed)

	stored, err := f.store.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, req.Version, stored.Version)

	history, err := f.svc.History(ctx, salesManager, req.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, shared.ApprovalReject, history[2].Action)
	require.Equal(t, "budget exhausted", history[2].Note)
	require.Equal(t, string(StageFinanceManager), history[2].Stage)
}

func TestMarkPaidRequiresApproval(t *testing.T) {
	f := newFixture(t)
	req := f.createExpense(t, salesManager)
	_, err := f.svc.MarkPaid(context.Background(), req.ID, financeStaff)
	require.ErrorIs(t, err, ErrNotApproved)

	_, err = f.svc.Approve(context.Background(), uuid.New(), admin, StageDeptManager)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGetApprovableHidesForeignRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.createExpense(t, salesManager)

	_, err := f.svc.GetApprovable(ctx, hrManager, req.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.History(ctx, hrManager, req.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	for _, id := range []shared.Identity{salesManager, ceo, {UserID: "u8", Role: "sales_assistant", Department: "sales"}} {
		got, err := f.svc.GetApprovable(ctx, id, req.ID)
		require.NoError(t, err, id.Role)
		require.Equal(t, req.ID, got.ID)
	}

	_, err = f.svc.GetApprovable(ctx, salesStaff, req.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestListApprovablesFiltersByOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createExpense(t, salesManager)
	f.createExpense(t, hrManager)
	_, err := f.svc.CreateApprovable(ctx, hrManager, Draft{Kind: KindGeneric, Title: "Training budget", Amount: 1}, "")
	require.NoError(t, err)

	mine, err := f.svc.ListApprovables(ctx, salesManager, ListFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "u3", mine[0].CreatedBy)

	everything, err := f.svc.ListApprovables(ctx, ceo, ListFilter{})
	require.NoError(t, err)
	require.Len(t, everything, 3)

	expenses, err := f.svc.ListApprovables(ctx, ceo, ListFilter{Kind: KindExpense})
	require.NoError(t, err)
	require.Len(t, expenses, 2)

	_, err = f.svc.ListApprovables(ctx, salesStaff, ListFilter{})
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = f.svc.ListApprovables(ctx, financeStaff, ListFilter{Kind: KindExpense})
	require.ErrorIs(t, err, shared.ErrForbidden)

	loans, err := f.svc.ListApprovables(ctx, financeStaff, ListFilter{})
	require.NoError(t, err)
	require.Empty(t, loans)
}

func TestConcurrentApprovalsClearOneStage(t *testing.T) {
	f := newFixture(t)
	req := f.createExpense(t, salesManager)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Approve(context.Background(), req.ID, ceo, StageDeptManager)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var stale *StaleStageError
		require.ErrorAs(t, err, &stale)
		require.ErrorIs(t, err, shared.ErrAlreadyProcessed)
		require.Equal(t, StageFinanceManager, stale.Current)
	}
	require.Equal(t, 1, succeeded)

	stored, err := f.store.Get(context.Background(), req.ID)
	require.NoError(t, err)
	require.Equal(t, PendingStatus(StageFinanceManager), stored.Status)
	require.Len(t, stored.Approvals, 1)
	require.Equal(t, StageDeptManager, stored.Approvals[0].Stage)
}

func TestApproveRequiresSeenStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.createExpense(t, salesManager)

	_, err := f.svc.Approve(ctx, req.ID, ceo, "")
	require.ErrorIs(t, err, ErrStageRequired)

	_, err = f.svc.Approve(ctx, req.ID, ceo, StageDeptManager)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, req.ID, ceo, StageDeptManager)
	var stale *StaleStageError
	require.ErrorAs(t, err, &stale)
	require.Equal(t, StageDeptManager, stale.Seen)

	_, err = f.svc.Reject(ctx, req.ID, admin, StageDeptManager, "duplicate")
	require.ErrorAs(t, err, &stale)

	rejected, err := f.svc.Reject(ctx, req.ID, admin, "", "duplicate")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, 1, f.metrics.counts["expense/APPROVE/ok"])
	require.Equal(t, 1, f.metrics.counts["expense/APPROVE/already_processed"])
}

func TestConcurrentApprovalsAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewMemoryStore()
	a := newFixtureWith(t, store, NewRedisLocker(client, 0))
	b := newFixtureWith(t, store, NewRedisLocker(client, 0))
	req := a.createExpense(t, salesManager)

	const workers = 10
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		svc := a.svc
		if i%2 == 1 {
			svc = b.svc
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Approve(context.Background(), req.ID, salesManager, StageDeptManager)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, errors.Is(err, shared.ErrForbidden) || errors.Is(err, shared.ErrAlreadyProcessed), err)
	}
	require.Equal(t, 1, succeeded)

	stored, err := store.Get(context.Background(), req.ID)
	require.NoError(t, err)
	require.Equal(t, PendingStatus(StageFinanceManager), stored.Status)
	require.Len(t, stored.Approvals, 1)
	require.False(t, mr.Exists(shared.ApprovalLockKey(req.ID.String())))
}

func TestMemoryStoreRejectsStaleVersion(t *testing.T) {
	f := newFixture(t)
	req := f.createExpense(t, salesManager)

	next := req
	next.Version = req.Version + 1
	require.NoError(t, f.store.Update(context.Background(), next, req.Version))
	require.ErrorIs(t, f.store.Update(context.Background(), next, req.Version), ErrStaleVersion)
}

package approval

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-authz/internal/roles"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// Draft carries the submitter supplied fields of a new request.
type Draft struct {
	Kind        Kind    `json:"kind" validate:"required,oneof=expense loan generic"`
	Title       string  `json:"title" validate:"required,max=200"`
	Description string  `json:"description" validate:"max=2000"`
	Amount      float64 `json:"amount" validate:"gt=0"`
	Currency    string  `json:"currency" validate:"omitempty,len=3"`
}

// Workflow owns the stage transition state machine. Its methods are pure:
// they return an updated copy and never mutate the input.
type Workflow struct {
	policy *Policy
	now    func() time.Time
}

// NewWorkflow builds a Workflow. A nil clock uses time.Now.
func NewWorkflow(policy *Policy, clock func() time.Time) *Workflow {
	if clock == nil {
		clock = time.Now
	}
	return &Workflow{policy: policy, now: func() time.Time { return clock().UTC() }}
}

// Policy returns the stage eligibility policy.
func (w *Workflow) Policy() *Policy { return w.policy }

// Submit creates a request at the first stage of its kind.
func (w *Workflow) Submit(def Definition, draft Draft, number string, submitter shared.Identity) (Request, error) {
	if len(def.Stages) == 0 {
		return Request{}, fmt.Errorf("%w: kind %s has no stages", shared.ErrInvariant, def.Kind)
	}
	for _, stage := range def.Stages {
		if !w.policy.Knows(stage) {
			return Request{}, fmt.Errorf("%w: stage %s has no eligibility rule", shared.ErrInvariant, stage)
		}
	}
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return Request{}, fmt.Errorf("%w: title required", shared.ErrValidation)
	}
	if draft.Amount <= 0 {
		return Request{}, fmt.Errorf("%w: amount must be positive", shared.ErrValidation)
	}
	currency := strings.ToUpper(strings.TrimSpace(draft.Currency))
	if currency == "" {
		currency = "IDR"
	}
	now := w.now()
	return Request{
		ID:            uuid.New(),
		Number:        number,
		Kind:          def.Kind,
		Title:         title,
		Description:   strings.TrimSpace(draft.Description),
		Amount:        draft.Amount,
		Currency:      currency,
		Stages:        append([]Stage(nil), def.Stages...),
		CurrentStage:  0,
		Status:        PendingStatus(def.Stages[0]),
		Approvals:     []StageApproval{},
		CreatedBy:     submitter.UserID,
		CreatedByDept: roles.Department(submitter.Department),
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}, nil
}

// ExpectStage checks that req still waits at seen, the stage the caller acted
// upon. An empty seen is accepted only when required is false.
func (w *Workflow) ExpectStage(req Request, seen Stage, required bool) error {
	if req.Status.Terminal() {
		return &FinalizedError{ID: req.ID, Status: req.Status}
	}
	if seen == "" {
		if required {
			return ErrStageRequired
		}
		return nil
	}
	current, ok := req.Pending()
	if !ok {
		return fmt.Errorf("%w: request %s has status %s at stage index %d", shared.ErrInvariant, req.ID, req.Status, req.CurrentStage)
	}
	if current != seen {
		return &StaleStageError{ID: req.ID, Seen: seen, Current: current}
	}
	return nil
}

// Approve clears the current stage for a role eligible at that stage.
func (w *Workflow) Approve(req Request, role roles.ID, actorName string) (Request, error) {
	if req.Status.Terminal() {
		return req, &FinalizedError{ID: req.ID, Status: req.Status}
	}
	stage, ok := req.Pending()
	if !ok || !w.policy.Knows(stage) {
		return req, fmt.Errorf("%w: request %s has status %s at stage index %d", shared.ErrInvariant, req.ID, req.Status, req.CurrentStage)
	}
	if !w.policy.Eligible(stage, role) {
		return req, &StageError{Stage: stage, Role: role, Action: "approve"}
	}

	now := w.now()
	next := req.clone()
	next.Approvals = append(next.Approvals, StageApproval{Stage: stage, ApprovedBy: actorName, ApprovedRole: role, ApprovedAt: now})
	next.CurrentStage++
	if next.CurrentStage >= len(next.Stages) {
		next.Status = StatusApproved
	} else {
		next.Status = PendingStatus(next.Stages[next.CurrentStage])
	}
	next.UpdatedAt = now
	return next, nil
}

// Reject terminates a pending request. Any approver may reject at any stage.
func (w *Workflow) Reject(req Request, role roles.ID, actorName, reason string) (Request, error) {
	if req.Status.Terminal() {
		return req, &FinalizedError{ID: req.ID, Status: req.Status}
	}
	stage, ok := req.Pending()
	if !ok {
		return req, fmt.Errorf("%w: request %s has status %s at stage index %d", shared.ErrInvariant, req.ID, req.Status, req.CurrentStage)
	}
	if !w.policy.IsApprover(role) {
		return req, &StageError{Stage: stage, Role: role, Action: "reject"}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return req, ErrReasonRequired
	}

	now := w.now()
	next := req.clone()
	next.Status = StatusRejected
	next.RejectedBy = actorName
	next.RejectedRole = role
	next.RejectedStage = stage
	next.RejectedAt = &now
	next.Reason = reason
	next.UpdatedAt = now
	return next, nil
}

// MarkPaid moves an approved request with a payment step to paid. No role
// check applies beyond the request having been approved.
func (w *Workflow) MarkPaid(req Request, actorName string) (Request, error) {
	def, err := DefinitionFor(req.Kind)
	if err != nil {
		return req, fmt.Errorf("%w: request %s has unknown kind %s", shared.ErrInvariant, req.ID, req.Kind)
	}
	if !def.PaymentStep {
		return req, ErrNoPaymentStep
	}
	switch req.Status {
	case StatusPaid, StatusRejected:
		return req, &FinalizedError{ID: req.ID, Status: req.Status}
	case StatusApproved:
	default:
		return req, ErrNotApproved
	}

	now := w.now()
	next := req.clone()
	next.Status = StatusPaid
	next.PaidBy = actorName
	next.PaidAt = &now
	next.UpdatedAt = now
	return next, nil
}

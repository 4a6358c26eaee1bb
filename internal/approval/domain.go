// Package approval implements the multi-stage sequential approval workflow
// shared by expense requests, loans and generic approvals.
package approval

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-authz/internal/rbac"
	"github.com/odyssey-erp/odyssey-authz/internal/roles"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// Kind identifies an approvable entity type.
type Kind string

const (
	KindExpense Kind = "expense"
	KindLoan    Kind = "loan"
	KindGeneric Kind = "generic"
)

// Stage is one step of a stage sequence.
type Stage string

const (
	StageDeptManager    Stage = "dept_manager"
	StageHRManager      Stage = "hr_manager"
	StageFinanceManager Stage = "finance_manager"
	StageCEO            Stage = "ceo"
	StageGeneralManager Stage = "general_manager"
)

// Status is derived from the current stage or a terminal marker.
type Status string

const (
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusPaid     Status = "paid"
)

const pendingPrefix = "pending_"

// PendingStatus returns the status of a request waiting at stage.
func PendingStatus(stage Stage) Status {
	return Status(pendingPrefix + string(stage))
}

// Terminal reports whether no further stage transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusPaid
}

// Definition describes one approvable kind.
type Definition struct {
	Kind        Kind
	Module      rbac.ModuleID
	Prefix      string
	Stages      []Stage
	PaymentStep bool
}

var definitions = map[Kind]Definition{
	KindExpense: {
		Kind:        KindExpense,
		Module:      rbac.ModuleExpenseRequests,
		Prefix:      "EXP",
		Stages:      []Stage{StageDeptManager, StageFinanceManager, StageCEO},
		PaymentStep: true,
	},
	KindLoan: {
		Kind:        KindLoan,
		Module:      rbac.ModuleLoans,
		Prefix:      "LOAN",
		Stages:      []Stage{StageDeptManager, StageHRManager, StageFinanceManager},
		PaymentStep: true,
	},
	KindGeneric: {
		Kind:   KindGeneric,
		Module: rbac.ModuleApprovals,
		Prefix: "APR",
		Stages: []Stage{StageDeptManager, StageGeneralManager},
	},
}

// DefinitionFor looks up the definition of kind.
func DefinitionFor(kind Kind) (Definition, error) {
	def, ok := definitions[kind]
	if !ok {
		return Definition{}, fmt.Errorf("%w: unknown approval kind %q", shared.ErrValidation, kind)
	}
	return def, nil
}

// Kinds lists the supported kinds.
func Kinds() []Kind {
	return []Kind{KindExpense, KindLoan, KindGeneric}
}

// StageApproval records who cleared a stage.
type StageApproval struct {
	Stage        Stage     `json:"stage"`
	ApprovedBy   string    `json:"approvedBy"`
	ApprovedRole roles.ID  `json:"approvedRole"`
	ApprovedAt   time.Time `json:"approvedAt"`
}

// Request is an approvable entity.
type Request struct {
	ID            uuid.UUID        `json:"id"`
	Number        string           `json:"number"`
	Kind          Kind             `json:"kind"`
	Title         string           `json:"title"`
	Description   string           `json:"description,omitempty"`
	Amount        float64          `json:"amount"`
	Currency      string           `json:"currency"`
	Stages        []Stage          `json:"stageSequence"`
	CurrentStage  int              `json:"currentStage"`
	Status        Status           `json:"status"`
	Approvals     []StageApproval  `json:"approvals"`
	RejectedBy    string           `json:"rejectedBy,omitempty"`
	RejectedRole  roles.ID         `json:"rejectedRole,omitempty"`
	RejectedStage Stage            `json:"rejectedStage,omitempty"`
	RejectedAt    *time.Time       `json:"rejectedAt,omitempty"`
	Reason        string           `json:"rejectionReason,omitempty"`
	PaidBy        string           `json:"paidBy,omitempty"`
	PaidAt        *time.Time       `json:"paidAt,omitempty"`
	CreatedBy     string           `json:"createdBy"`
	CreatedByDept roles.Department `json:"createdByDept"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
	Version       int64            `json:"version"`
}

// Owner implements ownership.Ownable.
func (r Request) Owner() (string, roles.Department) {
	return r.CreatedBy, r.CreatedByDept
}

// Pending returns the stage the request waits at, if any.
func (r Request) Pending() (Stage, bool) {
	if r.Status.Terminal() || r.CurrentStage < 0 || r.CurrentStage >= len(r.Stages) {
		return "", false
	}
	return r.Stages[r.CurrentStage], true
}

func (r Request) clone() Request {
	out := r
	out.Stages = slices.Clone(r.Stages)
	out.Approvals = slices.Clone(r.Approvals)
	return out
}

// StageError reports a role that is not eligible for the attempted transition.
type StageError struct {
	Stage  Stage
	Role   roles.ID
	Action string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("approval: role %q may not %s at stage %s", e.Role, e.Action, e.Stage)
}

func (e *StageError) Unwrap() error { return shared.ErrForbidden }

// ProblemCode names the failure for API clients.
func (e *StageError) ProblemCode() string { return "wrong_stage" }

// FinalizedError reports a transition attempted on a finalized request.
type FinalizedError struct {
	ID     uuid.UUID
	Status Status
}

func (e *FinalizedError) Error() string {
	return fmt.Sprintf("approval: request %s already %s", e.ID, e.Status)
}

func (e *FinalizedError) Unwrap() error { return shared.ErrAlreadyProcessed }

// ProblemCode names the failure for API clients.
func (e *FinalizedError) ProblemCode() string { return "already_finalized" }

// StaleStageError reports a transition issued against a stage the request has
// already left.
type StaleStageError struct {
	ID      uuid.UUID
	Seen    Stage
	Current Stage
}

func (e *StaleStageError) Error() string {
	return fmt.Sprintf("approval: request %s moved from stage %s to %s", e.ID, e.Seen, e.Current)
}

func (e *StaleStageError) Unwrap() error { return shared.ErrAlreadyProcessed }

// ProblemCode names the failure for API clients.
func (e *StaleStageError) ProblemCode() string { return "stale_stage" }

var (
	// ErrStageRequired is returned by Approve when the caller names no stage.
	ErrStageRequired = fmt.Errorf("%w: stage required", shared.ErrValidation)
	// ErrNotApproved is returned when payment precedes final approval.
	ErrNotApproved = fmt.Errorf("%w: request is not approved", shared.ErrValidation)
	// ErrNoPaymentStep is returned for kinds without a payment step.
	ErrNoPaymentStep = fmt.Errorf("%w: kind has no payment step", shared.ErrValidation)
	// ErrReasonRequired is returned by Reject without a reason.
	ErrReasonRequired = fmt.Errorf("%w: rejection reason required", shared.ErrValidation)
	// ErrStaleVersion is returned when a concurrent transition won the race.
	ErrStaleVersion = fmt.Errorf("approval: request changed concurrently: %w", shared.ErrAlreadyProcessed)
)

package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-authz/internal/gate"
	"github.com/odyssey-erp/odyssey-authz/internal/ownership"
	"github.com/odyssey-erp/odyssey-authz/internal/rbac"
	"github.com/odyssey-erp/odyssey-authz/internal/roles"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// HistoryPort appends and lists approval log entries.
type HistoryPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// IdempotencyPort claims client supplied request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Transition describes a committed state change.
type Transition struct {
	RequestID uuid.UUID             `json:"requestId"`
	Number    string                `json:"number"`
	Kind      Kind                  `json:"kind"`
	Action    shared.ApprovalAction `json:"action"`
	Stage     Stage                 `json:"stage,omitempty"`
	Status    Status                `json:"status"`
	ActorID   string                `json:"actorId"`
	ActorName string                `json:"actorName"`
	Role      string                `json:"role"`
	CreatedBy string                `json:"createdBy"`
	At        time.Time             `json:"at"`
}

// Notifier publishes committed transitions. Delivery is best effort.
type Notifier interface {
	NotifyTransition(ctx context.Context, t Transition) error
}

// Metrics observes transition outcomes.
type Metrics interface {
	ObserveTransition(kind, action, outcome string)
}

// ServiceConfig holds optional collaborators.
type ServiceConfig struct {
	// Locker serializes transitions across instances. An in-process lock is
	// always taken first.
	Locker   Locker
	Notifier Notifier
	Metrics  Metrics
	Clock    func() time.Time
}

// Service orchestrates approvable requests.
type Service struct {
	store       Store
	gate        *gate.Gate
	workflow    *Workflow
	locker      Locker
	history     HistoryPort
	idempotency IdempotencyPort
	notifier    Notifier
	metrics     Metrics
	logger      *slog.Logger
}

// NewService constructs the approval service.
func NewService(store Store, g *gate.Gate, history HistoryPort, idem IdempotencyPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	var locker Locker = NewKeyedLocker()
	if cfg.Locker != nil {
		locker = ChainLocker{locker, cfg.Locker}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		gate:        g,
		workflow:    NewWorkflow(NewPolicy(g.Roles()), cfg.Clock),
		locker:      locker,
		history:     history,
		idempotency: idem,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

// Policy exposes stage eligibility.
func (s *Service) Policy() *Policy { return s.workflow.Policy() }

// CreateApprovable creates a request at the first stage of its kind and
// stamps the submitter as owner. A non-empty idempotency key rejects replays.
func (s *Service) CreateApprovable(ctx context.Context, submitter shared.Identity, draft Draft, idemKey string) (Request, error) {
	if submitter.Anonymous() {
		return Request{}, shared.ErrUnauthenticated
	}
	def, err := DefinitionFor(draft.Kind)
	if err != nil {
		return Request{}, err
	}
	if err := s.gate.Authorize(submitter, def.Module, rbac.CapCreate); err != nil {
		return Request{}, err
	}

	idemModule := "approval:" + string(def.Kind)
	if idemKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, idemModule); err != nil {
			return Request{}, err
		}
	}
	release := func() {
		if idemKey != "" && s.idempotency != nil {
			if err := s.idempotency.Delete(ctx, idemKey, idemModule); err != nil {
				s.logger.Warn("release idempotency key", slog.String("key", idemKey), slog.Any("error", err))
			}
		}
	}

	seq, err := s.store.NextSequence(ctx, def.Kind)
	if err != nil {
		release()
		return Request{}, fmt.Errorf("approval: next sequence: %w", err)
	}
	req, err := s.workflow.Submit(def, draft, FormatNumber(def.Prefix, seq), submitter)
	if err != nil {
		release()
		return Request{}, err
	}
	if err := s.store.Create(ctx, req); err != nil {
		release()
		return Request{}, err
	}

	s.committed(ctx, def, req, shared.ApprovalSubmit, req.Stages[0], submitter, "")
	return req, nil
}

// GetApprovable loads a request visible to caller. Requests hidden by the
// ownership rules are reported as not found.
func (s *Service) GetApprovable(ctx context.Context, caller shared.Identity, id uuid.UUID) (Request, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	def, err := DefinitionFor(req.Kind)
	if err != nil {
		return Request{}, fmt.Errorf("%w: request %s has unknown kind %s", shared.ErrInvariant, req.ID, req.Kind)
	}
	if err := s.gate.Authorize(caller, def.Module, rbac.CapView); err != nil {
		return Request{}, err
	}
	if !s.gate.Visible(caller, req) {
		return Request{}, fmt.Errorf("approval request %s: %w", id, shared.ErrNotFound)
	}
	return req, nil
}

// ListApprovables returns the requests caller may see. Without a kind, every
// kind whose module the caller can view is included.
func (s *Service) ListApprovables(ctx context.Context, caller shared.Identity, filter ListFilter) ([]Request, error) {
	kinds := Kinds()
	if filter.Kind != "" {
		if _, err := DefinitionFor(filter.Kind); err != nil {
			return nil, err
		}
		kinds = []Kind{filter.Kind}
	}

	out := []Request{}
	var denied error
	allowed := false
	for _, kind := range kinds {
		def, _ := DefinitionFor(kind)
		if err := s.gate.Authorize(caller, def.Module, rbac.CapView); err != nil {
			if errors.Is(err, shared.ErrForbidden) {
				denied = err
				continue
			}
			return nil, err
		}
		allowed = true
		scoped := filter
		scoped.Kind = kind
		rows, err := s.store.List(ctx, scoped)
		if err != nil {
			return nil, err
		}
		out = append(out, ownership.Apply(s.gate.Filter(), caller, rows)...)
	}
	if !allowed {
		return nil, denied
	}
	return out, nil
}

// Approve clears stage seen on behalf of actor. seen must be the stage the
// request is still waiting at, so a repeated or racing call fails with a
// StaleStageError instead of clearing the following stage.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, actor shared.Identity, seen Stage) (Request, error) {
	return s.transition(ctx, id, actor, shared.ApprovalApprove, "", func(req Request) (Request, error) {
		if err := s.workflow.ExpectStage(req, seen, true); err != nil {
			return req, err
		}
		return s.workflow.Approve(req, roles.ID(actor.Role), actor.DisplayName())
	})
}

// Reject terminates the request with reason. A non-empty seen must match the
// current stage.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, actor shared.Identity, seen Stage, reason string) (Request, error) {
	return s.transition(ctx, id, actor, shared.ApprovalReject, reason, func(req Request) (Request, error) {
		if err := s.workflow.ExpectStage(req, seen, false); err != nil {
			return req, err
		}
		return s.workflow.Reject(req, roles.ID(actor.Role), actor.DisplayName(), reason)
	})
}

// MarkPaid records payment of an approved request.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, actor shared.Identity) (Request, error) {
	return s.transition(ctx, id, actor, shared.ApprovalPay, "", func(req Request) (Request, error) {
		return s.workflow.MarkPaid(req, actor.DisplayName())
	})
}

// History lists the approval log of a request visible to caller.
func (s *Service) History(ctx context.Context, caller shared.Identity, id uuid.UUID) ([]shared.ApprovalLog, error) {
	req, err := s.GetApprovable(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if s.history == nil {
		return []shared.ApprovalLog{}, nil
	}
	def, _ := DefinitionFor(req.Kind)
	logs, err := s.history.List(ctx, string(def.Module), req.ID)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []shared.ApprovalLog{}
	}
	return logs, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, actor shared.Identity, action shared.ApprovalAction, note string, fn func(Request) (Request, error)) (Request, error) {
	if actor.Anonymous() {
		return Request{}, shared.ErrUnauthenticated
	}
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return Request{}, err
	}
	defer unlock()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	stage, _ := current.Pending()
	next, err := fn(current)
	if err != nil {
		s.observe(current.Kind, action, err)
		return Request{}, err
	}
	next.Version = current.Version + 1
	if err := s.store.Update(ctx, next, current.Version); err != nil {
		s.observe(current.Kind, action, err)
		return Request{}, err
	}

	def, _ := DefinitionFor(next.Kind)
	s.committed(ctx, def, next, action, stage, actor, note)
	return next, nil
}

func (s *Service) committed(ctx context.Context, def Definition, req Request, action shared.ApprovalAction, stage Stage, actor shared.Identity, note string) {
	s.observe(req.Kind, action, nil)
	s.logger.Info("approval transition",
		slog.String("request_id", req.ID.String()),
		slog.String("number", req.Number),
		slog.String("action", string(action)),
		slog.String("status", string(req.Status)),
		slog.String("actor", actor.UserID),
		slog.String("role", actor.Role),
	)
	if s.history != nil {
		entry := shared.ApprovalLog{
			Module:    string(def.Module),
			RefID:     req.ID,
			ActorID:   actor.UserID,
			ActorRole: actor.Role,
			Action:    action,
			Stage:     string(stage),
			Note:      note,
			At:        req.UpdatedAt,
		}
		if err := s.history.Record(ctx, entry); err != nil {
			s.logger.Error("record approval history", slog.String("request_id", req.ID.String()), slog.Any("error", err))
		}
	}
	if s.notifier != nil {
		t := Transition{
			RequestID: req.ID,
			Number:    req.Number,
			Kind:      req.Kind,
			Action:    action,
			Stage:     stage,
			Status:    req.Status,
			ActorID:   actor.UserID,
			ActorName: actor.DisplayName(),
			Role:      actor.Role,
			CreatedBy: req.CreatedBy,
			At:        req.UpdatedAt,
		}
		if err := s.notifier.NotifyTransition(ctx, t); err != nil {
			s.logger.Warn("enqueue approval notification", slog.String("request_id", req.ID.String()), slog.Any("error", err))
		}
	}
}

func (s *Service) observe(kind Kind, action shared.ApprovalAction, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrAlreadyProcessed):
		outcome = "already_processed"
	case errors.Is(err, shared.ErrForbidden):
		outcome = "forbidden"
	case errors.Is(err, shared.ErrValidation):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	s.metrics.ObserveTransition(string(kind), string(action), outcome)
}

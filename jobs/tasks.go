package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-authz/internal/approval"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskApprovalNotify announces a committed approval transition.
	TaskApprovalNotify = "approval:notify"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// NewApprovalNotifyTask constructs an Asynq task for t.
func NewApprovalNotifyTask(t approval.Transition) (*asynq.Task, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskApprovalNotify, data), nil
}

// ApprovalNotifyJob delivers transition notifications. Delivery channels are
// external; the job records who should be told.
type ApprovalNotifyJob struct {
	Policy *approval.Policy
	Logger *slog.Logger
}

// Recipients derives who a transition concerns: the submitter, plus the
// roles eligible at the next stage while the request is pending.
func (j *ApprovalNotifyJob) Recipients(t approval.Transition) (string, []string) {
	var nextRoles []string
	if stage, ok := nextStage(t.Status); ok && j.Policy != nil {
		for _, id := range j.Policy.EligibleRoles(stage) {
			nextRoles = append(nextRoles, string(id))
		}
	}
	return t.CreatedBy, nextRoles
}

// Handle processes TaskApprovalNotify tasks.
func (j *ApprovalNotifyJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil {
		return errors.New("approval notify: handler not configured")
	}
	var t approval.Transition
	if err := json.Unmarshal(task.Payload(), &t); err != nil {
		return fmt.Errorf("decode approval notification: %v: %w", err, asynq.SkipRetry)
	}
	submitter, nextRoles := j.Recipients(t)
	j.logger().Info("approval notification",
		slog.String("request_id", t.RequestID.String()),
		slog.String("number", t.Number),
		slog.String("action", string(t.Action)),
		slog.String("status", string(t.Status)),
		slog.String("submitter", submitter),
		slog.Any("next_roles", nextRoles),
	)
	return nil
}

func (j *ApprovalNotifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func nextStage(status approval.Status) (approval.Stage, bool) {
	stage, ok := strings.CutPrefix(string(status), "pending_")
	if !ok || stage == "" {
		return "", false
	}
	return approval.Stage(stage), true
}

// IdempotencyCleaner removes keys older than a retention window.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// NewIdempotencyCleanupTask constructs the periodic cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// IdempotencyCleanupJob purges expired idempotency keys.
type IdempotencyCleanupJob struct {
	Store     IdempotencyCleaner
	Retention time.Duration
	Logger    *slog.Logger
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	retention := j.Retention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	if err := j.Store.Cleanup(ctx, retention); err != nil {
		return fmt.Errorf("purge idempotency keys: %w", err)
	}
	if j.Logger != nil {
		j.Logger.Info("idempotency keys purged", slog.Duration("retention", retention))
	}
	return nil
}

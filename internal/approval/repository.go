package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-authz/internal/roles"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// PGStore persists requests in approval_requests.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL request store.
func NewRepository(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const requestColumns = `id, number, kind, title, description, amount, currency, stages, current_stage, status, approvals,
rejected_by, rejected_role, rejected_stage, rejected_at, rejection_reason, paid_by, paid_at,
created_by, created_by_dept, created_at, updated_at, version`

// Create implements Store.
func (r *PGStore) Create(ctx context.Context, req Request) error {
	approvals, err := json.Marshal(req.Approvals)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO approval_requests (`+requestColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		req.ID, req.Number, string(req.Kind), req.Title, req.Description, req.Amount, req.Currency,
		stageStrings(req.Stages), req.CurrentStage, string(req.Status), approvals,
		req.RejectedBy, string(req.RejectedRole), string(req.RejectedStage), req.RejectedAt, req.Reason, req.PaidBy, req.PaidAt,
		req.CreatedBy, string(req.CreatedByDept), req.CreatedAt, req.UpdatedAt, req.Version)
	return err
}

// Get implements Store.
func (r *PGStore) Get(ctx context.Context, id uuid.UUID) (Request, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM approval_requests WHERE id=$1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, fmt.Errorf("approval request %s: %w", id, shared.ErrNotFound)
	}
	return req, err
}

// List implements Store.
func (r *PGStore) List(ctx context.Context, filter ListFilter) ([]Request, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		conds = append(conds, fmt.Sprintf("kind=$%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status=$%d", len(args)))
	}
	query := `SELECT ` + requestColumns + ` FROM approval_requests`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, number DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Update implements Store.
func (r *PGStore) Update(ctx context.Context, req Request, expected int64) error {
	approvals, err := json.Marshal(req.Approvals)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE approval_requests SET
	current_stage=$2, status=$3, approvals=$4,
	rejected_by=$5, rejected_role=$6, rejected_stage=$7, rejected_at=$8, rejection_reason=$9,
	paid_by=$10, paid_at=$11, updated_at=$12, version=$13
WHERE id=$1 AND version=$14`,
		req.ID, req.CurrentStage, string(req.Status), approvals,
		req.RejectedBy, string(req.RejectedRole), string(req.RejectedStage), req.RejectedAt, req.Reason,
		req.PaidBy, req.PaidAt, req.UpdatedAt, req.Version, expected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM approval_requests WHERE id=$1)`, req.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("approval request %s: %w", req.ID, shared.ErrNotFound)
	}
	return ErrStaleVersion
}

// NextSequence implements Store.
func (r *PGStore) NextSequence(ctx context.Context, kind Kind) (int64, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `INSERT INTO approval_sequences (kind, last_value) VALUES ($1, 1)
ON CONFLICT (kind) DO UPDATE SET last_value = approval_sequences.last_value + 1
RETURNING last_value`, string(kind)).Scan(&seq)
	return seq, err
}

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	var kind, status, rejectedRole, rejectedStage, createdByDept string
	var stages []string
	var approvals []byte
	err := row.Scan(&req.ID, &req.Number, &kind, &req.Title, &req.Description, &req.Amount, &req.Currency,
		&stages, &req.CurrentStage, &status, &approvals,
		&req.RejectedBy, &rejectedRole, &rejectedStage, &req.RejectedAt, &req.Reason, &req.PaidBy, &req.PaidAt,
		&req.CreatedBy, &createdByDept, &req.CreatedAt, &req.UpdatedAt, &req.Version)
	if err != nil {
		return Request{}, err
	}
	req.Kind = Kind(kind)
	req.Status = Status(status)
	req.RejectedRole = roles.ID(rejectedRole)
	req.RejectedStage = Stage(rejectedStage)
	req.CreatedByDept = roles.Department(createdByDept)
	req.Stages = make([]Stage, len(stages))
	for i, s := range stages {
		req.Stages[i] = Stage(s)
	}
	req.Approvals = []StageApproval{}
	if len(approvals) > 0 {
		if err := json.Unmarshal(approvals, &req.Approvals); err != nil {
			return Request{}, fmt.Errorf("decode approvals of %s: %w", req.ID, err)
		}
	}
	return req, nil
}

func stageStrings(stages []Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = string(s)
	}
	return out
}

var _ Store = (*PGStore)(nil)
var _ Store = (*MemoryStore)(nil)

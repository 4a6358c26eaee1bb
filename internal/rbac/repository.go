package rbac

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-authz/internal/platform/db"
	"github.com/odyssey-erp/odyssey-authz/internal/roles"
)

// PGOverrideStore keeps overrides in permission_overrides.
type PGOverrideStore struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL override store.
func NewRepository(pool *pgxpool.Pool) *PGOverrideStore {
	return &PGOverrideStore{pool: pool}
}

// ListOverrides returns every stored override.
func (r *PGOverrideStore) ListOverrides(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT role, module, can_view, can_create, can_edit, can_delete, can_export
FROM permission_overrides ORDER BY role, module`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		var role, module string
		if err := rows.Scan(&role, &module, &p.CanView, &p.CanCreate, &p.CanEdit, &p.CanDelete, &p.CanExport); err != nil {
			return nil, err
		}
		p.Role = roles.ID(role)
		p.Module = ModuleID(module)
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

const upsertOverrideSQL = `INSERT INTO permission_overrides (role, module, can_view, can_create, can_edit, can_delete, can_export, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
ON CONFLICT (role, module) DO UPDATE SET
	can_view = EXCLUDED.can_view,
	can_create = EXCLUDED.can_create,
	can_edit = EXCLUDED.can_edit,
	can_delete = EXCLUDED.can_delete,
	can_export = EXCLUDED.can_export,
	updated_at = NOW()`

// UpsertOverrides writes the batch in one transaction.
func (r *PGOverrideStore) UpsertOverrides(ctx context.Context, perms []Permission) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range perms {
			batch.Queue(upsertOverrideSQL, string(p.Role), string(p.Module), p.CanView, p.CanCreate, p.CanEdit, p.CanDelete, p.CanExport)
		}
		results := tx.SendBatch(ctx, batch)
		for range perms {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return err
			}
		}
		return results.Close()
	})
}

var _ OverrideStore = (*PGOverrideStore)(nil)

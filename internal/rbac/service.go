package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-authz/internal/roles"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// OverrideStore persists administrative overrides.
type OverrideStore interface {
	ListOverrides(ctx context.Context) ([]Permission, error)
	// UpsertOverrides must apply the whole batch or nothing.
	UpsertOverrides(ctx context.Context, perms []Permission) error
}

// AuditPort records administrative changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MatrixView is the read-only snapshot served to administrators.
type MatrixView struct {
	Roles        []roles.Role `json:"roles"`
	Modules      []Module     `json:"modules"`
	Capabilities []Capability `json:"capabilities"`
	Permissions  []Permission `json:"permissions"`
	Version      uint64       `json:"version"`
}

// Service orchestrates matrix reads, persistence and reloads.
type Service struct {
	matrix *Matrix
	store  OverrideStore
	audit  AuditPort
	logger *slog.Logger

	writeMu sync.Mutex
	reloads singleflight.Group
}

// NewService constructs a Service. store and audit may be nil.
func NewService(matrix *Matrix, store OverrideStore, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{matrix: matrix, store: store, audit: audit, logger: logger}
}

// Matrix exposes the in-memory matrix.
func (s *Service) Matrix() *Matrix { return s.matrix }

// View returns the full matrix with its catalogs.
func (s *Service) View() MatrixView {
	perms, version := s.matrix.Snapshot()
	return MatrixView{
		Roles:        s.matrix.Roles().Roles(),
		Modules:      s.matrix.Modules().Modules(),
		Capabilities: Capabilities(),
		Permissions:  perms,
		Version:      version,
	}
}

// BulkUpdate validates, persists and then applies the batch. Nothing is
// applied when any tuple is unknown or persistence fails.
func (s *Service) BulkUpdate(ctx context.Context, actor shared.Identity, updates []Permission) (int, error) {
	if len(updates) == 0 {
		return 0, fmt.Errorf("%w: no permission updates", shared.ErrValidation)
	}
	if err := s.matrix.Validate(updates); err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	if s.store != nil {
		if err := s.store.UpsertOverrides(ctx, updates); err != nil {
			s.writeMu.Unlock()
			return 0, fmt.Errorf("rbac: persist overrides: %w", err)
		}
	}
	applied, err := s.matrix.BulkReplace(updates)
	s.writeMu.Unlock()
	if err != nil {
		return 0, err
	}

	s.recordAudit(ctx, actor, applied)
	return applied, nil
}

// Reload replaces the override layer from storage. Concurrent callers share
// one load.
func (s *Service) Reload(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	ch := s.reloads.DoChan("overrides", func() (interface{}, error) {
		perms, err := s.store.ListOverrides(ctx)
		if err != nil {
			return nil, err
		}
		s.writeMu.Lock()
		skipped := s.matrix.ResetOverrides(perms)
		s.writeMu.Unlock()
		return skipped, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("rbac: reload overrides: %w", res.Err)
		}
		if skipped, _ := res.Val.([]Permission); len(skipped) > 0 && s.logger != nil {
			for _, p := range skipped {
				s.logger.Warn("skip stale permission override", slog.String("role", string(p.Role)), slog.String("module", string(p.Module)))
			}
		}
		return nil
	}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Identity, applied int) {
	if s.audit == nil {
		return
	}
	version := fmt.Sprintf("v%d", s.matrix.Version())
	err := s.audit.Record(ctx, shared.NewAuditLog(actor, shared.AuditPermissionsUpdated, "permission_matrix", version, map[string]any{"applied": applied}))
	if err != nil && s.logger != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("audit permission update", slog.Any("error", err))
	}
}

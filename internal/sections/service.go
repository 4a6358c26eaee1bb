package sections

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-authz/internal/roles"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// AuditPort records administrative changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// RoleAccess is one row of the section access overview.
type RoleAccess struct {
	Role     roles.ID `json:"role"`
	Label    string   `json:"label"`
	Sections []ID     `json:"sections"`
	Fixed    bool     `json:"fixed"`
	Explicit bool     `json:"explicit"`
}

// Overview is the full section access map.
type Overview struct {
	Sections []ID         `json:"sections"`
	Roles    []RoleAccess `json:"roles"`
}

// Service answers section visibility questions.
type Service struct {
	catalog *roles.Catalog
	store   Store
	audit   AuditPort
	logger  *slog.Logger
}

// NewService constructs a Service. audit may be nil.
func NewService(catalog *roles.Catalog, store Store, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{catalog: catalog, store: store, audit: audit, logger: logger}
}

// VisibleSections returns the sections role may see.
func (s *Service) VisibleSections(ctx context.Context, role roles.ID) ([]ID, error) {
	if s.catalog.IsTopLevel(role) {
		return All(), nil
	}
	r, ok := s.catalog.Lookup(role)
	if !ok {
		return []ID{}, nil
	}
	ids, found, err := s.store.Get(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("sections: load %s: %w", role, err)
	}
	if !found {
		return DefaultFor(r), nil
	}
	return ids, nil
}

// IsVisible reports whether section is in role's navigation.
func (s *Service) IsVisible(ctx context.Context, role roles.ID, section ID) (bool, error) {
	ids, err := s.VisibleSections(ctx, role)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == section {
			return true, nil
		}
	}
	return false, nil
}

// SetSections replaces role's explicit set. Top-level roles are rejected and
// nothing is written.
func (s *Service) SetSections(ctx context.Context, actor shared.Identity, role roles.ID, ids []ID) ([]ID, error) {
	if !s.catalog.Has(role) {
		return nil, fmt.Errorf("sections: role %s: %w", role, shared.ErrNotFound)
	}
	if s.catalog.IsTopLevel(role) {
		return nil, &FixedRoleError{Role: role}
	}
	normalized, err := normalize(ids)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, role, normalized); err != nil {
		return nil, fmt.Errorf("sections: store %s: %w", role, err)
	}
	if s.audit != nil {
		entry := shared.NewAuditLog(actor, shared.AuditSectionsSet, "section_access", string(role), map[string]any{"sections": normalized})
		if err := s.audit.Record(ctx, entry); err != nil && s.logger != nil {
			s.logger.Warn("audit section update", slog.Any("error", err))
		}
	}
	return normalized, nil
}

// Overview returns every role's effective sections.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	explicit, err := s.store.All(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("sections: load all: %w", err)
	}
	out := Overview{Sections: All()}
	for _, r := range s.catalog.Roles() {
		row := RoleAccess{Role: r.ID, Label: r.Label}
		switch ids, ok := explicit[r.ID]; {
		case s.catalog.IsTopLevel(r.ID):
			row.Sections, row.Fixed = All(), true
		case ok:
			row.Sections, row.Explicit = ids, true
		default:
			row.Sections = DefaultFor(r)
		}
		out.Roles = append(out.Roles, row)
	}
	return out, nil
}

// Package gate composes capability checks with ownership filtering. Every
// CRUD-class operation passes through a Gate before touching data.
package gate

import (
	"errors"
	"log/slog"

	"github.com/odyssey-erp/odyssey-authz/internal/ownership"
	"github.com/odyssey-erp/odyssey-authz/internal/rbac"
	"github.com/odyssey-erp/odyssey-authz/internal/roles"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// DecisionRecorder observes authorization outcomes.
type DecisionRecorder interface {
	ObserveDecision(module, capability, outcome string)
}

// Options tune Gate behaviour.
type Options struct {
	// PanicOnInvariant makes matrix defects crash the caller instead of
	// returning ErrInvariant. Enabled outside production.
	PanicOnInvariant bool
	Decisions        DecisionRecorder
}

// Gate is the composition point of PermissionMatrix and OwnershipFilter.
type Gate struct {
	matrix *rbac.Matrix
	filter ownership.Filter
	logger *slog.Logger
	opts   Options
}

// New builds a Gate over matrix, using the matrix role catalog for ownership.
func New(matrix *rbac.Matrix, logger *slog.Logger, opts Options) *Gate {
	return &Gate{matrix: matrix, filter: ownership.NewFilter(matrix.Roles()), logger: logger, opts: opts}
}

// Authorize allows or denies an operation class for id.
func (g *Gate) Authorize(id shared.Identity, module rbac.ModuleID, c rbac.Capability) error {
	ok, err := g.matrix.Check(roles.ID(id.Role), module, c)
	if err != nil {
		g.observe(module, c, "error")
		if errors.Is(err, shared.ErrInvariant) {
			if g.logger != nil {
				g.logger.Error("permission matrix invariant", slog.String("role", id.Role), slog.String("module", string(module)), slog.Any("error", err))
			}
			if g.opts.PanicOnInvariant {
				panic(err)
			}
		}
		return err
	}
	if !ok {
		g.observe(module, c, "denied")
		return &rbac.CapabilityError{Role: roles.ID(id.Role), Module: module, Capability: c}
	}
	g.observe(module, c, "allowed")
	return nil
}

// Visible reports whether a single record passes the ownership filter.
func (g *Gate) Visible(id shared.Identity, rec ownership.Ownable) bool {
	return g.filter.Visible(id, rec)
}

// Roles returns the role catalog behind the matrix.
func (g *Gate) Roles() *roles.Catalog { return g.matrix.Roles() }

// Filter exposes the ownership filter.
func (g *Gate) Filter() ownership.Filter { return g.filter }

// ListOwned narrows raw records without a capability check.
func (g *Gate) ListOwned(id shared.Identity, records []ownership.Record) []ownership.Record {
	return ownership.Apply(g.filter, id, records)
}

func (g *Gate) observe(module rbac.ModuleID, c rbac.Capability, outcome string) {
	if g.opts.Decisions != nil {
		g.opts.Decisions.ObserveDecision(string(module), string(c), outcome)
	}
}

// List checks view capability on module, then filters records by ownership.
func List[T ownership.Ownable](g *Gate, id shared.Identity, module rbac.ModuleID, records []T) ([]T, error) {
	if err := g.Authorize(id, module, rbac.CapView); err != nil {
		return nil, err
	}
	return ownership.Apply(g.filter, id, records), nil
}

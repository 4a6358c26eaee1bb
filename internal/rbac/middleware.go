package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-authz/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// Authorizer decides capability checks for an identity.
type Authorizer interface {
	Authorize(id shared.Identity, module ModuleID, c Capability) error
}

// Middleware wires capability checks into HTTP handlers.
type Middleware struct {
	Authorizer Authorizer
	Logger     *slog.Logger
}

// Require ensures the caller holds capability c on module.
func (m Middleware) Require(module ModuleID, c Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			if err := m.Authorizer.Authorize(id, module, c); err != nil {
				if errors.Is(err, shared.ErrInvariant) && m.Logger != nil {
					m.Logger.Error("rbac require", slog.String("module", string(module)), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

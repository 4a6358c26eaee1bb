package gate

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-authz/internal/ownership"
	"github.com/odyssey-erp/odyssey-authz/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// Handler exposes ListOwnedRecords for collections held by other services.
type Handler struct {
	gate *Gate
}

// NewHandler builds Handler instance.
func NewHandler(gate *Gate) *Handler {
	return &Handler{gate: gate}
}

// MountRoutes registers record filtering routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/filter", h.filter)
}

type filterRequest struct {
	Records []ownership.Record `json:"records" validate:"required"`
}

func (h *Handler) filter(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	var req filterRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	visible := h.gate.ListOwned(id, req.Records)
	httpx.JSON(w, http.StatusOK, map[string]any{"records": visible, "total": len(req.Records), "visible": len(visible)})
}

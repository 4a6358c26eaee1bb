package sections

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-authz/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-authz/internal/rbac"
	"github.com/odyssey-erp/odyssey-authz/internal/roles"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// Handler exposes section access over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers section routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.mine)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleSectionAccess, rbac.CapView))
		r.Get("/", h.overview)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleSectionAccess, rbac.CapEdit))
		r.Put("/{role}", h.set)
	})
}

type setSectionsRequest struct {
	Sections []string `json:"sections" validate:"omitempty,dive,required"`
}

func (h *Handler) mine(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	ids, err := h.service.VisibleSections(r.Context(), roles.ID(id.Role))
	if err != nil {
		h.logger.Error("visible sections", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": id.Role, "sections": ids})
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		h.logger.Error("section overview", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, overview)
}

func (h *Handler) set(w http.ResponseWriter, r *http.Request) {
	var req setSectionsRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ids := make([]ID, 0, len(req.Sections))
	for _, s := range req.Sections {
		ids = append(ids, ID(s))
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	role := roles.ID(chi.URLParam(r, "role"))
	updated, err := h.service.SetSections(r.Context(), actor, role, ids)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": role, "sections": updated})
}

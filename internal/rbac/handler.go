package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-authz/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-authz/internal/roles"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// Handler exposes the permission matrix over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(ModulePermissions, CapView))
		r.Get("/", h.getMatrix)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(ModulePermissions, CapEdit))
		r.Put("/", h.bulkUpdate)
	})
}

type permissionUpdate struct {
	Role      string `json:"role" validate:"required"`
	Module    string `json:"module" validate:"required"`
	CanView   bool   `json:"canView"`
	CanCreate bool   `json:"canCreate"`
	CanEdit   bool   `json:"canEdit"`
	CanDelete bool   `json:"canDelete"`
	CanExport bool   `json:"canExport"`
}

type bulkUpdateRequest struct {
	Updates []permissionUpdate `json:"updates" validate:"required,min=1,dive"`
}

func (h *Handler) getMatrix(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.View())
}

func (h *Handler) bulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req bulkUpdateRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	updates := make([]Permission, 0, len(req.Updates))
	for _, u := range req.Updates {
		updates = append(updates, Permission{
			Role:   roles.ID(u.Role),
			Module: ModuleID(u.Module),
			Flags:  Flags{CanView: u.CanView, CanCreate: u.CanCreate, CanEdit: u.CanEdit, CanDelete: u.CanDelete, CanExport: u.CanExport},
		})
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	applied, err := h.service.BulkUpdate(r.Context(), actor, updates)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("bulk update permissions", slog.String("actor", actor.UserID), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"applied": applied, "version": h.service.Matrix().Version()})
}

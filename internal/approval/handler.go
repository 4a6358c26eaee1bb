package approval

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-authz/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// Handler exposes approvable requests over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers approval routes. Capability and stage checks happen
// in Service so each failure keeps its own problem code.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(requireIdentity)
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Get("/history", h.history)
		r.Post("/approve", h.approve)
		r.Post("/reject", h.reject)
		r.Post("/pay", h.pay)
	})
}

func requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.IdentityFromContext(r.Context()); !ok {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type listResponse struct {
	Items []Request `json:"items"`
	shared.Pagination
}

type approveRequest struct {
	Stage Stage `json:"stage" validate:"max=64"`
}

type rejectRequest struct {
	Stage  Stage  `json:"stage" validate:"max=64"`
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var draft Draft
	if err := httpx.Bind(r, &draft); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	req, err := h.service.CreateApprovable(r.Context(), id, draft, strings.TrimSpace(r.Header.Get("Idempotency-Key")))
	if err != nil {
		h.fail(w, "create approvable", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, req)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	q := r.URL.Query()
	filter := ListFilter{Kind: Kind(q.Get("kind")), Status: Status(q.Get("status"))}
	items, err := h.service.ListApprovables(r.Context(), id, filter)
	if err != nil {
		h.fail(w, "list approvables", err)
		return
	}
	page := shared.ParsePagination(q.Get("page"), q.Get("perPage"), len(items))
	start, end := page.Bounds()
	httpx.JSON(w, http.StatusOK, listResponse{Items: items[start:end], Pagination: page})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	reqID, ok := parseID(w, r)
	if !ok {
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	req, err := h.service.GetApprovable(r.Context(), id, reqID)
	if err != nil {
		h.fail(w, "get approvable", err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	reqID, ok := parseID(w, r)
	if !ok {
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	logs, err := h.service.History(r.Context(), id, reqID)
	if err != nil {
		h.fail(w, "approval history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": logs})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	reqID, ok := parseID(w, r)
	if !ok {
		return
	}
	var body approveRequest
	if err := httpx.Bind(r, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	req, err := h.service.Approve(r.Context(), reqID, id, body.Stage)
	if err != nil {
		h.fail(w, "approve", err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	reqID, ok := parseID(w, r)
	if !ok {
		return
	}
	var body rejectRequest
	if err := httpx.Bind(r, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	req, err := h.service.Reject(r.Context(), reqID, id, body.Stage, body.Reason)
	if err != nil {
		h.fail(w, "reject", err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	reqID, ok := parseID(w, r)
	if !ok {
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	req, err := h.service.MarkPaid(r.Context(), reqID, id)
	if err != nil {
		h.fail(w, "mark paid", err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, shared.ErrInvariant) || !isDomainError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func isDomainError(err error) bool {
	for _, target := range []error{shared.ErrNotFound, shared.ErrForbidden, shared.ErrAlreadyProcessed, shared.ErrValidation, shared.ErrUnauthenticated} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}

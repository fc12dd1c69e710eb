package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/rbac"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.RoleUser))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAdmin())
		r.Post("/", h.create)
		r.Get("/reconcile", h.drift)
		r.Post("/reconcile", h.reconcile)
	})
}

type movementRequest struct {
	ProductID    int64  `json:"product_id" validate:"required,gt=0"`
	MovementType string `json:"movement_type" validate:"required,oneof=purchase adjustment return initial"`
	Quantity     int    `json:"quantity" validate:"required,ne=0"`
	ReferenceID  int64  `json:"reference_id" validate:"gte=0"`
	Notes        string `json:"notes" validate:"max=500"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	movement, err := h.service.RecordManual(r.Context(), MovementInput{
		ProductID:   req.ProductID,
		Type:        MovementType(req.MovementType),
		Quantity:    req.Quantity,
		ReferenceID: req.ReferenceID,
		ActorID:     shared.ActorID(r.Context()),
		Notes:       req.Notes,
	})
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := httpx.ParsePage(r, 100, 500)
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := MovementFilter{
		ProductID: productID,
		Type:      MovementType(r.URL.Query().Get("movement_type")),
		Offset:    page.Offset,
		Limit:     page.Limit,
	}
	movements, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.NewPageResult(movements, total, page))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	movement, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movement)
}

func (h *Handler) drift(w http.ResponseWriter, r *http.Request) {
	drift, err := h.service.Drift(r.Context())
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"drift": drift, "count": len(drift)})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	repaired, err := h.service.Reconcile(r.Context(), shared.ActorID(r.Context()))
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"repaired": repaired})
}

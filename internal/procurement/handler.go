package procurement

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/rbac"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler wires procurement routes.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds a procurement handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers purchase order endpoints. Approval and cancellation
// are restricted to administrators.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.RoleUser))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/supplier/{supplier_id}/history", h.supplierHistory)
		r.Get("/{id}", h.show)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/receive", h.receive)
		r.Get("/{id}/receipts", h.receipts)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAdmin())
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/cancel", h.cancel)
	})
}

type itemRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Notes     string          `json:"notes"`
}

type createRequest struct {
	SupplierID           int64         `json:"supplier_id" validate:"required,gt=0"`
	ExpectedDeliveryDate *time.Time    `json:"expected_delivery_date,omitempty"`
	PaymentTerms         string        `json:"payment_terms" validate:"max=100"`
	ShippingMethod       string        `json:"shipping_method" validate:"max=100"`
	Notes                string        `json:"notes"`
	Items                []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type updateRequest struct {
	SupplierID           *int64        `json:"supplier_id,omitempty" validate:"omitempty,gt=0"`
	ExpectedDeliveryDate *time.Time    `json:"expected_delivery_date,omitempty"`
	PaymentTerms         *string       `json:"payment_terms,omitempty" validate:"omitempty,max=100"`
	ShippingMethod       *string       `json:"shipping_method,omitempty" validate:"omitempty,max=100"`
	Notes                *string       `json:"notes,omitempty"`
	Items                []itemRequest `json:"items,omitempty" validate:"omitempty,min=1,dive"`
}

type receiveItemRequest struct {
	ProductID        int64  `json:"product_id" validate:"required,gt=0"`
	QuantityReceived int    `json:"quantity_received" validate:"gte=0"`
	QuantityRejected int    `json:"quantity_rejected" validate:"gte=0"`
	RejectionReason  string `json:"rejection_reason"`
}

type receiveRequest struct {
	Notes string               `json:"notes"`
	Items []receiveItemRequest `json:"items" validate:"required,min=1,dive"`
}

func toItemInputs(reqs []itemRequest) []ItemInput {
	if reqs == nil {
		return nil
	}
	items := make([]ItemInput, 0, len(reqs))
	for _, it := range reqs {
		items = append(items, ItemInput{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice, Notes: it.Notes})
	}
	return items
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := httpx.ParsePage(r, 100, 1000)
	supplierID, err := httpx.QueryInt64(r, "supplier_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, err := httpx.QueryDate(r, "date_from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := httpx.QueryDate(r, "date_to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !to.IsZero() {
		to = to.Add(24 * time.Hour)
	}
	orders, total, err := h.service.List(r.Context(), ListFilter{
		SupplierID: supplierID,
		Status:     Status(r.URL.Query().Get("status")),
		From:       from,
		To:         to,
		Offset:     page.Offset,
		Limit:      page.Limit,
	})
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.NewPageResult(orders, total, page))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.Create(r.Context(), CreateInput{
		SupplierID:           req.SupplierID,
		ExpectedDeliveryDate: req.ExpectedDeliveryDate,
		PaymentTerms:         req.PaymentTerms,
		ShippingMethod:       req.ShippingMethod,
		Notes:                req.Notes,
		Items:                toItemInputs(req.Items),
		ActorID:              shared.ActorID(r.Context()),
	})
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	po, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.Update(r.Context(), id, UpdateInput{
		SupplierID:           req.SupplierID,
		ExpectedDeliveryDate: req.ExpectedDeliveryDate,
		PaymentTerms:         req.PaymentTerms,
		ShippingMethod:       req.ShippingMethod,
		Notes:                req.Notes,
		Items:                toItemInputs(req.Items),
		ActorID:              shared.ActorID(r.Context()),
	})
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorID(r.Context())); err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	po, err := h.service.Approve(r.Context(), id, shared.ActorID(r.Context()))
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	po, err := h.service.Cancel(r.Context(), id, shared.ActorID(r.Context()))
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req receiveRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := ReceiveInput{
		OrderID:        id,
		ReceivedBy:     shared.ActorID(r.Context()),
		Notes:          req.Notes,
		IdempotencyKey: r.Header.Get(shared.IdempotencyHeader),
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, ReceiveItemInput{
			ProductID:        it.ProductID,
			QuantityReceived: it.QuantityReceived,
			QuantityRejected: it.QuantityRejected,
			RejectionReason:  it.RejectionReason,
		})
	}
	receipt, err := h.service.Receive(r.Context(), in)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) receipts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	receipts, err := h.service.Receipts(r.Context(), id)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipts)
}

func (h *Handler) supplierHistory(w http.ResponseWriter, r *http.Request) {
	supplierID, ok := h.pathID(w, r, "supplier_id")
	if !ok {
		return
	}
	limit, err := httpx.QueryInt64(r, "limit")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orders, err := h.service.SupplierHistory(r.Context(), supplierID, int(limit))
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := httpx.PathInt64(chi.URLParam(r, name))
	if err != nil {
		httpx.RespondError(w, err)
		return 0, false
	}
	return id, true
}

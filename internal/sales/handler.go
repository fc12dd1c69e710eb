package sales

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

// Handler exposes sales over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds a sales handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers sales endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.RoleUser))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.show)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.cancel)
		r.Post("/{id}/cancel", h.cancel)
	})
}

type itemRequest struct {
	ProductID int64            `json:"product_id" validate:"required,gt=0"`
	Quantity  int              `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	Discount  decimal.Decimal  `json:"discount"`
	TaxRate   decimal.Decimal  `json:"tax_rate"`
	Total     *decimal.Decimal `json:"total,omitempty"`
}

type createRequest struct {
	InvoiceNumber string           `json:"invoice_number" validate:"required,max=50"`
	CustomerID    *int64           `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	Items         []itemRequest    `json:"items" validate:"required,min=1,dive"`
	PaymentMethod string           `json:"payment_method" validate:"required,oneof=cash credit_card debit_card bank_transfer other"`
	PaymentStatus string           `json:"payment_status" validate:"omitempty,oneof=paid pending"`
	Notes         string           `json:"notes" validate:"max=250"`
	TotalAmount   *decimal.Decimal `json:"total_amount,omitempty"`
}

type updateRequest struct {
	CustomerID    *int64  `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	PaymentMethod *string `json:"payment_method,omitempty" validate:"omitempty,oneof=cash credit_card debit_card bank_transfer other"`
	PaymentStatus *string `json:"payment_status,omitempty"`
	Notes         *string `json:"notes,omitempty" validate:"omitempty,max=250"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := CreateInput{
		InvoiceNumber:  req.InvoiceNumber,
		CustomerID:     req.CustomerID,
		PaymentMethod:  PaymentMethod(req.PaymentMethod),
		PaymentStatus:  PaymentStatus(req.PaymentStatus),
		Notes:          req.Notes,
		TotalAmount:    req.TotalAmount,
		IdempotencyKey: r.Header.Get(shared.IdempotencyHeader),
		ActorID:        shared.ActorID(r.Context()),
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, ItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Discount:  item.Discount,
			TaxRate:   item.TaxRate,
			Total:     item.Total,
		})
	}
	sale, err := h.service.CreateSale(r.Context(), in)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := httpx.ParsePage(r, 100, 1000)
	customerID, err := httpx.QueryInt64(r, "customer_id")
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
		// date_to names a whole day.
		to = to.Add(24 * time.Hour)
	}
	q := r.URL.Query()
	sales, total, err := h.service.List(r.Context(), ListFilter{
		CustomerID:    customerID,
		PaymentStatus: PaymentStatus(q.Get("payment_status")),
		PaymentMethod: PaymentMethod(q.Get("payment_method")),
		From:          from,
		To:            to,
		Offset:        page.Offset,
		Limit:         page.Limit,
	})
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.NewPageResult(sales, total, page))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := UpdateInput{CustomerID: req.CustomerID, Notes: req.Notes}
	if req.PaymentMethod != nil {
		method := PaymentMethod(*req.PaymentMethod)
		in.PaymentMethod = &method
	}
	if req.PaymentStatus != nil {
		status := PaymentStatus(*req.PaymentStatus)
		in.PaymentStatus = &status
	}
	sale, err := h.service.Update(r.Context(), id, in, shared.ActorID(r.Context()))
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.CancelSale(r.Context(), id, shared.ActorID(r.Context()))
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

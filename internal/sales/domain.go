package sales

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// PaymentMethod is how a sale was settled.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCreditCard   PaymentMethod = "credit_card"
	PaymentDebitCard    PaymentMethod = "debit_card"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentOther        PaymentMethod = "other"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCreditCard, PaymentDebitCard, PaymentBankTransfer, PaymentOther:
		return true
	}
	return false
}

// PaymentStatus tracks settlement and cancellation of a sale.
type PaymentStatus string

const (
	StatusPaid      PaymentStatus = "paid"
	StatusPending   PaymentStatus = "pending"
	StatusCancelled PaymentStatus = "cancelled"
	StatusRefunded  PaymentStatus = "refunded"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPaid, StatusPending, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// MaxNotesLength bounds Sale.Notes.
const MaxNotesLength = 250

// Sale is a committed point-of-sale transaction.
type Sale struct {
	ID             int64           `json:"id"`
	InvoiceNumber  string          `json:"invoice_number"`
	CustomerID     *int64          `json:"customer_id,omitempty"`
	CustomerName   string          `json:"customer_name,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	Notes          string          `json:"notes"`
	CreatedBy      int64           `json:"created_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Items          []SaleItem      `json:"items"`
}

// SaleItem is one line of a sale. Items are immutable once written.
type SaleItem struct {
	ID          int64           `json:"id"`
	SaleID      int64           `json:"sale_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	ProductSKU  string          `json:"product_sku,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Total       decimal.Decimal `json:"total"`
}

// ItemInput is a requested sale line. Total is optional; when present it must
// agree with the derived line total.
type ItemInput struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
	TaxRate   decimal.Decimal
	Total     *decimal.Decimal
}

// CreateInput is the create_sale request.
type CreateInput struct {
	InvoiceNumber  string
	CustomerID     *int64
	Items          []ItemInput
	PaymentMethod  PaymentMethod
	PaymentStatus  PaymentStatus
	Notes          string
	TotalAmount    *decimal.Decimal
	IdempotencyKey string
	ActorID        int64
}

// UpdateInput carries the mutable header fields of a sale.
type UpdateInput struct {
	CustomerID    *int64
	PaymentMethod *PaymentMethod
	PaymentStatus *PaymentStatus
	Notes         *string
}

// ListFilter narrows sale listings.
type ListFilter struct {
	CustomerID    int64
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod
	From          time.Time
	To            time.Time
	Offset        int
	Limit         int
}

var (
	ErrNotFound             = httpx.NewError(httpx.ErrNotFound, "sales: sale not found")
	ErrDuplicateInvoice     = httpx.NewError(httpx.ErrDuplicate, "sales: invoice number already exists")
	ErrNoItems              = httpx.NewError(httpx.ErrValidation, "sales: a sale needs at least one item")
	ErrInvoiceRequired      = httpx.NewError(httpx.ErrValidation, "sales: invoice number is required")
	ErrInvalidPaymentMethod = httpx.NewError(httpx.ErrValidation, "sales: invalid payment method")
	ErrInvalidPaymentStatus = httpx.NewError(httpx.ErrValidation, "sales: invalid payment status")
	ErrNotesTooLong         = httpx.NewError(httpx.ErrValidation, "sales: notes exceed 250 characters")
	ErrInvalidLine          = httpx.NewError(httpx.ErrValidation, "sales: invalid line item")
	ErrTotalMismatch        = httpx.NewError(httpx.ErrValidation, "sales: total does not match line values")
	ErrInactiveProduct      = httpx.NewError(httpx.ErrValidation, "sales: product is inactive")
	ErrCustomerNotFound     = httpx.NewError(httpx.ErrNotFound, "sales: customer not found")
	ErrAlreadyCancelled     = httpx.NewError(httpx.ErrInvalidState, "sales: sale already cancelled")
	ErrCancelledImmutable   = httpx.NewError(httpx.ErrInvalidState, "sales: cancelled sales cannot be updated")
)

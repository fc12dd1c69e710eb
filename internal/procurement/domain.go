package procurement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// Status enumerates purchase order states.
type Status string

const (
	StatusPending           Status = "pending"
	StatusApproved          Status = "approved"
	StatusPartiallyReceived Status = "partially_received"
	StatusReceived          Status = "received"
	StatusCancelled         Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusPartiallyReceived, StatusReceived, StatusCancelled:
		return true
	}
	return false
}

// ReceiptStatus tells whether an order was fully received after a receipt.
type ReceiptStatus string

const (
	ReceiptPartial  ReceiptStatus = "partial"
	ReceiptComplete ReceiptStatus = "complete"
)

// Action is a workflow operation on an existing order.
type Action string

const (
	ActionApprove Action = "approve"
	ActionUpdate  Action = "update"
	ActionCancel  Action = "cancel"
	ActionDelete  Action = "delete"
	ActionReceive Action = "receive"
)

// allowedFrom lists the source states of each action. received and cancelled
// appear nowhere: they are terminal.
var allowedFrom = map[Action][]Status{
	ActionApprove: {StatusPending},
	ActionUpdate:  {StatusPending, StatusApproved},
	ActionCancel:  {StatusPending, StatusApproved},
	ActionDelete:  {StatusPending},
	ActionReceive: {StatusApproved, StatusPartiallyReceived},
}

// CheckTransition returns an invalid state error naming the current status
// when action is not allowed from it.
func CheckTransition(current Status, action Action) error {
	for _, s := range allowedFrom[action] {
		if s == current {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot %s an order in status %s", ErrInvalidState, action, current)
}

// PurchaseOrder is an order placed with a supplier.
type PurchaseOrder struct {
	ID                   int64           `json:"id"`
	OrderNumber          string          `json:"order_number"`
	SupplierID           int64           `json:"supplier_id"`
	SupplierName         string          `json:"supplier_name,omitempty"`
	OrderDate            time.Time       `json:"order_date"`
	ExpectedDeliveryDate *time.Time      `json:"expected_delivery_date,omitempty"`
	Status               Status          `json:"status"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	PaymentTerms         string          `json:"payment_terms"`
	ShippingMethod       string          `json:"shipping_method"`
	Notes                string          `json:"notes"`
	CreatedBy            int64           `json:"created_by,omitempty"`
	ApprovedBy           *int64          `json:"approved_by,omitempty"`
	ApprovedAt           *time.Time      `json:"approved_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	Items                []Item          `json:"items"`
}

// Item is one ordered product line.
type Item struct {
	ID              int64           `json:"id"`
	PurchaseOrderID int64           `json:"purchase_order_id"`
	ProductID       int64           `json:"product_id"`
	ProductName     string          `json:"product_name,omitempty"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Notes           string          `json:"notes"`
}

// Receipt records goods received against an order.
type Receipt struct {
	ID              int64         `json:"id"`
	PurchaseOrderID int64         `json:"purchase_order_id"`
	ReceivedBy      int64         `json:"received_by,omitempty"`
	ReceivedAt      time.Time     `json:"receipt_date"`
	Status          ReceiptStatus `json:"status"`
	Notes           string        `json:"notes"`
	Items           []ReceiptItem `json:"items"`
	// OrderStatus is the order status after this receipt.
	OrderStatus Status `json:"order_status,omitempty"`
}

// ReceiptItem is one received product line.
type ReceiptItem struct {
	ID               int64  `json:"id"`
	ReceiptID        int64  `json:"receipt_id"`
	ProductID        int64  `json:"product_id"`
	ProductName      string `json:"product_name,omitempty"`
	QuantityReceived int    `json:"quantity_received"`
	QuantityRejected int    `json:"quantity_rejected"`
	RejectionReason  string `json:"rejection_reason,omitempty"`
}

// ItemInput is a requested order line.
type ItemInput struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
	Notes     string
}

// CreateInput describes a new order.
type CreateInput struct {
	SupplierID           int64
	ExpectedDeliveryDate *time.Time
	PaymentTerms         string
	ShippingMethod       string
	Notes                string
	Items                []ItemInput
	ActorID              int64
}

// UpdateInput changes header fields and, while pending, the items. Nil
// fields are left untouched; Items == nil keeps the current lines.
type UpdateInput struct {
	SupplierID           *int64
	ExpectedDeliveryDate *time.Time
	PaymentTerms         *string
	ShippingMethod       *string
	Notes                *string
	Items                []ItemInput
	ActorID              int64
}

// ReceiveItemInput is one line of a receipt.
type ReceiveItemInput struct {
	ProductID        int64
	QuantityReceived int
	QuantityRejected int
	RejectionReason  string
}

// ReceiveInput is the receive_order request.
type ReceiveInput struct {
	OrderID        int64
	ReceivedBy     int64
	Notes          string
	Items          []ReceiveItemInput
	IdempotencyKey string
}

// ListFilter narrows order listings.
type ListFilter struct {
	SupplierID int64
	Status     Status
	From       time.Time
	To         time.Time
	Offset     int
	Limit      int
}

var (
	ErrNotFound          = httpx.NewError(httpx.ErrNotFound, "procurement: purchase order not found")
	ErrSupplierNotFound  = httpx.NewError(httpx.ErrNotFound, "procurement: supplier not found")
	ErrProductNotFound   = httpx.NewError(httpx.ErrNotFound, "procurement: product not found")
	ErrInvalidState      = httpx.NewError(httpx.ErrInvalidState, "procurement: invalid state transition")
	ErrValidation        = httpx.NewError(httpx.ErrValidation, "procurement: invalid input")
	ErrNoItems           = httpx.NewError(httpx.ErrValidation, "procurement: an order needs at least one item")
	ErrProductNotOnOrder = httpx.NewError(httpx.ErrValidation, "procurement: product is not part of the order")
	ErrNothingReceived   = httpx.NewError(httpx.ErrValidation, "procurement: receipt has no quantities")
	ErrDuplicateNumber   = httpx.NewError(httpx.ErrDuplicate, "procurement: order number already exists")
)

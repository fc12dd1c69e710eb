package inventory

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// MovementType enumerates the reasons a product's stock can change.
type MovementType string

const (
	// MovementPurchase is stock received from a supplier.
	MovementPurchase MovementType = "purchase"
	// MovementSale is stock leaving through a sale.
	MovementSale MovementType = "sale"
	// MovementAdjustment is a manual correction, positive or negative.
	MovementAdjustment MovementType = "adjustment"
	// MovementReturn is stock coming back, including sale cancellations.
	MovementReturn MovementType = "return"
	// MovementInitial is the opening balance of a product.
	MovementInitial MovementType = "initial"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementPurchase, MovementSale, MovementAdjustment, MovementReturn, MovementInitial:
		return true
	}
	return false
}

// Movement is one append-only ledger row.
type Movement struct {
	ID          int64        `json:"id"`
	ProductID   int64        `json:"product_id"`
	Type        MovementType `json:"movement_type"`
	Quantity    int          `json:"quantity"`
	ReferenceID int64        `json:"reference_id,omitempty"`
	Notes       string       `json:"notes,omitempty"`
	CreatedBy   int64        `json:"created_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	ProductName string       `json:"product_name,omitempty"`
	ProductSKU  string       `json:"product_sku,omitempty"`
}

// StockLevel is the locked view of a product's counter inside a transaction.
type StockLevel struct {
	ProductID     int64
	Name          string
	SKU           string
	Quantity      int
	MinStockLevel int
	IsActive      bool
}

// MovementInput describes a requested stock change.
type MovementInput struct {
	ProductID   int64
	Type        MovementType
	Quantity    int
	ReferenceID int64
	ActorID     int64
	Notes       string
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ProductID int64
	Type      MovementType
	From      time.Time
	To        time.Time
	Offset    int
	Limit     int
}

// Drift describes a product whose counter disagrees with its ledger.
type Drift struct {
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
	Counter   int    `json:"stock_quantity"`
	LedgerSum int    `json:"ledger_sum"`
}

var (
	// ErrNotFound indicates a missing movement.
	ErrNotFound = httpx.NewError(httpx.ErrNotFound, "inventory: movement not found")
	// ErrProductNotFound indicates the product referenced by a movement is missing.
	ErrProductNotFound = httpx.NewError(httpx.ErrNotFound, "inventory: product not found")
	// ErrInvalidQuantity indicates a zero quantity.
	ErrInvalidQuantity = httpx.NewError(httpx.ErrValidation, "inventory: quantity must be non zero")
	// ErrInvalidType indicates an unknown movement type.
	ErrInvalidType = httpx.NewError(httpx.ErrValidation, "inventory: invalid movement type")
	// ErrSaleMovement is returned when a sale movement is posted outside a sale.
	ErrSaleMovement = httpx.NewError(httpx.ErrValidation, "inventory: sale movements are created by sales only")
	// ErrInsufficientStock indicates a sale would drive stock negative.
	ErrInsufficientStock = httpx.NewError(httpx.ErrInsufficientStock, "inventory: insufficient stock")
)

// InsufficientStockError names the product and the quantities involved.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Not enough stock for product %s. Available: %d, requested: %d", e.Name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

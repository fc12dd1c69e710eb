package inventory

import (
	"context"
	"errors"
)

// LedgerStore is the transactional access the ledger needs. Implementations run
// inside the caller's transaction so movements commit or roll back with it.
type LedgerStore interface {
	// LockProduct reads the product counter and holds a row lock until commit.
	LockProduct(ctx context.Context, productID int64) (StockLevel, error)
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
	// ApplyStockDelta adds delta to the counter and returns the new value.
	ApplyStockDelta(ctx context.Context, productID int64, delta int) (int, error)
}

// CheckAvailable returns an InsufficientStockError when requested exceeds the
// locked quantity.
func CheckAvailable(level StockLevel, requested int) error {
	if requested > level.Quantity {
		return &InsufficientStockError{ProductID: level.ProductID, Name: level.Name, Available: level.Quantity, Requested: requested}
	}
	return nil
}

// Record appends one movement and moves the product counter by the same signed
// quantity. Only sale movements are bounded below by the available stock.
func Record(ctx context.Context, store LedgerStore, in MovementInput) (Movement, error) {
	if store == nil {
		return Movement{}, errors.New("inventory: ledger store not configured")
	}
	if in.ProductID <= 0 {
		return Movement{}, ErrProductNotFound
	}
	if !in.Type.Valid() {
		return Movement{}, ErrInvalidType
	}
	if in.Quantity == 0 {
		return Movement{}, ErrInvalidQuantity
	}
	level, err := store.LockProduct(ctx, in.ProductID)
	if err != nil {
		return Movement{}, err
	}
	if in.Type == MovementSale {
		if in.Quantity > 0 {
			return Movement{}, ErrInvalidQuantity
		}
		if err := CheckAvailable(level, -in.Quantity); err != nil {
			return Movement{}, err
		}
	}
	movement, err := store.InsertMovement(ctx, Movement{
		ProductID:   in.ProductID,
		Type:        in.Type,
		Quantity:    in.Quantity,
		ReferenceID: in.ReferenceID,
		Notes:       in.Notes,
		CreatedBy:   in.ActorID,
	})
	if err != nil {
		return Movement{}, err
	}
	if _, err := store.ApplyStockDelta(ctx, in.ProductID, in.Quantity); err != nil {
		return Movement{}, err
	}
	movement.ProductName = level.Name
	movement.ProductSKU = level.SKU
	return movement, nil
}

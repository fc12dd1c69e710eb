// Package inventorytest provides an in-memory stock ledger for tests of the
// modules that move stock.
package inventorytest

import (
	"context"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
)

// Store is an in-memory inventory.LedgerStore with snapshot support so callers
// can emulate transaction rollback.
type Store struct {
	mu        sync.Mutex
	products  map[int64]inventory.StockLevel
	movements []inventory.Movement
	nextID    int64
	// FailInsertFor makes InsertMovement fail for the given product id.
	FailInsertFor map[int64]error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{products: make(map[int64]inventory.StockLevel)}
}

// AddProduct seeds a product. A positive opening quantity is booked as an
// initial movement so the ledger and counter agree.
func (s *Store) AddProduct(level inventory.StockLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qty := level.Quantity
	level.Quantity = 0
	s.products[level.ProductID] = level
	if qty != 0 {
		s.nextID++
		s.movements = append(s.movements, inventory.Movement{ID: s.nextID, ProductID: level.ProductID, Type: inventory.MovementInitial, Quantity: qty, CreatedAt: time.Now()})
		level.Quantity = qty
		s.products[level.ProductID] = level
	}
}

// SetActive toggles a product's active flag.
func (s *Store) SetActive(productID int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	level := s.products[productID]
	level.IsActive = active
	s.products[productID] = level
}

// Level returns the current counter for a product.
func (s *Store) Level(productID int64) inventory.StockLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID]
}

// Movements returns a copy of every movement of productID, or all movements
// when productID is zero.
func (s *Store) Movements(productID int64) []inventory.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []inventory.Movement{}
	for _, m := range s.movements {
		if productID == 0 || m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out
}

// LedgerSum returns the sum of movement quantities for productID.
func (s *Store) LedgerSum(productID int64) int {
	total := 0
	for _, m := range s.Movements(productID) {
		total += m.Quantity
	}
	return total
}

// Snapshot captures the current state.
func (s *Store) Snapshot() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	products := make(map[int64]inventory.StockLevel, len(s.products))
	for k, v := range s.products {
		products[k] = v
	}
	movements := append([]inventory.Movement(nil), s.movements...)
	nextID := s.nextID
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.products = products
		s.movements = movements
		s.nextID = nextID
	}
}

// LockProduct implements inventory.LedgerStore.
func (s *Store) LockProduct(ctx context.Context, productID int64) (inventory.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	level, ok := s.products[productID]
	if !ok {
		return inventory.StockLevel{}, inventory.ErrProductNotFound
	}
	return level, nil
}

// InsertMovement implements inventory.LedgerStore.
func (s *Store) InsertMovement(ctx context.Context, m inventory.Movement) (inventory.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.FailInsertFor[m.ProductID]; ok {
		return inventory.Movement{}, err
	}
	s.nextID++
	m.ID = s.nextID
	m.CreatedAt = time.Now()
	s.movements = append(s.movements, m)
	return m, nil
}

// ApplyStockDelta implements inventory.LedgerStore.
func (s *Store) ApplyStockDelta(ctx context.Context, productID int64, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	level, ok := s.products[productID]
	if !ok {
		return 0, inventory.ErrProductNotFound
	}
	level.Quantity += delta
	s.products[productID] = level
	return level.Quantity, nil
}

// RepairCounters rewrites counters from the ledger.
func (s *Store) RepairCounters(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sums := make(map[int64]int, len(s.products))
	for _, m := range s.movements {
		sums[m.ProductID] += m.Quantity
	}
	var repaired int64
	for id, level := range s.products {
		if level.Quantity != sums[id] {
			level.Quantity = sums[id]
			s.products[id] = level
			repaired++
		}
	}
	return repaired, nil
}

// Drift lists products whose counter differs from the ledger.
func (s *Store) Drift() []inventory.Drift {
	s.mu.Lock()
	defer s.mu.Unlock()
	sums := make(map[int64]int, len(s.products))
	for _, m := range s.movements {
		sums[m.ProductID] += m.Quantity
	}
	drift := []inventory.Drift{}
	for id, level := range s.products {
		if level.Quantity != sums[id] {
			drift = append(drift, inventory.Drift{ProductID: id, SKU: level.SKU, Counter: level.Quantity, LedgerSum: sums[id]})
		}
	}
	return drift
}

// CorruptCounter overwrites a counter without a movement.
func (s *Store) CorruptCounter(productID int64, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	level := s.products[productID]
	level.Quantity = qty
	s.products[productID] = level
}

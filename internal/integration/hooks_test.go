package integration

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
)

type fakeCache struct {
	bumps int
	err   error
}

func (c *fakeCache) Bump(ctx context.Context) error {
	c.bumps++
	return c.err
}

var _ StockReader = (*inventory.Repository)(nil)

type fakeStock struct {
	levels []inventory.StockLevel
	asked  []int64
}

func (s *fakeStock) StockLevels(ctx context.Context, ids []int64) ([]inventory.StockLevel, error) {
	s.asked = ids
	return s.levels, nil
}

type fakeMetrics struct {
	sources []string
}

func (m *fakeMetrics) ObserveStockChange(source string) {
	m.sources = append(m.sources, source)
}

func TestHandleStockChangedWarnsOnLowStock(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cache := &fakeCache{}
	stock := &fakeStock{levels: []inventory.StockLevel{
		{ProductID: 1, SKU: "A", Quantity: 2, MinStockLevel: 5, IsActive: true},
		{ProductID: 2, SKU: "B", Quantity: 50, MinStockLevel: 5, IsActive: true},
		{ProductID: 3, SKU: "C", Quantity: 0, MinStockLevel: 5, IsActive: false},
	}}
	metrics := &fakeMetrics{}
	hooks := NewHooks(cache, stock, metrics, logger)

	err := hooks.HandleStockChanged(context.Background(), inventory.StockChangedEvent{Source: "sales", ProductIDs: []int64{1, 2, 3}})
	require.NoError(t, err)
	require.Equal(t, 1, cache.bumps)
	require.Equal(t, []int64{1, 2, 3}, stock.asked)
	require.Equal(t, []string{"sales"}, metrics.sources)
	require.Contains(t, buf.String(), "sku=A")
	require.NotContains(t, buf.String(), "sku=B")
	require.NotContains(t, buf.String(), "sku=C")
}

func TestHandleStockChangedReturnsCacheError(t *testing.T) {
	boom := errors.New("redis down")
	hooks := NewHooks(&fakeCache{err: boom}, nil, nil, nil)
	err := hooks.HandleStockChanged(context.Background(), inventory.StockChangedEvent{Source: "inventory"})
	require.ErrorIs(t, err, boom)
}

func TestNilHooks(t *testing.T) {
	var hooks *Hooks
	require.NoError(t, hooks.HandleStockChanged(context.Background(), inventory.StockChangedEvent{}))
}

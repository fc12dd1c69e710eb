package integration

import (
	"context"
	"errors"
	"log/slog"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
)

// CacheInvalidator drops derived report data.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// StockReader looks up counters for products touched by a stock change.
type StockReader interface {
	StockLevels(ctx context.Context, productIDs []int64) ([]inventory.StockLevel, error)
}

// StockMetrics counts committed stock changes.
type StockMetrics interface {
	ObserveStockChange(source string)
}

// Hooks fans committed stock changes out to the report cache, low stock
// warnings and metrics.
type Hooks struct {
	cache   CacheInvalidator
	stock   StockReader
	metrics StockMetrics
	logger  *slog.Logger
}

// NewHooks constructs integration hooks. Every dependency is optional.
func NewHooks(cache CacheInvalidator, stock StockReader, metrics StockMetrics, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{cache: cache, stock: stock, metrics: metrics, logger: logger}
}

// HandleStockChanged reacts to a committed stock change. Failures are joined
// and returned so the caller can log them; the change itself stays committed.
func (h *Hooks) HandleStockChanged(ctx context.Context, evt inventory.StockChangedEvent) error {
	if h == nil {
		return nil
	}
	if h.metrics != nil {
		h.metrics.ObserveStockChange(evt.Source)
	}
	var errs []error
	if h.cache != nil {
		if err := h.cache.Bump(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if h.stock != nil && len(evt.ProductIDs) > 0 {
		levels, err := h.stock.StockLevels(ctx, evt.ProductIDs)
		if err != nil {
			errs = append(errs, err)
		}
		for _, level := range levels {
			if level.IsActive && level.Quantity <= level.MinStockLevel {
				h.logger.Warn("product at or below minimum stock",
					slog.Int64("product_id", level.ProductID),
					slog.String("sku", level.SKU),
					slog.Int("stock_quantity", level.Quantity),
					slog.Int("min_stock_level", level.MinStockLevel),
					slog.String("source", evt.Source),
				)
			}
		}
	}
	return errors.Join(errs...)
}

var _ inventory.EventHandler = (*Hooks)(nil)

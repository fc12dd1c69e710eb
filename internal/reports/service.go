package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
)

// Store runs the aggregate queries.
type Store interface {
	SalesByPeriod(ctx context.Context, from, to time.Time, groupBy GroupBy) ([]SalesPeriod, error)
	ProductSales(ctx context.Context, filter ProductFilter) ([]ProductSales, error)
	InventoryValue(ctx context.Context) (InventoryValue, error)
	CustomerSales(ctx context.Context, rng Range, limit int) ([]CustomerSales, error)
	Movements(ctx context.Context, filter MovementFilter) ([]MovementRow, error)
	LowStock(ctx context.Context, thresholdPct int) ([]LowStockItem, error)
	ActiveCustomers(ctx context.Context) (int, error)
}

// Service coordinates report queries with the cache layer. Concurrent
// requests for the same key share one load.
type Service struct {
	store  Store
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires a Store with a Cache helper. cache may be nil.
func NewService(store Store, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, logger: logger, now: time.Now}
}

// Now returns the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

func cached[T any](ctx context.Context, s *Service, load func(context.Context) (T, error), parts ...string) (T, error) {
	var zero T
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		return zero, err
	}
	ch := s.group.DoChan(key, func() (any, error) {
		var out T
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			return load(ctx)
		})
		return out, err
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// SalesReport groups non-cancelled sales in rng by day, week or month.
func (s *Service) SalesReport(ctx context.Context, rng Range, groupBy GroupBy) ([]SalesPeriod, error) {
	if groupBy == "" {
		groupBy = GroupDay
	}
	if !groupBy.Valid() {
		return nil, ErrInvalidGroupBy
	}
	if err := validateRange(rng); err != nil {
		return nil, err
	}
	return cached(ctx, s, func(ctx context.Context) ([]SalesPeriod, error) {
		from, to := rng.Bounds()
		return s.store.SalesByPeriod(ctx, from, to, groupBy)
	}, "sales", rng.key(), string(groupBy))
}

// DailySales summarises sales per day.
func (s *Service) DailySales(ctx context.Context, rng Range) ([]DailySales, error) {
	periods, err := s.SalesReport(ctx, rng, GroupDay)
	if err != nil {
		return nil, err
	}
	out := make([]DailySales, 0, len(periods))
	for _, p := range periods {
		out = append(out, DailySales{Date: p.Date, TotalSales: p.TotalSales, TotalAmount: p.Revenue})
	}
	return out, nil
}

// ProductReport ranks products by quantity sold.
func (s *Service) ProductReport(ctx context.Context, filter ProductFilter) ([]ProductSales, error) {
	if err := validateRange(filter.Range); err != nil {
		return nil, err
	}
	filter.Limit = clamp(filter.Limit, 50, maxProductLimit)
	return cached(ctx, s, func(ctx context.Context) ([]ProductSales, error) {
		return s.store.ProductSales(ctx, filter)
	}, "products", filter.key(), strconv.FormatInt(filter.CategoryID, 10), strconv.Itoa(filter.Limit))
}

// TopProducts returns the best sellers of rng, ten by default.
func (s *Service) TopProducts(ctx context.Context, rng Range, limit int) ([]ProductSales, error) {
	return s.ProductReport(ctx, ProductFilter{Range: rng, Limit: clamp(limit, 10, maxProductLimit)})
}

// InventoryValue values active stock.
func (s *Service) InventoryValue(ctx context.Context) (InventoryValue, error) {
	return cached(ctx, s, s.store.InventoryValue, "inventory_value")
}

// CustomerReport ranks customers by spend.
func (s *Service) CustomerReport(ctx context.Context, rng Range, limit int) ([]CustomerSales, error) {
	if err := validateRange(rng); err != nil {
		return nil, err
	}
	limit = clamp(limit, 20, maxCustomerLimit)
	return cached(ctx, s, func(ctx context.Context) ([]CustomerSales, error) {
		return s.store.CustomerSales(ctx, rng, limit)
	}, "customers", rng.key(), strconv.Itoa(limit))
}

// MovementReport lists ledger entries of rng.
func (s *Service) MovementReport(ctx context.Context, filter MovementFilter) ([]MovementRow, error) {
	if err := validateRange(filter.Range); err != nil {
		return nil, err
	}
	if filter.MovementType != "" && !inventory.MovementType(filter.MovementType).Valid() {
		return nil, fmt.Errorf("%w: unknown movement type %q", inventory.ErrInvalidType, filter.MovementType)
	}
	return cached(ctx, s, func(ctx context.Context) ([]MovementRow, error) {
		return s.store.Movements(ctx, filter)
	}, "movements", filter.key(), strconv.FormatInt(filter.ProductID, 10), filter.MovementType)
}

// LowStock lists products within thresholdPct percent above their minimum.
func (s *Service) LowStock(ctx context.Context, thresholdPct int) ([]LowStockItem, error) {
	if thresholdPct < 0 {
		return nil, ErrInvalidThreshold
	}
	return cached(ctx, s, func(ctx context.Context) ([]LowStockItem, error) {
		return s.store.LowStock(ctx, thresholdPct)
	}, "low_stock", strconv.Itoa(thresholdPct))
}

func clamp(v, fallback, ceiling int) int {
	if v <= 0 {
		return fallback
	}
	if v > ceiling {
		return ceiling
	}
	return v
}

// ActiveCustomers counts active customers. The count is not cached.
func (s *Service) ActiveCustomers(ctx context.Context) (int, error) {
	return s.store.ActiveCustomers(ctx)
}

package reports

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Dashboard serves the home screen widgets. When degrade is set a failing
// widget is logged and replaced with fixed sample data so the screen always
// renders; the second return value reports that substitution.
type Dashboard struct {
	service *Service
	degrade bool
	logger  *slog.Logger
}

// NewDashboard builds the dashboard facade.
func NewDashboard(service *Service, degrade bool, logger *slog.Logger) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dashboard{service: service, degrade: degrade, logger: logger}
}

func degraded[T any](d *Dashboard, widget string, value T, err error, sample func() T) (T, bool, error) {
	if err == nil {
		return value, false, nil
	}
	if !d.degrade {
		var zero T
		return zero, false, err
	}
	d.logger.Error("dashboard widget failed, serving sample data", slog.String("widget", widget), slog.Any("error", err))
	return sample(), true, nil
}

// Sales returns revenue per day for the last seven days.
func (d *Dashboard) Sales(ctx context.Context, groupBy GroupBy) ([]DashboardSalesPoint, bool, error) {
	periods, err := d.service.SalesReport(ctx, TrailingDays(d.service.Now(), 7), groupBy)
	var points []DashboardSalesPoint
	if err == nil {
		points = make([]DashboardSalesPoint, 0, len(periods))
		for _, p := range periods {
			points = append(points, DashboardSalesPoint{Date: p.Date, Total: p.Revenue})
		}
	}
	return degraded(d, "sales", points, err, d.sampleSales)
}

// TopProducts returns the best sellers of the last thirty days.
func (d *Dashboard) TopProducts(ctx context.Context, limit int) ([]DashboardProduct, bool, error) {
	rows, err := d.service.TopProducts(ctx, TrailingDays(d.service.Now(), 30), limit)
	var products []DashboardProduct
	if err == nil {
		products = make([]DashboardProduct, 0, len(rows))
		for _, r := range rows {
			products = append(products, DashboardProduct{ID: r.ProductID, Name: r.ProductName, Sales: r.QuantitySold, Revenue: r.TotalRevenue})
		}
	}
	return degraded(d, "top_products", products, err, sampleProducts)
}

// LowStock returns products at or near their minimum stock.
func (d *Dashboard) LowStock(ctx context.Context) ([]DashboardLowStock, bool, error) {
	rows, err := d.service.LowStock(ctx, 20)
	var items []DashboardLowStock
	if err == nil {
		items = make([]DashboardLowStock, 0, len(rows))
		for _, r := range rows {
			items = append(items, DashboardLowStock{ID: r.ProductID, Name: r.ProductName, Stock: r.CurrentStock, MinStock: r.MinStockLevel})
		}
	}
	return degraded(d, "low_stock", items, err, sampleLowStock)
}

// Metrics returns the headline numbers of the last thirty days.
func (d *Dashboard) Metrics(ctx context.Context) (DashboardMetrics, bool, error) {
	var (
		periods   []SalesPeriod
		customers int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		periods, err = d.service.SalesReport(gctx, TrailingDays(d.service.Now(), 30), GroupMonth)
		return err
	})
	g.Go(func() error {
		var err error
		customers, err = d.service.ActiveCustomers(gctx)
		return err
	})
	err := g.Wait()

	var m DashboardMetrics
	if err == nil {
		revenue := decimal.Zero
		for _, p := range periods {
			m.TotalSales += p.TotalSales
			revenue = revenue.Add(p.Revenue)
		}
		m.MonthlyRevenue = revenue.Round(2)
		m.AverageOrderValue = decimal.Zero
		if m.TotalSales > 0 {
			m.AverageOrderValue = revenue.Div(decimal.NewFromInt(int64(m.TotalSales))).Round(2)
		}
		m.CustomerCount = customers
	}
	return degraded(d, "metrics", m, err, sampleMetrics)
}

func (d *Dashboard) sampleSales() []DashboardSalesPoint {
	today := truncateDay(d.service.Now())
	out := make([]DashboardSalesPoint, 0, 7)
	for i := 0; i < 7; i++ {
		out = append(out, DashboardSalesPoint{
			Date:  today.AddDate(0, 0, -i).Format(dateLayout),
			Total: decimal.NewFromInt(int64(1000 - i*100)),
		})
	}
	return out
}

func sampleProducts() []DashboardProduct {
	out := make([]DashboardProduct, 0, 5)
	for i := 1; i <= 5; i++ {
		out = append(out, DashboardProduct{
			ID:      int64(i),
			Name:    fmt.Sprintf("Product %d", i),
			Sales:   100 - i*10,
			Revenue: decimal.NewFromInt(int64(1000 - i*100)),
		})
	}
	return out
}

func sampleLowStock() []DashboardLowStock {
	out := make([]DashboardLowStock, 0, 3)
	for i := 1; i <= 3; i++ {
		out = append(out, DashboardLowStock{ID: int64(i), Name: fmt.Sprintf("Low stock product %d", i), Stock: i, MinStock: i * 3})
	}
	return out
}

func sampleMetrics() DashboardMetrics {
	return DashboardMetrics{
		TotalSales:        156,
		MonthlyRevenue:    decimal.RequireFromString("28950.75"),
		AverageOrderValue: decimal.RequireFromString("185.58"),
		CustomerCount:     48,
	}
}

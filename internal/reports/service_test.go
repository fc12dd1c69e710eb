package reports

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/rbac"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type fakeStore struct {
	mu         sync.Mutex
	periods    []SalesPeriod
	products   []ProductSales
	lowStock   []LowStockItem
	customers  int
	err        error
	salesCalls int
	lastFrom   time.Time
	lastTo     time.Time
}

func (f *fakeStore) SalesByPeriod(ctx context.Context, from, to time.Time, groupBy GroupBy) ([]SalesPeriod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.salesCalls++
	f.lastFrom, f.lastTo = from, to
	return f.periods, f.err
}

func (f *fakeStore) ProductSales(ctx context.Context, filter ProductFilter) ([]ProductSales, error) {
	return f.products, f.err
}

func (f *fakeStore) InventoryValue(ctx context.Context) (InventoryValue, error) {
	return InventoryValue{ByCategory: []CategoryValue{}}, f.err
}

func (f *fakeStore) CustomerSales(ctx context.Context, rng Range, limit int) ([]CustomerSales, error) {
	return []CustomerSales{}, f.err
}

func (f *fakeStore) Movements(ctx context.Context, filter MovementFilter) ([]MovementRow, error) {
	return []MovementRow{}, f.err
}

func (f *fakeStore) LowStock(ctx context.Context, thresholdPct int) ([]LowStockItem, error) {
	return f.lowStock, f.err
}

func (f *fakeStore) ActiveCustomers(ctx context.Context) (int, error) {
	return f.customers, f.err
}

var fixedNow = time.Date(2025, 3, 14, 15, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, store Store) (*Service, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	svc := NewService(store, cache, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc, cache
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func samplePeriods() []SalesPeriod {
	return []SalesPeriod{
		{Date: "2025-03-13", TotalSales: 2, Revenue: dec("1000.50"), Taxes: dec("90"), NetRevenue: dec("910.50")},
		{Date: "2025-03-14", TotalSales: 1, Revenue: dec("234"), Taxes: dec("20"), NetRevenue: dec("214")},
	}
}

func TestSalesReportCachesUntilBump(t *testing.T) {
	store := &fakeStore{periods: samplePeriods()}
	svc, cache := newTestService(t, store)
	ctx := context.Background()
	rng := Range{From: fixedNow.AddDate(0, 0, -1), To: fixedNow}

	first, err := svc.SalesReport(ctx, rng, "")
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.True(t, first[0].Revenue.Equal(dec("1000.50")))
	require.Equal(t, time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC), store.lastFrom)
	require.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), store.lastTo)

	_, err = svc.SalesReport(ctx, rng, GroupDay)
	require.NoError(t, err)
	require.Equal(t, 1, store.salesCalls)

	require.NoError(t, cache.Bump(ctx))
	_, err = svc.SalesReport(ctx, rng, GroupDay)
	require.NoError(t, err)
	require.Equal(t, 2, store.salesCalls)

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), ver)
}

func TestReportValidation(t *testing.T) {
	svc, _ := newTestService(t, &fakeStore{})
	ctx := context.Background()

	_, err := svc.SalesReport(ctx, TrailingDays(fixedNow, 7), "year")
	require.ErrorIs(t, err, ErrInvalidGroupBy)

	_, err = svc.SalesReport(ctx, Range{From: fixedNow, To: fixedNow.AddDate(0, 0, -1)}, GroupDay)
	require.ErrorIs(t, err, ErrInvalidRange)
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.MovementReport(ctx, MovementFilter{Range: TrailingDays(fixedNow, 30), MovementType: "theft"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.LowStock(ctx, -5)
	require.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestLowStockClassification(t *testing.T) {
	critical := LowStockItem{CurrentStock: 2, MinStockLevel: 5}
	critical.classify()
	require.Equal(t, StockCritical, critical.Status)
	require.True(t, critical.StockPercentage.Equal(dec("40")))

	low := LowStockItem{CurrentStock: 6, MinStockLevel: 5}
	low.classify()
	require.Equal(t, StockLow, low.Status)
	require.True(t, low.StockPercentage.Equal(dec("120")))

	zeroMin := LowStockItem{CurrentStock: 0, MinStockLevel: 0}
	zeroMin.classify()
	require.Equal(t, StockCritical, zeroMin.Status)
}

func TestDailySalesFromPeriods(t *testing.T) {
	svc, _ := newTestService(t, &fakeStore{periods: samplePeriods()})
	rows, err := svc.DailySales(context.Background(), TrailingDays(fixedNow, 30))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "2025-03-13", rows[0].Date)
	require.Equal(t, 2, rows[0].TotalSales)
	require.Equal(t, "1000.50", rows[0].TotalAmount.StringFixed(2))
	require.Equal(t, "2025-03-14", rows[1].Date)
	require.Equal(t, 1, rows[1].TotalSales)
	require.Equal(t, "234.00", rows[1].TotalAmount.StringFixed(2))
}

func TestDashboardDegradesToSampleData(t *testing.T) {
	svc, _ := newTestService(t, &fakeStore{err: errors.New("connection refused")})
	ctx := context.Background()

	dash := NewDashboard(svc, true, nil)
	points, degraded, err := dash.Sales(ctx, GroupDay)
	require.NoError(t, err)
	require.True(t, degraded)
	require.Len(t, points, 7)
	require.Equal(t, "2025-03-14", points[0].Date)
	require.True(t, points[0].Total.Equal(dec("1000")))

	metrics, degraded, err := dash.Metrics(ctx)
	require.NoError(t, err)
	require.True(t, degraded)
	require.Equal(t, 156, metrics.TotalSales)

	products, _, err := dash.TopProducts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, products, 5)

	strict := NewDashboard(svc, false, nil)
	_, _, err = strict.LowStock(ctx)
	require.EqualError(t, err, "connection refused")
}

func TestDashboardMetrics(t *testing.T) {
	store := &fakeStore{periods: samplePeriods(), customers: 12}
	svc, _ := newTestService(t, store)
	metrics, degraded, err := NewDashboard(svc, true, nil).Metrics(context.Background())
	require.NoError(t, err)
	require.False(t, degraded)
	require.Equal(t, 3, metrics.TotalSales)
	require.True(t, metrics.MonthlyRevenue.Equal(dec("1234.50")))
	require.True(t, metrics.AverageOrderValue.Equal(dec("411.50")))
	require.Equal(t, 12, metrics.CustomerCount)
}

func TestExporterWritesAndOpens(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	exp := NewExporter(dir)

	out, err := exp.Export("sales_report_2025-03-13_2025-03-14", FormatJSON, samplePeriods())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out.Filename, "sales_report_2025-03-13_2025-03-14_"))
	require.Equal(t, "Sales Report: 3 sales, revenue 1,234.50", out.Summary)

	f, err := exp.Open(out.Filename)
	require.NoError(t, err)
	raw, err := io.ReadAll(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	require.Contains(t, string(raw), `"report": "Sales Report"`)

	csvOut, err := exp.Export("low_stock_report_2025-03-14", FormatCSV, []LowStockItem{{ProductID: 4, ProductName: "Susu", SKU: "SS", CurrentStock: 1, MinStockLevel: 3, StockPercentage: dec("33.33"), Status: StockCritical}})
	require.NoError(t, err)
	raw, err = os.ReadFile(filepath.Join(dir, csvOut.Filename))
	require.NoError(t, err)
	require.Equal(t, "product_id,product_name,sku,category,current_stock,min_stock_level,stock_percentage,status\n4,Susu,SS,,1,3,33.33,critical\n", string(raw))

	_, err = exp.Export("x", "pdf", nil)
	require.ErrorIs(t, err, ErrInvalidFormat)
	_, err = exp.Open("../secrets.json")
	require.ErrorIs(t, err, ErrInvalidFilename)
	_, err = exp.Open("missing.json")
	require.ErrorIs(t, err, ErrReportNotFound)
}

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := shared.Principal{UserID: 3, Username: "cashier", IsActive: true}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
		})
	})
	r.Route("/reports", h.MountRoutes)
	r.Route("/sales/report", h.MountSalesRoutes)
	return r
}

func TestHandlerEndpoints(t *testing.T) {
	store := &fakeStore{periods: samplePeriods()}
	svc, _ := newTestService(t, store)
	exp := NewExporter(t.TempDir())
	h := NewHandler(nil, svc, NewDashboard(svc, true, nil), exp, rbac.Middleware{})
	router := newTestRouter(h)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/reports/sales?start_date=2025-03-01&end_date=2025-03-14&group_by=day")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"net_revenue":"910.5"`)

	rec = get("/reports/sales?group_by=hour")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get("/reports/sales?export_format=json")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"filename":"sales_report_2025-02-12_2025-03-14_`)

	rec = get("/sales/report/daily?days=7")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total_amount":"234"`)

	rec = get("/reports/download/nothing-here.csv")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = get("/reports/dashboard/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get(DegradedHeader))

	store.err = errors.New("boom")
	rec = get("/reports/dashboard/low-stock")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "true", rec.Header().Get(DegradedHeader))
	require.Contains(t, rec.Body.String(), `"minStock":3`)
}

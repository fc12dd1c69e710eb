package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/internal/rbac"
	"github.com/odyssey-erp/odyssey-pos/internal/reports"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type fakeReporter struct {
	rng     reports.Range
	groupBy reports.GroupBy
	rows    []reports.SalesPeriod
	err     error
}

func (f *fakeReporter) SalesReport(_ context.Context, rng reports.Range, groupBy reports.GroupBy) ([]reports.SalesPeriod, error) {
	f.rng = rng
	f.groupBy = groupBy
	return f.rows, f.err
}

type fakeWriter struct {
	filename string
	data     any
}

func (f *fakeWriter) Write(filename string, data any) (reports.Exported, error) {
	f.filename = filename
	f.data = data
	return reports.Exported{Filename: filename, Summary: "ok"}, nil
}

type fakeLowStock struct {
	threshold int
	items     []reports.LowStockItem
}

func (f *fakeLowStock) LowStock(_ context.Context, thresholdPct int) ([]reports.LowStockItem, error) {
	f.threshold = thresholdPct
	return f.items, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func gatherValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue metrics
				}
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestNewTask(t *testing.T) {
	task, err := NewTask(TaskDailySalesReport)
	require.NoError(t, err)
	require.Equal(t, TaskDailySalesReport, task.Type())

	task, err = NewTask(TaskLowStockCheck)
	require.NoError(t, err)
	var payload LowStockPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Zero(t, payload.ThresholdPercentage)

	_, err = NewTask("inventory:recount")
	require.ErrorIs(t, err, ErrUnknownTask)
}

func TestDailySalesReportDefaultsToYesterday(t *testing.T) {
	reg := prometheus.NewRegistry()
	reporter := &fakeReporter{rows: []reports.SalesPeriod{{Date: "2025-03-13"}, {Date: "2025-03-14"}}}
	writer := &fakeWriter{}
	job := NewDailySalesReportJob(reporter, writer, quietLogger(), jobmetrics.NewMetrics(reg))
	job.clock = func() time.Time { return time.Date(2025, 3, 14, 1, 0, 0, 0, time.UTC) }

	task, err := NewDailySalesReportTask(DailySalesPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, reports.GroupDay, reporter.groupBy)
	require.Equal(t, "auto_sales_report_2025-03-13_2025-03-14.json", writer.filename)
	require.Len(t, writer.data, 2)
	require.Equal(t, 2.0, gatherValue(t, reg, "pos_report_rows_total", map[string]string{"report": "daily_sales"}))
	require.Equal(t, 1.0, gatherValue(t, reg, "pos_jobs_total", map[string]string{"job": TaskDailySalesReport, "status": "success"}))
}

func TestDailySalesReportPayloadRange(t *testing.T) {
	reporter := &fakeReporter{}
	writer := &fakeWriter{}
	job := NewDailySalesReportJob(reporter, writer, quietLogger(), nil)

	task, err := NewDailySalesReportTask(DailySalesPayload{From: "2025-01-01", To: "2025-01-31"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, "auto_sales_report_2025-01-01_2025-01-31.json", writer.filename)

	bad, err := NewDailySalesReportTask(DailySalesPayload{From: "01/01/2025"})
	require.NoError(t, err)
	err = job.Handle(context.Background(), bad)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestDailySalesReportFailureCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	boom := errors.New("db down")
	job := NewDailySalesReportJob(&fakeReporter{err: boom}, &fakeWriter{}, quietLogger(), jobmetrics.NewMetrics(reg))

	task, err := NewDailySalesReportTask(DailySalesPayload{})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
	require.Equal(t, 1.0, gatherValue(t, reg, "pos_jobs_failures_total", map[string]string{"job": TaskDailySalesReport}))
}

func TestLowStockCheckCountsCritical(t *testing.T) {
	reg := prometheus.NewRegistry()
	source := &fakeLowStock{items: []reports.LowStockItem{
		{ProductID: 1, SKU: "A", CurrentStock: 0, MinStockLevel: 5, Status: reports.StockCritical},
		{ProductID: 2, SKU: "B", CurrentStock: 6, MinStockLevel: 5, Status: reports.StockLow},
		{ProductID: 3, SKU: "C", CurrentStock: 2, MinStockLevel: 2, Status: reports.StockCritical},
	}}
	job := NewLowStockCheckJob(source, quietLogger(), jobmetrics.NewMetrics(reg))

	task, err := NewLowStockCheckTask(LowStockPayload{ThresholdPercentage: 20})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 20, source.threshold)
	require.Equal(t, 2.0, gatherValue(t, reg, "pos_low_stock_products", nil))
}

func TestLowStockCheckRejectsBadPayload(t *testing.T) {
	job := NewLowStockCheckJob(&fakeLowStock{}, quietLogger(), nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskLowStockCheck, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

type fakeEnqueuer struct {
	enqueued []string
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, taskType string) (*asynq.TaskInfo, error) {
	if _, err := NewTask(taskType); err != nil {
		return nil, err
	}
	f.enqueued = append(f.enqueued, taskType)
	return &asynq.TaskInfo{ID: "task-1", Type: taskType, Queue: QueueDefault}, nil
}

func newTestRouter(h *Handler, admin bool) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: 1, Username: "u", IsActive: true, IsAdmin: admin})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/jobs", h.MountRoutes)
	return r
}

func TestHandlerHealthAndTrigger(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	inspector := fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 2, Retry: 1}}
	h := NewHandler(inspector, enqueuer, rbac.Middleware{Logger: quietLogger()}, quietLogger())
	admin := newTestRouter(h, true)
	clerk := newTestRouter(h, false)

	rec := httptest.NewRecorder()
	clerk.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, 2, health.Pending)
	require.Equal(t, 1, health.Retry)

	rec = httptest.NewRecorder()
	clerk.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/"+TaskLowStockCheck, nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	admin.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/"+TaskLowStockCheck, nil))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Equal(t, []string{TaskLowStockCheck}, enqueuer.enqueued)

	rec = httptest.NewRecorder()
	admin.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/unknown", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerHealthUnavailable(t *testing.T) {
	h := NewHandler(fakeInspector{err: errors.New("dial tcp: refused")}, nil, rbac.Middleware{}, quietLogger())
	router := newTestRouter(h, true)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/"+TaskDailySalesReport, nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

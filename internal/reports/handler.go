package reports

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/rbac"
)

// DegradedHeader is set on dashboard responses that carry sample data.
const DegradedHeader = "X-Dashboard-Degraded"

// Handler exposes reports over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	dashboard *Dashboard
	exporter  *Exporter
	rbac      rbac.Middleware
}

// NewHandler builds the reports handler.
func NewHandler(logger *slog.Logger, service *Service, dashboard *Dashboard, exporter *Exporter, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, dashboard: dashboard, exporter: exporter, rbac: rbac}
}

// MountRoutes registers /reports endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.RoleUser))
		r.Get("/sales", h.sales)
		r.Get("/products", h.products)
		r.Get("/customers", h.customers)
		r.Get("/inventory/value", h.inventoryValue)
		r.Get("/inventory/movements", h.movements)
		r.Get("/inventory/low-stock", h.lowStock)
		r.Get("/download/{filename}", h.download)
		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/sales", h.dashboardSales)
			r.Get("/products", h.dashboardProducts)
			r.Get("/low-stock", h.dashboardLowStock)
			r.Get("/metrics", h.dashboardMetrics)
		})
	})
}

// MountSalesRoutes registers the sales summaries served under /sales/report.
func (h *Handler) MountSalesRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.RoleUser))
		r.Get("/daily", h.dailySales)
		r.Get("/products", h.topProducts)
	})
}

type exportResponse struct {
	Exported
	Data any `json:"data"`
}

// respond answers with data, exporting it first when export_format is set.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, name string, data any) {
	format := r.URL.Query().Get("export_format")
	if format == "" {
		httpx.JSON(w, http.StatusOK, data)
		return
	}
	exported, err := h.exporter.Export(name, format, data)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, exportResponse{Exported: exported, Data: data})
}

// parseRange reads start_date and end_date, defaulting to the trailing days.
func (h *Handler) parseRange(r *http.Request, days int) (Range, error) {
	rng := TrailingDays(h.service.Now(), days)
	from, err := httpx.QueryDate(r, "start_date")
	if err != nil {
		return Range{}, err
	}
	to, err := httpx.QueryDate(r, "end_date")
	if err != nil {
		return Range{}, err
	}
	if !from.IsZero() {
		rng.From = from
	}
	if !to.IsZero() {
		rng.To = to
	}
	return rng, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, httpx.NewError(httpx.ErrValidation, fmt.Sprintf("reports: %s must be an integer", key))
	}
	return v, nil
}

func (h *Handler) sales(w http.ResponseWriter, r *http.Request) {
	rng, err := h.parseRange(r, 30)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	groupBy := GroupBy(r.URL.Query().Get("group_by"))
	rows, err := h.service.SalesReport(r.Context(), rng, groupBy)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	h.respond(w, r, "sales_report_"+rng.key(), rows)
}

func (h *Handler) products(w http.ResponseWriter, r *http.Request) {
	rng, err := h.parseRange(r, 30)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	categoryID, err := httpx.QueryInt64(r, "category_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.ProductReport(r.Context(), ProductFilter{Range: rng, CategoryID: categoryID, Limit: limit})
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	h.respond(w, r, "product_sales_report_"+rng.key(), rows)
}

func (h *Handler) customers(w http.ResponseWriter, r *http.Request) {
	rng, err := h.parseRange(r, 90)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.CustomerReport(r.Context(), rng, limit)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	h.respond(w, r, "customer_sales_report_"+rng.key(), rows)
}

func (h *Handler) inventoryValue(w http.ResponseWriter, r *http.Request) {
	value, err := h.service.InventoryValue(r.Context())
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	h.respond(w, r, "inventory_value_report_"+h.service.Now().Format(dateLayout), value)
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	rng, err := h.parseRange(r, 30)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.MovementReport(r.Context(), MovementFilter{
		Range:        rng,
		ProductID:    productID,
		MovementType: r.URL.Query().Get("movement_type"),
	})
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	h.respond(w, r, "inventory_movements_report_"+rng.key(), rows)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	threshold := 20
	if raw := r.URL.Query().Get("threshold_percentage"); raw != "" {
		v, err := queryInt(r, "threshold_percentage")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		threshold = v
	}
	rows, err := h.service.LowStock(r.Context(), threshold)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	h.respond(w, r, "low_stock_report_"+h.service.Now().Format(dateLayout), rows)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	f, err := h.exporter.Open(name)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (h *Handler) dailySales(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if days <= 0 {
		days = 30
	}
	rng, err := h.parseRange(r, days)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.DailySales(r.Context(), rng)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) topProducts(w http.ResponseWriter, r *http.Request) {
	rng, err := h.parseRange(r, 30)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.TopProducts(r.Context(), rng, limit)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func writeDashboard(w http.ResponseWriter, data any, degraded bool) {
	if degraded {
		w.Header().Set(DegradedHeader, "true")
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, data)
}

func (h *Handler) dashboardSales(w http.ResponseWriter, r *http.Request) {
	points, degraded, err := h.dashboard.Sales(r.Context(), GroupBy(r.URL.Query().Get("group_by")))
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	writeDashboard(w, points, degraded)
}

func (h *Handler) dashboardProducts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	products, degraded, err := h.dashboard.TopProducts(r.Context(), limit)
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	writeDashboard(w, products, degraded)
}

func (h *Handler) dashboardLowStock(w http.ResponseWriter, r *http.Request) {
	items, degraded, err := h.dashboard.LowStock(r.Context())
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	writeDashboard(w, items, degraded)
}

func (h *Handler) dashboardMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, degraded, err := h.dashboard.Metrics(r.Context())
	if err != nil {
		httpx.Fail(h.logger, w, r, err)
		return
	}
	writeDashboard(w, metrics, degraded)
}

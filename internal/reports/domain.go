package reports

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// GroupBy selects the bucket width of the sales report.
type GroupBy string

const (
	GroupDay   GroupBy = "day"
	GroupWeek  GroupBy = "week"
	GroupMonth GroupBy = "month"
)

// Valid reports whether g is a supported bucket width.
func (g GroupBy) Valid() bool {
	switch g {
	case GroupDay, GroupWeek, GroupMonth:
		return true
	}
	return false
}

// Range is an inclusive range of calendar days.
type Range struct {
	From time.Time
	To   time.Time
}

// Bounds returns the half-open timestamp interval [from, to+1d).
func (r Range) Bounds() (time.Time, time.Time) {
	return truncateDay(r.From), truncateDay(r.To).AddDate(0, 0, 1)
}

func (r Range) key() string {
	return r.From.Format(dateLayout) + "_" + r.To.Format(dateLayout)
}

// TrailingDays returns the range ending today and starting days before it.
func TrailingDays(now time.Time, days int) Range {
	today := truncateDay(now)
	return Range{From: today.AddDate(0, 0, -days), To: today}
}

const dateLayout = "2006-01-02"

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SalesPeriod aggregates non-cancelled sales of one bucket.
type SalesPeriod struct {
	Date       string          `json:"date"`
	TotalSales int             `json:"total_sales"`
	Revenue    decimal.Decimal `json:"revenue"`
	Taxes      decimal.Decimal `json:"taxes"`
	Discounts  decimal.Decimal `json:"discounts"`
	NetRevenue decimal.Decimal `json:"net_revenue"`
}

// DailySales is one row of the daily sales summary.
type DailySales struct {
	Date        string          `json:"date"`
	TotalSales  int             `json:"total_sales"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// ProductFilter narrows the product sales report.
type ProductFilter struct {
	Range
	CategoryID int64
	Limit      int
}

// ProductSales aggregates sold lines of one product.
type ProductSales struct {
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	SKU          string          `json:"sku"`
	Category     string          `json:"category"`
	QuantitySold int             `json:"quantity_sold"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	AveragePrice decimal.Decimal `json:"average_price"`
}

// InventoryValue values active stock at cost and at retail price.
type InventoryValue struct {
	Summary    InventorySummary `json:"summary"`
	ByCategory []CategoryValue  `json:"by_category"`
}

// InventorySummary totals the valuation.
type InventorySummary struct {
	TotalProducts    int             `json:"total_products"`
	TotalCostValue   decimal.Decimal `json:"total_cost_value"`
	TotalRetailValue decimal.Decimal `json:"total_retail_value"`
	PotentialProfit  decimal.Decimal `json:"potential_profit"`
}

// CategoryValue is the valuation of one category.
type CategoryValue struct {
	CategoryID   int64           `json:"category_id"`
	CategoryName string          `json:"category_name"`
	CostValue    decimal.Decimal `json:"cost_value"`
	RetailValue  decimal.Decimal `json:"retail_value"`
	ProductCount int             `json:"product_count"`
}

// CustomerSales aggregates purchases of one customer.
type CustomerSales struct {
	CustomerID      int64           `json:"customer_id"`
	Name            string          `json:"name"`
	Email           *string         `json:"email"`
	TotalPurchases  int             `json:"total_purchases"`
	TotalSpent      decimal.Decimal `json:"total_spent"`
	AveragePurchase decimal.Decimal `json:"average_purchase"`
	FirstPurchase   string          `json:"first_purchase"`
	LastPurchase    string          `json:"last_purchase"`
}

// MovementFilter narrows the movement report.
type MovementFilter struct {
	Range
	ProductID    int64
	MovementType string
}

// MovementRow is one ledger entry of the movement report.
type MovementRow struct {
	MovementID   int64  `json:"movement_id"`
	MovementType string `json:"movement_type"`
	Quantity     int    `json:"quantity"`
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name"`
	SKU          string `json:"sku"`
	Date         string `json:"date"`
	Notes        string `json:"notes"`
}

// Low stock statuses.
const (
	StockCritical = "critical"
	StockLow      = "low"
)

// LowStockItem is an active product close to or below its minimum.
type LowStockItem struct {
	ProductID       int64           `json:"product_id"`
	ProductName     string          `json:"product_name"`
	SKU             string          `json:"sku"`
	Category        string          `json:"category"`
	CurrentStock    int             `json:"current_stock"`
	MinStockLevel   int             `json:"min_stock_level"`
	StockPercentage decimal.Decimal `json:"stock_percentage"`
	Status          string          `json:"status"`
}

// classify fills the derived fields of a low stock row.
func (i *LowStockItem) classify() {
	base := i.MinStockLevel
	if base <= 0 {
		base = 1
	}
	i.StockPercentage = decimal.NewFromInt(int64(i.CurrentStock)).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(base))).Round(2)
	if i.CurrentStock <= i.MinStockLevel {
		i.Status = StockCritical
	} else {
		i.Status = StockLow
	}
}

// Dashboard payloads.
type (
	DashboardSalesPoint struct {
		Date  string          `json:"date"`
		Total decimal.Decimal `json:"total"`
	}

	DashboardProduct struct {
		ID      int64           `json:"id"`
		Name    string          `json:"name"`
		Sales   int             `json:"sales"`
		Revenue decimal.Decimal `json:"revenue"`
	}

	DashboardLowStock struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		Stock    int    `json:"stock"`
		MinStock int    `json:"minStock"`
	}

	DashboardMetrics struct {
		TotalSales        int             `json:"totalSales"`
		MonthlyRevenue    decimal.Decimal `json:"monthlyRevenue"`
		AverageOrderValue decimal.Decimal `json:"averageOrderValue"`
		CustomerCount     int             `json:"customerCount"`
	}
)

const (
	maxProductLimit  = 100
	maxCustomerLimit = 100
)

var (
	ErrInvalidRange     = httpx.NewError(httpx.ErrValidation, "reports: start date after end date")
	ErrInvalidGroupBy   = httpx.NewError(httpx.ErrValidation, "reports: group_by must be day, week or month")
	ErrInvalidThreshold = httpx.NewError(httpx.ErrValidation, "reports: threshold_percentage must not be negative")
	ErrInvalidFilename  = httpx.NewError(httpx.ErrValidation, "reports: invalid report filename")
	ErrInvalidFormat    = httpx.NewError(httpx.ErrValidation, "reports: export format must be json or csv")
	ErrReportNotFound   = httpx.NewError(httpx.ErrNotFound, "reports: report file not found")
)

func validateRange(r Range) error {
	if r.To.Before(r.From) {
		return fmt.Errorf("%w: %s > %s", ErrInvalidRange, r.From.Format(dateLayout), r.To.Format(dateLayout))
	}
	return nil
}

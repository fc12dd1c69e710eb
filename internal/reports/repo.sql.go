package reports

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository runs the read-only aggregate queries behind every report.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const notCancelled = `s.payment_status <> 'cancelled'`

// SalesByPeriod groups non-cancelled sales in [from, to) by bucket.
func (r *Repository) SalesByPeriod(ctx context.Context, from, to time.Time, groupBy GroupBy) ([]SalesPeriod, error) {
	rows, err := r.pool.Query(ctx, `SELECT to_char(date_trunc($3, s.created_at), 'YYYY-MM-DD') AS bucket, COUNT(*),
COALESCE(SUM(s.total_amount), 0), COALESCE(SUM(s.tax_amount), 0), COALESCE(SUM(s.discount_amount), 0)
FROM sales s
WHERE s.created_at >= $1 AND s.created_at < $2 AND `+notCancelled+`
GROUP BY bucket ORDER BY bucket`, from, to, string(groupBy))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []SalesPeriod{}
	for rows.Next() {
		var p SalesPeriod
		if err := rows.Scan(&p.Date, &p.TotalSales, &p.Revenue, &p.Taxes, &p.Discounts); err != nil {
			return nil, err
		}
		p.NetRevenue = p.Revenue.Sub(p.Taxes)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ProductSales ranks products by sold quantity.
func (r *Repository) ProductSales(ctx context.Context, filter ProductFilter) ([]ProductSales, error) {
	from, to := filter.Bounds()
	args := []any{from, to}
	clauses := []string{"s.created_at >= $1", "s.created_at < $2", notCancelled}
	if filter.CategoryID > 0 {
		args = append(args, filter.CategoryID)
		clauses = append(clauses, fmt.Sprintf("p.category_id = $%d", len(args)))
	}
	args = append(args, filter.Limit)
	query := fmt.Sprintf(`SELECT p.id, p.name, p.sku, COALESCE(c.name, ''), SUM(i.quantity), COALESCE(SUM(i.total), 0), COALESCE(AVG(i.unit_price), 0)
FROM sale_items i
JOIN sales s ON s.id = i.sale_id
JOIN products p ON p.id = i.product_id
LEFT JOIN categories c ON c.id = p.category_id
WHERE %s
GROUP BY p.id, p.name, p.sku, c.name
ORDER BY SUM(i.quantity) DESC, p.id
LIMIT $%d`, strings.Join(clauses, " AND "), len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ProductSales{}
	for rows.Next() {
		var p ProductSales
		if err := rows.Scan(&p.ProductID, &p.ProductName, &p.SKU, &p.Category, &p.QuantitySold, &p.TotalRevenue, &p.AveragePrice); err != nil {
			return nil, err
		}
		p.AveragePrice = p.AveragePrice.Round(2)
		out = append(out, p)
	}
	return out, rows.Err()
}

// InventoryValue values active products at cost and retail price.
func (r *Repository) InventoryValue(ctx context.Context) (InventoryValue, error) {
	var v InventoryValue
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(stock_quantity * cost_price), 0), COALESCE(SUM(stock_quantity * price), 0)
FROM products WHERE is_active`).Scan(&v.Summary.TotalProducts, &v.Summary.TotalCostValue, &v.Summary.TotalRetailValue)
	if err != nil {
		return InventoryValue{}, err
	}
	v.Summary.PotentialProfit = v.Summary.TotalRetailValue.Sub(v.Summary.TotalCostValue)

	rows, err := r.pool.Query(ctx, `SELECT c.id, c.name, COALESCE(SUM(p.stock_quantity * p.cost_price), 0), COALESCE(SUM(p.stock_quantity * p.price), 0), COUNT(p.id)
FROM categories c
JOIN products p ON p.category_id = c.id AND p.is_active
GROUP BY c.id, c.name
ORDER BY 3 DESC, c.id`)
	if err != nil {
		return InventoryValue{}, err
	}
	defer rows.Close()
	v.ByCategory = []CategoryValue{}
	for rows.Next() {
		var c CategoryValue
		if err := rows.Scan(&c.CategoryID, &c.CategoryName, &c.CostValue, &c.RetailValue, &c.ProductCount); err != nil {
			return InventoryValue{}, err
		}
		v.ByCategory = append(v.ByCategory, c)
	}
	return v, rows.Err()
}

// CustomerSales ranks customers by spend.
func (r *Repository) CustomerSales(ctx context.Context, rng Range, limit int) ([]CustomerSales, error) {
	from, to := rng.Bounds()
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.name, c.email, COUNT(s.id), SUM(s.total_amount), AVG(s.total_amount), MIN(s.created_at), MAX(s.created_at)
FROM customers c
JOIN sales s ON s.customer_id = c.id
WHERE s.created_at >= $1 AND s.created_at < $2 AND `+notCancelled+`
GROUP BY c.id, c.name, c.email
ORDER BY SUM(s.total_amount) DESC, c.id
LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []CustomerSales{}
	for rows.Next() {
		var c CustomerSales
		var first, last time.Time
		var avg decimal.Decimal
		if err := rows.Scan(&c.CustomerID, &c.Name, &c.Email, &c.TotalPurchases, &c.TotalSpent, &avg, &first, &last); err != nil {
			return nil, err
		}
		c.AveragePurchase = avg.Round(2)
		c.FirstPurchase = first.Format(dateLayout)
		c.LastPurchase = last.Format(dateLayout)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Movements lists ledger entries newest first.
func (r *Repository) Movements(ctx context.Context, filter MovementFilter) ([]MovementRow, error) {
	from, to := filter.Bounds()
	args := []any{from, to}
	clauses := []string{"m.created_at >= $1", "m.created_at < $2"}
	if filter.ProductID > 0 {
		args = append(args, filter.ProductID)
		clauses = append(clauses, fmt.Sprintf("m.product_id = $%d", len(args)))
	}
	if filter.MovementType != "" {
		args = append(args, filter.MovementType)
		clauses = append(clauses, fmt.Sprintf("m.movement_type = $%d", len(args)))
	}
	rows, err := r.pool.Query(ctx, `SELECT m.id, m.movement_type, m.quantity, p.id, p.name, p.sku, m.created_at, m.notes
FROM inventory_movements m JOIN products p ON p.id = m.product_id
WHERE `+strings.Join(clauses, " AND ")+`
ORDER BY m.created_at DESC, m.id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []MovementRow{}
	for rows.Next() {
		var m MovementRow
		var at time.Time
		if err := rows.Scan(&m.MovementID, &m.MovementType, &m.Quantity, &m.ProductID, &m.ProductName, &m.SKU, &at, &m.Notes); err != nil {
			return nil, err
		}
		m.Date = at.Format("2006-01-02 15:04:05")
		out = append(out, m)
	}
	return out, rows.Err()
}

// LowStock lists active products whose stock is at most
// min_stock_level * (1 + threshold/100), scarcest first.
func (r *Repository) LowStock(ctx context.Context, thresholdPct int) ([]LowStockItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.name, p.sku, COALESCE(c.name, ''), p.stock_quantity, p.min_stock_level
FROM products p LEFT JOIN categories c ON c.id = p.category_id
WHERE p.is_active AND p.stock_quantity <= p.min_stock_level * (1 + $1::numeric / 100)
ORDER BY p.stock_quantity::numeric / NULLIF(p.min_stock_level, 0) NULLS FIRST, p.id`, thresholdPct)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []LowStockItem{}
	for rows.Next() {
		var item LowStockItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.SKU, &item.Category, &item.CurrentStock, &item.MinStockLevel); err != nil {
			return nil, err
		}
		item.classify()
		out = append(out, item)
	}
	return out, rows.Err()
}

// ActiveCustomers counts active customers.
func (r *Repository) ActiveCustomers(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers WHERE is_active`).Scan(&n)
	return n, err
}

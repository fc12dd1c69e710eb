package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for sales.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the writes of one sale transaction. It embeds the
// ledger store so movements share the transaction.
type TxRepository interface {
	inventory.LedgerStore
	InvoiceExists(ctx context.Context, invoice string) (bool, error)
	CustomerExists(ctx context.Context, id int64) (bool, error)
	InsertSale(ctx context.Context, sale Sale) (Sale, error)
	InsertItem(ctx context.Context, item SaleItem) (SaleItem, error)
	// LockSale loads a sale with its items and holds a row lock until commit.
	LockSale(ctx context.Context, id int64) (Sale, error)
	UpdateHeader(ctx context.Context, id int64, in UpdateInput) error
}

type txRepo struct {
	*inventory.TxStore
	tx pgx.Tx
}

// WithTx wraps fn in a repeatable-read transaction with retry on
// serialization failures.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxStore: inventory.NewTxStore(tx), tx: tx})
	})
}

const saleColumns = `s.id, s.invoice_number, s.customer_id, COALESCE(c.name, ''), s.total_amount, s.tax_amount, s.discount_amount,
s.payment_method, s.payment_status, s.notes, COALESCE(s.created_by, 0), s.created_at, s.updated_at`

const saleFrom = ` FROM sales s LEFT JOIN customers c ON c.id = s.customer_id`

const itemQuery = `SELECT i.id, i.sale_id, i.product_id, p.name, p.sku, i.quantity, i.unit_price, i.discount, i.tax_rate, i.total
FROM sale_items i JOIN products p ON p.id = i.product_id`

// Get returns a sale with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+saleFrom+` WHERE s.id = $1`, id))
	if err != nil {
		return Sale{}, err
	}
	items, err := queryItems(ctx, r.pool, []int64{id})
	if err != nil {
		return Sale{}, err
	}
	sale.Items = items[id]
	if sale.Items == nil {
		sale.Items = []SaleItem{}
	}
	return sale, nil
}

// List returns sales matching filter, newest first, with their items.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	where, args := saleWhere(filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales s`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s%s%s ORDER BY s.created_at DESC, s.id DESC LIMIT $%d OFFSET $%d`, saleColumns, saleFrom, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sales := []Sale{}
	ids := []int64{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	items, err := queryItems(ctx, r.pool, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
		if sales[i].Items == nil {
			sales[i].Items = []SaleItem{}
		}
	}
	return sales, total, nil
}

func saleWhere(filter ListFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.CustomerID > 0 {
		add("s.customer_id = $%d", filter.CustomerID)
	}
	if filter.PaymentStatus != "" {
		add("s.payment_status = $%d", string(filter.PaymentStatus))
	}
	if filter.PaymentMethod != "" {
		add("s.payment_method = $%d", string(filter.PaymentMethod))
	}
	if !filter.From.IsZero() {
		add("s.created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("s.created_at < $%d", filter.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryItems(ctx context.Context, q querier, saleIDs []int64) (map[int64][]SaleItem, error) {
	out := make(map[int64][]SaleItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, itemQuery+` WHERE i.sale_id = ANY($1) ORDER BY i.sale_id, i.id`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it SaleItem
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.ProductName, &it.ProductSKU, &it.Quantity, &it.UnitPrice, &it.Discount, &it.TaxRate, &it.Total); err != nil {
			return nil, err
		}
		out[it.SaleID] = append(out[it.SaleID], it)
	}
	return out, rows.Err()
}

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	var method, status string
	err := row.Scan(&s.ID, &s.InvoiceNumber, &s.CustomerID, &s.CustomerName, &s.TotalAmount, &s.TaxAmount, &s.DiscountAmount,
		&method, &status, &s.Notes, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrNotFound
	}
	s.PaymentMethod = PaymentMethod(method)
	s.PaymentStatus = PaymentStatus(status)
	return s, err
}

func (t *txRepo) InvoiceExists(ctx context.Context, invoice string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE invoice_number = $1)`, invoice).Scan(&exists)
	return exists, err
}

func (t *txRepo) CustomerExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (t *txRepo) InsertSale(ctx context.Context, s Sale) (Sale, error) {
	var createdBy any
	if s.CreatedBy > 0 {
		createdBy = s.CreatedBy
	}
	err := t.tx.QueryRow(ctx, `INSERT INTO sales (invoice_number, customer_id, total_amount, tax_amount, discount_amount, payment_method, payment_status, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at, updated_at`,
		s.InvoiceNumber, s.CustomerID, s.TotalAmount, s.TaxAmount, s.DiscountAmount, string(s.PaymentMethod), string(s.PaymentStatus), s.Notes, createdBy).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if db.IsUniqueViolation(err, "sales_invoice_number_key") {
		return Sale{}, ErrDuplicateInvoice
	}
	return s, err
}

func (t *txRepo) InsertItem(ctx context.Context, it SaleItem) (SaleItem, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, discount, tax_rate, total)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, it.SaleID, it.ProductID, it.Quantity, it.UnitPrice, it.Discount, it.TaxRate, it.Total).Scan(&it.ID)
	return it, err
}

func (t *txRepo) LockSale(ctx context.Context, id int64) (Sale, error) {
	var s Sale
	var method, status string
	err := t.tx.QueryRow(ctx, `SELECT id, invoice_number, customer_id, total_amount, tax_amount, discount_amount, payment_method, payment_status, notes,
COALESCE(created_by, 0), created_at, updated_at FROM sales WHERE id = $1 FOR UPDATE`, id).
		Scan(&s.ID, &s.InvoiceNumber, &s.CustomerID, &s.TotalAmount, &s.TaxAmount, &s.DiscountAmount, &method, &status, &s.Notes, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrNotFound
	}
	if err != nil {
		return Sale{}, err
	}
	s.PaymentMethod = PaymentMethod(method)
	s.PaymentStatus = PaymentStatus(status)
	items, err := queryItems(ctx, t.tx, []int64{id})
	if err != nil {
		return Sale{}, err
	}
	s.Items = items[id]
	return s, nil
}

func (t *txRepo) UpdateHeader(ctx context.Context, id int64, in UpdateInput) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	if in.CustomerID != nil {
		args = append(args, *in.CustomerID)
		sets = append(sets, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if in.PaymentMethod != nil {
		args = append(args, string(*in.PaymentMethod))
		sets = append(sets, fmt.Sprintf("payment_method = $%d", len(args)))
	}
	if in.PaymentStatus != nil {
		args = append(args, string(*in.PaymentStatus))
		sets = append(sets, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	if in.Notes != nil {
		args = append(args, *in.Notes)
		sets = append(sets, fmt.Sprintf("notes = $%d", len(args)))
	}
	tag, err := t.tx.Exec(ctx, `UPDATE sales SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

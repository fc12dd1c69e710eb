package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for purchase orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by Service. It embeds
// the ledger store so receipts book stock in the same transaction.
type TxRepository interface {
	inventory.LedgerStore
	SupplierExists(ctx context.Context, id int64) (bool, error)
	ProductExists(ctx context.Context, id int64) (bool, error)
	NextOrderNumber(ctx context.Context, year int) (int, error)
	InsertOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	InsertItem(ctx context.Context, item Item) (Item, error)
	DeleteItems(ctx context.Context, orderID int64) error
	// LockOrder loads an order with its items and holds a row lock until commit.
	LockOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdateHeader(ctx context.Context, po PurchaseOrder) error
	SetStatus(ctx context.Context, id int64, status Status) error
	SetApproval(ctx context.Context, id, approvedBy int64, at time.Time) error
	DeleteOrder(ctx context.Context, id int64) error
	InsertReceipt(ctx context.Context, receipt Receipt) (Receipt, error)
	InsertReceiptItem(ctx context.Context, item ReceiptItem) (ReceiptItem, error)
	// ReceivedTotal sums quantity_received across every receipt of the order.
	ReceivedTotal(ctx context.Context, orderID int64) (int, error)
	SetReceiptStatus(ctx context.Context, receiptID int64, status ReceiptStatus) error
}

type txRepo struct {
	*inventory.TxStore
	tx pgx.Tx
}

// WithTx wraps fn in a repeatable-read transaction with retry on
// serialization failures.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("procurement repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxStore: inventory.NewTxStore(tx), tx: tx})
	})
}

const orderColumns = `po.id, po.order_number, po.supplier_id, s.name, po.order_date, po.expected_delivery_date, po.status, po.total_amount,
po.payment_terms, po.shipping_method, po.notes, COALESCE(po.created_by, 0), po.approved_by, po.approved_at, po.created_at, po.updated_at`

const orderFrom = ` FROM purchase_orders po JOIN suppliers s ON s.id = po.supplier_id`

const itemQuery = `SELECT i.id, i.purchase_order_id, i.product_id, p.name, i.quantity, i.unit_price, i.subtotal, i.notes
FROM purchase_order_items i JOIN products p ON p.id = i.product_id`

// Get returns an order with supplier name and items.
func (r *Repository) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+orderFrom+` WHERE po.id = $1`, id))
	if err != nil {
		return PurchaseOrder{}, err
	}
	items, err := queryItems(ctx, r.pool, []int64{id})
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Items = orEmpty(items[id])
	return po, nil
}

// List returns orders matching filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	where, args := orderWhere(filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders po`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s%s%s ORDER BY po.order_date DESC, po.id DESC LIMIT $%d OFFSET $%d`, orderColumns, orderFrom, where, len(args)-1, len(args))
	orders, err := r.queryOrders(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// SupplierHistory returns the latest orders placed with a supplier.
func (r *Repository) SupplierHistory(ctx context.Context, supplierID int64, limit int) ([]PurchaseOrder, error) {
	return r.queryOrders(ctx, `SELECT `+orderColumns+orderFrom+` WHERE po.supplier_id = $1 ORDER BY po.order_date DESC, po.id DESC LIMIT $2`, supplierID, limit)
}

// SupplierExists reports whether the supplier row exists.
func (r *Repository) SupplierExists(ctx context.Context, id int64) (bool, error) {
	return exists(ctx, r.pool, `SELECT EXISTS (SELECT 1 FROM suppliers WHERE id = $1)`, id)
}

func (r *Repository) queryOrders(ctx context.Context, query string, args ...any) ([]PurchaseOrder, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := []PurchaseOrder{}
	ids := []int64{}
	for rows.Next() {
		po, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, po)
		ids = append(ids, po.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	items, err := queryItems(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = orEmpty(items[orders[i].ID])
	}
	return orders, nil
}

// Receipts returns the receipts of an order with their lines, oldest first.
func (r *Repository) Receipts(ctx context.Context, orderID int64) ([]Receipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.id, r.purchase_order_id, COALESCE(r.received_by, 0), r.received_at, r.status, r.notes, po.status
FROM purchase_order_receipts r JOIN purchase_orders po ON po.id = r.purchase_order_id
WHERE r.purchase_order_id = $1 ORDER BY r.received_at, r.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	receipts := []Receipt{}
	index := map[int64]int{}
	for rows.Next() {
		var rc Receipt
		var status, orderStatus string
		if err := rows.Scan(&rc.ID, &rc.PurchaseOrderID, &rc.ReceivedBy, &rc.ReceivedAt, &status, &rc.Notes, &orderStatus); err != nil {
			return nil, err
		}
		rc.Status = ReceiptStatus(status)
		rc.OrderStatus = Status(orderStatus)
		rc.Items = []ReceiptItem{}
		index[rc.ID] = len(receipts)
		receipts = append(receipts, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(receipts) == 0 {
		return receipts, nil
	}
	itemRows, err := r.pool.Query(ctx, `SELECT ri.id, ri.receipt_id, ri.product_id, p.name, ri.quantity_received, ri.quantity_rejected, ri.rejection_reason
FROM purchase_order_receipt_items ri
JOIN purchase_order_receipts r ON r.id = ri.receipt_id
JOIN products p ON p.id = ri.product_id
WHERE r.purchase_order_id = $1 ORDER BY ri.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var it ReceiptItem
		if err := itemRows.Scan(&it.ID, &it.ReceiptID, &it.ProductID, &it.ProductName, &it.QuantityReceived, &it.QuantityRejected, &it.RejectionReason); err != nil {
			return nil, err
		}
		if i, ok := index[it.ReceiptID]; ok {
			receipts[i].Items = append(receipts[i].Items, it)
		}
	}
	return receipts, itemRows.Err()
}

func orderWhere(filter ListFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.SupplierID > 0 {
		add("po.supplier_id = $%d", filter.SupplierID)
	}
	if filter.Status != "" {
		add("po.status = $%d", string(filter.Status))
	}
	if !filter.From.IsZero() {
		add("po.order_date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("po.order_date < $%d", filter.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func exists(ctx context.Context, q querier, query string, id int64) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx, query, id).Scan(&ok)
	return ok, err
}

func queryItems(ctx context.Context, q querier, orderIDs []int64) (map[int64][]Item, error) {
	out := make(map[int64][]Item, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, itemQuery+` WHERE i.purchase_order_id = ANY($1) ORDER BY i.purchase_order_id, i.id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.PurchaseOrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.Subtotal, &it.Notes); err != nil {
			return nil, err
		}
		out[it.PurchaseOrderID] = append(out[it.PurchaseOrderID], it)
	}
	return out, rows.Err()
}

func orEmpty(items []Item) []Item {
	if items == nil {
		return []Item{}
	}
	return items
}

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	err := row.Scan(&po.ID, &po.OrderNumber, &po.SupplierID, &po.SupplierName, &po.OrderDate, &po.ExpectedDeliveryDate, &status, &po.TotalAmount,
		&po.PaymentTerms, &po.ShippingMethod, &po.Notes, &po.CreatedBy, &po.ApprovedBy, &po.ApprovedAt, &po.CreatedAt, &po.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, ErrNotFound
	}
	po.Status = Status(status)
	return po, err
}

func (t *txRepo) SupplierExists(ctx context.Context, id int64) (bool, error) {
	return exists(ctx, t.tx, `SELECT EXISTS (SELECT 1 FROM suppliers WHERE id = $1)`, id)
}

func (t *txRepo) ProductExists(ctx context.Context, id int64) (bool, error) {
	return exists(ctx, t.tx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id)
}

func (t *txRepo) NextOrderNumber(ctx context.Context, year int) (int, error) {
	var seq int
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_order_sequences (year, last_value) VALUES ($1, 1)
ON CONFLICT (year) DO UPDATE SET last_value = purchase_order_sequences.last_value + 1
RETURNING last_value`, year).Scan(&seq)
	return seq, err
}

func (t *txRepo) InsertOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	var createdBy any
	if po.CreatedBy > 0 {
		createdBy = po.CreatedBy
	}
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders (order_number, supplier_id, order_date, expected_delivery_date, status, total_amount,
payment_terms, shipping_method, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id, created_at, updated_at`,
		po.OrderNumber, po.SupplierID, po.OrderDate, po.ExpectedDeliveryDate, string(po.Status), po.TotalAmount,
		po.PaymentTerms, po.ShippingMethod, po.Notes, createdBy).Scan(&po.ID, &po.CreatedAt, &po.UpdatedAt)
	if db.IsUniqueViolation(err, "purchase_orders_order_number_key") {
		return PurchaseOrder{}, ErrDuplicateNumber
	}
	return po, err
}

func (t *txRepo) InsertItem(ctx context.Context, it Item) (Item, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_order_items (purchase_order_id, product_id, quantity, unit_price, subtotal, notes)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, it.PurchaseOrderID, it.ProductID, it.Quantity, it.UnitPrice, it.Subtotal, it.Notes).Scan(&it.ID)
	return it, err
}

func (t *txRepo) DeleteItems(ctx context.Context, orderID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_order_items WHERE purchase_order_id = $1`, orderID)
	return err
}

func (t *txRepo) LockOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+orderFrom+` WHERE po.id = $1 FOR UPDATE OF po`, id))
	if err != nil {
		return PurchaseOrder{}, err
	}
	items, err := queryItems(ctx, t.tx, []int64{id})
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Items = orEmpty(items[id])
	return po, nil
}

func (t *txRepo) UpdateHeader(ctx context.Context, po PurchaseOrder) error {
	return t.exec(ctx, `UPDATE purchase_orders SET supplier_id = $2, expected_delivery_date = $3, payment_terms = $4, shipping_method = $5,
notes = $6, total_amount = $7, updated_at = NOW() WHERE id = $1`,
		po.ID, po.SupplierID, po.ExpectedDeliveryDate, po.PaymentTerms, po.ShippingMethod, po.Notes, po.TotalAmount)
}

func (t *txRepo) SetStatus(ctx context.Context, id int64, status Status) error {
	return t.exec(ctx, `UPDATE purchase_orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
}

func (t *txRepo) SetApproval(ctx context.Context, id, approvedBy int64, at time.Time) error {
	var actor any
	if approvedBy > 0 {
		actor = approvedBy
	}
	return t.exec(ctx, `UPDATE purchase_orders SET approved_by = $2, approved_at = $3, updated_at = NOW() WHERE id = $1`, id, actor, at)
}

func (t *txRepo) DeleteOrder(ctx context.Context, id int64) error {
	return t.exec(ctx, `DELETE FROM purchase_orders WHERE id = $1`, id)
}

func (t *txRepo) InsertReceipt(ctx context.Context, rc Receipt) (Receipt, error) {
	var receivedBy any
	if rc.ReceivedBy > 0 {
		receivedBy = rc.ReceivedBy
	}
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_order_receipts (purchase_order_id, received_by, received_at, status, notes)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, rc.PurchaseOrderID, receivedBy, rc.ReceivedAt, string(rc.Status), rc.Notes).Scan(&rc.ID)
	return rc, err
}

func (t *txRepo) InsertReceiptItem(ctx context.Context, it ReceiptItem) (ReceiptItem, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_order_receipt_items (receipt_id, product_id, quantity_received, quantity_rejected, rejection_reason)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, it.ReceiptID, it.ProductID, it.QuantityReceived, it.QuantityRejected, it.RejectionReason).Scan(&it.ID)
	return it, err
}

func (t *txRepo) ReceivedTotal(ctx context.Context, orderID int64) (int, error) {
	var total int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(ri.quantity_received), 0)
FROM purchase_order_receipt_items ri JOIN purchase_order_receipts r ON r.id = ri.receipt_id
WHERE r.purchase_order_id = $1`, orderID).Scan(&total)
	return total, err
}

func (t *txRepo) SetReceiptStatus(ctx context.Context, receiptID int64, status ReceiptStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_order_receipts SET status = $2 WHERE id = $1`, receiptID, string(status))
	return err
}

func (t *txRepo) exec(ctx context.Context, query string, args ...any) error {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

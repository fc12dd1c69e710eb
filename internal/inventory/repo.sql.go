package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	LedgerStore
	RepairCounters(ctx context.Context) (int64, error)
}

// TxStore implements LedgerStore on top of an open pgx transaction. Other
// modules embed it in their own transactional repositories.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore wraps tx.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

const movementColumns = `m.id, m.product_id, m.movement_type, m.quantity, COALESCE(m.reference_id, 0), m.notes, COALESCE(m.created_by, 0), m.created_at, p.name, p.sku`

// ListMovements returns ledger rows newest first together with the total count.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	where, args := movementWhere(filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_movements m`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM inventory_movements m JOIN products p ON p.id = m.product_id%s
ORDER BY m.created_at DESC, m.id DESC LIMIT $%d OFFSET $%d`, movementColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, 0, err
		}
		movements = append(movements, m)
	}
	return movements, total, rows.Err()
}

// GetMovement loads one movement.
func (r *Repository) GetMovement(ctx context.Context, id int64) (Movement, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+movementColumns+` FROM inventory_movements m JOIN products p ON p.id = m.product_id WHERE m.id = $1`, id)
	m, err := scanMovement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, ErrNotFound
	}
	return m, err
}

// ListDrift returns products whose counter differs from the ledger sum.
func (r *Repository) ListDrift(ctx context.Context) ([]Drift, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.sku, p.stock_quantity, COALESCE(SUM(m.quantity), 0)::int
FROM products p LEFT JOIN inventory_movements m ON m.product_id = p.id
GROUP BY p.id, p.sku, p.stock_quantity
HAVING p.stock_quantity <> COALESCE(SUM(m.quantity), 0)
ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	drift := []Drift{}
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.ProductID, &d.SKU, &d.Counter, &d.LedgerSum); err != nil {
			return nil, err
		}
		drift = append(drift, d)
	}
	return drift, rows.Err()
}

// StockLevels reads the current counters of the given products.
func (r *Repository) StockLevels(ctx context.Context, productIDs []int64) ([]StockLevel, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, sku, stock_quantity, min_stock_level, is_active FROM products WHERE id = ANY($1) ORDER BY id`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	levels := []StockLevel{}
	for rows.Next() {
		var level StockLevel
		if err := rows.Scan(&level.ProductID, &level.Name, &level.SKU, &level.Quantity, &level.MinStockLevel, &level.IsActive); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, rows.Err()
}

// LockProduct implements LedgerStore.
func (s *TxStore) LockProduct(ctx context.Context, productID int64) (StockLevel, error) {
	var level StockLevel
	err := s.tx.QueryRow(ctx, `SELECT id, name, sku, stock_quantity, min_stock_level, is_active FROM products WHERE id = $1 FOR UPDATE`, productID).
		Scan(&level.ProductID, &level.Name, &level.SKU, &level.Quantity, &level.MinStockLevel, &level.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockLevel{}, ErrProductNotFound
	}
	return level, err
}

// InsertMovement implements LedgerStore.
func (s *TxStore) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO inventory_movements (product_id, movement_type, quantity, reference_id, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id, created_at`, m.ProductID, string(m.Type), m.Quantity, nullInt(m.ReferenceID), m.Notes, nullInt(m.CreatedBy)).
		Scan(&m.ID, &m.CreatedAt)
	return m, err
}

// ApplyStockDelta implements LedgerStore.
func (s *TxStore) ApplyStockDelta(ctx context.Context, productID int64, delta int) (int, error) {
	var qty int
	err := s.tx.QueryRow(ctx, `UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = NOW() WHERE id = $1 RETURNING stock_quantity`, productID, delta).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	return qty, err
}

// RepairCounters rewrites every drifted counter from the ledger sum.
func (s *TxStore) RepairCounters(ctx context.Context) (int64, error) {
	tag, err := s.tx.Exec(ctx, `UPDATE products p SET stock_quantity = l.total, updated_at = NOW()
FROM (
	SELECT p2.id, COALESCE(SUM(m.quantity), 0)::int AS total
	FROM products p2 LEFT JOIN inventory_movements m ON m.product_id = p2.id
	GROUP BY p2.id
) l
WHERE l.id = p.id AND p.stock_quantity <> l.total`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func movementWhere(filter MovementFilter) (string, []any) {
	clauses := []string{}
	args := []any{}
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.ProductID > 0 {
		add("m.product_id = $%d", filter.ProductID)
	}
	if filter.Type != "" {
		add("m.movement_type = $%d", string(filter.Type))
	}
	if !filter.From.IsZero() {
		add("m.created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("m.created_at < $%d", filter.To)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	var kind string
	err := row.Scan(&m.ID, &m.ProductID, &kind, &m.Quantity, &m.ReferenceID, &m.Notes, &m.CreatedBy, &m.CreatedAt, &m.ProductName, &m.ProductSKU)
	m.Type = MovementType(kind)
	return m, err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

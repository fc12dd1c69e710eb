package products

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

var (
	ErrNotFound         = fmt.Errorf("%w: product", shared.ErrNotFound)
	ErrDuplicateSKU     = fmt.Errorf("%w: product sku already exists", shared.ErrDuplicate)
	ErrDuplicateBarcode = fmt.Errorf("%w: product barcode already exists", shared.ErrDuplicate)
	ErrUnknownCategory  = fmt.Errorf("%w: category does not exist", shared.ErrValidation)
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error)
	LowStock(ctx context.Context, filters shared.ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	Update(ctx context.Context, id int64, product Product) (Product, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// TxRepository inserts products and posts their opening stock.
type TxRepository interface {
	inventory.LedgerStore
	Insert(ctx context.Context, product Product) (Product, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

type txRepository struct {
	*inventory.TxStore
	tx pgx.Tx
}

const columns = `p.id, p.name, p.description, p.sku, p.barcode, p.price, p.cost_price, p.tax_rate, p.category_id, COALESCE(c.name, ''), p.stock_quantity, p.min_stock_level, p.is_active, p.created_at, p.updated_at`

const from = ` FROM products p LEFT JOIN categories c ON c.id = p.category_id`

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxStore: inventory.NewTxStore(tx), tx: tx})
	})
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	var where shared.Where
	if filters.CategoryID > 0 {
		where.Add("p.category_id = $%d", filters.CategoryID)
	}
	if filters.Search != "" {
		where.Add("(p.name ILIKE $%d OR p.sku ILIKE $%d OR p.barcode ILIKE $%d)", "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		where.Add("p.is_active = $%d", *filters.IsActive)
	}
	return r.query(ctx, where, sortOrder(filters.SortBy, filters.SortDir), filters)
}

func (r *repository) LowStock(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	var where shared.Where
	where.Raw("p.is_active")
	where.Raw("p.stock_quantity <= p.min_stock_level")
	if filters.CategoryID > 0 {
		where.Add("p.category_id = $%d", filters.CategoryID)
	}
	return r.query(ctx, where, "p.stock_quantity ASC, p.id ASC", filters)
}

func (r *repository) query(ctx context.Context, where shared.Where, order string, filters shared.ListFilters) ([]Product, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*)`+from+where.SQL(), where.Args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + columns + from + where.SQL() + ` ORDER BY ` + order + where.Page(filters.Limit, filters.Offset)
	rows, err := r.db.Query(ctx, query, where.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	return scan(r.db.QueryRow(ctx, `SELECT `+columns+from+` WHERE p.id = $1`, id))
}

func (r *repository) Update(ctx context.Context, id int64, p Product) (Product, error) {
	tag, err := r.db.Exec(ctx, `UPDATE products SET name = $2, description = $3, sku = $4, barcode = $5, price = $6, cost_price = $7,
tax_rate = $8, category_id = $9, min_stock_level = $10, is_active = $11, updated_at = NOW() WHERE id = $1`,
		id, p.Name, p.Description, p.SKU, p.Barcode, p.Price, p.CostPrice, p.TaxRate, p.CategoryID, p.MinStockLevel, p.IsActive)
	if err != nil {
		return Product{}, translate(err)
	}
	if tag.RowsAffected() == 0 {
		return Product{}, ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Insert creates the row with a zero counter; opening stock goes through the ledger.
func (t *txRepository) Insert(ctx context.Context, p Product) (Product, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO products (name, description, sku, barcode, price, cost_price, tax_rate, category_id, stock_quantity, min_stock_level, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,$9,$10) RETURNING id`,
		p.Name, p.Description, p.SKU, p.Barcode, p.Price, p.CostPrice, p.TaxRate, p.CategoryID, p.MinStockLevel, p.IsActive).Scan(&id)
	if err != nil {
		return Product{}, translate(err)
	}
	return scan(t.tx.QueryRow(ctx, `SELECT `+columns+from+` WHERE p.id = $1`, id))
}

func scan(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.SKU, &p.Barcode, &p.Price, &p.CostPrice, &p.TaxRate, &p.CategoryID, &p.CategoryName,
		&p.StockQuantity, &p.MinStockLevel, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, "products_sku_key"):
		return ErrDuplicateSKU
	case db.IsUniqueViolation(err, "products_barcode_key"):
		return ErrDuplicateBarcode
	case db.IsForeignKeyViolation(err):
		return ErrUnknownCategory
	}
	return err
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == shared.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case "sku":
		return "p.sku " + dir
	case "price":
		return "p.price " + dir
	case "stock_quantity":
		return "p.stock_quantity " + dir
	case "created_at":
		return "p.created_at " + dir
	default:
		return "p.name " + dir
	}
}

package customers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

var (
	ErrNotFound      = httpx.NewError(httpx.ErrNotFound, "customers: customer not found")
	ErrAlreadyExists = httpx.NewError(httpx.ErrDuplicate, "customers: email already registered")
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Customer, error)
	List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error)
	Create(ctx context.Context, customer Customer) (int64, error)
	Update(ctx context.Context, id int64, updates map[string]any) error
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const columns = `id, name, email, phone, address, tax_id, is_active, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx, `SELECT `+columns+` FROM customers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	var conditions []string
	var args []any
	if req.IsActive != nil {
		args = append(args, *req.IsActive)
		conditions = append(conditions, "is_active = $1")
	}
	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		n := placeholder(len(args))
		conditions = append(conditions, "(name ILIKE "+n+" OR email ILIKE "+n+" OR phone ILIKE "+n+")")
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM customers"+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + columns + ` FROM customers` + whereClause +
		` ORDER BY name, id LIMIT ` + placeholder(len(args)+1) + ` OFFSET ` + placeholder(len(args)+2)
	args = append(args, req.Limit, req.Offset)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	customers := []Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, c Customer) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO customers (name, email, phone, address, tax_id, is_active)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, c.Name, c.Email, c.Phone, c.Address, c.TaxID, c.IsActive).Scan(&id)
	return id, translate(err)
}

// updatable lists the columns Update may set, in statement order.
var updatable = []string{"name", "email", "phone", "address", "tax_id", "is_active"}

func (r *repository) Update(ctx context.Context, id int64, updates map[string]any) error {
	query := "UPDATE customers SET updated_at = NOW()"
	var args []any
	for _, column := range updatable {
		if v, ok := updates[column]; ok {
			args = append(args, v)
			query += ", " + column + " = " + placeholder(len(args))
		}
	}
	args = append(args, id)
	query += " WHERE id = " + placeholder(len(args))

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.TaxID, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func translate(err error) error {
	if db.IsUniqueViolation(err, "customers_email_key") {
		return ErrAlreadyExists
	}
	return err
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

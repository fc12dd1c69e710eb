package categories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

var (
	ErrNotFound  = fmt.Errorf("%w: category", shared.ErrNotFound)
	ErrDuplicate = fmt.Errorf("%w: category name already exists", shared.ErrDuplicate)
	ErrInUse     = fmt.Errorf("%w: category has products", shared.ErrInUse)
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Category, int, error)
	Get(ctx context.Context, id int64) (Category, error)
	Create(ctx context.Context, category Category) (Category, error)
	Update(ctx context.Context, id int64, category Category) (Category, error)
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const columns = `id, name, description, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Category, int, error) {
	var where shared.Where
	if filters.Search != "" {
		where.Add("name ILIKE $%d", "%"+filters.Search+"%")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM categories`+where.SQL(), where.Args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + columns + ` FROM categories` + where.SQL() + " ORDER BY " + sortOrder(filters.SortBy, filters.SortDir) + where.Page(filters.Limit, filters.Offset)
	rows, err := r.pool.Query(ctx, query, where.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	categories := []Category{}
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		categories = append(categories, c)
	}
	return categories, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Category, error) {
	return scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM categories WHERE id = $1`, id))
}

func (r *repository) Create(ctx context.Context, category Category) (Category, error) {
	c, err := scan(r.pool.QueryRow(ctx, `INSERT INTO categories (name, description) VALUES ($1, $2) RETURNING `+columns, category.Name, category.Description))
	return c, translate(err)
}

func (r *repository) Update(ctx context.Context, id int64, category Category) (Category, error) {
	c, err := scan(r.pool.QueryRow(ctx, `UPDATE categories SET name = $2, description = $3, updated_at = NOW() WHERE id = $1 RETURNING `+columns, id, category.Name, category.Description))
	return c, translate(err)
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scan(row pgx.Row) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, ErrNotFound
	}
	return c, err
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, "categories_name_key"):
		return ErrDuplicate
	case db.IsForeignKeyViolation(err):
		return ErrInUse
	}
	return err
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == shared.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case "created_at":
		return "created_at " + dir
	case "id":
		return "id " + dir
	default:
		return "name " + dir
	}
}

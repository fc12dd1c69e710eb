package suppliers

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
	ErrNotFound      = fmt.Errorf("%w: supplier", shared.ErrNotFound)
	ErrDuplicate     = fmt.Errorf("%w: supplier name already exists", shared.ErrDuplicate)
	ErrInUse         = fmt.Errorf("%w: supplier has purchase orders", shared.ErrInUse)
	ErrInvalidStatus = fmt.Errorf("%w: status must be active or inactive", shared.ErrValidation)
	ErrSearchTerm    = fmt.Errorf("%w: name", shared.ErrRequiredField)
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error)
	Get(ctx context.Context, id int64) (Supplier, error)
	Create(ctx context.Context, supplier Supplier) (Supplier, error)
	Update(ctx context.Context, id int64, supplier Supplier) (Supplier, error)
	SetStatus(ctx context.Context, id int64, status Status) (Supplier, error)
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const columns = `id, name, contact_person, email, phone, address, city, country, tax_id, notes, status, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	var where shared.Where
	if filters.Search != "" {
		where.Add("(name ILIKE $%d OR contact_person ILIKE $%d OR email ILIKE $%d)", "%"+filters.Search+"%")
	}
	if filters.Status != "" {
		where.Add("status = $%d", filters.Status)
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers`+where.SQL(), where.Args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + columns + ` FROM suppliers` + where.SQL() + ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir) + where.Page(filters.Limit, filters.Offset)
	rows, err := r.db.Query(ctx, query, where.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	suppliers := []Supplier{}
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Supplier, error) {
	return scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM suppliers WHERE id = $1`, id))
}

func (r *repository) Create(ctx context.Context, s Supplier) (Supplier, error) {
	created, err := scan(r.db.QueryRow(ctx, `INSERT INTO suppliers (name, contact_person, email, phone, address, city, country, tax_id, notes, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING `+columns,
		s.Name, s.ContactPerson, s.Email, s.Phone, s.Address, s.City, s.Country, s.TaxID, s.Notes, string(s.Status)))
	return created, translate(err)
}

func (r *repository) Update(ctx context.Context, id int64, s Supplier) (Supplier, error) {
	updated, err := scan(r.db.QueryRow(ctx, `UPDATE suppliers SET name = $2, contact_person = $3, email = $4, phone = $5, address = $6, city = $7,
country = $8, tax_id = $9, notes = $10, status = $11, updated_at = NOW() WHERE id = $1 RETURNING `+columns,
		id, s.Name, s.ContactPerson, s.Email, s.Phone, s.Address, s.City, s.Country, s.TaxID, s.Notes, string(s.Status)))
	return updated, translate(err)
}

func (r *repository) SetStatus(ctx context.Context, id int64, status Status) (Supplier, error) {
	return scan(r.db.QueryRow(ctx, `UPDATE suppliers SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING `+columns, id, string(status)))
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scan(row pgx.Row) (Supplier, error) {
	var s Supplier
	var status string
	err := row.Scan(&s.ID, &s.Name, &s.ContactPerson, &s.Email, &s.Phone, &s.Address, &s.City, &s.Country, &s.TaxID, &s.Notes, &status, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrNotFound
	}
	s.Status = Status(status)
	return s, err
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, "suppliers_name_key"):
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
	case "city":
		return "city " + dir
	default:
		return "name " + dir
	}
}

package shared

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// ListFilters represents standard list page filters
type ListFilters struct {
	Offset   int
	Limit    int
	Search   string
	SortBy   string
	SortDir  string
	IsActive *bool

	// Entity specific filters
	CategoryID int64
	Status     string
}

// Normalize applies default and maximum limits.
func (f ListFilters) Normalize() ListFilters {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.SortDir != SortDesc {
		f.SortDir = SortAsc
	}
	return f
}

// Where accumulates positional SQL conditions.
type Where struct {
	clauses []string
	Args    []any
}

// Add appends a clause whose %d placeholders all refer to value.
func (w *Where) Add(clause string, value any) {
	w.Args = append(w.Args, value)
	n := strings.Count(clause, "%d")
	refs := make([]any, n)
	for i := range refs {
		refs[i] = len(w.Args)
	}
	w.clauses = append(w.clauses, fmt.Sprintf(clause, refs...))
}

// Raw appends a clause without arguments.
func (w *Where) Raw(clause string) {
	w.clauses = append(w.clauses, clause)
}

// SQL renders the WHERE clause or an empty string.
func (w *Where) SQL() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// Page appends LIMIT/OFFSET placeholders and returns the suffix.
func (w *Where) Page(limit, offset int) string {
	w.Args = append(w.Args, limit, offset)
	return " LIMIT $" + strconv.Itoa(len(w.Args)-1) + " OFFSET $" + strconv.Itoa(len(w.Args))
}

// FiltersFromRequest reads skip/limit (or page/limit), search, sort and
// is_active from the query string.
func FiltersFromRequest(r *http.Request) (ListFilters, httpx.Page, error) {
	page := httpx.ParsePage(r, DefaultLimit, MaxLimit)
	q := r.URL.Query()
	filters := ListFilters{
		Offset:  page.Offset,
		Limit:   page.Limit,
		Search:  strings.TrimSpace(q.Get("search")),
		SortBy:  q.Get("sort_by"),
		SortDir: q.Get("sort_dir"),
		Status:  q.Get("status"),
	}
	if raw := q.Get("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return ListFilters{}, page, fmt.Errorf("%w: is_active must be a boolean", ErrValidation)
		}
		filters.IsActive = &active
	}
	categoryID, err := httpx.QueryInt64(r, "category_id")
	if err != nil {
		return ListFilters{}, page, err
	}
	filters.CategoryID = categoryID
	return filters, page, nil
}

package httpx

import (
	"net/http"
	"strconv"
	"time"
)

// Page describes the slice of a listing requested by the client. Both the
// page/limit and the skip/limit styles are accepted.
type Page struct {
	Number int `json:"page"`
	Limit  int `json:"limit"`
	Offset int `json:"-"`
}

// ParsePage reads paging parameters from the query string.
func ParsePage(r *http.Request, defaultLimit, maxLimit int) Page {
	q := r.URL.Query()
	limit := atoiDefault(q.Get("limit"), defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	if raw := q.Get("skip"); raw != "" {
		skip := atoiDefault(raw, 0)
		if skip < 0 {
			skip = 0
		}
		return Page{Number: skip/limit + 1, Limit: limit, Offset: skip}
	}
	page := atoiDefault(q.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	return Page{Number: page, Limit: limit, Offset: (page - 1) * limit}
}

// PageResult wraps a listing with its total count.
type PageResult[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// NewPageResult builds a PageResult, never returning a nil item slice.
func NewPageResult[T any](items []T, total int, page Page) PageResult[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if page.Limit > 0 {
		pages = (total + page.Limit - 1) / page.Limit
	}
	return PageResult[T]{Items: items, Total: total, Page: page.Number, Limit: page.Limit, Pages: pages}
}

// QueryInt64 parses an optional positive integer query parameter.
func QueryInt64(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, NewError(ErrValidation, "invalid "+key)
	}
	return v, nil
}

// QueryDate parses an optional YYYY-MM-DD (or RFC3339) query parameter.
func QueryDate(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, NewError(ErrValidation, "invalid "+key+", expected YYYY-MM-DD")
	}
	return t, nil
}

// PathInt64 parses a positive identifier.
func PathInt64(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewError(ErrValidation, "invalid id")
	}
	return id, nil
}

func atoiDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

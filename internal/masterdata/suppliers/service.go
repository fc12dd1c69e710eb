package suppliers

import (
	"context"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	if filters.Status != "" && !Status(filters.Status).Valid() {
		return nil, 0, ErrInvalidStatus
	}
	return s.repo.List(ctx, filters.Normalize())
}

// SearchByName returns suppliers whose name contains term.
func (s *Service) SearchByName(ctx context.Context, term string, limit int) ([]Supplier, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, ErrSearchTerm
	}
	items, _, err := s.repo.List(ctx, shared.ListFilters{Search: term, Limit: limit}.Normalize())
	return items, err
}

func (s *Service) Get(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Status == "" {
		supplier.Status = StatusActive
	}
	if err := s.validate(supplier); err != nil {
		return Supplier{}, err
	}
	return s.repo.Create(ctx, supplier)
}

func (s *Service) Update(ctx context.Context, id int64, supplier Supplier) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, shared.ErrInvalidID
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Supplier{}, err
	}
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Status == "" {
		supplier.Status = current.Status
	}
	if err := s.validate(supplier); err != nil {
		return Supplier{}, err
	}
	return s.repo.Update(ctx, id, supplier)
}

// SetStatus switches a supplier between active and inactive.
func (s *Service) SetStatus(ctx context.Context, id int64, status Status) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, shared.ErrInvalidID
	}
	if !status.Valid() {
		return Supplier{}, ErrInvalidStatus
	}
	return s.repo.SetStatus(ctx, id, status)
}

// Delete removes a supplier no purchase order refers to.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Delete(ctx, id)
}

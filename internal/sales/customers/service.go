package customers

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type Service struct {
	repo  Repository
	audit shared.AuditRecorder
}

func NewService(repo Repository, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, audit: audit}
}

var errNameRequired = httpx.NewError(httpx.ErrValidation, "customers: name is required")

func (s *Service) Create(ctx context.Context, req CreateCustomerRequest, actorID int64) (*Customer, error) {
	customer := Customer{
		Name:     strings.TrimSpace(req.Name),
		Email:    normalizeEmail(req.Email),
		Phone:    req.Phone,
		Address:  req.Address,
		TaxID:    req.TaxID,
		IsActive: true,
	}
	if customer.Name == "" {
		return nil, errNameRequired
	}

	var created *Customer
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err := repo.Create(ctx, customer)
		if err != nil {
			return err
		}
		created, err = repo.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	s.record(ctx, actorID, "CUSTOMER_CREATE", created.ID, nil)
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateCustomerRequest, actorID int64) (*Customer, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}

	updates := make(map[string]any)
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, errNameRequired
		}
		updates["name"] = name
	}
	if req.Email != nil {
		updates["email"] = normalizeEmail(req.Email)
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if req.TaxID != nil {
		updates["tax_id"] = *req.TaxID
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) == 0 {
		return existing, nil
	}

	var updated *Customer
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.Update(ctx, id, updates); err != nil {
			return err
		}
		updated, err = repo.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update customer: %w", err)
	}
	s.record(ctx, actorID, "CUSTOMER_UPDATE", id, updates)
	return updated, nil
}

// Deactivate is the delete operation: sales keep pointing at the row.
func (s *Service) Deactivate(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		return repo.Update(ctx, id, map[string]any{"is_active": false})
	})
	if err != nil {
		return fmt.Errorf("deactivate customer: %w", err)
	}
	s.record(ctx, actorID, "CUSTOMER_DEACTIVATE", id, nil)
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Customer, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	return s.repo.List(ctx, req)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "customer",
		EntityID: fmt.Sprint(id),
		Meta:     meta,
	})
}

func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	trimmed := strings.ToLower(strings.TrimSpace(*email))
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

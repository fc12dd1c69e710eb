package products

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/shared"
	internalShared "github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type Service struct {
	repo   Repository
	audit  internalShared.AuditRecorder
	events inventory.EventHandler
	logger *slog.Logger
}

func NewService(repo Repository, audit internalShared.AuditRecorder, events inventory.EventHandler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, events: events, logger: logger}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters.Normalize())
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

// LowStock lists active products at or below their minimum stock level.
func (s *Service) LowStock(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	return s.repo.LowStock(ctx, filters.Normalize())
}

// Create inserts the product with a zero counter and books any opening stock
// as an initial ledger movement in the same transaction.
func (s *Service) Create(ctx context.Context, product Product, actorID int64) (Product, error) {
	product = normalize(product)
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	opening := product.StockQuantity
	var created Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.Insert(ctx, product)
		if err != nil {
			return err
		}
		if opening > 0 {
			if _, err := inventory.Record(ctx, tx, inventory.MovementInput{
				ProductID:   created.ID,
				Type:        inventory.MovementInitial,
				Quantity:    opening,
				ReferenceID: created.ID,
				ActorID:     actorID,
				Notes:       "Opening stock",
			}); err != nil {
				return err
			}
			created.StockQuantity = opening
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, actorID, "PRODUCT_CREATE", created.ID, map[string]any{"sku": created.SKU, "opening_stock": opening})
	if opening > 0 && s.events != nil {
		evt := inventory.StockChangedEvent{Source: "products", ReferenceID: created.ID, ProductIDs: []int64{created.ID}, At: time.Now()}
		if err := s.events.HandleStockChanged(ctx, evt); err != nil {
			s.logger.Warn("stock changed hook", slog.String("source", evt.Source), slog.Any("error", err))
		}
	}
	return created, nil
}

// Update changes catalogue fields. The stock counter is never written here.
func (s *Service) Update(ctx context.Context, id int64, product Product, actorID int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrInvalidID
	}
	product = normalize(product)
	product.StockQuantity = 0
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	updated, err := s.repo.Update(ctx, id, product)
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, actorID, "PRODUCT_UPDATE", id, map[string]any{"sku": updated.SKU})
	return updated, nil
}

// Delete deactivates the product so historical sales and orders stay valid.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "PRODUCT_DEACTIVATE", id, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{ActorID: actorID, Action: action, Entity: "product", EntityID: fmt.Sprintf("%d", id), Meta: meta}); err != nil {
		s.logger.Warn("audit product", slog.String("action", action), slog.Any("error", err))
	}
}

package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error)
	GetMovement(ctx context.Context, id int64) (Movement, error)
	ListDrift(ctx context.Context) ([]Drift, error)
}

// Service coordinates manual ledger operations.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditRecorder
	events EventHandler
	logger *slog.Logger
}

// NewService builds Service. audit and events may be nil.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, events EventHandler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, events: events, logger: logger}
}

// RecordManual posts an administrative movement. Sale movements only come from
// the sale protocol.
func (s *Service) RecordManual(ctx context.Context, in MovementInput) (Movement, error) {
	if in.Type == MovementSale {
		return Movement{}, ErrSaleMovement
	}
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = Record(ctx, tx, in)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, in.ActorID, "MOVEMENT_CREATE", movement.ID, map[string]any{
		"product_id": movement.ProductID,
		"type":       string(movement.Type),
		"quantity":   movement.Quantity,
	})
	s.publish(ctx, StockChangedEvent{Source: "inventory", ReferenceID: movement.ID, ProductIDs: []int64{movement.ProductID}, At: time.Now()})
	return movement, nil
}

// List returns movements and the total count for the filter.
func (s *Service) List(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, 0, ErrInvalidType
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.ListMovements(ctx, filter)
}

// Get loads one movement.
func (s *Service) Get(ctx context.Context, id int64) (Movement, error) {
	return s.repo.GetMovement(ctx, id)
}

// Drift lists products whose counter disagrees with the ledger.
func (s *Service) Drift(ctx context.Context) ([]Drift, error) {
	return s.repo.ListDrift(ctx)
}

// Reconcile rewrites drifted counters from the ledger, which is the source of
// truth for stock.
func (s *Service) Reconcile(ctx context.Context, actorID int64) (int64, error) {
	var repaired int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		repaired, err = tx.RepairCounters(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	if repaired > 0 {
		s.logger.Warn("stock counters repaired from ledger", slog.Int64("products", repaired))
		s.recordAudit(ctx, actorID, "LEDGER_RECONCILE", 0, map[string]any{"repaired": repaired})
		s.publish(ctx, StockChangedEvent{Source: "inventory.reconcile", At: time.Now()})
	}
	return repaired, nil
}

func (s *Service) publish(ctx context.Context, evt StockChangedEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.HandleStockChanged(ctx, evt); err != nil {
		s.logger.Warn("stock changed hook", slog.String("source", evt.Source), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "inventory", EntityID: fmt.Sprintf("%d", entityID), Meta: meta}); err != nil {
		s.logger.Warn("audit inventory", slog.String("action", action), slog.Any("error", err))
	}
}

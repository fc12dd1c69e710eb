package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// idempotencyModule scopes Idempotency-Key values of receive requests.
const idempotencyModule = "procurement.receive"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (PurchaseOrder, error)
	List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error)
	Receipts(ctx context.Context, orderID int64) ([]Receipt, error)
	SupplierHistory(ctx context.Context, supplierID int64, limit int) ([]PurchaseOrder, error)
	SupplierExists(ctx context.Context, id int64) (bool, error)
}

// Service orchestrates the purchase order workflow.
type Service struct {
	repo        RepositoryPort
	audit       shared.AuditRecorder
	idempotency shared.Idempotency
	events      inventory.EventHandler
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, idem shared.Idempotency, audit shared.AuditRecorder, events inventory.EventHandler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, idempotency: idem, events: events, logger: logger, now: time.Now}
}

// Create inserts a pending order numbered from the per-year sequence.
func (s *Service) Create(ctx context.Context, in CreateInput) (PurchaseOrder, error) {
	items, total, err := priceItems(in.Items)
	if err != nil {
		return PurchaseOrder{}, err
	}
	var created PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := requireSupplier(ctx, tx, in.SupplierID); err != nil {
			return err
		}
		for _, item := range items {
			if err := requireProduct(ctx, tx, item.ProductID); err != nil {
				return err
			}
		}
		now := s.now()
		seq, err := tx.NextOrderNumber(ctx, now.Year())
		if err != nil {
			return err
		}
		order, err := tx.InsertOrder(ctx, PurchaseOrder{
			OrderNumber:          FormatOrderNumber(now.Year(), seq),
			SupplierID:           in.SupplierID,
			OrderDate:            now,
			ExpectedDeliveryDate: in.ExpectedDeliveryDate,
			Status:               StatusPending,
			TotalAmount:          total,
			PaymentTerms:         in.PaymentTerms,
			ShippingMethod:       in.ShippingMethod,
			Notes:                in.Notes,
			CreatedBy:            in.ActorID,
		})
		if err != nil {
			return err
		}
		order.Items, err = insertItems(ctx, tx, order.ID, items)
		if err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, in.ActorID, "PO_CREATE", created.ID, map[string]any{"order_number": created.OrderNumber, "total": created.TotalAmount.StringFixed(2)})
	return s.reload(ctx, created), nil
}

// Update changes header fields of a pending or approved order. Items may only
// be replaced while the order is pending. Status is never changed here.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (PurchaseOrder, error) {
	var items []Item
	var err error
	replaceItems := in.Items != nil
	if replaceItems {
		if items, _, err = priceItems(in.Items); err != nil {
			return PurchaseOrder{}, err
		}
	}
	var updated PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := CheckTransition(order.Status, ActionUpdate); err != nil {
			return err
		}
		if replaceItems && order.Status != StatusPending {
			return fmt.Errorf("%w: items can only change while the order is pending, status is %s", ErrInvalidState, order.Status)
		}
		if in.SupplierID != nil {
			if err := requireSupplier(ctx, tx, *in.SupplierID); err != nil {
				return err
			}
			order.SupplierID = *in.SupplierID
		}
		if in.ExpectedDeliveryDate != nil {
			order.ExpectedDeliveryDate = in.ExpectedDeliveryDate
		}
		if in.PaymentTerms != nil {
			order.PaymentTerms = *in.PaymentTerms
		}
		if in.ShippingMethod != nil {
			order.ShippingMethod = *in.ShippingMethod
		}
		if in.Notes != nil {
			order.Notes = *in.Notes
		}
		if replaceItems {
			for _, item := range items {
				if err := requireProduct(ctx, tx, item.ProductID); err != nil {
					return err
				}
			}
			if err := tx.DeleteItems(ctx, id); err != nil {
				return err
			}
			if order.Items, err = insertItems(ctx, tx, id, items); err != nil {
				return err
			}
			order.TotalAmount = orderTotal(order.Items)
		}
		if err := tx.UpdateHeader(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, in.ActorID, "PO_UPDATE", id, map[string]any{"items_replaced": replaceItems})
	return s.reload(ctx, updated), nil
}

// Approve moves a pending order to approved.
func (s *Service) Approve(ctx context.Context, id int64, actorID int64) (PurchaseOrder, error) {
	order, err := s.transition(ctx, id, ActionApprove, func(ctx context.Context, tx TxRepository, order *PurchaseOrder) error {
		now := s.now()
		if err := tx.SetApproval(ctx, id, actorID, now); err != nil {
			return err
		}
		order.ApprovedBy = &actorID
		order.ApprovedAt = &now
		order.Status = StatusApproved
		return tx.SetStatus(ctx, id, StatusApproved)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, actorID, "PO_APPROVE", id, map[string]any{"order_number": order.OrderNumber})
	return s.reload(ctx, order), nil
}

// Cancel moves a pending or approved order to cancelled.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) (PurchaseOrder, error) {
	order, err := s.transition(ctx, id, ActionCancel, func(ctx context.Context, tx TxRepository, order *PurchaseOrder) error {
		order.Status = StatusCancelled
		return tx.SetStatus(ctx, id, StatusCancelled)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, actorID, "PO_CANCEL", id, map[string]any{"order_number": order.OrderNumber})
	return s.reload(ctx, order), nil
}

// Delete hard-deletes a pending order; items cascade.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	order, err := s.transition(ctx, id, ActionDelete, func(ctx context.Context, tx TxRepository, order *PurchaseOrder) error {
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "PO_DELETE", id, map[string]any{"order_number": order.OrderNumber})
	return nil
}

func (s *Service) transition(ctx context.Context, id int64, action Action, apply func(context.Context, TxRepository, *PurchaseOrder) error) (PurchaseOrder, error) {
	var result PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := CheckTransition(order.Status, action); err != nil {
			return err
		}
		if err := apply(ctx, tx, &order); err != nil {
			return err
		}
		result = order
		return nil
	})
	return result, err
}

// Receive records a receipt, books one purchase movement per positive
// quantity received and derives receipt and order status from the cumulative
// received quantity of every receipt of the order.
func (s *Service) Receive(ctx context.Context, in ReceiveInput) (Receipt, error) {
	if len(in.Items) == 0 {
		return Receipt{}, ErrNothingReceived
	}
	positive := false
	for i, item := range in.Items {
		switch {
		case item.ProductID <= 0:
			return Receipt{}, fmt.Errorf("%w: line %d: product_id is required", ErrValidation, i+1)
		case item.QuantityReceived < 0 || item.QuantityRejected < 0:
			return Receipt{}, fmt.Errorf("%w: line %d: quantities must not be negative", ErrValidation, i+1)
		}
		if item.QuantityReceived > 0 || item.QuantityRejected > 0 {
			positive = true
		}
	}
	if !positive {
		return Receipt{}, ErrNothingReceived
	}

	if in.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, in.IdempotencyKey, idempotencyModule); err != nil {
			return Receipt{}, err
		}
	}

	var receipt Receipt
	var order PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.LockOrder(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if err := CheckTransition(order.Status, ActionReceive); err != nil {
			return err
		}
		ordered := make(map[int64]int, len(order.Items))
		names := make(map[int64]string, len(order.Items))
		expected := 0
		for _, item := range order.Items {
			ordered[item.ProductID] += item.Quantity
			names[item.ProductID] = item.ProductName
			expected += item.Quantity
		}
		for _, item := range in.Items {
			if _, ok := ordered[item.ProductID]; !ok {
				return fmt.Errorf("%w: product %d on order %s", ErrProductNotOnOrder, item.ProductID, order.OrderNumber)
			}
		}

		receipt, err = tx.InsertReceipt(ctx, Receipt{
			PurchaseOrderID: order.ID,
			ReceivedBy:      in.ReceivedBy,
			ReceivedAt:      s.now(),
			Status:          ReceiptPartial,
			Notes:           in.Notes,
		})
		if err != nil {
			return err
		}
		for _, line := range in.Items {
			item, err := tx.InsertReceiptItem(ctx, ReceiptItem{
				ReceiptID:        receipt.ID,
				ProductID:        line.ProductID,
				QuantityReceived: line.QuantityReceived,
				QuantityRejected: line.QuantityRejected,
				RejectionReason:  line.RejectionReason,
			})
			if err != nil {
				return err
			}
			item.ProductName = names[line.ProductID]
			receipt.Items = append(receipt.Items, item)
			if line.QuantityReceived == 0 {
				continue
			}
			if _, err := inventory.Record(ctx, tx, inventory.MovementInput{
				ProductID:   line.ProductID,
				Type:        inventory.MovementPurchase,
				Quantity:    line.QuantityReceived,
				ReferenceID: order.ID,
				ActorID:     in.ReceivedBy,
				Notes:       "PO Receipt: " + order.OrderNumber,
			}); err != nil {
				return err
			}
		}

		received, err := tx.ReceivedTotal(ctx, order.ID)
		if err != nil {
			return err
		}
		receipt.Status, order.Status = receiptOutcome(received, expected)
		if receipt.Status == ReceiptComplete {
			if err := tx.SetReceiptStatus(ctx, receipt.ID, ReceiptComplete); err != nil {
				return err
			}
		}
		receipt.OrderStatus = order.Status
		return tx.SetStatus(ctx, order.ID, order.Status)
	})
	if err != nil {
		if in.IdempotencyKey != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, in.IdempotencyKey, idempotencyModule); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", in.IdempotencyKey), slog.Any("error", delErr))
			}
		}
		return Receipt{}, err
	}

	s.recordAudit(ctx, in.ReceivedBy, "PO_RECEIVE", order.ID, map[string]any{
		"order_number": order.OrderNumber,
		"receipt_id":   receipt.ID,
		"status":       string(receipt.Status),
	})
	s.publish(ctx, order.ID, receipt.Items)
	return receipt, nil
}

// receiptOutcome compares the cumulative received quantity with the ordered
// quantity.
func receiptOutcome(received, expected int) (ReceiptStatus, Status) {
	if received >= expected {
		return ReceiptComplete, StatusReceived
	}
	return ReceiptPartial, StatusPartiallyReceived
}

// Get returns one order with its items.
func (s *Service) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.Get(ctx, id)
}

// List returns orders matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	return s.repo.List(ctx, filter)
}

// Receipts lists the receipts of an order, oldest first.
func (s *Service) Receipts(ctx context.Context, orderID int64) ([]Receipt, error) {
	if _, err := s.repo.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.Receipts(ctx, orderID)
}

// SupplierHistory returns the most recent orders of a supplier.
func (s *Service) SupplierHistory(ctx context.Context, supplierID int64, limit int) ([]PurchaseOrder, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	ok, err := s.repo.SupplierExists(ctx, supplierID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSupplierNotFound
	}
	return s.repo.SupplierHistory(ctx, supplierID, limit)
}

func (s *Service) reload(ctx context.Context, fallback PurchaseOrder) PurchaseOrder {
	order, err := s.repo.Get(ctx, fallback.ID)
	if err != nil {
		s.logger.Warn("reload purchase order", slog.Int64("order_id", fallback.ID), slog.Any("error", err))
		return fallback
	}
	return order
}

func (s *Service) publish(ctx context.Context, orderID int64, items []ReceiptItem) {
	if s.events == nil {
		return
	}
	var ids []int64
	seen := map[int64]bool{}
	for _, item := range items {
		if item.QuantityReceived > 0 && !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	if len(ids) == 0 {
		return
	}
	evt := inventory.StockChangedEvent{Source: "procurement", ReferenceID: orderID, ProductIDs: ids, At: s.now()}
	if err := s.events.HandleStockChanged(ctx, evt); err != nil {
		s.logger.Warn("stock changed hook", slog.String("source", evt.Source), slog.Int64("order_id", orderID), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "purchase_order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta}); err != nil {
		s.logger.Warn("audit purchase order", slog.String("action", action), slog.Any("error", err))
	}
}

func requireSupplier(ctx context.Context, tx TxRepository, id int64) error {
	ok, err := tx.SupplierExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: id %d", ErrSupplierNotFound, id)
	}
	return nil
}

func requireProduct(ctx context.Context, tx TxRepository, id int64) error {
	ok, err := tx.ProductExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: id %d", ErrProductNotFound, id)
	}
	return nil
}

func insertItems(ctx context.Context, tx TxRepository, orderID int64, items []Item) ([]Item, error) {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		item.PurchaseOrderID = orderID
		inserted, err := tx.InsertItem(ctx, item)
		if err != nil {
			return nil, err
		}
		out = append(out, inserted)
	}
	return out, nil
}

func orderTotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}
	return total
}

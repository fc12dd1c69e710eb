package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// idempotencyModule scopes Idempotency-Key values of create requests.
const idempotencyModule = "sales"

// Store is the persistence port of the service.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Sale, error)
	List(ctx context.Context, filter ListFilter) ([]Sale, int, error)
}

// Service implements the sale transaction protocol.
type Service struct {
	store  Store
	idem   shared.Idempotency
	audit  shared.AuditRecorder
	events inventory.EventHandler
	logger *slog.Logger
}

// NewService constructs a sales service. idem, audit and events may be nil.
func NewService(store Store, idem shared.Idempotency, audit shared.AuditRecorder, events inventory.EventHandler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, idem: idem, audit: audit, events: events, logger: logger}
}

// CreateSale checks the invoice number and prices every line, then in the same
// transaction inserts the header, the items and one sale movement per item.
// Any failure leaves no rows behind.
func (s *Service) CreateSale(ctx context.Context, in CreateInput) (Sale, error) {
	in.InvoiceNumber = strings.TrimSpace(in.InvoiceNumber)
	if in.InvoiceNumber == "" {
		return Sale{}, ErrInvoiceRequired
	}
	if in.PaymentStatus == "" {
		in.PaymentStatus = StatusPaid
	}
	if !in.PaymentMethod.Valid() {
		return Sale{}, ErrInvalidPaymentMethod
	}
	if in.PaymentStatus != StatusPaid && in.PaymentStatus != StatusPending {
		return Sale{}, fmt.Errorf("%w: new sales are paid or pending", ErrInvalidPaymentStatus)
	}
	if len([]rune(in.Notes)) > MaxNotesLength {
		return Sale{}, ErrNotesTooLong
	}
	if in.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, in.IdempotencyKey, idempotencyModule); err != nil {
			return Sale{}, err
		}
	}

	var created Sale
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// A taken invoice number is a conflict even when the lines are bad.
		exists, err := tx.InvoiceExists(ctx, in.InvoiceNumber)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateInvoice
		}
		lines, totals, err := PriceLines(in.Items)
		if err != nil {
			return err
		}
		if err := CheckTotal(in.TotalAmount, totals.Total); err != nil {
			return err
		}
		if in.CustomerID != nil {
			ok, err := tx.CustomerExists(ctx, *in.CustomerID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: id %d", ErrCustomerNotFound, *in.CustomerID)
			}
		}

		// Lock and check every line before the first write. A product that
		// appears on several lines is checked against its combined quantity.
		reserved := make(map[int64]int, len(lines))
		for i := range lines {
			level, err := tx.LockProduct(ctx, lines[i].ProductID)
			if err != nil {
				return err
			}
			if !level.IsActive {
				return fmt.Errorf("%w: %s", ErrInactiveProduct, level.Name)
			}
			level.Quantity -= reserved[level.ProductID]
			if err := inventory.CheckAvailable(level, lines[i].Quantity); err != nil {
				return err
			}
			reserved[level.ProductID] += lines[i].Quantity
			lines[i].ProductName = level.Name
			lines[i].ProductSKU = level.SKU
		}

		sale, err := tx.InsertSale(ctx, Sale{
			InvoiceNumber:  in.InvoiceNumber,
			CustomerID:     in.CustomerID,
			TotalAmount:    totals.Total,
			TaxAmount:      totals.Tax,
			DiscountAmount: totals.Discount,
			PaymentMethod:  in.PaymentMethod,
			PaymentStatus:  in.PaymentStatus,
			Notes:          in.Notes,
			CreatedBy:      in.ActorID,
		})
		if err != nil {
			return err
		}
		sale.Items = make([]SaleItem, 0, len(lines))
		for _, line := range lines {
			line.SaleID = sale.ID
			item, err := tx.InsertItem(ctx, line)
			if err != nil {
				return err
			}
			if _, err := inventory.Record(ctx, tx, inventory.MovementInput{
				ProductID:   line.ProductID,
				Type:        inventory.MovementSale,
				Quantity:    -line.Quantity,
				ReferenceID: sale.ID,
				ActorID:     in.ActorID,
				Notes:       "Sale: " + sale.InvoiceNumber,
			}); err != nil {
				return err
			}
			sale.Items = append(sale.Items, item)
		}
		created = sale
		return nil
	})
	if err != nil {
		if in.IdempotencyKey != "" && s.idem != nil {
			if delErr := s.idem.Delete(ctx, in.IdempotencyKey, idempotencyModule); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", in.IdempotencyKey), slog.Any("error", delErr))
			}
		}
		return Sale{}, err
	}

	s.recordAudit(ctx, in.ActorID, "SALE_CREATE", created.ID, map[string]any{
		"invoice_number": created.InvoiceNumber,
		"total_amount":   created.TotalAmount.StringFixed(2),
		"items":          len(created.Items),
	})
	s.publish(ctx, created)
	return created, nil
}

// CancelSale flips the sale to cancelled and books one return movement per
// item. Cancelling twice is an error.
func (s *Service) CancelSale(ctx context.Context, id int64, actorID int64) (Sale, error) {
	var cancelled Sale
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.LockSale(ctx, id)
		if err != nil {
			return err
		}
		if sale.PaymentStatus == StatusCancelled {
			return ErrAlreadyCancelled
		}
		status := StatusCancelled
		if err := tx.UpdateHeader(ctx, id, UpdateInput{PaymentStatus: &status}); err != nil {
			return err
		}
		for _, item := range sale.Items {
			if _, err := inventory.Record(ctx, tx, inventory.MovementInput{
				ProductID:   item.ProductID,
				Type:        inventory.MovementReturn,
				Quantity:    item.Quantity,
				ReferenceID: sale.ID,
				ActorID:     actorID,
				Notes:       "Sale Cancellation: " + sale.InvoiceNumber,
			}); err != nil {
				return err
			}
		}
		sale.PaymentStatus = StatusCancelled
		cancelled = sale
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	s.recordAudit(ctx, actorID, "SALE_CANCEL", id, map[string]any{"invoice_number": cancelled.InvoiceNumber})
	s.publish(ctx, cancelled)
	return s.reload(ctx, cancelled)
}

// Update changes header fields. Items are immutable and cancellation only
// happens through CancelSale.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput, actorID int64) (Sale, error) {
	if in.PaymentMethod != nil && !in.PaymentMethod.Valid() {
		return Sale{}, ErrInvalidPaymentMethod
	}
	if in.PaymentStatus != nil {
		switch *in.PaymentStatus {
		case StatusPaid, StatusPending, StatusRefunded:
		case StatusCancelled:
			return Sale{}, fmt.Errorf("%w: use cancel to cancel a sale", ErrInvalidPaymentStatus)
		default:
			return Sale{}, ErrInvalidPaymentStatus
		}
	}
	if in.Notes != nil && len([]rune(*in.Notes)) > MaxNotesLength {
		return Sale{}, ErrNotesTooLong
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.LockSale(ctx, id)
		if err != nil {
			return err
		}
		if sale.PaymentStatus == StatusCancelled {
			return ErrCancelledImmutable
		}
		if in.CustomerID != nil {
			ok, err := tx.CustomerExists(ctx, *in.CustomerID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: id %d", ErrCustomerNotFound, *in.CustomerID)
			}
		}
		return tx.UpdateHeader(ctx, id, in)
	})
	if err != nil {
		return Sale{}, err
	}
	meta := map[string]any{}
	if in.PaymentStatus != nil {
		meta["payment_status"] = string(*in.PaymentStatus)
	}
	if in.PaymentMethod != nil {
		meta["payment_method"] = string(*in.PaymentMethod)
	}
	s.recordAudit(ctx, actorID, "SALE_UPDATE", id, meta)
	return s.store.Get(ctx, id)
}

// Get returns one sale with its items.
func (s *Service) Get(ctx context.Context, id int64) (Sale, error) {
	return s.store.Get(ctx, id)
}

// List returns sales matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	if filter.PaymentStatus != "" && !filter.PaymentStatus.Valid() {
		return nil, 0, ErrInvalidPaymentStatus
	}
	if filter.PaymentMethod != "" && !filter.PaymentMethod.Valid() {
		return nil, 0, ErrInvalidPaymentMethod
	}
	return s.store.List(ctx, filter)
}

func (s *Service) reload(ctx context.Context, fallback Sale) (Sale, error) {
	sale, err := s.store.Get(ctx, fallback.ID)
	if err != nil {
		s.logger.Warn("reload sale", slog.Int64("sale_id", fallback.ID), slog.Any("error", err))
		return fallback, nil
	}
	return sale, nil
}

func (s *Service) publish(ctx context.Context, sale Sale) {
	if s.events == nil {
		return
	}
	ids := make([]int64, 0, len(sale.Items))
	seen := map[int64]bool{}
	for _, item := range sale.Items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	evt := inventory.StockChangedEvent{Source: "sales", ReferenceID: sale.ID, ProductIDs: ids, At: time.Now()}
	if err := s.events.HandleStockChanged(ctx, evt); err != nil {
		s.logger.Warn("stock changed hook", slog.String("source", evt.Source), slog.Int64("sale_id", sale.ID), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "sale", EntityID: fmt.Sprintf("%d", id), Meta: meta}); err != nil {
		s.logger.Warn("audit sale", slog.String("action", action), slog.Any("error", err))
	}
}

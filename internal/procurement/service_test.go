package procurement

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/rbac"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type memoryRepo struct {
	ledger      *inventorytest.Store
	suppliers   map[int64]bool
	orders      map[int64]PurchaseOrder
	receipts    map[int64][]Receipt
	sequences   map[int]int
	nextOrder   int64
	nextItem    int64
	nextReceipt int64
}

type memoryTx struct {
	*inventorytest.Store
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		ledger:    inventorytest.NewStore(),
		suppliers: map[int64]bool{1: true},
		orders:    map[int64]PurchaseOrder{},
		receipts:  map[int64][]Receipt{},
		sequences: map[int]int{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	restore := m.ledger.Snapshot()
	orders := make(map[int64]PurchaseOrder, len(m.orders))
	for k, v := range m.orders {
		orders[k] = v
	}
	receipts := make(map[int64][]Receipt, len(m.receipts))
	for k, v := range m.receipts {
		receipts[k] = append([]Receipt(nil), v...)
	}
	sequences := make(map[int]int, len(m.sequences))
	for k, v := range m.sequences {
		sequences[k] = v
	}
	nextOrder, nextItem, nextReceipt := m.nextOrder, m.nextItem, m.nextReceipt
	if err := fn(ctx, &memoryTx{Store: m.ledger, repo: m}); err != nil {
		restore()
		m.orders, m.receipts, m.sequences = orders, receipts, sequences
		m.nextOrder, m.nextItem, m.nextReceipt = nextOrder, nextItem, nextReceipt
		return err
	}
	return nil
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, ok := m.orders[id]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	return po, nil
}

func (m *memoryRepo) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	out := []PurchaseOrder{}
	for id := m.nextOrder; id >= 1; id-- {
		po, ok := m.orders[id]
		if !ok || (filter.Status != "" && po.Status != filter.Status) {
			continue
		}
		out = append(out, po)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Receipts(ctx context.Context, orderID int64) ([]Receipt, error) {
	return append([]Receipt{}, m.receipts[orderID]...), nil
}

func (m *memoryRepo) SupplierHistory(ctx context.Context, supplierID int64, limit int) ([]PurchaseOrder, error) {
	out := []PurchaseOrder{}
	for id := m.nextOrder; id >= 1 && len(out) < limit; id-- {
		if po, ok := m.orders[id]; ok && po.SupplierID == supplierID {
			out = append(out, po)
		}
	}
	return out, nil
}

func (m *memoryRepo) SupplierExists(ctx context.Context, id int64) (bool, error) {
	return m.suppliers[id], nil
}

func (t *memoryTx) SupplierExists(ctx context.Context, id int64) (bool, error) {
	return t.repo.suppliers[id], nil
}

func (t *memoryTx) ProductExists(ctx context.Context, id int64) (bool, error) {
	return t.Level(id).ProductID == id, nil
}

func (t *memoryTx) NextOrderNumber(ctx context.Context, year int) (int, error) {
	t.repo.sequences[year]++
	return t.repo.sequences[year], nil
}

func (t *memoryTx) InsertOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	for _, existing := range t.repo.orders {
		if existing.OrderNumber == po.OrderNumber {
			return PurchaseOrder{}, ErrDuplicateNumber
		}
	}
	t.repo.nextOrder++
	po.ID = t.repo.nextOrder
	po.CreatedAt = time.Now()
	po.UpdatedAt = po.CreatedAt
	t.repo.orders[po.ID] = po
	return po, nil
}

func (t *memoryTx) InsertItem(ctx context.Context, it Item) (Item, error) {
	t.repo.nextItem++
	it.ID = t.repo.nextItem
	po := t.repo.orders[it.PurchaseOrderID]
	po.Items = append(append([]Item(nil), po.Items...), it)
	t.repo.orders[po.ID] = po
	return it, nil
}

func (t *memoryTx) DeleteItems(ctx context.Context, orderID int64) error {
	po := t.repo.orders[orderID]
	po.Items = nil
	t.repo.orders[orderID] = po
	return nil
}

func (t *memoryTx) LockOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return t.repo.Get(ctx, id)
}

func (t *memoryTx) UpdateHeader(ctx context.Context, po PurchaseOrder) error {
	current, ok := t.repo.orders[po.ID]
	if !ok {
		return ErrNotFound
	}
	po.Status = current.Status
	t.repo.orders[po.ID] = po
	return nil
}

func (t *memoryTx) SetStatus(ctx context.Context, id int64, status Status) error {
	po, ok := t.repo.orders[id]
	if !ok {
		return ErrNotFound
	}
	po.Status = status
	t.repo.orders[id] = po
	return nil
}

func (t *memoryTx) SetApproval(ctx context.Context, id, approvedBy int64, at time.Time) error {
	po := t.repo.orders[id]
	po.ApprovedBy = &approvedBy
	po.ApprovedAt = &at
	t.repo.orders[id] = po
	return nil
}

func (t *memoryTx) DeleteOrder(ctx context.Context, id int64) error {
	delete(t.repo.orders, id)
	return nil
}

func (t *memoryTx) InsertReceipt(ctx context.Context, rc Receipt) (Receipt, error) {
	t.repo.nextReceipt++
	rc.ID = t.repo.nextReceipt
	t.repo.receipts[rc.PurchaseOrderID] = append(t.repo.receipts[rc.PurchaseOrderID], rc)
	return rc, nil
}

func (t *memoryTx) InsertReceiptItem(ctx context.Context, it ReceiptItem) (ReceiptItem, error) {
	for orderID, list := range t.repo.receipts {
		for i := range list {
			if list[i].ID == it.ReceiptID {
				list[i].Items = append(list[i].Items, it)
				t.repo.receipts[orderID] = list
			}
		}
	}
	return it, nil
}

func (t *memoryTx) ReceivedTotal(ctx context.Context, orderID int64) (int, error) {
	total := 0
	for _, rc := range t.repo.receipts[orderID] {
		for _, it := range rc.Items {
			total += it.QuantityReceived
		}
	}
	return total, nil
}

func (t *memoryTx) SetReceiptStatus(ctx context.Context, receiptID int64, status ReceiptStatus) error {
	for orderID, list := range t.repo.receipts {
		for i := range list {
			if list[i].ID == receiptID {
				list[i].Status = status
				t.repo.receipts[orderID] = list
			}
		}
	}
	return nil
}

type recordingEvents struct {
	events []inventory.StockChangedEvent
}

func (r *recordingEvents) HandleStockChanged(ctx context.Context, evt inventory.StockChangedEvent) error {
	r.events = append(r.events, evt)
	return nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[module+":"+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+":"+key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key, module string) error {
	delete(m.keys, module+":"+key)
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *recordingEvents) {
	t.Helper()
	repo := newMemoryRepo()
	repo.ledger.AddProduct(inventory.StockLevel{ProductID: 10, Name: "Beras", SKU: "BRS", Quantity: 5, IsActive: true})
	repo.ledger.AddProduct(inventory.StockLevel{ProductID: 11, Name: "Minyak", SKU: "MYK", Quantity: 0, IsActive: true})
	events := &recordingEvents{}
	svc := NewService(repo, &memoryIdempotency{keys: map[string]bool{}}, nil, events, nil)
	svc.now = func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) }
	return svc, repo, events
}

func createOrder(t *testing.T, svc *Service) PurchaseOrder {
	t.Helper()
	po, err := svc.Create(context.Background(), CreateInput{
		SupplierID: 1,
		Items: []ItemInput{
			{ProductID: 10, Quantity: 6, UnitPrice: decimal.RequireFromString("12.50")},
			{ProductID: 11, Quantity: 4, UnitPrice: decimal.RequireFromString("3.333")},
		},
		ActorID: 7,
	})
	require.NoError(t, err)
	return po
}

func TestFormatOrderNumber(t *testing.T) {
	require.Equal(t, "PO-2025-0001", FormatOrderNumber(2025, 1))
	require.Equal(t, "PO-2025-0420", FormatOrderNumber(2025, 420))
	require.Equal(t, "PO-2026-12345", FormatOrderNumber(2026, 12345))
}

func TestCreateNumbersAndPricesOrders(t *testing.T) {
	svc, _, _ := newTestService(t)
	first := createOrder(t, svc)
	require.Equal(t, "PO-2025-0001", first.OrderNumber)
	require.Equal(t, StatusPending, first.Status)
	require.Len(t, first.Items, 2)
	require.True(t, first.Items[1].Subtotal.Equal(decimal.RequireFromString("13.33")))
	require.True(t, first.TotalAmount.Equal(decimal.RequireFromString("88.33")))

	second := createOrder(t, svc)
	require.Equal(t, "PO-2025-0002", second.OrderNumber)
}

func TestCreateRejectsDuplicateOrderNumber(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	first := createOrder(t, svc)

	repo.sequences[2025] = 0
	_, err := svc.Create(ctx, CreateInput{SupplierID: 1, Items: []ItemInput{{ProductID: 10, Quantity: 1, UnitPrice: decimal.NewFromInt(2)}}})
	require.ErrorIs(t, err, ErrDuplicateNumber)
	require.ErrorIs(t, err, httpx.ErrDuplicate)
	require.Len(t, repo.orders, 1)
	require.Equal(t, first.OrderNumber, repo.orders[first.ID].OrderNumber)

	rec := httptest.NewRecorder()
	httpx.RespondError(rec, err)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "order number already exists")
}

func TestCreateRejections(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{SupplierID: 1})
	require.ErrorIs(t, err, ErrNoItems)

	_, err = svc.Create(ctx, CreateInput{SupplierID: 99, Items: []ItemInput{{ProductID: 10, Quantity: 1}}})
	require.ErrorIs(t, err, ErrSupplierNotFound)
	require.ErrorIs(t, err, httpx.ErrNotFound)

	_, err = svc.Create(ctx, CreateInput{SupplierID: 1, Items: []ItemInput{{ProductID: 404, Quantity: 1}}})
	require.ErrorIs(t, err, ErrProductNotFound)

	_, err = svc.Create(ctx, CreateInput{SupplierID: 1, Items: []ItemInput{{ProductID: 10, Quantity: 0}}})
	require.ErrorIs(t, err, httpx.ErrValidation)

	require.Empty(t, repo.orders)
	require.Empty(t, repo.sequences)
}

func TestCheckTransition(t *testing.T) {
	cases := []struct {
		from   Status
		action Action
		ok     bool
	}{
		{StatusPending, ActionApprove, true},
		{StatusApproved, ActionApprove, false},
		{StatusReceived, ActionApprove, false},
		{StatusPending, ActionReceive, false},
		{StatusApproved, ActionReceive, true},
		{StatusPartiallyReceived, ActionReceive, true},
		{StatusReceived, ActionReceive, false},
		{StatusApproved, ActionUpdate, true},
		{StatusPartiallyReceived, ActionUpdate, false},
		{StatusApproved, ActionCancel, true},
		{StatusPartiallyReceived, ActionCancel, false},
		{StatusCancelled, ActionCancel, false},
		{StatusPending, ActionDelete, true},
		{StatusApproved, ActionDelete, false},
	}
	for _, tc := range cases {
		err := CheckTransition(tc.from, tc.action)
		if tc.ok {
			require.NoError(t, err, "%s from %s", tc.action, tc.from)
			continue
		}
		require.ErrorIs(t, err, httpx.ErrInvalidState, "%s from %s", tc.action, tc.from)
		require.Contains(t, err.Error(), string(tc.from))
	}
}

func TestReceiveCumulativeCompletion(t *testing.T) {
	svc, repo, events := newTestService(t)
	ctx := context.Background()
	po := createOrder(t, svc)

	_, err := svc.Receive(ctx, ReceiveInput{OrderID: po.ID, Items: []ReceiveItemInput{{ProductID: 10, QuantityReceived: 1}}})
	require.ErrorIs(t, err, ErrInvalidState)

	approved, err := svc.Approve(ctx, po.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)

	first, err := svc.Receive(ctx, ReceiveInput{
		OrderID:    po.ID,
		ReceivedBy: 7,
		Items: []ReceiveItemInput{
			{ProductID: 10, QuantityReceived: 4, QuantityRejected: 2, RejectionReason: "torn bags"},
			{ProductID: 11, QuantityReceived: 1},
		},
	})
	require.NoError(t, err)
	require.Equal(t, ReceiptPartial, first.Status)
	require.Equal(t, StatusPartiallyReceived, first.OrderStatus)
	require.Equal(t, 9, repo.ledger.Level(10).Quantity)
	require.Equal(t, 1, repo.ledger.Level(11).Quantity)
	moves := repo.ledger.Movements(10)
	require.Equal(t, inventory.MovementPurchase, moves[len(moves)-1].Type)
	require.Equal(t, "PO Receipt: PO-2025-0001", moves[len(moves)-1].Notes)
	require.Equal(t, po.ID, moves[len(moves)-1].ReferenceID)

	second, err := svc.Receive(ctx, ReceiveInput{
		OrderID: po.ID,
		Items:   []ReceiveItemInput{{ProductID: 10, QuantityReceived: 2}, {ProductID: 11, QuantityReceived: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, ReceiptComplete, second.Status)
	require.Equal(t, StatusReceived, second.OrderStatus)
	require.Equal(t, StatusReceived, repo.orders[po.ID].Status)
	require.Len(t, repo.receipts[po.ID], 2)

	_, err = svc.Receive(ctx, ReceiveInput{OrderID: po.ID, Items: []ReceiveItemInput{{ProductID: 10, QuantityReceived: 1}}})
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.Approve(ctx, po.ID, 7)
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.Cancel(ctx, po.ID, 7)
	require.ErrorIs(t, err, ErrInvalidState)

	for _, id := range []int64{10, 11} {
		require.Equal(t, repo.ledger.LedgerSum(id), repo.ledger.Level(id).Quantity)
	}
	require.Len(t, events.events, 2)
	require.Equal(t, "procurement", events.events[0].Source)
}

func TestReceiveRejections(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	po := createOrder(t, svc)
	_, err := svc.Approve(ctx, po.ID, 7)
	require.NoError(t, err)

	_, err = svc.Receive(ctx, ReceiveInput{OrderID: po.ID})
	require.ErrorIs(t, err, ErrNothingReceived)
	_, err = svc.Receive(ctx, ReceiveInput{OrderID: po.ID, Items: []ReceiveItemInput{{ProductID: 10}}})
	require.ErrorIs(t, err, ErrNothingReceived)
	_, err = svc.Receive(ctx, ReceiveInput{OrderID: po.ID, Items: []ReceiveItemInput{{ProductID: 10, QuantityReceived: -1}}})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Receive(ctx, ReceiveInput{
		OrderID:        po.ID,
		IdempotencyKey: "rcv-1",
		Items:          []ReceiveItemInput{{ProductID: 10, QuantityReceived: 2}, {ProductID: 99, QuantityReceived: 1}},
	})
	require.ErrorIs(t, err, ErrProductNotOnOrder)
	require.Equal(t, 5, repo.ledger.Level(10).Quantity)
	require.Empty(t, repo.receipts[po.ID])
	require.Equal(t, StatusApproved, repo.orders[po.ID].Status)

	_, err = svc.Receive(ctx, ReceiveInput{OrderID: po.ID, IdempotencyKey: "rcv-1", Items: []ReceiveItemInput{{ProductID: 10, QuantityReceived: 2}}})
	require.NoError(t, err)
	_, err = svc.Receive(ctx, ReceiveInput{OrderID: po.ID, IdempotencyKey: "rcv-1", Items: []ReceiveItemInput{{ProductID: 10, QuantityReceived: 2}}})
	require.True(t, errors.Is(err, shared.ErrIdempotencyConflict))
	require.Equal(t, 7, repo.ledger.Level(10).Quantity)
}

func TestUpdateItemsOnlyWhilePending(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	po := createOrder(t, svc)

	notes := "call before delivery"
	updated, err := svc.Update(ctx, po.ID, UpdateInput{
		Notes: &notes,
		Items: []ItemInput{{ProductID: 10, Quantity: 2, UnitPrice: decimal.RequireFromString("10")}},
	})
	require.NoError(t, err)
	require.Equal(t, notes, updated.Notes)
	require.Len(t, updated.Items, 1)
	require.True(t, updated.TotalAmount.Equal(decimal.RequireFromString("20")))
	require.Equal(t, StatusPending, updated.Status)

	_, err = svc.Approve(ctx, po.ID, 7)
	require.NoError(t, err)

	terms := "NET 30"
	updated, err = svc.Update(ctx, po.ID, UpdateInput{PaymentTerms: &terms})
	require.NoError(t, err)
	require.Equal(t, terms, updated.PaymentTerms)
	require.Equal(t, StatusApproved, updated.Status)

	_, err = svc.Update(ctx, po.ID, UpdateInput{Items: []ItemInput{{ProductID: 10, Quantity: 9, UnitPrice: decimal.RequireFromString("1")}}})
	require.ErrorIs(t, err, ErrInvalidState)

	missing := int64(55)
	_, err = svc.Update(ctx, po.ID, UpdateInput{SupplierID: &missing})
	require.ErrorIs(t, err, ErrSupplierNotFound)
}

func TestDeleteOnlyPending(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	pending := createOrder(t, svc)
	approved := createOrder(t, svc)
	_, err := svc.Approve(ctx, approved.ID, 7)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, pending.ID, 7))
	_, ok := repo.orders[pending.ID]
	require.False(t, ok)

	err = svc.Delete(ctx, approved.ID, 7)
	require.ErrorIs(t, err, ErrInvalidState)
	require.ErrorIs(t, svc.Delete(ctx, 404, 7), ErrNotFound)

	cancelled, err := svc.Cancel(ctx, approved.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
}

func TestSupplierHistoryLimits(t *testing.T) {
	svc, _, _ := newTestService(t)
	for i := 0; i < 3; i++ {
		createOrder(t, svc)
	}
	orders, err := svc.SupplierHistory(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, "PO-2025-0003", orders[0].OrderNumber)

	_, err = svc.SupplierHistory(context.Background(), 77, 0)
	require.ErrorIs(t, err, ErrSupplierNotFound)
}

func newTestRouter(svc *Service, admin bool) http.Handler {
	h := NewHandler(nil, svc, rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := shared.Principal{UserID: 7, Username: "clerk", IsActive: true, IsAdmin: admin}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
		})
	})
	r.Route("/purchase-orders", h.MountRoutes)
	return r
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerWorkflow(t *testing.T) {
	svc, _, _ := newTestService(t)
	admin := newTestRouter(svc, true)
	clerk := newTestRouter(svc, false)

	rec := do(t, clerk, http.MethodPost, "/purchase-orders", `{"supplier_id":1,"items":[{"product_id":10,"quantity":3,"unit_price":"2.50"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"order_number":"PO-2025-0001"`)

	rec = do(t, clerk, http.MethodPost, "/purchase-orders/1/approve", ``)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, admin, http.MethodPost, "/purchase-orders/1/approve", ``)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, clerk, http.MethodPost, "/purchase-orders/1/receive", `{"items":[{"product_id":10,"quantity_received":3}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"status":"complete"`)

	rec = do(t, admin, http.MethodPost, "/purchase-orders/1/approve", ``)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "received")

	rec = do(t, clerk, http.MethodGet, "/purchase-orders/1/receipts", ``)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"quantity_received":3`)

	rec = do(t, clerk, http.MethodGet, "/purchase-orders/supplier/1/history", ``)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, clerk, http.MethodPost, "/purchase-orders", `{"items":[]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, clerk, http.MethodGet, "/purchase-orders/999", ``)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

package purchase

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/shared"
	"github.com/stocklane/stocklane/internal/stock"
)

type variantKey struct {
	tenant  uuid.UUID
	product uuid.UUID
	variant uuid.UUID
}

type memoryState struct {
	orders    map[uuid.UUID]Order
	counters  map[uuid.UUID]int64
	records   map[variantKey]stock.Record
	movements []stock.Movement
}

func newMemoryState() *memoryState {
	return &memoryState{
		orders:   make(map[uuid.UUID]Order),
		counters: make(map[uuid.UUID]int64),
		records:  make(map[variantKey]stock.Record),
	}
}

func (s *memoryState) clone() *memoryState {
	next := newMemoryState()
	for id, order := range s.orders {
		copied := order
		copied.Lines = append([]Line(nil), order.Lines...)
		next.orders[id] = copied
	}
	for id, counter := range s.counters {
		next.counters[id] = counter
	}
	for key, record := range s.records {
		next.records[key] = record
	}
	next.movements = append([]stock.Movement(nil), s.movements...)
	return next
}

// memoryRepository applies each transaction against a snapshot and swaps it
// in on success, so a failed callback leaves no partial writes behind.
type memoryRepository struct {
	mu    sync.Mutex
	state *memoryState
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{state: newMemoryState()}
}

func (m *memoryRepository) seedRecord(record stock.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.records[variantKey{record.TenantID, record.ProductID, record.VariantID}] = record
}

func (m *memoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.state.clone()
	tx := &memoryTx{state: snapshot}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = snapshot
	return nil
}

func (m *memoryRepository) GetOrder(ctx context.Context, tenantID, orderID uuid.UUID) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.state.orders[orderID]
	if !ok || order.TenantID != tenantID {
		return Order{}, shared.NotFoundf("purchase order not found")
	}
	order.Lines = append([]Line(nil), order.Lines...)
	return order, nil
}

func (m *memoryRepository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := make([]Order, 0)
	for _, order := range m.state.orders {
		if order.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.SupplierID != uuid.Nil && order.SupplierID != filter.SupplierID {
			continue
		}
		matched = append(matched, order)
	}
	return matched, len(matched), nil
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) InsertOrder(ctx context.Context, o Order) error {
	o.Lines = append([]Line(nil), o.Lines...)
	t.state.orders[o.ID] = o
	return nil
}

func (t *memoryTx) ReplaceLines(ctx context.Context, orderID uuid.UUID, lines []Line) error {
	order, ok := t.state.orders[orderID]
	if !ok {
		return shared.NotFoundf("purchase order not found")
	}
	order.Lines = append([]Line(nil), lines...)
	t.state.orders[orderID] = order
	return nil
}

func (t *memoryTx) UpdateOrder(ctx context.Context, o Order) error {
	stored, ok := t.state.orders[o.ID]
	if !ok || stored.Version != o.Version {
		return shared.Conflictf("purchase order %s was modified concurrently", o.OrderNumber)
	}
	stored.SupplierID = o.SupplierID
	stored.Status = o.Status
	stored.TotalAmount = o.TotalAmount
	stored.Notes = o.Notes
	stored.ExpectedDelivery = o.ExpectedDelivery
	stored.Version++
	t.state.orders[o.ID] = stored
	return nil
}

func (t *memoryTx) UpdateLineReceived(ctx context.Context, orderID, lineID uuid.UUID, receivedQuantity int64) error {
	order, ok := t.state.orders[orderID]
	if !ok {
		return shared.NotFoundf("purchase order not found")
	}
	for i := range order.Lines {
		if order.Lines[i].ID == lineID {
			order.Lines[i].ReceivedQuantity = receivedQuantity
			t.state.orders[orderID] = order
			return nil
		}
	}
	return shared.NotFoundf("purchase order line %s not found", lineID)
}

func (t *memoryTx) UpdateStatus(ctx context.Context, o *Order, status Status) error {
	stored, ok := t.state.orders[o.ID]
	if !ok || stored.Version != o.Version {
		return shared.Conflictf("purchase order %s was modified concurrently", o.OrderNumber)
	}
	stored.Status = status
	stored.Version++
	stored.Lines = append([]Line(nil), o.Lines...)
	t.state.orders[o.ID] = stored
	o.Status = status
	o.Version++
	return nil
}

func (t *memoryTx) DeleteOrder(ctx context.Context, tenantID, orderID uuid.UUID) error {
	order, ok := t.state.orders[orderID]
	if !ok || order.TenantID != tenantID {
		return shared.NotFoundf("purchase order not found")
	}
	delete(t.state.orders, orderID)
	return nil
}

func (t *memoryTx) NextOrderNumber(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	t.state.counters[tenantID]++
	return t.state.counters[tenantID], nil
}

func (t *memoryTx) Stock() stock.TxRepository {
	return &memoryStockTx{state: t.state}
}

type memoryStockTx struct {
	state *memoryState
}

func (t *memoryStockTx) GetRecordForUpdate(ctx context.Context, tenantID, productID, variantID uuid.UUID) (stock.Record, error) {
	record, ok := t.state.records[variantKey{tenantID, productID, variantID}]
	if !ok {
		return stock.Record{}, shared.NotFoundf("stock record not found")
	}
	return record, nil
}

func (t *memoryStockTx) UpdateQuantity(ctx context.Context, tenantID, productID, variantID uuid.UUID, quantity int64) error {
	key := variantKey{tenantID, productID, variantID}
	record, ok := t.state.records[key]
	if !ok {
		return shared.NotFoundf("stock record not found")
	}
	record.QuantityOnHand = quantity
	t.state.records[key] = record
	return nil
}

func (t *memoryStockTx) InsertMovement(ctx context.Context, m stock.Movement) error {
	t.state.movements = append(t.state.movements, m)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Publish(ctx context.Context, tenantID uuid.UUID, event string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func seedOrder(t *testing.T, service *Service, repo *memoryRepository, tenantID uuid.UUID, lines []LineInput) Order {
	t.Helper()
	order, err := service.Create(context.Background(), CreateOrderInput{
		TenantID:   tenantID,
		SupplierID: uuid.New(),
		Lines:      lines,
	})
	require.NoError(t, err)
	return order
}

func confirmOrder(t *testing.T, service *Service, tenantID uuid.UUID, orderID uuid.UUID) Order {
	t.Helper()
	_, err := service.ChangeStatus(context.Background(), tenantID, orderID, StatusSent, uuid.Nil)
	require.NoError(t, err)
	order, err := service.ChangeStatus(context.Background(), tenantID, orderID, StatusConfirmed, uuid.Nil)
	require.NoError(t, err)
	return order
}

func TestCreateAssignsSequentialOrderNumbers(t *testing.T) {
	repo := newMemoryRepository()
	service := NewService(repo, nil, nil, nil)

	tenantID := uuid.New()
	lines := []LineInput{{ProductID: uuid.New(), VariantID: uuid.New(), VariantSKU: "WM-BLK", Quantity: 5, UnitPrice: decimal.RequireFromString("12.00")}}

	for i := 1; i <= 3; i++ {
		order := seedOrder(t, service, repo, tenantID, lines)
		assert.Equal(t, fmt.Sprintf("PO-%05d", i), order.OrderNumber)
		assert.Equal(t, StatusDraft, order.Status)
		assert.Equal(t, int64(1), order.Version)
	}

	otherTenant := seedOrder(t, service, repo, uuid.New(), lines)
	assert.Equal(t, "PO-00001", otherTenant.OrderNumber, "numbering is per tenant")
}

func TestCreateComputesTotal(t *testing.T) {
	repo := newMemoryRepository()
	service := NewService(repo, nil, nil, nil)

	order := seedOrder(t, service, repo, uuid.New(), []LineInput{
		{ProductID: uuid.New(), VariantID: uuid.New(), VariantSKU: "A", Quantity: 3, UnitPrice: decimal.RequireFromString("19.99")},
		{ProductID: uuid.New(), VariantID: uuid.New(), VariantSKU: "B", Quantity: 2, UnitPrice: decimal.RequireFromString("5.00")},
	})
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("69.97")))
}

func TestCreateValidatesLines(t *testing.T) {
	service := NewService(newMemoryRepository(), nil, nil, nil)

	_, err := service.Create(context.Background(), CreateOrderInput{TenantID: uuid.New(), SupplierID: uuid.New()})
	require.Error(t, err)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))

	_, err = service.Create(context.Background(), CreateOrderInput{
		TenantID:   uuid.New(),
		SupplierID: uuid.New(),
		Lines:      []LineInput{{ProductID: uuid.New(), VariantID: uuid.New(), VariantSKU: "A", Quantity: 0, UnitPrice: decimal.Zero}},
	})
	require.Error(t, err)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestUpdateDraftVersionConflict(t *testing.T) {
	repo := newMemoryRepository()
	service := NewService(repo, nil, nil, nil)

	tenantID := uuid.New()
	lines := []LineInput{{ProductID: uuid.New(), VariantID: uuid.New(), VariantSKU: "A", Quantity: 1, UnitPrice: decimal.RequireFromString("1.00")}}
	order := seedOrder(t, service, repo, tenantID, lines)

	updated, err := service.UpdateDraft(context.Background(), UpdateOrderInput{
		TenantID:   tenantID,
		OrderID:    order.ID,
		SupplierID: order.SupplierID,
		Lines:      lines,
		Version:    order.Version,
	})
	require.NoError(t, err)
	assert.Equal(t, order.Version+1, updated.Version)

	_, err = service.UpdateDraft(context.Background(), UpdateOrderInput{
		TenantID:   tenantID,
		OrderID:    order.ID,
		SupplierID: order.SupplierID,
		Lines:      lines,
		Version:    order.Version, // stale
	})
	require.Error(t, err)
	assert.Equal(t, shared.KindConflict, shared.KindOf(err))
}

func TestUpdateDraftRejectsNonDraft(t *testing.T) {
	repo := newMemoryRepository()
	service := NewService(repo, nil, nil, nil)

	tenantID := uuid.New()
	lines := []LineInput{{ProductID: uuid.New(), VariantID: uuid.New(), VariantSKU: "A", Quantity: 1, UnitPrice: decimal.RequireFromString("1.00")}}
	order := seedOrder(t, service, repo, tenantID, lines)
	confirmOrder(t, service, tenantID, order.ID)

	_, err := service.UpdateDraft(context.Background(), UpdateOrderInput{
		TenantID:   tenantID,
		OrderID:    order.ID,
		SupplierID: order.SupplierID,
		Lines:      lines,
		Version:    3,
	})
	require.Error(t, err)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestChangeStatusRejectsInvalidTransition(t *testing.T) {
	repo := newMemoryRepository()
	service := NewService(repo, nil, nil, nil)

	tenantID := uuid.New()
	order := seedOrder(t, service, repo, tenantID, []LineInput{
		{ProductID: uuid.New(), VariantID: uuid.New(), VariantSKU: "A", Quantity: 1, UnitPrice: decimal.RequireFromString("1.00")},
	})

	_, err := service.ChangeStatus(context.Background(), tenantID, order.ID, StatusReceived, uuid.Nil)
	require.Error(t, err)
	assert.Equal(t, shared.KindInvalidTransition, shared.KindOf(err))
}

func TestDeleteOnlyDraft(t *testing.T) {
	repo := newMemoryRepository()
	service := NewService(repo, nil, nil, nil)

	tenantID := uuid.New()
	order := seedOrder(t, service, repo, tenantID, []LineInput{
		{ProductID: uuid.New(), VariantID: uuid.New(), VariantSKU: "A", Quantity: 1, UnitPrice: decimal.RequireFromString("1.00")},
	})
	confirmOrder(t, service, tenantID, order.ID)

	err := service.Delete(context.Background(), tenantID, order.ID, uuid.Nil)
	require.Error(t, err)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))

	draft := seedOrder(t, service, repo, tenantID, []LineInput{
		{ProductID: uuid.New(), VariantID: uuid.New(), VariantSKU: "B", Quantity: 1, UnitPrice: decimal.RequireFromString("1.00")},
	})
	require.NoError(t, service.Delete(context.Background(), tenantID, draft.ID, uuid.Nil))
	_, err = service.Get(context.Background(), tenantID, draft.ID)
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
}

func TestReceivePartialThenFull(t *testing.T) {
	repo := newMemoryRepository()
	notifier := &recordingNotifier{}
	service := NewService(repo, notifier, nil, nil)

	tenantID := uuid.New()
	productID := uuid.New()
	variantID := uuid.New()
	repo.seedRecord(stock.Record{TenantID: tenantID, ProductID: productID, VariantID: variantID, SKU: "WM-BLK", QuantityOnHand: 7})

	order := seedOrder(t, service, repo, tenantID, []LineInput{
		{ProductID: productID, VariantID: variantID, VariantSKU: "WM-BLK", Quantity: 10, UnitPrice: decimal.RequireFromString("4.00")},
	})
	confirmOrder(t, service, tenantID, order.ID)
	stored, err := service.Get(context.Background(), tenantID, order.ID)
	require.NoError(t, err)
	lineID := stored.Lines[0].ID

	received, err := service.Receive(context.Background(), tenantID, order.ID, []ReceiptItem{{LineID: lineID, Quantity: 3}}, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyReceived, received.Status)
	assert.Equal(t, int64(3), received.Lines[0].ReceivedQuantity)

	record := repo.state.records[variantKey{tenantID, productID, variantID}]
	assert.Equal(t, int64(10), record.QuantityOnHand)

	received, err = service.Receive(context.Background(), tenantID, order.ID, []ReceiptItem{{LineID: lineID, Quantity: 7}}, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, received.Status)

	record = repo.state.records[variantKey{tenantID, productID, variantID}]
	assert.Equal(t, int64(17), record.QuantityOnHand)

	require.Len(t, repo.state.movements, 2)
	movement := repo.state.movements[0]
	assert.Equal(t, stock.KindPurchase, movement.Kind)
	assert.Equal(t, fmt.Sprintf("PO: %s", order.OrderNumber), movement.Reference)
	assert.Equal(t, []string{stock.EventStockChanged, stock.EventStockChanged}, notifier.events)
}

func TestReceiveOverReceiptRollsBackEverything(t *testing.T) {
	repo := newMemoryRepository()
	service := NewService(repo, nil, nil, nil)

	tenantID := uuid.New()
	productA, variantA := uuid.New(), uuid.New()
	productB, variantB := uuid.New(), uuid.New()
	repo.seedRecord(stock.Record{TenantID: tenantID, ProductID: productA, VariantID: variantA, SKU: "A-1", QuantityOnHand: 0})
	repo.seedRecord(stock.Record{TenantID: tenantID, ProductID: productB, VariantID: variantB, SKU: "B-1", QuantityOnHand: 0})

	order := seedOrder(t, service, repo, tenantID, []LineInput{
		{ProductID: productA, VariantID: variantA, VariantSKU: "A-1", Quantity: 5, UnitPrice: decimal.RequireFromString("1.00")},
		{ProductID: productB, VariantID: variantB, VariantSKU: "B-1", Quantity: 2, UnitPrice: decimal.RequireFromString("1.00")},
	})
	confirmOrder(t, service, tenantID, order.ID)
	stored, err := service.Get(context.Background(), tenantID, order.ID)
	require.NoError(t, err)

	_, err = service.Receive(context.Background(), tenantID, order.ID, []ReceiptItem{
		{LineID: stored.Lines[0].ID, Quantity: 5},
		{LineID: stored.Lines[1].ID, Quantity: 3}, // over-receipt
	}, uuid.Nil)
	require.Error(t, err)
	assert.Equal(t, shared.KindOverReceipt, shared.KindOf(err))
	assert.Contains(t, err.Error(), "B-1")
	assert.Contains(t, err.Error(), "2 remaining")

	// Nothing from the first line must have leaked out of the transaction.
	after, err := service.Get(context.Background(), tenantID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.Lines[0].ReceivedQuantity)
	assert.Equal(t, StatusConfirmed, after.Status)
	record := repo.state.records[variantKey{tenantID, productA, variantA}]
	assert.Equal(t, int64(0), record.QuantityOnHand)
	assert.Empty(t, repo.state.movements)
}

func TestReceiveRequiresReceivableStatus(t *testing.T) {
	repo := newMemoryRepository()
	service := NewService(repo, nil, nil, nil)

	tenantID := uuid.New()
	order := seedOrder(t, service, repo, tenantID, []LineInput{
		{ProductID: uuid.New(), VariantID: uuid.New(), VariantSKU: "A", Quantity: 1, UnitPrice: decimal.RequireFromString("1.00")},
	})
	stored, err := service.Get(context.Background(), tenantID, order.ID)
	require.NoError(t, err)

	_, err = service.Receive(context.Background(), tenantID, order.ID, []ReceiptItem{{LineID: stored.Lines[0].ID, Quantity: 1}}, uuid.Nil)
	require.Error(t, err)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
	assert.Contains(t, err.Error(), "Draft")
}

func TestReceiveUnknownLine(t *testing.T) {
	repo := newMemoryRepository()
	service := NewService(repo, nil, nil, nil)

	tenantID := uuid.New()
	productID, variantID := uuid.New(), uuid.New()
	repo.seedRecord(stock.Record{TenantID: tenantID, ProductID: productID, VariantID: variantID, SKU: "A", QuantityOnHand: 0})
	order := seedOrder(t, service, repo, tenantID, []LineInput{
		{ProductID: productID, VariantID: variantID, VariantSKU: "A", Quantity: 1, UnitPrice: decimal.RequireFromString("1.00")},
	})
	confirmOrder(t, service, tenantID, order.ID)

	_, err := service.Receive(context.Background(), tenantID, order.ID, []ReceiptItem{{LineID: uuid.New(), Quantity: 1}}, uuid.Nil)
	require.Error(t, err)
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
}

func TestListFiltersByStatus(t *testing.T) {
	repo := newMemoryRepository()
	service := NewService(repo, nil, nil, nil)

	tenantID := uuid.New()
	lines := []LineInput{{ProductID: uuid.New(), VariantID: uuid.New(), VariantSKU: "A", Quantity: 1, UnitPrice: decimal.RequireFromString("1.00")}}
	seedOrder(t, service, repo, tenantID, lines)
	confirmed := seedOrder(t, service, repo, tenantID, lines)
	confirmOrder(t, service, tenantID, confirmed.ID)

	orders, pagination, err := service.List(context.Background(), ListFilter{TenantID: tenantID, Status: StatusDraft})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 1, pagination.Total)
	assert.Equal(t, StatusDraft, orders[0].Status)

	_, _, err = service.List(context.Background(), ListFilter{TenantID: tenantID, Status: "Open"})
	require.Error(t, err)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

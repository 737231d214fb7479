package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocklane/stocklane/internal/platform/db"
	"github.com/stocklane/stocklane/internal/shared"
	"github.com/stocklane/stocklane/internal/stock"
)

// maxReceiveRetries bounds internal retries on transient storage conflicts.
const maxReceiveRetries = 3

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, tenantID, orderID uuid.UUID) (Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts committed receipts.
type MetricsPort interface {
	ObserveReceipt()
}

// Service orchestrates the purchase order lifecycle and the receiving
// workflow.
type Service struct {
	repo     RepositoryPort
	notifier stock.NotifierPort
	audit    AuditPort
	metrics  MetricsPort
	logger   *slog.Logger
}

// WithMetrics attaches a metrics sink. Optional.
func (s *Service) WithMetrics(metrics MetricsPort) *Service {
	s.metrics = metrics
	return s
}

// NewService constructs the purchase service.
func NewService(repo RepositoryPort, notifier stock.NotifierPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, audit: audit, logger: logger}
}

// LineInput describes one ordered item.
type LineInput struct {
	ProductID  uuid.UUID
	VariantID  uuid.UUID
	VariantSKU string
	Quantity   int64
	UnitPrice  decimal.Decimal
}

// CreateOrderInput describes a new purchase order.
type CreateOrderInput struct {
	TenantID         uuid.UUID
	SupplierID       uuid.UUID
	Lines            []LineInput
	Notes            string
	ExpectedDelivery time.Time
	CreatedBy        uuid.UUID
}

// UpdateOrderInput replaces a draft order's header and lines.
type UpdateOrderInput struct {
	TenantID         uuid.UUID
	OrderID          uuid.UUID
	SupplierID       uuid.UUID
	Lines            []LineInput
	Notes            string
	ExpectedDelivery time.Time
	Version          int64
}

// Create persists a new Draft order with a tenant-sequential order number.
func (s *Service) Create(ctx context.Context, input CreateOrderInput) (Order, error) {
	if input.TenantID == uuid.Nil || input.SupplierID == uuid.Nil {
		return Order{}, shared.Validationf("tenant and supplier are required")
	}
	lines, err := buildLines(input.Lines)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:               uuid.New(),
		TenantID:         input.TenantID,
		SupplierID:       input.SupplierID,
		Lines:            lines,
		Status:           StatusDraft,
		Notes:            input.Notes,
		ExpectedDelivery: input.ExpectedDelivery,
		CreatedBy:        input.CreatedBy,
		Version:          1,
	}
	order.TotalAmount = order.Total()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextOrderNumber(ctx, input.TenantID)
		if err != nil {
			return err
		}
		order.OrderNumber = fmt.Sprintf("PO-%05d", seq)
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, order, input.CreatedBy, "po:create", map[string]any{"order_number": order.OrderNumber, "total": order.TotalAmount.String()})
	return order, nil
}

// Get returns one order with its lines.
func (s *Service) Get(ctx context.Context, tenantID, orderID uuid.UUID) (Order, error) {
	return s.repo.GetOrder(ctx, tenantID, orderID)
}

// List returns a page of orders plus pagination metadata.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, shared.Pagination, error) {
	if filter.TenantID == uuid.Nil {
		return nil, shared.Pagination{}, shared.Validationf("tenant id required")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, shared.Validationf("unknown status %q", filter.Status)
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	orders, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return orders, shared.NewPagination(filter.Page, filter.Limit, total), nil
}

// UpdateDraft replaces header and lines of a Draft order. The caller's
// version must match or the update fails with Conflict.
func (s *Service) UpdateDraft(ctx context.Context, input UpdateOrderInput) (Order, error) {
	order, err := s.repo.GetOrder(ctx, input.TenantID, input.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status != StatusDraft {
		return Order{}, shared.Validationf("only draft orders can be edited, current status is '%s'", order.Status)
	}
	lines, err := buildLines(input.Lines)
	if err != nil {
		return Order{}, err
	}

	order.SupplierID = input.SupplierID
	order.Lines = lines
	order.Notes = input.Notes
	order.ExpectedDelivery = input.ExpectedDelivery
	order.TotalAmount = order.Total()
	order.Version = input.Version

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		return tx.ReplaceLines(ctx, order.ID, order.Lines)
	})
	if err != nil {
		return Order{}, err
	}
	order.Version++
	return order, nil
}

// ChangeStatus applies a manually requested transition after checking it
// against the transition table.
func (s *Service) ChangeStatus(ctx context.Context, tenantID, orderID uuid.UUID, requested Status, actorID uuid.UUID) (Order, error) {
	if !requested.Valid() {
		return Order{}, shared.Validationf("unknown status %q", requested)
	}
	order, err := s.repo.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := ValidateTransition(order.Status, requested); err != nil {
		return Order{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateStatus(ctx, &order, requested)
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, order, actorID, "po:status", map[string]any{"order_number": order.OrderNumber, "status": string(requested)})
	return order, nil
}

// Delete removes a Draft order and its lines.
func (s *Service) Delete(ctx context.Context, tenantID, orderID uuid.UUID, actorID uuid.UUID) error {
	order, err := s.repo.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		return err
	}
	if order.Status != StatusDraft {
		return shared.Validationf("only draft orders can be deleted, current status is '%s'", order.Status)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteOrder(ctx, tenantID, orderID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, order, actorID, "po:delete", map[string]any{"order_number": order.OrderNumber})
	return nil
}

// Receive applies one delivery against the order. All line updates, all
// stock adjustments and the status recomputation commit as a single atomic
// unit; any failure leaves order and stock untouched.
func (s *Service) Receive(ctx context.Context, tenantID, orderID uuid.UUID, items []ReceiptItem, actorID uuid.UUID) (Order, error) {
	if len(items) == 0 {
		return Order{}, shared.Validationf("at least one received item is required")
	}

	var order Order
	var movements []stock.Movement
	var err error
	for attempt := 0; attempt < maxReceiveRetries; attempt++ {
		order, movements, err = s.receiveOnce(ctx, tenantID, orderID, items, actorID)
		if err == nil || !retryableReceive(err) {
			break
		}
	}
	if err != nil {
		if db.IsTransient(err) {
			return Order{}, shared.Conflictf("receiving conflicted with a concurrent write, retry")
		}
		return Order{}, err
	}

	if s.metrics != nil {
		s.metrics.ObserveReceipt()
	}
	// Post-commit fan-out, in line order.
	for _, movement := range movements {
		if s.notifier != nil {
			if pubErr := s.notifier.Publish(ctx, movement.TenantID, stock.EventStockChanged, stock.ChangedEvent(movement)); pubErr != nil {
				s.logger.Warn("publish stock event", slog.Any("error", pubErr), slog.String("sku", movement.VariantSKU))
			}
		}
	}
	s.recordAudit(ctx, order, actorID, "po:receive", map[string]any{
		"order_number": order.OrderNumber,
		"status":       string(order.Status),
		"lines":        len(items),
	})
	return order, nil
}

// retryableReceive reports whether a failed attempt should re-read the
// order and try again: storage-level transients and version conflicts from
// a concurrent receive. Each retry revalidates against fresh state.
func retryableReceive(err error) bool {
	return db.IsTransient(err) || errors.Is(err, shared.ErrConflict)
}

func (s *Service) receiveOnce(ctx context.Context, tenantID, orderID uuid.UUID, items []ReceiptItem, actorID uuid.UUID) (Order, []stock.Movement, error) {
	order, err := s.repo.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		return Order{}, nil, err
	}
	if order.Status != StatusConfirmed && order.Status != StatusPartiallyReceived {
		return Order{}, nil, shared.Validationf("order must be Confirmed or Partially Received to receive items, current status is '%s'", order.Status)
	}

	var movements []stock.Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stockTx := tx.Stock()
		for _, item := range items {
			line, ok := order.LineByID(item.LineID)
			if !ok {
				return shared.NotFoundf("purchase order line %s not found", item.LineID)
			}
			if item.Quantity <= 0 {
				return shared.Validationf("received quantity for SKU %s must be a positive integer", line.VariantSKU)
			}
			remaining := line.Outstanding()
			if item.Quantity > remaining {
				return shared.OverReceiptf("cannot receive %d for SKU %s, only %d remaining", item.Quantity, line.VariantSKU, remaining)
			}

			line.ReceivedQuantity += item.Quantity
			if err := tx.UpdateLineReceived(ctx, order.ID, line.ID, line.ReceivedQuantity); err != nil {
				return err
			}

			movement, err := stock.Apply(ctx, stockTx, stock.AdjustInput{
				TenantID:  order.TenantID,
				ProductID: line.ProductID,
				VariantID: line.VariantID,
				Kind:      stock.KindPurchase,
				Quantity:  item.Quantity,
				Reference: fmt.Sprintf("PO: %s", order.OrderNumber),
				Note:      fmt.Sprintf("Received from PO %s", order.OrderNumber),
				ActorID:   actorID,
			})
			if err != nil {
				return err
			}
			movements = append(movements, movement)
		}

		// The version-guarded write also fences concurrent receives that
		// loaded the same order snapshot.
		return tx.UpdateStatus(ctx, &order, order.DeriveStatus())
	})
	if err != nil {
		return Order{}, nil, err
	}
	return order, movements, nil
}

func (s *Service) recordAudit(ctx context.Context, order Order, actorID uuid.UUID, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: order.TenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "purchase_order",
		EntityID: order.ID.String(),
		Meta:     meta,
	})
}

func buildLines(inputs []LineInput) ([]Line, error) {
	if len(inputs) == 0 {
		return nil, shared.Validationf("at least one order line is required")
	}
	lines := make([]Line, 0, len(inputs))
	for _, in := range inputs {
		if in.ProductID == uuid.Nil || in.VariantID == uuid.Nil || in.VariantSKU == "" {
			return nil, shared.Validationf("every line requires product, variant and SKU")
		}
		if in.Quantity < 1 {
			return nil, shared.Validationf("ordered quantity for SKU %s must be at least 1", in.VariantSKU)
		}
		if in.UnitPrice.IsNegative() {
			return nil, shared.Validationf("unit price for SKU %s must not be negative", in.VariantSKU)
		}
		lines = append(lines, Line{
			ID:              uuid.New(),
			ProductID:       in.ProductID,
			VariantID:       in.VariantID,
			VariantSKU:      in.VariantSKU,
			OrderedQuantity: in.Quantity,
			UnitPrice:       in.UnitPrice,
		})
	}
	return lines, nil
}

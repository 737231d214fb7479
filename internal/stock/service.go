package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stocklane/stocklane/internal/platform/db"
	"github.com/stocklane/stocklane/internal/shared"
)

// maxAdjustRetries bounds internal retries on transient storage conflicts.
const maxAdjustRetries = 3

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRecord(ctx context.Context, tenantID, productID, variantID uuid.UUID) (Record, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts committed adjustments.
type MetricsPort interface {
	ObserveAdjustment(kind string)
}

// Service is the single entry point that mutates stock records. Every
// change appends a matching ledger entry in the same transaction.
type Service struct {
	repo        RepositoryPort
	notifier    NotifierPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	metrics     MetricsPort
	logger      *slog.Logger
}

// WithMetrics attaches a metrics sink. Optional.
func (s *Service) WithMetrics(metrics MetricsPort) *Service {
	s.metrics = metrics
	return s
}

// NewService builds Service.
func NewService(repo RepositoryPort, notifier NotifierPort, audit AuditPort, idem *shared.IdempotencyStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, audit: audit, idempotency: idem, logger: logger}
}

// Adjust applies one stock movement. The quantity update and the ledger
// append commit atomically; a negative delta that would drive stock below
// zero fails with InsufficientStock before anything is written.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (Movement, error) {
	if err := validateAdjustInput(input); err != nil {
		return Movement{}, err
	}

	insertedKey := false
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "stock"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Movement{}, shared.Conflictf("adjustment already processed for key %q", input.IdempotencyKey)
			}
			return Movement{}, err
		}
		insertedKey = true
	}

	var movement Movement
	var err error
	for attempt := 0; attempt < maxAdjustRetries; attempt++ {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var applyErr error
			movement, applyErr = Apply(ctx, tx, input)
			return applyErr
		})
		if err == nil || !db.IsTransient(err) {
			break
		}
	}
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		if db.IsTransient(err) {
			return Movement{}, shared.Conflictf("stock adjustment conflicted with a concurrent write, retry")
		}
		return Movement{}, err
	}

	s.afterCommit(ctx, movement)
	return movement, nil
}

// Apply runs the engine core against an already-open transaction. The
// receiving workflow uses it to fold several adjustments into one atomic
// unit. Callers own commit and post-commit notification.
func Apply(ctx context.Context, tx TxRepository, input AdjustInput) (Movement, error) {
	record, err := tx.GetRecordForUpdate(ctx, input.TenantID, input.ProductID, input.VariantID)
	if err != nil {
		return Movement{}, err
	}

	delta := input.Kind.SignedDelta(input.Quantity)
	newQuantity := record.QuantityOnHand + delta
	if newQuantity < 0 {
		return Movement{}, shared.InsufficientStockf("insufficient stock for SKU %s: requested %d, short %d", record.SKU, input.Quantity, -newQuantity)
	}

	if err := tx.UpdateQuantity(ctx, input.TenantID, input.ProductID, input.VariantID, newQuantity); err != nil {
		return Movement{}, err
	}

	movement := Movement{
		ID:               uuid.New(),
		TenantID:         input.TenantID,
		ProductID:        input.ProductID,
		VariantID:        input.VariantID,
		VariantSKU:       record.SKU,
		Kind:             input.Kind,
		Quantity:         input.Quantity,
		PreviousQuantity: record.QuantityOnHand,
		NewQuantity:      newQuantity,
		Reference:        input.Reference,
		Note:             input.Note,
		PerformedBy:      input.ActorID,
		CreatedAt:        time.Now().UTC(),
	}
	if err := tx.InsertMovement(ctx, movement); err != nil {
		return Movement{}, err
	}
	return movement, nil
}

// Publish sends the stock-changed event for a committed movement and writes
// the audit trail. Failures are logged and swallowed.
func (s *Service) Publish(ctx context.Context, movement Movement) {
	s.afterCommit(ctx, movement)
}

func (s *Service) afterCommit(ctx context.Context, movement Movement) {
	if s.metrics != nil {
		s.metrics.ObserveAdjustment(string(movement.Kind))
	}
	if s.notifier != nil {
		if err := s.notifier.Publish(ctx, movement.TenantID, EventStockChanged, ChangedEvent(movement)); err != nil {
			s.logger.Warn("publish stock event", slog.Any("error", err), slog.String("sku", movement.VariantSKU))
		}
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: movement.TenantID,
			ActorID:  movement.PerformedBy,
			Action:   fmt.Sprintf("stock:%s", movement.Kind),
			Entity:   "stock_movement",
			EntityID: movement.ID.String(),
			Meta: map[string]any{
				"sku":               movement.VariantSKU,
				"quantity":          movement.Quantity,
				"previous_quantity": movement.PreviousQuantity,
				"new_quantity":      movement.NewQuantity,
				"reference":         movement.Reference,
			},
		})
	}
}

// GetRecord returns the current stock record for a triple.
func (s *Service) GetRecord(ctx context.Context, tenantID, productID, variantID uuid.UUID) (Record, error) {
	return s.repo.GetRecord(ctx, tenantID, productID, variantID)
}

// ListMovements returns a ledger page plus pagination metadata.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, shared.Pagination, error) {
	if filter.TenantID == uuid.Nil {
		return nil, shared.Pagination{}, shared.Validationf("tenant id required")
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, shared.Pagination{}, shared.Validationf("unknown movement kind %q", filter.Kind)
	}
	if filter.Limit <= 0 {
		filter.Limit = 30
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	movements, total, err := s.repo.ListMovements(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return movements, shared.NewPagination(filter.Page, filter.Limit, total), nil
}

func validateAdjustInput(input AdjustInput) error {
	if input.TenantID == uuid.Nil || input.ProductID == uuid.Nil || input.VariantID == uuid.Nil {
		return shared.Validationf("tenant, product and variant are required")
	}
	if !input.Kind.Valid() {
		return shared.Validationf("unknown movement kind %q", input.Kind)
	}
	if input.Quantity <= 0 {
		return shared.Validationf("quantity must be a positive integer")
	}
	return nil
}

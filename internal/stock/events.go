package stock

import (
	"context"

	"github.com/google/uuid"
)

// EventStockChanged is the event name published after a committed adjustment.
const EventStockChanged = "stock-updated"

// StockChangedEvent is the payload delivered to real-time consumers.
type StockChangedEvent struct {
	TenantID         uuid.UUID    `json:"tenantId"`
	ProductID        uuid.UUID    `json:"productId"`
	VariantID        uuid.UUID    `json:"variantId"`
	VariantSKU       string       `json:"variantSku"`
	Kind             MovementKind `json:"kind"`
	PreviousQuantity int64        `json:"previousQuantity"`
	NewQuantity      int64        `json:"newQuantity"`
}

// NotifierPort fans out events to interested subscribers. Publishing is
// best-effort: failures never roll back the committed change.
type NotifierPort interface {
	Publish(ctx context.Context, tenantID uuid.UUID, event string, payload any) error
}

// ChangedEvent builds the event payload for a committed movement.
func ChangedEvent(m Movement) StockChangedEvent {
	return StockChangedEvent{
		TenantID:         m.TenantID,
		ProductID:        m.ProductID,
		VariantID:        m.VariantID,
		VariantSKU:       m.VariantSKU,
		Kind:             m.Kind,
		PreviousQuantity: m.PreviousQuantity,
		NewQuantity:      m.NewQuantity,
	}
}

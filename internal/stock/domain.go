package stock

import (
	"time"

	"github.com/google/uuid"
)

// MovementKind enumerates supported stock movements.
type MovementKind string

const (
	// KindPurchase represents replenishment from a supplier.
	KindPurchase MovementKind = "purchase"
	// KindSale represents an outbound sale; the only negative kind.
	KindSale MovementKind = "sale"
	// KindReturn represents customer returns coming back to stock.
	KindReturn MovementKind = "return"
	// KindAdjustment represents manual corrections.
	KindAdjustment MovementKind = "adjustment"
)

// Valid reports whether the kind is one of the defined movement kinds.
func (k MovementKind) Valid() bool {
	switch k {
	case KindPurchase, KindSale, KindReturn, KindAdjustment:
		return true
	}
	return false
}

// SignedDelta converts a movement magnitude into the signed change applied
// to the on-hand quantity.
func (k MovementKind) SignedDelta(quantity int64) int64 {
	if k == KindSale {
		return -quantity
	}
	return quantity
}

// Record holds the current on-hand quantity for one
// (tenant, product, variant) triple. Mutated exclusively through Service.
type Record struct {
	TenantID          uuid.UUID
	ProductID         uuid.UUID
	VariantID         uuid.UUID
	SKU               string
	QuantityOnHand    int64
	LowStockThreshold int64
	UpdatedAt         time.Time
}

// Movement is one immutable ledger entry. newQuantity always equals
// previousQuantity plus the signed delta of (kind, quantity).
type Movement struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	ProductID        uuid.UUID
	VariantID        uuid.UUID
	VariantSKU       string
	Kind             MovementKind
	Quantity         int64
	PreviousQuantity int64
	NewQuantity      int64
	Reference        string
	Note             string
	PerformedBy      uuid.UUID
	CreatedAt        time.Time
}

// AdjustInput describes one requested stock adjustment.
type AdjustInput struct {
	TenantID       uuid.UUID
	ProductID      uuid.UUID
	VariantID      uuid.UUID
	Kind           MovementKind
	Quantity       int64
	Reference      string
	Note           string
	ActorID        uuid.UUID
	IdempotencyKey string
}

// MovementFilter narrows the ledger query. Zero values are ignored.
type MovementFilter struct {
	TenantID  uuid.UUID
	ProductID uuid.UUID
	Kind      MovementKind
	From      time.Time
	To        time.Time
	Page      int
	Limit     int
}

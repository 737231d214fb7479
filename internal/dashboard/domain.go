package dashboard

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Stats summarises a tenant's inventory and procurement position.
type Stats struct {
	TrackedVariants       int64           `json:"trackedVariants"`
	UnitsOnHand           int64           `json:"unitsOnHand"`
	LowStockCount         int64           `json:"lowStockCount"`
	OutOfStockCount       int64           `json:"outOfStockCount"`
	OpenPurchaseOrders    int64           `json:"openPurchaseOrders"`
	OutstandingOrderValue decimal.Decimal `json:"outstandingOrderValue"`
	MovementsLast24h      int64           `json:"movementsLast24h"`
	GeneratedAt           time.Time       `json:"generatedAt"`
}

// LowStockItem is a variant at or below its threshold, enriched with the
// quantity still inbound on open purchase orders.
type LowStockItem struct {
	ProductID         uuid.UUID `json:"productId"`
	VariantID         uuid.UUID `json:"variantId"`
	SKU               string    `json:"sku"`
	QuantityOnHand    int64     `json:"quantityOnHand"`
	LowStockThreshold int64     `json:"lowStockThreshold"`
	IncomingQuantity  int64     `json:"incomingQuantity"`
	EffectiveStock    int64     `json:"effectiveStock"`
	NeedsAlert        bool      `json:"needsAlert"`
}

// GraphPoint is one day of movement totals split by kind.
type GraphPoint struct {
	Date       string `json:"date"`
	Purchase   int64  `json:"purchase"`
	Sale       int64  `json:"sale"`
	Return     int64  `json:"return"`
	Adjustment int64  `json:"adjustment"`
}

// TopSeller aggregates sale movements for a variant over a window.
type TopSeller struct {
	ProductID uuid.UUID `json:"productId"`
	VariantID uuid.UUID `json:"variantId"`
	SKU       string    `json:"sku"`
	UnitsSold int64     `json:"unitsSold"`
	SaleCount int64     `json:"saleCount"`
}

package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/notify"
)

// EventLowStock is published on the tenant channel for each variant at or
// below its threshold.
const EventLowStock = "low-stock"

// LowStockAlert is the event payload for a flagged variant.
type LowStockAlert struct {
	TenantID          uuid.UUID `json:"tenantId"`
	ProductID         uuid.UUID `json:"productId"`
	VariantID         uuid.UUID `json:"variantId"`
	SKU               string    `json:"sku"`
	QuantityOnHand    int64     `json:"quantityOnHand"`
	LowStockThreshold int64     `json:"lowStockThreshold"`
}

// NewLowStockScanHandler builds the handler that sweeps every tenant's stock
// records and publishes alerts for variants at or below threshold.
func NewLowStockScanHandler(pool *pgxpool.Pool, publisher *notify.Publisher, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		rows, err := pool.Query(ctx, `
            SELECT tenant_id, product_id, variant_id, sku, quantity_on_hand, low_stock_threshold
              FROM stock_records
             WHERE quantity_on_hand <= low_stock_threshold
             ORDER BY tenant_id, sku`)
		if err != nil {
			return err
		}
		defer rows.Close()

		alerts := 0
		for rows.Next() {
			var alert LowStockAlert
			if err := rows.Scan(&alert.TenantID, &alert.ProductID, &alert.VariantID,
				&alert.SKU, &alert.QuantityOnHand, &alert.LowStockThreshold); err != nil {
				return err
			}
			if publisher != nil {
				if err := publisher.Publish(ctx, alert.TenantID, EventLowStock, alert); err != nil {
					logger.Warn("low stock alert publish", slog.Any("error", err), slog.String("sku", alert.SKU))
					continue
				}
			}
			alerts++
		}
		if err := rows.Err(); err != nil {
			return err
		}
		logger.Info("low stock scan done", slog.Int("alerts", alerts))
		return nil
	}
}

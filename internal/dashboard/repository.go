package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads aggregates straight from the ledger tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the dashboard repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const openStatuses = `('Sent', 'Confirmed', 'Partially Received')`

// Stats computes tenant-wide totals in one round trip per table.
func (r *Repository) Stats(ctx context.Context, tenantID uuid.UUID) (Stats, error) {
	var stats Stats
	err := r.pool.QueryRow(ctx, `
        SELECT COUNT(*),
               COALESCE(SUM(quantity_on_hand), 0),
               COUNT(*) FILTER (WHERE quantity_on_hand <= low_stock_threshold),
               COUNT(*) FILTER (WHERE quantity_on_hand = 0)
          FROM stock_records
         WHERE tenant_id = $1`, tenantID).
		Scan(&stats.TrackedVariants, &stats.UnitsOnHand, &stats.LowStockCount, &stats.OutOfStockCount)
	if err != nil {
		return Stats{}, fmt.Errorf("dashboard stats stock: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
        SELECT COUNT(DISTINCT o.id),
               COALESCE(SUM((l.ordered_quantity - l.received_quantity) * l.unit_price), 0)
          FROM purchase_orders o
          JOIN purchase_order_lines l ON l.order_id = o.id
         WHERE o.tenant_id = $1
           AND o.status IN `+openStatuses, tenantID).
		Scan(&stats.OpenPurchaseOrders, &stats.OutstandingOrderValue)
	if err != nil {
		return Stats{}, fmt.Errorf("dashboard stats orders: %w", err)
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	err = r.pool.QueryRow(ctx, `
        SELECT COUNT(*) FROM stock_movements
         WHERE tenant_id = $1 AND created_at >= $2`, tenantID, since).
		Scan(&stats.MovementsLast24h)
	if err != nil {
		return Stats{}, fmt.Errorf("dashboard stats movements: %w", err)
	}
	stats.GeneratedAt = time.Now().UTC()
	return stats, nil
}

// LowStock lists variants at or below threshold with inbound quantities from
// open purchase orders folded in.
func (r *Repository) LowStock(ctx context.Context, tenantID uuid.UUID, limit int) ([]LowStockItem, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
        SELECT s.product_id, s.variant_id, s.sku, s.quantity_on_hand, s.low_stock_threshold,
               COALESCE((
                   SELECT SUM(l.ordered_quantity - l.received_quantity)
                     FROM purchase_order_lines l
                     JOIN purchase_orders o ON o.id = l.order_id
                    WHERE o.tenant_id = s.tenant_id
                      AND l.variant_id = s.variant_id
                      AND o.status IN `+openStatuses+`
               ), 0) AS incoming
          FROM stock_records s
         WHERE s.tenant_id = $1
           AND s.quantity_on_hand <= s.low_stock_threshold
         ORDER BY s.quantity_on_hand ASC, s.sku ASC
         LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("dashboard low stock: %w", err)
	}
	defer rows.Close()

	items := make([]LowStockItem, 0)
	for rows.Next() {
		var item LowStockItem
		if err := rows.Scan(&item.ProductID, &item.VariantID, &item.SKU,
			&item.QuantityOnHand, &item.LowStockThreshold, &item.IncomingQuantity); err != nil {
			return nil, fmt.Errorf("dashboard low stock scan: %w", err)
		}
		item.EffectiveStock = item.QuantityOnHand + item.IncomingQuantity
		item.NeedsAlert = item.EffectiveStock <= item.LowStockThreshold
		items = append(items, item)
	}
	return items, rows.Err()
}

// MovementGraph totals movements per day and kind over the trailing window.
// Every day in the window is present in the result, zero-filled when quiet.
func (r *Repository) MovementGraph(ctx context.Context, tenantID uuid.UUID, days int) ([]GraphPoint, error) {
	if days <= 0 || days > 90 {
		days = 7
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(days - 1))
	rows, err := r.pool.Query(ctx, `
        SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, kind,
               COALESCE(SUM(quantity), 0)
          FROM stock_movements
         WHERE tenant_id = $1 AND created_at >= $2
         GROUP BY 1, 2`, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("dashboard movement graph: %w", err)
	}
	defer rows.Close()

	totals := map[string]map[string]int64{}
	for rows.Next() {
		var day, kind string
		var total int64
		if err := rows.Scan(&day, &kind, &total); err != nil {
			return nil, fmt.Errorf("dashboard movement graph scan: %w", err)
		}
		if totals[day] == nil {
			totals[day] = map[string]int64{}
		}
		totals[day][kind] = total
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buildGraph(today, days, totals), nil
}

// buildGraph lays out one zero-filled point per day, oldest first, and folds
// in the per-kind totals.
func buildGraph(today time.Time, days int, totals map[string]map[string]int64) []GraphPoint {
	points := make([]GraphPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		date := today.AddDate(0, 0, -i).Format("2006-01-02")
		point := GraphPoint{Date: date}
		for kind, total := range totals[date] {
			switch kind {
			case "purchase":
				point.Purchase = total
			case "sale":
				point.Sale = total
			case "return":
				point.Return = total
			case "adjustment":
				point.Adjustment = total
			}
		}
		points = append(points, point)
	}
	return points
}

// TopSellers aggregates sale movements over the trailing window.
func (r *Repository) TopSellers(ctx context.Context, tenantID uuid.UUID, window time.Duration, limit int) ([]TopSeller, error) {
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	since := time.Now().UTC().Add(-window)
	rows, err := r.pool.Query(ctx, `
        SELECT product_id, variant_id, variant_sku,
               COALESCE(SUM(quantity), 0) AS units, COUNT(*) AS sales
          FROM stock_movements
         WHERE tenant_id = $1 AND kind = 'sale' AND created_at >= $2
         GROUP BY product_id, variant_id, variant_sku
         ORDER BY units DESC, variant_sku ASC
         LIMIT $3`, tenantID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("dashboard top sellers: %w", err)
	}
	defer rows.Close()

	sellers := make([]TopSeller, 0)
	for rows.Next() {
		var s TopSeller
		if err := rows.Scan(&s.ProductID, &s.VariantID, &s.SKU, &s.UnitsSold, &s.SaleCount); err != nil {
			return nil, fmt.Errorf("dashboard top sellers scan: %w", err)
		}
		sellers = append(sellers, s)
	}
	return sellers, rows.Err()
}

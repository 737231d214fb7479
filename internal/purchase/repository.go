package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/shared"
	"github.com/stocklane/stocklane/internal/stock"
)

// Repository provides PostgreSQL backed persistence for purchase orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations. Stock returns a ledger
// handle bound to the same transaction so receiving commits as one unit.
type TxRepository interface {
	InsertOrder(ctx context.Context, o Order) error
	ReplaceLines(ctx context.Context, orderID uuid.UUID, lines []Line) error
	UpdateOrder(ctx context.Context, o Order) error
	UpdateLineReceived(ctx context.Context, orderID, lineID uuid.UUID, receivedQuantity int64) error
	UpdateStatus(ctx context.Context, o *Order, status Status) error
	DeleteOrder(ctx context.Context, tenantID, orderID uuid.UUID) error
	NextOrderNumber(ctx context.Context, tenantID uuid.UUID) (int64, error)
	Stock() stock.TxRepository
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("purchase repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetOrder returns the order with its lines in insertion order.
func (r *Repository) GetOrder(ctx context.Context, tenantID, orderID uuid.UUID) (Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, tenant_id, order_number, supplier_id, status, total_amount, notes, expected_delivery, created_by, version, created_at, updated_at
FROM purchase_orders WHERE tenant_id=$1 AND id=$2`, tenantID, orderID)
	order, err := scanOrder(row)
	if err != nil {
		return Order{}, err
	}
	lines, err := r.getLines(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	order.Lines = lines
	return order, nil
}

// ListOrders returns a page of orders (without lines) plus the total count.
func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	where := `WHERE tenant_id=$1
  AND ($2::text IS NULL OR status=$2)
  AND ($3::uuid IS NULL OR supplier_id=$3)`
	args := []any{filter.TenantID, nullStatus(filter.Status), nullID(filter.SupplierID)}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	query := fmt.Sprintf(`SELECT id, tenant_id, order_number, supplier_id, status, total_amount, notes, expected_delivery, created_by, version, created_at, updated_at
FROM purchase_orders %s
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5`, where)
	rows, err := r.pool.Query(ctx, query, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := []Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *Repository) getLines(ctx context.Context, orderID uuid.UUID) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, variant_id, variant_sku, ordered_quantity, unit_price, received_quantity
FROM purchase_order_lines WHERE order_id=$1 ORDER BY position ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLines(rows)
}

func (r *txRepository) InsertOrder(ctx context.Context, o Order) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_orders (id, tenant_id, order_number, supplier_id, status, total_amount, notes, expected_delivery, created_by, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())`,
		o.ID, o.TenantID, o.OrderNumber, o.SupplierID, string(o.Status), o.TotalAmount, o.Notes, nullTime(o.ExpectedDelivery), nullID(o.CreatedBy), o.Version)
	if err != nil {
		return err
	}
	return r.insertLines(ctx, o.ID, o.Lines)
}

func (r *txRepository) ReplaceLines(ctx context.Context, orderID uuid.UUID, lines []Line) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM purchase_order_lines WHERE order_id=$1`, orderID); err != nil {
		return err
	}
	return r.insertLines(ctx, orderID, lines)
}

func (r *txRepository) insertLines(ctx context.Context, orderID uuid.UUID, lines []Line) error {
	for i, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO purchase_order_lines (id, order_id, position, product_id, variant_id, variant_sku, ordered_quantity, unit_price, received_quantity)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			line.ID, orderID, i, line.ProductID, line.VariantID, line.VariantSKU, line.OrderedQuantity, line.UnitPrice, line.ReceivedQuantity); err != nil {
			return err
		}
	}
	return nil
}

// UpdateOrder writes the order header guarded by its version; a stale
// version fails with Conflict and increments nothing.
func (r *txRepository) UpdateOrder(ctx context.Context, o Order) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_orders
SET supplier_id=$3, status=$4, total_amount=$5, notes=$6, expected_delivery=$7, version=version+1, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2 AND version=$8`,
		o.TenantID, o.ID, o.SupplierID, string(o.Status), o.TotalAmount, o.Notes, nullTime(o.ExpectedDelivery), o.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Conflictf("purchase order %s was modified concurrently", o.OrderNumber)
	}
	return nil
}

func (r *txRepository) UpdateLineReceived(ctx context.Context, orderID, lineID uuid.UUID, receivedQuantity int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_order_lines SET received_quantity=$3
WHERE order_id=$1 AND id=$2`, orderID, lineID, receivedQuantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("purchase order line %s not found", lineID)
	}
	return nil
}

// UpdateStatus writes the status guarded by version and bumps the local
// aggregate's version on success.
func (r *txRepository) UpdateStatus(ctx context.Context, o *Order, status Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status=$3, version=version+1, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2 AND version=$4`, o.TenantID, o.ID, string(status), o.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Conflictf("purchase order %s was modified concurrently", o.OrderNumber)
	}
	o.Status = status
	o.Version++
	return nil
}

func (r *txRepository) DeleteOrder(ctx context.Context, tenantID, orderID uuid.UUID) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM purchase_order_lines WHERE order_id=$1`, orderID); err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM purchase_orders WHERE tenant_id=$1 AND id=$2`, tenantID, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("purchase order not found")
	}
	return nil
}

// NextOrderNumber increments the tenant-scoped counter atomically. The
// row lock taken by the upsert serialises concurrent order creation.
func (r *txRepository) NextOrderNumber(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var next int64
	err := r.tx.QueryRow(ctx, `INSERT INTO po_counters (tenant_id, next) VALUES ($1, 1)
ON CONFLICT (tenant_id) DO UPDATE SET next = po_counters.next + 1
RETURNING next`, tenantID).Scan(&next)
	return next, err
}

func (r *txRepository) Stock() stock.TxRepository {
	return stock.NewTxRepository(r.tx)
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var expected *time.Time
	var createdBy *uuid.UUID
	var status string
	err := row.Scan(&o.ID, &o.TenantID, &o.OrderNumber, &o.SupplierID, &status, &o.TotalAmount, &o.Notes, &expected, &createdBy, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, shared.NotFoundf("purchase order not found")
		}
		return Order{}, err
	}
	o.Status = Status(status)
	if expected != nil {
		o.ExpectedDelivery = *expected
	}
	if createdBy != nil {
		o.CreatedBy = *createdBy
	}
	return o, nil
}

func collectLines(rows pgx.Rows) ([]Line, error) {
	lines := []Line{}
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.ProductID, &line.VariantID, &line.VariantSKU, &line.OrderedQuantity, &line.UnitPrice, &line.ReceivedQuantity); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func nullID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func nullStatus(s Status) any {
	if s == "" {
		return nil
	}
	return string(s)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

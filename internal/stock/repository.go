package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/shared"
)

// Repository persists stock records and the movement ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the adjustment
// engine. The receiving workflow obtains one for its own transaction via
// NewTxRepository.
type TxRepository interface {
	GetRecordForUpdate(ctx context.Context, tenantID, productID, variantID uuid.UUID) (Record, error)
	UpdateQuantity(ctx context.Context, tenantID, productID, variantID uuid.UUID, quantity int64) error
	InsertMovement(ctx context.Context, m Movement) error
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction so the adjustment engine can
// participate in a larger atomic unit.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
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

// GetRecord returns the stock record for the triple without locking it.
func (r *Repository) GetRecord(ctx context.Context, tenantID, productID, variantID uuid.UUID) (Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT tenant_id, product_id, variant_id, sku, quantity_on_hand, low_stock_threshold, updated_at
FROM stock_records WHERE tenant_id=$1 AND product_id=$2 AND variant_id=$3`, tenantID, productID, variantID)
	return scanRecord(row)
}

// ListMovements returns a page of ledger entries sorted by creation time
// descending, plus the total count matching the filter.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	where := `WHERE tenant_id=$1
  AND ($2::uuid IS NULL OR product_id=$2)
  AND ($3::text IS NULL OR kind=$3)
  AND ($4::timestamptz IS NULL OR created_at >= $4)
  AND ($5::timestamptz IS NULL OR created_at <= $5)`
	args := []any{filter.TenantID, nullID(filter.ProductID), nullKind(filter.Kind), nullTime(filter.From), nullTime(filter.To)}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 30
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	query := fmt.Sprintf(`SELECT id, tenant_id, product_id, variant_id, variant_sku, kind, quantity, previous_quantity, new_quantity, reference, note, performed_by, created_at
FROM stock_movements %s
ORDER BY created_at DESC, id DESC
LIMIT $6 OFFSET $7`, where)
	rows, err := r.pool.Query(ctx, query, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	movements := []Movement{}
	for rows.Next() {
		var m Movement
		var performedBy *uuid.UUID
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ProductID, &m.VariantID, &m.VariantSKU, &m.Kind, &m.Quantity, &m.PreviousQuantity, &m.NewQuantity, &m.Reference, &m.Note, &performedBy, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		if performedBy != nil {
			m.PerformedBy = *performedBy
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

func (r *txRepository) GetRecordForUpdate(ctx context.Context, tenantID, productID, variantID uuid.UUID) (Record, error) {
	row := r.tx.QueryRow(ctx, `SELECT tenant_id, product_id, variant_id, sku, quantity_on_hand, low_stock_threshold, updated_at
FROM stock_records WHERE tenant_id=$1 AND product_id=$2 AND variant_id=$3 FOR UPDATE`, tenantID, productID, variantID)
	return scanRecord(row)
}

func (r *txRepository) UpdateQuantity(ctx context.Context, tenantID, productID, variantID uuid.UUID, quantity int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_records SET quantity_on_hand=$4, updated_at=NOW()
WHERE tenant_id=$1 AND product_id=$2 AND variant_id=$3`, tenantID, productID, variantID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("stock record not found")
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (id, tenant_id, product_id, variant_id, variant_sku, kind, quantity, previous_quantity, new_quantity, reference, note, performed_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		m.ID, m.TenantID, m.ProductID, m.VariantID, m.VariantSKU, string(m.Kind), m.Quantity, m.PreviousQuantity, m.NewQuantity, m.Reference, m.Note, nullID(m.PerformedBy), m.CreatedAt)
	return err
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.TenantID, &rec.ProductID, &rec.VariantID, &rec.SKU, &rec.QuantityOnHand, &rec.LowStockThreshold, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, shared.NotFoundf("stock record not found")
		}
		return Record{}, err
	}
	return rec, nil
}

func nullID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func nullKind(k MovementKind) any {
	if k == "" {
		return nil
	}
	return string(k)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

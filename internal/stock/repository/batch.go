package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kirana/kirana-backend/pkg/database"
	"github.com/kirana/kirana-backend/pkg/errors"
)

// Batch is one discrete receipt of stock for a product. Remaining starts at
// the intake quantity and only ever decreases; a separate intake creates a
// new batch. Batches are never deleted; remaining = 0 excludes them from
// FEFO selection.
type Batch struct {
	ID         string    `db:"id" json:"id"`
	ProductID  string    `db:"product_id" json:"product_id"`
	Remaining  int       `db:"remaining" json:"remaining"`
	ExpiryDate time.Time `db:"expiry_date" json:"expiry_date"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ExpiryRadar summarizes live batch units by how close they are to expiry
type ExpiryRadar struct {
	Expired          int `json:"expired"`
	ExpiringToday    int `json:"expiring_today"`
	ExpiringTomorrow int `json:"expiring_tomorrow"`
}

// BatchRepository handles batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// CreateTx creates a new batch inside a transaction
func (r *BatchRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, batch *Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}

	query := `
		INSERT INTO batches (id, product_id, remaining, expiry_date)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := tx.QueryRowxContext(ctx, query,
		batch.ID, batch.ProductID, batch.Remaining, batch.ExpiryDate,
	).Scan(&batch.CreatedAt)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}

// ListOpenForConsumptionTx loads a product's open batches inside a
// transaction, locked, in FEFO order: earliest expiry first, creation time
// as the tie-break. Exhausted batches are never selected.
func (r *BatchRepository) ListOpenForConsumptionTx(ctx context.Context, tx *sqlx.Tx, productID string) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM batches
		WHERE product_id = $1 AND remaining > 0
		ORDER BY expiry_date, created_at
		FOR UPDATE
	`
	if err := tx.SelectContext(ctx, &batches, query, productID); err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}
	return batches, nil
}

// DeductTx subtracts amount from a batch remainder inside a transaction and
// returns the new remainder.
func (r *BatchRepository) DeductTx(ctx context.Context, tx *sqlx.Tx, batchID string, amount int) (int, error) {
	var remaining int
	query := `UPDATE batches SET remaining = remaining - $2 WHERE id = $1 RETURNING remaining`
	if err := tx.QueryRowxContext(ctx, query, batchID, amount).Scan(&remaining); err != nil {
		if err == sql.ErrNoRows {
			return 0, errors.NotFound("batch")
		}
		if mapped := database.MapPQError(err); mapped != nil {
			return 0, mapped
		}
		return 0, err
	}
	return remaining, nil
}

// ListByProduct lists a product's open batches in expiry order
func (r *BatchRepository) ListByProduct(ctx context.Context, productID string) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM batches
		WHERE product_id = $1 AND remaining > 0
		ORDER BY expiry_date, created_at
	`
	if err := r.db.SelectContext(ctx, &batches, query, productID); err != nil {
		return nil, err
	}
	return batches, nil
}

// SumRemaining returns the sum of open batch remainders for a product
func (r *BatchRepository) SumRemaining(ctx context.Context, productID string) (int, error) {
	var total sql.NullInt64
	query := `SELECT SUM(remaining) FROM batches WHERE product_id = $1 AND remaining > 0`
	if err := r.db.GetContext(ctx, &total, query, productID); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

// GetAllOpen lists every open batch in expiry order
func (r *BatchRepository) GetAllOpen(ctx context.Context) ([]*Batch, error) {
	var batches []*Batch
	query := `SELECT * FROM batches WHERE remaining > 0 ORDER BY expiry_date, created_at`
	if err := r.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, err
	}
	return batches, nil
}

// GetExpiryRadar sums live batch units that are expired, expiring today, or
// expiring tomorrow, relative to the given day (midnight-truncated).
func (r *BatchRepository) GetExpiryRadar(ctx context.Context, today time.Time) (*ExpiryRadar, error) {
	var radar ExpiryRadar
	query := `
		SELECT
			COALESCE(SUM(remaining) FILTER (WHERE expiry_date < $1), 0) AS expired,
			COALESCE(SUM(remaining) FILTER (WHERE expiry_date >= $1 AND expiry_date < $1 + INTERVAL '1 day'), 0) AS expiring_today,
			COALESCE(SUM(remaining) FILTER (WHERE expiry_date >= $1 + INTERVAL '1 day' AND expiry_date < $1 + INTERVAL '2 days'), 0) AS expiring_tomorrow
		FROM batches
		WHERE remaining > 0
	`
	if err := r.db.QueryRowxContext(ctx, query, today).Scan(&radar.Expired, &radar.ExpiringToday, &radar.ExpiringTomorrow); err != nil {
		return nil, err
	}
	return &radar, nil
}

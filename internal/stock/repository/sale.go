package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/kirana/kirana-backend/pkg/database"
)

// SaleEvent is one unit-consuming sale, append-only. Name and unit price are
// captured at sale time so later price changes do not rewrite history.
type SaleEvent struct {
	ID        string          `db:"id" json:"id"`
	ProductID string          `db:"product_id" json:"product_id"`
	Name      string          `db:"name" json:"name"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	SoldAt    time.Time       `db:"sold_at" json:"sold_at"`
}

// ProductVelocity is the unit count sold for one product inside a window
type ProductVelocity struct {
	ProductID string `db:"product_id" json:"product_id"`
	Name      string `db:"name" json:"name"`
	UnitsSold int    `db:"units_sold" json:"units_sold"`
}

// SalesSummary aggregates revenue and sale count
type SalesSummary struct {
	Revenue    decimal.Decimal `db:"revenue" json:"revenue"`
	TotalSales int64           `db:"total_sales" json:"total_sales"`
}

// SaleRepository handles sale event persistence
type SaleRepository struct {
	db *database.DB
}

// NewSaleRepository creates a new sale repository
func NewSaleRepository(db *database.DB) *SaleRepository {
	return &SaleRepository{db: db}
}

// InsertTx appends a sale event inside a transaction
func (r *SaleRepository) InsertTx(ctx context.Context, tx *sqlx.Tx, sale *SaleEvent) error {
	if sale.ID == "" {
		sale.ID = uuid.New().String()
	}

	query := `
		INSERT INTO sale_events (id, product_id, name, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING sold_at
	`

	err := tx.QueryRowxContext(ctx, query,
		sale.ID, sale.ProductID, sale.Name, sale.UnitPrice,
	).Scan(&sale.SoldAt)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}

// Recent lists the most recent sales, newest first
func (r *SaleRepository) Recent(ctx context.Context, limit int) ([]*SaleEvent, error) {
	var sales []*SaleEvent
	query := `SELECT * FROM sale_events ORDER BY sold_at DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &sales, query, limit); err != nil {
		return nil, err
	}
	return sales, nil
}

// VelocityWindow counts units sold per product in [since, until)
func (r *SaleRepository) VelocityWindow(ctx context.Context, since, until time.Time) ([]*ProductVelocity, error) {
	var velocities []*ProductVelocity
	query := `
		SELECT product_id, MIN(name) AS name, COUNT(*) AS units_sold
		FROM sale_events
		WHERE sold_at >= $1 AND sold_at < $2
		GROUP BY product_id
	`
	if err := r.db.SelectContext(ctx, &velocities, query, since, until); err != nil {
		return nil, err
	}
	return velocities, nil
}

// Summary aggregates total revenue and sale count over all sale events
func (r *SaleRepository) Summary(ctx context.Context) (*SalesSummary, error) {
	var summary SalesSummary
	query := `SELECT COALESCE(SUM(unit_price), 0) AS revenue, COUNT(*) AS total_sales FROM sale_events`
	if err := r.db.GetContext(ctx, &summary, query); err != nil {
		return nil, err
	}
	return &summary, nil
}

package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/kirana/kirana-backend/pkg/database"
	"github.com/kirana/kirana-backend/pkg/errors"
)

// Product is the aggregate stock record for one barcode. Quantity is
// denormalized: it must equal the sum of the product's open batch remainders.
type Product struct {
	Barcode     string          `db:"barcode" json:"barcode"`
	Name        string          `db:"name" json:"name"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	Quantity    int             `db:"quantity" json:"quantity"`
	LastUpdated time.Time       `db:"last_updated" json:"last_updated"`
}

// ProductRepository handles product persistence
type ProductRepository struct {
	db *database.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *database.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByBarcode gets a product by barcode
func (r *ProductRepository) GetByBarcode(ctx context.Context, barcode string) (*Product, error) {
	var product Product
	query := `SELECT * FROM products WHERE barcode = $1`
	if err := r.db.GetContext(ctx, &product, query, barcode); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.UnknownProduct(barcode)
		}
		if mapped := database.MapPQError(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}
	return &product, nil
}

// List lists products, optionally filtered by a name or barcode substring,
// most recently updated first.
func (r *ProductRepository) List(ctx context.Context, search string) ([]*Product, error) {
	var products []*Product

	if search == "" {
		query := `SELECT * FROM products ORDER BY last_updated DESC`
		if err := r.db.SelectContext(ctx, &products, query); err != nil {
			return nil, err
		}
		return products, nil
	}

	query := `
		SELECT * FROM products
		WHERE name ILIKE '%' || $1 || '%' OR barcode ILIKE '%' || $1 || '%'
		ORDER BY last_updated DESC
	`
	if err := r.db.SelectContext(ctx, &products, query, search); err != nil {
		return nil, err
	}
	return products, nil
}

// GetForUpdateTx loads a product inside a transaction with a row lock.
// Concurrent ledger operations on the same product serialize on this lock.
func (r *ProductRepository) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, barcode string) (*Product, error) {
	var product Product
	query := `SELECT * FROM products WHERE barcode = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &product, query, barcode); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.UnknownProduct(barcode)
		}
		if mapped := database.MapPQError(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}
	return &product, nil
}

// InsertTx creates a product inside a transaction
func (r *ProductRepository) InsertTx(ctx context.Context, tx *sqlx.Tx, product *Product) error {
	query := `
		INSERT INTO products (barcode, name, unit_price, quantity)
		VALUES ($1, $2, $3, $4)
		RETURNING last_updated
	`
	err := tx.QueryRowxContext(ctx, query,
		product.Barcode, product.Name, product.UnitPrice, product.Quantity,
	).Scan(&product.LastUpdated)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}

// SetQuantityTx writes the aggregate quantity inside a transaction
func (r *ProductRepository) SetQuantityTx(ctx context.Context, tx *sqlx.Tx, barcode string, quantity int) error {
	query := `UPDATE products SET quantity = $2, last_updated = now() WHERE barcode = $1`
	result, err := tx.ExecContext(ctx, query, barcode, quantity)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.UnknownProduct(barcode)
	}

	return nil
}

// UpdateInfoTx updates product metadata (name, unit price) inside a transaction
func (r *ProductRepository) UpdateInfoTx(ctx context.Context, tx *sqlx.Tx, barcode, name string, unitPrice decimal.Decimal) error {
	query := `UPDATE products SET name = $2, unit_price = $3, last_updated = now() WHERE barcode = $1`
	result, err := tx.ExecContext(ctx, query, barcode, name, unitPrice)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.UnknownProduct(barcode)
	}

	return nil
}

// CountCritical counts products with quantity at or below the threshold
func (r *ProductRepository) CountCritical(ctx context.Context, threshold int) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM products WHERE quantity <= $1`
	if err := r.db.GetContext(ctx, &count, query, threshold); err != nil {
		return 0, err
	}
	return count, nil
}

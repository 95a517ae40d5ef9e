package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirana/kirana-backend/internal/stock/repository"
	"github.com/kirana/kirana-backend/pkg/database"
	"github.com/kirana/kirana-backend/pkg/errors"
	"github.com/kirana/kirana-backend/pkg/logger"
	"github.com/kirana/kirana-backend/pkg/testutil"
)

func newProductRepo(t *testing.T) (*repository.ProductRepository, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	db := database.FromSqlx(mockDB.DB, logger.New("test", "test"))
	return repository.NewProductRepository(db), mockDB
}

func TestGetByBarcode_Found(t *testing.T) {
	repo, mockDB := newProductRepo(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(`SELECT * FROM products WHERE barcode = $1`).
		WithArgs("8901000001").
		WillReturnRows(testutil.MockRows("barcode", "name", "unit_price", "quantity", "last_updated").
			AddRow("8901000001", "Amul Milk", "25.00", 6, time.Now()))

	product, err := repo.GetByBarcode(context.Background(), "8901000001")
	require.NoError(t, err)
	assert.Equal(t, "Amul Milk", product.Name)
	assert.Equal(t, 6, product.Quantity)
	assert.Equal(t, "25", product.UnitPrice.String())

	mockDB.ExpectationsWereMet(t)
}

func TestGetByBarcode_Unknown(t *testing.T) {
	repo, mockDB := newProductRepo(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(`SELECT * FROM products WHERE barcode = $1`).
		WithArgs("nope").
		WillReturnRows(testutil.MockRows("barcode", "name", "unit_price", "quantity", "last_updated"))

	product, err := repo.GetByBarcode(context.Background(), "nope")
	assert.Nil(t, product)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownProduct))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 404, appErr.StatusCode)

	mockDB.ExpectationsWereMet(t)
}

func TestList_WithSearch(t *testing.T) {
	repo, mockDB := newProductRepo(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(`SELECT * FROM products WHERE name ILIKE '%' || $1 || '%' OR barcode ILIKE '%' || $1 || '%' ORDER BY last_updated DESC`).
		WithArgs("milk").
		WillReturnRows(testutil.MockRows("barcode", "name", "unit_price", "quantity", "last_updated").
			AddRow("8901000001", "Amul Milk", "25.00", 6, time.Now()))

	products, err := repo.List(context.Background(), "milk")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "8901000001", products[0].Barcode)

	mockDB.ExpectationsWereMet(t)
}

func TestSetQuantityTx_DeadlockMapsToStoreConflict(t *testing.T) {
	repo, mockDB := newProductRepo(t)
	defer mockDB.Close()
	ctx := context.Background()

	mockDB.ExpectBegin()
	mockDB.ExpectExec(`UPDATE products SET quantity = $2, last_updated = now() WHERE barcode = $1`).
		WithArgs("8901000001", 3).
		WillReturnError(&pq.Error{Code: "40P01"})

	tx, err := mockDB.DB.Beginx()
	require.NoError(t, err)

	err = repo.SetQuantityTx(ctx, tx, "8901000001", 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStoreConflict))
	assert.True(t, database.IsConflict(err))
}

func TestSetQuantityTx_CheckViolation(t *testing.T) {
	repo, mockDB := newProductRepo(t)
	defer mockDB.Close()
	ctx := context.Background()

	mockDB.ExpectBegin()
	mockDB.ExpectExec(`UPDATE products SET quantity = $2, last_updated = now() WHERE barcode = $1`).
		WithArgs("8901000001", -1).
		WillReturnError(&pq.Error{Code: "23514", Constraint: "quantity_non_negative"})

	tx, err := mockDB.DB.Beginx()
	require.NoError(t, err)

	err = repo.SetQuantityTx(ctx, tx, "8901000001", -1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestInsertTx_DuplicateBarcode(t *testing.T) {
	repo, mockDB := newProductRepo(t)
	defer mockDB.Close()
	ctx := context.Background()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(`INSERT INTO products (barcode, name, unit_price, quantity) VALUES ($1, $2, $3, $4) RETURNING last_updated`).
		WithArgs("8901000001", "Amul Milk", sqlmock.AnyArg(), 5).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "products_pkey"})

	tx, err := mockDB.DB.Beginx()
	require.NoError(t, err)

	err = repo.InsertTx(ctx, tx, &repository.Product{
		Barcode:  "8901000001",
		Name:     "Amul Milk",
		Quantity: 5,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

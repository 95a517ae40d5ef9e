package service_test

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirana/kirana-backend/internal/stock/repository"
	"github.com/kirana/kirana-backend/internal/stock/service"
	"github.com/kirana/kirana-backend/pkg/database"
	"github.com/kirana/kirana-backend/pkg/errors"
	"github.com/kirana/kirana-backend/pkg/logger"
	"github.com/kirana/kirana-backend/pkg/messaging"
	"github.com/kirana/kirana-backend/pkg/testutil"
)

const (
	selectProductForUpdate = `SELECT * FROM products WHERE barcode = $1 FOR UPDATE`
	selectOpenBatches      = `SELECT * FROM batches WHERE product_id = $1 AND remaining > 0 ORDER BY expiry_date, created_at FOR UPDATE`
	deductBatch            = `UPDATE batches SET remaining = remaining - $2 WHERE id = $1 RETURNING remaining`
	setQuantity            = `UPDATE products SET quantity = $2, last_updated = now() WHERE barcode = $1`
	insertProduct          = `INSERT INTO products (barcode, name, unit_price, quantity) VALUES ($1, $2, $3, $4) RETURNING last_updated`
	insertBatch            = `INSERT INTO batches (id, product_id, remaining, expiry_date) VALUES ($1, $2, $3, $4) RETURNING created_at`
	insertSale             = `INSERT INTO sale_events (id, product_id, name, unit_price) VALUES ($1, $2, $3, $4) RETURNING sold_at`
)

func newTestService(t *testing.T) (*service.StockService, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	log := logger.New("test", "test")
	db := database.FromSqlx(mockDB.DB, log)

	svc := service.NewStockService(
		db,
		repository.NewProductRepository(db),
		repository.NewBatchRepository(db),
		repository.NewSaleRepository(db),
		nil, // events stay off in unit tests
		nil,
		log,
	)
	return svc, mockDB
}

func productRow(barcode, name string, quantity int) *sqlmock.Rows {
	return testutil.MockRows("barcode", "name", "unit_price", "quantity", "last_updated").
		AddRow(barcode, name, "25.00", quantity, time.Now())
}

// sameDayAs matches a time argument that falls on the expected calendar day
type sameDayAs struct {
	day time.Time
}

func (m sameDayAs) Match(v driver.Value) bool {
	ts, ok := v.(time.Time)
	if !ok {
		return false
	}
	y1, m1, d1 := m.day.Date()
	y2, m2, d2 := ts.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func TestSell_ConsumesBatchesInExpiryOrder(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()
	ctx := context.Background()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(selectProductForUpdate).
		WithArgs("8901000001").
		WillReturnRows(productRow("8901000001", "Amul Milk", 8))

	mockDB.ExpectQuery(selectOpenBatches).
		WithArgs("8901000001").
		WillReturnRows(testutil.MockRows("id", "product_id", "remaining", "expiry_date", "created_at").
			AddRow("b1", "8901000001", 2, time.Now().AddDate(0, 0, 1), time.Now()).
			AddRow("b2", "8901000001", 3, time.Now().AddDate(0, 0, 2), time.Now()).
			AddRow("b3", "8901000001", 3, time.Now().AddDate(0, 0, 3), time.Now()))

	// 4 units: batch b1 fully drained, b2 partially
	mockDB.ExpectQuery(deductBatch).
		WithArgs("b1", 2).
		WillReturnRows(testutil.MockRows("remaining").AddRow(0))
	mockDB.ExpectQuery(deductBatch).
		WithArgs("b2", 2).
		WillReturnRows(testutil.MockRows("remaining").AddRow(1))

	mockDB.ExpectExec(setQuantity).
		WithArgs("8901000001", 4).
		WillReturnResult(sqlmock.NewResult(0, 1))

	for i := 0; i < 4; i++ {
		mockDB.ExpectQuery(insertSale).
			WillReturnRows(testutil.MockRows("sold_at").AddRow(time.Now()))
	}
	mockDB.ExpectCommit()

	result, err := svc.Sell(ctx, "8901000001", 4)
	require.NoError(t, err)

	assert.Equal(t, 4, result.NewQuantity)
	assert.False(t, result.Diverged)
	require.Len(t, result.BatchesTouched, 2)
	assert.Equal(t, messaging.BatchTouch{BatchID: "b1", Deducted: 2, Remaining: 0}, result.BatchesTouched[0])
	assert.Equal(t, messaging.BatchTouch{BatchID: "b2", Deducted: 2, Remaining: 1}, result.BatchesTouched[1])

	mockDB.ExpectationsWereMet(t)
}

func TestSell_InsufficientStock(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()
	ctx := context.Background()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(selectProductForUpdate).
		WithArgs("8901000001").
		WillReturnRows(productRow("8901000001", "Amul Milk", 1))
	mockDB.ExpectRollback()

	result, err := svc.Sell(ctx, "8901000001", 2)
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 409, appErr.StatusCode)

	mockDB.ExpectationsWereMet(t)
}

func TestSell_UnknownProduct(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(selectProductForUpdate).
		WithArgs("0000").
		WillReturnRows(testutil.MockRows("barcode", "name", "unit_price", "quantity", "last_updated"))
	mockDB.ExpectRollback()

	_, err := svc.Sell(context.Background(), "0000", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownProduct))

	mockDB.ExpectationsWereMet(t)
}

func TestSell_InvalidQuantity(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	for _, qty := range []int{0, -3} {
		_, err := svc.Sell(context.Background(), "8901000001", qty)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidQuantity))
	}

	mockDB.ExpectationsWereMet(t)
}

func TestSell_RetriesOnSerializationFailure(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()
	ctx := context.Background()

	// First attempt loses the race
	mockDB.ExpectBegin()
	mockDB.ExpectQuery(selectProductForUpdate).
		WithArgs("8901000001").
		WillReturnError(&pq.Error{Code: "40001"})
	mockDB.ExpectRollback()

	// Second attempt replays the same delta and succeeds
	mockDB.ExpectBegin()
	mockDB.ExpectQuery(selectProductForUpdate).
		WithArgs("8901000001").
		WillReturnRows(productRow("8901000001", "Amul Milk", 5))
	mockDB.ExpectQuery(selectOpenBatches).
		WithArgs("8901000001").
		WillReturnRows(testutil.MockRows("id", "product_id", "remaining", "expiry_date", "created_at").
			AddRow("b1", "8901000001", 5, time.Now().AddDate(0, 0, 4), time.Now()))
	mockDB.ExpectQuery(deductBatch).
		WithArgs("b1", 1).
		WillReturnRows(testutil.MockRows("remaining").AddRow(4))
	mockDB.ExpectExec(setQuantity).
		WithArgs("8901000001", 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery(insertSale).
		WillReturnRows(testutil.MockRows("sold_at").AddRow(time.Now()))
	mockDB.ExpectCommit()

	result, err := svc.Sell(ctx, "8901000001", 1)
	require.NoError(t, err)
	assert.Equal(t, 4, result.NewQuantity)

	mockDB.ExpectationsWereMet(t)
}

func TestSell_GivesUpAfterRepeatedConflicts(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	for i := 0; i < 3; i++ {
		mockDB.ExpectBegin()
		mockDB.ExpectQuery(selectProductForUpdate).
			WithArgs("8901000001").
			WillReturnError(&pq.Error{Code: "40001"})
		mockDB.ExpectRollback()
	}

	_, err := svc.Sell(context.Background(), "8901000001", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStoreConflict))

	mockDB.ExpectationsWereMet(t)
}

func TestIntake_NewProductDerivesExpiryFromShelfLife(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()
	ctx := context.Background()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(selectProductForUpdate).
		WithArgs("8901000002").
		WillReturnRows(testutil.MockRows("barcode", "name", "unit_price", "quantity", "last_updated"))
	mockDB.ExpectQuery(insertProduct).
		WithArgs("8901000002", "Amul Milk 500ml", sqlmock.AnyArg(), 10).
		WillReturnRows(testutil.MockRows("last_updated").AddRow(time.Now()))

	// Dairy defaults to a four day shelf life
	mockDB.ExpectQuery(insertBatch).
		WithArgs(sqlmock.AnyArg(), "8901000002", 10, sameDayAs{time.Now().AddDate(0, 0, 4)}).
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
	mockDB.ExpectCommit()

	result, err := svc.Intake(ctx, service.IntakeRequest{
		Barcode:  "8901000002",
		Name:     "Amul Milk 500ml",
		Quantity: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, result.NewQuantity)
	assert.NotEmpty(t, result.CreatedBatchID)

	mockDB.ExpectationsWereMet(t)
}

func TestIntake_ExistingProductUsesSuppliedExpiry(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()
	ctx := context.Background()

	expiry := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(selectProductForUpdate).
		WithArgs("8901000001").
		WillReturnRows(productRow("8901000001", "Amul Milk", 3))
	mockDB.ExpectExec(setQuantity).
		WithArgs("8901000001", 8).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery(insertBatch).
		WithArgs(sqlmock.AnyArg(), "8901000001", 5, sameDayAs{expiry}).
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
	mockDB.ExpectCommit()

	result, err := svc.Intake(ctx, service.IntakeRequest{
		Barcode:        "8901000001",
		Quantity:       5,
		ExpiryDate:     expiry,
		ExpirySupplied: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 8, result.NewQuantity)

	mockDB.ExpectationsWereMet(t)
}

func TestIntake_UnknownBarcodeWithoutName(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(selectProductForUpdate).
		WithArgs("4040404040").
		WillReturnRows(testutil.MockRows("barcode", "name", "unit_price", "quantity", "last_updated"))
	mockDB.ExpectRollback()

	_, err := svc.Intake(context.Background(), service.IntakeRequest{
		Barcode:  "4040404040",
		Quantity: 2,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingProductInfo))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 422, appErr.StatusCode)

	mockDB.ExpectationsWereMet(t)
}

func TestIntake_RejectsNonPositiveQuantity(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	_, err := svc.Intake(context.Background(), service.IntakeRequest{Barcode: "x", Quantity: 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidQuantity))

	mockDB.ExpectationsWereMet(t)
}

func TestCorrect_NegativeFloorsAggregateAtZero(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()
	ctx := context.Background()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(selectProductForUpdate).
		WithArgs("8901000001").
		WillReturnRows(productRow("8901000001", "Amul Milk", 3))
	mockDB.ExpectQuery(selectOpenBatches).
		WithArgs("8901000001").
		WillReturnRows(testutil.MockRows("id", "product_id", "remaining", "expiry_date", "created_at").
			AddRow("b1", "8901000001", 3, time.Now().AddDate(0, 0, 2), time.Now()))
	mockDB.ExpectQuery(deductBatch).
		WithArgs("b1", 3).
		WillReturnRows(testutil.MockRows("remaining").AddRow(0))
	mockDB.ExpectExec(setQuantity).
		WithArgs("8901000001", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	result, err := svc.Correct(ctx, "8901000001", -5)
	require.NoError(t, err)
	assert.Equal(t, 0, result.NewQuantity)
	assert.True(t, result.Diverged)

	mockDB.ExpectationsWereMet(t)
}

func TestCorrect_PositiveCreatesBatch(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()
	ctx := context.Background()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(selectProductForUpdate).
		WithArgs("8901000001").
		WillReturnRows(productRow("8901000001", "Amul Milk", 3))
	mockDB.ExpectExec(setQuantity).
		WithArgs("8901000001", 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery(insertBatch).
		WithArgs(sqlmock.AnyArg(), "8901000001", 4, sameDayAs{time.Now().AddDate(0, 0, 4)}).
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
	mockDB.ExpectCommit()

	result, err := svc.Correct(ctx, "8901000001", 4)
	require.NoError(t, err)
	assert.Equal(t, 7, result.NewQuantity)
	assert.NotEmpty(t, result.CreatedBatchID)

	mockDB.ExpectationsWereMet(t)
}

func TestCorrect_ZeroDelta(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	_, err := svc.Correct(context.Background(), "8901000001", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidQuantity))

	mockDB.ExpectationsWereMet(t)
}

func TestSell_DivergenceStillDecrementsAggregate(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()
	ctx := context.Background()

	// Aggregate claims 5 units but batches only hold 2
	mockDB.ExpectBegin()
	mockDB.ExpectQuery(selectProductForUpdate).
		WithArgs("8901000001").
		WillReturnRows(productRow("8901000001", "Amul Milk", 5))
	mockDB.ExpectQuery(selectOpenBatches).
		WithArgs("8901000001").
		WillReturnRows(testutil.MockRows("id", "product_id", "remaining", "expiry_date", "created_at").
			AddRow("b1", "8901000001", 2, time.Now().AddDate(0, 0, 1), time.Now()))
	mockDB.ExpectQuery(deductBatch).
		WithArgs("b1", 2).
		WillReturnRows(testutil.MockRows("remaining").AddRow(0))
	mockDB.ExpectExec(setQuantity).
		WithArgs("8901000001", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for i := 0; i < 4; i++ {
		mockDB.ExpectQuery(insertSale).
			WillReturnRows(testutil.MockRows("sold_at").AddRow(time.Now()))
	}
	mockDB.ExpectCommit()

	result, err := svc.Sell(ctx, "8901000001", 4)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewQuantity)
	assert.True(t, result.Diverged)

	mockDB.ExpectationsWereMet(t)
}

package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirana/kirana-backend/internal/stock/repository"
	"github.com/kirana/kirana-backend/pkg/database"
	"github.com/kirana/kirana-backend/pkg/errors"
	"github.com/kirana/kirana-backend/pkg/logger"
	"github.com/kirana/kirana-backend/pkg/testutil"
)

func newBatchRepo(t *testing.T) (*repository.BatchRepository, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	db := database.FromSqlx(mockDB.DB, logger.New("test", "test"))
	return repository.NewBatchRepository(db), mockDB
}

func TestCreateTx_AssignsID(t *testing.T) {
	repo, mockDB := newBatchRepo(t)
	defer mockDB.Close()
	ctx := context.Background()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(`INSERT INTO batches (id, product_id, remaining, expiry_date) VALUES ($1, $2, $3, $4) RETURNING created_at`).
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))

	tx, err := mockDB.DB.Beginx()
	require.NoError(t, err)

	batch := &repository.Batch{
		ProductID:  "8901000001",
		Remaining:  5,
		ExpiryDate: time.Now().AddDate(0, 0, 4),
	}
	err = repo.CreateTx(ctx, tx, batch)
	require.NoError(t, err)
	assert.NotEmpty(t, batch.ID)
	assert.False(t, batch.CreatedAt.IsZero())
}

func TestListOpenForConsumptionTx_FEFOOrder(t *testing.T) {
	repo, mockDB := newBatchRepo(t)
	defer mockDB.Close()
	ctx := context.Background()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(`SELECT * FROM batches WHERE product_id = $1 AND remaining > 0 ORDER BY expiry_date, created_at FOR UPDATE`).
		WithArgs("8901000001").
		WillReturnRows(testutil.MockRows("id", "product_id", "remaining", "expiry_date", "created_at").
			AddRow("b1", "8901000001", 2, time.Now().AddDate(0, 0, 1), time.Now()).
			AddRow("b2", "8901000001", 3, time.Now().AddDate(0, 0, 2), time.Now()))

	tx, err := mockDB.DB.Beginx()
	require.NoError(t, err)

	batches, err := repo.ListOpenForConsumptionTx(ctx, tx, "8901000001")
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "b1", batches[0].ID)
	assert.Equal(t, "b2", batches[1].ID)
}

func TestDeductTx_RemainingCheckViolation(t *testing.T) {
	repo, mockDB := newBatchRepo(t)
	defer mockDB.Close()
	ctx := context.Background()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(`UPDATE batches SET remaining = remaining - $2 WHERE id = $1 RETURNING remaining`).
		WithArgs("b1", 10).
		WillReturnError(&pq.Error{Code: "23514", Constraint: "remaining_non_negative"})

	tx, err := mockDB.DB.Beginx()
	require.NoError(t, err)

	_, err = repo.DeductTx(ctx, tx, "b1", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestSumRemaining_NoBatches(t *testing.T) {
	repo, mockDB := newBatchRepo(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(`SELECT SUM(remaining) FROM batches WHERE product_id = $1 AND remaining > 0`).
		WithArgs("8901000001").
		WillReturnRows(testutil.MockRows("sum").AddRow(nil))

	total, err := repo.SumRemaining(context.Background(), "8901000001")
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	mockDB.ExpectationsWereMet(t)
}

func TestGetExpiryRadar(t *testing.T) {
	repo, mockDB := newBatchRepo(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(`COALESCE(SUM(remaining) FILTER`).
		WillReturnRows(testutil.MockRows("expired", "expiring_today", "expiring_tomorrow").
			AddRow(3, 1, 7))

	radar, err := repo.GetExpiryRadar(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, radar.Expired)
	assert.Equal(t, 1, radar.ExpiringToday)
	assert.Equal(t, 7, radar.ExpiringTomorrow)

	mockDB.ExpectationsWereMet(t)
}

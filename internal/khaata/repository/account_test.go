package repository_test

import (
	"context"
	goerrors "errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirana/kirana-backend/internal/khaata/repository"
	"github.com/kirana/kirana-backend/pkg/database"
	"github.com/kirana/kirana-backend/pkg/errors"
	"github.com/kirana/kirana-backend/pkg/logger"
	"github.com/kirana/kirana-backend/pkg/testutil"
)

func newAccountRepo(t *testing.T) (*repository.AccountRepository, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	db := database.FromSqlx(mockDB.DB, logger.New("test", "test"))
	return repository.NewAccountRepository(db), mockDB
}

func TestList_UnrecognizedErrorPassesThrough(t *testing.T) {
	repo, mockDB := newAccountRepo(t)
	defer mockDB.Close()

	cause := goerrors.New("driver hiccup")
	mockDB.ExpectQuery(`SELECT * FROM khaata_accounts ORDER BY name`).
		WillReturnError(cause)

	_, err := repo.List(context.Background())
	require.Error(t, err)
	// The original error survives untouched rather than being swallowed by
	// a nil AppError mapping.
	assert.EqualError(t, err, "driver hiccup")
	var appErr *errors.AppError
	assert.False(t, goerrors.As(err, &appErr))

	mockDB.ExpectationsWereMet(t)
}

func TestGet_ConnectionFailureMapsToStoreUnavailable(t *testing.T) {
	repo, mockDB := newAccountRepo(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(`SELECT * FROM khaata_accounts WHERE id = $1`).
		WithArgs("acc-1").
		WillReturnError(&pq.Error{Code: "08006", Message: "connection failure"})

	_, err := repo.Get(context.Background(), "acc-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStoreUnavailable))

	mockDB.ExpectationsWereMet(t)
}

func TestAdjustBalance_DeadlockMapsToStoreConflict(t *testing.T) {
	repo, mockDB := newAccountRepo(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(`UPDATE khaata_accounts SET balance = balance + $2, updated_at = now() WHERE id = $1 RETURNING *`).
		WithArgs("acc-1", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "40P01", Message: "deadlock detected"})

	_, err := repo.AdjustBalance(context.Background(), "acc-1", decimal.NewFromInt(10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStoreConflict))

	mockDB.ExpectationsWereMet(t)
}

package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kirana/kirana-backend/pkg/database"
	"github.com/kirana/kirana-backend/pkg/errors"
)

// Account is one customer's running credit balance. A positive balance is
// money the customer owes the store.
type Account struct {
	ID        string          `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Phone     *string         `db:"phone" json:"phone,omitempty"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// AccountRepository handles khaata account persistence
type AccountRepository struct {
	db *database.DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// List returns all accounts ordered by name
func (r *AccountRepository) List(ctx context.Context) ([]*Account, error) {
	var accounts []*Account
	query := `SELECT * FROM khaata_accounts ORDER BY name`
	if err := r.db.SelectContext(ctx, &accounts, query); err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}
	return accounts, nil
}

// Get returns one account by ID
func (r *AccountRepository) Get(ctx context.Context, id string) (*Account, error) {
	var account Account
	query := `SELECT * FROM khaata_accounts WHERE id = $1`
	if err := r.db.GetContext(ctx, &account, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("khaata account")
		}
		if mapped := database.MapPQError(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}
	return &account, nil
}

// Create inserts a new account
func (r *AccountRepository) Create(ctx context.Context, account *Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}

	query := `
		INSERT INTO khaata_accounts (id, name, phone, balance)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		account.ID, account.Name, account.Phone, account.Balance,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}

// AdjustBalance atomically applies a signed delta to the account balance and
// returns the updated account.
func (r *AccountRepository) AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (*Account, error) {
	var account Account
	query := `
		UPDATE khaata_accounts
		SET balance = balance + $2, updated_at = now()
		WHERE id = $1
		RETURNING *`

	if err := r.db.GetContext(ctx, &account, query, id, delta); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("khaata account")
		}
		if mapped := database.MapPQError(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}
	return &account, nil
}

// Delete removes an account
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM khaata_accounts WHERE id = $1`, id)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound("khaata account")
	}
	return nil
}

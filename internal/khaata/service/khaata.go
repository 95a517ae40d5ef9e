package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/kirana/kirana-backend/internal/khaata/events"
	"github.com/kirana/kirana-backend/internal/khaata/repository"
	"github.com/kirana/kirana-backend/pkg/errors"
	"github.com/kirana/kirana-backend/pkg/logger"
)

// KhaataService manages customer credit accounts
type KhaataService struct {
	accounts  *repository.AccountRepository
	publisher *events.KhaataEventPublisher
	logger    *logger.Logger
}

// NewKhaataService creates a new khaata service
func NewKhaataService(accounts *repository.AccountRepository, publisher *events.KhaataEventPublisher, log *logger.Logger) *KhaataService {
	return &KhaataService{
		accounts:  accounts,
		publisher: publisher,
		logger:    log.WithComponent("khaata-service"),
	}
}

// ListAccounts returns all customer accounts
func (s *KhaataService) ListAccounts(ctx context.Context) ([]*repository.Account, error) {
	return s.accounts.List(ctx)
}

// GetAccount returns one account by ID
func (s *KhaataService) GetAccount(ctx context.Context, id string) (*repository.Account, error) {
	return s.accounts.Get(ctx, id)
}

// CreateAccount registers a new customer account. The opening balance may be
// non-zero when the store migrates an existing paper khaata.
func (s *KhaataService) CreateAccount(ctx context.Context, account *repository.Account) error {
	if account.Name == "" {
		return errors.BadRequest("account name is required")
	}
	return s.accounts.Create(ctx, account)
}

// AdjustBalance applies a signed delta to an account balance. Positive
// deltas record new credit taken, negative deltas record repayments.
func (s *KhaataService) AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (*repository.Account, error) {
	if delta.IsZero() {
		return nil, errors.BadRequest("delta must be non-zero")
	}

	account, err := s.accounts.AdjustBalance(ctx, id, delta)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("account_id", account.ID).
		Str("delta", delta.String()).
		Str("balance", account.Balance.String()).
		Msg("khaata balance adjusted")

	s.publisher.PublishBalanceAdjusted(ctx, account.ID, account.Name, delta, account.Balance)

	return account, nil
}

// DeleteAccount removes a customer account
func (s *KhaataService) DeleteAccount(ctx context.Context, id string) error {
	return s.accounts.Delete(ctx, id)
}

package events

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/kirana/kirana-backend/pkg/logger"
	"github.com/kirana/kirana-backend/pkg/messaging"
)

// KhaataEventPublisher publishes khaata account events
type KhaataEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewKhaataEventPublisher creates a new khaata event publisher
func NewKhaataEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*KhaataEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeKhaataEvents, "stock-service", log)
	if err != nil {
		return nil, err
	}

	return &KhaataEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishBalanceAdjusted publishes a balance adjusted event
func (p *KhaataEventPublisher) PublishBalanceAdjusted(ctx context.Context, accountID, name string, delta, newBalance decimal.Decimal) {
	if p == nil {
		return
	}

	err := p.publisher.Publish(ctx, messaging.EventBalanceAdjusted, messaging.BalanceAdjustedEvent{
		AccountID:  accountID,
		Name:       name,
		Delta:      delta,
		NewBalance: newBalance,
	})
	if err != nil {
		p.logger.Error().Err(err).Str("account_id", accountID).Msg("failed to publish balance adjusted event")
	}
}

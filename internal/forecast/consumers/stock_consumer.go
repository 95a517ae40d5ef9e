package consumers

import (
	"context"

	"github.com/kirana/kirana-backend/internal/forecast/service"
	"github.com/kirana/kirana-backend/pkg/logger"
	"github.com/kirana/kirana-backend/pkg/messaging"
)

// StockEventConsumer invalidates cached forecast snapshots whenever the
// stock ledger changes.
type StockEventConsumer struct {
	consumer *messaging.Consumer
	service  *service.ForecastService
	logger   *logger.Logger
}

// NewStockEventConsumer creates a new stock event consumer
func NewStockEventConsumer(rmq *messaging.RabbitMQ, svc *service.ForecastService, log *logger.Logger) (*StockEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "forecast-service.stock-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeStockEvents, "stock.#"); err != nil {
		return nil, err
	}

	c := &StockEventConsumer{
		consumer: consumer,
		service:  svc,
		logger:   log,
	}

	consumer.RegisterHandler(messaging.EventProductUpdated, c.handleLedgerChange)
	consumer.RegisterHandler(messaging.EventSaleRecorded, c.handleLedgerChange)
	consumer.RegisterHandler(messaging.EventBatchConsumed, c.handleLedgerChange)

	return c, nil
}

// Start starts consuming messages
func (c *StockEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *StockEventConsumer) handleLedgerChange(ctx context.Context, event *messaging.Event) error {
	c.logger.Debug().
		Str("event_type", event.Type).
		Str("event_id", event.ID).
		Msg("ledger changed, invalidating forecast cache")

	return c.service.Invalidate(ctx)
}

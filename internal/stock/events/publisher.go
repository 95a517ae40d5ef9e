package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirana/kirana-backend/pkg/logger"
	"github.com/kirana/kirana-backend/pkg/messaging"
)

// StockEventPublisher publishes stock ledger events to the change feed.
// Publish failures never fail the committed ledger operation; they are logged
// and the event is dropped.
type StockEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewStockEventPublisher creates a new stock event publisher
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, "stock-service", log)
	if err != nil {
		return nil, err
	}

	return &StockEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishProductUpdated publishes a product aggregate update
func (p *StockEventPublisher) PublishProductUpdated(ctx context.Context, data messaging.ProductUpdatedEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventProductUpdated, data); err != nil {
		p.logger.Error().Err(err).Str("barcode", data.Barcode).Msg("failed to publish product updated event")
	}
}

// PublishBatchCreated publishes a new batch notification
func (p *StockEventPublisher) PublishBatchCreated(ctx context.Context, batchID, barcode string, remaining int, expiry time.Time) {
	if p == nil {
		return
	}
	data := messaging.BatchCreatedEvent{
		BatchID:    batchID,
		Barcode:    barcode,
		Remaining:  remaining,
		ExpiryDate: expiry,
	}
	if err := p.publisher.Publish(ctx, messaging.EventBatchCreated, data); err != nil {
		p.logger.Error().Err(err).Str("barcode", barcode).Msg("failed to publish batch created event")
	}
}

// PublishBatchConsumed publishes the batch-touched set of a consumption
func (p *StockEventPublisher) PublishBatchConsumed(ctx context.Context, data messaging.BatchConsumedEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventBatchConsumed, data); err != nil {
		p.logger.Error().Err(err).Str("barcode", data.Barcode).Msg("failed to publish batch consumed event")
	}
}

// PublishStockDiverged publishes a reconciliation warning when the batch
// ledger could not cover a deduction
func (p *StockEventPublisher) PublishStockDiverged(ctx context.Context, barcode string, requested, uncovered int) {
	if p == nil {
		return
	}
	data := messaging.StockDivergedEvent{
		Barcode:   barcode,
		Requested: requested,
		Uncovered: uncovered,
	}
	if err := p.publisher.Publish(ctx, messaging.EventStockDiverged, data); err != nil {
		p.logger.Error().Err(err).Str("barcode", barcode).Msg("failed to publish stock diverged event")
	}
}

// PublishSaleRecorded publishes a recorded sale
func (p *StockEventPublisher) PublishSaleRecorded(ctx context.Context, saleID, barcode, name string, unitPrice decimal.Decimal, quantity int, soldAt time.Time) {
	if p == nil {
		return
	}
	data := messaging.SaleRecordedEvent{
		SaleID:    saleID,
		Barcode:   barcode,
		Name:      name,
		UnitPrice: unitPrice,
		Quantity:  quantity,
		SoldAt:    soldAt,
	}
	if err := p.publisher.Publish(ctx, messaging.EventSaleRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("barcode", barcode).Msg("failed to publish sale recorded event")
	}
}

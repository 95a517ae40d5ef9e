package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	// Stock ledger events
	EventProductUpdated = "stock.product.updated"
	EventBatchCreated   = "stock.batch.created"
	EventBatchConsumed  = "stock.batch.consumed"
	EventStockDiverged  = "stock.diverged"

	// Sale events
	EventSaleRecorded = "stock.sale.recorded"

	// Khaata events
	EventBalanceAdjusted = "khaata.balance.adjusted"
)

// Exchange names
const (
	ExchangeStockEvents  = "stock.events"
	ExchangeKhaataEvents = "khaata.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.New().String()
}

// Stock events

// BatchTouch describes one batch deduction inside a consumption.
type BatchTouch struct {
	BatchID   string `json:"batch_id"`
	Deducted  int    `json:"deducted"`
	Remaining int    `json:"remaining"`
}

// ProductUpdatedEvent is published after every committed ledger operation.
type ProductUpdatedEvent struct {
	Barcode     string `json:"barcode"`
	Name        string `json:"name"`
	Delta       int    `json:"delta"`
	NewQuantity int    `json:"new_quantity"`
	Operation   string `json:"operation"` // intake, sale, correction
}

// BatchCreatedEvent is published when an intake creates a new batch.
type BatchCreatedEvent struct {
	BatchID    string    `json:"batch_id"`
	Barcode    string    `json:"barcode"`
	Remaining  int       `json:"remaining"`
	ExpiryDate time.Time `json:"expiry_date"`
}

// BatchConsumedEvent carries the batch-touched set of one consumption.
type BatchConsumedEvent struct {
	Barcode     string       `json:"barcode"`
	Requested   int          `json:"requested"`
	NewQuantity int          `json:"new_quantity"`
	Touched     []BatchTouch `json:"touched"`
}

// StockDivergedEvent is published when a deduction exhausts all batches before
// covering the requested amount. The aggregate and the batch ledger no longer
// agree and need reconciliation.
type StockDivergedEvent struct {
	Barcode   string `json:"barcode"`
	Requested int    `json:"requested"`
	Uncovered int    `json:"uncovered"`
}

// SaleRecordedEvent is published for every unit-consuming sale.
type SaleRecordedEvent struct {
	SaleID    string          `json:"sale_id"`
	Barcode   string          `json:"barcode"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	SoldAt    time.Time       `json:"sold_at"`
}

// Khaata events

// BalanceAdjustedEvent is published when a customer account balance changes.
type BalanceAdjustedEvent struct {
	AccountID  string          `json:"account_id"`
	Name       string          `json:"name"`
	Delta      decimal.Decimal `json:"delta"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/kirana/kirana-backend/internal/stock/repository"
	"github.com/kirana/kirana-backend/internal/stock/shelflife"
	"github.com/kirana/kirana-backend/pkg/database"
	"github.com/kirana/kirana-backend/pkg/errors"
	"github.com/kirana/kirana-backend/pkg/messaging"
)

// maxConflictRetries bounds transparent retries of ledger transactions that
// lose a concurrency race. The retry replays the original logical delta
// against freshly read state; no partial deduction survives a failed attempt.
const maxConflictRetries = 3

// Operation names carried on change feed events
const (
	OpIntake     = "intake"
	OpSale       = "sale"
	OpCorrection = "correction"
)

// IntakeRequest describes one stock receipt
type IntakeRequest struct {
	Barcode        string
	Name           string
	UnitPrice      decimal.Decimal
	HasUnitPrice   bool
	Quantity       int
	ExpiryDate     time.Time
	ExpirySupplied bool
}

// ApplyResult reports the outcome of one committed ledger operation
type ApplyResult struct {
	Barcode        string                 `json:"barcode"`
	NewQuantity    int                    `json:"new_quantity"`
	BatchesTouched []messaging.BatchTouch `json:"batches_touched,omitempty"`
	CreatedBatchID string                 `json:"created_batch_id,omitempty"`
	Diverged       bool                   `json:"diverged"`
}

// Intake receives stock: creates exactly one new batch and atomically
// increments the product aggregate. Unknown barcodes are registered on the
// fly when a name is available (resolved by the caller or the catalog
// resolver); otherwise the intake fails with MissingProductInfo.
func (s *StockService) Intake(ctx context.Context, req IntakeRequest) (*ApplyResult, error) {
	if req.Quantity <= 0 {
		return nil, errors.InvalidQuantity("intake quantity must be positive")
	}

	result := &ApplyResult{Barcode: req.Barcode}
	var pending pendingEvents

	err := s.withConflictRetry(ctx, func(tx *sqlx.Tx) error {
		pending = pendingEvents{}

		product, err := s.products.GetForUpdateTx(ctx, tx, req.Barcode)
		switch {
		case errors.Is(err, errors.ErrUnknownProduct):
			name := req.Name
			if name == "" {
				name = s.resolveName(ctx, req.Barcode)
			}
			if name == "" {
				return errors.MissingProductInfo(req.Barcode)
			}
			product = &repository.Product{
				Barcode:   req.Barcode,
				Name:      name,
				UnitPrice: req.UnitPrice,
				Quantity:  req.Quantity,
			}
			if err := s.products.InsertTx(ctx, tx, product); err != nil {
				// Two terminals registering the same new barcode race on the
				// primary key; the loser retries and lands on the update path.
				if errors.Is(err, errors.ErrConflict) {
					return errors.StoreConflict(err)
				}
				return err
			}
		case err != nil:
			return err
		default:
			newQty := product.Quantity + req.Quantity
			if err := s.products.SetQuantityTx(ctx, tx, req.Barcode, newQty); err != nil {
				return err
			}
			if req.Name != "" || req.HasUnitPrice {
				name := product.Name
				if req.Name != "" {
					name = req.Name
				}
				price := product.UnitPrice
				if req.HasUnitPrice {
					price = req.UnitPrice
				}
				if err := s.products.UpdateInfoTx(ctx, tx, req.Barcode, name, price); err != nil {
					return err
				}
				product.Name = name
				product.UnitPrice = price
			}
			product.Quantity = newQty
		}

		batch := &repository.Batch{
			ProductID:  req.Barcode,
			Remaining:  req.Quantity,
			ExpiryDate: s.batchExpiry(req, product.Name),
		}
		if err := s.batches.CreateTx(ctx, tx, batch); err != nil {
			return err
		}

		result.NewQuantity = product.Quantity
		result.CreatedBatchID = batch.ID

		pending.productUpdated = &messaging.ProductUpdatedEvent{
			Barcode:     req.Barcode,
			Name:        product.Name,
			Delta:       req.Quantity,
			NewQuantity: product.Quantity,
			Operation:   OpIntake,
		}
		pending.batchCreated = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishPending(ctx, pending)
	return result, nil
}

// Sell consumes stock for a sale: deducts quantity from batches in FEFO
// order, decrements the aggregate, and appends sale events in one
// transaction. A sale that would drive the aggregate negative is rejected
// with InsufficientStock and leaves no trace.
func (s *StockService) Sell(ctx context.Context, barcode string, quantity int) (*ApplyResult, error) {
	if quantity <= 0 {
		return nil, errors.InvalidQuantity("sale quantity must be positive")
	}

	result := &ApplyResult{Barcode: barcode}
	var pending pendingEvents

	err := s.withConflictRetry(ctx, func(tx *sqlx.Tx) error {
		pending = pendingEvents{}

		product, err := s.products.GetForUpdateTx(ctx, tx, barcode)
		if err != nil {
			return err
		}

		if product.Quantity < quantity {
			return errors.InsufficientStock(barcode, product.Quantity, quantity)
		}

		touched, uncovered, err := s.consumeBatches(ctx, tx, barcode, quantity)
		if err != nil {
			return err
		}

		newQty := product.Quantity - quantity
		if err := s.products.SetQuantityTx(ctx, tx, barcode, newQty); err != nil {
			return err
		}

		// One sale event per unit keeps the event count equal to the unit
		// count the forecasting model aggregates over.
		var firstSale *repository.SaleEvent
		for i := 0; i < quantity; i++ {
			sale := &repository.SaleEvent{
				ProductID: barcode,
				Name:      product.Name,
				UnitPrice: product.UnitPrice,
			}
			if err := s.sales.InsertTx(ctx, tx, sale); err != nil {
				return err
			}
			if firstSale == nil {
				firstSale = sale
			}
		}

		result.NewQuantity = newQty
		result.BatchesTouched = touched
		result.Diverged = uncovered > 0

		pending.productUpdated = &messaging.ProductUpdatedEvent{
			Barcode:     barcode,
			Name:        product.Name,
			Delta:       -quantity,
			NewQuantity: newQty,
			Operation:   OpSale,
		}
		pending.batchConsumed = &messaging.BatchConsumedEvent{
			Barcode:     barcode,
			Requested:   quantity,
			NewQuantity: newQty,
			Touched:     touched,
		}
		pending.sale = firstSale
		pending.saleQuantity = quantity
		if uncovered > 0 {
			pending.diverged = &messaging.StockDivergedEvent{
				Barcode:   barcode,
				Requested: quantity,
				Uncovered: uncovered,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishPending(ctx, pending)
	return result, nil
}

// Correct applies a signed manual correction. Positive deltas behave like an
// intake for an already-registered product. Negative deltas deduct in FEFO
// order but floor the aggregate at zero instead of rejecting over-deduction.
// No sale events are recorded.
func (s *StockService) Correct(ctx context.Context, barcode string, delta int) (*ApplyResult, error) {
	if delta == 0 {
		return nil, errors.InvalidQuantity("correction delta must be non-zero")
	}

	if delta > 0 {
		return s.correctPositive(ctx, barcode, delta)
	}
	return s.correctNegative(ctx, barcode, -delta)
}

func (s *StockService) correctPositive(ctx context.Context, barcode string, delta int) (*ApplyResult, error) {
	result := &ApplyResult{Barcode: barcode}
	var pending pendingEvents

	err := s.withConflictRetry(ctx, func(tx *sqlx.Tx) error {
		pending = pendingEvents{}

		product, err := s.products.GetForUpdateTx(ctx, tx, barcode)
		if err != nil {
			return err
		}

		newQty := product.Quantity + delta
		if err := s.products.SetQuantityTx(ctx, tx, barcode, newQty); err != nil {
			return err
		}

		batch := &repository.Batch{
			ProductID:  barcode,
			Remaining:  delta,
			ExpiryDate: s.defaultExpiry(product.Name),
		}
		if err := s.batches.CreateTx(ctx, tx, batch); err != nil {
			return err
		}

		result.NewQuantity = newQty
		result.CreatedBatchID = batch.ID

		pending.productUpdated = &messaging.ProductUpdatedEvent{
			Barcode:     barcode,
			Name:        product.Name,
			Delta:       delta,
			NewQuantity: newQty,
			Operation:   OpCorrection,
		}
		pending.batchCreated = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishPending(ctx, pending)
	return result, nil
}

func (s *StockService) correctNegative(ctx context.Context, barcode string, n int) (*ApplyResult, error) {
	result := &ApplyResult{Barcode: barcode}
	var pending pendingEvents

	err := s.withConflictRetry(ctx, func(tx *sqlx.Tx) error {
		pending = pendingEvents{}

		product, err := s.products.GetForUpdateTx(ctx, tx, barcode)
		if err != nil {
			return err
		}

		touched, uncovered, err := s.consumeBatches(ctx, tx, barcode, n)
		if err != nil {
			return err
		}

		// Corrections floor the aggregate at zero, never below.
		newQty := product.Quantity - n
		if newQty < 0 {
			newQty = 0
		}
		if err := s.products.SetQuantityTx(ctx, tx, barcode, newQty); err != nil {
			return err
		}

		result.NewQuantity = newQty
		result.BatchesTouched = touched
		result.Diverged = uncovered > 0

		pending.productUpdated = &messaging.ProductUpdatedEvent{
			Barcode:     barcode,
			Name:        product.Name,
			Delta:       -n,
			NewQuantity: newQty,
			Operation:   OpCorrection,
		}
		pending.batchConsumed = &messaging.BatchConsumedEvent{
			Barcode:     barcode,
			Requested:   n,
			NewQuantity: newQty,
			Touched:     touched,
		}
		if uncovered > 0 {
			pending.diverged = &messaging.StockDivergedEvent{
				Barcode:   barcode,
				Requested: n,
				Uncovered: uncovered,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishPending(ctx, pending)
	return result, nil
}

// consumeBatches walks the product's open batches in FEFO order, deducting
// min(remaining, outstanding) from each until the requested amount is covered
// or the batches are exhausted. The uncovered remainder is returned; it is a
// reconciliation divergence, not an error.
func (s *StockService) consumeBatches(ctx context.Context, tx *sqlx.Tx, barcode string, n int) ([]messaging.BatchTouch, int, error) {
	batches, err := s.batches.ListOpenForConsumptionTx(ctx, tx, barcode)
	if err != nil {
		return nil, 0, err
	}

	outstanding := n
	var touched []messaging.BatchTouch

	for _, batch := range batches {
		if outstanding == 0 {
			break
		}
		deduct := batch.Remaining
		if outstanding < deduct {
			deduct = outstanding
		}
		remaining, err := s.batches.DeductTx(ctx, tx, batch.ID, deduct)
		if err != nil {
			return nil, 0, err
		}
		touched = append(touched, messaging.BatchTouch{
			BatchID:   batch.ID,
			Deducted:  deduct,
			Remaining: remaining,
		})
		outstanding -= deduct
	}

	if outstanding > 0 {
		s.logger.Warn().
			Str("barcode", barcode).
			Int("requested", n).
			Int("uncovered", outstanding).
			Msg("batch ledger exhausted before covering deduction; aggregate and batches diverge")
	}

	return touched, outstanding, nil
}

// withConflictRetry runs fn in a transaction, replaying it with the original
// inputs when the commit loses a concurrency race.
func (s *StockService) withConflictRetry(ctx context.Context, fn func(*sqlx.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Transaction(ctx, fn)
		if err == nil {
			return nil
		}
		if !database.IsConflict(err) {
			return err
		}
		s.logger.Debug().
			Int("attempt", attempt+1).
			Err(err).
			Msg("ledger transaction conflict, retrying")
	}
	return err
}

// batchExpiry picks the expiry for a new intake batch: the explicit date when
// the caller marked one supplied, the category default otherwise.
func (s *StockService) batchExpiry(req IntakeRequest, name string) time.Time {
	if req.ExpirySupplied {
		return req.ExpiryDate
	}
	return s.defaultExpiry(name)
}

func (s *StockService) defaultExpiry(name string) time.Time {
	return s.now().AddDate(0, 0, shelflife.DaysFor(name))
}

func (s *StockService) resolveName(ctx context.Context, barcode string) string {
	if s.resolver == nil {
		return ""
	}
	name, err := s.resolver.ResolveName(ctx, barcode)
	if err != nil {
		s.logger.Warn().Err(err).Str("barcode", barcode).Msg("catalog lookup failed")
		return ""
	}
	return name
}

// pendingEvents buffers change feed notifications until the transaction has
// committed; nothing is published for a rolled-back attempt.
type pendingEvents struct {
	productUpdated *messaging.ProductUpdatedEvent
	batchCreated   *repository.Batch
	batchConsumed  *messaging.BatchConsumedEvent
	diverged       *messaging.StockDivergedEvent
	sale           *repository.SaleEvent
	saleQuantity   int
}

func (s *StockService) publishPending(ctx context.Context, pending pendingEvents) {
	if pending.productUpdated != nil {
		s.publisher.PublishProductUpdated(ctx, *pending.productUpdated)
	}
	if pending.batchCreated != nil {
		b := pending.batchCreated
		s.publisher.PublishBatchCreated(ctx, b.ID, b.ProductID, b.Remaining, b.ExpiryDate)
	}
	if pending.batchConsumed != nil {
		s.publisher.PublishBatchConsumed(ctx, *pending.batchConsumed)
	}
	if pending.diverged != nil {
		d := pending.diverged
		s.publisher.PublishStockDiverged(ctx, d.Barcode, d.Requested, d.Uncovered)
	}
	if pending.sale != nil {
		sale := pending.sale
		s.publisher.PublishSaleRecorded(ctx, sale.ID, sale.ProductID, sale.Name, sale.UnitPrice, pending.saleQuantity, sale.SoldAt)
	}
}

package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirana/kirana-backend/internal/stock/events"
	"github.com/kirana/kirana-backend/internal/stock/repository"
	"github.com/kirana/kirana-backend/internal/stock/shelflife"
	"github.com/kirana/kirana-backend/pkg/database"
	"github.com/kirana/kirana-backend/pkg/logger"
)

// criticalThreshold is the on-hand quantity at or below which a product
// counts as critical on the dashboard.
const criticalThreshold = 2

// NameResolver looks up a product name for a barcode the store has never
// seen, typically against an external catalog.
type NameResolver interface {
	ResolveName(ctx context.Context, barcode string) (string, error)
}

// StockService owns the stock ledger: product aggregates, expiry batches and
// the sale event log, plus the read-side views built on them.
type StockService struct {
	db        *database.DB
	products  *repository.ProductRepository
	batches   *repository.BatchRepository
	sales     *repository.SaleRepository
	publisher *events.StockEventPublisher
	resolver  NameResolver
	logger    *logger.Logger
	now       func() time.Time
}

func NewStockService(
	db *database.DB,
	products *repository.ProductRepository,
	batches *repository.BatchRepository,
	sales *repository.SaleRepository,
	publisher *events.StockEventPublisher,
	resolver NameResolver,
	log *logger.Logger,
) *StockService {
	return &StockService{
		db:        db,
		products:  products,
		batches:   batches,
		sales:     sales,
		publisher: publisher,
		resolver:  resolver,
		logger:    log.WithComponent("stock-service"),
		now:       time.Now,
	}
}

// ProductDetail is a product joined with its open batches
type ProductDetail struct {
	repository.Product
	Category      shelflife.Category  `json:"category"`
	Batches       []*repository.Batch `json:"batches"`
	NearestExpiry *time.Time          `json:"nearest_expiry,omitempty"`
}

// DashboardStats summarizes the store at a glance
type DashboardStats struct {
	Revenue       decimal.Decimal `json:"revenue"`
	TotalSales    int64           `json:"total_sales"`
	ProductCount  int             `json:"product_count"`
	CriticalCount int64           `json:"critical_count"`
}

// ListProducts returns all products, optionally filtered by a name or
// barcode substring.
func (s *StockService) ListProducts(ctx context.Context, search string) ([]*repository.Product, error) {
	return s.products.List(ctx, search)
}

// GetProduct returns one product with its open batches. Batches arrive in
// consumption order, so the first one carries the nearest expiry.
func (s *StockService) GetProduct(ctx context.Context, barcode string) (*ProductDetail, error) {
	product, err := s.products.GetByBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}

	batches, err := s.batches.ListByProduct(ctx, barcode)
	if err != nil {
		return nil, err
	}

	detail := &ProductDetail{
		Product:  *product,
		Category: shelflife.Classify(product.Name),
		Batches:  batches,
	}
	if len(batches) > 0 {
		detail.NearestExpiry = &batches[0].ExpiryDate
	}
	return detail, nil
}

// ExpiryRadar counts open batch units that are expired, expiring today, or
// expiring tomorrow, relative to the current store day.
func (s *StockService) ExpiryRadar(ctx context.Context) (*repository.ExpiryRadar, error) {
	now := s.now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return s.batches.GetExpiryRadar(ctx, day)
}

// RecentSales returns the newest sale events, most recent first.
func (s *StockService) RecentSales(ctx context.Context, limit int) ([]*repository.SaleEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.sales.Recent(ctx, limit)
}

// Dashboard assembles the headline numbers: lifetime revenue and sale count,
// product count, and how many products sit at critical stock levels.
func (s *StockService) Dashboard(ctx context.Context) (*DashboardStats, error) {
	summary, err := s.sales.Summary(ctx)
	if err != nil {
		return nil, err
	}

	products, err := s.products.List(ctx, "")
	if err != nil {
		return nil, err
	}

	critical, err := s.products.CountCritical(ctx, criticalThreshold)
	if err != nil {
		return nil, err
	}

	return &DashboardStats{
		Revenue:       summary.Revenue,
		TotalSales:    summary.TotalSales,
		ProductCount:  len(products),
		CriticalCount: critical,
	}, nil
}

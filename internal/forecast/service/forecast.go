package service

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/kirana/kirana-backend/internal/stock/repository"
	"github.com/kirana/kirana-backend/pkg/cache"
	"github.com/kirana/kirana-backend/pkg/errors"
	"github.com/kirana/kirana-backend/pkg/logger"
)

// Range selects the sales window the forecast is computed over
type Range string

const (
	RangeDaily   Range = "daily"
	RangeWeekly  Range = "weekly"
	RangeMonthly Range = "monthly"
)

// deadStockDaysLeft is the sentinel for products with no sales in the
// window; a real estimate cannot be computed when velocity is zero.
const deadStockDaysLeft = 999

// Status buckets in rising order of comfort
const (
	StatusCritical  = "critical"
	StatusWarning   = "warning"
	StatusDeadStock = "dead_stock"
	StatusHealthy   = "healthy"
)

// windowDays maps each range to its window length in days
var windowDays = map[Range]int{
	RangeDaily:   1,
	RangeWeekly:  7,
	RangeMonthly: 30,
}

// Record is one product's forecast line
type Record struct {
	Barcode     string  `json:"barcode"`
	Name        string  `json:"name"`
	Stock       int     `json:"stock"`
	UnitsSold   int     `json:"units_sold"`
	Velocity    float64 `json:"velocity"`
	EstDaysLeft int     `json:"est_days_left"`
	Status      string  `json:"status"`
}

// Snapshot is a full forecast response for one range
type Snapshot struct {
	Range       Range     `json:"range"`
	WindowDays  int       `json:"window_days"`
	GeneratedAt time.Time `json:"generated_at"`
	Records     []*Record `json:"records"`
	TopMovers   []*Record `json:"top_movers"`
}

// ForecastService computes stock depletion forecasts from the sale event log
type ForecastService struct {
	products *repository.ProductRepository
	sales    *repository.SaleRepository
	cache    *cache.Redis
	ttl      time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

func NewForecastService(
	products *repository.ProductRepository,
	sales *repository.SaleRepository,
	redis *cache.Redis,
	ttl time.Duration,
	log *logger.Logger,
) *ForecastService {
	return &ForecastService{
		products: products,
		sales:    sales,
		cache:    redis,
		ttl:      ttl,
		logger:   log.WithComponent("forecast-service"),
		now:      time.Now,
	}
}

// ParseRange validates a range query value, defaulting to weekly when empty
func ParseRange(raw string) (Range, error) {
	if raw == "" {
		return RangeWeekly, nil
	}
	r := Range(raw)
	if _, ok := windowDays[r]; !ok {
		return "", errors.BadRequest("range must be one of: daily, weekly, monthly")
	}
	return r, nil
}

// Forecast returns the snapshot for the range, served from the Redis cache
// when a fresh one exists. A stale or missing cache entry triggers a
// recompute; cache failures degrade to computing directly.
func (s *ForecastService) Forecast(ctx context.Context, r Range) (*Snapshot, error) {
	key := snapshotKey(r)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("forecast cache read failed")
		} else if cached != "" {
			var snap Snapshot
			if err := json.Unmarshal([]byte(cached), &snap); err == nil {
				return &snap, nil
			}
			s.logger.Warn().Str("key", key).Msg("discarding unreadable forecast cache entry")
		}
	}

	snap, err := s.compute(ctx, r)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(snap); err == nil {
			if err := s.cache.Set(ctx, key, string(payload), s.ttl); err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("forecast cache write failed")
			}
		}
	}

	return snap, nil
}

// Invalidate drops all cached snapshots. Called when the ledger changes.
func (s *ForecastService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx,
		snapshotKey(RangeDaily),
		snapshotKey(RangeWeekly),
		snapshotKey(RangeMonthly),
	)
}

func (s *ForecastService) compute(ctx context.Context, r Range) (*Snapshot, error) {
	days := windowDays[r]
	until := s.now()
	since := until.AddDate(0, 0, -days)

	velocities, err := s.sales.VelocityWindow(ctx, since, until)
	if err != nil {
		return nil, err
	}

	soldByBarcode := make(map[string]int, len(velocities))
	for _, v := range velocities {
		soldByBarcode[v.ProductID] = v.UnitsSold
	}

	products, err := s.products.List(ctx, "")
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(products))
	for _, p := range products {
		records = append(records, buildRecord(p, soldByBarcode[p.Barcode], days))
	}

	// Most urgent first. Stable so products sharing an estimate keep the
	// listing order.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].EstDaysLeft < records[j].EstDaysLeft
	})

	return &Snapshot{
		Range:       r,
		WindowDays:  days,
		GeneratedAt: until,
		Records:     records,
		TopMovers:   topMovers(records),
	}, nil
}

func buildRecord(p *repository.Product, unitsSold, days int) *Record {
	rec := &Record{
		Barcode:   p.Barcode,
		Name:      p.Name,
		Stock:     p.Quantity,
		UnitsSold: unitsSold,
	}

	if unitsSold == 0 {
		rec.EstDaysLeft = deadStockDaysLeft
		rec.Status = StatusDeadStock
		return rec
	}

	rec.Velocity = float64(unitsSold) / float64(days)
	rec.EstDaysLeft = int(math.Ceil(float64(p.Quantity) / rec.Velocity))

	switch {
	case rec.EstDaysLeft <= 2:
		rec.Status = StatusCritical
	case rec.EstDaysLeft <= 5:
		rec.Status = StatusWarning
	default:
		rec.Status = StatusHealthy
	}
	return rec
}

// topMovers returns the five best sellers of the window, busiest first
func topMovers(records []*Record) []*Record {
	movers := make([]*Record, 0, len(records))
	for _, rec := range records {
		if rec.UnitsSold > 0 {
			movers = append(movers, rec)
		}
	}
	sort.SliceStable(movers, func(i, j int) bool {
		return movers[i].UnitsSold > movers[j].UnitsSold
	})
	if len(movers) > 5 {
		movers = movers[:5]
	}
	return movers
}

func snapshotKey(r Range) string {
	return "forecast:snapshot:" + string(r)
}

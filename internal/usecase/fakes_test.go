package usecase

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	domrepo "github.com/danghungithp/chungquyen-VN/internal/domain/repository"
	"github.com/danghungithp/chungquyen-VN/internal/services/sizing"
	"github.com/danghungithp/chungquyen-VN/pkg/logger"
	"github.com/danghungithp/chungquyen-VN/pkg/metrics"
)

var testNow = time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)

// series returns n daily closes around 100 ending at testNow.
func series(symbol string, n int) *models.PriceSeries {
	s := &models.PriceSeries{Symbol: symbol}
	start := testNow.AddDate(0, 0, -n)
	for i := 0; i < n; i++ {
		s.Points = append(s.Points, models.PricePoint{
			Time:  start.AddDate(0, 0, i+1),
			Close: 100 * math.Exp(0.02*math.Sin(float64(i))),
		})
	}
	return s
}

type fakeMarket struct {
	mu       sync.Mutex
	universe []string
	history  map[string]*models.PriceSeries
	quotes   map[string]*models.WarrantQuote
	trades   map[string][]models.Trade
	fx       float64
	delay    map[string]time.Duration
	err      map[string]error
	calls    map[string]int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		history: map[string]*models.PriceSeries{},
		quotes:  map[string]*models.WarrantQuote{},
		trades:  map[string][]models.Trade{},
		delay:   map[string]time.Duration{},
		err:     map[string]error{},
		calls:   map[string]int{},
	}
}

func (m *fakeMarket) count(k string) {
	m.mu.Lock()
	m.calls[k]++
	m.mu.Unlock()
}

func (m *fakeMarket) Universe(context.Context) ([]string, error) {
	m.count("universe")
	return m.universe, m.err["universe"]
}

func (m *fakeMarket) History(ctx context.Context, symbol string, _, _ time.Time, _ domrepo.Interval) (*models.PriceSeries, error) {
	m.count("history:" + symbol)
	if d := m.delay[symbol]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := m.err[symbol]; err != nil {
		return nil, err
	}
	s, ok := m.history[symbol]
	if !ok {
		return &models.PriceSeries{Symbol: symbol}, nil
	}
	return s, nil
}

func (m *fakeMarket) Quote(_ context.Context, symbol string) (*models.WarrantQuote, error) {
	m.count("quote:" + symbol)
	q, ok := m.quotes[symbol]
	if !ok {
		return nil, models.ErrExternalFetch
	}
	return q, nil
}

func (m *fakeMarket) Trades(ctx context.Context, symbol string, _ time.Time) ([]models.Trade, error) {
	if d := m.delay["trades:"+symbol]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := m.err["trades:"+symbol]; err != nil {
		return nil, err
	}
	return m.trades[symbol], nil
}

func (m *fakeMarket) FXRate(context.Context, string, string) (float64, error) {
	return m.fx, m.err["fx"]
}

type memStore struct {
	mu        sync.Mutex
	snapshots []models.InstrumentRow
	trades    []models.Trade
	stats     map[string]*models.TradeStats
	results   map[string][]models.PricingResult
	err       error
}

func newMemStore() *memStore {
	return &memStore{stats: map[string]*models.TradeStats{}, results: map[string][]models.PricingResult{}}
}

func (s *memStore) Init(context.Context) error { return nil }

func (s *memStore) SaveSnapshots(_ context.Context, rows []models.InstrumentRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.snapshots = append(s.snapshots, rows...)
	return nil
}

func (s *memStore) LatestSnapshots(context.Context) ([]models.InstrumentRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots, s.err
}

func (s *memStore) StoreTrades(_ context.Context, trades []models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.trades = append(s.trades, trades...)
	return nil
}

func (s *memStore) TradeStats(_ context.Context, symbol string, _, _ time.Time) (*models.TradeStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats[symbol], nil
}

func (s *memStore) SaveResults(_ context.Context, runID string, results []models.PricingResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.results[runID] = results
	return nil
}

func (s *memStore) Health(context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

func (s *memStore) tradeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trades)
}

type memPublisher struct {
	mu       sync.Mutex
	outcomes []*models.BatchOutcome
	trades   []models.Trade
}

func (p *memPublisher) PublishOutcome(_ context.Context, out *models.BatchOutcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, out)
	return nil
}

func (p *memPublisher) PublishTrades(_ context.Context, trades []models.Trade) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trades = append(p.trades, trades...)
	return nil
}

func (p *memPublisher) Close() error { return nil }

// constVol returns a fixed volatility once enough returns are present.
type constVol struct{ v float64 }

func (c constVol) Name() string { return "const" }

func (c constVol) Estimate(_ context.Context, returns []float64) (models.VolatilityEstimate, error) {
	if len(returns) == 0 {
		return models.VolatilityEstimate{}, models.ErrInsufficientData
	}
	return models.VolatilityEstimate{Value: c.v, Model: "const"}, nil
}

func testSettings() BatchSettings {
	return BatchSettings{
		Workers:         4,
		ItemTimeout:     5 * time.Second,
		MinPrices:       30,
		HistoryDays:     365,
		RiskFreeRate:    0.05,
		Horizon:         30.0 / 252,
		Moneyness:       1,
		ConversionRatio: 1,
		Currency:        "VND",
		QuoteMarket:     true,
	}
}

func testEvaluator(seed uint64) *Evaluator {
	e := NewEvaluator(sizing.FixedProbabilityPolicy{WinProb: 0.55, LossProb: 0.45, PayoffRatio: 1}, 5000, &seed)
	e.now = func() time.Time { return testNow }
	return e
}

func newTestRunner(settings BatchSettings, m *fakeMarket, store domrepo.SnapshotStore, pub domrepo.ResultPublisher) *BatchRunner {
	r := NewBatchRunner(settings, m, constVol{v: 0.3}, testEvaluator(42), store, pub, metrics.Noop{}, logger.Nop())
	r.now = func() time.Time { return testNow }
	return r
}

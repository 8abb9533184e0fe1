package usecase

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	domrepo "github.com/danghungithp/chungquyen-VN/internal/domain/repository"
	domsvc "github.com/danghungithp/chungquyen-VN/internal/domain/service"
	"github.com/danghungithp/chungquyen-VN/internal/services/features"
	"github.com/danghungithp/chungquyen-VN/internal/services/portfolio"
	"github.com/danghungithp/chungquyen-VN/internal/services/pricing"
	"github.com/danghungithp/chungquyen-VN/pkg/config"
	"github.com/danghungithp/chungquyen-VN/pkg/logger"
	"github.com/danghungithp/chungquyen-VN/pkg/util"
)

// BatchSettings are the per-cycle pricing assumptions and pool limits.
type BatchSettings struct {
	Workers         int
	ItemTimeout     time.Duration
	MinPrices       int
	HistoryDays     int
	RiskFreeRate    float64
	Horizon         float64 // years
	Moneyness       float64
	ConversionRatio float64
	Currency        string
	// QuoteMarket takes market price and terms from the gateway quote;
	// otherwise the last close is the market price.
	QuoteMarket bool
}

func BatchSettingsFromConfig(cfg *config.Config) BatchSettings {
	return BatchSettings{
		Workers:         cfg.Batch.Workers,
		ItemTimeout:     cfg.Batch.ItemTimeout,
		MinPrices:       cfg.Volatility.MinPrices,
		HistoryDays:     cfg.Batch.HistoryDays,
		RiskFreeRate:    cfg.Pricing.RiskFreeRate,
		Horizon:         float64(cfg.Pricing.HorizonDays) / float64(cfg.Pricing.TradingDays),
		Moneyness:       cfg.Pricing.Moneyness,
		ConversionRatio: cfg.Pricing.ConversionRatio,
		Currency:        cfg.Batch.Currency,
		QuoteMarket:     cfg.Pricing.MarketPrice == "quote",
	}
}

// BatchRunner evaluates a universe of warrants concurrently and allocates capital
// once every instrument has finished.
type BatchRunner struct {
	settings  BatchSettings
	market    domrepo.MarketData
	estimator domsvc.VolatilityEstimator
	evaluator *Evaluator
	store     domrepo.SnapshotStore   // optional
	publisher domrepo.ResultPublisher // optional
	metrics   domrepo.Metrics
	log       *logger.Logger
	now       func() time.Time
}

func NewBatchRunner(
	settings BatchSettings,
	market domrepo.MarketData,
	estimator domsvc.VolatilityEstimator,
	evaluator *Evaluator,
	store domrepo.SnapshotStore,
	publisher domrepo.ResultPublisher,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *BatchRunner {
	if settings.Workers <= 0 {
		settings.Workers = 1
	}
	return &BatchRunner{
		settings:  settings,
		market:    market,
		estimator: estimator,
		evaluator: evaluator,
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		log:       log,
		now:       time.Now,
	}
}

// itemFunc evaluates one symbol inside its own deadline.
type itemFunc func(ctx context.Context, symbol string) models.ItemResult

// RunBatch fetches, prices and scores every symbol of universe (or the gateway's
// universe when empty), then allocates total across the opportunity set.
// Per-instrument failures are recorded in the report and never abort the batch.
func (r *BatchRunner) RunBatch(ctx context.Context, universe []string, total float64) (*models.Portfolio, *models.BatchReport, error) {
	symbols, err := r.resolveUniverse(ctx, universe)
	if err != nil {
		return nil, nil, err
	}
	report := r.run(ctx, symbols, r.evaluateLive)
	pf, err := r.finish(ctx, report, total)
	return pf, report, err
}

// AnalyzeSnapshots runs the pipeline from stored instrument rows instead of live
// history, attaching stored trade statistics to every entry.
func (r *BatchRunner) AnalyzeSnapshots(ctx context.Context, total float64) (*models.Portfolio, *models.BatchReport, error) {
	if r.store == nil {
		return nil, nil, fmt.Errorf("%w: no snapshot store configured", models.ErrInvalidParameter)
	}
	rows, err := r.store.LatestSnapshots(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load snapshots: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: no snapshots stored", models.ErrInsufficientData)
	}
	bySymbol := make(map[string]models.InstrumentRow, len(rows))
	symbols := make([]string, 0, len(rows))
	for _, row := range rows {
		if _, dup := bySymbol[row.Symbol]; dup {
			continue
		}
		bySymbol[row.Symbol] = row
		symbols = append(symbols, row.Symbol)
	}

	report := r.run(ctx, symbols, func(ctx context.Context, symbol string) models.ItemResult {
		return r.evaluateSnapshot(ctx, bySymbol[symbol])
	})
	pf, err := r.finish(ctx, report, total)
	return pf, report, err
}

func (r *BatchRunner) resolveUniverse(ctx context.Context, universe []string) ([]string, error) {
	if len(universe) == 0 {
		fetched, err := r.market.Universe(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch universe: %w", err)
		}
		universe = fetched
	}
	symbols := util.NormalizeSymbols(universe)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: empty instrument universe", models.ErrAllocationUndefined)
	}
	return symbols, nil
}

// run evaluates symbols on the worker pool. Each result slot is written by
// exactly one worker and read only after the pool has drained.
func (r *BatchRunner) run(ctx context.Context, symbols []string, fn itemFunc) *models.BatchReport {
	report := &models.BatchReport{
		RunID:     uuid.NewString(),
		StartedAt: r.now(),
		Items:     make([]models.ItemResult, len(symbols)),
	}
	log := r.log.With(logger.String("run_id", report.RunID))

	forEach(len(symbols), r.settings.Workers, func(i int) {
		report.Items[i] = r.runItem(ctx, symbols[i], fn, log)
	})

	report.FinishedAt = r.now()
	report.Tally()
	log.Info("batch evaluated",
		logger.Int("instruments", len(symbols)),
		logger.Int("succeeded", report.Succeeded),
		logger.Int("failed", report.Failed),
		logger.Any("failures", report.Failures),
		logger.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report
}

func (r *BatchRunner) runItem(ctx context.Context, symbol string, fn itemFunc, log *logger.Logger) (item models.ItemResult) {
	start := time.Now()
	if r.settings.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.settings.ItemTimeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			item = failed(symbol, fmt.Errorf("panic: %v", p))
			log.Error("instrument evaluation panicked", logger.String("symbol", symbol), logger.String("stack", string(debug.Stack())))
		}
		item.Duration = time.Since(start)
		r.metrics.RecordEvaluation(string(item.Status), item.Duration.Seconds())
		if item.Status == models.ItemFailed {
			r.metrics.RecordError(item.Kind)
			log.Warn("instrument skipped",
				logger.String("symbol", symbol),
				logger.String("kind", item.Kind),
				logger.String("reason", item.Reason),
			)
		} else if item.Result != nil {
			r.metrics.RecordEdge(symbol, item.Result.Edge)
		}
	}()

	return fn(ctx, symbol)
}

// evaluateLive fetches history, estimates volatility and prices the warrant
// with S0 = last close of the underlying (the warrant itself without a quote).
func (r *BatchRunner) evaluateLive(ctx context.Context, symbol string) models.ItemResult {
	q, err := r.quote(ctx, symbol)
	if err != nil {
		return failed(symbol, err)
	}
	histSymbol := symbol
	if q != nil && q.Underlying != "" {
		histSymbol = q.Underlying
	}

	to := r.now()
	from := to.AddDate(0, 0, -r.settings.HistoryDays)
	series, err := r.market.History(ctx, histSymbol, from, to, domrepo.IntervalDaily)
	if err != nil {
		return failed(symbol, err)
	}
	if series.Len() < r.settings.MinPrices {
		return failed(symbol, fmt.Errorf("%w: %d closes, need %d", models.ErrInsufficientData, series.Len(), r.settings.MinPrices))
	}

	vol, err := r.estimator.Estimate(ctx, features.SeriesReturns(series))
	if err != nil {
		return failed(symbol, fmt.Errorf("estimate volatility: %w", err))
	}
	vol.AsOf = series.LastTime()

	item := r.price(ctx, symbol, series.LastClose(), vol.Value, q)
	item.Volatility = &vol
	return item
}

func (r *BatchRunner) evaluateSnapshot(ctx context.Context, row models.InstrumentRow) models.ItemResult {
	q, err := r.quote(ctx, row.Symbol)
	if err != nil {
		return failed(row.Symbol, err)
	}
	item := r.price(ctx, row.Symbol, row.LastClose, row.Volatility, q)
	if item.Status != models.ItemOK {
		return item
	}
	item.Volatility = &models.VolatilityEstimate{Value: row.Volatility, AsOf: row.AsOf, Model: "snapshot"}
	day := util.StartOfDay(row.AsOf)
	stats, err := r.store.TradeStats(ctx, row.Symbol, day, day.AddDate(0, 0, 1))
	if err != nil {
		// trade statistics only enrich the report
		r.log.Warn("trade stats unavailable", logger.String("symbol", row.Symbol), logger.Error(err))
		return item
	}
	item.Trades = stats
	return item
}

// quote returns nil when market prices come from the last close.
func (r *BatchRunner) quote(ctx context.Context, symbol string) (*models.WarrantQuote, error) {
	if !r.settings.QuoteMarket {
		return nil, nil
	}
	q, err := r.market.Quote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}
	return q, nil
}

// price builds inputs from the configured assumptions, overridden by any
// terms the quote carries, and evaluates against the quote or last close.
func (r *BatchRunner) price(ctx context.Context, symbol string, spot, vol float64, q *models.WarrantQuote) models.ItemResult {
	in := models.PricingInputs{
		Spot:            spot,
		Strike:          spot * r.settings.Moneyness,
		Volatility:      vol,
		Rate:            r.settings.RiskFreeRate,
		Expiry:          r.settings.Horizon,
		ConversionRatio: r.settings.ConversionRatio,
	}
	market := spot
	if q != nil {
		market = q.Price
		if q.Strike > 0 {
			in.Strike = q.Strike
		}
		if q.ConversionRatio > 0 {
			in.ConversionRatio = q.ConversionRatio
		}
		if !q.Expiry.IsZero() {
			in.Expiry = pricing.YearsToExpiry(q.Expiry, r.now())
		}
	}
	res, err := r.evaluator.Evaluate(ctx, symbol, in, market)
	if err != nil {
		return failed(symbol, err)
	}
	return models.ItemResult{Symbol: symbol, Status: models.ItemOK, Result: &res}
}

// finish allocates, then persists and publishes the outcome. Persistence and
// publication failures are logged; allocation failures are returned.
func (r *BatchRunner) finish(ctx context.Context, report *models.BatchReport, total float64) (*models.Portfolio, error) {
	log := r.log.With(logger.String("run_id", report.RunID))
	pf, allocErr := portfolio.Allocate(report.Scored(), total)
	if pf != nil {
		pf.Currency = r.settings.Currency
		log.Info("portfolio allocated", logger.Int("entries", len(pf.Entries)), logger.Float("total", pf.TotalInvestment))
	} else {
		r.metrics.RecordError(models.ErrorKind(allocErr))
		log.Warn("allocation failed", logger.Error(allocErr))
	}

	if r.store != nil {
		results := make([]models.PricingResult, 0, report.Succeeded)
		for _, s := range report.Scored() {
			results = append(results, s.Result)
		}
		if err := r.store.SaveResults(ctx, report.RunID, results); err != nil {
			r.metrics.RecordError("persist")
			log.Error("persist results failed", logger.Error(err))
		}
	}
	if r.publisher != nil {
		out := &models.BatchOutcome{Report: report, Portfolio: pf}
		if allocErr != nil {
			out.Error = allocErr.Error()
		}
		if err := r.publisher.PublishOutcome(ctx, out); err != nil {
			r.metrics.RecordError("publish")
			log.Error("publish outcome failed", logger.Error(err))
		}
	}
	if allocErr != nil {
		return nil, allocErr
	}
	return pf, nil
}

func failed(symbol string, err error) models.ItemResult {
	return models.ItemResult{
		Symbol: symbol,
		Status: models.ItemFailed,
		Kind:   models.ErrorKind(err),
		Reason: err.Error(),
		Err:    err,
	}
}

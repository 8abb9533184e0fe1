package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	domrepo "github.com/danghungithp/chungquyen-VN/internal/domain/repository"
	domsvc "github.com/danghungithp/chungquyen-VN/internal/domain/service"
	"github.com/danghungithp/chungquyen-VN/internal/services/features"
	"github.com/danghungithp/chungquyen-VN/pkg/logger"
	"github.com/danghungithp/chungquyen-VN/pkg/util"
)

// DownloadReport summarizes a snapshot or trade download.
type DownloadReport struct {
	Saved   int               `json:"saved"`
	Skipped map[string]string `json:"skipped,omitempty"`
}

// SnapshotCollector downloads instrument rows and intraday trades into the store.
type SnapshotCollector struct {
	settings  BatchSettings
	market    domrepo.MarketData
	estimator domsvc.VolatilityEstimator
	store     domrepo.SnapshotStore
	log       *logger.Logger
	now       func() time.Time
}

func NewSnapshotCollector(settings BatchSettings, market domrepo.MarketData, estimator domsvc.VolatilityEstimator, store domrepo.SnapshotStore, log *logger.Logger) *SnapshotCollector {
	return &SnapshotCollector{settings: settings, market: market, estimator: estimator, store: store, log: log, now: time.Now}
}

// DownloadSnapshots stores {symbol, last_close, volatility} for every instrument
// with at least the minimum number of closes.
func (c *SnapshotCollector) DownloadSnapshots(ctx context.Context, universe []string) (*DownloadReport, error) {
	symbols, err := c.universe(ctx, universe)
	if err != nil {
		return nil, err
	}
	rows := make([]*models.InstrumentRow, len(symbols))
	skipped := newSkipSet()

	forEach(len(symbols), c.settings.Workers, func(i int) {
		row, err := c.snapshot(ctx, symbols[i])
		if err != nil {
			skipped.add(symbols[i], err)
			return
		}
		rows[i] = row
	})

	out := make([]models.InstrumentRow, 0, len(rows))
	for _, r := range rows {
		if r != nil {
			out = append(out, *r)
		}
	}
	if len(out) > 0 {
		if err := c.store.SaveSnapshots(ctx, out); err != nil {
			return nil, fmt.Errorf("save snapshots: %w", err)
		}
	}
	c.log.Info("snapshots downloaded", logger.Int("saved", len(out)), logger.Int("skipped", len(skipped.m)))
	return &DownloadReport{Saved: len(out), Skipped: skipped.result()}, nil
}

func (c *SnapshotCollector) snapshot(ctx context.Context, symbol string) (*models.InstrumentRow, error) {
	if c.settings.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.settings.ItemTimeout)
		defer cancel()
	}
	to := c.now()
	series, err := c.market.History(ctx, symbol, to.AddDate(0, 0, -c.settings.HistoryDays), to, domrepo.IntervalDaily)
	if err != nil {
		return nil, err
	}
	if series.Len() < c.settings.MinPrices {
		return nil, fmt.Errorf("%w: %d closes, need %d", models.ErrInsufficientData, series.Len(), c.settings.MinPrices)
	}
	vol, err := c.estimator.Estimate(ctx, features.SeriesReturns(series))
	if err != nil {
		return nil, err
	}
	return &models.InstrumentRow{
		Symbol:     symbol,
		LastClose:  series.LastClose(),
		Volatility: vol.Value,
		AsOf:       series.LastTime(),
	}, nil
}

// DownloadTrades stores the intraday trades of day for every symbol.
func (c *SnapshotCollector) DownloadTrades(ctx context.Context, universe []string, day time.Time) (*DownloadReport, error) {
	symbols, err := c.universe(ctx, universe)
	if err != nil {
		return nil, err
	}
	skipped := newSkipSet()
	var mu sync.Mutex
	saved := 0

	forEach(len(symbols), c.settings.Workers, func(i int) {
		n, err := c.trades(ctx, symbols[i], day)
		if err != nil {
			skipped.add(symbols[i], err)
			return
		}
		mu.Lock()
		saved += n
		mu.Unlock()
	})

	c.log.Info("trades downloaded", logger.Int("saved", saved), logger.Int("skipped", len(skipped.m)))
	return &DownloadReport{Saved: saved, Skipped: skipped.result()}, nil
}

func (c *SnapshotCollector) trades(ctx context.Context, symbol string, day time.Time) (int, error) {
	if c.settings.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.settings.ItemTimeout)
		defer cancel()
	}
	trades, err := c.market.Trades(ctx, symbol, day)
	if err != nil || len(trades) == 0 {
		return 0, err
	}
	if err := c.store.StoreTrades(ctx, trades); err != nil {
		return 0, err
	}
	return len(trades), nil
}

func (c *SnapshotCollector) universe(ctx context.Context, universe []string) ([]string, error) {
	if len(universe) == 0 {
		fetched, err := c.market.Universe(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch universe: %w", err)
		}
		universe = fetched
	}
	return util.NormalizeSymbols(universe), nil
}

type skipSet struct {
	mu sync.Mutex
	m  map[string]string
}

func newSkipSet() *skipSet { return &skipSet{m: map[string]string{}} }

func (s *skipSet) add(symbol string, err error) {
	s.mu.Lock()
	s.m[symbol] = err.Error()
	s.mu.Unlock()
}

func (s *skipSet) result() map[string]string {
	if len(s.m) == 0 {
		return nil
	}
	return s.m
}

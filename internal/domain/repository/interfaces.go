package repository

import (
	"context"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
)

// MarketData fetches warrant universes and price histories from the upstream gateway.
type MarketData interface {
	Universe(ctx context.Context) ([]string, error)
	History(ctx context.Context, symbol string, from, to time.Time, iv Interval) (*models.PriceSeries, error)
	Quote(ctx context.Context, symbol string) (*models.WarrantQuote, error)
	Trades(ctx context.Context, symbol string, day time.Time) ([]models.Trade, error)
	FXRate(ctx context.Context, base, quote string) (float64, error)
}

// SnapshotStore persists downloaded instrument rows, trades and run results.
type SnapshotStore interface {
	Init(ctx context.Context) error
	SaveSnapshots(ctx context.Context, rows []models.InstrumentRow) error
	LatestSnapshots(ctx context.Context) ([]models.InstrumentRow, error)
	StoreTrades(ctx context.Context, trades []models.Trade) error
	TradeStats(ctx context.Context, symbol string, from, to time.Time) (*models.TradeStats, error)
	SaveResults(ctx context.Context, runID string, results []models.PricingResult) error
	Health(ctx context.Context) error
	Close() error
}

// ResultPublisher ships batch outcomes and live trades to downstream consumers.
type ResultPublisher interface {
	PublishOutcome(ctx context.Context, out *models.BatchOutcome) error
	PublishTrades(ctx context.Context, trades []models.Trade) error
	Close() error
}

// TradeStream is a live feed of warrant trades.
type TradeStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	Read(ctx context.Context) (<-chan *models.Trade, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type Metrics interface {
	RecordEvaluation(status string, seconds float64)
	RecordError(kind string)
	RecordEdge(symbol string, edge float64)
	RecordLatency(op string, seconds float64)
	RecordTradeStored(backend, symbol string)
}

package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	drepo "github.com/danghungithp/chungquyen-VN/internal/domain/repository"
)

// Trade sinks.
const (
	SinkKafka   = "kafka"
	SinkStorage = "storage"
)

// TradeProcessor routes live trades to the configured sink.
type TradeProcessor struct {
	pub     drepo.ResultPublisher
	store   drepo.SnapshotStore
	metrics drepo.Metrics
	sink    string
}

func NewTradeProcessor(pub drepo.ResultPublisher, store drepo.SnapshotStore, metrics drepo.Metrics, sink string) *TradeProcessor {
	return &TradeProcessor{pub: pub, store: store, metrics: metrics, sink: sink}
}

// Process routes a single trade.
func (p *TradeProcessor) Process(ctx context.Context, t *models.Trade) error {
	if t == nil {
		return fmt.Errorf("trade is nil")
	}
	return p.ProcessBatch(ctx, []models.Trade{*t})
}

// ProcessBatch routes trades to Kafka or to the snapshot store.
func (p *TradeProcessor) ProcessBatch(ctx context.Context, trades []models.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	switch p.sink {
	case SinkKafka:
		if p.pub == nil {
			return fmt.Errorf("kafka sink selected but no publisher configured")
		}
		err = p.pub.PublishTrades(ctx, trades)
	case SinkStorage:
		if p.store == nil {
			return fmt.Errorf("storage sink selected but no store configured")
		}
		err = p.store.StoreTrades(ctx, trades)
	default:
		err = fmt.Errorf("unknown sink: %s", p.sink)
	}
	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	for _, t := range trades {
		p.metrics.RecordTradeStored(p.sink, t.Symbol)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	return nil
}

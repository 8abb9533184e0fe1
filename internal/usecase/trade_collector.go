package usecase

import (
	"context"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	drepo "github.com/danghungithp/chungquyen-VN/internal/domain/repository"
	mid "github.com/danghungithp/chungquyen-VN/internal/middleware"
	"github.com/danghungithp/chungquyen-VN/pkg/logger"
)

// TradeCollector reads the live trade stream into the trade pipeline.
type TradeCollector struct {
	stream         drepo.TradeStream
	pipe           *mid.TradePipeline
	metrics        drepo.Metrics
	log            *logger.Logger
	symbols        []string
	reconnectDelay time.Duration
}

func NewTradeCollector(stream drepo.TradeStream, pipe *mid.TradePipeline, metrics drepo.Metrics, log *logger.Logger, symbols []string, reconnectDelay time.Duration) *TradeCollector {
	return &TradeCollector{stream: stream, pipe: pipe, metrics: metrics, log: log, symbols: symbols, reconnectDelay: reconnectDelay}
}

// IsConnected returns true if the trade stream is connected.
func (c *TradeCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects, subscribes and consumes in the background until ctx ends.
func (c *TradeCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx, c.symbols); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	trCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, trCh, errCh)
	return nil
}

func (c *TradeCollector) consume(ctx context.Context, trCh <-chan *models.Trade, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				return
			}
			c.metrics.RecordError("stream")
			c.log.Warn("trade stream error, reconnecting", logger.Error(err))
			if rerr := c.reconnect(ctx); rerr != nil {
				c.log.Error("trade stream reconnect failed", logger.Error(rerr))
				return
			}
			trCh, errCh = c.stream.Read(ctx)
		case t, ok := <-trCh:
			if !ok {
				trCh = nil
				continue
			}
			if err := c.pipe.Process(ctx, t); err != nil {
				c.log.Debug("trade dropped", logger.Error(err))
			}
		}
	}
}

func (c *TradeCollector) reconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.reconnectDelay):
	}
	if err := c.stream.Reconnect(ctx); err != nil {
		return err
	}
	return c.stream.Subscribe(ctx, c.symbols)
}

// Shutdown flushes the pipeline and closes the stream.
func (c *TradeCollector) Shutdown(_ context.Context) error {
	c.pipe.Stop()
	return c.stream.Close()
}

package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	domrepo "github.com/danghungithp/chungquyen-VN/internal/domain/repository"
)

// BatchProc is the downstream the pipeline flushes into.
type BatchProc interface {
	ProcessBatch(ctx context.Context, trades []models.Trade) error
}

// TradePipeline sits between the live trade stream and its sink. It validates
// trades, groups them into batches flushed by size or interval, and keeps a
// bounded backlog while the sink is failing.
type TradePipeline struct {
	proc      BatchProc
	metrics   domrepo.Metrics
	batchSize int
	interval  time.Duration
	maxBuffer int

	mu      sync.Mutex
	buf     []models.Trade
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	flushCh chan struct{}
}

type PipelineOption func(*TradePipeline)

// WithBatchSize flushes as soon as n trades are buffered.
func WithBatchSize(n int) PipelineOption {
	return func(p *TradePipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithFlushInterval flushes whatever is buffered every d.
func WithFlushInterval(d time.Duration) PipelineOption {
	return func(p *TradePipeline) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxBuffer caps the backlog kept while the sink fails; oldest trades are dropped.
func WithMaxBuffer(n int) PipelineOption {
	return func(p *TradePipeline) {
		if n > 0 {
			p.maxBuffer = n
		}
	}
}

func NewTradePipeline(proc BatchProc, metrics domrepo.Metrics, opts ...PipelineOption) *TradePipeline {
	p := &TradePipeline{
		proc:      proc,
		metrics:   metrics,
		batchSize: 100,
		interval:  time.Second,
		maxBuffer: 10000,
		flushCh:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the background flush loop.
func (p *TradePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.loop(ctx)
}

func (p *TradePipeline) loop(ctx context.Context) {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			p.flush(context.WithoutCancel(ctx))
			return
		case <-ctx.Done():
			p.flush(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			p.flush(ctx)
		case <-p.flushCh:
			p.flush(ctx)
		}
	}
}

// Stop flushes what is buffered and stops the loop.
func (p *TradePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	done := p.doneCh
	p.mu.Unlock()
	<-done
}

// Process validates t and buffers it for the next flush.
func (p *TradePipeline) Process(_ context.Context, t *models.Trade) error {
	if err := ValidateTrade(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	p.mu.Lock()
	p.buf = append(p.buf, *t)
	if over := len(p.buf) - p.maxBuffer; over > 0 {
		p.buf = append(p.buf[:0:0], p.buf[over:]...)
		p.metrics.RecordError("pipeline_buffer_drop")
	}
	full := len(p.buf) >= p.batchSize
	p.mu.Unlock()

	if full {
		select {
		case p.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Buffered returns the number of trades waiting for a flush.
func (p *TradePipeline) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

func (p *TradePipeline) flush(ctx context.Context) {
	for {
		p.mu.Lock()
		if len(p.buf) == 0 {
			p.mu.Unlock()
			return
		}
		n := min(p.batchSize, len(p.buf))
		batch := append([]models.Trade(nil), p.buf[:n]...)
		p.buf = p.buf[n:]
		p.mu.Unlock()

		start := time.Now()
		if err := p.proc.ProcessBatch(ctx, batch); err != nil {
			p.metrics.RecordError("pipeline_flush")
			p.mu.Lock()
			p.buf = append(batch, p.buf...)
			p.mu.Unlock()
			return
		}
		p.metrics.RecordLatency("pipeline_flush", time.Since(start).Seconds())
	}
}

// ValidateTrade rejects trades without a symbol or timestamp, or with negative or non-finite values.
func ValidateTrade(t *models.Trade) error {
	switch {
	case t == nil:
		return fmt.Errorf("trade nil")
	case t.Symbol == "":
		return fmt.Errorf("symbol empty")
	case t.Timestamp.IsZero():
		return fmt.Errorf("timestamp invalid")
	case t.Price < 0 || t.Volume < 0 || math.IsNaN(t.Price) || math.IsNaN(t.Volume) ||
		math.IsInf(t.Price, 0) || math.IsInf(t.Volume, 0):
		return fmt.Errorf("invalid price/volume")
	}
	return nil
}

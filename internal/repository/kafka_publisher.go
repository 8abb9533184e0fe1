package repository

import (
	"context"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	domrepo "github.com/danghungithp/chungquyen-VN/internal/domain/repository"
	pkgkafka "github.com/danghungithp/chungquyen-VN/pkg/kafka"
)

// KafkaPublisher ships batch outcomes and trades to Kafka topics.
type KafkaPublisher struct {
	producer     *pkgkafka.Producer
	resultsTopic string
	tradesTopic  string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, resultsTopic, tradesTopic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, resultsTopic: resultsTopic, tradesTopic: tradesTopic}
}

// PublishOutcome writes the whole outcome as one message keyed by run id.
func (p *KafkaPublisher) PublishOutcome(ctx context.Context, out *models.BatchOutcome) error {
	if out == nil {
		return nil
	}
	var runID string
	if out.Report != nil {
		runID = out.Report.RunID
	}
	return p.producer.Publish(ctx, p.resultsTopic, pkgkafka.Message{
		Key:     []byte(runID),
		Value:   out,
		TraceID: runID,
	})
}

// PublishTrades writes trades keyed by symbol so a symbol stays on one partition.
func (p *KafkaPublisher) PublishTrades(ctx context.Context, trades []models.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(trades))
	for i, t := range trades {
		msgs[i] = pkgkafka.Message{Key: []byte(t.Symbol), Value: models.NewTradeMessage(t)}
	}
	return p.producer.PublishBatch(ctx, p.tradesTopic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopPublisher drops everything. It stands in when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishOutcome(context.Context, *models.BatchOutcome) error { return nil }
func (NopPublisher) PublishTrades(context.Context, []models.Trade) error        { return nil }
func (NopPublisher) Close() error                                               { return nil }

var (
	_ domrepo.ResultPublisher = (*KafkaPublisher)(nil)
	_ domrepo.ResultPublisher = NopPublisher{}
)

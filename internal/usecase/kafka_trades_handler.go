package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	domrepo "github.com/danghungithp/chungquyen-VN/internal/domain/repository"
	mid "github.com/danghungithp/chungquyen-VN/internal/middleware"
	pkgkafka "github.com/danghungithp/chungquyen-VN/pkg/kafka"
)

// KafkaTradesHandler consumes trade messages and writes them to the snapshot store.
type KafkaTradesHandler struct {
	topic   string
	store   domrepo.SnapshotStore
	metrics domrepo.Metrics
}

func NewKafkaTradesHandler(topic string, store domrepo.SnapshotStore, metrics domrepo.Metrics) *KafkaTradesHandler {
	return &KafkaTradesHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaTradesHandler) Topic() string { return h.topic }

func (h *KafkaTradesHandler) Handle(ctx context.Context, b []byte) error {
	var m models.TradeMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("%w: %v", pkgkafka.ErrPermanent, err)
	}
	t := m.Trade()
	if err := mid.ValidateTrade(&t); err != nil {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("%w: %v", pkgkafka.ErrPermanent, err)
	}
	h.metrics.RecordLatency("ingest_e2e", time.Since(t.Timestamp).Seconds())

	start := time.Now()
	err := h.store.StoreTrades(ctx, []models.Trade{t})
	h.metrics.RecordLatency("store_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordTradeStored("consumer", t.Symbol)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTradesHandler)(nil)

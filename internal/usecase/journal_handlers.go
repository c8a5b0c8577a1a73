package usecase

import (
	"context"
	"encoding/json"
	"time"

	domrepo "DigitFlow/internal/domain/repository"
	internalrepo "DigitFlow/internal/repository"
	pkgkafka "DigitFlow/pkg/kafka"
)

// TickJournalHandler drains the ticks topic into history storage.
type TickJournalHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewTickJournalHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *TickJournalHandler {
	return &TickJournalHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *TickJournalHandler) Topic() string { return h.topic }

func (h *TickJournalHandler) Handle(ctx context.Context, b []byte) error {
	var m internalrepo.TickMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	t := m.ToTick()

	// E2E latency from event time to storage (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(t.Timestamp).Seconds())

	start := time.Now()
	err := h.storage.StoreTick(ctx, t)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

// TradeJournalHandler drains the trades topic into history storage.
type TradeJournalHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewTradeJournalHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *TradeJournalHandler {
	return &TradeJournalHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *TradeJournalHandler) Topic() string { return h.topic }

func (h *TradeJournalHandler) Handle(ctx context.Context, b []byte) error {
	var m internalrepo.TradeMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	rec, err := m.ToTradeRecord()
	if err != nil {
		h.metrics.RecordError("consumer_decode")
		return err
	}

	start := time.Now()
	err = h.storage.StoreTrade(ctx, rec)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

var (
	_ pkgkafka.MessageHandler = (*TickJournalHandler)(nil)
	_ pkgkafka.MessageHandler = (*TradeJournalHandler)(nil)
)

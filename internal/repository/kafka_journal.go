package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"DigitFlow/internal/domain/models"
	"DigitFlow/internal/domain/repository"
	pkgkafka "DigitFlow/pkg/kafka"
)

// TickMessage is the wire schema for journaled ticks. Timestamps travel as
// unix milliseconds; consumers on the other side of the topic reconstruct
// time.Time from them.
type TickMessage struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Digit  int     `json:"digit"`
	TS     int64   `json:"ts"`
}

// TradeMessage is the wire schema for journaled trade settlements. Money
// fields travel as decimal strings, never floats.
type TradeMessage struct {
	TradeID        string  `json:"trade_id"`
	Symbol         string  `json:"symbol"`
	ContractType   string  `json:"contract_type"`
	DigitPredicted int     `json:"digit_predicted"`
	DigitActual    int     `json:"digit_actual"`
	Stake          string  `json:"stake"`
	Outcome        string  `json:"outcome"`
	PnLDelta       string  `json:"pnl_delta"`
	Confidence     float64 `json:"confidence"`
	TopSignal      string  `json:"top_signal"`
	TS             int64   `json:"ts"`
}

// ToTickMessage converts a domain tick to its wire form.
func ToTickMessage(t *models.Tick) TickMessage {
	return TickMessage{
		Symbol: t.Symbol,
		Price:  t.Price,
		Digit:  t.Digit,
		TS:     t.Timestamp.UnixMilli(),
	}
}

// ToTick converts the wire form back to a domain tick.
func (m TickMessage) ToTick() *models.Tick {
	return &models.Tick{
		Symbol:    m.Symbol,
		Price:     m.Price,
		Digit:     m.Digit,
		Timestamp: time.UnixMilli(m.TS),
	}
}

// ToTradeMessage converts a settled trade record to its wire form.
func ToTradeMessage(rec *models.TradeRecord) TradeMessage {
	return TradeMessage{
		TradeID:        rec.TradeID,
		Symbol:         rec.Symbol,
		ContractType:   rec.ContractType,
		DigitPredicted: rec.DigitPredicted,
		DigitActual:    rec.DigitActual,
		Stake:          rec.Stake.StringFixed(2),
		Outcome:        string(rec.Outcome),
		PnLDelta:       rec.PnLDelta.StringFixed(2),
		Confidence:     rec.Confidence,
		TopSignal:      rec.TopSignal,
		TS:             rec.Timestamp.UnixMilli(),
	}
}

// ToTradeRecord converts the wire form back to a domain record.
func (m TradeMessage) ToTradeRecord() (*models.TradeRecord, error) {
	stake, err := decimal.NewFromString(m.Stake)
	if err != nil {
		return nil, err
	}
	pnl, err := decimal.NewFromString(m.PnLDelta)
	if err != nil {
		return nil, err
	}
	return &models.TradeRecord{
		TradeID:        m.TradeID,
		Symbol:         m.Symbol,
		ContractType:   m.ContractType,
		DigitPredicted: m.DigitPredicted,
		DigitActual:    m.DigitActual,
		Stake:          stake,
		Outcome:        models.Outcome(m.Outcome),
		PnLDelta:       pnl,
		Confidence:     m.Confidence,
		TopSignal:      m.TopSignal,
		Timestamp:      time.UnixMilli(m.TS),
	}, nil
}

// KafkaJournal implements Journal on the shared Kafka producer. Messages are
// keyed by symbol so one symbol's stream stays ordered within a partition.
type KafkaJournal struct {
	producer    *pkgkafka.Producer
	ticksTopic  string
	tradesTopic string
}

func NewKafkaJournal(producer *pkgkafka.Producer, ticksTopic, tradesTopic string) *KafkaJournal {
	return &KafkaJournal{producer: producer, ticksTopic: ticksTopic, tradesTopic: tradesTopic}
}

func (j *KafkaJournal) PublishTick(ctx context.Context, t *models.Tick) error {
	return j.producer.Publish(ctx, j.ticksTopic, []byte(t.Symbol), ToTickMessage(t))
}

func (j *KafkaJournal) PublishTrade(ctx context.Context, rec *models.TradeRecord) error {
	return j.producer.Publish(ctx, j.tradesTopic, []byte(rec.Symbol), ToTradeMessage(rec))
}

// PublishMessage exposes the producer for the log collector, which batches
// aggregated log entries onto its own topic.
func (j *KafkaJournal) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return j.producer.Publish(ctx, topic, nil, payload)
}

func (j *KafkaJournal) Close() error {
	return j.producer.Close()
}

var _ repository.Journal = (*KafkaJournal)(nil)

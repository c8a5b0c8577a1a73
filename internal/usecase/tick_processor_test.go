package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"DigitFlow/internal/domain/models"
)

type nopMetrics struct{}

func (nopMetrics) RecordTick(string, float64)    {}
func (nopMetrics) RecordDigit(string, int)       {}
func (nopMetrics) RecordTrade(string)            {}
func (nopMetrics) RecordBalance(float64)         {}
func (nopMetrics) RecordPnL(float64)             {}
func (nopMetrics) RecordConfidence(float64)      {}
func (nopMetrics) RecordState(string)            {}
func (nopMetrics) RecordError(string)            {}
func (nopMetrics) RecordLatency(string, float64) {}

type fakeJournal struct {
	ticks  int
	trades int
}

func (j *fakeJournal) PublishTick(ctx context.Context, t *models.Tick) error {
	j.ticks++
	return nil
}

func (j *fakeJournal) PublishTrade(ctx context.Context, rec *models.TradeRecord) error {
	j.trades++
	return nil
}

func (j *fakeJournal) Close() error { return nil }

type fakeStorage struct {
	ticks  int
	trades int
}

func (s *fakeStorage) Init(ctx context.Context) error { return nil }

func (s *fakeStorage) StoreTick(ctx context.Context, t *models.Tick) error {
	s.ticks++
	return nil
}

func (s *fakeStorage) StoreTrade(ctx context.Context, rec *models.TradeRecord) error {
	s.trades++
	return nil
}

func (s *fakeStorage) QueryTicks(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Tick, error) {
	return nil, nil
}

func (s *fakeStorage) QueryTrades(ctx context.Context, symbol string, limit int) ([]*models.TradeRecord, error) {
	return nil, nil
}

func (s *fakeStorage) Health(ctx context.Context) error { return nil }
func (s *fakeStorage) Close() error                     { return nil }

func sampleTick() *models.Tick {
	return &models.Tick{Symbol: "R_100", Price: 8631.47, Digit: 7, Timestamp: time.Now()}
}

func sampleTrade() *models.TradeRecord {
	return &models.TradeRecord{
		TradeID:      "12345",
		Symbol:       "R_100",
		ContractType: "DIGITDIFF",
		Stake:        decimal.NewFromFloat(1.00),
		Outcome:      models.OutcomeWin,
		PnLDelta:     decimal.NewFromFloat(0.95),
		Timestamp:    time.Now(),
	}
}

func TestProcessorRoutesToKafka(t *testing.T) {
	j := &fakeJournal{}
	s := &fakeStorage{}
	p := NewTickProcessor(j, s, nopMetrics{}, "kafka")

	if err := p.Process(context.Background(), sampleTick()); err != nil {
		t.Fatalf("process tick: %v", err)
	}
	if err := p.ProcessTrade(context.Background(), sampleTrade()); err != nil {
		t.Fatalf("process trade: %v", err)
	}
	if j.ticks != 1 || j.trades != 1 {
		t.Fatalf("journal got ticks=%d trades=%d, want 1/1", j.ticks, j.trades)
	}
	if s.ticks != 0 || s.trades != 0 {
		t.Fatalf("storage written on kafka backend: ticks=%d trades=%d", s.ticks, s.trades)
	}
}

func TestProcessorRoutesToClickHouse(t *testing.T) {
	j := &fakeJournal{}
	s := &fakeStorage{}
	p := NewTickProcessor(j, s, nopMetrics{}, "clickhouse")

	if err := p.Process(context.Background(), sampleTick()); err != nil {
		t.Fatalf("process tick: %v", err)
	}
	if err := p.ProcessTrade(context.Background(), sampleTrade()); err != nil {
		t.Fatalf("process trade: %v", err)
	}
	if s.ticks != 1 || s.trades != 1 {
		t.Fatalf("storage got ticks=%d trades=%d, want 1/1", s.ticks, s.trades)
	}
	if j.ticks != 0 || j.trades != 0 {
		t.Fatalf("journal written on clickhouse backend: ticks=%d trades=%d", j.ticks, j.trades)
	}
}

func TestProcessorRejectsUnknownBackend(t *testing.T) {
	p := NewTickProcessor(&fakeJournal{}, &fakeStorage{}, nopMetrics{}, "postgres")

	if err := p.Process(context.Background(), sampleTick()); err == nil {
		t.Fatal("expected unknown backend error")
	}
	if err := p.ProcessTrade(context.Background(), sampleTrade()); err == nil {
		t.Fatal("expected unknown backend error")
	}
}

func TestProcessorRejectsNil(t *testing.T) {
	p := NewTickProcessor(&fakeJournal{}, &fakeStorage{}, nopMetrics{}, "kafka")

	if err := p.Process(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil tick")
	}
	if err := p.ProcessTrade(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil trade record")
	}
}

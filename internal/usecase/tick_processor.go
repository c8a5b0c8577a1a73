package usecase

import (
	"context"
	"fmt"
	"time"

	"DigitFlow/internal/domain/models"
	drepo "DigitFlow/internal/domain/repository"
)

// TickProcessor routes accepted ticks and settled trades to the configured
// durability backend: "kafka" journals through the topics, "clickhouse"
// writes straight into history. It is the downstream of the tick pipeline
// and the controller's trade sink.
type TickProcessor struct {
	journal drepo.Journal
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
}

// NewTickProcessor creates a new TickProcessor instance.
func NewTickProcessor(
	journal drepo.Journal,
	store drepo.Storage,
	metrics drepo.Metrics,
	backend string,
) *TickProcessor {
	return &TickProcessor{
		journal: journal,
		store:   store,
		metrics: metrics,
		backend: backend,
	}
}

// Process routes a single tick to the configured backend.
func (p *TickProcessor) Process(ctx context.Context, t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick is nil")
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.journal.PublishTick(ctx, t)
	case "clickhouse":
		err = p.store.StoreTick(ctx, t)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process_tick")
		return fmt.Errorf("process tick: %w", err)
	}
	p.metrics.RecordLatency("process_tick", time.Since(start).Seconds())

	return nil
}

// ProcessTrade routes a settled trade record to the configured backend.
func (p *TickProcessor) ProcessTrade(ctx context.Context, rec *models.TradeRecord) error {
	if rec == nil {
		return fmt.Errorf("trade record is nil")
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.journal.PublishTrade(ctx, rec)
	case "clickhouse":
		err = p.store.StoreTrade(ctx, rec)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process_trade")
		return fmt.Errorf("process trade: %w", err)
	}
	p.metrics.RecordLatency("process_trade", time.Since(start).Seconds())

	return nil
}

// Close closes underlying resources if available.
func (p *TickProcessor) Close() {
	if p.journal != nil {
		_ = p.journal.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}

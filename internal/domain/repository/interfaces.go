package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"DigitFlow/internal/domain/models"
)

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Broker places digit contracts and reports settlements.
type Broker interface {
	Buy(ctx context.Context, req models.TradeRequest) (string, error)
	AwaitResult(ctx context.Context, tradeID string) (models.TradeResult, error)
	Balance(ctx context.Context) (decimal.Decimal, error)
}

// Journal publishes accepted ticks and settled trades to the durable log.
type Journal interface {
	PublishTick(ctx context.Context, t *models.Tick) error
	PublishTrade(ctx context.Context, rec *models.TradeRecord) error
	Close() error
}

// Storage is the append-only history store behind /api/history.
type Storage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	StoreTick(ctx context.Context, t *models.Tick) error
	StoreTrade(ctx context.Context, rec *models.TradeRecord) error
	QueryTicks(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Tick, error)
	QueryTrades(ctx context.Context, symbol string, limit int) ([]*models.TradeRecord, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// SnapshotStore mirrors live controller status for external dashboards.
// All writes are fire-and-forget from the controller's point of view.
type SnapshotStore interface {
	PutStatus(ctx context.Context, st *models.Status) error
	PushTrade(ctx context.Context, rec *models.TradeRecord) error
}

type Metrics interface {
	RecordTick(symbol string, price float64)
	RecordDigit(symbol string, digit int)
	RecordTrade(outcome string)
	RecordBalance(balance float64)
	RecordPnL(pnl float64)
	RecordConfidence(confidence float64)
	RecordState(state string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

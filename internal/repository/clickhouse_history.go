package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"DigitFlow/internal/domain/models"
	"DigitFlow/internal/domain/repository"
	pkgch "DigitFlow/pkg/clickhouse"
)

// ClickHouseHistory implements Storage on append-only ticks and trades
// tables. It backs the /api/history surface; the hot path never reads it.
type ClickHouseHistory struct {
	client      *pkgch.Client
	ticksTable  string
	tradesTable string
}

func NewClickHouseHistory(client *pkgch.Client, ticksTable, tradesTable string) repository.Storage {
	return &ClickHouseHistory{client: client, ticksTable: ticksTable, tradesTable: tradesTable}
}

func (s *ClickHouseHistory) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ts DateTime64(3),
			symbol LowCardinality(String),
			price Float64,
			digit UInt8
		) ENGINE = MergeTree ORDER BY (symbol, ts)`, s.ticksTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ts DateTime64(3),
			trade_id String,
			symbol LowCardinality(String),
			contract_type LowCardinality(String),
			digit_predicted UInt8,
			digit_actual UInt8,
			stake Decimal(18, 2),
			outcome LowCardinality(String),
			pnl_delta Decimal(18, 2),
			confidence Float64,
			top_signal LowCardinality(String)
		) ENGINE = MergeTree ORDER BY (symbol, ts)`, s.tradesTable),
	}
	return s.client.InitSchema(ctx, stmts)
}

func (s *ClickHouseHistory) StoreTick(ctx context.Context, t *models.Tick) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, digit) VALUES (?, ?, ?, ?)", s.ticksTable)
	_, err := s.client.DB().ExecContext(ctx, q, t.Timestamp, t.Symbol, t.Price, uint8(t.Digit))
	return err
}

func (s *ClickHouseHistory) StoreTrade(ctx context.Context, rec *models.TradeRecord) error {
	q := fmt.Sprintf(`INSERT INTO %s
		(ts, trade_id, symbol, contract_type, digit_predicted, digit_actual, stake, outcome, pnl_delta, confidence, top_signal)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.tradesTable)
	_, err := s.client.DB().ExecContext(ctx, q,
		rec.Timestamp,
		rec.TradeID,
		rec.Symbol,
		rec.ContractType,
		uint8(rec.DigitPredicted),
		uint8(rec.DigitActual),
		rec.Stake.StringFixed(2),
		string(rec.Outcome),
		rec.PnLDelta.StringFixed(2),
		rec.Confidence,
		rec.TopSignal,
	)
	return err
}

func (s *ClickHouseHistory) QueryTicks(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Tick, error) {
	q := fmt.Sprintf("SELECT ts, symbol, price, digit FROM %s WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", s.ticksTable)
	rows, err := s.client.DB().QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []*models.Tick
	for rows.Next() {
		var t models.Tick
		var digit uint8
		if err := rows.Scan(&t.Timestamp, &t.Symbol, &t.Price, &digit); err != nil {
			return nil, err
		}
		t.Digit = int(digit)
		ticks = append(ticks, &t)
	}
	return ticks, rows.Err()
}

func (s *ClickHouseHistory) QueryTrades(ctx context.Context, symbol string, limit int) ([]*models.TradeRecord, error) {
	q := fmt.Sprintf(`SELECT ts, trade_id, symbol, contract_type, digit_predicted, digit_actual, stake, outcome, pnl_delta, confidence, top_signal
		FROM %s WHERE symbol = ? ORDER BY ts DESC LIMIT ?`, s.tradesTable)
	rows, err := s.client.DB().QueryContext(ctx, q, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.TradeRecord
	for rows.Next() {
		var (
			rec               models.TradeRecord
			predicted, actual uint8
			stake, pnl        string
			outcome           string
		)
		if err := rows.Scan(&rec.Timestamp, &rec.TradeID, &rec.Symbol, &rec.ContractType,
			&predicted, &actual, &stake, &outcome, &pnl, &rec.Confidence, &rec.TopSignal); err != nil {
			return nil, err
		}
		rec.DigitPredicted = int(predicted)
		rec.DigitActual = int(actual)
		rec.Outcome = models.Outcome(outcome)
		if rec.Stake, err = decimal.NewFromString(stake); err != nil {
			return nil, fmt.Errorf("stake %q: %w", stake, err)
		}
		if rec.PnLDelta, err = decimal.NewFromString(pnl); err != nil {
			return nil, fmt.Errorf("pnl %q: %w", pnl, err)
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

func (s *ClickHouseHistory) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *ClickHouseHistory) Close() error {
	return nil // pool is owned by pkg/clickhouse
}

package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"DigitFlow/internal/domain/models"
	"DigitFlow/internal/domain/repository"
	"DigitFlow/internal/predict"
	"DigitFlow/internal/risk"
	"DigitFlow/internal/stats"
	"DigitFlow/pkg/logger"
)

// TradeSink receives settled trade records for journaling/persistence.
// Sink failures never affect the trading state.
type TradeSink interface {
	ProcessTrade(ctx context.Context, rec *models.TradeRecord) error
}

// Reconciler receives trades whose outcome is ambiguous (accepted by the
// broker but never settled within the timeout) for manual follow-up.
type Reconciler interface {
	EnqueueReconciliation(ctx context.Context, rec *models.TradeRecord, cause error) error
}

const defaultResultTimeout = 60 * time.Second

// Controller owns the trading state machine:
//
//	Idle -> Armed -> AwaitingResult -> Armed | Idle | Halted
//
// At most one trade is outstanding. Every entry point serializes on one
// mutex, so each tick observes a consistent config/account/state triple and
// reconfiguration applies between passes, never mid-pass.
type Controller struct {
	mu sync.Mutex

	engine   *stats.Engine
	ensemble *predict.Ensemble
	risk     *risk.Manager
	broker   repository.Broker
	sink     TradeSink
	metrics  repository.Metrics
	log      *logger.Logger

	recon         Reconciler
	snaps         repository.SnapshotStore
	resultTimeout time.Duration

	state        models.TradingState
	cfg          models.TradingConfig
	acct         models.AccountState
	pending      *pendingTrade
	pendingStop  bool
	lastDecision string
	lastPred     *models.Prediction
	seq          uint64
}

type pendingTrade struct {
	seq        uint64
	req        models.TradeRequest
	prediction models.Prediction
	submitted  time.Time
}

type Option func(*Controller)

func WithResultTimeout(d time.Duration) Option {
	return func(c *Controller) { c.resultTimeout = d }
}

func WithReconciler(r Reconciler) Option {
	return func(c *Controller) { c.recon = r }
}

func WithSnapshotStore(s repository.SnapshotStore) Option {
	return func(c *Controller) { c.snaps = s }
}

func New(
	engine *stats.Engine,
	ensemble *predict.Ensemble,
	riskMgr *risk.Manager,
	broker repository.Broker,
	sink TradeSink,
	metrics repository.Metrics,
	log *logger.Logger,
	opts ...Option,
) *Controller {
	c := &Controller{
		engine:        engine,
		ensemble:      ensemble,
		risk:          riskMgr,
		broker:        broker,
		sink:          sink,
		metrics:       metrics,
		log:           log,
		resultTimeout: defaultResultTimeout,
		state:         models.StateIdle,
		lastDecision:  "not started",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configure replaces the trading config wholesale. Allowed in any state;
// the running pass keeps its snapshot, the next tick sees the new config.
func (c *Controller) Configure(cfg models.TradingConfig) {
	c.mu.Lock()
	c.cfg = cfg
	c.lastDecision = "reconfigured"
	c.mu.Unlock()
	c.log.Info("trading config replaced",
		logger.String("symbol", cfg.Symbol),
		logger.String("strategy", string(cfg.Strategy)),
		logger.Float64("confidence_threshold", cfg.ConfidenceThreshold),
		logger.Bool("auto_stake", cfg.AutoStakeSizing),
	)
}

// Start arms the controller. Restarting from Halted clears the halt.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == models.StateAwaitingResult {
		return models.ErrTradePending
	}
	if c.cfg.Symbol == "" {
		return fmt.Errorf("start rejected: no trading config")
	}
	c.pendingStop = false
	c.acct.IsTrading = true
	c.setState(models.StateArmed)
	c.lastDecision = "armed"
	return nil
}

// Stop disarms. With a trade outstanding the stop is queued and applied
// when the result (or timeout) lands.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case models.StateArmed:
		c.acct.IsTrading = false
		c.setState(models.StateIdle)
		c.lastDecision = "stopped"
	case models.StateAwaitingResult:
		c.pendingStop = true
		c.lastDecision = "stop queued behind pending trade"
	}
}

// UpdateBalance applies an authoritative broker balance.
func (c *Controller) UpdateBalance(balance decimal.Decimal) {
	c.mu.Lock()
	c.acct.Balance = balance
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordBalance(balance.InexactFloat64())
	}
}

// HandleTick is the per-tick pipeline pass: ingest, predict, gate, submit.
// Ticks always feed the statistics engine regardless of state.
func (c *Controller) HandleTick(ctx context.Context, t *models.Tick) {
	c.engine.Ingest(t)
	if c.metrics != nil {
		c.metrics.RecordTick(t.Symbol, t.Price)
		c.metrics.RecordDigit(t.Symbol, t.Digit)
	}

	c.mu.Lock()
	if c.state != models.StateArmed {
		c.mu.Unlock()
		return
	}
	cfg := c.cfg // snapshot for this pass
	now := t.Timestamp

	pred := c.ensemble.Predict(cfg, now)
	c.lastPred = &pred
	if c.metrics != nil {
		c.metrics.RecordConfidence(pred.Confidence)
	}

	dec := c.risk.Evaluate(pred, c.acct, cfg, now)
	if !dec.Trade {
		c.lastDecision = dec.Reason
		if risk.IsHaltReason(dec.Reason) {
			c.halt(dec.Reason)
		}
		c.mu.Unlock()
		c.publishStatus(ctx)
		return
	}

	c.seq++
	p := &pendingTrade{
		seq: c.seq,
		req: models.TradeRequest{
			Symbol:        cfg.Symbol,
			ContractType:  dec.ContractType,
			Digit:         dec.Digit,
			Stake:         dec.Stake,
			DurationTicks: cfg.DurationTicks,
		},
		prediction: pred,
		submitted:  now,
	}
	c.pending = p
	c.setState(models.StateAwaitingResult)
	c.lastDecision = fmt.Sprintf("submitted %s digit %d stake %s", dec.ContractType, dec.Digit, dec.Stake)
	c.mu.Unlock()

	c.log.Info("trade submitted",
		logger.String("contract", p.req.ContractType),
		logger.Int("digit", p.req.Digit),
		logger.String("stake", p.req.Stake.String()),
		logger.Float64("confidence", pred.Confidence),
		logger.String("top_signal", pred.TopSignal),
	)

	go c.submitAndAwait(*p)
	c.publishStatus(ctx)
}

func (c *Controller) submitAndAwait(p pendingTrade) {
	ctx, cancel := context.WithTimeout(context.Background(), c.resultTimeout)
	defer cancel()

	start := time.Now()
	tradeID, err := c.broker.Buy(ctx, p.req)
	if err != nil {
		c.failTrade(p, "", fmt.Errorf("%w: %v", models.ErrBrokerSubmissionFailed, err))
		return
	}

	res, err := c.broker.AwaitResult(ctx, tradeID)
	if err != nil {
		cause := err
		if ctx.Err() != nil {
			cause = models.ErrBrokerResultTimeout
		}
		c.failTrade(p, tradeID, cause)
		return
	}
	if c.metrics != nil {
		c.metrics.RecordLatency("trade_roundtrip", time.Since(start).Seconds())
	}
	c.completeTrade(p.seq, tradeID, res)
}

func (c *Controller) completeTrade(seq uint64, tradeID string, res models.TradeResult) {
	c.mu.Lock()
	if c.pending == nil || c.pending.seq != seq {
		c.mu.Unlock()
		return // stale settlement, already failed over
	}
	p := c.pending
	c.pending = nil

	settled := res.SettledAt
	if settled.IsZero() {
		settled = time.Now()
	}
	rec := &models.TradeRecord{
		TradeID:        tradeID,
		Symbol:         p.req.Symbol,
		ContractType:   p.req.ContractType,
		DigitPredicted: p.req.Digit,
		DigitActual:    res.DigitActual,
		Stake:          p.req.Stake,
		Outcome:        res.Outcome,
		PnLDelta:       res.PnLDelta,
		Confidence:     p.prediction.Confidence,
		TopSignal:      p.prediction.TopSignal,
		Timestamp:      settled,
	}

	c.acct.Balance = c.acct.Balance.Add(res.PnLDelta)
	c.acct.RealizedPnL = c.acct.RealizedPnL.Add(res.PnLDelta)
	c.acct.Trades++
	if res.Outcome == models.OutcomeWin {
		c.acct.Wins++
	} else {
		c.acct.Losses++
	}

	c.risk.RecordOutcome(rec, settled)
	c.ensemble.Calibrate(rec)

	switch {
	case c.cfg.StopLoss.IsPositive() && c.acct.RealizedPnL.LessThanOrEqual(c.cfg.StopLoss.Neg()):
		c.halt(fmt.Sprintf("%s: stop-loss", models.ErrRiskLimitReached.Error()))
	case c.cfg.TakeProfit.IsPositive() && c.acct.RealizedPnL.GreaterThanOrEqual(c.cfg.TakeProfit):
		c.halt(fmt.Sprintf("%s: take-profit", models.ErrRiskLimitReached.Error()))
	case c.pendingStop:
		c.pendingStop = false
		c.acct.IsTrading = false
		c.setState(models.StateIdle)
		c.lastDecision = "stopped after settlement"
	default:
		c.setState(models.StateArmed)
		c.lastDecision = fmt.Sprintf("%s pnl %s", rec.Outcome, rec.PnLDelta)
	}
	balance := c.acct.Balance
	pnl := c.acct.RealizedPnL
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordTrade(string(rec.Outcome))
		c.metrics.RecordBalance(balance.InexactFloat64())
		c.metrics.RecordPnL(pnl.InexactFloat64())
	}
	c.log.Info("trade settled",
		logger.String("trade_id", rec.TradeID),
		logger.String("outcome", string(rec.Outcome)),
		logger.String("pnl_delta", rec.PnLDelta.String()),
		logger.Int("digit_predicted", rec.DigitPredicted),
		logger.Int("digit_actual", rec.DigitActual),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if c.sink != nil {
		if err := c.sink.ProcessTrade(ctx, rec); err != nil {
			c.log.Error("trade journaling failed", logger.Error(err))
		}
	}
	if c.snaps != nil {
		if err := c.snaps.PushTrade(ctx, rec); err != nil {
			c.log.Warn("trade snapshot push failed", logger.Error(err))
		}
	}
	c.publishStatus(ctx)
}

// failTrade resolves a pending trade that produced no settlement. Balance
// and pnl stay untouched; ambiguous outcomes go to reconciliation.
func (c *Controller) failTrade(p pendingTrade, tradeID string, cause error) {
	c.mu.Lock()
	if c.pending == nil || c.pending.seq != p.seq {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	c.lastDecision = cause.Error()
	if c.pendingStop {
		c.pendingStop = false
		c.acct.IsTrading = false
		c.setState(models.StateIdle)
	} else {
		c.setState(models.StateArmed)
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordError("broker")
	}
	c.log.Error("trade unresolved",
		logger.Error(cause),
		logger.String("trade_id", tradeID),
		logger.String("contract", p.req.ContractType),
		logger.Int("digit", p.req.Digit),
	)

	// Only an accepted-but-unsettled trade needs reconciliation; a failed
	// submission never opened a position.
	if c.recon != nil && errors.Is(cause, models.ErrBrokerResultTimeout) {
		rec := &models.TradeRecord{
			TradeID:        tradeID,
			Symbol:         p.req.Symbol,
			ContractType:   p.req.ContractType,
			DigitPredicted: p.req.Digit,
			Stake:          p.req.Stake,
			Confidence:     p.prediction.Confidence,
			TopSignal:      p.prediction.TopSignal,
			Timestamp:      p.submitted,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.recon.EnqueueReconciliation(ctx, rec, cause); err != nil {
			c.log.Error("reconciliation enqueue failed", logger.Error(err))
		}
	}
	c.publishStatus(context.Background())
}

// halt is called with c.mu held.
func (c *Controller) halt(reason string) {
	c.acct.IsTrading = false
	c.setState(models.StateHalted)
	c.lastDecision = reason
}

// setState is called with c.mu held.
func (c *Controller) setState(s models.TradingState) {
	c.state = s
	if c.metrics != nil {
		c.metrics.RecordState(string(s))
	}
}

// Status returns a consistent snapshot of the controller.
func (c *Controller) Status() models.Status {
	c.mu.Lock()
	st := models.Status{
		State:        c.state,
		Symbol:       c.cfg.Symbol,
		Balance:      c.acct.Balance,
		RealizedPnL:  c.acct.RealizedPnL,
		Trades:       c.acct.Trades,
		Wins:         c.acct.Wins,
		Losses:       c.acct.Losses,
		LastDecision: c.lastDecision,
		UpdatedAt:    time.Now().UTC(),
	}
	if c.lastPred != nil {
		pred := *c.lastPred
		st.LastPrediction = &pred
	}
	c.mu.Unlock()

	st.TicksSeen = c.engine.TicksSeen()
	st.LastDigit = c.engine.LastDigit()
	st.SignalAccuracy = c.ensemble.Accuracy()
	return st
}

func (c *Controller) publishStatus(ctx context.Context) {
	if c.snaps == nil {
		return
	}
	st := c.Status()
	if err := c.snaps.PutStatus(ctx, &st); err != nil {
		c.log.Warn("status snapshot failed", logger.Error(err))
	}
}

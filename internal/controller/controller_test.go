package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"DigitFlow/internal/domain/models"
	"DigitFlow/internal/predict"
	"DigitFlow/internal/risk"
	"DigitFlow/internal/service/ratelimit"
	"DigitFlow/internal/stats"
	"DigitFlow/pkg/logger"
)

var tickTime = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

type fakeBroker struct {
	mu     sync.Mutex
	buys   int
	buyErr error
	result models.TradeResult
	hold   chan struct{} // when set, AwaitResult blocks until closed or ctx expires
}

func (b *fakeBroker) Buy(_ context.Context, _ models.TradeRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buyErr != nil {
		return "", b.buyErr
	}
	b.buys++
	return "ct-1", nil
}

func (b *fakeBroker) AwaitResult(ctx context.Context, _ string) (models.TradeResult, error) {
	b.mu.Lock()
	hold := b.hold
	res := b.result
	b.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return models.TradeResult{}, ctx.Err()
		}
	}
	return res, nil
}

func (b *fakeBroker) Balance(_ context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(1000), nil
}

func (b *fakeBroker) buyCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buys
}

type fakeSink struct {
	mu   sync.Mutex
	recs []*models.TradeRecord
}

func (s *fakeSink) ProcessTrade(_ context.Context, rec *models.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

type fakeReconciler struct {
	mu     sync.Mutex
	causes []error
}

func (r *fakeReconciler) EnqueueReconciliation(_ context.Context, _ *models.TradeRecord, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.causes = append(r.causes, cause)
	return nil
}

func (r *fakeReconciler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.causes)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func testConfig() models.TradingConfig {
	return models.TradingConfig{
		Symbol:              "R_100",
		Stake:               decimal.NewFromInt(1),
		DurationTicks:       1,
		Strategy:            models.DirectionDiffers,
		SelectedDigit:       -1,
		StopLoss:            decimal.NewFromInt(50),
		TakeProfit:          decimal.NewFromInt(100),
		ConfidenceThreshold: 70,
		UsePrediction:       true,
		AutoStakeSizing:     true,
	}
}

func newTestController(t *testing.T, broker *fakeBroker, sink *fakeSink, recon *fakeReconciler, opts ...Option) *Controller {
	t.Helper()
	engine := stats.NewEngine(500, []int{10, 20, 50, 100})
	ensemble := predict.NewEnsemble(engine, predict.DefaultConfig())
	riskMgr := risk.NewManager(risk.DefaultConfig(), ratelimit.New())
	opts = append([]Option{WithResultTimeout(200 * time.Millisecond), WithReconciler(recon)}, opts...)
	return New(engine, ensemble, riskMgr, broker, sink, nil, testLogger(t), opts...)
}

// saturate feeds identical digit-7 ticks so the differs ensemble fires with
// high confidence on the next armed pass.
func saturate(c *Controller, n int) {
	for i := 0; i < n; i++ {
		c.HandleTick(context.Background(), &models.Tick{Symbol: "R_100", Price: 100.07, Digit: 7, Timestamp: tickTime})
	}
}

func oneTick(c *Controller) {
	c.HandleTick(context.Background(), &models.Tick{Symbol: "R_100", Price: 100.07, Digit: 7, Timestamp: tickTime})
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func TestStartStopTransitions(t *testing.T) {
	c := newTestController(t, &fakeBroker{}, &fakeSink{}, &fakeReconciler{})

	if err := c.Start(); err == nil {
		t.Fatalf("start without config should fail")
	}
	c.Configure(testConfig())
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if st := c.Status(); st.State != models.StateArmed {
		t.Fatalf("state = %s, want armed", st.State)
	}
	c.Stop()
	if st := c.Status(); st.State != models.StateIdle {
		t.Fatalf("state = %s, want idle", st.State)
	}
	c.Stop() // idle stop is a no-op
	if st := c.Status(); st.State != models.StateIdle {
		t.Fatalf("state after idle stop = %s, want idle", st.State)
	}
}

func TestTradeLifecycleWin(t *testing.T) {
	broker := &fakeBroker{result: models.TradeResult{
		Outcome:     models.OutcomeWin,
		PnLDelta:    decimal.RequireFromString("47.5"),
		DigitActual: 1,
		SettledAt:   tickTime.Add(2 * time.Second),
	}}
	sink := &fakeSink{}
	c := newTestController(t, broker, sink, &fakeReconciler{})

	saturate(c, 60) // idle: statistics only, no trades
	if broker.buyCount() != 0 {
		t.Fatalf("trade submitted while idle")
	}

	c.UpdateBalance(decimal.NewFromInt(1000))
	c.Configure(testConfig())
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	oneTick(c)

	waitFor(t, func() bool { return c.Status().Trades == 1 }, "trade to settle")
	waitFor(t, func() bool { return c.Status().State == models.StateArmed }, "re-arm after win")

	st := c.Status()
	if st.Wins != 1 || st.Losses != 0 {
		t.Fatalf("wins/losses = %d/%d, want 1/0", st.Wins, st.Losses)
	}
	if !st.Balance.Equal(decimal.RequireFromString("1047.5")) {
		t.Fatalf("balance = %s, want 1047.5", st.Balance)
	}
	if !st.RealizedPnL.Equal(decimal.RequireFromString("47.5")) {
		t.Fatalf("pnl = %s, want 47.5", st.RealizedPnL)
	}
	waitFor(t, func() bool { return sink.count() == 1 }, "trade record journaled")
	if broker.buyCount() != 1 {
		t.Fatalf("buys = %d, want 1", broker.buyCount())
	}
}

func TestSingleOutstandingTrade(t *testing.T) {
	hold := make(chan struct{})
	broker := &fakeBroker{
		hold:   hold,
		result: models.TradeResult{Outcome: models.OutcomeWin, PnLDelta: decimal.NewFromInt(1), DigitActual: 2},
	}
	c := newTestController(t, broker, &fakeSink{}, &fakeReconciler{}, WithResultTimeout(5*time.Second))

	saturate(c, 60)
	c.UpdateBalance(decimal.NewFromInt(1000))
	c.Configure(testConfig())
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	oneTick(c)
	waitFor(t, func() bool { return c.Status().State == models.StateAwaitingResult }, "pending trade")
	waitFor(t, func() bool { return broker.buyCount() == 1 }, "buy submitted")

	// Further ticks feed statistics but must not open a second position.
	for i := 0; i < 5; i++ {
		oneTick(c)
	}
	if got := broker.buyCount(); got != 1 {
		t.Fatalf("buys = %d with a trade outstanding, want 1", got)
	}

	close(hold)
	waitFor(t, func() bool { return c.Status().Trades == 1 }, "settlement after release")
}

func TestStopQueuedBehindPendingTrade(t *testing.T) {
	hold := make(chan struct{})
	broker := &fakeBroker{
		hold:   hold,
		result: models.TradeResult{Outcome: models.OutcomeLoss, PnLDelta: decimal.NewFromInt(-1), DigitActual: 7},
	}
	c := newTestController(t, broker, &fakeSink{}, &fakeReconciler{}, WithResultTimeout(5*time.Second))

	saturate(c, 60)
	c.UpdateBalance(decimal.NewFromInt(1000))
	c.Configure(testConfig())
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	oneTick(c)
	waitFor(t, func() bool { return c.Status().State == models.StateAwaitingResult }, "pending trade")

	c.Stop()
	if st := c.Status(); st.State != models.StateAwaitingResult {
		t.Fatalf("stop must not abandon a pending trade, state = %s", st.State)
	}

	close(hold)
	waitFor(t, func() bool { return c.Status().State == models.StateIdle }, "queued stop applied after settlement")
	if st := c.Status(); st.Trades != 1 || st.Losses != 1 {
		t.Fatalf("trades/losses = %d/%d, want 1/1", st.Trades, st.Losses)
	}
}

func TestHaltWhenLossesReachStopLoss(t *testing.T) {
	broker := &fakeBroker{result: models.TradeResult{
		Outcome:     models.OutcomeLoss,
		PnLDelta:    decimal.NewFromInt(-1),
		DigitActual: 7,
	}}
	c := newTestController(t, broker, &fakeSink{}, &fakeReconciler{})

	saturate(c, 60)
	c.UpdateBalance(decimal.NewFromInt(1000))
	cfg := testConfig()
	cfg.AutoStakeSizing = false // flat 1.00 per trade
	cfg.StopLoss = decimal.NewFromInt(3)
	c.Configure(cfg)
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 1; i <= 3; i++ {
		waitFor(t, func() bool { return c.Status().State == models.StateArmed || c.Status().State == models.StateHalted }, "ready for next pass")
		oneTick(c)
		want := i
		waitFor(t, func() bool { return c.Status().Trades == want }, "settlement")
	}

	waitFor(t, func() bool { return c.Status().State == models.StateHalted }, "halt at stop-loss")
	st := c.Status()
	if !st.RealizedPnL.Equal(decimal.NewFromInt(-3)) {
		t.Fatalf("pnl = %s, want -3", st.RealizedPnL)
	}

	// Halted: ticks keep feeding statistics, no trades.
	before := broker.buyCount()
	oneTick(c)
	oneTick(c)
	if broker.buyCount() != before {
		t.Fatalf("trade submitted while halted")
	}
}

func TestResultTimeoutReArmsAndReconciles(t *testing.T) {
	broker := &fakeBroker{hold: make(chan struct{})} // never released
	recon := &fakeReconciler{}
	c := newTestController(t, broker, &fakeSink{}, recon, WithResultTimeout(50*time.Millisecond))

	saturate(c, 60)
	c.UpdateBalance(decimal.NewFromInt(1000))
	c.Configure(testConfig())
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	oneTick(c)

	waitFor(t, func() bool { return c.Status().State == models.StateArmed }, "re-arm after timeout")
	st := c.Status()
	if st.Trades != 0 {
		t.Fatalf("ambiguous trade must not settle locally, trades = %d", st.Trades)
	}
	if !st.Balance.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("balance touched on ambiguous outcome: %s", st.Balance)
	}
	waitFor(t, func() bool { return recon.count() == 1 }, "reconciliation enqueued")
	recon.mu.Lock()
	cause := recon.causes[0]
	recon.mu.Unlock()
	if !errors.Is(cause, models.ErrBrokerResultTimeout) {
		t.Fatalf("cause = %v, want result timeout", cause)
	}
}

func TestSubmissionFailureSkipsReconciliation(t *testing.T) {
	broker := &fakeBroker{buyErr: errors.New("socket closed")}
	recon := &fakeReconciler{}
	c := newTestController(t, broker, &fakeSink{}, recon)

	saturate(c, 60)
	c.UpdateBalance(decimal.NewFromInt(1000))
	c.Configure(testConfig())
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	oneTick(c)

	waitFor(t, func() bool { return c.Status().State == models.StateArmed && c.Status().Trades == 0 }, "re-arm after failed submission")
	time.Sleep(50 * time.Millisecond)
	if recon.count() != 0 {
		t.Fatalf("failed submission must not be reconciled, got %d entries", recon.count())
	}
}

func TestConfigureAppliesBetweenPasses(t *testing.T) {
	broker := &fakeBroker{result: models.TradeResult{Outcome: models.OutcomeWin, PnLDelta: decimal.NewFromInt(1)}}
	c := newTestController(t, broker, &fakeSink{}, &fakeReconciler{})

	saturate(c, 60)
	c.UpdateBalance(decimal.NewFromInt(1000))
	cfg := testConfig()
	cfg.ConfidenceThreshold = 99.5 // unreachable, every pass skips
	c.Configure(cfg)
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	oneTick(c)
	if broker.buyCount() != 0 {
		t.Fatalf("trade fired above unreachable threshold")
	}

	cfg.ConfidenceThreshold = 70
	c.Configure(cfg)
	oneTick(c)
	waitFor(t, func() bool { return c.Status().Trades == 1 }, "trade after threshold lowered")
}

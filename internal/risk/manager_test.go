package risk

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"DigitFlow/internal/domain/models"
	"DigitFlow/internal/service/ratelimit"
)

var evalNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func favorablePrediction(confidence float64) models.Prediction {
	return models.Prediction{
		Symbol:     "R_100",
		Digit:      3,
		Direction:  models.DirectionDiffers,
		Confidence: confidence,
		TopSignal:  "frequency",
		Timestamp:  evalNow,
	}
}

func baseAccount(balance float64) models.AccountState {
	return models.AccountState{Balance: decimal.NewFromFloat(balance), IsTrading: true}
}

func baseConfig() models.TradingConfig {
	return models.TradingConfig{
		Symbol:              "R_100",
		Stake:               decimal.NewFromFloat(1.0),
		DurationTicks:       1,
		Strategy:            models.DirectionDiffers,
		SelectedDigit:       -1,
		StopLoss:            decimal.NewFromFloat(50),
		TakeProfit:          decimal.NewFromFloat(100),
		ConfidenceThreshold: 70,
		UsePrediction:       true,
		AutoStakeSizing:     true,
	}
}

func TestKellyStakeClampedToMaxFraction(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	cfg := baseConfig()
	cfg.StopLoss = decimal.NewFromInt(500) // keep headroom out of the way
	dec := m.Evaluate(favorablePrediction(75), baseAccount(1000), cfg, evalNow)
	if !dec.Trade {
		t.Fatalf("expected trade, skipped: %s", dec.Reason)
	}
	// f* at p=0.75 exceeds the 15% clamp, so stake = 1000 * 0.15.
	if !dec.Stake.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("stake = %s, want 150", dec.Stake)
	}
	if dec.ContractType != "DIGITDIFF" {
		t.Fatalf("contract = %s, want DIGITDIFF", dec.ContractType)
	}
}

func TestKellyStakeBelowClamp(t *testing.T) {
	cfg := baseConfig()
	cfg.ConfidenceThreshold = 50
	cfg.StopLoss = decimal.NewFromInt(500)
	m := NewManager(DefaultConfig(), nil)
	dec := m.Evaluate(favorablePrediction(55), baseAccount(1000), cfg, evalNow)
	if !dec.Trade {
		t.Fatalf("expected trade, skipped: %s", dec.Reason)
	}
	// f* = (0.95*0.55 - 0.45) / 0.95, rounded down to the cent on 1000.
	want := decimal.RequireFromString("76.31")
	if !dec.Stake.Equal(want) {
		t.Fatalf("stake = %s, want %s", dec.Stake, want)
	}
}

func TestFlatSizing(t *testing.T) {
	cfg := baseConfig()
	cfg.AutoStakeSizing = false
	m := NewManager(DefaultConfig(), nil)
	dec := m.Evaluate(favorablePrediction(75), baseAccount(1000), cfg, evalNow)
	if !dec.Trade || !dec.Stake.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("flat stake = %s (trade=%v), want 1", dec.Stake, dec.Trade)
	}
}

func TestStakeBelowMinimumSkipped(t *testing.T) {
	cfg := baseConfig()
	cfg.AutoStakeSizing = false
	cfg.Stake = decimal.NewFromFloat(0.20)
	m := NewManager(DefaultConfig(), nil)
	dec := m.Evaluate(favorablePrediction(75), baseAccount(1000), cfg, evalNow)
	if dec.Trade {
		t.Fatalf("expected skip for stake under broker minimum")
	}
	if dec.Reason != models.ErrStakeBelowMinimum.Error() {
		t.Fatalf("reason = %q", dec.Reason)
	}
}

func TestStakeCappedByStopLossHeadroom(t *testing.T) {
	cfg := baseConfig()
	cfg.AutoStakeSizing = false
	cfg.Stake = decimal.NewFromFloat(5)
	acct := baseAccount(1000)
	acct.RealizedPnL = decimal.NewFromFloat(-49.50)
	m := NewManager(DefaultConfig(), nil)
	dec := m.Evaluate(favorablePrediction(75), acct, cfg, evalNow)
	if !dec.Trade {
		t.Fatalf("expected trade, skipped: %s", dec.Reason)
	}
	if !dec.Stake.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("stake = %s, want 0.5 (remaining loss budget)", dec.Stake)
	}
}

func TestSessionLimitsSkipTerminally(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)

	acct := baseAccount(1000)
	acct.RealizedPnL = decimal.NewFromFloat(-50)
	dec := m.Evaluate(favorablePrediction(75), acct, baseConfig(), evalNow)
	if dec.Trade {
		t.Fatalf("expected stop-loss skip")
	}
	if !IsHaltReason(dec.Reason) {
		t.Fatalf("reason %q not recognized as halt", dec.Reason)
	}

	acct.RealizedPnL = decimal.NewFromFloat(120)
	dec = m.Evaluate(favorablePrediction(75), acct, baseConfig(), evalNow)
	if dec.Trade || !IsHaltReason(dec.Reason) {
		t.Fatalf("expected take-profit skip, got trade=%v reason=%q", dec.Trade, dec.Reason)
	}
}

func TestUnfavorableAndLowConfidenceSkipped(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)

	pred := favorablePrediction(0)
	pred.Unfavorable = true
	pred.Reason = models.ErrVolatilityVeto.Error()
	dec := m.Evaluate(pred, baseAccount(1000), baseConfig(), evalNow)
	if dec.Trade || dec.Reason != models.ErrVolatilityVeto.Error() {
		t.Fatalf("veto not propagated: trade=%v reason=%q", dec.Trade, dec.Reason)
	}

	dec = m.Evaluate(favorablePrediction(60), baseAccount(1000), baseConfig(), evalNow)
	if dec.Trade {
		t.Fatalf("expected skip below confidence threshold")
	}
}

func TestCircuitBreakerOpensAndClears(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	loss := &models.TradeRecord{Outcome: models.OutcomeLoss}

	for i := 0; i < 4; i++ {
		m.RecordOutcome(loss, evalNow)
	}
	if m.BreakerOpen(evalNow) {
		t.Fatalf("breaker open after 4 losses, threshold is 5")
	}
	m.RecordOutcome(loss, evalNow)
	if !m.BreakerOpen(evalNow) {
		t.Fatalf("breaker should open after 5 consecutive losses")
	}

	dec := m.Evaluate(favorablePrediction(75), baseAccount(1000), baseConfig(), evalNow)
	if dec.Trade || !strings.HasPrefix(dec.Reason, models.ErrCircuitBreakerOpen.Error()) {
		t.Fatalf("expected breaker skip, got trade=%v reason=%q", dec.Trade, dec.Reason)
	}

	after := evalNow.Add(31 * time.Minute)
	if m.BreakerOpen(after) {
		t.Fatalf("breaker still open after cooldown")
	}
	if dec := m.Evaluate(favorablePrediction(75), baseAccount(1000), baseConfig(), after); !dec.Trade {
		t.Fatalf("expected trade after cooldown, skipped: %s", dec.Reason)
	}
}

func TestWinResetsBreakerCount(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	loss := &models.TradeRecord{Outcome: models.OutcomeLoss}
	win := &models.TradeRecord{Outcome: models.OutcomeWin}

	for i := 0; i < 4; i++ {
		m.RecordOutcome(loss, evalNow)
	}
	m.RecordOutcome(win, evalNow)
	m.RecordOutcome(loss, evalNow)
	if m.BreakerOpen(evalNow) {
		t.Fatalf("breaker open despite the win resetting the streak")
	}
}

func TestTradeRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTradesPerHour = 2
	m := NewManager(cfg, ratelimit.New())

	for i := 0; i < 2; i++ {
		if dec := m.Evaluate(favorablePrediction(75), baseAccount(1000), baseConfig(), evalNow); !dec.Trade {
			t.Fatalf("trade %d skipped: %s", i+1, dec.Reason)
		}
	}
	dec := m.Evaluate(favorablePrediction(75), baseAccount(1000), baseConfig(), evalNow)
	if dec.Trade || dec.Reason != models.ErrTradeRateLimited.Error() {
		t.Fatalf("expected rate-limit skip, got trade=%v reason=%q", dec.Trade, dec.Reason)
	}

	// Budget refills over time.
	later := evalNow.Add(time.Hour)
	if dec := m.Evaluate(favorablePrediction(75), baseAccount(1000), baseConfig(), later); !dec.Trade {
		t.Fatalf("expected trade after refill, skipped: %s", dec.Reason)
	}
}

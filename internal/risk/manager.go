package risk

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"DigitFlow/internal/domain/models"
	"DigitFlow/internal/service/ratelimit"
)

// Config bounds the risk manager. Money values are decimal: stake and pnl
// arithmetic must not drift.
type Config struct {
	PayoutRatio      float64
	MaxKellyFraction float64
	MaxConfidence    float64 // confidence cap fed into Kelly, percent
	MinStake         decimal.Decimal
	StakeIncrement   decimal.Decimal
	MaxTradesPerHour int
	BreakerThreshold int // consecutive losses before the breaker opens
	BreakerCooldown  time.Duration
}

func DefaultConfig() Config {
	return Config{
		PayoutRatio:      0.95,
		MaxKellyFraction: 0.15,
		MaxConfidence:    85,
		MinStake:         decimal.NewFromFloat(0.35),
		StakeIncrement:   decimal.NewFromFloat(0.01),
		MaxTradesPerHour: 20,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Minute,
	}
}

const tradeBudgetKey = "trades"

// Manager gates trade submissions: prediction quality, session loss limits,
// the consecutive-loss circuit breaker, the hourly trade budget, and stake
// sizing against balance and remaining loss headroom.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	limiter *ratelimit.Limiter

	consecutiveLosses int
	breakerUntil      time.Time
}

func NewManager(cfg Config, limiter *ratelimit.Limiter) *Manager {
	return &Manager{cfg: cfg, limiter: limiter}
}

// Evaluate decides whether a prediction becomes a trade and at what stake.
// A skipped trade carries the reason; terminal conditions surface the
// matching sentinel error text so callers can branch on it.
func (m *Manager) Evaluate(pred models.Prediction, acct models.AccountState, cfg models.TradingConfig, now time.Time) models.TradeDecision {
	m.mu.Lock()
	defer m.mu.Unlock()

	skip := func(reason string) models.TradeDecision {
		return models.TradeDecision{Trade: false, Reason: reason}
	}

	if pred.Unfavorable {
		return skip(pred.Reason)
	}
	if pred.Confidence < cfg.ConfidenceThreshold {
		return skip(fmt.Sprintf("confidence %.1f below threshold %.1f", pred.Confidence, cfg.ConfidenceThreshold))
	}
	if limit, hit := sessionLimit(acct, cfg); hit {
		return skip(fmt.Sprintf("%s: %s", models.ErrRiskLimitReached.Error(), limit))
	}
	if now.Before(m.breakerUntil) {
		return skip(fmt.Sprintf("%s until %s", models.ErrCircuitBreakerOpen.Error(), m.breakerUntil.UTC().Format(time.RFC3339)))
	}

	stake := m.size(pred.Confidence, acct, cfg)
	if stake.LessThan(m.cfg.MinStake) {
		return skip(models.ErrStakeBelowMinimum.Error())
	}

	if m.limiter != nil && m.cfg.MaxTradesPerHour > 0 {
		budget := float64(m.cfg.MaxTradesPerHour)
		if !m.limiter.AllowAt(tradeBudgetKey, budget, budget/3600, now) {
			return skip(models.ErrTradeRateLimited.Error())
		}
	}

	return models.TradeDecision{
		Trade:        true,
		ContractType: pred.Direction.ContractType(),
		Digit:        pred.Digit,
		Stake:        stake,
	}
}

// size applies the configured sizing strategy, caps against balance and the
// remaining stop-loss headroom, then rounds down to the broker increment.
func (m *Manager) size(confidence float64, acct models.AccountState, cfg models.TradingConfig) decimal.Decimal {
	var sizer Sizer = FlatSizer{Amount: cfg.Stake}
	if cfg.AutoStakeSizing {
		sizer = KellySizer{
			PayoutRatio:   m.cfg.PayoutRatio,
			MaxFraction:   m.cfg.MaxKellyFraction,
			MaxConfidence: m.cfg.MaxConfidence,
		}
	}
	stake := sizer.Stake(confidence, acct.Balance)

	if stake.GreaterThan(acct.Balance) {
		stake = acct.Balance
	}
	if cfg.StopLoss.IsPositive() {
		// A losing trade must not overshoot the stop-loss.
		headroom := cfg.StopLoss.Add(acct.RealizedPnL)
		if stake.GreaterThan(headroom) {
			stake = headroom
		}
	}
	if stake.IsNegative() {
		return decimal.Zero
	}
	return stake.Div(m.cfg.StakeIncrement).Floor().Mul(m.cfg.StakeIncrement)
}

func sessionLimit(acct models.AccountState, cfg models.TradingConfig) (string, bool) {
	if cfg.StopLoss.IsPositive() && acct.RealizedPnL.LessThanOrEqual(cfg.StopLoss.Neg()) {
		return "stop-loss", true
	}
	if cfg.TakeProfit.IsPositive() && acct.RealizedPnL.GreaterThanOrEqual(cfg.TakeProfit) {
		return "take-profit", true
	}
	return "", false
}

// RecordOutcome feeds settled trades into the circuit breaker.
func (m *Manager) RecordOutcome(rec *models.TradeRecord, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.Outcome == models.OutcomeWin {
		m.consecutiveLosses = 0
		return
	}
	m.consecutiveLosses++
	if m.consecutiveLosses >= m.cfg.BreakerThreshold {
		m.breakerUntil = now.Add(m.cfg.BreakerCooldown)
		m.consecutiveLosses = 0
	}
}

// BreakerOpen reports whether the circuit breaker currently blocks trades.
func (m *Manager) BreakerOpen(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.Before(m.breakerUntil)
}

// IsHaltReason reports whether a skip reason marks the terminal session
// limit rather than a transient gate.
func IsHaltReason(reason string) bool {
	return strings.HasPrefix(reason, models.ErrRiskLimitReached.Error())
}

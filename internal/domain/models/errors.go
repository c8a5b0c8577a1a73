package models

import "errors"

// Domain error taxonomy. Callers branch with errors.Is; wrapping preserves
// the sentinel.
var (
	// ErrInsufficientData: the statistics engine has fewer ticks than the
	// configured minimum, predictions are withheld.
	ErrInsufficientData = errors.New("insufficient tick history")

	// ErrVolatilityVeto: realized volatility is outside the favorable band,
	// the prediction is forced unfavorable.
	ErrVolatilityVeto = errors.New("volatility outside favorable band")

	// ErrStakeBelowMinimum: the sized stake fell under the broker minimum
	// after rounding and capping.
	ErrStakeBelowMinimum = errors.New("stake below broker minimum")

	// ErrRiskLimitReached: stop-loss or take-profit hit, trading halts until
	// an explicit restart.
	ErrRiskLimitReached = errors.New("risk limit reached")

	// ErrCircuitBreakerOpen: too many consecutive losses, trading is paused
	// for the cooldown period.
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")

	// ErrTradeRateLimited: the per-hour trade budget is exhausted.
	ErrTradeRateLimited = errors.New("trade rate limit exceeded")

	// ErrBrokerSubmissionFailed: the buy request never reached an accepted
	// state; no position is open.
	ErrBrokerSubmissionFailed = errors.New("broker submission failed")

	// ErrBrokerResultTimeout: the trade was accepted but no settlement
	// arrived in time; the outcome is ambiguous and queued for reconciliation.
	ErrBrokerResultTimeout = errors.New("broker result timed out")

	// ErrTradePending: a trade is already outstanding; only one may be open.
	ErrTradePending = errors.New("trade already pending")
)

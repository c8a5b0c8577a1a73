package risk

import "github.com/shopspring/decimal"

// Sizer turns a prediction confidence and the current balance into a raw
// stake. Rounding, broker minimums and loss-budget caps are the manager's
// job, not the sizer's.
type Sizer interface {
	Stake(confidence float64, balance decimal.Decimal) decimal.Decimal
}

// FlatSizer always stakes the configured amount.
type FlatSizer struct {
	Amount decimal.Decimal
}

func (s FlatSizer) Stake(_ float64, _ decimal.Decimal) decimal.Decimal {
	return s.Amount
}

// KellySizer stakes the Kelly fraction of the balance:
//
//	f* = (b*p - (1-p)) / b
//
// where b is the net payout ratio and p the estimated win probability.
// p is capped so an overconfident model cannot demand an outsized stake,
// and f* is clamped to [0, MaxFraction].
type KellySizer struct {
	PayoutRatio   float64 // b
	MaxFraction   float64
	MaxConfidence float64 // cap on confidence (0..100) before it becomes p
}

func (s KellySizer) Stake(confidence float64, balance decimal.Decimal) decimal.Decimal {
	if confidence > s.MaxConfidence {
		confidence = s.MaxConfidence
	}
	p := confidence / 100
	f := (s.PayoutRatio*p - (1 - p)) / s.PayoutRatio
	if f < 0 {
		f = 0
	}
	if f > s.MaxFraction {
		f = s.MaxFraction
	}
	return balance.Mul(decimal.NewFromFloat(f))
}

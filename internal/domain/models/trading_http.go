package models

import "github.com/shopspring/decimal"

// Requests for the trading HTTP endpoints. Defined in domain for consistency and reuse.

type ConfigRequest struct {
	Symbol              string  `json:"symbol" default:"R_100" validate:"required"`
	Stake               float64 `json:"stake" default:"1.0" validate:"gt=0"`
	DurationTicks       int     `json:"duration_ticks" default:"1" validate:"gte=1,lte=10"`
	Strategy            string  `json:"strategy" default:"differs" validate:"oneof=matches differs"`
	SelectedDigit       *int    `json:"selected_digit" validate:"omitempty,gte=0,lte=9"`
	StopLoss            float64 `json:"stop_loss" default:"50.0" validate:"gt=0"`
	TakeProfit          float64 `json:"take_profit" default:"100.0" validate:"gt=0"`
	ConfidenceThreshold float64 `json:"confidence_threshold" validate:"omitempty,gte=0,lte=100"`
	UsePrediction       *bool   `json:"use_prediction"`
	AutoStakeSizing     *bool   `json:"auto_stake_sizing"`
}

type HistoryRequest struct {
	Symbol string `query:"symbol" json:"symbol" default:"R_100" validate:"required"`
	Kind   string `query:"kind" json:"kind" default:"trades" validate:"oneof=ticks trades"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

// Strategy-specific confidence floors from the reference strategy tables.
const (
	defaultMatchesThreshold = 75.0
	defaultDiffersThreshold = 70.0
)

// ToTradingConfig converts the bound request into the domain config.
// Zero threshold falls back to the per-strategy default.
func (r *ConfigRequest) ToTradingConfig() TradingConfig {
	cfg := TradingConfig{
		Symbol:              r.Symbol,
		Stake:               decimal.NewFromFloat(r.Stake),
		DurationTicks:       r.DurationTicks,
		Strategy:            Direction(r.Strategy),
		SelectedDigit:       -1,
		StopLoss:            decimal.NewFromFloat(r.StopLoss),
		TakeProfit:          decimal.NewFromFloat(r.TakeProfit),
		ConfidenceThreshold: r.ConfidenceThreshold,
		UsePrediction:       true,
		AutoStakeSizing:     true,
	}
	if r.SelectedDigit != nil {
		cfg.SelectedDigit = *r.SelectedDigit
	}
	if r.UsePrediction != nil {
		cfg.UsePrediction = *r.UsePrediction
	}
	if r.AutoStakeSizing != nil {
		cfg.AutoStakeSizing = *r.AutoStakeSizing
	}
	if cfg.ConfidenceThreshold == 0 {
		if cfg.Strategy == DirectionMatches {
			cfg.ConfidenceThreshold = defaultMatchesThreshold
		} else {
			cfg.ConfidenceThreshold = defaultDiffersThreshold
		}
	}
	return cfg
}

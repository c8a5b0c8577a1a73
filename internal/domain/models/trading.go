package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction selects the contract side for a digit trade.
type Direction string

const (
	DirectionMatches Direction = "matches"
	DirectionDiffers Direction = "differs"
)

// ContractType maps the direction to the broker contract code.
func (d Direction) ContractType() string {
	if d == DirectionMatches {
		return "DIGITMATCH"
	}
	return "DIGITDIFF"
}

// Trading states of the controller loop.
type TradingState string

const (
	StateIdle           TradingState = "idle"
	StateArmed          TradingState = "armed"
	StateAwaitingResult TradingState = "awaiting_result"
	StateHalted         TradingState = "halted"
)

// Trade outcomes as settled by the broker.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
)

// TradingConfig is the operator-supplied strategy configuration.
// It is replaced wholesale on reconfiguration and snapshotted once per tick
// by the controller.
type TradingConfig struct {
	Symbol              string
	Stake               decimal.Decimal // flat stake when AutoStakeSizing is off
	DurationTicks       int
	Strategy            Direction
	SelectedDigit       int // -1 lets the ensemble pick
	StopLoss            decimal.Decimal // session loss limit, positive
	TakeProfit          decimal.Decimal // session profit target, positive
	ConfidenceThreshold float64         // minimum prediction confidence, 0..100
	UsePrediction       bool
	AutoStakeSizing     bool
}

// AccountState is the controller-owned account view. Money values use
// decimal arithmetic; float drift on balances is not acceptable.
type AccountState struct {
	Balance     decimal.Decimal
	RealizedPnL decimal.Decimal
	Trades      int
	Wins        int
	Losses      int
	IsTrading   bool
}

// Prediction is the ensemble output for one tick.
type Prediction struct {
	Symbol          string             `json:"symbol"`
	Digit           int                `json:"digit"`
	Direction       Direction          `json:"direction"`
	Confidence      float64            `json:"confidence"` // 0..100
	ComponentScores map[string]float64 `json:"component_scores,omitempty"`
	TopSignal       string             `json:"top_signal"` // signal that contributed most to the pick
	Unfavorable     bool               `json:"unfavorable"` // hard veto (volatility) or insufficient data
	Reason          string             `json:"reason,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
}

// TradeRequest is what the controller submits to the broker.
type TradeRequest struct {
	Symbol        string
	ContractType  string // "DIGITMATCH" | "DIGITDIFF"
	Digit         int
	Stake         decimal.Decimal
	DurationTicks int
}

// TradeResult is the broker settlement for a submitted trade.
type TradeResult struct {
	TradeID     string
	Outcome     Outcome
	PnLDelta    decimal.Decimal // signed, net of stake
	DigitActual int
	SettledAt   time.Time
}

// TradeRecord is the journaled record of a settled trade.
type TradeRecord struct {
	TradeID        string          `json:"trade_id"`
	Symbol         string          `json:"symbol"`
	ContractType   string          `json:"contract_type"`
	DigitPredicted int             `json:"digit_predicted"`
	DigitActual    int             `json:"digit_actual"`
	Stake          decimal.Decimal `json:"stake"`
	Outcome        Outcome         `json:"outcome"`
	PnLDelta       decimal.Decimal `json:"pnl_delta"`
	Confidence     float64         `json:"confidence"`
	TopSignal      string          `json:"top_signal"`
	Timestamp      time.Time       `json:"timestamp"`
}

// TradeDecision is the risk manager verdict for one prediction.
type TradeDecision struct {
	Trade        bool
	ContractType string
	Digit        int
	Stake        decimal.Decimal
	Reason       string // populated when Trade is false
}

// Status is the externally visible controller snapshot.
type Status struct {
	State          TradingState       `json:"state"`
	Symbol         string             `json:"symbol"`
	Balance        decimal.Decimal    `json:"balance"`
	RealizedPnL    decimal.Decimal    `json:"realized_pnl"`
	Trades         int                `json:"trades"`
	Wins           int                `json:"wins"`
	Losses         int                `json:"losses"`
	TicksSeen      int                `json:"ticks_seen"`
	LastDigit      int                `json:"last_digit"`
	LastDecision   string             `json:"last_decision"`
	LastPrediction *Prediction        `json:"last_prediction,omitempty"`
	SignalAccuracy map[string]float64 `json:"signal_accuracy,omitempty"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

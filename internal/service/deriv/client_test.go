package deriv

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"DigitFlow/internal/domain/models"
	"DigitFlow/pkg/logger"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return New(Config{Symbol: "R_100", PricePrecision: 2}, log)
}

func TestParseTick(t *testing.T) {
	c := newClient(t)
	raw := json.RawMessage(`{"symbol":"R_100","quote":8631.47,"epoch":1741946400}`)
	tick := c.parseTick(raw)
	if tick == nil {
		t.Fatalf("tick not parsed")
	}
	if tick.Digit != 7 {
		t.Fatalf("digit = %d, want 7", tick.Digit)
	}
	if tick.Price != 8631.47 || tick.Symbol != "R_100" {
		t.Fatalf("tick = %+v", tick)
	}
	if tick.Timestamp.Unix() != 1741946400 {
		t.Fatalf("timestamp = %v", tick.Timestamp)
	}
}

func TestParseTickRejectsGarbage(t *testing.T) {
	c := newClient(t)
	if tick := c.parseTick(json.RawMessage(`{"symbol":"R_100"}`)); tick != nil {
		t.Fatalf("zero quote should be rejected, got %+v", tick)
	}
	if tick := c.parseTick(json.RawMessage(`not json`)); tick != nil {
		t.Fatalf("invalid json should be rejected")
	}
}

func TestSettleFrame(t *testing.T) {
	c := newClient(t)

	open := json.RawMessage(`{"msg_type":"proposal_open_contract","proposal_open_contract":{"contract_id":42,"is_sold":0}}`)
	if _, done, err := c.settleFrame("42", open); err != nil || done {
		t.Fatalf("open contract: done=%v err=%v", done, err)
	}

	won := json.RawMessage(`{"msg_type":"proposal_open_contract","proposal_open_contract":{"contract_id":42,"is_sold":1,"status":"won","profit":0.95,"exit_tick_display_value":"8631.43","sell_time":1741946402}}`)
	res, done, err := c.settleFrame("42", won)
	if err != nil || !done {
		t.Fatalf("sold contract: done=%v err=%v", done, err)
	}
	if res.Outcome != models.OutcomeWin {
		t.Fatalf("outcome = %s, want win", res.Outcome)
	}
	if !res.PnLDelta.Equal(decimal.RequireFromString("0.95")) {
		t.Fatalf("pnl = %s, want 0.95", res.PnLDelta)
	}
	if res.DigitActual != 3 {
		t.Fatalf("exit digit = %d, want 3", res.DigitActual)
	}

	lost := json.RawMessage(`{"proposal_open_contract":{"contract_id":42,"is_sold":1,"status":"lost","profit":-1.00,"exit_tick_display_value":"8631.47"}}`)
	res, done, err = c.settleFrame("42", lost)
	if err != nil || !done {
		t.Fatalf("lost contract: done=%v err=%v", done, err)
	}
	if res.Outcome != models.OutcomeLoss || res.DigitActual != 7 {
		t.Fatalf("res = %+v", res)
	}
}

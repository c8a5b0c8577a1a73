package predict

import (
	"math"
	"testing"
	"time"

	"DigitFlow/internal/domain/models"
	"DigitFlow/internal/stats"
)

var testNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func newTestEngine() *stats.Engine {
	return stats.NewEngine(500, []int{10, 20, 50, 100})
}

func feed(e *stats.Engine, digit int, price float64, n int) {
	for i := 0; i < n; i++ {
		e.Ingest(&models.Tick{Symbol: "R_100", Price: price, Digit: digit, Timestamp: testNow})
	}
}

func differsConfig() models.TradingConfig {
	return models.TradingConfig{
		Symbol:        "R_100",
		Strategy:      models.DirectionDiffers,
		SelectedDigit: -1,
		UsePrediction: true,
	}
}

func TestPredictInsufficientData(t *testing.T) {
	engine := newTestEngine()
	feed(engine, 7, 100.07, 10)
	ens := NewEnsemble(engine, DefaultConfig())

	pred := ens.Predict(differsConfig(), testNow)
	if !pred.Unfavorable {
		t.Fatalf("expected unfavorable prediction with %d ticks", engine.TicksSeen())
	}
	if pred.Confidence != 0 {
		t.Fatalf("confidence = %v, want 0", pred.Confidence)
	}
	if pred.Reason != models.ErrInsufficientData.Error() {
		t.Fatalf("reason = %q", pred.Reason)
	}
}

func TestPredictVolatilityVeto(t *testing.T) {
	engine := newTestEngine()
	for i := 0; i < 60; i++ {
		price := 100.0
		if i%2 == 1 {
			price = 110.0
		}
		engine.Ingest(&models.Tick{Symbol: "R_100", Price: price, Digit: i % 10, Timestamp: testNow})
	}
	ens := NewEnsemble(engine, DefaultConfig())

	pred := ens.Predict(differsConfig(), testNow)
	if !pred.Unfavorable {
		t.Fatalf("expected volatility veto, got favorable prediction")
	}
	if pred.Reason != models.ErrVolatilityVeto.Error() {
		t.Fatalf("reason = %q", pred.Reason)
	}
}

// A history saturated by a single digit must drive a confident differs call
// against some other digit.
func TestPredictDiffersOnSaturatedDigit(t *testing.T) {
	engine := newTestEngine()
	feed(engine, 7, 100.07, 60)
	ens := NewEnsemble(engine, DefaultConfig())

	pred := ens.Predict(differsConfig(), testNow)
	if pred.Unfavorable {
		t.Fatalf("unexpected veto: %s", pred.Reason)
	}
	if pred.Digit == 7 {
		t.Fatalf("differs target = 7, want any other digit")
	}
	if pred.Confidence <= 70 {
		t.Fatalf("confidence = %v, want > 70", pred.Confidence)
	}
	if pred.TopSignal == "" {
		t.Fatalf("missing top signal attribution")
	}
}

func TestPredictMatchesOnSaturatedDigit(t *testing.T) {
	engine := newTestEngine()
	feed(engine, 7, 100.07, 60)
	ens := NewEnsemble(engine, DefaultConfig())

	cfg := differsConfig()
	cfg.Strategy = models.DirectionMatches
	pred := ens.Predict(cfg, testNow)
	if pred.Digit != 7 {
		t.Fatalf("matches target = %d, want 7", pred.Digit)
	}
	if pred.Confidence <= 50 {
		t.Fatalf("confidence = %v, want > 50", pred.Confidence)
	}
}

func TestPredictConfidenceBounds(t *testing.T) {
	engine := newTestEngine()
	for i := 0; i < 200; i++ {
		engine.Ingest(&models.Tick{Symbol: "R_100", Price: 100.0 + float64(i%7)/100, Digit: (i * 3) % 10, Timestamp: testNow})
	}
	ens := NewEnsemble(engine, DefaultConfig())

	for _, dir := range []models.Direction{models.DirectionMatches, models.DirectionDiffers} {
		cfg := differsConfig()
		cfg.Strategy = dir
		pred := ens.Predict(cfg, testNow)
		if pred.Confidence < 0 || pred.Confidence > 100 {
			t.Fatalf("%s confidence %v out of [0,100]", dir, pred.Confidence)
		}
		if pred.Digit < 0 || pred.Digit > 9 {
			t.Fatalf("%s digit %d out of range", dir, pred.Digit)
		}
	}
}

func TestPredictManualSelection(t *testing.T) {
	engine := newTestEngine()
	feed(engine, 7, 100.07, 60)
	ens := NewEnsemble(engine, DefaultConfig())

	cfg := differsConfig()
	cfg.UsePrediction = false
	cfg.SelectedDigit = 4
	pred := ens.Predict(cfg, testNow)
	if pred.Digit != 4 {
		t.Fatalf("digit = %d, want operator's 4", pred.Digit)
	}
	if pred.Confidence != 100 {
		t.Fatalf("manual confidence = %v, want 100", pred.Confidence)
	}
}

func TestWindowAgreementPenalizesSpread(t *testing.T) {
	freqs := func(v float64) (f [10]float64) {
		f[4] = v
		return f
	}
	same := []stats.WindowSnapshot{
		{Total: 10, Frequencies: freqs(0.3)},
		{Total: 50, Frequencies: freqs(0.3)},
	}
	if got := windowAgreement(same, 4); got != 1 {
		t.Fatalf("identical windows agreement = %v, want 1", got)
	}

	spread := []stats.WindowSnapshot{
		{Total: 10, Frequencies: freqs(0.1)},
		{Total: 50, Frequencies: freqs(0.5)},
	}
	got := windowAgreement(spread, 4)
	// sd = 0.2, so the penalty leaves 1 - 4*0.2.
	if math.Abs(got-0.2) > 1e-9 {
		t.Fatalf("spread agreement = %v, want 0.2", got)
	}

	if got := windowAgreement(spread[:1], 4); got != 1 {
		t.Fatalf("single window agreement = %v, want 1", got)
	}
}

// A tape whose short windows diverge from the long ones must yield lower
// confidence than one where every window tells the same story.
func TestConfidenceDropsOnWindowDisagreement(t *testing.T) {
	agreeing := newTestEngine()
	feed(agreeing, 7, 100.07, 120)
	predA := NewEnsemble(agreeing, DefaultConfig()).Predict(differsConfig(), testNow)

	diverging := newTestEngine()
	feed(diverging, 7, 100.07, 110)
	feed(diverging, 2, 100.02, 10)
	predD := NewEnsemble(diverging, DefaultConfig()).Predict(differsConfig(), testNow)

	if predA.Unfavorable || predD.Unfavorable {
		t.Fatalf("unexpected veto: agree=%q diverge=%q", predA.Reason, predD.Reason)
	}
	if predD.Confidence >= predA.Confidence {
		t.Fatalf("diverging windows confidence = %v, want below agreeing %v", predD.Confidence, predA.Confidence)
	}
}

func TestCalibrateMovesWeights(t *testing.T) {
	engine := newTestEngine()
	ens := NewEnsemble(engine, DefaultConfig())
	base := ens.Weights()["frequency"]

	win := &models.TradeRecord{TopSignal: "frequency", Outcome: models.OutcomeWin}
	ens.Calibrate(win)
	if w := ens.Weights()["frequency"]; w <= base {
		t.Fatalf("weight after win = %v, want > %v", w, base)
	}

	loss := &models.TradeRecord{TopSignal: "frequency", Outcome: models.OutcomeLoss}
	for i := 0; i < 3; i++ {
		ens.Calibrate(loss)
	}
	if w := ens.Weights()["frequency"]; w >= base {
		t.Fatalf("weight after losses = %v, want < %v", w, base)
	}

	// Clamp: weights never collapse or explode.
	for i := 0; i < 100; i++ {
		ens.Calibrate(loss)
	}
	if w := ens.Weights()["frequency"]; w < weightClampLow*base-1e-9 {
		t.Fatalf("weight %v fell under clamp %v", w, weightClampLow*base)
	}

	acc := ens.Accuracy()
	if acc["frequency"] <= 0 || acc["frequency"] >= 1 {
		t.Fatalf("accuracy = %v, want strictly between 0 and 1", acc["frequency"])
	}
}

func TestSessionBuckets(t *testing.T) {
	cases := []struct {
		hour int
		want string
	}{
		{0, "asian"}, {7, "asian"}, {8, "european"}, {15, "european"}, {16, "american"}, {23, "american"},
	}
	for _, c := range cases {
		now := time.Date(2025, 3, 14, c.hour, 30, 0, 0, time.UTC)
		if got := sessionName(now); got != c.want {
			t.Fatalf("session at %02d:30 = %q, want %q", c.hour, got, c.want)
		}
	}
}

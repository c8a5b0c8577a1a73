package predict

import (
	"math"
	"sync"
	"time"

	"DigitFlow/internal/domain/models"
	"DigitFlow/internal/stats"
)

// Config bounds the ensemble. BaseWeights anchor calibration: a signal's
// live weight never drifts outside [0.25, 4.0] times its base.
type Config struct {
	MinTicks      int
	HistoryDepth  int     // digits handed to the signals
	VolWindow     int     // prices used for the volatility gate
	MaxVolatility float64 // relative stddev above which predictions are vetoed
	LearningRate  float64
	BaseWeights   map[string]float64
}

func DefaultConfig() Config {
	return Config{
		MinTicks:      50,
		HistoryDepth:  50,
		VolWindow:     20,
		MaxVolatility: 0.002,
		LearningRate:  0.10,
		BaseWeights: map[string]float64{
			"frequency": 1.0,
			"pattern":   0.8,
			"session":   0.4,
		},
	}
}

const (
	weightClampLow  = 0.25
	weightClampHigh = 4.0
)

// Ensemble combines the signal distributions into one next-digit estimate
// and derives a trade target and confidence for the configured direction.
// Weights adapt from trade outcomes.
type Ensemble struct {
	mu      sync.Mutex
	engine  *stats.Engine
	cfg     Config
	signals []Signal
	session sessionBias
	weights map[string]float64
	hits    map[string]int
	settled map[string]int
}

func NewEnsemble(engine *stats.Engine, cfg Config) *Ensemble {
	e := &Ensemble{
		engine:  engine,
		cfg:     cfg,
		signals: []Signal{frequencySignal{}, patternSignal{}},
		weights: make(map[string]float64, len(cfg.BaseWeights)),
		hits:    make(map[string]int),
		settled: make(map[string]int),
	}
	for name, w := range cfg.BaseWeights {
		e.weights[name] = w
	}
	return e
}

// Predict evaluates the ensemble for the current engine state. It never
// returns an error: gated states come back as an unfavorable prediction
// with zero confidence and the gating reason.
func (e *Ensemble) Predict(cfg models.TradingConfig, now time.Time) models.Prediction {
	e.mu.Lock()
	defer e.mu.Unlock()

	pred := models.Prediction{
		Symbol:    cfg.Symbol,
		Direction: cfg.Strategy,
		Digit:     -1,
		Timestamp: now,
	}

	if e.engine.TicksSeen() < e.cfg.MinTicks {
		pred.Unfavorable = true
		pred.Reason = models.ErrInsufficientData.Error()
		return pred
	}
	if vol := e.engine.Volatility(e.cfg.VolWindow); vol > e.cfg.MaxVolatility {
		pred.Unfavorable = true
		pred.Reason = models.ErrVolatilityVeto.Error()
		return pred
	}

	// Operator picked a digit and opted out of the model.
	if !cfg.UsePrediction && cfg.SelectedDigit >= 0 {
		pred.Digit = cfg.SelectedDigit
		pred.Confidence = 100
		pred.TopSignal = "manual"
		pred.Reason = "manual digit selection"
		return pred
	}

	in := Input{
		Digits:  e.engine.RecentDigits(e.cfg.HistoryDepth),
		Windows: e.engine.Snapshots(),
		Now:     now,
	}
	for d := 0; d < 10; d++ {
		in.Gaps[d] = e.engine.Gap(d)
	}

	vectors := make(map[string]Vector, len(e.signals)+1)
	var combined Vector
	var wsum float64
	for _, s := range e.signals {
		v := s.Probabilities(in)
		vectors[s.Name()] = v
		w := e.weights[s.Name()]
		wsum += w
		for d := range combined {
			combined[d] += w * v[d]
		}
	}
	if wsum > 0 {
		for d := range combined {
			combined[d] /= wsum
		}
	}

	// Session bias is multiplicative; calibration scales its pull.
	factors := e.session.Factors(now)
	vectors[e.session.Name()] = factors.normalized()
	pull := e.weights["session"] / e.cfg.BaseWeights["session"]
	for d := range combined {
		combined[d] *= 1 + (factors[d]-1)*pull
	}
	combined = combined.normalized()

	target := cfg.SelectedDigit
	var confidence float64
	if cfg.Strategy == models.DirectionMatches {
		if target < 0 {
			target = combined.argmax()
		}
		confidence = matchesConfidence(combined, target)
	} else {
		if target < 0 {
			target = differsTarget(combined, in.Gaps)
		}
		confidence = differsConfidence(combined[target])
	}

	// Disagreement across windows on the target's frequency discounts the
	// final confidence.
	agreement := windowAgreement(in.Windows, target)
	confidence = clamp(confidence*(0.5+0.5*agreement), 0, 100)

	pred.Digit = target
	pred.Confidence = confidence
	pred.ComponentScores = make(map[string]float64, len(vectors))
	names := []string{"frequency", "pattern", "session"}
	var topWeighted float64
	for _, name := range names {
		support := vectors[name][target]
		if cfg.Strategy == models.DirectionDiffers {
			support = 1 - support
		}
		pred.ComponentScores[name] = support
		if wv := e.weights[name] * support; wv > topWeighted {
			topWeighted = wv
			pred.TopSignal = name
		}
	}
	return pred
}

// matchesConfidence scores how strongly the estimate concentrates on the
// target: edge of the target probability over uniform, plus its margin over
// the runner-up.
func matchesConfidence(p Vector, target int) float64 {
	top := p[target]
	second := 0.0
	for d := range p {
		if d != target && p[d] > second {
			second = p[d]
		}
	}
	strength := clamp((top-0.1)/0.9, 0, 1)
	margin := 0.0
	if top > 0 {
		margin = clamp((top-second)/top, 0, 1)
	}
	return 100 * clamp(0.7*strength+0.3*margin, 0, 1)
}

// differsConfidence scores the edge of a differs contract over the uniform
// baseline: the contract wins unless the target digit appears, so the edge
// is how far below 1/10 the target's probability sits.
func differsConfidence(pTarget float64) float64 {
	return 100 * clamp((0.1-pTarget)/0.1, 0, 1)
}

// differsTarget picks the least likely digit; probability ties go to the
// digit unseen for longest.
func differsTarget(p Vector, gaps [10]int) int {
	best := 0
	for d := 1; d < 10; d++ {
		switch {
		case p[d] < p[best]-1e-12:
			best = d
		case math.Abs(p[d]-p[best]) <= 1e-12 && gapRank(gaps[d]) > gapRank(gaps[best]):
			best = d
		}
	}
	return best
}

func gapRank(gap int) int {
	if gap < 0 {
		return math.MaxInt // never seen
	}
	return gap
}

// windowAgreement measures cross-window consensus on the target digit's
// frequency: identical windows score 1, spread is penalized proportionally
// to the standard deviation.
func windowAgreement(windows []stats.WindowSnapshot, target int) float64 {
	freqs := make([]float64, 0, len(windows))
	for _, w := range windows {
		if w.Total > 0 {
			freqs = append(freqs, w.Frequencies[target])
		}
	}
	if len(freqs) < 2 {
		return 1
	}
	var mean float64
	for _, f := range freqs {
		mean += f
	}
	mean /= float64(len(freqs))
	var variance float64
	for _, f := range freqs {
		variance += (f - mean) * (f - mean)
	}
	sd := math.Sqrt(variance / float64(len(freqs)))
	return clamp(1-4*sd, 0, 1)
}

// Calibrate nudges the weight of the signal that drove a settled trade:
// up on a win, down on a loss, clamped around its base weight.
func (e *Ensemble) Calibrate(rec *models.TradeRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	base, ok := e.cfg.BaseWeights[rec.TopSignal]
	if !ok {
		return
	}
	e.settled[rec.TopSignal]++
	factor := 1 - e.cfg.LearningRate
	if rec.Outcome == models.OutcomeWin {
		e.hits[rec.TopSignal]++
		factor = 1 + e.cfg.LearningRate
	}
	e.weights[rec.TopSignal] = clamp(e.weights[rec.TopSignal]*factor, weightClampLow*base, weightClampHigh*base)
}

// Accuracy reports the per-signal hit rate over settled trades.
func (e *Ensemble) Accuracy() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]float64, len(e.settled))
	for name, n := range e.settled {
		if n > 0 {
			out[name] = float64(e.hits[name]) / float64(n)
		}
	}
	return out
}

// Weights returns a copy of the live signal weights.
func (e *Ensemble) Weights() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]float64, len(e.weights))
	for name, w := range e.weights {
		out[name] = w
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

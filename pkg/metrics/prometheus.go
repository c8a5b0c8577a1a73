package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal  *prometheus.CounterVec
	digitsTotal *prometheus.CounterVec
	tradesTotal *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
	balance     prometheus.Gauge
	pnl         prometheus.Gauge
	confidence  prometheus.Histogram
	state       *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		ticksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digitflow_ticks_total",
				Help: "Total number of ticks ingested",
			},
			[]string{"symbol"},
		),
		digitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digitflow_digits_total",
				Help: "Observed last-digit occurrences",
			},
			[]string{"symbol", "digit"},
		),
		tradesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digitflow_trades_total",
				Help: "Settled trades by outcome",
			},
			[]string{"outcome"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digitflow_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "digitflow_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		balance: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "digitflow_account_balance",
				Help: "Current account balance",
			},
		),
		pnl: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "digitflow_realized_pnl",
				Help: "Realized session profit and loss",
			},
		),
		confidence: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "digitflow_prediction_confidence",
				Help:    "Prediction confidence per armed pass",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
		),
		state: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "digitflow_controller_state",
				Help: "Controller state (1 = active state)",
			},
			[]string{"state"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "digitflow_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTick records an ingested tick and its price.
func (r *Recorder) RecordTick(symbol string, price float64) {
	r.ticksTotal.WithLabelValues(symbol).Inc()
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordDigit records an observed last digit.
func (r *Recorder) RecordDigit(symbol string, digit int) {
	r.digitsTotal.WithLabelValues(symbol, strconv.Itoa(digit)).Inc()
}

// RecordTrade records a settled trade outcome.
func (r *Recorder) RecordTrade(outcome string) {
	r.tradesTotal.WithLabelValues(outcome).Inc()
}

// RecordBalance records the current account balance.
func (r *Recorder) RecordBalance(balance float64) {
	r.balance.Set(balance)
}

// RecordPnL records the realized session pnl.
func (r *Recorder) RecordPnL(pnl float64) {
	r.pnl.Set(pnl)
}

// RecordConfidence records a prediction confidence sample.
func (r *Recorder) RecordConfidence(confidence float64) {
	r.confidence.Observe(confidence)
}

// RecordState marks the active controller state.
func (r *Recorder) RecordState(state string) {
	for _, s := range []string{"idle", "armed", "awaiting_result", "halted"} {
		v := 0.0
		if s == state {
			v = 1
		}
		r.state.WithLabelValues(s).Set(v)
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

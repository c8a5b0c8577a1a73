package middleware

import (
	"context"
	"sync"
	"testing"
	"time"

	"DigitFlow/internal/domain/models"
)

type nopMetrics struct{}

func (nopMetrics) RecordTick(string, float64)    {}
func (nopMetrics) RecordDigit(string, int)       {}
func (nopMetrics) RecordTrade(string)            {}
func (nopMetrics) RecordBalance(float64)         {}
func (nopMetrics) RecordPnL(float64)             {}
func (nopMetrics) RecordConfidence(float64)      {}
func (nopMetrics) RecordState(string)            {}
func (nopMetrics) RecordError(string)            {}
func (nopMetrics) RecordLatency(string, float64) {}

type captureProc struct {
	mu   sync.Mutex
	got  []*models.Tick
	fail bool
}

func (p *captureProc) Process(ctx context.Context, t *models.Tick) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return context.DeadlineExceeded
	}
	p.got = append(p.got, t)
	return nil
}

func (p *captureProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.got)
}

func (p *captureProc) setFail(v bool) {
	p.mu.Lock()
	p.fail = v
	p.mu.Unlock()
}

func tick(symbol string, digit int) *models.Tick {
	return &models.Tick{Symbol: symbol, Price: 100.07, Digit: digit, Timestamp: time.Now()}
}

func TestPipelineForwardsValidTick(t *testing.T) {
	proc := &captureProc{}
	p := NewTickPipeline(proc, nopMetrics{})

	if err := p.Process(context.Background(), tick("R_100", 7)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if proc.count() != 1 {
		t.Fatalf("expected 1 forwarded tick, got %d", proc.count())
	}
}

func TestPipelineRejectsInvalidTick(t *testing.T) {
	proc := &captureProc{}
	p := NewTickPipeline(proc, nopMetrics{})

	cases := []*models.Tick{
		nil,
		{Symbol: "", Price: 100, Digit: 1, Timestamp: time.Now()},
		{Symbol: "R_100", Price: 0, Digit: 1, Timestamp: time.Now()},
		{Symbol: "R_100", Price: 100, Digit: 12, Timestamp: time.Now()},
		{Symbol: "R_100", Price: 100, Digit: 1},
	}
	for i, c := range cases {
		if err := p.Process(context.Background(), c); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	if proc.count() != 0 {
		t.Fatalf("invalid ticks reached downstream: %d", proc.count())
	}
}

func TestPipelineThrottlesBursts(t *testing.T) {
	proc := &captureProc{}
	p := NewTickPipeline(proc, nopMetrics{}, WithMaxRPS(1))

	if err := p.Process(context.Background(), tick("R_100", 1)); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	// immediate second tick exceeds 1 rps and is dropped silently
	if err := p.Process(context.Background(), tick("R_100", 2)); err != nil {
		t.Fatalf("throttled tick should not error: %v", err)
	}
	if proc.count() != 1 {
		t.Fatalf("expected 1 accepted tick, got %d", proc.count())
	}
}

func TestPipelineBuffersAndFlushesOnRecovery(t *testing.T) {
	proc := &captureProc{fail: true}
	p := NewTickPipeline(proc, nopMetrics{}, WithBufferSize(10))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	if err := p.Process(ctx, tick("R_100", 3)); err == nil {
		t.Fatal("expected downstream error")
	}

	proc.setFail(false)
	deadline := time.Now().Add(2 * time.Second)
	for proc.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("buffered tick never flushed after recovery")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

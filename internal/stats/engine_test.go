package stats

import (
	"testing"
	"time"

	"DigitFlow/internal/domain/models"
)

func tick(digit int, price float64) *models.Tick {
	return &models.Tick{Symbol: "R_100", Price: price, Digit: digit, Timestamp: time.Now()}
}

func TestWindowCountsSumToTotal(t *testing.T) {
	e := NewEngine(500, []int{10, 20})
	for i := 0; i < 7; i++ {
		e.Ingest(tick(i%10, 100.0+float64(i)/100))
	}
	snap, ok := e.Snapshot(10)
	if !ok {
		t.Fatalf("window 10 not configured")
	}
	if snap.Total != 7 {
		t.Fatalf("total = %d, want 7", snap.Total)
	}
	sum := 0
	for _, c := range snap.Counts {
		sum += c
	}
	if sum != snap.Total {
		t.Fatalf("counts sum %d != total %d", sum, snap.Total)
	}
}

func TestWindowEviction(t *testing.T) {
	e := NewEngine(500, []int{10})
	// 10 sevens, then 10 threes: the sevens must be fully evicted.
	for i := 0; i < 10; i++ {
		e.Ingest(tick(7, 100.07))
	}
	for i := 0; i < 10; i++ {
		e.Ingest(tick(3, 100.03))
	}
	snap, _ := e.Snapshot(10)
	if snap.Counts[7] != 0 {
		t.Fatalf("digit 7 count = %d after eviction, want 0", snap.Counts[7])
	}
	if snap.Counts[3] != 10 {
		t.Fatalf("digit 3 count = %d, want 10", snap.Counts[3])
	}
	if snap.MostFrequent != 3 {
		t.Fatalf("most frequent = %d, want 3", snap.MostFrequent)
	}
}

func TestHistoryCapBounded(t *testing.T) {
	e := NewEngine(500, []int{100})
	for i := 0; i < 1200; i++ {
		e.Ingest(tick(i%10, 100.0))
	}
	if got := len(e.RecentDigits(10000)); got != 500 {
		t.Fatalf("history length = %d, want capacity 500", got)
	}
	if e.TicksSeen() != 1200 {
		t.Fatalf("ticks seen = %d, want 1200", e.TicksSeen())
	}
}

func TestGapAndStreak(t *testing.T) {
	e := NewEngine(500, []int{10})
	if e.Gap(5) != -1 {
		t.Fatalf("gap of unseen digit should be -1")
	}
	for _, d := range []int{5, 1, 2, 2, 2} {
		e.Ingest(tick(d, 100.0))
	}
	if got := e.Gap(5); got != 4 {
		t.Fatalf("gap(5) = %d, want 4", got)
	}
	if got := e.Gap(2); got != 0 {
		t.Fatalf("gap(2) = %d, want 0", got)
	}
	if got := e.RepeatStreak(); got != 3 {
		t.Fatalf("repeat streak = %d, want 3", got)
	}
	if got := e.LastDigit(); got != 2 {
		t.Fatalf("last digit = %d, want 2", got)
	}
}

func TestVolatility(t *testing.T) {
	e := NewEngine(500, []int{10})
	for i := 0; i < 30; i++ {
		e.Ingest(tick(0, 100.0))
	}
	if v := e.Volatility(20); v != 0 {
		t.Fatalf("constant prices volatility = %v, want 0", v)
	}

	e2 := NewEngine(500, []int{10})
	prices := []float64{100, 103, 99, 105, 98, 106, 97, 104, 99, 107}
	for _, p := range prices {
		e2.Ingest(tick(0, p))
	}
	if v := e2.Volatility(10); v <= 0.002 {
		t.Fatalf("choppy prices volatility = %v, want > 0.002", v)
	}
}

func TestRecentDigitsOrder(t *testing.T) {
	e := NewEngine(3, []int{3})
	for _, d := range []int{1, 2, 3, 4} {
		e.Ingest(tick(d, 100.0))
	}
	got := e.RecentDigits(3)
	want := []int{2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("recent digits = %v, want %v", got, want)
		}
	}
}

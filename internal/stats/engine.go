package stats

import (
	"math"
	"sync"

	"DigitFlow/internal/domain/models"
)

// Engine maintains bounded tick history and rolling digit-frequency windows.
// Ingest is called from the collector goroutine; snapshot accessors may be
// called concurrently from the HTTP layer. A single RWMutex keeps every
// snapshot consistent with a whole number of ingested ticks.
type Engine struct {
	mu sync.RWMutex

	capacity int
	digits   []int
	prices   []float64
	head     int
	filled   int

	ticksSeen int
	lastSeen  [10]int // ticksSeen value at last occurrence, 0 = never

	sizes   []int
	windows []*FrequencyWindow
}

func NewEngine(capacity int, windowSizes []int) *Engine {
	e := &Engine{
		capacity: capacity,
		digits:   make([]int, capacity),
		prices:   make([]float64, capacity),
		sizes:    append([]int(nil), windowSizes...),
	}
	for _, size := range e.sizes {
		e.windows = append(e.windows, newFrequencyWindow(size))
	}
	return e
}

// Ingest appends one tick to the history and every window.
func (e *Engine) Ingest(t *models.Tick) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.digits[e.head] = t.Digit
	e.prices[e.head] = t.Price
	e.head = (e.head + 1) % e.capacity
	if e.filled < e.capacity {
		e.filled++
	}
	e.ticksSeen++
	e.lastSeen[t.Digit] = e.ticksSeen

	for _, w := range e.windows {
		w.push(t.Digit)
	}
}

func (e *Engine) TicksSeen() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ticksSeen
}

// LastDigit returns the newest digit, or -1 before the first tick.
func (e *Engine) LastDigit() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.filled == 0 {
		return -1
	}
	return e.digits[(e.head-1+e.capacity)%e.capacity]
}

// Snapshot returns the distribution for one configured window size.
func (e *Engine) Snapshot(size int) (WindowSnapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for i, s := range e.sizes {
		if s == size {
			return e.windows[i].snapshot(), true
		}
	}
	return WindowSnapshot{}, false
}

// Snapshots returns the distributions of all windows, ordered as configured,
// taken atomically with respect to Ingest.
func (e *Engine) Snapshots() []WindowSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]WindowSnapshot, len(e.windows))
	for i, w := range e.windows {
		out[i] = w.snapshot()
	}
	return out
}

// RecentDigits returns up to n most recent digits, oldest first.
func (e *Engine) RecentDigits(n int) []int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if n > e.filled {
		n = e.filled
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = e.digits[(e.head-1-i+e.capacity)%e.capacity]
	}
	return out
}

// Gap returns how many ticks ago the digit last appeared (0 = it is the
// newest digit), or -1 if it has never been seen.
func (e *Engine) Gap(d int) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastSeen[d] == 0 {
		return -1
	}
	return e.ticksSeen - e.lastSeen[d]
}

// RepeatStreak is the length of the run of identical digits ending at the
// newest tick.
func (e *Engine) RepeatStreak() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.filled == 0 {
		return 0
	}
	last := e.digits[(e.head-1+e.capacity)%e.capacity]
	streak := 0
	for i := 0; i < e.filled; i++ {
		if e.digits[(e.head-1-i+e.capacity)%e.capacity] != last {
			break
		}
		streak++
	}
	return streak
}

// Volatility is the population standard deviation of relative price deltas
// over the last n prices. Returns 0 until at least three prices are held.
func (e *Engine) Volatility(n int) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if n > e.filled {
		n = e.filled
	}
	if n < 3 {
		return 0
	}
	deltas := make([]float64, 0, n-1)
	prev := e.prices[(e.head-n+e.capacity)%e.capacity]
	for i := n - 2; i >= 0; i-- {
		p := e.prices[(e.head-1-i+e.capacity)%e.capacity]
		if prev != 0 {
			deltas = append(deltas, (p-prev)/prev)
		}
		prev = p
	}
	if len(deltas) == 0 {
		return 0
	}
	var mean float64
	for _, d := range deltas {
		mean += d
	}
	mean /= float64(len(deltas))
	var variance float64
	for _, d := range deltas {
		variance += (d - mean) * (d - mean)
	}
	return math.Sqrt(variance / float64(len(deltas)))
}

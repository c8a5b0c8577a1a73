package stats

// FrequencyWindow counts digit occurrences over the most recent N digits.
// Pushing evicts the oldest digit once the window is full, so updates are
// O(1) regardless of window size.
type FrequencyWindow struct {
	size   int
	ring   []int
	head   int
	filled int
	counts [10]int
}

func newFrequencyWindow(size int) *FrequencyWindow {
	return &FrequencyWindow{size: size, ring: make([]int, size)}
}

func (w *FrequencyWindow) push(d int) {
	if w.filled == w.size {
		w.counts[w.ring[w.head]]--
	} else {
		w.filled++
	}
	w.ring[w.head] = d
	w.counts[d]++
	w.head = (w.head + 1) % w.size
}

// WindowSnapshot is an immutable copy of one window's digit distribution.
// All ten digits are always present; digits not yet observed have zero
// counts. Frequencies are zero for an empty window.
type WindowSnapshot struct {
	Size          int
	Total         int
	Counts        [10]int
	Frequencies   [10]float64
	MostFrequent  int
	LeastFrequent int
}

func (w *FrequencyWindow) snapshot() WindowSnapshot {
	s := WindowSnapshot{Size: w.size, Total: w.filled, Counts: w.counts}
	most, least := 0, 0
	for d := 0; d < 10; d++ {
		if w.filled > 0 {
			s.Frequencies[d] = float64(w.counts[d]) / float64(w.filled)
		}
		if w.counts[d] > w.counts[most] {
			most = d
		}
		if w.counts[d] < w.counts[least] {
			least = d
		}
	}
	s.MostFrequent = most
	s.LeastFrequent = least
	return s
}

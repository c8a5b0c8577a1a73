package predict

// patternSignal votes for digits that historically followed the current
// tail of the sequence. Grams of length 2..4 are matched against the recent
// history and the digit after each earlier occurrence collects a vote
// weighted by gram length, so longer matches dominate. A repeat run ending
// at the newest tick adds continuation votes for the running digit.
type patternSignal struct {
	lookback int // how much history to scan, 0 = default
}

const defaultPatternLookback = 30

func (patternSignal) Name() string { return "pattern" }

func (s patternSignal) Probabilities(in Input) Vector {
	lookback := s.lookback
	if lookback <= 0 {
		lookback = defaultPatternLookback
	}
	digits := in.Digits
	if len(digits) > lookback {
		digits = digits[len(digits)-lookback:]
	}

	var votes Vector
	n := len(digits)
	for gram := 2; gram <= 4 && gram < n; gram++ {
		tail := digits[n-gram:]
		for i := 0; i+gram < n-1; i++ {
			if matches(digits[i:i+gram], tail) {
				votes[digits[i+gram]] += float64(gram)
			}
		}
	}

	// Continuation pressure from a live repeat run.
	streak := tailStreak(digits)
	if streak >= 2 {
		votes[digits[n-1]] += float64(streak)
	}

	for d := range votes {
		votes[d] += alpha
	}
	return votes.normalized()
}

func matches(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func tailStreak(digits []int) int {
	n := len(digits)
	if n == 0 {
		return 0
	}
	streak := 1
	for i := n - 2; i >= 0 && digits[i] == digits[n-1]; i-- {
		streak++
	}
	return streak
}

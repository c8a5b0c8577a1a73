package predict

import (
	"time"

	"DigitFlow/internal/stats"
)

// Vector holds one score per decimal digit.
type Vector [10]float64

func uniform() Vector {
	var v Vector
	for d := range v {
		v[d] = 0.1
	}
	return v
}

func (v Vector) sum() float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

// normalized scales the vector to sum 1, falling back to uniform when the
// mass is zero.
func (v Vector) normalized() Vector {
	s := v.sum()
	if s <= 0 {
		return uniform()
	}
	for d := range v {
		v[d] /= s
	}
	return v
}

func (v Vector) argmax() int {
	best := 0
	for d := 1; d < 10; d++ {
		if v[d] > v[best] {
			best = d
		}
	}
	return best
}

// Input is the shared view each signal scores from.
type Input struct {
	Digits  []int // bounded recent history, oldest first
	Windows []stats.WindowSnapshot
	Gaps    [10]int // ticks since each digit last appeared, -1 = never
	Now     time.Time
}

// Signal estimates the probability distribution of the next digit.
type Signal interface {
	Name() string
	Probabilities(in Input) Vector
}

package predict

// alpha is the add-alpha smoothing constant applied to observed counts so
// unseen digits keep a small nonzero probability.
const alpha = 0.5

// frequencySignal estimates next-digit probabilities from the observed
// digit distribution, averaged across all configured windows. Low observed
// frequency means low probability of appearing, which is exactly what the
// differs side inverts: rarely seen digits make the best differs targets.
type frequencySignal struct{}

func (frequencySignal) Name() string { return "frequency" }

func (frequencySignal) Probabilities(in Input) Vector {
	var acc Vector
	windows := 0
	for _, w := range in.Windows {
		if w.Total == 0 {
			continue
		}
		v := windowProbabilities(w.Counts, w.Total)
		for d := range acc {
			acc[d] += v[d]
		}
		windows++
	}
	if windows == 0 {
		return uniform()
	}
	for d := range acc {
		acc[d] /= float64(windows)
	}
	return acc
}

func windowProbabilities(counts [10]int, total int) Vector {
	var v Vector
	den := float64(total) + 10*alpha
	for d := range v {
		v[d] = (float64(counts[d]) + alpha) / den
	}
	return v
}

package predict

import "time"

// sessionBias applies a mild prior toward digits that historically cluster
// in each market session (UTC hour buckets). It is applied as a
// multiplicative adjustment on the combined distribution rather than an
// additive vote.
type sessionBias struct{}

func (sessionBias) Name() string { return "session" }

// sessionBoost is the multiplicative factor for digits in the active
// session's bias set.
const sessionBoost = 1.15

var sessionDigits = map[string][]int{
	"asian":    {0, 1, 8, 9}, // 00:00-08:00 UTC
	"european": {2, 3, 4, 5}, // 08:00-16:00 UTC
	"american": {6, 7, 8, 9}, // 16:00-24:00 UTC
}

func sessionName(now time.Time) string {
	switch h := now.UTC().Hour(); {
	case h < 8:
		return "asian"
	case h < 16:
		return "european"
	default:
		return "american"
	}
}

// Factors returns the per-digit multiplicative adjustment for the session
// active at now.
func (sessionBias) Factors(now time.Time) Vector {
	var f Vector
	for d := range f {
		f[d] = 1.0
	}
	for _, d := range sessionDigits[sessionName(now)] {
		f[d] = sessionBoost
	}
	return f
}

// Probabilities renders the bias as a distribution for component scoring.
func (s sessionBias) Probabilities(in Input) Vector {
	return s.Factors(in.Now).normalized()
}

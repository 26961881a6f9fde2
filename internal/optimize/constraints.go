package optimize

import (
	"math"
)

// Epsilon is the tolerance used for weight sums and redistribution.
const Epsilon = 1e-6

// maxProjectionPasses bounds the redistribute-then-clamp loop in Project.
const maxProjectionPasses = 5

// Constraints bounds every individual weight. A nil *Constraints means long-only
// and unconstrained (each weight in [0, 1]).
type Constraints struct {
	MinWeight float64 `json:"minWeight" yaml:"min_weight"`
	MaxWeight float64 `json:"maxWeight" yaml:"max_weight"`
}

// DefaultConstraints are the bounds applied to every strategy summary.
func DefaultConstraints() *Constraints {
	return &Constraints{MinWeight: 0.05, MaxWeight: 0.6}
}

// Feasible reports whether n weights can satisfy both the bounds and sum to one.
func (c *Constraints) Feasible(n int) bool {
	if c == nil {
		return true
	}
	if c.MinWeight > c.MaxWeight {
		return false
	}
	return c.MinWeight*float64(n) <= 1+Epsilon && c.MaxWeight*float64(n) >= 1-Epsilon
}

func (c *Constraints) bounds() (lo, hi float64) {
	if c == nil {
		return 0, 1
	}
	return c.MinWeight, c.MaxWeight
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

// Normalize zeroes non-positive and non-finite entries and rescales the rest to sum
// to one. When nothing positive remains, equal weights are returned.
func Normalize(weights []float64) []float64 {
	out := make([]float64, len(weights))
	for i, w := range weights {
		if w > 0 && !math.IsInf(w, 0) && !math.IsNaN(w) {
			out[i] = w
		}
	}

	total := sum(out)
	if total <= Epsilon {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out
	}

	for i := range out {
		out[i] /= total
	}
	return out
}

// Project maps raw weights onto the constraint set. It normalizes, clamps, and then
// redistributes surplus or deficit proportionally to each weight's remaining slack for
// a bounded number of passes. The result is best effort: with bounds that cannot be
// met together (MinWeight·n > 1 or MaxWeight·n < 1) either the sum or a bound gives.
func Project(weights []float64, c *Constraints) []float64 {
	if c == nil {
		return Normalize(weights)
	}

	lo, hi := c.bounds()
	result := Normalize(weights)
	for i := range result {
		result[i] = clamp(result[i], lo, hi)
	}

	for pass := 0; pass < maxProjectionPasses; pass++ {
		adjusted := false
		for i, w := range result {
			switch {
			case w < lo-Epsilon:
				result[i] = lo
				adjusted = true
			case w > hi+Epsilon:
				result[i] = hi
				adjusted = true
			}
		}

		total := sum(result)
		if math.Abs(total-1) < Epsilon {
			return result
		}

		if total > 1+Epsilon {
			if !redistribute(result, total-1, func(w float64) float64 { return math.Max(0, w-lo) }, -1) {
				break
			}
			adjusted = true
		} else if total < 1-Epsilon {
			if !redistribute(result, 1-total, func(w float64) float64 { return math.Max(0, hi-w) }, 1) {
				break
			}
			adjusted = true
		}

		if !adjusted {
			break
		}
	}

	result = Normalize(result)
	for i := range result {
		result[i] = clamp(result[i], lo, hi)
	}
	return result
}

// redistribute moves amount across weights in proportion to slack(w), in the given
// direction. It reports false when no weight has slack left.
func redistribute(weights []float64, amount float64, slack func(float64) float64, direction float64) bool {
	room := make([]float64, len(weights))
	for i, w := range weights {
		room[i] = slack(w)
	}

	total := sum(room)
	if total <= Epsilon {
		return false
	}

	for i := range weights {
		if room[i] <= Epsilon {
			continue
		}
		weights[i] += direction * amount * room[i] / total
	}
	return true
}

// Package optimize turns return matrices into constrained allocation weights and
// approximates the efficient frontier from the strategy portfolios.
package optimize

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sawpanic/folio/internal/stats"
)

// ErrUnknownStrategy is returned when a strategy token is not recognised.
var ErrUnknownStrategy = errors.New("unknown optimization strategy")

// Strategy names one of the allocation heuristics.
type Strategy string

const (
	MaxSharpe   Strategy = "max_sharpe"
	MinVariance Strategy = "min_variance"
	MaxReturn   Strategy = "max_return"
	RiskParity  Strategy = "risk_parity"
)

// Strategies returns every strategy in reporting order.
func Strategies() []Strategy {
	return []Strategy{MaxSharpe, MinVariance, MaxReturn, RiskParity}
}

// ParseStrategy validates a strategy token.
func ParseStrategy(s string) (Strategy, error) {
	candidate := Strategy(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Strategies() {
		if candidate == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Description is a one-line explanation of the strategy for summaries.
func (s Strategy) Description() string {
	switch s {
	case MaxSharpe:
		return "Balances assets toward the highest return per unit of risk."
	case MinVariance:
		return "Prioritises low volatility with a defensive tilt."
	case MaxReturn:
		return "Allocates aggressively to the assets with the highest expected return."
	case RiskParity:
		return "Equalises each asset's risk contribution to avoid concentration."
	default:
		return ""
	}
}

// Optimizer produces a weight vector for a return matrix.
type Optimizer func(matrix [][]float64, c *Constraints) []float64

// Optimize dispatches to the named strategy.
func Optimize(s Strategy, matrix [][]float64, c *Constraints) ([]float64, error) {
	opt, err := For(s)
	if err != nil {
		return nil, err
	}
	return opt(matrix, c), nil
}

// For returns the optimizer implementing s.
func For(s Strategy) (Optimizer, error) {
	switch s {
	case MaxSharpe:
		return OptimizeMaxSharpe, nil
	case MinVariance:
		return OptimizeMinVariance, nil
	case MaxReturn:
		return OptimizeMaxReturn, nil
	case RiskParity:
		return OptimizeRiskParity, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, string(s))
	}
}

// OptimizeMaxSharpe weights each asset by its mean/stddev ratio, ignoring negative scores.
func OptimizeMaxSharpe(matrix [][]float64, c *Constraints) []float64 {
	scores := seeds(matrix, func(series []float64) float64 {
		mean := stats.Mean(series)
		vol := stats.StdDev(series)
		if vol == 0 {
			return mean
		}
		return mean / vol
	})
	for i := range scores {
		scores[i] = math.Max(scores[i], 0)
	}
	return Project(Normalize(scores), c)
}

// OptimizeMinVariance weights each asset by inverse variance.
func OptimizeMinVariance(matrix [][]float64, c *Constraints) []float64 {
	return Project(seeds(matrix, func(series []float64) float64 {
		if v := stats.SampleVariance(series); v > 0 {
			return 1 / v
		}
		return 1
	}), c)
}

// OptimizeMaxReturn weights each asset by its non-negative mean return.
func OptimizeMaxReturn(matrix [][]float64, c *Constraints) []float64 {
	return Project(seeds(matrix, func(series []float64) float64 {
		mean := stats.Mean(series)
		if math.IsNaN(mean) || math.IsInf(mean, 0) {
			return 0
		}
		return math.Max(mean, 0)
	}), c)
}

// OptimizeRiskParity weights each asset by inverse volatility.
func OptimizeRiskParity(matrix [][]float64, c *Constraints) []float64 {
	return Project(seeds(matrix, func(series []float64) float64 {
		if vol := stats.StdDev(series); vol > 0 {
			return 1 / vol
		}
		return 1
	}), c)
}

func seeds(matrix [][]float64, score func([]float64) float64) []float64 {
	out := make([]float64, len(matrix))
	for i, series := range matrix {
		out[i] = score(series)
	}
	return out
}

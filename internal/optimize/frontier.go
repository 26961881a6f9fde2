package optimize

import (
	"math"
	"sort"

	"github.com/sawpanic/folio/internal/stats"
)

// DefaultFrontierPoints is the number of frontier points produced when none is requested.
const DefaultFrontierPoints = 50

const frontierPrecision = 6

// FrontierPoint is one portfolio on the approximated efficient frontier.
type FrontierPoint struct {
	Weights []float64 `json:"weights"`
	Return  float64   `json:"return"`
	Risk    float64   `json:"risk"`
}

type anchor struct {
	weights []float64
	ret     float64
	risk    float64
}

// EfficientFrontier approximates the frontier by blending the four strategy portfolios.
// Anchors are ordered by risk and points are spaced evenly along the anchor path, each
// blend re-projected onto the constraints. The output is sorted by risk and both risk and
// return are made strictly increasing so the curve is always chartable.
func EfficientFrontier(matrix [][]float64, points int, c *Constraints) []FrontierPoint {
	if len(matrix) == 0 {
		return []FrontierPoint{}
	}
	if points < 2 {
		points = 2
	}

	means := stats.MeanVector(matrix)
	cov := stats.CovarianceMatrix(matrix)

	anchors := make([]anchor, 0, 4)
	for _, opt := range []Optimizer{OptimizeMinVariance, OptimizeRiskParity, OptimizeMaxReturn, OptimizeMaxSharpe} {
		w := opt(matrix, c)
		ret, risk := stats.PortfolioStats(w, means, cov)
		anchors = append(anchors, anchor{weights: w, ret: ret, risk: risk})
	}
	sort.SliceStable(anchors, func(i, j int) bool { return anchors[i].risk < anchors[j].risk })

	last := len(anchors) - 1
	result := make([]FrontierPoint, 0, points)
	for i := 0; i < points; i++ {
		position := float64(i) / float64(points-1) * float64(last)
		startIdx := int(math.Floor(position))
		endIdx := min(last, startIdx+1)
		t := position - float64(startIdx)

		start, end := anchors[startIdx].weights, anchors[endIdx].weights
		blended := make([]float64, len(start))
		for k := range blended {
			blended[k] = start[k]*(1-t) + end[k]*t
		}
		blended = Project(blended, c)

		ret, risk := stats.PortfolioStats(blended, means, cov)
		result = append(result, FrontierPoint{
			Weights: blended,
			Return:  stats.Round(ret, frontierPrecision),
			Risk:    stats.Round(risk, frontierPrecision),
		})
	}

	sort.SliceStable(result, func(i, j int) bool { return result[i].Risk < result[j].Risk })

	for i := 1; i < len(result); i++ {
		result[i].Return = bumpAbove(result[i].Return, result[i-1].Return)
		result[i].Risk = bumpAbove(result[i].Risk, result[i-1].Risk)
	}
	return result
}

// bumpAbove returns v unchanged when it exceeds prev, otherwise the smallest step above prev.
func bumpAbove(v, prev float64) float64 {
	if v > prev {
		return v
	}
	step := math.Max(math.Abs(prev)*1e-6, 1e-6)
	bumped := stats.Round(prev+step, frontierPrecision)
	if bumped <= prev {
		bumped = prev + step
	}
	return bumped
}

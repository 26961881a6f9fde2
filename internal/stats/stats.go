// Package stats provides the descriptive statistics used by the optimizer:
// means, sample variance, covariance matrices and portfolio quadratic forms.
package stats

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean of series, or 0 when it is empty.
func Mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return stat.Mean(series, nil)
}

// SampleVariance returns the unbiased (n-1) variance, or 0 when fewer than two values exist.
func SampleVariance(series []float64) float64 {
	if len(series) <= 1 || flat(series) {
		return 0
	}
	v := stat.Variance(series, nil)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func flat(series []float64) bool {
	for _, v := range series[1:] {
		if v != series[0] {
			return false
		}
	}
	return true
}

// StdDev returns the sample standard deviation, never NaN.
func StdDev(series []float64) float64 {
	sd := math.Sqrt(math.Max(SampleVariance(series), 0))
	if math.IsNaN(sd) || math.IsInf(sd, 0) {
		return 0
	}
	return sd
}

// MeanVector returns the mean of every series in the matrix.
func MeanVector(matrix [][]float64) []float64 {
	means := make([]float64, len(matrix))
	for i, series := range matrix {
		means[i] = Mean(series)
	}
	return means
}

// CovarianceMatrix builds the symmetric sample covariance matrix of the return matrix.
// Each pair is computed over the first min(len_i, len_j) observations; pairs with an
// overlap of one observation or less are zero.
func CovarianceMatrix(matrix [][]float64) *mat.SymDense {
	n := len(matrix)
	if n == 0 {
		return nil
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			overlap := min(len(matrix[i]), len(matrix[j]))
			if overlap <= 1 {
				continue
			}
			c := stat.Covariance(matrix[i][:overlap], matrix[j][:overlap], nil)
			if math.IsNaN(c) || math.IsInf(c, 0) {
				c = 0
			}
			cov.SetSym(i, j, c)
		}
	}
	return cov
}

// QuadraticForm evaluates Σ_i Σ_j w_i w_j M_ij. Cells outside the matrix count as zero.
func QuadraticForm(weights []float64, m *mat.SymDense) float64 {
	if m == nil || len(weights) == 0 {
		return 0
	}

	n := m.SymmetricDim()
	if n == len(weights) {
		w := mat.NewVecDense(n, append([]float64(nil), weights...))
		return mat.Inner(w, m, w)
	}

	total := 0.0
	for i := 0; i < len(weights) && i < n; i++ {
		for j := 0; j < len(weights) && j < n; j++ {
			total += weights[i] * weights[j] * m.At(i, j)
		}
	}
	return total
}

// PortfolioStats returns the expected return w·μ and the risk sqrt(max(0, wᵀΣw)).
func PortfolioStats(weights, means []float64, cov *mat.SymDense) (ret, risk float64) {
	for i, w := range weights {
		if i < len(means) {
			ret += w * means[i]
		}
	}
	risk = math.Sqrt(math.Max(0, QuadraticForm(weights, cov)))
	return ret, risk
}

// Rows copies a symmetric matrix into a row-major slice for serialization.
func Rows(m *mat.SymDense) [][]float64 {
	if m == nil {
		return [][]float64{}
	}
	n := m.SymmetricDim()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		for j := range rows[i] {
			rows[i][j] = m.At(i, j)
		}
	}
	return rows
}

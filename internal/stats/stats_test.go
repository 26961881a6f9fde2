package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMeanAndVariance(t *testing.T) {
	tests := []struct {
		name     string
		series   []float64
		mean     float64
		variance float64
	}{
		{"empty", nil, 0, 0},
		{"single", []float64{0.3}, 0.3, 0},
		{"pair", []float64{1, 3}, 2, 2},
		{"four", []float64{0.01, -0.005, 0.007, 0.002}, 0.0035, 0.000043},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.mean, Mean(tt.series), 1e-12)
			assert.InDelta(t, tt.variance, SampleVariance(tt.series), 1e-12)
		})
	}
}

func TestStdDevNeverNaN(t *testing.T) {
	assert.Equal(t, 0.0, StdDev(nil))
	assert.Equal(t, 0.0, StdDev([]float64{5}))
	assert.InDelta(t, math.Sqrt2, StdDev([]float64{1, 3}), 1e-12)
}

func TestCovarianceMatrix(t *testing.T) {
	matrix := [][]float64{
		{0.01, 0.02, 0.03, 0.04},
		{0.04, 0.03, 0.02, 0.01},
		{0.05},
	}

	cov := CovarianceMatrix(matrix)
	require.NotNil(t, cov)
	require.Equal(t, 3, cov.SymmetricDim())

	assert.InDelta(t, SampleVariance(matrix[0]), cov.At(0, 0), 1e-15)
	assert.InDelta(t, -SampleVariance(matrix[0]), cov.At(0, 1), 1e-15)
	assert.Equal(t, cov.At(0, 1), cov.At(1, 0))

	// overlap of one observation
	assert.Equal(t, 0.0, cov.At(0, 2))
	assert.Equal(t, 0.0, cov.At(2, 2))
}

func TestCovarianceMatrixTruncatesToCommonOverlap(t *testing.T) {
	matrix := [][]float64{
		{1, 2, 3, 100},
		{2, 4, 6},
	}

	cov := CovarianceMatrix(matrix)
	// first three points of series 0 against series 1
	assert.InDelta(t, 2.0, cov.At(0, 1), 1e-12)
	assert.InDelta(t, SampleVariance(matrix[0]), cov.At(0, 0), 1e-12)
}

func TestCovarianceMatrixEmpty(t *testing.T) {
	assert.Nil(t, CovarianceMatrix(nil))
	assert.Equal(t, 0.0, QuadraticForm([]float64{1}, nil))
	assert.Empty(t, Rows(nil))
}

func TestQuadraticForm(t *testing.T) {
	m := mat.NewSymDense(2, []float64{
		0.04, 0.01,
		0.01, 0.09,
	})

	got := QuadraticForm([]float64{0.5, 0.5}, m)
	assert.InDelta(t, 0.25*0.04+0.25*0.09+2*0.25*0.01, got, 1e-15)

	// extra weights beyond the matrix read zero cells
	assert.InDelta(t, 0.04, QuadraticForm([]float64{1, 0, 7}, m), 1e-15)
}

func TestPortfolioStats(t *testing.T) {
	m := mat.NewSymDense(2, []float64{
		0.04, 0,
		0, 0.09,
	})

	ret, risk := PortfolioStats([]float64{0.5, 0.5}, []float64{0.1, 0.2}, m)
	assert.InDelta(t, 0.15, ret, 1e-15)
	assert.InDelta(t, math.Sqrt(0.25*0.04+0.25*0.09), risk, 1e-15)
}

func TestRows(t *testing.T) {
	cov := CovarianceMatrix([][]float64{{1, 2, 3}, {3, 2, 1}})
	rows := Rows(cov)
	require.Len(t, rows, 2)
	assert.Equal(t, rows[0][1], rows[1][0])
	assert.InDelta(t, 1.0, rows[0][0], 1e-12)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.0476, Round(0.047619047619, 4))
	assert.Equal(t, -0.0182, Round(-0.018181818, 4))
	assert.Equal(t, 0.0, Round(math.NaN(), 4))
	assert.Equal(t, 0.0, Round(math.Inf(1), 6))
	assert.Equal(t, 1.000001, Round(1.0000005, 6))
}

// Package analytics computes single-series performance metrics: returns, volatility,
// Sharpe ratio, drawdown, beta, correlation and annualized expected return.
package analytics

import (
	"math"
	"time"

	"github.com/sawpanic/folio/internal/stats"
)

const (
	// DefaultPrecision is the number of decimals metrics are rounded to.
	DefaultPrecision = 4
	// TradingDaysPerYear annualizes daily series.
	TradingDaysPerYear = 252
	// DefaultRiskFreeRate is the annual risk-free rate used for Sharpe ratios.
	DefaultRiskFreeRate = 0.02
)

// PricePoint is one close in a price history.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func filterFinite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if finite(v) {
			out = append(out, v)
		}
	}
	return out
}

type returnConfig struct {
	useLog    bool
	precision int32
}

// ReturnOption customises Returns.
type ReturnOption func(*returnConfig)

// WithLogReturns computes ln(current/previous) instead of simple returns.
func WithLogReturns() ReturnOption {
	return func(c *returnConfig) { c.useLog = true }
}

// WithPrecision overrides the rounding precision of Returns.
func WithPrecision(places int32) ReturnOption {
	return func(c *returnConfig) { c.precision = places }
}

// Returns converts a price series into period returns. Pairs with a non-finite price or
// a zero previous price are skipped.
func Returns(prices []float64, opts ...ReturnOption) []float64 {
	cfg := returnConfig{precision: DefaultPrecision}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(prices) <= 1 {
		return []float64{}
	}

	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if !finite(prev) || !finite(cur) || prev == 0 {
			continue
		}

		var r float64
		if cfg.useLog {
			r = math.Log(cur / prev)
		} else {
			r = (cur - prev) / prev
		}
		if !finite(r) {
			continue
		}
		out = append(out, stats.Round(r, cfg.precision))
	}
	return out
}

type volConfig struct {
	annualize bool
	sample    bool
	precision int32
	round     bool
}

// VolOption customises Volatility and SharpeRatio.
type VolOption func(*volConfig)

// WithoutAnnualization reports per-period figures.
func WithoutAnnualization() VolOption {
	return func(c *volConfig) { c.annualize = false }
}

// WithPopulation uses the population (n) denominator instead of the sample (n-1) one.
func WithPopulation() VolOption {
	return func(c *volConfig) { c.sample = false }
}

// WithVolPrecision rounds the result to the given decimals.
func WithVolPrecision(places int32) VolOption {
	return func(c *volConfig) {
		c.precision = places
		c.round = true
	}
}

func newVolConfig(opts []VolOption) volConfig {
	cfg := volConfig{annualize: true, sample: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Volatility returns the standard deviation of returns, annualized by sqrt(periodsPerYear)
// unless disabled. It is 0 with fewer than two finite returns.
func Volatility(returns []float64, periodsPerYear int, opts ...VolOption) float64 {
	cfg := newVolConfig(opts)
	vol := volatility(filterFinite(returns), periodsPerYear, cfg)
	if cfg.round {
		return stats.Round(vol, cfg.precision)
	}
	return vol
}

func volatility(valid []float64, periodsPerYear int, cfg volConfig) float64 {
	if len(valid) <= 1 || constant(valid) {
		return 0
	}

	mean := stats.Mean(valid)
	denominator := float64(len(valid))
	if cfg.sample {
		denominator--
	}

	ss := 0.0
	for _, v := range valid {
		ss += (v - mean) * (v - mean)
	}
	variance := ss / denominator
	if !finite(variance) || variance <= 0 {
		return 0
	}

	vol := math.Sqrt(variance)
	if cfg.annualize {
		vol *= math.Sqrt(float64(max(periodsPerYear, 1)))
	}
	return vol
}

// constant reports whether every value equals the first.
func constant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

// SharpeRatio returns (annualized mean − risk-free) / annualized volatility, rounded to
// four decimals (or the WithVolPrecision value). It is 0 when volatility is 0.
func SharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear int, opts ...VolOption) float64 {
	cfg := newVolConfig(opts)
	if !cfg.round {
		cfg.precision = DefaultPrecision
	}

	valid := filterFinite(returns)
	if len(valid) == 0 {
		return 0
	}

	vol := volatility(valid, periodsPerYear, cfg)
	if vol == 0 {
		return 0
	}

	mean := stats.Mean(valid)
	annualReturn, riskFree := mean, riskFreeRate/float64(periodsPerYear)
	if cfg.annualize {
		annualReturn, riskFree = mean*float64(periodsPerYear), riskFreeRate
	}

	sharpe := (annualReturn - riskFree) / vol
	if !finite(sharpe) {
		return 0
	}
	return stats.Round(sharpe, cfg.precision)
}

// MaxDrawdown returns the deepest peak-to-trough decline of a value series as a
// non-positive fraction.
func MaxDrawdown(values []float64) float64 {
	series := filterFinite(values)
	if len(series) == 0 {
		return 0
	}

	peak := series[0]
	worst := 0.0
	for _, v := range series {
		if v > peak {
			peak = v
		}
		if peak == 0 {
			continue
		}
		if dd := (v - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return stats.Round(worst, DefaultPrecision)
}

// CumulativeValues compounds a return series into a value curve starting at start.
// The starting value is the first element.
func CumulativeValues(returns []float64, start float64) []float64 {
	values := make([]float64, 0, len(returns)+1)
	values = append(values, start)
	current := start
	for _, r := range returns {
		if !finite(r) {
			continue
		}
		current *= 1 + r
		values = append(values, current)
	}
	return values
}

// pairs zips the common prefix of a and b, dropping positions where either is non-finite.
func pairs(a, b []float64) (xs, ys []float64) {
	n := min(len(a), len(b))
	xs, ys = make([]float64, 0, n), make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if finite(a[i]) && finite(b[i]) {
			xs = append(xs, a[i])
			ys = append(ys, b[i])
		}
	}
	return xs, ys
}

func coMoments(xs, ys []float64) (cov, varX, varY float64) {
	mx, my := stats.Mean(xs), stats.Mean(ys)
	n := float64(len(xs) - 1)
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	return cov / n, varX / n, varY / n
}

// Beta returns cov(asset, benchmark) / var(benchmark) over their finite common prefix.
func Beta(assetReturns, benchmarkReturns []float64) float64 {
	xs, ys := pairs(assetReturns, benchmarkReturns)
	if len(xs) <= 1 || constant(ys) {
		return 0
	}

	cov, _, benchVar := coMoments(xs, ys)
	if benchVar == 0 {
		return 0
	}
	return stats.Round(cov/benchVar, DefaultPrecision)
}

// Correlation returns the Pearson correlation over the finite common prefix of a and b.
func Correlation(a, b []float64) float64 {
	xs, ys := pairs(a, b)
	if len(xs) <= 1 || constant(xs) || constant(ys) {
		return 0
	}

	cov, varA, varB := coMoments(xs, ys)
	sdA, sdB := math.Sqrt(varA), math.Sqrt(varB)
	if sdA == 0 || sdB == 0 {
		return 0
	}

	rho := math.Max(-1, math.Min(1, cov/(sdA*sdB)))
	return stats.Round(rho, DefaultPrecision)
}

// ExpectedReturnFromPrices annualizes the mean daily log return of the positive closes.
func ExpectedReturnFromPrices(prices []PricePoint) float64 {
	if len(prices) <= 1 {
		return 0
	}

	closes := make([]float64, 0, len(prices))
	for _, p := range prices {
		if finite(p.Close) && p.Close > 0 {
			closes = append(closes, p.Close)
		}
	}
	if len(closes) <= 1 {
		return 0
	}

	logReturns := Returns(closes, WithLogReturns(), WithPrecision(10))
	if len(logReturns) == 0 {
		return 0
	}
	return stats.Round(stats.Mean(logReturns)*TradingDaysPerYear, DefaultPrecision)
}

// Closes extracts the close column of a price history.
func Closes(prices []PricePoint) []float64 {
	out := make([]float64, len(prices))
	for i, p := range prices {
		out[i] = p.Close
	}
	return out
}

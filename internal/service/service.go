// Package service orchestrates market data, statistics and the optimizer into
// per-strategy portfolio summaries, efficient frontiers and asset analytics.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/folio/internal/analytics"
	"github.com/sawpanic/folio/internal/marketdata"
	"github.com/sawpanic/folio/internal/optimize"
	"github.com/sawpanic/folio/internal/stats"
)

const (
	// lastResortReturn fills a series when neither the live nor the synthetic path produced one.
	lastResortReturn = 0.005
	monthsPerYear    = 12

	summaryPrecision = 6
	sharpePrecision  = 4
)

// Fallback kinds reported to the Recorder.
const (
	FallbackRequest  = "request"
	FallbackSymbol   = "symbol"
	FallbackConstant = "constant"
)

// Recorder receives timings and fallback events, usually for Prometheus.
type Recorder interface {
	ObserveOptimization(strategy string, d time.Duration)
	Fallback(kind string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOptimization(string, time.Duration) {}
func (nopRecorder) Fallback(string)                           {}

// Service is safe for concurrent use when its providers are.
type Service struct {
	provider     marketdata.Provider
	synthetic    marketdata.Provider
	constraints  *optimize.Constraints
	riskFreeRate float64
	recorder     Recorder
	logger       zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSynthetic replaces the fallback provider.
func WithSynthetic(p marketdata.Provider) Option {
	return func(s *Service) { s.synthetic = p }
}

// WithConstraints replaces the default {0.05, 0.6} weight bounds.
func WithConstraints(c *optimize.Constraints) Option {
	return func(s *Service) { s.constraints = c }
}

// WithRiskFreeRate sets the annual rate used by Analytics' Sharpe ratio.
func WithRiskFreeRate(rate float64) Option {
	return func(s *Service) { s.riskFreeRate = rate }
}

// WithRecorder reports timings and fallbacks.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New builds a service over provider. A nil provider means a cached synthetic provider.
func New(provider marketdata.Provider, opts ...Option) *Service {
	s := &Service{
		synthetic:    marketdata.NewSyntheticProvider(),
		constraints:  optimize.DefaultConstraints(),
		riskFreeRate: analytics.DefaultRiskFreeRate,
		recorder:     nopRecorder{},
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if provider == nil {
		provider = marketdata.NewCachedProvider(s.synthetic, 0)
	}
	s.provider = provider
	s.logger = s.logger.With().Str("component", "optimization_service").Logger()
	return s
}

// resolveRange picks the options range, then the portfolio setting, then the default.
func resolveRange(p Portfolio, opts Options) marketdata.Range {
	if opts.Range != "" {
		return opts.Range.OrDefault()
	}
	return p.Settings.TimeRange.OrDefault()
}

func (s *Service) constraintsFor(opts Options) *optimize.Constraints {
	if opts.Constraints != nil {
		return opts.Constraints
	}
	return s.constraints
}

// Summaries runs every strategy over the portfolio. When strategy is non-nil the matching
// entry is also returned in Response.Summary (nil when absent).
func (s *Service) Summaries(ctx context.Context, strategy *optimize.Strategy, p Portfolio, opts Options) (*Response, error) {
	r := resolveRange(p, opts)
	if len(p.Assets) == 0 {
		return &Response{
			Summaries: []Summary{},
			Meta:      marketdata.Meta{Source: marketdata.SourceSynthetic, Range: r},
		}, nil
	}

	matrix, meta, err := s.resolveMatrix(ctx, p.Symbols(), r)
	if err != nil {
		return nil, err
	}

	means := stats.MeanVector(matrix)
	cov := stats.CovarianceMatrix(matrix)
	constraints := s.constraintsFor(opts)
	if !constraints.Feasible(len(matrix)) {
		s.logger.Warn().
			Int("assets", len(matrix)).
			Float64("min_weight", constraints.MinWeight).
			Float64("max_weight", constraints.MaxWeight).
			Msg("weight bounds cannot all hold, projection is best effort")
	}

	summaries := make([]Summary, 0, len(optimize.Strategies()))
	for _, st := range optimize.Strategies() {
		start := time.Now()
		weights, err := optimize.Optimize(st, matrix, constraints)
		if err != nil {
			return nil, err
		}
		s.recorder.ObserveOptimization(string(st), time.Since(start))

		ret, risk := stats.PortfolioStats(weights, means, cov)
		sharpe := 0.0
		if risk > 0 {
			sharpe = ret / risk
		}
		summaries = append(summaries, Summary{
			Strategy:       st,
			ExpectedReturn: stats.Round(ret, summaryPrecision),
			Risk:           stats.Round(risk, summaryPrecision),
			SharpeRatio:    stats.Round(sharpe, sharpePrecision),
			Description:    st.Description(),
			Weights:        assetWeights(p, weights),
		})
	}

	resp := &Response{Summaries: summaries, Meta: meta}
	if strategy != nil {
		for i := range summaries {
			if summaries[i].Strategy == *strategy {
				resp.Summary = &summaries[i]
				break
			}
		}
	}

	s.logger.Debug().
		Int("assets", len(p.Assets)).
		Str("range", string(r)).
		Str("source", string(meta.Source)).
		Bool("from_cache", meta.FromCache).
		Msg("optimization summaries computed")
	return resp, nil
}

func assetWeights(p Portfolio, weights []float64) []AssetWeight {
	out := make([]AssetWeight, len(weights))
	for i, w := range weights {
		row := AssetWeight{Symbol: fmt.Sprintf("ASSET-%d", i+1), Weight: stats.Round(w, summaryPrecision)}
		if i < len(p.Assets) {
			if sym := p.Assets[i].Asset.Symbol; sym != "" {
				row.Symbol = sym
			}
			row.Name = p.Assets[i].Asset.Name
		}
		out[i] = row
	}
	return out
}

// Frontier builds the efficient frontier of the portfolio with the same data and
// constraints as Summaries. points <= 0 uses optimize.DefaultFrontierPoints.
func (s *Service) Frontier(ctx context.Context, p Portfolio, points int, opts Options) (*FrontierResponse, error) {
	r := resolveRange(p, opts)
	if len(p.Assets) == 0 {
		return &FrontierResponse{
			Symbols: []string{},
			Points:  []optimize.FrontierPoint{},
			Meta:    marketdata.Meta{Source: marketdata.SourceSynthetic, Range: r},
		}, nil
	}

	matrix, meta, err := s.resolveMatrix(ctx, p.Symbols(), r)
	if err != nil {
		return nil, err
	}

	if points <= 0 {
		points = optimize.DefaultFrontierPoints
	}
	start := time.Now()
	frontier := optimize.EfficientFrontier(matrix, points, s.constraintsFor(opts))
	s.recorder.ObserveOptimization("frontier", time.Since(start))

	return &FrontierResponse{Symbols: p.Symbols(), Points: frontier, Meta: meta}, nil
}

// Analytics computes the metric battery of symbol's monthly returns, with beta and
// correlation against benchmark when one is given.
func (s *Service) Analytics(ctx context.Context, symbol, benchmark string, r marketdata.Range) (*AssetAnalytics, error) {
	symbol = strings.TrimSpace(symbol)
	benchmark = strings.TrimSpace(benchmark)
	if symbol == "" {
		return nil, ErrEmptySymbol
	}
	r = r.OrDefault()

	symbols := []string{symbol}
	if benchmark != "" && benchmark != symbol {
		symbols = append(symbols, benchmark)
	}

	matrix, meta, err := s.resolveMatrix(ctx, symbols, r)
	if err != nil {
		return nil, err
	}

	returns := matrix[0]
	out := &AssetAnalytics{
		Symbol:         symbol,
		Benchmark:      benchmark,
		Periods:        len(returns),
		ExpectedReturn: stats.Round(stats.Mean(returns)*monthsPerYear, analytics.DefaultPrecision),
		Volatility:     analytics.Volatility(returns, monthsPerYear, analytics.WithVolPrecision(analytics.DefaultPrecision)),
		SharpeRatio:    analytics.SharpeRatio(returns, s.riskFreeRate, monthsPerYear),
		MaxDrawdown:    analytics.MaxDrawdown(analytics.CumulativeValues(returns, 1)),
		Meta:           meta,
	}
	if benchmark != "" {
		bench := returns
		if len(matrix) > 1 {
			bench = matrix[1]
		}
		beta := analytics.Beta(returns, bench)
		corr := analytics.Correlation(returns, bench)
		out.Beta, out.Correlation = &beta, &corr
	}
	return out, nil
}

// resolveMatrix fetches one series per symbol, in order. A provider error falls back to the
// synthetic provider for the whole request; an empty or short live series is replaced by
// the symbol's synthetic series; a series still empty becomes a constant last resort.
func (s *Service) resolveMatrix(ctx context.Context, symbols []string, r marketdata.Range) ([][]float64, marketdata.Meta, error) {
	req := marketdata.Request{Symbols: symbols, Range: r}

	res, err := s.provider.GetReturns(ctx, req)
	if err == nil && res == nil {
		err = marketdata.ErrNoData
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, marketdata.Meta{}, ctxErr
		}
		s.logger.Warn().Err(err).Strs("symbols", symbols).Msg("market data provider failed, using synthetic returns")
		s.recorder.Fallback(FallbackRequest)

		res, err = s.synthetic.GetReturns(ctx, req)
		if err != nil {
			s.logger.Error().Err(err).Msg("synthetic provider failed")
			res = &marketdata.Result{Returns: map[string][]float64{}}
		}
		res.Meta.Source = marketdata.SourceSynthetic
		res.Meta.FromCache = false
	}

	meta := res.Meta
	meta.Range = r
	if meta.Source == "" {
		meta.Source = marketdata.SourceSynthetic
	}
	months := marketdata.MonthsForRange(r)

	matrix := make([][]float64, len(symbols))
	for i, symbol := range symbols {
		series := res.Returns[symbol]

		if len(series) == 0 || (res.Meta.Source == marketdata.SourceExternal && len(series) < months) {
			s.logger.Warn().Str("symbol", symbol).Int("periods", len(series)).Int("want", months).
				Msg("incomplete series, substituting synthetic returns")
			s.recorder.Fallback(FallbackSymbol)
			series = s.syntheticSeries(ctx, symbol, r)
			meta.Source = marketdata.SourceSynthetic
		}

		if len(series) == 0 {
			s.recorder.Fallback(FallbackConstant)
			series = constantSeries(lastResortReturn, months)
			meta.Source = marketdata.SourceSynthetic
		}
		matrix[i] = append([]float64(nil), series...)
	}
	return matrix, meta, nil
}

func (s *Service) syntheticSeries(ctx context.Context, symbol string, r marketdata.Range) []float64 {
	res, err := s.synthetic.GetReturns(ctx, marketdata.Request{Symbols: []string{symbol}, Range: r})
	if err != nil || res == nil {
		return nil
	}
	return res.Returns[symbol]
}

func constantSeries(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/folio/internal/analytics"
	"github.com/sawpanic/folio/internal/marketdata"
	"github.com/sawpanic/folio/internal/optimize"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) GetReturns(ctx context.Context, req marketdata.Request) (*marketdata.Result, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*marketdata.Result)
	return res, args.Error(1)
}

type fakeRecorder struct {
	mu        sync.Mutex
	fallbacks map[string]int
	observed  map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{fallbacks: map[string]int{}, observed: map[string]int{}}
}

func (f *fakeRecorder) ObserveOptimization(strategy string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observed[strategy]++
}

func (f *fakeRecorder) Fallback(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallbacks[kind]++
}

func portfolioOf(r marketdata.Range, symbols ...string) Portfolio {
	p := Portfolio{Settings: Settings{TimeRange: r}}
	for _, s := range symbols {
		p.Assets = append(p.Assets, Holding{Asset: Asset{Symbol: s, Name: s + " Inc"}})
	}
	return p
}

func external(r marketdata.Range, returns map[string][]float64) *marketdata.Result {
	return &marketdata.Result{Returns: returns, Meta: marketdata.Meta{Source: marketdata.SourceExternal, Range: r}}
}

func liveSeries(symbol string, months int) []float64 {
	// seeded differently from the symbol's synthetic fallback
	return marketdata.GenerateSyntheticReturns(symbol+"-live", months)
}

func strategyPtr(s optimize.Strategy) *optimize.Strategy { return &s }

func TestSummaries_EmptyPortfolio(t *testing.T) {
	provider := &mockProvider{}
	svc := New(provider)

	resp, err := svc.Summaries(context.Background(), nil, Portfolio{}, Options{})
	require.NoError(t, err)
	assert.Empty(t, resp.Summaries)
	assert.NotNil(t, resp.Summaries)
	assert.Equal(t, marketdata.Meta{Source: marketdata.SourceSynthetic, FromCache: false, Range: marketdata.Range5Y}, resp.Meta)
	provider.AssertNotCalled(t, "GetReturns", mock.Anything, mock.Anything)
}

func TestSummaries_ProviderFailureFallsBackToSynthetic(t *testing.T) {
	provider := &mockProvider{}
	provider.On("GetReturns", mock.Anything, mock.Anything).Return(nil, errors.New("network unavailable"))
	rec := newFakeRecorder()
	svc := New(provider, WithRecorder(rec))

	resp, err := svc.Summaries(context.Background(), strategyPtr(optimize.MaxSharpe), DemoPortfolio(), Options{})
	require.NoError(t, err)

	assert.Len(t, resp.Summaries, 4)
	assert.Equal(t, marketdata.SourceSynthetic, resp.Meta.Source)
	assert.False(t, resp.Meta.FromCache)
	require.NotNil(t, resp.Summary)
	assert.Equal(t, optimize.MaxSharpe, resp.Summary.Strategy)
	assert.Equal(t, 1, rec.fallbacks[FallbackRequest])
	assert.Zero(t, rec.fallbacks[FallbackSymbol])
	provider.AssertExpectations(t)
}

func TestSummaries_LiveData(t *testing.T) {
	symbols := []string{"AAA", "BBB", "CCC"}
	returns := map[string][]float64{}
	for _, s := range symbols {
		returns[s] = liveSeries(s, 12)
	}

	provider := &mockProvider{}
	provider.On("GetReturns", mock.Anything, marketdata.Request{Symbols: symbols, Range: marketdata.Range1Y}).
		Return(external(marketdata.Range1Y, returns), nil)
	rec := newFakeRecorder()
	svc := New(provider, WithRecorder(rec))

	resp, err := svc.Summaries(context.Background(), nil, portfolioOf(marketdata.Range1Y, symbols...), Options{})
	require.NoError(t, err)
	provider.AssertExpectations(t)

	assert.Equal(t, marketdata.SourceExternal, resp.Meta.Source)
	assert.Equal(t, marketdata.Range1Y, resp.Meta.Range)
	assert.Nil(t, resp.Summary)

	require.Len(t, resp.Summaries, 4)
	for i, s := range resp.Summaries {
		assert.Equal(t, optimize.Strategies()[i], s.Strategy)
		assert.NotEmpty(t, s.Description)
		assert.GreaterOrEqual(t, s.Risk, 0.0)
		if s.Risk > 0 {
			assert.InDelta(t, s.ExpectedReturn/s.Risk, s.SharpeRatio, 1e-3)
		}

		require.Len(t, s.Weights, 3)
		total := 0.0
		for j, w := range s.Weights {
			assert.Equal(t, symbols[j], w.Symbol)
			assert.Equal(t, symbols[j]+" Inc", w.Name)
			assert.GreaterOrEqual(t, w.Weight, 0.05-1e-6)
			assert.LessOrEqual(t, w.Weight, 0.6+1e-6)
			assert.InDelta(t, math.Round(w.Weight*1e6)/1e6, w.Weight, 1e-12)
			total += w.Weight
		}
		assert.InDelta(t, 1.0, total, 1e-5)
	}
	assert.Equal(t, 1, rec.observed[string(optimize.RiskParity)])
	assert.Empty(t, rec.fallbacks)
}

func TestSummaries_UnknownRequestedStrategy(t *testing.T) {
	svc := New(nil)
	resp, err := svc.Summaries(context.Background(), strategyPtr("momentum"), DemoPortfolio(), Options{})
	require.NoError(t, err)
	assert.Len(t, resp.Summaries, 4)
	assert.Nil(t, resp.Summary)

	_, err = resp.Selected()
	assert.ErrorIs(t, err, ErrStrategyNotFound)
}

func TestSummaries_RangeResolution(t *testing.T) {
	tests := []struct {
		name     string
		settings marketdata.Range
		option   marketdata.Range
		want     marketdata.Range
	}{
		{"default", "", "", marketdata.Range5Y},
		{"portfolio setting", marketdata.Range3Y, "", marketdata.Range3Y},
		{"option wins", marketdata.Range3Y, marketdata.Range10Y, marketdata.Range10Y},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mockProvider{}
			provider.On("GetReturns", mock.Anything, mock.MatchedBy(func(req marketdata.Request) bool {
				return req.Range == tt.want
			})).Return(nil, errors.New("offline"))

			resp, err := New(provider).Summaries(context.Background(), nil, portfolioOf(tt.settings, "AAA", "BBB"), Options{Range: tt.option})
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Meta.Range)
			provider.AssertExpectations(t)
		})
	}
}

func TestResolveMatrix_PerSymbolFallback(t *testing.T) {
	full := liveSeries("AAA", 12)
	provider := &mockProvider{}
	provider.On("GetReturns", mock.Anything, mock.Anything).Return(external(marketdata.Range1Y, map[string][]float64{
		"AAA": full,
		"BBB": {},
		"CCC": {0.01, 0.02},
	}), nil)
	rec := newFakeRecorder()
	svc := New(provider, WithRecorder(rec))

	matrix, meta, err := svc.resolveMatrix(context.Background(), []string{"AAA", "BBB", "CCC", "DDD"}, marketdata.Range1Y)
	require.NoError(t, err)

	assert.Equal(t, marketdata.SourceSynthetic, meta.Source, "any substituted symbol marks the whole response synthetic")
	assert.Equal(t, full, matrix[0])
	assert.Equal(t, marketdata.GenerateSyntheticReturns("BBB", 12), matrix[1])
	assert.Equal(t, marketdata.GenerateSyntheticReturns("CCC", 12), matrix[2])
	assert.Equal(t, marketdata.GenerateSyntheticReturns("DDD", 12), matrix[3])
	assert.Equal(t, 3, rec.fallbacks[FallbackSymbol])
	assert.Zero(t, rec.fallbacks[FallbackConstant])
}

func TestResolveMatrix_LastResortConstant(t *testing.T) {
	provider := &mockProvider{}
	provider.On("GetReturns", mock.Anything, mock.Anything).Return(nil, errors.New("offline"))
	empty := marketdata.ProviderFunc(func(_ context.Context, req marketdata.Request) (*marketdata.Result, error) {
		return &marketdata.Result{Returns: map[string][]float64{}, Meta: marketdata.Meta{Source: marketdata.SourceSynthetic}}, nil
	})
	rec := newFakeRecorder()
	svc := New(provider, WithSynthetic(empty), WithRecorder(rec))

	matrix, meta, err := svc.resolveMatrix(context.Background(), []string{"AAA"}, marketdata.Range1Y)
	require.NoError(t, err)

	require.Len(t, matrix[0], 12)
	for _, v := range matrix[0] {
		assert.Equal(t, 0.005, v)
	}
	assert.Equal(t, marketdata.SourceSynthetic, meta.Source)
	assert.Equal(t, 1, rec.fallbacks[FallbackRequest])
	assert.Equal(t, 1, rec.fallbacks[FallbackSymbol])
	assert.Equal(t, 1, rec.fallbacks[FallbackConstant])
}

func TestResolveMatrix_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &mockProvider{}
	provider.On("GetReturns", mock.Anything, mock.Anything).Return(nil, context.Canceled)

	_, _, err := New(provider).resolveMatrix(ctx, []string{"AAA"}, marketdata.Range1Y)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummaries_CachedProviderIsReused(t *testing.T) {
	base := &mockProvider{}
	base.On("GetReturns", mock.Anything, mock.Anything).Return(external(marketdata.Range1Y, map[string][]float64{
		"AAA": liveSeries("AAA", 12),
		"BBB": liveSeries("BBB", 12),
	}), nil).Once()

	svc := New(marketdata.NewCachedProvider(base, 10*time.Minute))

	first, err := svc.Summaries(context.Background(), nil, portfolioOf(marketdata.Range1Y, "AAA", "BBB"), Options{})
	require.NoError(t, err)
	second, err := svc.Summaries(context.Background(), nil, portfolioOf(marketdata.Range1Y, "BBB", "AAA"), Options{})
	require.NoError(t, err)

	assert.False(t, first.Meta.FromCache)
	assert.True(t, second.Meta.FromCache)
	assert.Equal(t, marketdata.SourceExternal, second.Meta.Source)
	base.AssertNumberOfCalls(t, "GetReturns", 1)
}

func TestSummaries_AssetNaming(t *testing.T) {
	p := portfolioOf(marketdata.Range1Y, "AAA")
	p.Assets = append(p.Assets, Holding{})

	resp, err := New(nil).Summaries(context.Background(), nil, p, Options{})
	require.NoError(t, err)
	weights := resp.Summaries[0].Weights
	require.Len(t, weights, 2)
	assert.Equal(t, "AAA", weights[0].Symbol)
	assert.Equal(t, "ASSET-2", weights[1].Symbol)
}

func TestSummaries_ConstraintOverride(t *testing.T) {
	resp, err := New(nil).Summaries(context.Background(), nil, DemoPortfolio(), Options{
		Constraints: &optimize.Constraints{MinWeight: 0.1, MaxWeight: 0.2},
	})
	require.NoError(t, err)
	for _, s := range resp.Summaries {
		for _, w := range s.Weights {
			assert.GreaterOrEqual(t, w.Weight, 0.1-1e-6)
			assert.LessOrEqual(t, w.Weight, 0.2+1e-6)
		}
	}
}

func TestFrontier(t *testing.T) {
	svc := New(nil)

	resp, err := svc.Frontier(context.Background(), DemoPortfolio(), 0, Options{})
	require.NoError(t, err)
	require.Len(t, resp.Points, optimize.DefaultFrontierPoints)
	assert.Equal(t, DemoPortfolio().Symbols(), resp.Symbols)
	for i := 1; i < len(resp.Points); i++ {
		assert.Greater(t, resp.Points[i].Risk, resp.Points[i-1].Risk)
		assert.Greater(t, resp.Points[i].Return, resp.Points[i-1].Return)
	}

	empty, err := svc.Frontier(context.Background(), Portfolio{}, 10, Options{})
	require.NoError(t, err)
	assert.Empty(t, empty.Points)
}

func TestAnalytics(t *testing.T) {
	asset := liveSeries("AAA", 12)
	bench := liveSeries("SPY", 12)
	provider := &mockProvider{}
	provider.On("GetReturns", mock.Anything, marketdata.Request{Symbols: []string{"AAA", "SPY"}, Range: marketdata.Range1Y}).
		Return(external(marketdata.Range1Y, map[string][]float64{"AAA": asset, "SPY": bench}), nil)

	out, err := New(provider).Analytics(context.Background(), " AAA ", "SPY", marketdata.Range1Y)
	require.NoError(t, err)

	assert.Equal(t, "AAA", out.Symbol)
	assert.Equal(t, 12, out.Periods)
	assert.Equal(t, marketdata.SourceExternal, out.Meta.Source)
	assert.Equal(t, analytics.Volatility(asset, 12, analytics.WithVolPrecision(4)), out.Volatility)
	assert.Equal(t, analytics.SharpeRatio(asset, analytics.DefaultRiskFreeRate, 12), out.SharpeRatio)
	assert.LessOrEqual(t, out.MaxDrawdown, 0.0)
	require.NotNil(t, out.Beta)
	require.NotNil(t, out.Correlation)
	assert.Equal(t, analytics.Beta(asset, bench), *out.Beta)
	assert.Equal(t, analytics.Correlation(asset, bench), *out.Correlation)
}

func TestAnalytics_Validation(t *testing.T) {
	_, err := New(nil).Analytics(context.Background(), "  ", "", "")
	assert.ErrorIs(t, err, ErrEmptySymbol)

	out, err := New(nil).Analytics(context.Background(), "VOO", "", "")
	require.NoError(t, err)
	assert.Equal(t, 60, out.Periods)
	assert.Nil(t, out.Beta)

	self, err := New(nil).Analytics(context.Background(), "VOO", "VOO", "")
	require.NoError(t, err)
	require.NotNil(t, self.Correlation)
	assert.Equal(t, 1.0, *self.Correlation)
}

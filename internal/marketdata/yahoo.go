package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/folio/internal/analytics"
	"github.com/sawpanic/folio/internal/data/cache"
	"github.com/sawpanic/folio/internal/net/budget"
	"github.com/sawpanic/folio/internal/net/circuit"
	"github.com/sawpanic/folio/internal/net/client"
	"github.com/sawpanic/folio/internal/net/ratelimit"
)

const (
	DefaultYahooBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"
	yahooInterval       = "1mo"
)

var yahooRanges = map[Range]string{
	Range1Y:  "1y",
	Range3Y:  "3y",
	Range5Y:  "5y",
	Range10Y: "10y",
	RangeMax: "max",
}

// YahooConfig configures the chart API client.
type YahooConfig struct {
	BaseURL string         `yaml:"base_url"`
	RPS     float64        `yaml:"rps"`
	Burst   int            `yaml:"burst"`
	Timeout time.Duration  `yaml:"timeout"`
	Breaker circuit.Config `yaml:"breaker"`
	// DailyBudget caps upstream requests per UTC day; 0 is unlimited.
	DailyBudget int64 `yaml:"daily_budget"`
}

// DefaultYahooConfig is two requests per second with a 10s timeout.
func DefaultYahooConfig() YahooConfig {
	return YahooConfig{
		BaseURL: DefaultYahooBaseURL,
		RPS:     2,
		Burst:   4,
		Timeout: 10 * time.Second,
		Breaker: circuit.DefaultConfig("yahoo"),

		DailyBudget: 2000,
	}
}

type yahooChartResp struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// YahooProvider reads monthly closes from the Yahoo Finance chart API.
type YahooProvider struct {
	baseURL string
	http    *http.Client
	history *cache.TTLCache
	logger  zerolog.Logger
}

// NewYahooProvider builds a rate-limited, circuit-broken client. transport may be nil.
func NewYahooProvider(cfg YahooConfig, transport http.RoundTripper, logger zerolog.Logger, observers ...circuit.StateObserver) *YahooProvider {
	def := DefaultYahooConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.RPS <= 0 {
		cfg.RPS = def.RPS
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "yahoo"
	}

	logger = logger.With().Str("component", "yahoo").Logger()
	wrapper := client.NewWrapper(client.WrapperConfig{
		Provider:       "yahoo",
		RateLimiter:    ratelimit.NewLimiter(cfg.RPS, cfg.Burst),
		CircuitBreaker: circuit.New(cfg.Breaker, logger, observers...),
		Budget:         budget.NewTracker("yahoo", cfg.DailyBudget, 0, 0.8),
	}, transport)

	httpClient := wrapper.Client()
	httpClient.Timeout = cfg.Timeout

	return &YahooProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		history: cache.NewTTLCache(512, cache.DefaultTTL),
		logger:  logger,
	}
}

// GetReturns implements Provider.
func (y *YahooProvider) GetReturns(ctx context.Context, req Request) (*Result, error) {
	return returnsFromHistory(ctx, y, req, y.logger)
}

// History implements HistorySource. Responses are cached per historical:{symbol}:{range}:{interval}.
func (y *YahooProvider) History(ctx context.Context, symbol string, r Range) ([]analytics.PricePoint, error) {
	r = r.OrDefault()
	key := strings.Join([]string{"historical", symbol, yahooRanges[r], yahooInterval}, ":")
	if v, ok := y.history.Get(key); ok {
		return v.([]analytics.PricePoint), nil
	}

	points, err := y.fetch(ctx, symbol, r)
	if err != nil {
		return nil, err
	}
	y.history.Set(key, points, 0)
	return points, nil
}

func (y *YahooProvider) fetch(ctx context.Context, symbol string, r Range) ([]analytics.PricePoint, error) {
	q := url.Values{}
	q.Set("range", yahooRanges[r])
	q.Set("interval", yahooInterval)
	q.Set("events", "div,splits")
	endpoint := fmt.Sprintf("%s/%s?%s", y.baseURL, url.PathEscape(symbol), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build chart request for %s: %w", symbol, err)
	}

	start := time.Now()
	resp, err := y.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chart request for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart request for %s: HTTP %d", symbol, resp.StatusCode)
	}

	var body yahooChartResp
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode chart for %s: %w", symbol, err)
	}
	points, err := body.points()
	if err != nil {
		return nil, fmt.Errorf("chart for %s: %w", symbol, err)
	}

	y.logger.Debug().
		Str("symbol", symbol).
		Str("range", string(r)).
		Int("points", len(points)).
		Dur("latency", time.Since(start)).
		Msg("fetched price history")
	return points, nil
}

// points prefers adjusted closes and skips null bars.
func (c *yahooChartResp) points() ([]analytics.PricePoint, error) {
	if e := c.Chart.Error; e != nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNoData, e.Code, e.Description)
	}
	if len(c.Chart.Result) == 0 || len(c.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, ErrNoData
	}
	result := c.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close
	if len(result.Indicators.AdjClose) > 0 && len(result.Indicators.AdjClose[0].AdjClose) == len(result.Timestamp) {
		closes = result.Indicators.AdjClose[0].AdjClose
	}

	points := make([]analytics.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		points = append(points, analytics.PricePoint{Date: time.Unix(ts, 0).UTC(), Close: *closes[i]})
	}
	if len(points) == 0 {
		return nil, ErrNoData
	}
	return points, nil
}

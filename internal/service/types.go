package service

import (
	"errors"

	"github.com/sawpanic/folio/internal/marketdata"
	"github.com/sawpanic/folio/internal/optimize"
)

var (
	// ErrStrategyNotFound is reported when a requested strategy has no summary.
	ErrStrategyNotFound = errors.New("strategy not found")
	// ErrEmptySymbol is returned by Analytics for a blank symbol.
	ErrEmptySymbol = errors.New("symbol is required")
)

// Asset identifies an instrument.
type Asset struct {
	ID       string `json:"id,omitempty"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Type     string `json:"type,omitempty"`
	Exchange string `json:"exchange,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// Holding is one position of a portfolio.
type Holding struct {
	Asset  Asset   `json:"asset"`
	Weight float64 `json:"weight"`
	Value  float64 `json:"value,omitempty"`
}

// Settings carries per-portfolio analysis preferences.
type Settings struct {
	RebalanceFrequency string           `json:"rebalanceFrequency,omitempty"`
	TimeRange          marketdata.Range `json:"timeRange,omitempty"`
	IncludeDividends   bool             `json:"includeDividends,omitempty"`
	UseLogReturns      bool             `json:"useLogReturns,omitempty"`
}

// Portfolio is an ordered asset list. Weight vectors are index-aligned to Assets.
type Portfolio struct {
	ID           string    `json:"id,omitempty"`
	Name         string    `json:"name,omitempty"`
	Description  string    `json:"description,omitempty"`
	BaseCurrency string    `json:"baseCurrency,omitempty"`
	Assets       []Holding `json:"assets"`
	Settings     Settings  `json:"settings"`
}

// Symbols lists the asset symbols in portfolio order.
func (p Portfolio) Symbols() []string {
	out := make([]string, len(p.Assets))
	for i, h := range p.Assets {
		out[i] = h.Asset.Symbol
	}
	return out
}

// Options override portfolio settings for one call.
type Options struct {
	Range       marketdata.Range      `json:"range,omitempty"`
	Constraints *optimize.Constraints `json:"constraints,omitempty"`
}

// AssetWeight is one row of a summary's allocation.
type AssetWeight struct {
	Symbol string  `json:"symbol"`
	Name   string  `json:"name,omitempty"`
	Weight float64 `json:"weight"`
}

// Summary is the outcome of one strategy.
type Summary struct {
	Strategy       optimize.Strategy `json:"strategy"`
	ExpectedReturn float64           `json:"expectedReturn"`
	Risk           float64           `json:"risk"`
	SharpeRatio    float64           `json:"sharpeRatio"`
	Description    string            `json:"description"`
	Weights        []AssetWeight     `json:"weights"`
}

// Response holds every strategy's summary and, when one was requested, the match.
type Response struct {
	Summaries []Summary       `json:"summaries"`
	Summary   *Summary        `json:"summary,omitempty"`
	Meta      marketdata.Meta `json:"meta"`
}

// Selected returns the requested summary or ErrStrategyNotFound.
func (r *Response) Selected() (*Summary, error) {
	if r == nil || r.Summary == nil {
		return nil, ErrStrategyNotFound
	}
	return r.Summary, nil
}

// FrontierResponse is the efficient frontier of a portfolio.
type FrontierResponse struct {
	Symbols []string                 `json:"symbols"`
	Points  []optimize.FrontierPoint `json:"points"`
	Meta    marketdata.Meta          `json:"meta"`
}

// AssetAnalytics is the metric battery of one symbol over a range of monthly returns.
type AssetAnalytics struct {
	Symbol         string          `json:"symbol"`
	Benchmark      string          `json:"benchmark,omitempty"`
	Periods        int             `json:"periods"`
	ExpectedReturn float64         `json:"expectedReturn"`
	Volatility     float64         `json:"volatility"`
	SharpeRatio    float64         `json:"sharpeRatio"`
	MaxDrawdown    float64         `json:"maxDrawdown"`
	Beta           *float64        `json:"beta,omitempty"`
	Correlation    *float64        `json:"correlation,omitempty"`
	Meta           marketdata.Meta `json:"meta"`
}

// DemoPortfolio is the sample multi-asset portfolio served when a caller supplies none.
func DemoPortfolio() Portfolio {
	holding := func(id, symbol, name, kind, exchange string, weight, value float64) Holding {
		return Holding{
			Asset:  Asset{ID: id, Symbol: symbol, Name: name, Type: kind, Exchange: exchange, Currency: "USD"},
			Weight: weight,
			Value:  value,
		}
	}
	return Portfolio{
		ID:           "portfolio-001",
		Name:         "Growth + Commodities",
		Description:  "Diversified mix of equities, bonds and commodities",
		BaseCurrency: "USD",
		Settings: Settings{
			RebalanceFrequency: "quarterly",
			TimeRange:          marketdata.Range5Y,
			IncludeDividends:   true,
			UseLogReturns:      true,
		},
		Assets: []Holding{
			holding("asset-voo", "VOO", "Vanguard S&P 500 ETF", "etf", "NYSE", 0.36, 36000),
			holding("asset-vxus", "VXUS", "Vanguard Total International Stock ETF", "etf", "NASDAQ", 0.18, 18000),
			holding("asset-vnq", "VNQ", "Vanguard Real Estate ETF", "etf", "NYSE", 0.09, 9000),
			holding("asset-gld", "GLD", "SPDR Gold Shares", "commodity", "NYSE", 0.12, 12000),
			holding("asset-bnd", "BND", "Vanguard Total Bond Market ETF", "bond", "NASDAQ", 0.1, 10000),
			holding("asset-btc", "BTC-USD", "Bitcoin", "crypto", "", 0.08, 8000),
			holding("asset-n225", "^N225", "Nikkei 225 Index", "index", "", 0.07, 7000),
		},
	}
}

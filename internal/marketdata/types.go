// Package marketdata supplies per-asset return series to the optimizer. Providers may be
// live (Yahoo chart API, Postgres, CSV), synthetic, or a TTL cache wrapping either.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnknownRange is returned for a range token outside 1Y/3Y/5Y/10Y/MAX.
	ErrUnknownRange = errors.New("unknown time range")
	// ErrNoData is returned when a provider could not produce any series.
	ErrNoData = errors.New("no market data")
)

// Range is the lookback window of a request.
type Range string

const (
	Range1Y  Range = "1Y"
	Range3Y  Range = "3Y"
	Range5Y  Range = "5Y"
	Range10Y Range = "10Y"
	RangeMax Range = "MAX"

	DefaultRange = Range5Y
)

var rangeMonths = map[Range]int{
	Range1Y:  12,
	Range3Y:  36,
	Range5Y:  60,
	Range10Y: 120,
	RangeMax: 180,
}

// ParseRange validates a range token; the empty string yields DefaultRange.
func ParseRange(s string) (Range, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultRange, nil
	}
	r := Range(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := rangeMonths[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRange, s)
	}
	return r, nil
}

// OrDefault returns r, or DefaultRange when r is empty or unknown.
func (r Range) OrDefault() Range {
	if _, ok := rangeMonths[r]; ok {
		return r
	}
	return DefaultRange
}

// MonthsForRange is the number of monthly periods a range covers.
func MonthsForRange(r Range) int {
	return rangeMonths[r.OrDefault()]
}

// Source records where a payload came from.
type Source string

const (
	SourceSynthetic Source = "synthetic"
	SourceExternal  Source = "external"
)

// Request asks for return series of the given symbols.
type Request struct {
	Symbols []string `json:"symbols"`
	Range   Range    `json:"range"`
}

// Meta describes the provenance of a Result.
type Meta struct {
	Source    Source `json:"source"`
	FromCache bool   `json:"fromCache"`
	Range     Range  `json:"range"`
}

// Result maps each symbol to its period return series.
type Result struct {
	Returns map[string][]float64 `json:"returns"`
	Meta    Meta                 `json:"meta"`
}

// Clone deep-copies the result so cached payloads are never shared with callers.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := &Result{Returns: make(map[string][]float64, len(r.Returns)), Meta: r.Meta}
	for symbol, series := range r.Returns {
		out.Returns[symbol] = append([]float64(nil), series...)
	}
	return out
}

// Provider produces return series for a request.
type Provider interface {
	GetReturns(ctx context.Context, req Request) (*Result, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (*Result, error)

// GetReturns calls f.
func (f ProviderFunc) GetReturns(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// CacheKey is order independent: range + ":" + sorted symbols joined by commas.
func CacheKey(symbols []string, r Range) string {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	return string(r.OrDefault()) + ":" + strings.Join(sorted, ",")
}

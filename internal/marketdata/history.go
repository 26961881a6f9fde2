package marketdata

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/folio/internal/analytics"
)

// fetchConcurrency bounds parallel per-symbol history loads.
const fetchConcurrency = 4

// HistorySource loads the close history of one symbol.
type HistorySource interface {
	History(ctx context.Context, symbol string, r Range) ([]analytics.PricePoint, error)
}

// MonthlyCloses keeps the last close of each calendar month, in date order. Non-positive
// closes are dropped.
func MonthlyCloses(points []analytics.PricePoint) []analytics.PricePoint {
	sorted := make([]analytics.PricePoint, 0, len(points))
	for _, p := range points {
		if p.Close > 0 {
			sorted = append(sorted, p)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	out := make([]analytics.PricePoint, 0, len(sorted))
	for _, p := range sorted {
		if n := len(out); n > 0 && sameMonth(out[n-1], p) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

func sameMonth(a, b analytics.PricePoint) bool {
	ay, am, _ := a.Date.UTC().Date()
	by, bm, _ := b.Date.UTC().Date()
	return ay == by && am == bm
}

// MonthlyReturns converts a close history into at most months monthly log returns,
// keeping the most recent ones.
func MonthlyReturns(points []analytics.PricePoint, months int) []float64 {
	closes := analytics.Closes(MonthlyCloses(points))
	returns := analytics.Returns(closes, analytics.WithLogReturns(), analytics.WithPrecision(10))
	if months > 0 && len(returns) > months {
		returns = returns[len(returns)-months:]
	}
	return returns
}

// returnsFromHistory loads every symbol from src. A failing symbol gets an empty series so
// the caller can substitute it; the request fails only when every symbol failed.
func returnsFromHistory(ctx context.Context, src HistorySource, req Request, logger zerolog.Logger) (*Result, error) {
	r := req.Range.OrDefault()
	months := MonthsForRange(r)

	series := make([][]float64, len(req.Symbols))
	errs := make([]error, len(req.Symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, symbol := range req.Symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			points, err := src.History(gctx, symbol, r)
			if err != nil {
				errs[i] = err
				return nil
			}
			series[i] = MonthlyReturns(points, months)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	returns := make(map[string][]float64, len(req.Symbols))
	var firstErr error
	failed := 0
	for i, symbol := range req.Symbols {
		if errs[i] != nil {
			failed++
			if firstErr == nil {
				firstErr = errs[i]
			}
			logger.Warn().Err(errs[i]).Str("symbol", symbol).Msg("price history unavailable")
			returns[symbol] = []float64{}
			continue
		}
		returns[symbol] = series[i]
	}
	if len(req.Symbols) > 0 && failed == len(req.Symbols) {
		return nil, fmt.Errorf("%w: %v", ErrNoData, firstErr)
	}

	return &Result{
		Returns: returns,
		Meta:    Meta{Source: SourceExternal, Range: r},
	}, nil
}

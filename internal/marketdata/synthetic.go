package marketdata

import (
	"context"
	"unicode/utf16"
)

const (
	syntheticBaseReturn = 0.006
	syntheticDriftSpan  = 0.02
	syntheticShockSpan  = 0.04
	syntheticDriftDecay = 0.98
)

// HashString folds the UTF-16 code units of s into a 31-bit seed (hash*31 + unit with
// 32-bit wraparound). It never returns 0.
func HashString(s string) uint32 {
	var hash int32
	for _, unit := range utf16.Encode([]rune(s)) {
		hash = (hash << 5) - hash + int32(unit)
	}
	abs := int64(hash)
	if abs < 0 {
		abs = -abs
	}
	if abs == 0 {
		return 1
	}
	return uint32(abs)
}

// PRNG is a mulberry32 generator. It is deterministic for a seed and not safe for
// concurrent use.
type PRNG struct {
	state uint32
}

// NewPRNG seeds a generator.
func NewPRNG(seed uint32) *PRNG {
	return &PRNG{state: seed}
}

// Float64 returns the next value in [0, 1).
func (p *PRNG) Float64() float64 {
	p.state += 0x6D2B79F5
	t := p.state
	t = (t ^ (t >> 15)) * (t | 1)
	t = (t + (t^(t>>7))*(t|61)) ^ t
	return float64(t^(t>>14)) / 4294967296
}

// GenerateSyntheticReturns returns a deterministic monthly return series for symbol:
// a decaying per-symbol drift plus a uniform shock around a 0.6% base.
func GenerateSyntheticReturns(symbol string, months int) []float64 {
	random := NewPRNG(HashString(symbol))
	series := make([]float64, 0, max(months, 0))
	drift := (random.Float64() - 0.5) * syntheticDriftSpan

	for i := 0; i < months; i++ {
		shock := (random.Float64() - 0.5) * syntheticShockSpan
		series = append(series, syntheticBaseReturn+drift+shock)
		drift *= syntheticDriftDecay
	}
	return series
}

// SyntheticProvider serves GenerateSyntheticReturns for every requested symbol. It never
// fails and is the fallback for every live provider.
type SyntheticProvider struct{}

// NewSyntheticProvider returns the deterministic provider.
func NewSyntheticProvider() *SyntheticProvider {
	return &SyntheticProvider{}
}

// GetReturns implements Provider.
func (SyntheticProvider) GetReturns(_ context.Context, req Request) (*Result, error) {
	r := req.Range.OrDefault()
	months := MonthsForRange(r)

	returns := make(map[string][]float64, len(req.Symbols))
	for _, symbol := range req.Symbols {
		returns[symbol] = GenerateSyntheticReturns(symbol, months)
	}
	return &Result{
		Returns: returns,
		Meta:    Meta{Source: SourceSynthetic, Range: r},
	}, nil
}

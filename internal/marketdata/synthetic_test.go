package marketdata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashString(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"", 1},
		{"AAA", 64545},
		{"VTI", 85323},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, HashString(tt.in))
		})
	}
	assert.NotZero(t, HashString("a very long symbol name that overflows thirty-two bits"))
}

func TestPRNG(t *testing.T) {
	p := NewPRNG(1)
	assert.InDelta(t, 0.6270739405881613, p.Float64(), 1e-15)

	for i := 0; i < 1000; i++ {
		v := p.Float64()
		require.GreaterOrEqual(t, v, 0.0)
		require.Less(t, v, 1.0)
	}
}

func TestGenerateSyntheticReturns(t *testing.T) {
	got := GenerateSyntheticReturns("AAA", 3)
	require.Len(t, got, 3)
	assert.InDelta(t, 0.0028332118028774854, got[0], 1e-12)
	assert.InDelta(t, 0.0049880599244497715, got[1], 1e-12)
	assert.InDelta(t, 0.019350813920004293, got[2], 1e-12)

	assert.Equal(t, GenerateSyntheticReturns("VTI", 60), GenerateSyntheticReturns("VTI", 60))
	assert.NotEqual(t, GenerateSyntheticReturns("VTI", 12), GenerateSyntheticReturns("BND", 12))
	assert.Empty(t, GenerateSyntheticReturns("VTI", 0))

	for _, v := range GenerateSyntheticReturns("QQQ", 180) {
		assert.GreaterOrEqual(t, v, -0.024)
		assert.LessOrEqual(t, v, 0.036)
	}
}

func TestSyntheticProvider(t *testing.T) {
	p := NewSyntheticProvider()

	res, err := p.GetReturns(context.Background(), Request{Symbols: []string{"VTI", "BND"}})
	require.NoError(t, err)
	assert.Equal(t, Meta{Source: SourceSynthetic, FromCache: false, Range: Range5Y}, res.Meta)
	assert.Len(t, res.Returns["VTI"], 60)
	assert.Len(t, res.Returns["BND"], 60)

	res, err = p.GetReturns(context.Background(), Request{Symbols: []string{"VTI"}, Range: Range1Y})
	require.NoError(t, err)
	assert.Len(t, res.Returns["VTI"], 12)
	assert.Equal(t, Range1Y, res.Meta.Range)
}

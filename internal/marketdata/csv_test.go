package marketdata

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestCSVProvider_GetReturns(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAA.csv", "date,close\n2024-01-31,100\n2024-02-29,110\n2024-03-15,115\n2024-03-28,121\n")
	writeCSV(t, dir, "BAD.csv", "date,close\n2024-01-31,abc\n")

	p := NewCSVProvider(dir, zerolog.Nop())
	res, err := p.GetReturns(context.Background(), Request{Symbols: []string{"aaa", "BAD", "NONE"}, Range: Range1Y})
	require.NoError(t, err)

	require.Len(t, res.Returns["aaa"], 2)
	assert.InDelta(t, math.Log(1.1), res.Returns["aaa"][0], 1e-9)
	assert.InDelta(t, math.Log(1.1), res.Returns["aaa"][1], 1e-9)
	assert.Empty(t, res.Returns["BAD"])
	assert.Empty(t, res.Returns["NONE"])
	assert.Equal(t, SourceExternal, res.Meta.Source)
}

func TestCSVProvider_WindowKeepsRecentMonths(t *testing.T) {
	dir := t.TempDir()
	body := "date,close\n"
	price := 100.0
	for year := 2020; year <= 2024; year++ {
		for month := 1; month <= 12; month++ {
			body += fmt.Sprintf("%d-%02d-01,%.0f\n", year, month, price)
			price++
		}
	}
	writeCSV(t, dir, "SPY.csv", body)

	p := NewCSVProvider(dir, zerolog.Nop())
	points, err := p.History(context.Background(), "SPY", Range1Y)
	require.NoError(t, err)
	assert.Len(t, points, 13)
	assert.Equal(t, 159.0, points[len(points)-1].Close)

	res, err := p.GetReturns(context.Background(), Request{Symbols: []string{"SPY"}, Range: Range1Y})
	require.NoError(t, err)
	assert.Len(t, res.Returns["SPY"], 12)
}

func TestCSVProvider_MissingEverything(t *testing.T) {
	p := NewCSVProvider(t.TempDir(), zerolog.Nop())
	_, err := p.GetReturns(context.Background(), Request{Symbols: []string{"NONE"}})
	assert.ErrorIs(t, err, ErrNoData)
}

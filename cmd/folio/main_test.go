package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/folio/internal/config"
	"github.com/sawpanic/folio/internal/data/cache"
	"github.com/sawpanic/folio/internal/marketdata"
	"github.com/sawpanic/folio/internal/optimize"
	"github.com/sawpanic/folio/internal/service"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "--log-level", "error", "--log-format", "json"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestLoadPortfolio(t *testing.T) {
	demo, err := loadPortfolio("", nil)
	require.NoError(t, err)
	assert.Equal(t, service.DemoPortfolio().Symbols(), demo.Symbols())

	adhoc, err := loadPortfolio("ignored.json", []string{" voo", "bnd ", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"VOO", "BND"}, adhoc.Symbols())

	path := filepath.Join(t.TempDir(), "p.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"mine","assets":[{"asset":{"symbol":"GLD"},"weight":1}],"settings":{"timeRange":"3Y"}}`), 0o600))
	file, err := loadPortfolio(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "mine", file.Name)
	assert.Equal(t, marketdata.Range3Y, file.Settings.TimeRange)

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))
	_, err = loadPortfolio(path, nil)
	assert.Error(t, err)
}

func TestPortfolioFlagsResolve(t *testing.T) {
	opts := &globalOptions{cfg: config.Default()}

	f := portfolioFlags{symbols: []string{"VOO", "BND"}, minWeight: -1, maxWeight: -1}
	_, callOpts, err := f.resolve(opts)
	require.NoError(t, err)
	assert.Equal(t, opts.cfg.MarketData.Range, callOpts.Range)
	assert.Nil(t, callOpts.Constraints)

	// a portfolio's own range wins over the configured default
	f = portfolioFlags{minWeight: -1, maxWeight: -1}
	_, callOpts, err = f.resolve(opts)
	require.NoError(t, err)
	assert.Empty(t, callOpts.Range)

	f = portfolioFlags{rangeToken: "10y", minWeight: 0.1, maxWeight: -1}
	_, callOpts, err = f.resolve(opts)
	require.NoError(t, err)
	assert.Equal(t, marketdata.Range10Y, callOpts.Range)
	require.NotNil(t, callOpts.Constraints)
	assert.Equal(t, 0.1, callOpts.Constraints.MinWeight)
	assert.Equal(t, opts.cfg.Optimizer.MaxWeight, callOpts.Constraints.MaxWeight)

	f = portfolioFlags{minWeight: 0.7, maxWeight: 0.5}
	_, _, err = f.resolve(opts)
	assert.Error(t, err)

	f = portfolioFlags{rangeToken: "2W", minWeight: -1, maxWeight: -1}
	_, _, err = f.resolve(opts)
	assert.ErrorIs(t, err, marketdata.ErrUnknownRange)
}

func TestOptimizeCommand_JSON(t *testing.T) {
	out, err := runRoot(t, "optimize", "--symbols", "VOO,BND,GLD", "--range", "3Y", "-o", "json")
	require.NoError(t, err)

	var resp service.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Summaries, len(optimize.Strategies()))
	assert.Equal(t, marketdata.Range3Y, resp.Meta.Range)
	for _, s := range resp.Summaries {
		require.Len(t, s.Weights, 3)
		var total float64
		for _, w := range s.Weights {
			total += w.Weight
		}
		assert.InDelta(t, 1.0, total, 1e-6, s.Strategy)
	}
}

func TestOptimizeCommand_TableAndStrategy(t *testing.T) {
	out, err := runRoot(t, "optimize", "--strategy", "min_variance")
	require.NoError(t, err)
	assert.Contains(t, out, "min_variance")
	assert.NotContains(t, out, "max_sharpe")

	_, err = runRoot(t, "optimize", "--strategy", "yolo")
	assert.ErrorIs(t, err, optimize.ErrUnknownStrategy)
}

func TestFrontierCommand(t *testing.T) {
	out, err := runRoot(t, "frontier", "--symbols", "VOO,BND", "--points", "5", "-o", "json")
	require.NoError(t, err)

	var resp service.FrontierResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Points, 5)
	assert.Equal(t, []string{"VOO", "BND"}, resp.Symbols)
	for i := 1; i < len(resp.Points); i++ {
		assert.Greater(t, resp.Points[i].Risk, resp.Points[i-1].Risk)
		assert.Greater(t, resp.Points[i].Return, resp.Points[i-1].Return)
	}

	table, err := runRoot(t, "frontier", "--points", "3")
	require.NoError(t, err)
	assert.Contains(t, table, "risk %")
}

func TestWriteAnalytics_Table(t *testing.T) {
	beta := 1.1
	var buf bytes.Buffer
	require.NoError(t, writeAnalytics(&buf, "table", &service.AssetAnalytics{
		Symbol:    "VOO",
		Benchmark: "VTI",
		Periods:   36,
		Beta:      &beta,
	}))
	assert.Contains(t, buf.String(), "beta vs VTI")
	assert.NotContains(t, buf.String(), "correlation")
}

func TestWorkerCommand_RequiresQueue(t *testing.T) {
	_, err := runRoot(t, "worker")
	assert.ErrorContains(t, err, "queue is disabled")
}

func TestPricesImport_RequiresDatabase(t *testing.T) {
	_, err := runRoot(t, "prices", "import", "--from", "csv", "VOO")
	assert.ErrorContains(t, err, "database is disabled")

	_, err = runRoot(t, "prices", "import", "--from", "ftp", "VOO")
	assert.ErrorContains(t, err, "unsupported import source")
}

func TestNewMarketTable_SweepsExpiredEntries(t *testing.T) {
	md := config.Default().MarketData
	md.TTL = 20 * time.Millisecond
	table := newMarketTable(md)
	defer table.Stop()

	table.Set("VOO|5Y", 1, 0)
	require.Equal(t, 1, table.Stats().Entries)

	require.Eventually(t, func() bool {
		s := table.Stats()
		return s.Entries == 0 && s.CleanupRuns > 0
	}, time.Second, 5*time.Millisecond)
}

func TestNewMarketTable_DefaultsTTL(t *testing.T) {
	md := config.Default().MarketData
	md.TTL = 0
	table := newMarketTable(md)
	defer table.Stop()

	table.Set("VOO|5Y", 1, 0)
	_, ok := table.Get("VOO|5Y")
	assert.True(t, ok)
	assert.Zero(t, table.Stats().CleanupRuns, "janitor runs once per %s", cache.DefaultTTL)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sawpanic/folio/internal/marketdata"
	"github.com/sawpanic/folio/internal/optimize"
	"github.com/sawpanic/folio/internal/service"
)

// portfolioFlags are shared by optimize and frontier.
type portfolioFlags struct {
	portfolioPath string
	symbols       []string
	rangeToken    string
	minWeight     float64
	maxWeight     float64
	output        string
}

func (f *portfolioFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.portfolioPath, "portfolio", "p", "", "Portfolio JSON file (default: demo portfolio)")
	fs.StringSliceVarP(&f.symbols, "symbols", "s", nil, "Comma-separated symbols, overrides --portfolio")
	fs.StringVarP(&f.rangeToken, "range", "r", "", "Time range (1Y|3Y|5Y|10Y|MAX)")
	fs.Float64Var(&f.minWeight, "min-weight", -1, "Minimum weight per asset (default from config)")
	fs.Float64Var(&f.maxWeight, "max-weight", -1, "Maximum weight per asset (default from config)")
	fs.StringVarP(&f.output, "output", "o", "table", "Output format (table|json)")
}

// resolve builds the portfolio and per-call options from flags and configuration.
func (f *portfolioFlags) resolve(opts *globalOptions) (service.Portfolio, service.Options, error) {
	portfolio, err := loadPortfolio(f.portfolioPath, f.symbols)
	if err != nil {
		return service.Portfolio{}, service.Options{}, err
	}

	var callOpts service.Options
	token := f.rangeToken
	if token == "" && portfolio.Settings.TimeRange == "" {
		token = string(opts.cfg.MarketData.Range)
	}
	if token != "" {
		r, err := marketdata.ParseRange(token)
		if err != nil {
			return service.Portfolio{}, service.Options{}, err
		}
		callOpts.Range = r
	}

	if f.minWeight >= 0 || f.maxWeight >= 0 {
		c := opts.cfg.Optimizer.Constraints()
		if f.minWeight >= 0 {
			c.MinWeight = f.minWeight
		}
		if f.maxWeight >= 0 {
			c.MaxWeight = f.maxWeight
		}
		if c.MinWeight > c.MaxWeight || c.MaxWeight > 1 {
			return service.Portfolio{}, service.Options{}, fmt.Errorf("invalid weight bounds [%g, %g]", c.MinWeight, c.MaxWeight)
		}
		callOpts.Constraints = c
	}
	return portfolio, callOpts, nil
}

// loadPortfolio reads a portfolio JSON file, builds one from symbols, or returns the demo.
func loadPortfolio(path string, symbols []string) (service.Portfolio, error) {
	if len(symbols) > 0 {
		p := service.Portfolio{Name: "ad hoc"}
		for _, s := range symbols {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s == "" {
				continue
			}
			p.Assets = append(p.Assets, service.Holding{Asset: service.Asset{Symbol: s}})
		}
		return p, nil
	}
	if path == "" {
		return service.DemoPortfolio(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return service.Portfolio{}, fmt.Errorf("failed to read portfolio: %w", err)
	}
	var p service.Portfolio
	if err := json.Unmarshal(data, &p); err != nil {
		return service.Portfolio{}, fmt.Errorf("failed to parse portfolio %s: %w", path, err)
	}
	return p, nil
}

func newOptimizeCommand(opts *globalOptions) *cobra.Command {
	var (
		flags    portfolioFlags
		strategy string
	)
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run every allocation strategy over a portfolio",
		Long:  "Runs max_sharpe, min_variance, max_return and risk_parity and prints their summaries",
		Example: `  folio optimize --symbols VOO,BND,GLD --range 3Y
  folio optimize --portfolio portfolio.json --strategy max_sharpe -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			portfolio, callOpts, err := flags.resolve(opts)
			if err != nil {
				return err
			}
			var selected *optimize.Strategy
			if strategy != "" {
				s, err := optimize.ParseStrategy(strategy)
				if err != nil {
					return err
				}
				selected = &s
			}

			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.service.Summaries(cmd.Context(), selected, portfolio, callOpts)
			if err != nil {
				return err
			}
			if selected != nil {
				if _, err := resp.Selected(); err != nil {
					return err
				}
			}
			return writeSummaries(cmd.OutOrStdout(), flags.output, resp)
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&strategy, "strategy", "", "Only show one strategy ("+strategyList()+")")
	return cmd
}

func newFrontierCommand(opts *globalOptions) *cobra.Command {
	var (
		flags  portfolioFlags
		points int
	)
	cmd := &cobra.Command{
		Use:   "frontier",
		Short: "Build the efficient frontier of a portfolio",
		Example: `  folio frontier --symbols VOO,VXUS,BND --points 20
  folio frontier --portfolio portfolio.json -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			portfolio, callOpts, err := flags.resolve(opts)
			if err != nil {
				return err
			}
			if points == 0 {
				points = opts.cfg.Optimizer.FrontierPoints
			}

			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.service.Frontier(cmd.Context(), portfolio, points, callOpts)
			if err != nil {
				return err
			}

			return writeFrontier(cmd.OutOrStdout(), flags.output, resp)
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().IntVarP(&points, "points", "n", 0, "Number of frontier points (default from config)")
	return cmd
}

func newAnalyticsCommand(opts *globalOptions) *cobra.Command {
	var (
		benchmark  string
		rangeToken string
		output     string
	)
	cmd := &cobra.Command{
		Use:     "analytics SYMBOL",
		Short:   "Compute performance metrics of one asset",
		Example: `  folio analytics VOO --benchmark VTI --range 10Y`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := rangeToken
			if token == "" {
				token = string(opts.cfg.MarketData.Range)
			}
			r, err := marketdata.ParseRange(token)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.service.Analytics(cmd.Context(), strings.ToUpper(args[0]), strings.ToUpper(benchmark), r)
			if err != nil {
				return err
			}
			return writeAnalytics(cmd.OutOrStdout(), output, resp)
		},
	}
	cmd.Flags().StringVarP(&benchmark, "benchmark", "b", "", "Benchmark symbol for beta and correlation")
	cmd.Flags().StringVarP(&rangeToken, "range", "r", "", "Time range (1Y|3Y|5Y|10Y|MAX)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table|json)")
	return cmd
}

func strategyList() string {
	names := make([]string, 0, 4)
	for _, s := range optimize.Strategies() {
		names = append(names, string(s))
	}
	return strings.Join(names, "|")
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeSummaries(w io.Writer, format string, resp *service.Response) error {
	if format == "json" {
		return writeJSON(w, resp)
	}

	summaries := resp.Summaries
	if resp.Summary != nil {
		summaries = []service.Summary{*resp.Summary}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "source: %s\trange: %s\tcached: %t\n\n", resp.Meta.Source, resp.Meta.Range, resp.Meta.FromCache)
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\treturn %.4f%%\trisk %.4f%%\tsharpe %.4f\n", s.Strategy, s.ExpectedReturn*100, s.Risk*100, s.SharpeRatio)
		for _, aw := range s.Weights {
			fmt.Fprintf(tw, "  %s\t%.2f%%\t%s\n", aw.Symbol, aw.Weight*100, aw.Name)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func writeFrontier(w io.Writer, format string, resp *service.FrontierResponse) error {
	if format == "json" {
		return writeJSON(w, resp)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "#\trisk %%\treturn %%\t%s\t\n", strings.Join(resp.Symbols, "\t"))
	for i, p := range resp.Points {
		weights := make([]string, len(p.Weights))
		for k, wt := range p.Weights {
			weights[k] = fmt.Sprintf("%.1f", wt*100)
		}
		fmt.Fprintf(tw, "%d\t%.4f\t%.4f\t%s\t\n", i+1, p.Risk*100, p.Return*100, strings.Join(weights, "\t"))
	}
	return tw.Flush()
}

func writeAnalytics(w io.Writer, format string, a *service.AssetAnalytics) error {
	if format == "json" {
		return writeJSON(w, a)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "symbol\t%s\n", a.Symbol)
	fmt.Fprintf(tw, "periods\t%d (%s, %s)\n", a.Periods, a.Meta.Range, a.Meta.Source)
	fmt.Fprintf(tw, "expected return\t%.2f%%\n", a.ExpectedReturn*100)
	fmt.Fprintf(tw, "volatility\t%.2f%%\n", a.Volatility*100)
	fmt.Fprintf(tw, "sharpe\t%.4f\n", a.SharpeRatio)
	fmt.Fprintf(tw, "max drawdown\t%.2f%%\n", a.MaxDrawdown*100)
	if a.Beta != nil {
		fmt.Fprintf(tw, "beta vs %s\t%.4f\n", a.Benchmark, *a.Beta)
	}
	if a.Correlation != nil {
		fmt.Fprintf(tw, "correlation vs %s\t%.4f\n", a.Benchmark, *a.Correlation)
	}
	return tw.Flush()
}

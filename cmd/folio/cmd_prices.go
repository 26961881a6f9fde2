package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/folio/internal/config"
	"github.com/sawpanic/folio/internal/infrastructure/db"
	folog "github.com/sawpanic/folio/internal/log"
	"github.com/sawpanic/folio/internal/marketdata"
	"github.com/sawpanic/folio/internal/metrics"
)

func newPricesCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Manage the price_history table used by the postgres provider",
	}
	cmd.AddCommand(newPricesSchemaCommand(opts))
	cmd.AddCommand(newPricesImportCommand(opts))
	return cmd
}

// openPriceStore connects to the configured database; prices commands need it enabled.
func openPriceStore(cfg *config.Config) (*db.Manager, *db.PriceStore, error) {
	if !cfg.Database.Enabled {
		return nil, nil, errors.New("database is disabled; set database.enabled or PG_DSN")
	}
	manager, err := db.NewManager(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	return manager, db.NewPriceStore(manager.DB(), manager.QueryTimeout()), nil
}

func newPricesSchemaCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the price_history table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, store, err := openPriceStore(opts.cfg)
			if err != nil {
				return err
			}
			defer manager.Close()

			if err := store.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			log.Info().Msg("price_history is ready")
			return nil
		},
	}
}

func newPricesImportCommand(opts *globalOptions) *cobra.Command {
	var (
		from       string
		rangeToken string
	)
	cmd := &cobra.Command{
		Use:   "import SYMBOL...",
		Short: "Load monthly closes into price_history",
		Example: `  folio prices import --from yahoo VOO BND GLD
  folio prices import --from csv --range 10Y VOO`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			r, err := marketdata.ParseRange(rangeToken)
			if err != nil {
				return err
			}

			var source marketdata.HistorySource
			switch strings.ToLower(from) {
			case config.ProviderYahoo:
				reg := metrics.New()
				source = marketdata.NewYahooProvider(cfg.MarketData.Yahoo, nil, log.Logger, reg.BreakerTransition)
			case config.ProviderCSV:
				source = marketdata.NewCSVProvider(cfg.MarketData.CSVDir, log.Logger)
			default:
				return fmt.Errorf("unsupported import source %q (yahoo|csv)", from)
			}

			manager, store, err := openPriceStore(cfg)
			if err != nil {
				return err
			}
			defer manager.Close()

			if err := store.EnsureSchema(cmd.Context()); err != nil {
				return err
			}

			progress := folog.NewProgress(os.Stderr, "import", len(args), term.IsTerminal(int(os.Stderr.Fd())))
			var total, failed int
			for _, arg := range args {
				symbol := strings.ToUpper(arg)
				points, err := source.History(cmd.Context(), symbol, r)
				if err != nil {
					if cmd.Context().Err() != nil {
						return cmd.Context().Err()
					}
					failed++
					log.Warn().Err(err).Str("symbol", symbol).Msg("History fetch failed")
					progress.Increment(symbol + " failed")
					continue
				}

				n, err := store.Upsert(cmd.Context(), symbol, marketdata.MonthlyCloses(points))
				if err != nil {
					return fmt.Errorf("store %s: %w", symbol, err)
				}
				total += n
				progress.Increment(fmt.Sprintf("%s %d rows", symbol, n))
			}
			progress.Finish(fmt.Sprintf("%d rows written", total))

			if failed > 0 {
				return fmt.Errorf("%d of %d symbols failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", config.ProviderYahoo, "Source of closes (yahoo|csv)")
	cmd.Flags().StringVarP(&rangeToken, "range", "r", string(marketdata.RangeMax), "Time range to import")
	return cmd
}

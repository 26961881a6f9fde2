package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/folio/internal/config"
	folog "github.com/sawpanic/folio/internal/log"
)

const (
	appName = "folio"
	version = "v1.0.0"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	cfg        *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Portfolio allocation and risk engine",
		Version: version,
		Long: `folio turns historical return series into allocation recommendations and risk statistics.

It runs four constrained strategies (max_sharpe, min_variance, max_return, risk_parity),
builds efficient frontiers and computes per-asset performance analytics, from the command
line, over HTTP or as a RabbitMQ worker.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "folio.yaml", "Path to the YAML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level override (trace|debug|info|warn|error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format override (auto|console|json)")

	rootCmd.AddCommand(newOptimizeCommand(opts)) // Allocation
	rootCmd.AddCommand(newFrontierCommand(opts)) // Allocation
	rootCmd.AddCommand(newAnalyticsCommand(opts))
	rootCmd.AddCommand(newServeCommand(opts))  // HTTP API
	rootCmd.AddCommand(newWorkerCommand(opts)) // Queue worker
	rootCmd.AddCommand(newSubmitCommand(opts))
	rootCmd.AddCommand(newPricesCommand(opts)) // Data management

	return rootCmd
}

// load reads configuration and configures logging before any command runs.
func (o *globalOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if _, err := folog.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	httpserver "github.com/sawpanic/folio/internal/interfaces/http"
	"github.com/sawpanic/folio/internal/interfaces/http/handlers"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *globalOptions) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Serves /optimization, /frontier, /analytics/{symbol}, /market/{symbol}, /health and
/metrics until interrupted.`,
		Example: `  folio serve --port 8080
  FOLIO_PROVIDER=yahoo folio serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			hopts := []handlers.Option{
				handlers.WithDatabase(a.database),
				handlers.WithVersion(version),
				handlers.WithLogger(a.logger),
			}
			if a.history != nil {
				hopts = append(hopts, handlers.WithHistory(a.history))
			}
			h := handlers.New(a.service, hopts...)

			server := httpserver.NewServer(httpserver.ServerConfig{
				Host:           cfg.Server.Host,
				Port:           cfg.Server.Port,
				ReadTimeout:    cfg.Server.ReadTimeout,
				WriteTimeout:   cfg.Server.WriteTimeout,
				IdleTimeout:    cfg.Server.IdleTimeout,
				RequestTimeout: cfg.Server.RequestTimeout,
				RateLimitRPS:   cfg.Server.RateLimitRPS,
				RateLimitBurst: cfg.Server.RateLimitBurst,
			}, h,
				httpserver.WithMetrics(a.metrics, a.metrics.Handler()),
				httpserver.WithLogger(a.logger),
			)

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return err
			}
			a.logger.Info().Str("addr", cfg.Server.Addr()).Msg("Server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Listen host (default from config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (default from config)")
	return cmd
}

package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/metricgrid-labs/metricgrid/internal/api"
)

func newServeCmd(d *deps) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if addr == "" {
				addr = d.Config().Server.Addr
			}

			logger := d.Logger()
			app, err := NewApp(ctx, d.Config(), logger)
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.requireWarehouse(); err != nil {
				return err
			}

			handlers := api.NewHandlers(app.Evaluator, app.Resolver, app.Worker, app.Store, d.Config().Org, logger)
			server := &http.Server{
				Addr:              addr,
				Handler:           api.NewRouter(handlers),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("api server listening", "addr", addr)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

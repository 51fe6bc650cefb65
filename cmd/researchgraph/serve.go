package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/stategraph/internal/app"
	"github.com/dshills/stategraph/internal/server"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Serves the research workflow over HTTP: POST /runs answers a question, the
/runs/{id} endpoints expose the step journal and events, /metrics exposes
Prometheus metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			addr, _ := cmd.Flags().GetString("addr")

			a, err := app.New(cfg, logger, appOptions...)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(context.Background()); err != nil {
					logger.Warn("shutdown", "error", err)
				}
			}()

			srv := &http.Server{
				Addr: addr,
				Handler: server.NewHandler(server.Deps{
					Runner:   a,
					Graph:    a.Graph,
					Store:    a.Store,
					Events:   a.Events,
					Costs:    a.Costs,
					Gatherer: a.Registry,
					Logger:   logger,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			serverErrors := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", addr, "provider", cfg.Provider, "store", cfg.Store.Driver)
				serverErrors <- srv.ListenAndServe()
			}()

			select {
			case err := <-serverErrors:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					_ = srv.Close()
					return err
				}
				return nil
			}
		},
	}

	addProviderFlags(cmd)
	cmd.Flags().String("addr", ":8080", "Listen address")
	return cmd
}

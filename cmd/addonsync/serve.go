package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/datallboy/addonsync/internal/api"
	"github.com/datallboy/addonsync/internal/engine"
	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and process queued sync runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := bootstrap(ctx, true)
		if err != nil {
			return err
		}
		defer svc.close()

		cfg := svc.app.Config
		log := svc.app.Logger

		runs := engine.NewRunManager(svc.pipeline, svc.store, cfg.Addons, log)
		svc.app.Runs = runs
		go runs.Start(ctx)

		e := echo.New()
		api.RegisterRoutes(e, svc.app)

		srv := &http.Server{Addr: ":" + cfg.Port, Handler: e}
		go func() {
			<-ctx.Done()
			log.Info("Shutting down API server...")
			_ = srv.Shutdown(context.Background())
		}()

		log.Info("API listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

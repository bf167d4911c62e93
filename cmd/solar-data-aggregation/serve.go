package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/solar-data-aggregation/internal/api/http"
	"github.com/i474232898/solar-data-aggregation/internal/poller"
	"github.com/i474232898/solar-data-aggregation/internal/scheduler"
)

var (
	servePort string
	accessLog bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the poll loop and the query API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline(ctx, cfg, appLogger)
		if err != nil {
			return err
		}
		defer p.Close()

		// Login, solar fetch, persist and forward each get one timeout's worth.
		poll := poller.New(p.service, cfg.PollInterval, 4*cfg.HTTPTimeout, appLogger.Named("poller"))
		poll.Start(ctx)

		sched := scheduler.New(p.zone, p.service, appLogger.Named("scheduler"))
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer sched.Stop()
		go sched.Warm()

		app := httpapi.NewApp(httpapi.AppOptions{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AccessLog:      accessLog,
		})
		httpapi.RegisterRoutes(app, httpapi.Dependencies{
			Service: p.service,
			Poller:  poll,
			Store:   p.store,
			Zone:    p.zone,
			Logger:  appLogger.Named("api"),
		})

		port := cfg.Port
		if servePort != "" {
			port = servePort
		}

		errCh := make(chan error, 1)
		go func() {
			appLogger.Info("listening", zap.String("port", port))
			errCh <- app.Listen(":" + port)
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				appLogger.Error("fiber server stopped", zap.Error(err))
			}
			stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			appLogger.Error("error during shutdown", zap.Error(err))
		}

		select {
		case <-poll.Done():
		case <-shutdownCtx.Done():
			appLogger.Warn("poller did not stop before shutdown deadline")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides PORT)")
	serveCmd.Flags().BoolVar(&accessLog, "access-log", true, "log every HTTP request")
	rootCmd.AddCommand(serveCmd)
}

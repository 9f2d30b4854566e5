package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/genx3d/genx3d/internal/modelstore"
	"github.com/genx3d/genx3d/internal/monitoring"
	"github.com/genx3d/genx3d/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the generation API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		api := server.New(server.Config{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
			StaticPrefix:   cfg.Models.URLPrefix,
			Format:         cfg.Generation.Format,
			CleanupMaxAge:  time.Duration(cfg.Cleanup.MaxAgeHours) * time.Hour,
		}, server.Deps{
			Generator: env.Pipeline,
			Chat:      env.Router,
			Models:    env.Models,
			Health:    env.Collector,
			Breakers:  env.Breakers,
			Metrics:   env.Metrics,
			Gatherer:  env.Registry,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)

		if cfg.Cleanup.Enabled {
			sweeper := modelstore.NewSweeper(env.Models,
				time.Duration(cfg.Cleanup.IntervalMins)*time.Minute,
				time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour,
				env.Metrics.ObserveSweep,
			)
			g.Go(func() error {
				sweeper.Run(gctx)
				return nil
			})
		}

		checker := monitoring.NewChecker(env.Collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		g.Go(func() error {
			checker.Run(gctx)
			return nil
		})

		// Graceful shutdown
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port), zap.String("models_dir", env.Models.Dir()))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

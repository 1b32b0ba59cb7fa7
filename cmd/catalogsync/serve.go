package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-catalog-sync/fetcher"
	"github.com/aluiziolira/go-catalog-sync/importer"
)

func newServeCmd(a *app) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Fetch feeds and reconcile the catalog directory on an interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("interval") {
				a.cfg.ReconcileInterval = interval
			}
			if a.cfg.ReconcileInterval <= 0 {
				return fmt.Errorf("interval must be positive, got %s", a.cfg.ReconcileInterval)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			imp, cleanup, err := a.newImporter(ctx, importer.NewMetrics(registry))
			if err != nil {
				return err
			}
			defer cleanup()

			var f *fetcher.Fetcher
			if len(a.cfg.FeedURLs) > 0 {
				f, err = fetcher.New(a.cfg,
					fetcher.WithLogger(a.logger),
					fetcher.WithMetrics(fetcher.NewMetrics(registry)),
				)
				if err != nil {
					return err
				}
			}

			metricsServer := a.startMetricsServer(registry)
			defer a.stopMetricsServer(metricsServer)

			a.logger.Info().
				Str("dir", a.cfg.CatalogDir).
				Dur("interval", a.cfg.ReconcileInterval).
				Int("feeds", len(a.cfg.FeedURLs)).
				Msg("catalog sync started")

			g, gctx := errgroup.WithContext(ctx)
			if f != nil {
				g.Go(func() error {
					a.fetchLoop(gctx, f)
					return nil
				})
			}
			g.Go(func() error {
				return imp.RunPeriodic(gctx, a.cfg.ReconcileInterval)
			})
			err = g.Wait()

			a.logger.Info().Msg("catalog sync stopped")
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "reconcile interval (overrides RECONCILE_INTERVAL)")
	return cmd
}

// fetchLoop downloads the configured feeds immediately and then every reconcile interval.
func (a *app) fetchLoop(ctx context.Context, f *fetcher.Fetcher) {
	run := func() {
		if _, err := f.Run(ctx, a.cfg.FeedURLs); err != nil {
			a.logger.Error().Err(err).Msg("feed fetch failed")
		}
	}

	run()
	ticker := time.NewTicker(a.cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

func (a *app) startMetricsServer(registry *prometheus.Registry) *http.Server {
	if a.cfg.MetricsAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	a.logger.Info().Str("addr", a.cfg.MetricsAddr).Msg("metrics server enabled")
	return server
}

func (a *app) stopMetricsServer(server *http.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("metrics server shutdown failed")
	}
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mdstore/internal/api"
	"mdstore/internal/app"
	"mdstore/internal/metrics"
	"mdstore/internal/middleware"
	"mdstore/internal/service/catalog"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalog over HTTP",
		Long: `Serve a read-only JSON view of the catalog under /api/v1, with /healthz
and Prometheus metrics on /metrics. With MDSTORE_FLUSH_SCHEDULE set the store
is also flushed on that cron schedule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.storeConfig()
			if err != nil {
				return err
			}
			if listen == "" {
				listen = cfg.ListenAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := metrics.New()
			return opts.withStore(ctx, m, func(s *catalog.Store) error {
				if cfg.FlushSchedule != "" {
					sched, err := app.NewFlushScheduler(s, cfg.FlushSchedule, opts.logger)
					if err != nil {
						return err
					}
					sched.Start()
					defer sched.Stop()
				}

				handler := api.NewRouter(ctx, s, api.RouterConfig{
					Logger:  opts.logger,
					Metrics: m,
					RateLimit: middleware.RateLimitConfig{
						RequestsPerSecond: cfg.RateLimitRPS,
						Burst:             cfg.RateLimitBurst,
					},
				})
				return serveHTTP(ctx, listen, handler, opts)
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from MDSTORE_LISTEN_ADDR or :8080)")
	return cmd
}

// serveHTTP runs the server until ctx is done, then shuts it down gracefully.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, opts *rootOptions) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		opts.logger.Info("mdstore listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		opts.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

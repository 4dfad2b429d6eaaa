package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shobhitrajxyz/anonymate-app/internal/config"
	"github.com/shobhitrajxyz/anonymate-app/internal/geo"
	"github.com/shobhitrajxyz/anonymate-app/internal/logging"
	"github.com/shobhitrajxyz/anonymate-app/internal/metrics"
	"github.com/shobhitrajxyz/anonymate-app/internal/server"
	"github.com/shobhitrajxyz/anonymate-app/internal/signaling"
	"github.com/shobhitrajxyz/anonymate-app/internal/version"
)

const shutdownTimeout = 10 * time.Second

var serveOpts config.ServerOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the matchmaking and signaling broker",
	Long: `Run the broker. Clients connect to /ws, send join_queue to be paired,
and exchange WebRTC signals through the room they are matched into.

Examples:
  anonymate serve
  anonymate serve --port 8080 --origins https://anonymate.app
  REDIS_ADDR=localhost:6379 anonymate serve`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServer(serveOpts)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logging.Init(slog.LevelInfo))
	},
}

func serve(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger) error {
	m := metrics.New()

	cache, closeCache := geo.NewCache(ctx, cfg.RedisAddr, logger)
	defer func() {
		if err := closeCache(); err != nil {
			logger.Warn("closing geo cache", "err", err)
		}
	}()

	resolver := geo.NewResolver(geo.Options{
		Endpoint: cfg.GeoEndpoint,
		Timeout:  cfg.GeoTimeout,
		CacheTTL: cfg.GeoCacheTTL,
		Cache:    cache,
		Logger:   logger,
		Metrics:  m,
	})

	hub := signaling.NewHub(signaling.Options{
		Logger:      logger,
		Metrics:     m,
		Resolver:    resolver,
		GeoTimeout:  cfg.GeoTimeout,
		SignalRate:  cfg.SignalRate,
		SignalBurst: cfg.SignalBurst,
	})
	go hub.Run()
	defer hub.Stop()

	srv := server.New(cfg, hub, m, logger)

	l, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}

	logger.Info("starting broker",
		"version", version.Version,
		"addr", cfg.Addr(),
		"origins", cfg.AllowedOrigins)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.IntVarP(&serveOpts.Port, "port", "p", 0, "Port to listen on (env PORT, default 3001)")
	f.StringVar(&serveOpts.AllowedOrigins, "origins", "", "Comma-separated allowed origins (env ALLOWED_ORIGINS)")
	f.StringVar(&serveOpts.GeoEndpoint, "geo-endpoint", "", "IP geolocation endpoint prefix (env GEO_ENDPOINT)")
	f.DurationVar(&serveOpts.GeoTimeout, "geo-timeout", 0, "Geolocation lookup timeout (env GEO_TIMEOUT)")
	f.DurationVar(&serveOpts.GeoCacheTTL, "geo-cache-ttl", 0, "How long resolved countries are cached (env GEO_CACHE_TTL)")
	f.StringVar(&serveOpts.RedisAddr, "redis", "", "Redis address for the shared geo cache (env REDIS_ADDR)")
	f.Float64Var(&serveOpts.SignalRate, "signal-rate", 0, "Inbound frames per second per connection (env SIGNAL_RATE)")
	f.IntVar(&serveOpts.SignalBurst, "signal-burst", 0, "Inbound frame burst per connection (env SIGNAL_BURST)")
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"transitlive/internal/cache"
	"transitlive/internal/config"
	"transitlive/internal/handler"
	"transitlive/internal/hub"
	"transitlive/internal/ingestor"
	"transitlive/internal/metrics"
	"transitlive/internal/middleware"
	"transitlive/internal/publisher"
	"transitlive/internal/routedetail"
	"transitlive/internal/schedule"
	"transitlive/internal/store"
	"transitlive/internal/tracker"
	"transitlive/pkg/gtfsrt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting transitlive server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"db_driver", cfg.DBDriver,
		"poll_interval", cfg.PollInterval,
		"redis_enabled", cfg.RedisEnabled,
		"nats_enabled", cfg.NATSURL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := store.Open(ctx, store.Options{
		Driver:       cfg.DBDriver,
		DSN:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxConns,
		ConnectRetry: cfg.DBConnectFor,
	}, logger)
	if err != nil {
		return err
	}
	gtfsStore := store.NewGTFSStore(db)
	defer gtfsStore.Close()

	mcol := metrics.NewCollector(cfg.PollInterval)
	feedClient := gtfsrt.NewClient(cfg.FeedTimeout)
	vehicles := tracker.New(cfg.VehicleStaleAfter)
	wsHub := hub.NewHub(logger, mcol)

	broadcasters := []ingestor.Broadcaster{wsHub}
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, mcol, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		broadcasters = append(broadcasters, pub)
	}

	tripRoutes := cache.NewTripRouteCache(gtfsStore, cfg.TripCacheSize, cfg.TripCacheTTL, logger)
	ing := ingestor.New(feedClient, tripRoutes, vehicles, cfg, mcol, logger, broadcasters...)

	var details handler.RouteDetailSource = routedetail.NewAggregator(gtfsStore, logger)
	var warmer *cache.CacheWarmer
	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Warn("redis unavailable, route details served live", "error", err)
		} else {
			defer redisCache.Close()
			warmer = cache.NewCacheWarmer(redisCache, details, cfg.CacheTTL, logger)
			details = warmer
		}
	}

	var rateLimit func(http.Handler) http.Handler
	if cfg.RateLimitPerWindow > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, mcol, logger)
		go limiter.RunCleanup(ctx)
		rateLimit = limiter.Middleware
	}

	router := handler.NewRouter(handler.Routes{
		GTFS: handler.NewGTFSHandler(gtfsStore, schedule.NewAssembler(gtfsStore, logger),
			details, cfg.ServiceLocation, logger),
		Realtime: handler.NewRealtimeHandler(feedClient, cfg.FeedTripUpdatesURL, cfg.FeedAlertsURL,
			cfg.FeedTimeout, logger),
		Vehicles:       handler.NewHTTPHandler(vehicles),
		Health:         handler.NewHealthHandler(ing, gtfsStore, vehicles),
		WS:             handler.NewWSHandler(wsHub, cfg.WSSendBuffer, cfg.WSWriteTimeout, cfg.CORSAllowedOrigins, logger),
		Metrics:        mcol.Handler(),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit:      rateLimit,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go wsHub.Run(ctx)
	go ing.Run(ctx)

	if warmer != nil {
		go func() {
			if err := warmer.WarmAll(ctx); err != nil {
				logger.Warn("initial cache warm failed", "error", err)
			}
			warmer.ScheduleRefresh(ctx, cfg.CacheRefreshInterval)
		}()
	}

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := wsHub.Wait(shutdownCtx); err != nil {
		logger.Warn("websocket clients did not close in time", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	select {
	case err := <-srvErr:
		return err
	default:
		return nil
	}
}

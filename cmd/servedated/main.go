package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"servedate/internal/api"
	"servedate/internal/clock"
	"servedate/internal/config"
	"servedate/internal/events"
	"servedate/internal/menucache"
	"servedate/internal/metrics"
	"servedate/internal/ordercache"
	"servedate/internal/ordering"
	"servedate/internal/rollover"
	"servedate/internal/servertime"
	"servedate/internal/slots"
	"servedate/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type slotStore interface {
	ordercache.Storage
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	config.LoadEnv()

	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfgPath := config.PathFromEnv()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfgPath).Msg("failed to load config")
	}
	if !cfg.Log.Console {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	setLogLevel(cfg.Log.Level, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	}

	store, err := openStorage(cfg, rdb)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("open storage error")
	}
	defer store.Close()
	if rdb != nil && cfg.Storage.Driver != config.DriverRedis {
		defer rdb.Close()
	}

	bus := events.NewEventBus()
	source := clock.NewSource(nil)

	evaluator, err := slots.NewEvaluator(source, cfg.Schedule())
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid slot schedule")
	}

	cache := ordercache.New(store, source, &logger, ordercache.WithKey(cfg.Storage.Key))

	deps := api.Deps{
		Clock:      source,
		Evaluator:  evaluator,
		LastOrder:  cache,
		WindowDays: cfg.Business.WindowDays,
		MaxDays:    cfg.Business.ExtendedWindowDays,
	}

	if cfg.ServerTime.Enabled {
		client := servertime.NewClient(
			cfg.ServerTime.BaseURL,
			cfg.ServerTime.APIKey,
			&http.Client{Timeout: cfg.ServerTimeTimeout()},
			servertime.RetryConfig{MaxAttempts: cfg.ServerTime.RetryAttempts},
			&logger,
		)
		poller := servertime.NewPoller(client, source, bus, cfg.PollInterval(), cfg.MinRefresh(), &logger)
		deps.Refresher = poller
		go poller.Start(ctx)
	} else {
		logger.Warn().Msg("server time sync disabled, business day follows the device clock")
	}

	var menus *menucache.Cache
	if ttl := cfg.MenuCacheTTL(); ttl > 0 && rdb != nil {
		menus = menucache.New(rdb, ttl, &logger)
		menus.Subscribe(bus)
	}

	if cfg.BackendEnabled() {
		backendClient := &http.Client{Timeout: cfg.BackendTimeout()}
		sender := ordering.NewHTTPSender(cfg.Backend.BaseURL, cfg.Backend.APIKey, backendClient)
		deps.Orders = ordering.NewSubmitter(evaluator, cfg.Business.WindowDays, sender, cache, bus, &logger)

		fetcher := menucache.NewHTTPFetcher(cfg.Backend.BaseURL, cfg.Backend.APIKey, backendClient)
		deps.Menus = menucache.NewLoader(menus, fetcher, &logger)
	} else {
		logger.Warn().Msg("backend.base_url not set, ordering and menus are disabled")
	}

	bus.Subscribe(events.TypeServeDateRolled, func(e events.Event) error {
		var p events.ServeDateRolled
		if err := e.Decode(&p); err != nil {
			return err
		}
		logger.Info().Str("from", p.From).Str("to", p.To).Msg("serve date rolled")
		return nil
	})
	bus.Subscribe(events.TypeOrderCachePurged, func(e events.Event) error {
		var p events.OrderCachePurged
		if err := e.Decode(&p); err != nil {
			return err
		}
		logger.Info().Str("serve_date", p.ServeDate).Str("reason", p.Reason).Msg("cached order purged")
		return nil
	})

	watcher := rollover.NewWatcher(source, cache, bus, cfg.RolloverInterval(), &logger)
	go watcher.Start(ctx)

	if err := config.Watch(ctx, cfgPath, 30*time.Second, func(updated *config.Config) {
		setLogLevel(updated.Log.Level, &logger)
		logger.Info().Time("reloaded_at", time.Now()).Msg("config reloaded")
	}); err != nil {
		logger.Error().Err(err).Msg("config watch disabled")
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8081
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, store, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	srv := api.NewHTTPServer(deps, cfg.API.Port, &logger)
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("today", evaluator.Today().String()).Msg("servedate started")
	if err := srv.Start(); err != nil {
		logger.Error().Err(err).Msg("calendar API error")
	}
	watcher.Stop()
}

func openStorage(cfg *config.Config, rdb *redis.Client) (slotStore, error) {
	switch cfg.Storage.Driver {
	case config.DriverRedis:
		return storage.NewRedisStore(rdb, cfg.Redis.Prefix, cfg.StorageTTL()), nil
	case config.DriverSQLite:
		store, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return storage.NewMemoryStore(), nil
	}
}

func setLogLevel(level string, logger *zerolog.Logger) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		logger.Warn().Str("level", level).Msg("unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func startHealthServer(ctx context.Context, port int, store slotStore, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := store.Ping(ctxPing); err != nil {
			http.Error(w, "storage not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

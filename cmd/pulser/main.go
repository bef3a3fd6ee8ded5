// pulser runs the simulated stock ticker: the pulsing engine, the
// WebSocket hub and the HTTP command surface.
// Usage: go run ./cmd/pulser --config configs/pulser.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/stockpulse/internal/broadcast"
	"github.com/rickgao/stockpulse/internal/config"
	"github.com/rickgao/stockpulse/internal/database"
	"github.com/rickgao/stockpulse/internal/dispatch"
	"github.com/rickgao/stockpulse/internal/drift"
	"github.com/rickgao/stockpulse/internal/engine"
	"github.com/rickgao/stockpulse/internal/metrics"
	"github.com/rickgao/stockpulse/internal/model"
	"github.com/rickgao/stockpulse/internal/seed"
	"github.com/rickgao/stockpulse/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (built-in defaults when empty)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadAndValidate(*configPath)
		if err != nil {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}

	// Set up structured logging
	logger := cfg.Logging.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting pulser",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"config", *configPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("pulser failed", "error", err)
		os.Exit(1)
	}

	logger.Info("pulser stopped")
}

func run(ctx context.Context, cfg *config.PulserConfig, logger *slog.Logger) error {
	seeds, err := loadSeeds(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("load seeds: %w", err)
	}
	logger.Info("seeds loaded", "source", cfg.Seeds.Source, "count", len(seeds))

	m := metrics.New()

	hub := broadcast.NewHub(broadcast.HubConfig{
		QueueSize:    cfg.Broadcast.QueueSize,
		MaxQueueSize: cfg.Broadcast.MaxQueueSize,
		WriteTimeout: cfg.Broadcast.WriteTimeout,
		PingInterval: cfg.Broadcast.PingInterval,
		PongTimeout:  cfg.Broadcast.PongTimeout,
		ReadLimit:    broadcast.DefaultHubConfig().ReadLimit,
	}, logger, m)

	broadcasters := engine.Broadcasters{hub}
	components := map[string]func() any{
		"broadcast": func() any { return hub.Stats() },
	}

	var (
		rdb       *redis.Client
		publisher *broadcast.RedisPublisher
	)
	if cfg.Redis.Enabled {
		rdb, err = connectRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()

		publisher = broadcast.NewRedisPublisher(broadcast.RedisConfig{
			Channel:      cfg.Redis.Channel,
			QueueSize:    cfg.Broadcast.QueueSize,
			MaxQueueSize: cfg.Broadcast.MaxQueueSize,
		}, rdb, logger, m)
		publisher.Start()

		broadcasters = append(broadcasters, publisher)
		components["redis"] = func() any { return publisher.Stats() }
		logger.Info("redis publisher enabled", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	}

	pulser, err := engine.New(seeds, broadcasters,
		engine.WithInterval(cfg.Engine.Interval),
		engine.WithParams(drift.Params{
			ActivationProbability: *cfg.Engine.ActivationProbability,
			RangePercent:          *cfg.Engine.RangePercent,
			UpThreshold:           *cfg.Engine.UpThreshold,
		}),
		engine.WithSource(drift.NewSource(cfg.Engine.RandomSeed)),
		engine.WithLogger(logger),
		engine.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	dispatcher := dispatch.New(pulser, logger)
	hub.Attach(pulser, dispatcher)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	routerCfg := dispatch.RouterConfig{
		WebSocket:  hub,
		Version:    version.String(),
		Components: components,
		Logger:     logger,
	}
	if cfg.MetricsEnabled() {
		routerCfg.Metrics = m.Handler()
		routerCfg.MetricsPath = cfg.Metrics.Path
	}

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           dispatch.NewRouter(dispatcher, routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Engine.AutoStart {
		pulser.Start()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.Server.HTTPAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Command surfaces first so nothing can reopen the market while the
		// engine closes. A closed hub ignores the engine's final events.
		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http: %w", err))
		}
		if err := hub.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("close hub: %w", err))
		}
		if err := pulser.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("close engine: %w", err))
		}
		if publisher != nil {
			if err := publisher.Stop(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("stop redis publisher: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// loadSeeds resolves the canonical instrument set once at startup.
func loadSeeds(ctx context.Context, cfg *config.PulserConfig, logger *slog.Logger) ([]model.Instrument, error) {
	switch cfg.Seeds.Source {
	case config.SeedSourcePostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		pool, err := database.Connect(connectCtx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		// Seeds are held in memory, so the pool is only needed here.
		defer pool.Close()

		return seed.NewPostgres(pool, logger).Load(connectCtx)
	default:
		return seed.NewStatic(cfg.Seeds.Instruments).Load(ctx)
	}
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

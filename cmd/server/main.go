package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trogers1052/positions-dashboard/internal/api"
	"github.com/trogers1052/positions-dashboard/internal/cache"
	"github.com/trogers1052/positions-dashboard/internal/config"
	"github.com/trogers1052/positions-dashboard/internal/database"
	"github.com/trogers1052/positions-dashboard/internal/kafka"
	"github.com/trogers1052/positions-dashboard/internal/postgrest"
	"github.com/trogers1052/positions-dashboard/internal/rebalance"
	"github.com/trogers1052/positions-dashboard/internal/rent"
	"github.com/trogers1052/positions-dashboard/internal/scheduler"
)

// backend is everything the service reads positions from and stores settings in
type backend interface {
	rent.TradeOpenDateSource
	rebalance.Store
	api.PositionsReader
	scheduler.PositionKeySource
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("err", err.Error()))
		os.Exit(1)
	}

	setupLogger(cfg)

	if err := run(cfg); err != nil {
		slog.Error("server stopped with error", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store      backend
		db         *database.DB
		handlerOps []api.Option
	)

	switch cfg.Backend {
	case config.BackendREST:
		store = postgrest.New(cfg.REST)
		slog.Info("using rest backend", slog.String("url", cfg.REST.URL), slog.String("schema", cfg.REST.Schema))
	default:
		conn, err := database.New(cfg.Database.ConnectionString())
		if err != nil {
			return err
		}
		defer conn.Close()
		db = conn

		if err := db.Migrate(cfg.Database.MigrationDir); err != nil {
			return err
		}
		store = db
		handlerOps = append(handlerOps, api.WithPinger(db))
		slog.Info("using postgres backend", slog.String("host", cfg.Database.Host), slog.String("db", cfg.Database.DBName))
	}

	var source rent.TradeOpenDateSource = store
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		shared := cache.NewTradeOpenDates(redisClient, store, cfg.Redis.TTL)
		source = shared
		handlerOps = append(handlerOps, api.WithSharedCache(shared))
	}

	calculator := rent.NewCalculator(source, rent.WithBatchSize(cfg.Rent.PrefetchBatchSize))

	var publisher rebalance.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.RebalanceTopic)
		defer producer.Close()
		publisher = producer

		if db != nil {
			consumer := kafka.NewPositionsConsumer(cfg.Kafka.Brokers, cfg.Kafka.PositionsTopic, cfg.Kafka.GroupID, db, calculator)
			go func() {
				if err := consumer.Start(ctx); err != nil {
					slog.Error("positions consumer stopped", slog.String("err", err.Error()))
				}
			}()
		}
	}

	sessions := rebalance.NewSessions(store, publisher)

	sched, err := scheduler.New()
	if err != nil {
		return err
	}
	err = sched.NewIntervalJob(
		scheduler.PrefetchJobName,
		scheduler.PrefetchTradeOpenDates(store, calculator, cfg.Jobs.PrefetchLookback, time.Now),
		cfg.Jobs.PrefetchInterval,
		true,
	)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			slog.Error("failed to stop scheduler", slog.String("err", err.Error()))
		}
	}()

	handler := api.NewHandler(calculator, sessions, store, handlerOps...)
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.SetupRoutes(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting http server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}

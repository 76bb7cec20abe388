package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/archive"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/cache"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/config"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/consumer"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/dedup"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/detector"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/handlers"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/highlights"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/hub"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/notifier"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/providers/mlb"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/publisher"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/replay"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/contracts"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("game-replay-service exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	logger.Info("starting game-replay-service")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mlbClient := mlb.New(cfg.MLB.BaseURL, cfg.MLB.Timeout, cfg.MLB.RequestsPerSecond)
	store := replay.NewStore(mlbClient, logger)

	wsHub := hub.NewHub(logger)
	go wsHub.Run(ctx)

	atBatSinks := []contracts.AtBatSink{wsHub}
	highlightSinks := []contracts.HighlightSink{wsHub}
	var routerOpts []highlights.Option

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = connectRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		logger.Info("connected to redis")

		writer := cache.NewRedisWriter(redisClient)
		streams := publisher.NewStreamPublisher(redisClient)

		store.SetMirror(writer)
		atBatSinks = append(atBatSinks, writer, streams)
		highlightSinks = append(highlightSinks, streams)
		routerOpts = append(routerOpts, highlights.WithClaimer(dedup.NewDeduplicator(redisClient, cfg.Redis.DedupTTL)))
	} else {
		logger.Warn("REDIS_URL not set; snapshot mirror, streams and highlight dedup disabled")
	}

	var highlightArchive *archive.HighlightStore
	if cfg.Highlights.DSN != "" {
		db, err := connectDB(ctx, cfg.Highlights.DSN)
		if err != nil {
			return err
		}
		defer db.Close()

		highlightArchive = archive.NewHighlightStore(db)
		if err := highlightArchive.Migrate(ctx); err != nil {
			return err
		}
		routerOpts = append(routerOpts, highlights.WithRecorder(highlightArchive))
		logger.Info("connected to highlight archive")
	}

	if cfg.Highlights.SlackWebhookURL != "" {
		slack := notifier.NewSlackNotifier(cfg.Highlights.SlackWebhookURL, cfg.Highlights.SlackRatePerMinute, logger)
		routerOpts = append(routerOpts, highlights.WithNotifier(slack))
		logger.Info("slack highlights enabled", "per_minute", cfg.Highlights.SlackRatePerMinute)
	}

	router := highlights.NewRouter(logger, routerOpts...)
	switch {
	case cfg.Highlights.ViaStream && redisClient != nil:
		hc := consumer.NewHighlightConsumer(redisClient, publisher.HighlightsStream, "highlight-router", cfg.Highlights.ConsumerID, router, logger)
		go func() {
			if err := hc.Run(ctx); err != nil {
				logger.Error("highlight consumer stopped", "error", err)
			}
		}()
		logger.Info("routing highlights through stream", "stream", publisher.HighlightsStream)
	default:
		highlightSinks = append(highlightSinks, router)
	}

	// every in-process consumer poll advances the replay
	tick := contracts.ViewSourceFunc(store.AdvanceAndView)
	watcher := detector.NewEventWatcher(tick, cfg.Replay.WatchInterval, logger, highlightSinks...)
	orch := detector.NewOrchestrator(ctx, tick, cfg.Replay.PollInterval, logger, atBatSinks...)

	deps := handlers.Deps{
		Store:         store,
		Watcher:       watcher,
		Formatted:     handlers.NewFormattedHandler(handlers.InitializerFunc(store.EnsureLoaded), orch, logger),
		Schedule:      mlbClient,
		Hub:           wsHub,
		Logger:        logger,
		DefaultTeamID: cfg.Replay.TeamID,
		WatchBudget:   cfg.Replay.WatchBudget,
	}
	if highlightArchive != nil {
		deps.Highlights = highlightArchive
	}
	h := handlers.NewHandler(deps)

	srv := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     h.Router(ctx, cfg.Server.CORSOrigins),
		ReadTimeout: 15 * time.Second,
		// watch-homer responses are held for up to the watch budget
		WriteTimeout: cfg.Replay.WatchBudget + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
		srv.Close()
	}

	stop()
	orch.Wait()
	logger.Info("shutdown complete")
	return nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// connectDB opens the highlight archive connection pool
func connectDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/cache"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/config"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/detector"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/handlers"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/providers/replayhost"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/publisher"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/contracts"
	"github.com/redis/go-redis/v9"
)

// pbp-formatter polls a remote replay and serves the latest completed at-bat per game
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil)).With("service", "pbp-formatter")
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("pbp-formatter exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host := replayhost.NewClient(cfg.Replay.Host, nil)
	logger.Info("reading replays from host", "host", cfg.Replay.Host)

	var sinks []contracts.AtBatSink
	var mirror *cache.RedisWriter
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		mirror = cache.NewRedisWriter(redisClient)
		sinks = append(sinks, mirror, publisher.NewStreamPublisher(redisClient))
		logger.Info("publishing formatted at-bats to redis")
	}

	orch := detector.NewOrchestrator(ctx, host, cfg.Replay.PollInterval, logger, sinks...)
	formatted := handlers.NewFormattedHandler(host, orch, logger)
	if mirror != nil {
		formatted.WithFallback(mirror)
	}

	r := handlers.NewBaseRouter(logger, cfg.Server.CORSOrigins)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","service":"pbp-formatter","pollers":%d}`, orch.Count())
	})
	formatted.Mount(r)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
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

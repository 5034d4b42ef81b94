package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelsplit/internal/api"
	"github.com/dunamismax/pixelsplit/internal/config"
	"github.com/dunamismax/pixelsplit/internal/queue"
	"github.com/dunamismax/pixelsplit/internal/ratelimit"
	"github.com/dunamismax/pixelsplit/internal/storage"
	"github.com/dunamismax/pixelsplit/internal/store"
	"github.com/dunamismax/pixelsplit/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), "pixelsplit-api", cfg.Telemetry, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	var opts []api.Option
	if cfg.RateLimit.Limit > 0 {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer redisClient.Close()

		limiter, err := ratelimit.NewFixedWindow(redisClient, cfg.RateLimit.Limit, cfg.RateLimit.Window, "pixelsplit:ratelimit")
		if err != nil {
			logger.Fatalf("rate limiter setup failed: %v", err)
		}
		opts = append(opts, api.WithRateLimiter(limiter, ""))
		logger.Printf("rate limiting uploads limit=%d window=%s", cfg.RateLimit.Limit, cfg.RateLimit.Window)
	}

	if cfg.Database.ArtifactStore == config.ArtifactStorePostgres {
		objects, err := storage.NewClient(cfg.Storage)
		if err != nil {
			logger.Fatalf("object storage setup failed: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		artifacts, err := store.NewPostgresArtifactStore(ctx, cfg.Database.DSN, objects, logger)
		cancel()
		if err != nil {
			logger.Fatalf("artifact store setup failed: %v", err)
		}
		defer artifacts.Close()
		opts = append(opts, api.WithArtifacts(artifacts), api.WithDownloadLinks(objects, cfg.Storage.PresignTTL))
	}

	app := api.NewServer(logger, queueClient, opts...)

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelsplit/internal/config"
	"github.com/dunamismax/pixelsplit/internal/consumer"
	"github.com/dunamismax/pixelsplit/internal/dispatch"
	"github.com/dunamismax/pixelsplit/internal/imaging"
	"github.com/dunamismax/pixelsplit/internal/notify"
	"github.com/dunamismax/pixelsplit/internal/remote"
	"github.com/dunamismax/pixelsplit/internal/storage"
	"github.com/dunamismax/pixelsplit/internal/store"
	"github.com/dunamismax/pixelsplit/internal/telemetry"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[dispatcher] ", log.LstdFlags|log.Lmsgprefix)

	// Startup initialises the native runtime when built with the vips tag.
	if err := imaging.Startup(); err != nil {
		logger.Fatalf("imaging runtime startup failed: %v", err)
	}
	defer imaging.Shutdown()

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), "pixelsplit-dispatcher", cfg.Telemetry, logger)
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

	services := dispatch.Services{
		ScaleLeft:  remote.NewClient(cfg.Services.ScaleLeft, cfg.Services.CallTimeout),
		ScaleRight: remote.NewClient(cfg.Services.ScaleRight, cfg.Services.CallTimeout),
		Crop:       remote.NewClient(cfg.Services.Crop, cfg.Services.CallTimeout),
		Blur:       remote.NewClient(cfg.Services.Blur, cfg.Services.CallTimeout),
	}

	artifacts, closeStore := openArtifactStore(cfg, logger)
	defer closeStore()

	notifier, closeNotifier, err := notify.New(cfg.Notify, cfg.Queue, logger)
	if err != nil {
		logger.Fatalf("notifier setup failed: %v", err)
	}
	defer func() {
		if err := closeNotifier(); err != nil {
			logger.Printf("notifier close error: %v", err)
		}
	}()

	dispatcher, err := dispatch.New(logger, services, artifacts, notifier)
	if err != nil {
		logger.Fatalf("dispatcher setup failed: %v", err)
	}
	handler := consumer.NewHandler(logger, dispatcher, cfg.Worker.MaxActiveJobs, dispatcher.Registry())

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           dispatcher.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("metrics listening on %s", cfg.Worker.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server failed: %v", err)
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(ctx)
	}()

	logger.Printf(
		"starting dispatcher source=%s max_active_jobs=%d scale_left=%s scale_right=%s crop=%s blur=%s",
		cfg.Worker.EventSource,
		cfg.Worker.MaxActiveJobs,
		cfg.Services.ScaleLeft,
		cfg.Services.ScaleRight,
		cfg.Services.Crop,
		cfg.Services.Blur,
	)

	switch cfg.Worker.EventSource {
	case config.EventSourceAMQP:
		runAMQP(cfg, logger, handler)
	case config.EventSourceAsynq:
		srv := consumer.NewAsynqServer(logger, cfg.Queue, cfg.Worker, handler)
		if err := srv.Run(); err != nil {
			logger.Printf("asynq server failed: %v", err)
		}
	default:
		logger.Printf("unknown event source %q", cfg.Worker.EventSource)
	}
}

func runAMQP(cfg config.Config, logger *log.Logger, handler *consumer.Handler) {
	consumerConn, err := consumer.DialAMQP(cfg.AMQP, logger, handler)
	if err != nil {
		logger.Printf("amqp setup failed: %v", err)
		return
	}
	defer consumerConn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := consumerConn.Run(ctx); err != nil {
		logger.Printf("amqp consumer stopped: %v", err)
	}
	logger.Println("shutting down")
}

func openArtifactStore(cfg config.Config, logger *log.Logger) (dispatch.ArtifactStore, func()) {
	if cfg.Database.ArtifactStore != config.ArtifactStorePostgres {
		logger.Printf("using in-memory artifact store")
		return store.NewMemoryArtifactStore(), func() {}
	}

	objects, err := storage.NewClient(cfg.Storage)
	if err != nil {
		logger.Fatalf("object storage setup failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := objects.EnsureBucket(ctx); err != nil {
		logger.Fatalf("bucket setup failed: %v", err)
	}

	artifacts, err := store.NewPostgresArtifactStore(ctx, cfg.Database.DSN, objects, logger)
	if err != nil {
		logger.Fatalf("artifact store setup failed: %v", err)
	}
	return artifacts, func() {
		if err := artifacts.Close(); err != nil {
			logger.Printf("artifact store close error: %v", err)
		}
	}
}

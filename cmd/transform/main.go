package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dunamismax/pixelsplit/internal/config"
	"github.com/dunamismax/pixelsplit/internal/imaging"
	"github.com/dunamismax/pixelsplit/internal/telemetry"
	"github.com/dunamismax/pixelsplit/internal/transform"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[transform] ", log.LstdFlags|log.Lmsgprefix)

	if err := imaging.Startup(); err != nil {
		logger.Fatalf("imaging runtime startup failed: %v", err)
	}
	defer imaging.Shutdown()

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), "pixelsplit-transform", cfg.Telemetry, logger)
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

	srv, err := transform.NewServer(logger, cfg.Transform.Services, imaging.NewResampler())
	if err != nil {
		logger.Fatalf("transform server setup failed: %v", err)
	}

	httpServer := &http.Server{
		Addr:        cfg.Transform.Addr,
		Handler:     srv.Handler(),
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s services=%s", cfg.Transform.Addr, strings.Join(cfg.Transform.Services, ","))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

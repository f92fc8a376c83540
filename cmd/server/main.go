package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"imgresize/internal/cache"
	"imgresize/internal/config"
	httphandlers "imgresize/internal/http"
	"imgresize/internal/image_source"
	"imgresize/internal/logger"
	"imgresize/internal/metrics"
	"imgresize/internal/resizer"
	"imgresize/internal/resizer/vipsresizer"
	"imgresize/internal/warmup"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	imageResizer, shutdown, err := newResizer(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize resizer", zap.Error(err))
	}
	defer shutdown()

	log.Info("Starting resize server",
		zap.Int("port", cfg.Port),
		zap.String("images_dir", cfg.ImagesDir),
		zap.String("cache_dir", cfg.CacheDir),
		zap.String("resizer", cfg.Resizer),
	)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	images := image_source.New(cfg.ImagesDir, log)

	derivatives, err := cache.NewCache(cfg.CacheType, cfg.CacheDir, imageResizer, m, log)
	if err != nil {
		log.Fatal("Failed to initialize cache", zap.Error(err))
	}

	handlers := httphandlers.New(cfg, log, images, derivatives, m)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if len(cfg.WarmupSizes) > 0 {
		go warmup.Run(ctx, cfg.WarmupSizes, cfg.WarmupWorkers, images, derivatives, log)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handlers.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("url", fmt.Sprintf("http://localhost:%d", cfg.Port)))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}

// newResizer builds the configured Resizer. The returned func releases
// whatever the implementation holds and is safe to call once.
func newResizer(cfg *config.Config, log *zap.Logger) (resizer.Resizer, func(), error) {
	switch cfg.Resizer {
	case "vips", "":
		shutdown := vipsresizer.Startup(vipsresizer.Config{
			MaxCacheMB:  cfg.VipsMaxCacheMB,
			Concurrency: cfg.VipsConcurrency,
		}, log)
		return vipsresizer.New(log), shutdown, nil
	case "imaging":
		log.Info("Using imaging resizer")
		return resizer.NewImaging(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown resizer: %s (supported: vips, imaging)", cfg.Resizer)
	}
}

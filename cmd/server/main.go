package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hosseinMsh/QRCodeRenderSystem/internal/api"
	"github.com/hosseinMsh/QRCodeRenderSystem/internal/circuitbreaker"
	"github.com/hosseinMsh/QRCodeRenderSystem/internal/config"
	"github.com/hosseinMsh/QRCodeRenderSystem/internal/imagefetch"
	"github.com/hosseinMsh/QRCodeRenderSystem/internal/logging"
	"github.com/hosseinMsh/QRCodeRenderSystem/internal/metrics"
	"github.com/hosseinMsh/QRCodeRenderSystem/internal/options"
	"github.com/hosseinMsh/QRCodeRenderSystem/internal/render"
)

func main() {
	// Load .env file (ignore error if file doesn't exist - use system env vars)
	_ = godotenv.Load()

	boot := logging.New(logging.Options{Name: "qr-render"})
	cfg, err := config.Load()
	if err != nil {
		boot.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Options{
		Name:  "qr-render",
		Level: cfg.LogLevel,
		JSON:  cfg.LogJSON,
	})
	profile, _ := cfg.Profile()

	m := metrics.New()
	breakers := circuitbreaker.NewRegistry(
		cfg.CBFailureThreshold,
		cfg.CBSuccessThreshold,
		cfg.CBRecoveryTimeout,
		cfg.ImageMaxTrackedHosts,
		m.ImageHostCircuitState,
	)
	fetcher := imagefetch.New(imagefetch.Config{
		Timeout:           cfg.ImageFetchTimeout,
		ConnectTimeout:    cfg.ImageConnectTimeout,
		MaxBytes:          cfg.ImageMaxBytes,
		BlockPrivateHosts: cfg.ImageBlockPrivateHosts,
		AllowedHosts:      cfg.ImageAllowedHosts,
	}, breakers, logger.Named("imagefetch"))
	engine := render.NewQREngine(fetcher, cfg.JPEGQuality)

	var shuttingDown atomic.Bool
	handlers := &api.Handlers{
		Render: api.NewRenderHandler(options.NewNormalizer(profile), engine, m, logger.Named("render")),
		Health: api.NewHealthHandler(profile, breakers, &shuttingDown),
	}
	app := api.NewApp(api.AppConfig{
		BodyLimit: cfg.BodyLimit(),
		AccessLog: true,
	}, handlers, m, logger)

	// Start server in goroutine
	go func() {
		addr := cfg.Addr()
		logger.Info("starting QR render service", "addr", addr, "format_profile", profile)
		if err := app.Listen(addr); err != nil {
			logger.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shuttingDown.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Warn("server forced to shutdown", "error", err)
	}
	fetcher.CloseIdleConnections()

	logger.Info("server exiting")
}

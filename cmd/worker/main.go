package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"edgevision-worker-go/internal/api"
	"edgevision-worker-go/internal/camera"
	"edgevision-worker-go/internal/config"
	"edgevision-worker-go/internal/engine"
	"edgevision-worker-go/internal/logging"
	"edgevision-worker-go/internal/messaging"
)

// Exit codes.
const (
	exitOK            = 0
	exitConfigInvalid = 2
	exitKeyFailure    = 3
	exitNoCameras     = 4
	exitFatal         = 5
)

// @title EdgeVision Worker API
// @version 1.0.0
// @description Multi-camera privacy pipeline: blurred public streams, encrypted forensic evidence, authenticated decryption.
// @BasePath /
func main() {
	os.Exit(run())
}

func run() int {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogdyEnabled {
		if w, _, err := logging.StartLogdy(cfg); err == nil {
			console := zerolog.ConsoleWriter{Out: os.Stderr}
			log.Logger = log.Output(io.MultiWriter(console, w))
		} else {
			log.Warn().Err(err).Msg("Logdy UI failed to start")
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return exitConfigInvalid
	}

	log.Info().
		Str("worker_id", cfg.WorkerID).
		Str("version", cfg.Version).
		Strs("sources", cfg.CameraSources).
		Str("device", cfg.Device).
		Int("port", cfg.Port).
		Msg("Starting EdgeVision worker")

	// Optional event publishing
	var events camera.EventPublisher
	var msgSvc *messaging.Service
	if cfg.NatsURL != "" {
		msgSvc, err = messaging.NewService(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, events disabled")
		} else {
			events = msgSvc
		}
	}

	eng := engine.New(cfg, engine.Options{Events: events})
	if err := eng.Start(); err != nil {
		log.Error().Err(err).Msg("Engine failed to start")
		switch {
		case errors.Is(err, engine.ErrKeySetup):
			return exitKeyFailure
		case errors.Is(err, engine.ErrNoCameras):
			return exitNoCameras
		default:
			return exitFatal
		}
	}

	server, err := api.NewServer(cfg, eng)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create server")
		eng.Stop()
		return exitFatal
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	code := exitOK
	select {
	case <-quit:
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
			code = exitFatal
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	eng.Stop()
	if msgSvc != nil {
		msgSvc.Shutdown(ctx)
	}

	log.Info().Msg("Shutdown complete")
	return code
}

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voicelab/stt-bridge/internal/api"
	"github.com/voicelab/stt-bridge/internal/buffers"
	"github.com/voicelab/stt-bridge/internal/config"
	"github.com/voicelab/stt-bridge/internal/metrics"
	"github.com/voicelab/stt-bridge/internal/relay"
	"github.com/voicelab/stt-bridge/internal/websocket"
	"github.com/voicelab/stt-bridge/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting STT bridge server",
		logger.String("version", Version),
		logger.String("model", cfg.Upstream.Model),
		logger.String("language", cfg.Upstream.Language),
		logger.Int("sample_rate_hz", cfg.Audio.SampleRateHz),
	)

	if cfg.Upstream.APIKey == "" {
		log.Warn("Upstream API key is empty - transcription sessions will not work")
	}

	// Create the four process-wide debug ring logs
	logs := buffers.NewLogs(cfg.Observability.RingSize)

	// Create Prometheus metrics
	m := metrics.New()

	// Create the client-facing WebSocket server
	sessionConfig := relay.SessionConfig{
		APIKey:               cfg.Upstream.APIKey,
		BaseURL:              cfg.Upstream.BaseURL,
		Model:                cfg.Upstream.Model,
		Language:             cfg.Upstream.Language,
		SampleRateHz:         cfg.Audio.SampleRateHz,
		SilenceDurationMs:    cfg.Upstream.SilenceDurationMs,
		HandshakeTimeoutSecs: cfg.Upstream.HandshakeTimeoutSecs,
		MaxMessageBytes:      cfg.Upstream.MaxMessageBytes,
	}
	wsServer := websocket.NewServer(sessionConfig, logs, m, log)

	// Create API router
	handler := api.NewHandler(cfg, logs, wsServer, log)
	router := api.NewRouter(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.String("addr", server.Addr), logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	} else {
		log.Info("HTTP server shutdown complete")
	}

	log.Info("Server fully stopped")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/skypro1111/dictation-service/internal/config"
	"github.com/skypro1111/dictation-service/internal/metrics"
	"github.com/skypro1111/dictation-service/internal/segment"
	"github.com/skypro1111/dictation-service/internal/server"
	"github.com/skypro1111/dictation-service/internal/stream"
	"github.com/skypro1111/dictation-service/internal/transcription"
	"github.com/skypro1111/dictation-service/internal/transcription/whisper"
	"github.com/skypro1111/dictation-service/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "dictation-service"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Bool("http_enabled", cfg.HTTP.Enabled),
		slog.Bool("udp_enabled", cfg.UDP.Enabled),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("max_buffer_sec", cfg.Audio.MaxBufferSec),
		slog.Float64("sentence_silence_sec", cfg.Segmentation.SentenceSilenceSec),
		slog.Float64("paragraph_silence_sec", cfg.Segmentation.ParagraphSilenceSec),
		slog.Float64("vad_threshold", float64(cfg.VAD.Threshold)),
		slog.String("transcription_engine", cfg.Transcription.Engine),
		slog.Int("max_workers", cfg.Dispatch.MaxWorkers),
		slog.String("log_level", cfg.Logging.Level),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry)
	logger.Info("Prometheus metrics initialized")

	// The service does not accept audio until the engine is ready
	engine, engineTimeout, err := newEngine(cfg.Transcription, cfg.Audio.SampleRate)
	if err != nil {
		logger.Error("Failed to load transcription engine",
			slog.String("engine", cfg.Transcription.Engine),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	logger.Info("Transcription engine ready", slog.String("engine", cfg.Transcription.Engine))

	processor, err := vad.NewProcessor(cfg.VAD.WindowSize, cfg.VAD.ReferenceLevel)
	if err != nil {
		logger.Error("Failed to create VAD processor", slog.String("error", err.Error()))
		os.Exit(1)
	}

	detector, err := segment.NewDetector(segment.Config{
		SampleRate:     cfg.Audio.SampleRate,
		MinScan:        cfg.Audio.GetMinScanDuration(),
		SentencePause:  cfg.Segmentation.GetSentencePause(),
		ParagraphPause: cfg.Segmentation.GetParagraphPause(),
		Threshold:      cfg.VAD.Threshold,
		MinSpeech:      cfg.VAD.GetMinSpeechDuration(),
		MinSilence:     cfg.VAD.GetMinSilenceDuration(),
	}, processor)
	if err != nil {
		logger.Error("Failed to create segment detector", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dispatcher, err := stream.NewDispatcher(logger, stream.Config{
		SampleRate:        cfg.Audio.SampleRate,
		MaxBuffer:         cfg.Audio.GetMaxBufferDuration(),
		MaxWorkers:        cfg.Dispatch.MaxWorkers,
		MaxPendingResults: cfg.Dispatch.MaxPendingResults,
		EngineTimeout:     engineTimeout,
	}, detector, engine, appMetrics)
	if err != nil {
		logger.Error("Failed to create dispatcher", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Dispatcher initialized",
		slog.Int("max_workers", cfg.Dispatch.MaxWorkers),
		slog.Int("max_pending_results", cfg.Dispatch.MaxPendingResults),
	)

	var udpServer *server.UDPServer
	if cfg.UDP.Enabled {
		udpServer = server.NewUDPServer(cfg.UDP, logger, dispatcher, appMetrics)
		if err := udpServer.Start(); err != nil {
			logger.Error("Failed to start UDP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(logger, cfg, dispatcher, engine, udpServer, appMetrics, registry)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop intake first, then let dispatched segments finish
	if httpServer != nil {
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	if udpServer != nil {
		if err := udpServer.Stop(); err != nil {
			logger.Error("Error stopping UDP server", slog.String("error", err.Error()))
		}
	}

	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Error("Error stopping dispatcher", slog.String("error", err.Error()))
	}

	if closer, ok := engine.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Error closing transcription engine", slog.String("error", err.Error()))
		}
	}

	stats := dispatcher.GetStats()
	logger.Info("Final dispatcher statistics",
		slog.Uint64("chunks_submitted", stats.ChunksSubmitted),
		slog.Uint64("chunks_failed", stats.ChunksFailed),
		slog.Uint64("segments_dispatched", stats.SegmentsDispatched),
		slog.Uint64("transcribed", stats.Transcribed),
		slog.Int("undrained_results", stats.Queue.Pending),
	)

	logger.Info("Service stopped")
}

// newEngine builds the configured transcription engine. The returned timeout
// bounds a single engine call; the HTTP client enforces its own per request.
func newEngine(cfg config.TranscriptionConfig, sampleRate int) (transcription.Engine, time.Duration, error) {
	switch cfg.Engine {
	case "whisper":
		engine, err := whisper.New(whisper.Config{
			ModelPath: cfg.ModelPath,
			Language:  cfg.Language,
			Threads:   cfg.Threads,
		})
		if err != nil {
			return nil, 0, err
		}
		return engine, cfg.GetTimeoutDuration(), nil

	default:
		client, err := transcription.NewClient(transcription.Config{
			Endpoint:       cfg.Endpoint,
			APIKey:         cfg.APIKey,
			Language:       cfg.Language,
			SampleRate:     sampleRate,
			Timeout:        cfg.GetTimeoutDuration(),
			MaxRetries:     cfg.MaxRetries,
			ResponseFormat: cfg.ResponseFormat,
		})
		if err != nil {
			return nil, 0, err
		}
		return client, 0, nil
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

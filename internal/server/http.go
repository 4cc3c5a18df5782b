package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/dictation-service/internal/config"
	"github.com/skypro1111/dictation-service/internal/metrics"
	"github.com/skypro1111/dictation-service/internal/results"
	"github.com/skypro1111/dictation-service/internal/stream"
	"github.com/skypro1111/dictation-service/internal/transcription"
)

// HTTPServer provides the polling API plus monitoring and management endpoints
type HTTPServer struct {
	server     *http.Server
	handler    http.Handler
	logger     *slog.Logger
	config     *config.Config
	dispatcher *stream.Dispatcher
	engine     transcription.Engine
	udpServer  *UDPServer // nil when the UDP ingest is disabled
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer

	startTime time.Time
}

// ChunkRequest is the body of POST /chunks
type ChunkRequest struct {
	Audio      []byte  `json:"audio"`       // base64 in JSON
	CapturedAt float64 `json:"captured_at"` // Unix seconds, 0 means now
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(logger *slog.Logger, appConfig *config.Config, dispatcher *stream.Dispatcher,
	engine transcription.Engine, udpServer *UDPServer, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		dispatcher: dispatcher,
		engine:     engine,
		udpServer:  udpServer,
		metrics:    m,
		gatherer:   gatherer,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", appConfig.HTTP.Address, appConfig.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Polling API
	mux.HandleFunc("/chunks", h.withMetrics("/chunks", h.handleChunks))
	mux.HandleFunc("/results", h.withMetrics("/results", h.handleResults))
	mux.HandleFunc("/flush", h.withMetrics("/flush", h.handleFlush))
	mux.HandleFunc("/reset", h.withMetrics("/reset", h.handleReset))
	mux.HandleFunc("/status", h.withMetrics("/status", h.handleStatus))

	// Monitoring
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/stats/transcription", h.withMetrics("/stats/transcription", h.handleTranscriptionStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleChunks implements POST /chunks
func (h *HTTPServer) handleChunks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.HTTP.MaxChunkBytes)

	var req ChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Chunk too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if len(req.Audio) == 0 {
		http.Error(w, "Audio field is required", http.StatusBadRequest)
		return
	}

	capturedAt := time.Now()
	if req.CapturedAt > 0 {
		capturedAt = results.FromUnixSeconds(req.CapturedAt)
	}

	chunkID, err := h.dispatcher.Submit(req.Audio, capturedAt)
	if err != nil {
		h.logger.Warn("Chunk rejected", slog.String("error", err.Error()))
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":   "processing",
		"chunk_id": chunkID,
	})
}

// handleResults implements GET /results
func (h *HTTPServer) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.dispatcher.Drain())
}

// handleFlush implements POST /flush
func (h *HTTPServer) handleFlush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.dispatcher.Flush(); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "flushing"})
}

// handleReset implements POST /reset
func (h *HTTPServer) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.dispatcher.Reset()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus implements GET /status
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.dispatcher.Status())
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := h.dispatcher.Status()

	components := map[string]interface{}{
		"dispatcher": map[string]interface{}{
			"status":          "running",
			"buffer_seconds":  status.BufferSeconds,
			"tasks_in_flight": status.TasksInFlight,
			"pending_results": status.PendingResults,
		},
		"transcription": map[string]interface{}{
			"status":       "running",
			"model_loaded": status.ModelLoaded,
		},
	}

	if h.udpServer != nil {
		udpStats := h.udpServer.GetStatistics()
		components["udp_server"] = map[string]interface{}{
			"status":            "running",
			"packets_received":  udpStats.PacketsReceived,
			"packets_processed": udpStats.PacketsProcessed,
			"parse_errors":      udpStats.ParseErrors,
			"queue_size":        udpStats.QueueSize,
		}
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "dictation-service",
			"version": "1.0.0",
		},
		"components": components,
	}

	writeJSON(w, http.StatusOK, health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The API key is tagged json:"-"
	writeJSON(w, http.StatusOK, h.config)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":     time.Since(h.startTime).String(),
		"timestamp":  time.Now().UTC(),
		"dispatcher": h.dispatcher.GetStats(),
	}

	if engineStats, ok := h.engineStats(); ok {
		stats["transcription"] = engineStats
	}

	if h.udpServer != nil {
		stats["udp"] = h.udpServer.GetStatistics()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleTranscriptionStats implements the /stats/transcription endpoint
func (h *HTTPServer) handleTranscriptionStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	engineStats, ok := h.engineStats()
	if !ok {
		http.Error(w, "Engine does not report statistics", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, engineStats)
}

// engineStats returns the HTTP client statistics when that engine is in use
func (h *HTTPServer) engineStats() (transcription.ClientStats, bool) {
	client, ok := h.engine.(*transcription.Client)
	if !ok {
		return transcription.ClientStats{}, false
	}
	return client.GetStats(), true
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Dictation Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                    "API documentation",
			"POST /chunks":             "Submit a base64 audio chunk",
			"GET /results":             "Drain finished transcriptions",
			"POST /flush":              "Transcribe everything still buffered",
			"POST /reset":              "Discard buffered audio",
			"GET /status":              "Model readiness",
			"GET /health":              "Service health check",
			"GET /config":              "Get service configuration",
			"GET /stats":               "Get service statistics",
			"GET /stats/transcription": "Get transcription client statistics",
			"GET /metrics":             "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

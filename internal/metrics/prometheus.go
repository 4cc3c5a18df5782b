package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the dictation service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// UDP packet metrics
	PacketsReceived  prometheus.Counter
	PacketsProcessed prometheus.Counter
	ParseErrors      prometheus.Counter
	QueueSize        prometheus.Gauge

	// Ingest metrics
	ChunksReceived prometheus.Counter
	ChunkDuration  prometheus.Histogram
	BufferSeconds  prometheus.Gauge
	SamplesEvicted prometheus.Counter
	BufferResets   prometheus.Counter

	// Segmentation metrics
	ScanDuration     prometheus.Histogram
	SegmentsDetected *prometheus.CounterVec
	SegmentDuration  prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionEmpty     prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	CaptureLatency         prometheus.Histogram

	// Dispatch metrics
	TasksInFlight  prometheus.Gauge
	FailedResults  *prometheus.CounterVec
	PendingResults prometheus.Gauge
	DroppedResults prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all Prometheus metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// UDP packet metrics
		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictation_packets_received_total",
			Help: "Total number of UDP packets received",
		}),
		PacketsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictation_packets_processed_total",
			Help: "Total number of UDP packets successfully processed",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictation_parse_errors_total",
			Help: "Total number of packet parsing errors",
		}),
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dictation_packet_queue_size",
			Help: "Current number of packets in processing queue",
		}),

		// Ingest metrics
		ChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictation_chunks_received_total",
			Help: "Total number of audio chunks submitted",
		}),
		ChunkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictation_chunk_duration_seconds",
			Help:    "Duration of submitted audio chunks after resampling",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms to ~6s
		}),
		BufferSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dictation_buffer_seconds",
			Help: "Seconds of audio currently retained in the segment buffer",
		}),
		SamplesEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictation_buffer_samples_evicted_total",
			Help: "Total number of samples dropped by the buffer cap",
		}),
		BufferResets: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictation_buffer_resets_total",
			Help: "Total number of buffer resets",
		}),

		// Segmentation metrics
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictation_scan_duration_seconds",
			Help:    "Time spent running speech detection over the buffer",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		}),
		SegmentsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dictation_segments_detected_total",
			Help: "Total number of complete segments by boundary type",
		}, []string{"boundary"}),
		SegmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictation_segment_duration_seconds",
			Help:    "Duration of complete speech segments",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~32s
		}),

		// Transcription metrics
		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictation_transcription_requests_total",
			Help: "Total number of segments sent to the engine",
		}),
		TranscriptionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictation_transcription_successes_total",
			Help: "Total number of segments transcribed to text",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictation_transcription_failures_total",
			Help: "Total number of failed engine calls",
		}),
		TranscriptionEmpty: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictation_transcription_empty_total",
			Help: "Total number of segments that produced no text",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictation_transcription_duration_seconds",
			Help:    "Duration of engine calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		CaptureLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictation_capture_latency_seconds",
			Help:    "Time from chunk capture to transcription",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}),

		// Dispatch metrics
		TasksInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dictation_tasks_in_flight",
			Help: "Current number of chunk or flush tasks running",
		}),
		FailedResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dictation_failed_results_total",
			Help: "Total number of error records by failure kind",
		}, []string{"kind"}),
		PendingResults: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dictation_pending_results",
			Help: "Current number of results waiting to be polled",
		}),
		DroppedResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictation_dropped_results_total",
			Help: "Total number of results dropped by the queue cap",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dictation_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dictation_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dictation_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordPacketReceived increments the packets received counter
func (m *Metrics) RecordPacketReceived() {
	if m == nil {
		return
	}
	m.PacketsReceived.Inc()
}

// RecordPacketProcessed increments the packets processed counter
func (m *Metrics) RecordPacketProcessed() {
	if m == nil {
		return
	}
	m.PacketsProcessed.Inc()
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	if m == nil {
		return
	}
	m.ParseErrors.Inc()
}

// SetQueueSize sets the current packet queue size
func (m *Metrics) SetQueueSize(size int) {
	if m == nil {
		return
	}
	m.QueueSize.Set(float64(size))
}

// RecordChunk records a submitted chunk and the samples it pushed out
func (m *Metrics) RecordChunk(durationSeconds float64, evicted int) {
	if m == nil {
		return
	}
	m.ChunksReceived.Inc()
	m.ChunkDuration.Observe(durationSeconds)
	if evicted > 0 {
		m.SamplesEvicted.Add(float64(evicted))
	}
}

// SetBufferSeconds sets the retained buffer duration
func (m *Metrics) SetBufferSeconds(seconds float64) {
	if m == nil {
		return
	}
	m.BufferSeconds.Set(seconds)
}

// RecordBufferReset increments the buffer resets counter
func (m *Metrics) RecordBufferReset() {
	if m == nil {
		return
	}
	m.BufferResets.Inc()
	m.BufferSeconds.Set(0)
}

// RecordScan records the duration of a speech detection pass
func (m *Metrics) RecordScan(durationSeconds float64) {
	if m == nil {
		return
	}
	m.ScanDuration.Observe(durationSeconds)
}

// RecordSegment records a complete segment
func (m *Metrics) RecordSegment(newParagraph bool, durationSeconds float64) {
	if m == nil {
		return
	}
	boundary := "sentence"
	if newParagraph {
		boundary = "paragraph"
	}
	m.SegmentsDetected.WithLabelValues(boundary).Inc()
	m.SegmentDuration.Observe(durationSeconds)
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a transcribed segment
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds, latencySeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
	m.CaptureLatency.Observe(latencySeconds)
}

// RecordTranscriptionEmpty records a segment that produced no text
func (m *Metrics) RecordTranscriptionEmpty(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionEmpty.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed engine call
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// SetTasksInFlight sets the number of running tasks
func (m *Metrics) SetTasksInFlight(count int) {
	if m == nil {
		return
	}
	m.TasksInFlight.Set(float64(count))
}

// RecordFailedResult increments the error records counter for kind
func (m *Metrics) RecordFailedResult(kind string) {
	if m == nil {
		return
	}
	m.FailedResults.WithLabelValues(kind).Inc()
}

// SetPendingResults sets the number of undrained results
func (m *Metrics) SetPendingResults(count int) {
	if m == nil {
		return
	}
	m.PendingResults.Set(float64(count))
}

// RecordDroppedResult increments the dropped results counter
func (m *Metrics) RecordDroppedResult() {
	if m == nil {
		return
	}
	m.DroppedResults.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

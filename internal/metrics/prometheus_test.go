package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordPacketReceived()
	m.RecordSegment(true, 1.5)
	m.RecordHTTPRequest("GET", "/results", "200", 0.01)

	count, err := testutil.GatherAndCount(reg,
		"dictation_packets_received_total",
		"dictation_segments_detected_total",
		"dictation_http_requests_total",
	)
	if err != nil {
		t.Fatalf("GatherAndCount failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 series, got %d", count)
	}
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances on separate registries must not collide
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}

func TestRecordSegmentBoundaryLabel(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSegment(false, 1)
	m.RecordSegment(false, 1)
	m.RecordSegment(true, 2)

	if got := testutil.ToFloat64(m.SegmentsDetected.WithLabelValues("sentence")); got != 2 {
		t.Errorf("Expected 2 sentences, got %f", got)
	}
	if got := testutil.ToFloat64(m.SegmentsDetected.WithLabelValues("paragraph")); got != 1 {
		t.Errorf("Expected 1 paragraph, got %f", got)
	}
}

func TestRecordChunkCountsEvictions(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordChunk(0.1, 0)
	m.RecordChunk(0.1, 160)

	if got := testutil.ToFloat64(m.ChunksReceived); got != 2 {
		t.Errorf("Expected 2 chunks, got %f", got)
	}
	if got := testutil.ToFloat64(m.SamplesEvicted); got != 160 {
		t.Errorf("Expected 160 evicted samples, got %f", got)
	}
}

func TestBufferResetClearsGauge(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetBufferSeconds(12.5)
	m.RecordBufferReset()

	if got := testutil.ToFloat64(m.BufferSeconds); got != 0 {
		t.Errorf("Expected buffer gauge reset to 0, got %f", got)
	}
	if got := testutil.ToFloat64(m.BufferResets); got != 1 {
		t.Errorf("Expected 1 reset, got %f", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	m.RecordChunk(1, 10)
	m.RecordSegment(true, 1)
	m.RecordFailedResult("engine")
	m.RecordHTTPRequest("GET", "/", "200", 0)
	m.SetPendingResults(3)
}

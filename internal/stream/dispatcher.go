package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/skypro1111/dictation-service/internal/audio"
	"github.com/skypro1111/dictation-service/internal/metrics"
	"github.com/skypro1111/dictation-service/internal/results"
	"github.com/skypro1111/dictation-service/internal/segment"
	"github.com/skypro1111/dictation-service/internal/transcription"
)

var (
	// ErrDecode marks chunks that could not be decoded or resampled
	ErrDecode = errors.New("decode failed")
	// ErrDetect marks failures of the speech detection pass
	ErrDetect = errors.New("speech detection failed")
	// ErrEngine marks failed transcription engine calls
	ErrEngine = errors.New("transcription failed")
	// ErrClosed is returned when submitting to a closed dispatcher
	ErrClosed = errors.New("dispatcher closed")
)

// Config contains dispatcher configuration
type Config struct {
	SampleRate        int           // Rate of the segment buffer
	MaxBuffer         time.Duration // Retained audio cap
	MaxWorkers        int           // Chunks decoded at once
	MaxPendingResults int           // 0 means unbounded
	EngineTimeout     time.Duration // Per engine call, 0 means no timeout
}

// Dispatcher feeds chunks through the segment buffer and detector in the
// background and queues the transcription of every complete segment.
//
// Decoding runs in parallel on the worker pool. Buffer updates and engine
// calls run one task at a time in submission order, so a flush sees every
// chunk submitted before it and results queue in submission order.
type Dispatcher struct {
	config   Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	buffer   *audio.Buffer
	detector *segment.Detector
	engine   transcription.Engine
	queue    *results.Queue

	workers *semaphore.Weighted
	tickets atomic.Uint64
	scan    *stage // append, scan, trim, flush and reset
	calls   *stage // engine calls

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inFlight atomic.Int64

	lifecycleMu sync.RWMutex
	closed      bool

	// Statistics
	chunksSubmitted    uint64
	chunksFailed       uint64
	flushes            uint64
	resets             uint64
	segmentsDispatched uint64
	transcribed        uint64
	emptyResults       uint64
	engineFailures     uint64
	abandoned          uint64

	mu sync.RWMutex
}

// Status is the readiness snapshot reported to polling clients
type Status struct {
	ModelLoaded    bool    `json:"model_loaded"`
	BufferSeconds  float64 `json:"buffer_seconds"`
	TasksInFlight  int     `json:"tasks_in_flight"`
	PendingResults int     `json:"pending_results"`
}

// DispatcherStats represents dispatcher statistics
type DispatcherStats struct {
	ChunksSubmitted    uint64                `json:"chunks_submitted"`
	ChunksFailed       uint64                `json:"chunks_failed"`
	Flushes            uint64                `json:"flushes"`
	Resets             uint64                `json:"resets"`
	SegmentsDispatched uint64                `json:"segments_dispatched"`
	Transcribed        uint64                `json:"transcribed"`
	EmptyResults       uint64                `json:"empty_results"`
	EngineFailures     uint64                `json:"engine_failures"`
	Abandoned          uint64                `json:"abandoned"`
	TasksInFlight      int                   `json:"tasks_in_flight"`
	Buffer             audio.BufferStats     `json:"buffer"`
	Detector           segment.DetectorStats `json:"detector"`
	Queue              results.QueueStats    `json:"queue"`
}

// NewDispatcher creates a dispatcher around detector and engine. metrics may
// be nil.
func NewDispatcher(logger *slog.Logger, config Config, detector *segment.Detector,
	engine transcription.Engine, m *metrics.Metrics) (*Dispatcher, error) {

	if logger == nil {
		logger = slog.Default()
	}
	if detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if config.MaxWorkers <= 0 {
		return nil, fmt.Errorf("max workers must be positive, got %d", config.MaxWorkers)
	}
	if rate := detector.Config().SampleRate; rate != config.SampleRate {
		return nil, fmt.Errorf("detector sample rate %d does not match buffer rate %d", rate, config.SampleRate)
	}

	buffer, err := audio.NewBuffer(config.SampleRate, config.MaxBuffer)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment buffer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		config:   config,
		logger:   logger,
		metrics:  m,
		buffer:   buffer,
		detector: detector,
		engine:   engine,
		queue:    results.NewQueue(config.MaxPendingResults),
		workers:  semaphore.NewWeighted(int64(config.MaxWorkers)),
		scan:     newStage(),
		calls:    newStage(),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Submit queues an encoded audio chunk for processing and returns its id.
// The chunk is decoded, resampled and scanned in the background; failures
// surface as error records carrying capturedAt.
func (d *Dispatcher) Submit(data []byte, capturedAt time.Time) (string, error) {
	chunkID := uuid.NewString()

	err := d.spawn(func(t ticket) {
		d.processChunk(t, chunkID, capturedAt, func() ([]float32, error) {
			decoded, err := audio.DecodeChunk(data)
			if err != nil {
				return nil, err
			}
			return audio.Resample(decoded.Samples, decoded.SampleRate, d.config.SampleRate)
		})
	})
	if err != nil {
		return "", err
	}

	d.incrementChunksSubmitted()
	return chunkID, nil
}

// SubmitSamples queues mono float samples captured at sampleRate
func (d *Dispatcher) SubmitSamples(samples []float32, sampleRate int, capturedAt time.Time) (string, error) {
	chunkID := uuid.NewString()

	err := d.spawn(func(t ticket) {
		d.processChunk(t, chunkID, capturedAt, func() ([]float32, error) {
			return audio.Resample(samples, sampleRate, d.config.SampleRate)
		})
	})
	if err != nil {
		return "", err
	}

	d.incrementChunksSubmitted()
	return chunkID, nil
}

// Flush forces every pending speech interval out as a segment in the
// background and discards the rest of the buffer. Chunks submitted before
// the call are part of the flush.
func (d *Dispatcher) Flush() error {
	flushID := uuid.NewString()

	if err := d.spawn(func(t ticket) { d.processFlush(t, flushID) }); err != nil {
		return err
	}

	d.mu.Lock()
	d.flushes++
	d.mu.Unlock()
	return nil
}

// Reset empties the segment buffer once every chunk submitted before it has
// reached the buffer. Segments already cut are not affected.
func (d *Dispatcher) Reset() {
	t := d.issue()
	defer d.leave(t)

	d.scan.enter(t)
	d.buffer.Reset()
	d.metrics.RecordBufferReset()

	d.mu.Lock()
	d.resets++
	d.mu.Unlock()

	d.logger.Info("Segment buffer reset")
}

// Drain removes and returns every queued result
func (d *Dispatcher) Drain() []results.Result {
	drained := d.queue.DrainAll()
	d.metrics.SetPendingResults(0)
	return drained
}

// Status returns the current readiness snapshot
func (d *Dispatcher) Status() Status {
	return Status{
		ModelLoaded:    transcription.IsLoaded(d.engine),
		BufferSeconds:  d.buffer.Duration().Seconds(),
		TasksInFlight:  int(d.inFlight.Load()),
		PendingResults: d.queue.Len(),
	}
}

// Wait blocks until every submitted task has finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting work and waits for running tasks. If ctx expires
// first, chunks still waiting for a worker are abandoned and in-flight engine
// calls are cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.lifecycleMu.Lock()
	if d.closed {
		d.lifecycleMu.Unlock()
		return nil
	}
	d.closed = true
	d.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}

	stats := d.GetStats()
	d.logger.Info("Dispatcher stopped",
		slog.Uint64("chunks_submitted", stats.ChunksSubmitted),
		slog.Uint64("segments_dispatched", stats.SegmentsDispatched),
		slog.Uint64("transcribed", stats.Transcribed),
		slog.Int("pending_results", stats.Queue.Pending),
	)
	return nil
}

func (d *Dispatcher) issue() ticket {
	return ticket(d.tickets.Add(1) - 1)
}

// leave releases every stage t may still hold
func (d *Dispatcher) leave(t ticket) {
	d.scan.leave(t)
	d.calls.leave(t)
}

// spawn takes the next ticket and runs task with it in the background
func (d *Dispatcher) spawn(task func(t ticket)) error {
	d.lifecycleMu.RLock()
	defer d.lifecycleMu.RUnlock()

	if d.closed {
		return ErrClosed
	}

	t := d.issue()
	d.wg.Add(1)
	d.metrics.SetTasksInFlight(int(d.inFlight.Add(1)))

	go func() {
		defer d.wg.Done()
		defer func() {
			d.metrics.SetTasksInFlight(int(d.inFlight.Add(-1)))
		}()
		defer d.leave(t)

		task(t)
	}()

	return nil
}

// processChunk runs one chunk from decoding to queued results
func (d *Dispatcher) processChunk(t ticket, chunkID string, capturedAt time.Time, decode func() ([]float32, error)) {
	kind := results.KindDecode
	defer func() {
		if r := recover(); r != nil {
			d.fail(chunkID, kind, fmt.Errorf("panic: %v", r), capturedAt, time.Now())
		}
	}()

	samples, err := d.decode(decode)
	if errors.Is(err, ErrClosed) {
		d.abandon(chunkID, err, capturedAt)
		return
	}
	if err != nil {
		d.fail(chunkID, kind, fmt.Errorf("%w: %w", ErrDecode, err), capturedAt, time.Now())
		return
	}

	kind = results.KindDetect
	d.scan.enter(t)
	segments, err := d.appendAndScan(samples)
	d.scan.leave(t)
	if err != nil {
		d.fail(chunkID, kind, fmt.Errorf("%w: %w", ErrDetect, err), capturedAt, time.Now())
		return
	}

	d.logger.Debug("Chunk processed",
		slog.String("chunk_id", chunkID),
		slog.Int("samples", len(samples)),
		slog.Int("segments", len(segments)),
	)

	if len(segments) == 0 {
		return
	}

	kind = results.KindEngine
	d.calls.enter(t)
	for _, seg := range segments {
		d.transcribe(chunkID, seg, capturedAt, false)
	}
}

// decode runs fn in a worker slot
func (d *Dispatcher) decode(fn func() ([]float32, error)) ([]float32, error) {
	if err := d.workers.Acquire(d.ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClosed, err)
	}
	defer d.workers.Release(1)

	return fn()
}

// abandon records a chunk dropped by a shutdown that ran out of time
func (d *Dispatcher) abandon(chunkID string, err error, capturedAt time.Time) {
	d.mu.Lock()
	d.abandoned++
	d.mu.Unlock()

	d.metrics.RecordFailedResult(string(results.KindDecode))
	d.logger.Warn("Chunk abandoned at shutdown",
		slog.String("chunk_id", chunkID),
		slog.String("error", err.Error()),
	)

	d.push(results.NewFailure(uuid.NewString(), results.KindDecode, err, capturedAt, time.Now()))
}

// appendAndScan appends samples, scans the whole buffer and trims what the
// detector reported complete. The caller holds the scan stage.
func (d *Dispatcher) appendAndScan(samples []float32) ([]segment.Segment, error) {
	evicted := d.buffer.Append(samples)
	d.metrics.RecordChunk(float64(len(samples))/float64(d.config.SampleRate), evicted)
	if evicted > 0 {
		d.logger.Warn("Segment buffer full, dropped oldest audio",
			slog.Int("evicted_samples", evicted),
		)
	}

	view := d.buffer.Snapshot()

	start := time.Now()
	segments, boundary, err := d.detector.Scan(view.Samples)
	d.metrics.RecordScan(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	if boundary > 0 {
		d.consume(view, boundary)
	}
	d.metrics.SetBufferSeconds(d.buffer.Duration().Seconds())

	return segments, nil
}

// processFlush forces out every pending segment
func (d *Dispatcher) processFlush(t ticket, flushID string) {
	defer func() {
		if r := recover(); r != nil {
			now := time.Now()
			d.fail(flushID, results.KindEngine, fmt.Errorf("panic: %v", r), now, now)
		}
	}()

	d.scan.enter(t)
	segments, err := d.flushBuffer()
	d.scan.leave(t)
	if err != nil {
		now := time.Now()
		d.fail(flushID, results.KindDetect, fmt.Errorf("%w: %w", ErrDetect, err), now, now)
		return
	}

	d.logger.Info("Buffer flushed", slog.Int("segments", len(segments)))

	d.calls.enter(t)
	for _, seg := range segments {
		d.transcribe(flushID, seg, time.Time{}, true)
	}
}

func (d *Dispatcher) flushBuffer() ([]segment.Segment, error) {
	view := d.buffer.Snapshot()
	segments, err := d.detector.Flush(view.Samples)

	// The residual buffer is discarded even when detection fails
	d.consume(view, len(view.Samples))
	d.metrics.SetBufferSeconds(d.buffer.Duration().Seconds())

	return segments, err
}

// consume trims the buffer up to boundary of view
func (d *Dispatcher) consume(view audio.View, boundary int) {
	if _, err := d.buffer.Consume(view, boundary); err != nil {
		if errors.Is(err, audio.ErrStaleView) {
			d.logger.Debug("Buffer reset before trim, skipping")
			return
		}
		d.logger.Error("Failed to trim segment buffer", slog.String("error", err.Error()))
	}
}

// transcribe runs one segment through the engine and queues the outcome.
// Flushed segments have no capture time and report zero latency.
func (d *Dispatcher) transcribe(sourceID string, seg segment.Segment, capturedAt time.Time, flushed bool) {
	d.mu.Lock()
	d.segmentsDispatched++
	d.mu.Unlock()

	durationSeconds := seg.Duration(d.config.SampleRate).Seconds()
	d.metrics.RecordSegment(seg.NewParagraph, durationSeconds)
	d.metrics.RecordTranscriptionRequest()

	start := time.Now()
	text, err := d.callEngine(seg.Audio)
	elapsed := time.Since(start)
	transcribedAt := time.Now()

	if flushed {
		capturedAt = transcribedAt
	}

	if err != nil {
		d.mu.Lock()
		d.engineFailures++
		d.mu.Unlock()

		d.metrics.RecordTranscriptionFailure(elapsed.Seconds())
		d.fail(sourceID, results.KindEngine, fmt.Errorf("%w: %w", ErrEngine, err), capturedAt, transcribedAt)
		return
	}

	if strings.TrimSpace(text) == "" {
		d.mu.Lock()
		d.emptyResults++
		d.mu.Unlock()

		d.metrics.RecordTranscriptionEmpty(elapsed.Seconds())
		d.logger.Debug("Segment produced no text",
			slog.String("source_id", sourceID),
			slog.Float64("segment_duration", durationSeconds),
		)
		return
	}

	record := results.NewTranscription(uuid.NewString(), text, seg.NewParagraph, capturedAt, transcribedAt)

	d.mu.Lock()
	d.transcribed++
	d.mu.Unlock()

	d.metrics.RecordTranscriptionSuccess(elapsed.Seconds(), record.Latency.Seconds())
	d.logger.Info("Segment transcribed",
		slog.String("source_id", sourceID),
		slog.String("result_id", record.ID),
		slog.Float64("segment_duration", durationSeconds),
		slog.Float64("trailing_silence", seg.TrailingSilence.Seconds()),
		slog.Bool("new_paragraph", seg.NewParagraph),
		slog.Float64("engine_duration", elapsed.Seconds()),
		slog.Float64("latency_ms", record.LatencyMs()),
		slog.Bool("flushed", flushed),
	)

	d.push(record)
}

// callEngine makes a single engine call. The caller holds the engine stage.
func (d *Dispatcher) callEngine(samples []float32) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()

	ctx := d.ctx
	if d.config.EngineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.EngineTimeout)
		defer cancel()
	}

	return d.engine.Transcribe(ctx, samples)
}

// fail queues an error record
func (d *Dispatcher) fail(sourceID string, kind results.Kind, err error, capturedAt, transcribedAt time.Time) {
	if kind != results.KindEngine {
		d.mu.Lock()
		d.chunksFailed++
		d.mu.Unlock()
	}

	d.metrics.RecordFailedResult(string(kind))
	d.logger.Error("Processing failed",
		slog.String("source_id", sourceID),
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()),
	)

	d.push(results.NewFailure(uuid.NewString(), kind, err, capturedAt, transcribedAt))
}

func (d *Dispatcher) push(record results.Result) {
	if dropped := d.queue.Push(record); dropped {
		d.metrics.RecordDroppedResult()
		d.logger.Warn("Result queue full, dropped oldest result")
	}
	d.metrics.SetPendingResults(d.queue.Len())
}

func (d *Dispatcher) incrementChunksSubmitted() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunksSubmitted++
}

// GetStats returns current dispatcher statistics
func (d *Dispatcher) GetStats() DispatcherStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return DispatcherStats{
		ChunksSubmitted:    d.chunksSubmitted,
		ChunksFailed:       d.chunksFailed,
		Flushes:            d.flushes,
		Resets:             d.resets,
		SegmentsDispatched: d.segmentsDispatched,
		Transcribed:        d.transcribed,
		EmptyResults:       d.emptyResults,
		EngineFailures:     d.engineFailures,
		Abandoned:          d.abandoned,
		TasksInFlight:      int(d.inFlight.Load()),
		Buffer:             d.buffer.GetStats(),
		Detector:           d.detector.GetStats(),
		Queue:              d.queue.GetStats(),
	}
}

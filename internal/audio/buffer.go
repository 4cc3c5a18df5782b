package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrStaleView is returned by Consume when the view was taken before a reset
var ErrStaleView = errors.New("buffer view is stale")

// int16Scale converts int16-scale samples to the [-1, 1] range
const int16Scale = 32768.0

// Buffer is the rolling sample accumulator for a recording session.
// It keeps at most maxSamples normalized float samples and drops the oldest
// ones first once the cap is exceeded.
type Buffer struct {
	sampleRate int
	maxSamples int

	samples []float32

	// Generation tracking. base is the absolute index of samples[0] since the
	// last reset, epoch counts resets.
	base  int64
	epoch uint64

	// Statistics
	totalAppended uint64
	totalEvicted  uint64
	totalConsumed uint64
	resets        uint64
	lastUpdate    time.Time

	mu sync.Mutex
}

// View is an immutable copy of the buffer content at snapshot time.
// Indices inside Samples are only meaningful for the generation the view was
// taken from.
type View struct {
	Samples []float32
	base    int64
	epoch   uint64
}

// Duration returns the duration covered by the view at the given rate
func (v View) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(v.Samples)) * time.Second / time.Duration(sampleRate)
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	Samples       int       `json:"samples"`
	Seconds       float64   `json:"seconds"`
	MaxSamples    int       `json:"max_samples"`
	TotalAppended uint64    `json:"total_appended"`
	TotalEvicted  uint64    `json:"total_evicted"`
	TotalConsumed uint64    `json:"total_consumed"`
	Resets        uint64    `json:"resets"`
	LastUpdate    time.Time `json:"last_update"`
}

// NewBuffer creates a buffer holding at most maxDuration of audio at sampleRate
func NewBuffer(sampleRate int, maxDuration time.Duration) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	maxSamples := int(maxDuration.Seconds() * float64(sampleRate))
	if maxSamples <= 0 {
		return nil, fmt.Errorf("max duration must cover at least one sample, got %s", maxDuration)
	}

	return &Buffer{
		sampleRate: sampleRate,
		maxSamples: maxSamples,
		samples:    make([]float32, 0, sampleRate*4), // Pre-allocate 4 seconds
	}, nil
}

// Append normalizes samples, adds them at the tail and evicts from the head
// until the buffer fits its cap again. It returns the number of samples
// evicted by this call.
func (b *Buffer) Append(samples []float32) int {
	normalized := Normalize(samples)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, normalized...)
	b.totalAppended += uint64(len(normalized))
	b.lastUpdate = time.Now()

	evicted := 0
	if over := len(b.samples) - b.maxSamples; over > 0 {
		b.dropHead(over)
		b.totalEvicted += uint64(over)
		evicted = over
	}

	return evicted
}

// Snapshot returns a copy of the current content together with its generation
func (b *Buffer) Snapshot() View {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := make([]float32, len(b.samples))
	copy(cp, b.samples)

	return View{Samples: cp, base: b.base, epoch: b.epoch}
}

// Consume discards everything before index upto of the given view.
// Samples already evicted or consumed since the snapshot are accounted for,
// so a boundary that has already been passed is a no-op.
func (b *Buffer) Consume(view View, upto int) (int, error) {
	if upto < 0 || upto > len(view.Samples) {
		return 0, fmt.Errorf("consume index %d out of range [0, %d]", upto, len(view.Samples))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if view.epoch != b.epoch {
		return 0, ErrStaleView
	}

	n := int(view.base + int64(upto) - b.base)
	if n <= 0 {
		return 0, nil
	}
	if n > len(b.samples) {
		n = len(b.samples)
	}

	b.dropHead(n)
	b.totalConsumed += uint64(n)

	return n, nil
}

// Reset empties the buffer and starts a new generation
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = b.samples[:0]
	b.base = 0
	b.epoch++
	b.resets++
	b.lastUpdate = time.Now()
}

// dropHead removes the first n samples; callers hold b.mu
func (b *Buffer) dropHead(n int) {
	remaining := copy(b.samples, b.samples[n:])
	b.samples = b.samples[:remaining]
	b.base += int64(n)
}

// Size returns the current number of samples in the buffer
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Duration returns the duration of the buffered audio
func (b *Buffer) Duration() time.Duration {
	return time.Duration(b.Size()) * time.Second / time.Duration(b.sampleRate)
}

// SampleRate returns the buffer sample rate
func (b *Buffer) SampleRate() int {
	return b.sampleRate
}

// GetStats returns current buffer statistics
func (b *Buffer) GetStats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BufferStats{
		Samples:       len(b.samples),
		Seconds:       float64(len(b.samples)) / float64(b.sampleRate),
		MaxSamples:    b.maxSamples,
		TotalAppended: b.totalAppended,
		TotalEvicted:  b.totalEvicted,
		TotalConsumed: b.totalConsumed,
		Resets:        b.resets,
		LastUpdate:    b.lastUpdate,
	}
}

// Normalize returns samples scaled into [-1, 1]. Input whose peak magnitude
// exceeds 1.0 is treated as int16-scale and divided by 32768; anything else is
// copied unchanged.
func Normalize(samples []float32) []float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}

	out := make([]float32, len(samples))
	if peak <= 1.0 {
		copy(out, samples)
		return out
	}

	for i, s := range samples {
		out[i] = s / int16Scale
	}
	return out
}

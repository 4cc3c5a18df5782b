package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Interval is a half-open [Start, End) range of sample indices holding speech
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the interval length in samples
func (i Interval) Len() int {
	return i.End - i.Start
}

// Options are the per-call detection parameters
type Options struct {
	SampleRate int
	Threshold  float32       // Speech probability threshold (0.0 - 1.0)
	MinSpeech  time.Duration // Shorter speech runs are discarded
	MinSilence time.Duration // Shorter pauses do not split speech
}

// Oracle returns the ordered, disjoint speech intervals found in a buffer
type Oracle interface {
	Detect(samples []float32, opts Options) ([]Interval, error)
}

// negThresholdOffset is how far below Threshold a frame must fall before it
// counts as silence inside a speech run
const negThresholdOffset = 0.15

// Processor is an energy based Oracle. It scores fixed windows by RMS level
// and applies the usual speech/silence hysteresis on top of the scores.
type Processor struct {
	windowSize     int     // Samples per window (512 = 32ms at 16kHz)
	referenceLevel float64 // RMS level that maps to probability 1.0

	// Statistics
	totalScans    uint64
	totalWindows  uint64
	voiceWindows  uint64
	lastProcessed time.Time
	lastDuration  time.Duration

	mu sync.RWMutex
}

// ProcessorStats represents VAD processor statistics
type ProcessorStats struct {
	TotalScans      uint64        `json:"total_scans"`
	TotalWindows    uint64        `json:"total_windows"`
	VoiceWindows    uint64        `json:"voice_windows"`
	VoicePercentage float64       `json:"voice_percentage"`
	LastProcessed   time.Time     `json:"last_processed"`
	LastDuration    time.Duration `json:"last_duration"`
	WindowSize      int           `json:"window_size"`
}

// NewProcessor creates a new energy based VAD processor
func NewProcessor(windowSize int, referenceLevel float64) (*Processor, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}

	if referenceLevel <= 0 || referenceLevel > 1 {
		return nil, fmt.Errorf("reference level must be in (0, 1], got %f", referenceLevel)
	}

	return &Processor{
		windowSize:     windowSize,
		referenceLevel: referenceLevel,
	}, nil
}

// Detect implements Oracle
func (p *Processor) Detect(samples []float32, opts Options) ([]Interval, error) {
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", opts.SampleRate)
	}

	if opts.Threshold < 0 || opts.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", opts.Threshold)
	}

	startTime := time.Now()

	negThreshold := opts.Threshold - negThresholdOffset
	if negThreshold < 0.01 {
		negThreshold = 0.01
	}

	minSpeechSamples := int(opts.MinSpeech.Seconds() * float64(opts.SampleRate))
	minSilenceSamples := int(opts.MinSilence.Seconds() * float64(opts.SampleRate))

	var (
		intervals []Interval
		current   Interval
		triggered bool
		tempEnd   = -1
		windows   uint64
		voiced    uint64
	)

	for start := 0; start < len(samples); start += p.windowSize {
		end := start + p.windowSize
		if end > len(samples) {
			end = len(samples)
		}

		prob := p.Probability(samples[start:end])
		windows++

		if prob >= opts.Threshold {
			voiced++
			tempEnd = -1
			if !triggered {
				triggered = true
				current = Interval{Start: start}
			}
			continue
		}

		if !triggered || prob >= negThreshold {
			continue
		}

		// Silence inside a speech run; close it once the pause is long enough
		if tempEnd < 0 {
			tempEnd = start
		}
		if start-tempEnd < minSilenceSamples {
			continue
		}

		current.End = tempEnd
		if current.Len() > minSpeechSamples {
			intervals = append(intervals, current)
		}
		triggered = false
		tempEnd = -1
	}

	// Speech still open at the buffer edge ends where the pause began, or at
	// the edge itself
	if triggered {
		current.End = len(samples)
		if tempEnd >= 0 {
			current.End = tempEnd
		}
		if current.Len() > minSpeechSamples {
			intervals = append(intervals, current)
		}
	}

	p.mu.Lock()
	p.totalScans++
	p.totalWindows += windows
	p.voiceWindows += voiced
	p.lastProcessed = time.Now()
	p.lastDuration = time.Since(startTime)
	p.mu.Unlock()

	return intervals, nil
}

// Probability maps the RMS level of a window to a speech probability
func (p *Processor) Probability(window []float32) float32 {
	if len(window) == 0 {
		return 0
	}

	var energy float64
	for _, sample := range window {
		energy += float64(sample) * float64(sample)
	}
	rms := math.Sqrt(energy / float64(len(window)))

	probability := rms / p.referenceLevel
	if probability > 1.0 {
		probability = 1.0
	}

	return float32(probability)
}

// GetStats returns current processor statistics
func (p *Processor) GetStats() ProcessorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	voicePercentage := float64(0)
	if p.totalWindows > 0 {
		voicePercentage = float64(p.voiceWindows) / float64(p.totalWindows) * 100
	}

	return ProcessorStats{
		TotalScans:      p.totalScans,
		TotalWindows:    p.totalWindows,
		VoiceWindows:    p.voiceWindows,
		VoicePercentage: voicePercentage,
		LastProcessed:   p.lastProcessed,
		LastDuration:    p.lastDuration,
		WindowSize:      p.windowSize,
	}
}

// Reset resets the processor statistics
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalScans = 0
	p.totalWindows = 0
	p.voiceWindows = 0
	p.lastProcessed = time.Time{}
	p.lastDuration = 0
}

// GetWindowSize returns the window size in samples
func (p *Processor) GetWindowSize() int {
	return p.windowSize
}

var _ Oracle = (*Processor)(nil)

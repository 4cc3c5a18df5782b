package segment

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skypro1111/dictation-service/internal/vad"
)

// ErrInvalidInterval is returned when the oracle reports intervals that are
// out of bounds, empty or out of order
var ErrInvalidInterval = errors.New("invalid speech interval")

// Config contains configuration for segment detection
type Config struct {
	SampleRate     int
	MinScan        time.Duration // Buffers shorter than this are not scanned
	SentencePause  time.Duration // Trailing silence that completes a segment
	ParagraphPause time.Duration // Trailing silence that also starts a paragraph
	Threshold      float32
	MinSpeech      time.Duration
	MinSilence     time.Duration
}

// DefaultConfig returns the detection defaults for 16kHz dictation
func DefaultConfig() Config {
	return Config{
		SampleRate:     16000,
		MinScan:        500 * time.Millisecond,
		SentencePause:  2 * time.Second,
		ParagraphPause: 4 * time.Second,
		Threshold:      0.5,
		MinSpeech:      250 * time.Millisecond,
		MinSilence:     2 * time.Second,
	}
}

// Segment is a complete span of speech ready for transcription
type Segment struct {
	Audio           []float32
	Start           int // Sample index in the scanned buffer
	End             int
	TrailingSilence time.Duration
	NewParagraph    bool
}

// Duration returns the length of the segment audio
func (s Segment) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.Audio)) * time.Second / time.Duration(sampleRate)
}

// Detector decides which speech intervals in a buffer are complete
type Detector struct {
	config Config
	oracle vad.Oracle

	// Statistics
	scans         uint64
	flushes       uint64
	segments      uint64
	paragraphs    uint64
	totalDuration time.Duration

	mu sync.RWMutex
}

// DetectorStats represents detector statistics
type DetectorStats struct {
	Scans         uint64        `json:"scans"`
	Flushes       uint64        `json:"flushes"`
	Segments      uint64        `json:"segments"`
	Paragraphs    uint64        `json:"paragraphs"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgSegmentSec float64       `json:"avg_segment_duration_sec"`
}

// NewDetector creates a new segment detector
func NewDetector(config Config, oracle vad.Oracle) (*Detector, error) {
	if oracle == nil {
		return nil, fmt.Errorf("oracle is required")
	}
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}
	if config.SentencePause <= 0 {
		return nil, fmt.Errorf("sentence pause must be positive, got %s", config.SentencePause)
	}
	if config.ParagraphPause < config.SentencePause {
		return nil, fmt.Errorf("paragraph pause (%s) must not be shorter than sentence pause (%s)",
			config.ParagraphPause, config.SentencePause)
	}

	return &Detector{
		config: config,
		oracle: oracle,
	}, nil
}

// Scan returns the complete segments of samples in temporal order and the
// index up to which the caller may trim the buffer. A boundary of 0 means
// nothing is complete yet.
func (d *Detector) Scan(samples []float32) ([]Segment, int, error) {
	if d.samplesToDuration(len(samples)) < d.config.MinScan {
		return nil, 0, nil
	}

	intervals, err := d.detect(samples)
	if err != nil {
		return nil, 0, err
	}

	var (
		segments []Segment
		boundary int
	)
	for i, iv := range intervals {
		silence := d.trailingSilence(intervals, i, len(samples))
		if silence < d.config.SentencePause {
			continue
		}

		segments = append(segments, d.extract(samples, iv, silence, silence >= d.config.ParagraphPause))
		if iv.End > boundary {
			boundary = iv.End
		}
	}

	d.record(segments, false)
	return segments, boundary, nil
}

// Flush treats every speech interval as complete. The last segment always
// starts a paragraph. The caller is expected to discard the buffer afterwards.
func (d *Detector) Flush(samples []float32) ([]Segment, error) {
	if len(samples) == 0 {
		d.record(nil, true)
		return nil, nil
	}

	intervals, err := d.detect(samples)
	if err != nil {
		return nil, err
	}

	segments := make([]Segment, 0, len(intervals))
	for i, iv := range intervals {
		silence := d.trailingSilence(intervals, i, len(samples))
		paragraph := silence >= d.config.ParagraphPause || i == len(intervals)-1
		segments = append(segments, d.extract(samples, iv, silence, paragraph))
	}

	d.record(segments, true)
	return segments, nil
}

// detect runs the oracle and checks that its intervals are usable
func (d *Detector) detect(samples []float32) ([]vad.Interval, error) {
	intervals, err := d.oracle.Detect(samples, vad.Options{
		SampleRate: d.config.SampleRate,
		Threshold:  d.config.Threshold,
		MinSpeech:  d.config.MinSpeech,
		MinSilence: d.config.MinSilence,
	})
	if err != nil {
		return nil, fmt.Errorf("speech detection failed: %w", err)
	}

	prevEnd := 0
	for _, iv := range intervals {
		if iv.Start < prevEnd || iv.End <= iv.Start || iv.End > len(samples) {
			return nil, fmt.Errorf("%w: [%d, %d) in buffer of %d samples",
				ErrInvalidInterval, iv.Start, iv.End, len(samples))
		}
		prevEnd = iv.End
	}

	return intervals, nil
}

// trailingSilence measures the gap after interval i, up to the next interval
// or the live buffer edge
func (d *Detector) trailingSilence(intervals []vad.Interval, i, bufferLen int) time.Duration {
	next := bufferLen
	if i+1 < len(intervals) {
		next = intervals[i+1].Start
	}
	return d.samplesToDuration(next - intervals[i].End)
}

// extract copies the interval audio out of the scanned buffer
func (d *Detector) extract(samples []float32, iv vad.Interval, silence time.Duration, paragraph bool) Segment {
	audio := make([]float32, iv.Len())
	copy(audio, samples[iv.Start:iv.End])

	return Segment{
		Audio:           audio,
		Start:           iv.Start,
		End:             iv.End,
		TrailingSilence: silence,
		NewParagraph:    paragraph,
	}
}

func (d *Detector) samplesToDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(d.config.SampleRate)
}

// record updates statistics
func (d *Detector) record(segments []Segment, flush bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if flush {
		d.flushes++
	} else {
		d.scans++
	}

	for _, s := range segments {
		d.segments++
		if s.NewParagraph {
			d.paragraphs++
		}
		d.totalDuration += s.Duration(d.config.SampleRate)
	}
}

// GetStats returns current detector statistics
func (d *Detector) GetStats() DetectorStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	avgDuration := float64(0)
	if d.segments > 0 {
		avgDuration = d.totalDuration.Seconds() / float64(d.segments)
	}

	return DetectorStats{
		Scans:         d.scans,
		Flushes:       d.flushes,
		Segments:      d.segments,
		Paragraphs:    d.paragraphs,
		TotalDuration: d.totalDuration,
		AvgSegmentSec: avgDuration,
	}
}

// Config returns the detector configuration
func (d *Detector) Config() Config {
	return d.config
}

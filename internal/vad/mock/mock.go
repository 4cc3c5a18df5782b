// Package mock provides a test double for vad.Oracle.
//
// Set Intervals to return a fixed answer, or DetectFunc to compute one from
// the buffer. Every call is recorded in DetectCalls.
package mock

import (
	"sync"

	"github.com/skypro1111/dictation-service/internal/vad"
)

// DetectCall records a single invocation of Oracle.Detect.
type DetectCall struct {
	// Samples is the length of the buffer that was scanned.
	Samples int
	// Opts are the options passed to Detect.
	Opts vad.Options
}

// Oracle is a mock implementation of vad.Oracle.
type Oracle struct {
	mu sync.Mutex

	// DetectFunc, if set, computes the result of every Detect call.
	DetectFunc func(samples []float32, opts vad.Options) ([]vad.Interval, error)

	// Intervals is returned when DetectFunc is nil. Intervals reaching past the
	// scanned buffer are clipped to it.
	Intervals []vad.Interval

	// DetectErr, if non-nil, is returned when DetectFunc is nil.
	DetectErr error

	// DetectCalls records every call to Detect in order.
	DetectCalls []DetectCall
}

// Detect records the call and returns the configured answer.
func (o *Oracle) Detect(samples []float32, opts vad.Options) ([]vad.Interval, error) {
	o.mu.Lock()
	o.DetectCalls = append(o.DetectCalls, DetectCall{Samples: len(samples), Opts: opts})
	fn := o.DetectFunc
	intervals := o.Intervals
	err := o.DetectErr
	o.mu.Unlock()

	if fn != nil {
		return fn(samples, opts)
	}
	if err != nil {
		return nil, err
	}

	var out []vad.Interval
	for _, iv := range intervals {
		if iv.Start >= len(samples) {
			continue
		}
		if iv.End > len(samples) {
			iv.End = len(samples)
		}
		out = append(out, iv)
	}
	return out, nil
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (o *Oracle) Calls() []DetectCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]DetectCall, len(o.DetectCalls))
	copy(out, o.DetectCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (o *Oracle) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.DetectCalls = nil
}

// Ensure Oracle implements vad.Oracle at compile time.
var _ vad.Oracle = (*Oracle)(nil)

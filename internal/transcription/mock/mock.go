// Package mock provides a test double for transcription.Engine.
//
// Texts are returned one per call in order; once exhausted, Text is returned.
// TranscribeFunc overrides both. The engine records every call and tracks how
// many calls overlapped, so tests can check that callers serialize access.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/skypro1111/dictation-service/internal/transcription"
)

// TranscribeCall records a single invocation of Engine.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the audio passed to Transcribe.
	Samples []float32
}

// Engine is a mock implementation of transcription.Engine.
type Engine struct {
	mu sync.Mutex

	// TranscribeFunc, if set, computes the result of every call.
	TranscribeFunc func(ctx context.Context, samples []float32) (string, error)

	// Texts are returned one per call, in order.
	Texts []string

	// Text is returned once Texts is exhausted.
	Text string

	// Err, if non-nil, is returned by every call that TranscribeFunc does
	// not handle.
	Err error

	// Delay is slept before answering.
	Delay time.Duration

	// NotLoaded makes Loaded report false.
	NotLoaded bool

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall

	inFlight    int
	maxInFlight int
}

// Transcribe records the call and returns the configured answer.
func (e *Engine) Transcribe(ctx context.Context, samples []float32) (string, error) {
	e.mu.Lock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	e.TranscribeCalls = append(e.TranscribeCalls, TranscribeCall{Samples: cp})
	e.inFlight++
	if e.inFlight > e.maxInFlight {
		e.maxInFlight = e.inFlight
	}
	fn := e.TranscribeFunc
	delay := e.Delay
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inFlight--
		e.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}

	if fn != nil {
		return fn(ctx, samples)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Err != nil {
		return "", e.Err
	}
	if len(e.Texts) > 0 {
		text := e.Texts[0]
		e.Texts = e.Texts[1:]
		return text, nil
	}
	return e.Text, nil
}

// Loaded implements transcription.Loader.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.NotLoaded
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (e *Engine) Calls() []TranscribeCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TranscribeCall, len(e.TranscribeCalls))
	copy(out, e.TranscribeCalls)
	return out
}

// MaxInFlight returns the highest number of overlapping calls seen.
func (e *Engine) MaxInFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxInFlight
}

// Reset clears all recorded calls. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.TranscribeCalls = nil
	e.maxInFlight = 0
}

// Ensure Engine implements transcription.Engine at compile time.
var (
	_ transcription.Engine = (*Engine)(nil)
	_ transcription.Loader = (*Engine)(nil)
)

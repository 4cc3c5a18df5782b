//go:build whisper

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/skypro1111/dictation-service/internal/transcription"
)

// Engine is a transcription.Engine backed by a whisper.cpp model loaded once
// at startup
type Engine struct {
	config Config
	model  whisperlib.Model

	mu     sync.RWMutex
	closed bool
}

// New loads the model at config.ModelPath
func New(config Config) (*Engine, error) {
	if config.ModelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}

	model, err := whisperlib.New(config.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", config.ModelPath, err)
	}

	return &Engine{
		config: config,
		model:  model,
	}, nil
}

// Transcribe implements transcription.Engine using a fresh whisper context
// per call
func (e *Engine) Transcribe(ctx context.Context, samples []float32) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return "", errors.New("whisper: engine closed")
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	wctx, err := e.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if e.config.Language != "" {
		if err := wctx.SetLanguage(e.config.Language); err != nil {
			return "", fmt.Errorf("whisper: set language %q: %w", e.config.Language, err)
		}
	}
	if e.config.Threads > 0 {
		wctx.SetThreads(uint(e.config.Threads))
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

// Loaded implements transcription.Loader
func (e *Engine) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases the model
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	return e.model.Close()
}

var (
	_ transcription.Engine = (*Engine)(nil)
	_ transcription.Loader = (*Engine)(nil)
)

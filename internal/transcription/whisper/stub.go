//go:build !whisper

package whisper

import (
	"context"

	"github.com/skypro1111/dictation-service/internal/transcription"
)

// Engine is unavailable without the whisper build tag
type Engine struct{}

// New always fails with ErrNotCompiled
func New(config Config) (*Engine, error) {
	return nil, ErrNotCompiled
}

// Transcribe implements transcription.Engine
func (e *Engine) Transcribe(ctx context.Context, samples []float32) (string, error) {
	return "", ErrNotCompiled
}

// Loaded implements transcription.Loader
func (e *Engine) Loaded() bool {
	return false
}

// Close is a no-op
func (e *Engine) Close() error {
	return nil
}

var _ transcription.Engine = (*Engine)(nil)

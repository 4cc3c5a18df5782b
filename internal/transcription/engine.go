package transcription

import "context"

// Engine turns a segment of 16kHz mono samples into text. An empty string
// means the engine heard nothing worth transcribing. Implementations are not
// required to be safe for concurrent use.
type Engine interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
}

// Loader is implemented by engines that load a model before use
type Loader interface {
	Loaded() bool
}

// IsLoaded reports whether engine is ready. Engines without a model are
// always ready.
func IsLoaded(engine Engine) bool {
	if engine == nil {
		return false
	}
	if l, ok := engine.(Loader); ok {
		return l.Loaded()
	}
	return true
}

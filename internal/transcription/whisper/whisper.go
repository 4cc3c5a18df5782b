// Package whisper runs transcription in process with whisper.cpp.
//
// The native engine needs the whisper.cpp static library and headers at link
// time (LIBRARY_PATH and C_INCLUDE_PATH) and is only built with the whisper
// build tag. Without the tag, New reports ErrNotCompiled.
package whisper

import "errors"

// ErrNotCompiled is returned by New when the binary was built without the
// whisper build tag
var ErrNotCompiled = errors.New("whisper: native engine not compiled in (build with -tags whisper)")

// Config contains native engine configuration
type Config struct {
	ModelPath string
	Language  string // Empty means auto detect
	Threads   int    // 0 keeps the whisper.cpp default
}

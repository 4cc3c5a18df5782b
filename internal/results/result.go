package results

import (
	"encoding/json"
	"math"
	"time"
)

// Kind classifies a failed record
type Kind string

const (
	KindDecode Kind = "decode"
	KindDetect Kind = "detect"
	KindEngine Kind = "engine"
)

// Result is a record handed to the polling consumer. It is either
// Transcribed or Failed.
type Result interface {
	ResultID() string
	Captured() time.Time
	Transcribed() time.Time
	isResult()
}

// Transcription is a successfully transcribed segment
type Transcription struct {
	ID            string
	Text          string
	NewParagraph  bool
	HasSpeech     bool
	CapturedAt    time.Time
	TranscribedAt time.Time
	Latency       time.Duration
}

// Failure is a chunk or segment that could not be transcribed
type Failure struct {
	ID            string
	Err           string
	Kind          Kind
	CapturedAt    time.Time
	TranscribedAt time.Time
}

// ResultID implements Result
func (t *Transcription) ResultID() string { return t.ID }

// Captured implements Result
func (t *Transcription) Captured() time.Time { return t.CapturedAt }

// Transcribed implements Result
func (t *Transcription) Transcribed() time.Time { return t.TranscribedAt }

func (*Transcription) isResult() {}

// ResultID implements Result
func (f *Failure) ResultID() string { return f.ID }

// Captured implements Result
func (f *Failure) Captured() time.Time { return f.CapturedAt }

// Transcribed implements Result
func (f *Failure) Transcribed() time.Time { return f.TranscribedAt }

func (*Failure) isResult() {}

// LatencyMs returns the capture to transcription latency in milliseconds
func (t *Transcription) LatencyMs() float64 {
	return float64(t.Latency) / float64(time.Millisecond)
}

// NewTranscription builds a record for transcribed text. Latency is measured
// from capturedAt and never reported as negative.
func NewTranscription(id, text string, newParagraph bool, capturedAt, transcribedAt time.Time) *Transcription {
	latency := transcribedAt.Sub(capturedAt)
	if latency < 0 {
		latency = 0
	}

	return &Transcription{
		ID:            id,
		Text:          text,
		NewParagraph:  newParagraph,
		HasSpeech:     true,
		CapturedAt:    capturedAt,
		TranscribedAt: transcribedAt,
		Latency:       latency,
	}
}

// NewFailure builds an error record
func NewFailure(id string, kind Kind, err error, capturedAt, transcribedAt time.Time) *Failure {
	return &Failure{
		ID:            id,
		Err:           err.Error(),
		Kind:          kind,
		CapturedAt:    capturedAt,
		TranscribedAt: transcribedAt,
	}
}

type transcriptionJSON struct {
	ID            string  `json:"id"`
	Text          string  `json:"text"`
	NewParagraph  bool    `json:"new_paragraph"`
	HasSpeech     bool    `json:"has_speech"`
	CapturedAt    float64 `json:"captured_at"`
	TranscribedAt float64 `json:"transcribed_at"`
	LatencyMs     float64 `json:"latency_ms"`
}

type failureJSON struct {
	ID            string  `json:"id"`
	Error         string  `json:"error"`
	Kind          Kind    `json:"kind"`
	CapturedAt    float64 `json:"captured_at"`
	TranscribedAt float64 `json:"transcribed_at"`
}

// MarshalJSON encodes timestamps as Unix seconds
func (t *Transcription) MarshalJSON() ([]byte, error) {
	return json.Marshal(transcriptionJSON{
		ID:            t.ID,
		Text:          t.Text,
		NewParagraph:  t.NewParagraph,
		HasSpeech:     t.HasSpeech,
		CapturedAt:    UnixSeconds(t.CapturedAt),
		TranscribedAt: UnixSeconds(t.TranscribedAt),
		LatencyMs:     t.LatencyMs(),
	})
}

// MarshalJSON encodes timestamps as Unix seconds
func (f *Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(failureJSON{
		ID:            f.ID,
		Error:         f.Err,
		Kind:          f.Kind,
		CapturedAt:    UnixSeconds(f.CapturedAt),
		TranscribedAt: UnixSeconds(f.TranscribedAt),
	})
}

// UnixSeconds converts a time to fractional Unix seconds
func UnixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixMicro()) / 1e6
}

// FromUnixSeconds converts fractional Unix seconds to a time
func FromUnixSeconds(secs float64) time.Time {
	return time.UnixMicro(int64(math.Round(secs * 1e6)))
}

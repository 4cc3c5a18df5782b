package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http" json:"http"`
	UDP           UDPConfig           `yaml:"udp" json:"udp"`
	Audio         AudioConfig         `yaml:"audio" json:"audio"`
	Segmentation  SegmentationConfig  `yaml:"segmentation" json:"segmentation"`
	VAD           VADConfig           `yaml:"vad" json:"vad"`
	Transcription TranscriptionConfig `yaml:"transcription" json:"transcription"`
	Dispatch      DispatchConfig      `yaml:"dispatch" json:"dispatch"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port          int    `yaml:"port" json:"port"`
	Address       string `yaml:"address" json:"address"`
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	MaxChunkBytes int64  `yaml:"max_chunk_bytes" json:"max_chunk_bytes"`
}

// UDPConfig contains UDP ingest server configuration
type UDPConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Port        int    `yaml:"port" json:"port"`
	BindAddress string `yaml:"bind_address" json:"bind_address"`
	BufferSize  int    `yaml:"buffer_size" json:"buffer_size"`
	QueueSize   int    `yaml:"queue_size" json:"queue_size"` // packets waiting to be submitted
}

// AudioConfig contains segment buffer parameters
type AudioConfig struct {
	SampleRate   int     `yaml:"sample_rate" json:"sample_rate"`
	MaxBufferSec float64 `yaml:"max_buffer_sec" json:"max_buffer_sec"`
	MinScanSec   float64 `yaml:"min_scan_sec" json:"min_scan_sec"` // shorter buffers are not scanned
}

// SegmentationConfig contains the pause lengths that complete a segment
type SegmentationConfig struct {
	SentenceSilenceSec  float64 `yaml:"sentence_silence_sec" json:"sentence_silence_sec"`
	ParagraphSilenceSec float64 `yaml:"paragraph_silence_sec" json:"paragraph_silence_sec"`
}

// VADConfig contains Voice Activity Detection configuration
type VADConfig struct {
	Threshold          float32 `yaml:"threshold" json:"threshold"`
	WindowSize         int     `yaml:"window_size" json:"window_size"`                   // samples
	ReferenceLevel     float64 `yaml:"reference_level" json:"reference_level"`           // RMS mapped to probability 1.0
	MinSpeechDuration  float64 `yaml:"min_speech_duration" json:"min_speech_duration"`   // seconds
	MinSilenceDuration float64 `yaml:"min_silence_duration" json:"min_silence_duration"` // seconds
}

// TranscriptionConfig contains transcription engine configuration
type TranscriptionConfig struct {
	Engine         string `yaml:"engine" json:"engine"` // "http" or "whisper"
	Endpoint       string `yaml:"endpoint" json:"endpoint"`
	APIKey         string `yaml:"api_key" json:"-"`
	ModelPath      string `yaml:"model_path" json:"model_path"`
	Language       string `yaml:"language" json:"language"`
	Threads        int    `yaml:"threads" json:"threads"`
	Timeout        int    `yaml:"timeout" json:"timeout"` // seconds
	MaxRetries     int    `yaml:"max_retries" json:"max_retries"`
	ResponseFormat string `yaml:"response_format" json:"response_format"`
}

// DispatchConfig contains background processing configuration
type DispatchConfig struct {
	MaxWorkers        int `yaml:"max_workers" json:"max_workers"`
	MaxPendingResults int `yaml:"max_pending_results" json:"max_pending_results"` // 0 means unbounded
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// Default returns the configuration used for any value a file leaves out
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:          8000,
			Address:       "127.0.0.1",
			Enabled:       true,
			MaxChunkBytes: 10 << 20,
		},
		UDP: UDPConfig{
			Enabled:     false,
			Port:        4444,
			BindAddress: "127.0.0.1",
			BufferSize:  65536,
			QueueSize:   1000,
		},
		Audio: AudioConfig{
			SampleRate:   16000,
			MaxBufferSec: 30,
			MinScanSec:   0.5,
		},
		Segmentation: SegmentationConfig{
			SentenceSilenceSec:  2.0,
			ParagraphSilenceSec: 4.0,
		},
		VAD: VADConfig{
			Threshold:          0.5,
			WindowSize:         512,
			ReferenceLevel:     0.1,
			MinSpeechDuration:  0.25,
			MinSilenceDuration: 2.0,
		},
		Transcription: TranscriptionConfig{
			Engine:         "http",
			Endpoint:       "http://127.0.0.1:8080/inference",
			Timeout:        30,
			MaxRetries:     2,
			ResponseFormat: "json",
		},
		Dispatch: DispatchConfig{
			MaxWorkers:        4,
			MaxPendingResults: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file over the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.UDP.Validate(); err != nil {
		return fmt.Errorf("udp config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Segmentation.Validate(); err != nil {
		return fmt.Errorf("segmentation config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Dispatch.Validate(); err != nil {
		return fmt.Errorf("dispatch config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if !c.HTTP.Enabled && !c.UDP.Enabled {
		return fmt.Errorf("at least one of http or udp must be enabled")
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if !h.Enabled {
		return nil
	}

	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("http address cannot be empty when HTTP is enabled")
	}

	if h.MaxChunkBytes < 1024 {
		return fmt.Errorf("max_chunk_bytes must be at least 1024, got %d", h.MaxChunkBytes)
	}

	return nil
}

// Validate validates UDP configuration
func (u *UDPConfig) Validate() error {
	if !u.Enabled {
		return nil
	}

	if u.Port < 1 || u.Port > 65535 {
		return fmt.Errorf("udp port must be between 1 and 65535, got %d", u.Port)
	}

	if u.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if u.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", u.BufferSize)
	}

	if u.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", u.QueueSize)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.MaxBufferSec <= 0 {
		return fmt.Errorf("max_buffer_sec must be positive, got %f", a.MaxBufferSec)
	}

	if a.MinScanSec < 0 || a.MinScanSec >= a.MaxBufferSec {
		return fmt.Errorf("min_scan_sec must be between 0 and max_buffer_sec (%f), got %f",
			a.MaxBufferSec, a.MinScanSec)
	}

	return nil
}

// Validate validates segmentation configuration
func (s *SegmentationConfig) Validate() error {
	if s.SentenceSilenceSec <= 0 {
		return fmt.Errorf("sentence_silence_sec must be positive, got %f", s.SentenceSilenceSec)
	}

	if s.ParagraphSilenceSec < s.SentenceSilenceSec {
		return fmt.Errorf("paragraph_silence_sec (%f) must not be less than sentence_silence_sec (%f)",
			s.ParagraphSilenceSec, s.SentenceSilenceSec)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.Threshold < 0 || v.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", v.Threshold)
	}

	if v.WindowSize < 256 || v.WindowSize > 2048 {
		return fmt.Errorf("window_size must be between 256 and 2048 samples, got %d", v.WindowSize)
	}

	if v.ReferenceLevel <= 0 || v.ReferenceLevel > 1 {
		return fmt.Errorf("reference_level must be in (0, 1], got %f", v.ReferenceLevel)
	}

	if v.MinSpeechDuration <= 0 {
		return fmt.Errorf("min_speech_duration must be positive, got %f", v.MinSpeechDuration)
	}

	if v.MinSilenceDuration <= 0 {
		return fmt.Errorf("min_silence_duration must be positive, got %f", v.MinSilenceDuration)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	switch t.Engine {
	case "http":
		if t.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty for the http engine")
		}
	case "whisper":
		if t.ModelPath == "" {
			return fmt.Errorf("model_path cannot be empty for the whisper engine")
		}
	default:
		return fmt.Errorf("engine must be 'http' or 'whisper', got '%s'", t.Engine)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.Threads < 0 {
		return fmt.Errorf("threads cannot be negative, got %d", t.Threads)
	}

	validFormats := map[string]bool{"json": true, "verbose_json": true}
	if !validFormats[t.ResponseFormat] {
		return fmt.Errorf("response_format must be 'json' or 'verbose_json', got '%s'", t.ResponseFormat)
	}

	return nil
}

// Validate validates dispatch configuration
func (d *DispatchConfig) Validate() error {
	if d.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be at least 1, got %d", d.MaxWorkers)
	}

	if d.MaxPendingResults < 0 {
		return fmt.Errorf("max_pending_results cannot be negative, got %d", d.MaxPendingResults)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Anything other than stdout or stderr is a file path
	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}

// GetMaxBufferDuration returns the buffer cap as a time.Duration
func (a *AudioConfig) GetMaxBufferDuration() time.Duration {
	return seconds(a.MaxBufferSec)
}

// GetMinScanDuration returns the minimum scan length as a time.Duration
func (a *AudioConfig) GetMinScanDuration() time.Duration {
	return seconds(a.MinScanSec)
}

// GetSentencePause returns the sentence silence as a time.Duration
func (s *SegmentationConfig) GetSentencePause() time.Duration {
	return seconds(s.SentenceSilenceSec)
}

// GetParagraphPause returns the paragraph silence as a time.Duration
func (s *SegmentationConfig) GetParagraphPause() time.Duration {
	return seconds(s.ParagraphSilenceSec)
}

// GetMinSpeechDuration returns the minimum speech duration as a time.Duration
func (v *VADConfig) GetMinSpeechDuration() time.Duration {
	return seconds(v.MinSpeechDuration)
}

// GetMinSilenceDuration returns the minimum silence duration as a time.Duration
func (v *VADConfig) GetMinSilenceDuration() time.Duration {
	return seconds(v.MinSilenceDuration)
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

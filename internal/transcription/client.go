package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skypro1111/dictation-service/internal/audio"
)

// Client sends segments to a whisper-server compatible HTTP endpoint
type Client struct {
	config     Config
	httpClient *http.Client

	requests  atomic.Uint64
	successes atomic.Uint64
	failures  atomic.Uint64
	retries   atomic.Uint64

	latencyMu  sync.Mutex
	avgLatency time.Duration // exponentially weighted, alpha = 1/4
	lastError  string
}

// Config contains transcription client configuration
type Config struct {
	Endpoint       string
	APIKey         string // Optional bearer token
	Language       string
	SampleRate     int
	Timeout        time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration // First backoff step, doubled per attempt
	ResponseFormat string        // "json" or "verbose_json"
}

// Response represents the JSON body returned by the transcription endpoint
type Response struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

// Segment represents a segment of transcribed text
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// StatusError is returned when the endpoint answers with a non 2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

// ClientStats is a snapshot of the client counters. Retries are counted per
// extra attempt, the other counters per Transcribe call.
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	LastError       string        `json:"last_error,omitempty"`
}

// NewClient creates a new transcription HTTP client
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}

	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}

	if config.ResponseFormat == "" {
		config.ResponseFormat = "json"
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// Transcribe implements Engine. The server's text is returned as is.
func (c *Client) Transcribe(ctx context.Context, samples []float32) (string, error) {
	wavData, err := audio.EncodeWAV(samples, c.config.SampleRate)
	if err != nil {
		return "", fmt.Errorf("failed to encode segment: %w", err)
	}

	response, err := c.TranscribeWAV(ctx, wavData)
	if err != nil {
		return "", err
	}

	return response.Text, nil
}

// TranscribeWAV posts an encoded WAV file, retrying transient failures with
// exponential backoff capped at 30s
func (c *Client) TranscribeWAV(ctx context.Context, wavData []byte) (*Response, error) {
	started := time.Now()
	c.requests.Add(1)

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.retries.Add(1)
			if err := sleepCtx(ctx, backoff(c.config.RetryBackoff, attempt)); err != nil {
				c.recordFailure(err)
				return nil, err
			}
		}

		response, err := c.doRequest(ctx, wavData)
		if err == nil {
			c.recordSuccess(time.Since(started))
			return response, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	c.recordFailure(lastErr)
	return nil, fmt.Errorf("transcription failed: %w", lastErr)
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := base * time.Duration(math.Pow(2, float64(attempt-1)))
	return min(d, 30*time.Second)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// doRequest performs a single HTTP request to the transcription API
func (c *Client) doRequest(ctx context.Context, wavData []byte) (*Response, error) {
	body, contentType, err := c.createMultipartRequest(wavData)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "Dictation-Service/1.0")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var response Response
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	return &response, nil
}

// createMultipartRequest creates a multipart/form-data request body
func (c *Client) createMultipartRequest(wavData []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", "segment.wav")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(wavData); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"response_format": c.config.ResponseFormat,
		"temperature":     "0.0",
	}
	if c.config.Language != "" {
		fields["language"] = c.config.Language
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// isRetryableError reports whether a failed request is worth another attempt.
// Server errors, rate limiting, timeouts and network failures are retried.
func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func (c *Client) recordSuccess(elapsed time.Duration) {
	c.successes.Add(1)

	c.latencyMu.Lock()
	defer c.latencyMu.Unlock()
	if c.avgLatency == 0 {
		c.avgLatency = elapsed
	} else {
		c.avgLatency += (elapsed - c.avgLatency) / 4
	}
}

func (c *Client) recordFailure(err error) {
	c.failures.Add(1)

	c.latencyMu.Lock()
	defer c.latencyMu.Unlock()
	if err != nil {
		c.lastError = err.Error()
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	stats := ClientStats{
		TotalRequests:   c.requests.Load(),
		SuccessRequests: c.successes.Load(),
		FailedRequests:  c.failures.Load(),
		TotalRetries:    c.retries.Load(),
	}
	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.SuccessRequests) / float64(stats.TotalRequests) * 100
	}

	c.latencyMu.Lock()
	stats.AvgResponseTime = c.avgLatency
	stats.LastError = c.lastError
	c.latencyMu.Unlock()

	return stats
}

// Close releases idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

var _ Engine = (*Client)(nil)

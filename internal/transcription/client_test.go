package transcription

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skypro1111/dictation-service/internal/audio"
)

func testSegment() []float32 {
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = 0.1
	}
	return samples
}

func TestNewClient(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("Expected error for empty endpoint")
	}

	client, err := NewClient(Config{Endpoint: "http://localhost:8080/inference", MaxRetries: -1})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if client.config.SampleRate != 16000 {
		t.Errorf("Expected default sample rate 16000, got %d", client.config.SampleRate)
	}
	if client.config.MaxRetries != 3 {
		t.Errorf("Expected default retries 3, got %d", client.config.MaxRetries)
	}
	if client.config.ResponseFormat != "json" {
		t.Errorf("Expected default format json, got %s", client.config.ResponseFormat)
	}
}

func TestClientTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Expected bearer token, got %q", got)
		}

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm failed: %v", err)
			return
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("Expected language en, got %q", got)
		}
		if got := r.FormValue("response_format"); got != "json" {
			t.Errorf("Expected response_format json, got %q", got)
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Missing file field: %v", err)
			return
		}
		defer file.Close()

		data, _ := io.ReadAll(file)
		decoded, err := audio.DecodeWAV(data)
		if err != nil {
			t.Errorf("Uploaded file is not a valid WAV: %v", err)
			return
		}
		if decoded.SampleRate != 16000 || len(decoded.Samples) != 1600 {
			t.Errorf("Unexpected upload: %d Hz, %d samples", decoded.SampleRate, len(decoded.Samples))
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text": "  hello world \n"}`)
	}))
	defer server.Close()

	client, _ := NewClient(Config{Endpoint: server.URL, APIKey: "secret", Language: "en"})

	text, err := client.Transcribe(context.Background(), testSegment())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "  hello world \n" {
		t.Errorf("Expected server text unchanged, got %q", text)
	}

	stats := client.GetStats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 || stats.SuccessRate != 100 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestClientOmitsAuthWithoutKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Expected no Authorization header, got %q", got)
		}
		io.WriteString(w, `{"text": ""}`)
	}))
	defer server.Close()

	client, _ := NewClient(Config{Endpoint: server.URL})

	text, err := client.Transcribe(context.Background(), testSegment())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "" {
		t.Errorf("Expected empty text, got %q", text)
	}
}

func TestClientRetries(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantAttempts int32
	}{
		{"server error is retried", http.StatusInternalServerError, 3},
		{"rate limit is retried", http.StatusTooManyRequests, 3},
		{"bad request is not retried", http.StatusBadRequest, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			client, _ := NewClient(Config{
				Endpoint:     server.URL,
				MaxRetries:   2,
				RetryBackoff: time.Millisecond,
			})

			_, err := client.Transcribe(context.Background(), testSegment())

			var statusErr *StatusError
			if !errors.As(err, &statusErr) || statusErr.StatusCode != tt.status {
				t.Fatalf("Expected StatusError %d, got %v", tt.status, err)
			}
			if got := attempts.Load(); got != tt.wantAttempts {
				t.Errorf("Expected %d attempts, got %d", tt.wantAttempts, got)
			}
			if client.GetStats().FailedRequests != 1 {
				t.Errorf("Expected 1 failed request, got %d", client.GetStats().FailedRequests)
			}
		})
	}
}

func TestClientRecoversAfterRetry(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"text": "ready"}`)
	}))
	defer server.Close()

	client, _ := NewClient(Config{Endpoint: server.URL, MaxRetries: 2, RetryBackoff: time.Millisecond})

	text, err := client.Transcribe(context.Background(), testSegment())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "ready" {
		t.Errorf("Expected %q, got %q", "ready", text)
	}
	if client.GetStats().TotalRetries != 1 {
		t.Errorf("Expected 1 retry, got %d", client.GetStats().TotalRetries)
	}
}

func TestClientInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json")
	}))
	defer server.Close()

	client, _ := NewClient(Config{Endpoint: server.URL, MaxRetries: 0})

	if _, err := client.Transcribe(context.Background(), testSegment()); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestClientRejectsEmptySegment(t *testing.T) {
	client, _ := NewClient(Config{Endpoint: "http://127.0.0.1:1"})

	if _, err := client.Transcribe(context.Background(), nil); err == nil {
		t.Error("Expected error for empty segment")
	}
	if client.GetStats().TotalRequests != 0 {
		t.Error("Expected no request for an empty segment")
	}
}

func TestClientContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	client, _ := NewClient(Config{Endpoint: server.URL, MaxRetries: 5, RetryBackoff: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := client.Transcribe(ctx, testSegment()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Backoff ignored context cancellation")
	}
}

func TestIsLoaded(t *testing.T) {
	client, _ := NewClient(Config{Endpoint: "http://localhost"})
	if !IsLoaded(client) {
		t.Error("Expected HTTP client to report loaded")
	}
	if IsLoaded(nil) {
		t.Error("Expected nil engine to report not loaded")
	}
}

package main

import (
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/skypro1111/dictation-service/internal/audio"
)

// inferenceResponse mirrors the json response format of whisper-server
type inferenceResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

type mockEngine struct {
	logger   *slog.Logger
	phrases  []string
	delay    time.Duration
	requests atomic.Uint64
}

func (m *mockEngine) handleInference(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	wavData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	decoded, err := audio.DecodeWAV(wavData)
	if err != nil {
		http.Error(w, "Invalid WAV file", http.StatusBadRequest)
		return
	}
	duration := float64(len(decoded.Samples)) / float64(decoded.SampleRate)

	n := m.requests.Add(1)
	text := m.phrases[(n-1)%uint64(len(m.phrases))]

	m.logger.Info("Inference request",
		slog.Uint64("request", n),
		slog.String("filename", header.Filename),
		slog.Int("audio_size", len(wavData)),
		slog.Float64("duration_sec", duration),
		slog.String("language", r.FormValue("language")),
		slog.String("response_format", r.FormValue("response_format")),
	)

	time.Sleep(m.delay)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(inferenceResponse{
		Text:     text,
		Language: r.FormValue("language"),
		Duration: duration,
	})
}

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "Listen address")
	phrases := flag.String("phrases", "This is a test sentence.|Here comes another one.", "Canned replies separated by |")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated inference time")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	engine := &mockEngine{
		logger:  logger,
		phrases: strings.Split(*phrases, "|"),
		delay:   *delay,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/inference", engine.handleInference)

	logger.Info("Mock transcription engine starting",
		slog.String("endpoint", "http://"+*addr+"/inference"),
	)

	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

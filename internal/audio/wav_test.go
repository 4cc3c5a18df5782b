package audio

import (
	"errors"
	"math"
	"testing"
)

func sine(n, sampleRate int, freq float64, amplitude float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / float64(sampleRate)
		out[i] = amplitude * float32(math.Sin(2*math.Pi*freq*t))
	}
	return out
}

func TestEncodeDecodeWAV(t *testing.T) {
	// 440Hz sine wave for 0.1 seconds at 16kHz
	samples := sine(1600, testRate, 440, 0.5)

	wavData, err := EncodeWAV(samples, testRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	// 44 byte header plus 2 bytes per sample
	expectedSize := 44 + len(samples)*2
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	decoded, err := DecodeChunk(wavData)
	if err != nil {
		t.Fatalf("DecodeChunk failed: %v", err)
	}

	if decoded.SampleRate != testRate {
		t.Errorf("Expected sample rate %d, got %d", testRate, decoded.SampleRate)
	}
	if decoded.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", decoded.Channels)
	}
	if decoded.BitDepth != 16 {
		t.Errorf("Expected 16-bit, got %d", decoded.BitDepth)
	}
	if len(decoded.Samples) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded.Samples))
	}

	// Quantization error of 16-bit PCM
	for i := range samples {
		if diff := math.Abs(float64(samples[i] - decoded.Samples[i])); diff > 1e-3 {
			t.Fatalf("sample %d: expected %f, got %f", i, samples[i], decoded.Samples[i])
		}
	}
}

func TestEncodeWAVErrors(t *testing.T) {
	if _, err := EncodeWAV(nil, testRate); err == nil {
		t.Error("Expected error for empty samples")
	}
	if _, err := EncodeWAV([]float32{0.1}, 0); err == nil {
		t.Error("Expected error for invalid sample rate")
	}
}

func TestEncodeWAVClampsOutOfRange(t *testing.T) {
	wavData, err := EncodeWAV([]float32{2, -2}, testRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	decoded, err := DecodeWAV(wavData)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if decoded.Samples[0] < 0.99 || decoded.Samples[1] > -0.99 {
		t.Errorf("Expected clamped samples, got %v", decoded.Samples)
	}
}

func TestDecodeChunkRejectsNonWAV(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte("RIFF")},
		{"ogg", []byte("OggS\x00\x02\x00\x00\x00\x00\x00\x00\x00\x00")},
		{"riff without wave", []byte("RIFF\x00\x00\x00\x00AVI LIST")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeChunk(tt.data)
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
			}
		})
	}
}

func TestDecodeChunkTruncatedHeader(t *testing.T) {
	wavData, err := EncodeWAV(sine(160, testRate, 440, 0.5), testRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if _, err := DecodeChunk(wavData[:20]); err == nil {
		t.Error("Expected error for truncated WAV")
	}
}

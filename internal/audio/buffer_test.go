package audio

import (
	"errors"
	"sync"
	"testing"
	"time"
)

const testRate = 16000

func ramp(n int, start float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = start + float32(i)*1e-6
	}
	return out
}

func TestNewBuffer(t *testing.T) {
	buffer, err := NewBuffer(testRate, 30*time.Second)
	if err != nil {
		t.Fatalf("NewBuffer failed: %v", err)
	}

	if buffer.SampleRate() != testRate {
		t.Errorf("Expected sample rate %d, got %d", testRate, buffer.SampleRate())
	}

	if buffer.maxSamples != 30*testRate {
		t.Errorf("Expected max samples %d, got %d", 30*testRate, buffer.maxSamples)
	}

	if buffer.Size() != 0 {
		t.Errorf("Expected initial size 0, got %d", buffer.Size())
	}
}

func TestNewBufferValidation(t *testing.T) {
	tests := []struct {
		name        string
		sampleRate  int
		maxDuration time.Duration
	}{
		{"zero sample rate", 0, time.Second},
		{"negative sample rate", -1, time.Second},
		{"zero duration", testRate, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBuffer(tt.sampleRate, tt.maxDuration); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

func TestAppendNormalizesInt16Scale(t *testing.T) {
	buffer, _ := NewBuffer(testRate, time.Second)

	buffer.Append([]float32{16384, -32768, 0})

	view := buffer.Snapshot()
	want := []float32{0.5, -1, 0}
	for i, w := range want {
		if view.Samples[i] != w {
			t.Errorf("sample %d: expected %f, got %f", i, w, view.Samples[i])
		}
	}
}

func TestAppendKeepsFloatScale(t *testing.T) {
	buffer, _ := NewBuffer(testRate, time.Second)

	buffer.Append([]float32{0.25, -1, 1})

	view := buffer.Snapshot()
	want := []float32{0.25, -1, 1}
	for i, w := range want {
		if view.Samples[i] != w {
			t.Errorf("sample %d: expected %f, got %f", i, w, view.Samples[i])
		}
	}
}

func TestAppendEvictsOldestFirst(t *testing.T) {
	buffer, _ := NewBuffer(10, time.Second) // 10 samples max

	first := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	second := []float32{0.7, 0.8, 0.9, 1.0, -0.1, -0.2}

	if evicted := buffer.Append(first); evicted != 0 {
		t.Errorf("Expected no eviction, got %d", evicted)
	}
	if evicted := buffer.Append(second); evicted != 2 {
		t.Errorf("Expected 2 evicted samples, got %d", evicted)
	}

	view := buffer.Snapshot()
	if len(view.Samples) != 10 {
		t.Fatalf("Expected 10 samples, got %d", len(view.Samples))
	}

	want := append(append([]float32{}, first[2:]...), second...)
	for i, w := range want {
		if view.Samples[i] != w {
			t.Errorf("sample %d: expected %f, got %f", i, w, view.Samples[i])
		}
	}

	stats := buffer.GetStats()
	if stats.TotalEvicted != 2 {
		t.Errorf("Expected 2 evicted in stats, got %d", stats.TotalEvicted)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	buffer, _ := NewBuffer(testRate, time.Second)
	buffer.Append([]float32{0.1, 0.2})

	view := buffer.Snapshot()
	view.Samples[0] = 0.9

	again := buffer.Snapshot()
	if again.Samples[0] != 0.1 {
		t.Errorf("Snapshot mutation leaked into buffer: got %f", again.Samples[0])
	}
}

func TestConsume(t *testing.T) {
	buffer, _ := NewBuffer(testRate, time.Second)
	buffer.Append(ramp(100, 0))

	view := buffer.Snapshot()
	n, err := buffer.Consume(view, 40)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if n != 40 {
		t.Errorf("Expected 40 consumed, got %d", n)
	}
	if buffer.Size() != 60 {
		t.Errorf("Expected 60 samples left, got %d", buffer.Size())
	}

	rest := buffer.Snapshot()
	if rest.Samples[0] != view.Samples[40] {
		t.Errorf("Expected first remaining sample %f, got %f", view.Samples[40], rest.Samples[0])
	}
}

func TestConsumeAccountsForAppendedAndEvictedAudio(t *testing.T) {
	buffer, _ := NewBuffer(10, time.Second) // 10 samples max
	buffer.Append(ramp(8, 0))

	view := buffer.Snapshot()

	// 4 more samples evict 2 from the head after the snapshot was taken
	buffer.Append(ramp(4, 0.5))

	n, err := buffer.Consume(view, 5)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 consumed (2 already evicted), got %d", n)
	}

	rest := buffer.Snapshot()
	if len(rest.Samples) != 7 {
		t.Fatalf("Expected 7 samples left, got %d", len(rest.Samples))
	}
	if rest.Samples[0] != view.Samples[5] {
		t.Errorf("Expected first remaining sample %f, got %f", view.Samples[5], rest.Samples[0])
	}
}

func TestConsumeTwiceIsNoop(t *testing.T) {
	buffer, _ := NewBuffer(testRate, time.Second)
	buffer.Append(ramp(50, 0))

	view := buffer.Snapshot()
	if _, err := buffer.Consume(view, 20); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	n, err := buffer.Consume(view, 20)
	if err != nil {
		t.Fatalf("Second consume failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected second consume to drop nothing, got %d", n)
	}
	if buffer.Size() != 30 {
		t.Errorf("Expected 30 samples left, got %d", buffer.Size())
	}
}

func TestConsumeRejectsStaleView(t *testing.T) {
	buffer, _ := NewBuffer(testRate, time.Second)
	buffer.Append(ramp(50, 0))

	view := buffer.Snapshot()
	buffer.Reset()
	buffer.Append(ramp(50, 0.1))

	if _, err := buffer.Consume(view, 10); !errors.Is(err, ErrStaleView) {
		t.Errorf("Expected ErrStaleView, got %v", err)
	}
	if buffer.Size() != 50 {
		t.Errorf("Expected buffer untouched, got %d samples", buffer.Size())
	}
}

func TestConsumeOutOfRange(t *testing.T) {
	buffer, _ := NewBuffer(testRate, time.Second)
	buffer.Append(ramp(10, 0))

	view := buffer.Snapshot()
	if _, err := buffer.Consume(view, 11); err == nil {
		t.Error("Expected error for out of range index")
	}
	if _, err := buffer.Consume(view, -1); err == nil {
		t.Error("Expected error for negative index")
	}
}

func TestReset(t *testing.T) {
	buffer, _ := NewBuffer(testRate, time.Second)
	buffer.Append(ramp(100, 0))

	buffer.Reset()

	if buffer.Size() != 0 {
		t.Errorf("Expected empty buffer after reset, got %d", buffer.Size())
	}

	stats := buffer.GetStats()
	if stats.Resets != 1 {
		t.Errorf("Expected 1 reset, got %d", stats.Resets)
	}
	if stats.TotalAppended != 100 {
		t.Errorf("Expected 100 appended, got %d", stats.TotalAppended)
	}
}

func TestNoAudioLossAcrossChunks(t *testing.T) {
	buffer, _ := NewBuffer(testRate, 30*time.Second)

	var appended []float32
	for i := 0; i < 10; i++ {
		chunk := ramp(1600, float32(i)*0.01)
		appended = append(appended, chunk...)
		buffer.Append(chunk)
	}

	view := buffer.Snapshot()
	if len(view.Samples) != len(appended) {
		t.Fatalf("Expected %d samples, got %d", len(appended), len(view.Samples))
	}
	for i := range appended {
		if view.Samples[i] != appended[i] {
			t.Fatalf("sample %d differs: expected %f, got %f", i, appended[i], view.Samples[i])
		}
	}
}

func TestConcurrentAppendAndReset(t *testing.T) {
	buffer, _ := NewBuffer(testRate, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				buffer.Append(ramp(320, 0))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				buffer.Reset()
			}
		}()
	}
	wg.Wait()

	if buffer.Size() > testRate {
		t.Errorf("Buffer exceeded its cap: %d samples", buffer.Size())
	}
	if buffer.Size()%320 != 0 {
		t.Errorf("Buffer holds a torn chunk: %d samples", buffer.Size())
	}
}

func TestViewDuration(t *testing.T) {
	view := View{Samples: make([]float32, 8000)}
	if d := view.Duration(testRate); d != 500*time.Millisecond {
		t.Errorf("Expected 500ms, got %s", d)
	}
	if d := view.Duration(0); d != 0 {
		t.Errorf("Expected 0 for invalid rate, got %s", d)
	}
}

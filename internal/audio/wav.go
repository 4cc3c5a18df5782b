package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

// ErrUnsupportedFormat is returned when a chunk is not a decodable container
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// wavFormatPCM is the WAVE_FORMAT_PCM format tag
const wavFormatPCM = 1

// Decoded holds the samples of a decoded chunk, interleaved channels already
// averaged down to mono
type Decoded struct {
	Samples    []float32
	SampleRate int
	Channels   int // Channel count of the source
	BitDepth   int
}

// DecodeChunk decodes an encoded audio chunk. Only RIFF/WAVE PCM is accepted.
func DecodeChunk(data []byte) (*Decoded, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrUnsupportedFormat)
	}
	return DecodeWAV(data)
}

// DecodeWAV decodes WAV data into mono float samples in [-1, 1]
func DecodeWAV(data []byte) (*Decoded, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid WAV file", ErrUnsupportedFormat)
	}

	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: WAV format tag %d (only PCM is supported)", ErrUnsupportedFormat, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV samples: %w", err)
	}

	channels := int(dec.NumChans)
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth != 8 && bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		return nil, fmt.Errorf("%w: bit depth %d", ErrUnsupportedFormat, bitDepth)
	}

	samples := intsToFloat(buf.Data, bitDepth)

	return &Decoded{
		Samples:    DownmixMono(samples, channels),
		SampleRate: int(dec.SampleRate),
		Channels:   channels,
		BitDepth:   bitDepth,
	}, nil
}

// EncodeWAV encodes mono float samples as a 16-bit PCM WAV file
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(clampUnit(s) * 32767)
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	out := &writerseeker.WriterSeeker{}
	enc := wav.NewEncoder(out, sampleRate, 16, 1, wavFormatPCM)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize WAV header: %w", err)
	}

	encoded, err := io.ReadAll(out.Reader())
	if err != nil {
		return nil, fmt.Errorf("failed to read encoded WAV: %w", err)
	}
	return encoded, nil
}

// intsToFloat scales integer PCM of the given bit depth into [-1, 1]
func intsToFloat(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))

	if bitDepth == 8 {
		// 8-bit WAV is unsigned
		for i, v := range data {
			out[i] = float32(v-128) / 128
		}
		return out
	}

	scale := float32(int64(1) << (bitDepth - 1))
	for i, v := range data {
		out[i] = float32(v) / scale
	}
	return out
}

func clampUnit(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

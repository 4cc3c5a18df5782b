package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Wire constants
const (
	// Packet types
	PacketTypeAudio   = 0x02
	PacketTypeControl = 0x03

	// Control commands
	CommandFlush = 0x01
	CommandReset = 0x02

	// Packet structure sizes
	HeaderSize             = 8 // 1 + 2 + 4 + 1 bytes
	AudioPayloadHeaderSize = 8 // CapturedAt microseconds
	ControlPayloadSize     = 1

	// MaxAudioDataSize is the largest PCM payload a single packet can carry
	MaxAudioDataSize = math.MaxUint16 - HeaderSize - AudioPayloadHeaderSize
)

// Header represents the 8-byte packet header
// Layout: [PacketType:1][PacketLen:2][SampleRate:4][Channels:1]
type Header struct {
	PacketType uint8  // 0x02=Audio, 0x03=Control
	PacketLen  uint16 // Total packet size (header + payload)
	SampleRate uint32 // Hz of the PCM in an audio packet
	Channels   uint8  // Interleaved channel count of the PCM
}

// AudioPayload represents the audio packet payload
// Layout: [CapturedAtMicros:8][PCM16LE:N]
type AudioPayload struct {
	CapturedAtMicros int64  // Capture time of the first sample, Unix microseconds
	AudioData        []byte // PCM audio data (variable length)
}

// ControlPayload represents the control packet payload
// Layout: [Command:1]
type ControlPayload struct {
	Command uint8
}

// ParsedPacket represents a fully parsed packet
type ParsedPacket struct {
	Header  *Header
	Audio   *AudioPayload   // Only set for audio packets
	Control *ControlPayload // Only set for control packets
}

// ParseHeader parses the 8-byte packet header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	header := &Header{
		PacketType: data[0],
		PacketLen:  binary.BigEndian.Uint16(data[1:3]),
		SampleRate: binary.BigEndian.Uint32(data[3:7]),
		Channels:   data[7],
	}

	return header, nil
}

// ParseAudioPayload parses the audio packet payload (8-byte capture time + PCM)
func ParseAudioPayload(data []byte) (*AudioPayload, error) {
	if len(data) < AudioPayloadHeaderSize {
		return nil, fmt.Errorf("audio payload too short: expected at least %d bytes, got %d",
			AudioPayloadHeaderSize, len(data))
	}

	payload := &AudioPayload{
		CapturedAtMicros: int64(binary.BigEndian.Uint64(data[0:8])),
	}

	if len(data) > AudioPayloadHeaderSize {
		payload.AudioData = make([]byte, len(data)-AudioPayloadHeaderSize)
		copy(payload.AudioData, data[AudioPayloadHeaderSize:])
	}

	return payload, nil
}

// ParseControlPayload parses the 1-byte control packet payload
func ParseControlPayload(data []byte) (*ControlPayload, error) {
	if len(data) != ControlPayloadSize {
		return nil, fmt.Errorf("control payload size mismatch: expected %d bytes, got %d",
			ControlPayloadSize, len(data))
	}

	payload := &ControlPayload{Command: data[0]}
	if !IsValidCommand(payload.Command) {
		return nil, fmt.Errorf("unknown control command: 0x%02x", payload.Command)
	}

	return payload, nil
}

// ParsePacket parses a complete packet (header + payload)
func ParsePacket(data []byte) (*ParsedPacket, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	if int(header.PacketLen) != len(data) {
		return nil, fmt.Errorf("packet length mismatch: header says %d bytes, got %d bytes",
			header.PacketLen, len(data))
	}

	if err := ValidateHeader(header); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	packet := &ParsedPacket{Header: header}
	payloadData := data[HeaderSize:]

	switch header.PacketType {
	case PacketTypeAudio:
		payload, err := ParseAudioPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audio payload: %w", err)
		}
		if len(payload.AudioData)%(2*int(header.Channels)) != 0 {
			return nil, fmt.Errorf("audio data of %d bytes is not whole 16-bit frames for %d channels",
				len(payload.AudioData), header.Channels)
		}
		packet.Audio = payload

	case PacketTypeControl:
		payload, err := ParseControlPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse control payload: %w", err)
		}
		packet.Control = payload
	}

	return packet, nil
}

// ValidateHeader validates the packet header fields
func ValidateHeader(header *Header) error {
	if !IsValidPacketType(header.PacketType) {
		return fmt.Errorf("invalid packet type: 0x%02x", header.PacketType)
	}

	if header.PacketLen < HeaderSize {
		return fmt.Errorf("packet length too small: %d (minimum %d)", header.PacketLen, HeaderSize)
	}

	payloadSize := int(header.PacketLen) - HeaderSize
	switch header.PacketType {
	case PacketTypeAudio:
		if payloadSize < AudioPayloadHeaderSize {
			return fmt.Errorf("audio packet payload too small: expected at least %d, got %d",
				AudioPayloadHeaderSize, payloadSize)
		}
		if header.SampleRate == 0 {
			return fmt.Errorf("audio packet sample rate cannot be zero")
		}
		if header.Channels == 0 {
			return fmt.Errorf("audio packet channel count cannot be zero")
		}
	case PacketTypeControl:
		if payloadSize != ControlPayloadSize {
			return fmt.Errorf("control packet payload size mismatch: expected %d, got %d",
				ControlPayloadSize, payloadSize)
		}
	}

	return nil
}

// IsValidPacketType checks if the packet type is valid
func IsValidPacketType(ptype uint8) bool {
	return ptype == PacketTypeAudio || ptype == PacketTypeControl
}

// IsValidCommand checks if the control command is known
func IsValidCommand(cmd uint8) bool {
	return cmd == CommandFlush || cmd == CommandReset
}

// CapturedAt returns the capture time as a time.Time
func (a *AudioPayload) CapturedAt() time.Time {
	return time.UnixMicro(a.CapturedAtMicros)
}

// BuildAudioPacket encodes PCM16LE audio into a single packet
func BuildAudioPacket(sampleRate uint32, channels uint8, capturedAt time.Time, pcm []byte) ([]byte, error) {
	if len(pcm) > MaxAudioDataSize {
		return nil, fmt.Errorf("audio data too large: %d bytes (maximum %d)", len(pcm), MaxAudioDataSize)
	}

	total := HeaderSize + AudioPayloadHeaderSize + len(pcm)
	packet := make([]byte, total)
	putHeader(packet, Header{
		PacketType: PacketTypeAudio,
		PacketLen:  uint16(total),
		SampleRate: sampleRate,
		Channels:   channels,
	})
	binary.BigEndian.PutUint64(packet[HeaderSize:], uint64(capturedAt.UnixMicro()))
	copy(packet[HeaderSize+AudioPayloadHeaderSize:], pcm)

	return packet, nil
}

// BuildControlPacket encodes a control command
func BuildControlPacket(cmd uint8) []byte {
	packet := make([]byte, HeaderSize+ControlPayloadSize)
	putHeader(packet, Header{
		PacketType: PacketTypeControl,
		PacketLen:  uint16(len(packet)),
	})
	packet[HeaderSize] = cmd
	return packet
}

func putHeader(buf []byte, h Header) {
	buf[0] = h.PacketType
	binary.BigEndian.PutUint16(buf[1:3], h.PacketLen)
	binary.BigEndian.PutUint32(buf[3:7], h.SampleRate)
	buf[7] = h.Channels
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	var packetType string

	switch h.PacketType {
	case PacketTypeAudio:
		packetType = "Audio"
	case PacketTypeControl:
		packetType = "Control"
	default:
		packetType = fmt.Sprintf("Unknown(0x%02x)", h.PacketType)
	}

	return fmt.Sprintf("Header{Type:%s, Len:%d, SampleRate:%d, Channels:%d}",
		packetType, h.PacketLen, h.SampleRate, h.Channels)
}

// String returns a human-readable representation of the audio payload
func (a *AudioPayload) String() string {
	return fmt.Sprintf("AudioPayload{CapturedAt:%d, AudioDataLen:%d}", a.CapturedAtMicros, len(a.AudioData))
}

// String returns a human-readable representation of the control payload
func (c *ControlPayload) String() string {
	var cmd string

	switch c.Command {
	case CommandFlush:
		cmd = "Flush"
	case CommandReset:
		cmd = "Reset"
	default:
		cmd = fmt.Sprintf("Unknown(0x%02x)", c.Command)
	}

	return fmt.Sprintf("ControlPayload{Command:%s}", cmd)
}

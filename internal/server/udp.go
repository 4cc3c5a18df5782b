package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skypro1111/dictation-service/internal/audio"
	"github.com/skypro1111/dictation-service/internal/config"
	"github.com/skypro1111/dictation-service/internal/metrics"
	"github.com/skypro1111/dictation-service/internal/protocol"
	"github.com/skypro1111/dictation-service/internal/stream"
)

// UDPServer receives PCM and control packets and hands them to the
// dispatcher in arrival order. Reading and submitting are decoupled by a
// bounded queue; packets arriving while it is full are dropped.
type UDPServer struct {
	config     config.UDPConfig
	logger     *slog.Logger
	dispatcher *stream.Dispatcher
	metrics    *metrics.Metrics

	conn    *net.UDPConn
	queue   chan datagram
	readers sync.WaitGroup
	ingest  sync.WaitGroup

	received  atomic.Uint64
	handled   atomic.Uint64
	malformed atomic.Uint64
	rejected  atomic.Uint64
	dropped   atomic.Uint64
}

type datagram struct {
	data       []byte
	receivedAt time.Time
}

// ServerStatistics represents server performance metrics
type ServerStatistics struct {
	PacketsReceived  uint64 `json:"packets_received"`
	PacketsProcessed uint64 `json:"packets_processed"`
	ParseErrors      uint64 `json:"parse_errors"`
	SubmitErrors     uint64 `json:"submit_errors"`
	PacketsDropped   uint64 `json:"packets_dropped"`
	QueueSize        uint64 `json:"queue_size"`
	QueueCapacity    uint64 `json:"queue_capacity"`
}

// NewUDPServer creates a new UDP server instance
func NewUDPServer(cfg config.UDPConfig, logger *slog.Logger, dispatcher *stream.Dispatcher, m *metrics.Metrics) *UDPServer {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}

	return &UDPServer{
		config:     cfg,
		logger:     logger,
		dispatcher: dispatcher,
		metrics:    m,
		queue:      make(chan datagram, cfg.QueueSize),
	}
}

// Start binds the socket and starts the reader and ingest goroutines
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}
	if err := conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}
	s.conn = conn

	s.ingest.Add(1)
	go s.ingestLoop()

	s.readers.Add(1)
	go s.readLoop()

	s.logger.Info("UDP server started",
		slog.String("address", conn.LocalAddr().String()),
		slog.Int("queue_size", s.config.QueueSize),
	)
	return nil
}

// Addr returns the bound address, or nil before Start
func (s *UDPServer) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop closes the socket. Packets already queued are still handed to the
// dispatcher before it returns.
func (s *UDPServer) Stop() error {
	if s.conn == nil {
		return nil
	}

	err := s.conn.Close()
	s.readers.Wait()
	s.ingest.Wait()

	stats := s.GetStatistics()
	s.logger.Info("UDP server stopped",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_processed", stats.PacketsProcessed),
		slog.Uint64("parse_errors", stats.ParseErrors),
		slog.Uint64("packets_dropped", stats.PacketsDropped),
	)

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close UDP socket: %w", err)
	}
	return nil
}

// readLoop reads until the socket is closed, then closes the queue
func (s *UDPServer) readLoop() {
	defer s.readers.Done()
	defer close(s.queue)

	buf := make([]byte, s.config.BufferSize)
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
			continue
		}

		s.received.Add(1)
		s.metrics.RecordPacketReceived()

		d := datagram{data: append([]byte(nil), buf[:n]...), receivedAt: time.Now()}
		select {
		case s.queue <- d:
			s.metrics.SetQueueSize(len(s.queue))
		default:
			s.dropped.Add(1)
			s.logger.Warn("UDP queue full, dropping packet", slog.Int("packet_size", n))
		}
	}
}

// ingestLoop submits queued packets one at a time so audio and control
// packets reach the dispatcher in the order they arrived
func (s *UDPServer) ingestLoop() {
	defer s.ingest.Done()

	for d := range s.queue {
		s.handle(d)
		s.metrics.SetQueueSize(len(s.queue))
	}
}

func (s *UDPServer) handle(d datagram) {
	packet, err := protocol.ParsePacket(d.data)
	if err != nil {
		s.malformed.Add(1)
		s.metrics.RecordParseError()
		s.logger.Error("Failed to parse packet",
			slog.Int("packet_size", len(d.data)),
			slog.String("error", err.Error()),
		)
		return
	}

	s.handled.Add(1)
	s.metrics.RecordPacketProcessed()

	switch packet.Header.PacketType {
	case protocol.PacketTypeAudio:
		err = s.submitAudio(packet.Header, packet.Audio, d.receivedAt)
	case protocol.PacketTypeControl:
		err = s.applyControl(packet.Control)
	}

	if err != nil {
		s.rejected.Add(1)
		s.logger.Error("Failed to submit packet",
			slog.Int("packet_type", int(packet.Header.PacketType)),
			slog.String("error", err.Error()),
		)
	}
}

// submitAudio converts the PCM payload to mono float samples. A zero
// capture time falls back to the time of receipt.
func (s *UDPServer) submitAudio(header *protocol.Header, payload *protocol.AudioPayload, receivedAt time.Time) error {
	if len(payload.AudioData) == 0 {
		return nil
	}

	samples, err := audio.PCM16ToFloat(payload.AudioData)
	if err != nil {
		return err
	}
	samples = audio.DownmixMono(samples, int(header.Channels))

	capturedAt := receivedAt
	if payload.CapturedAtMicros > 0 {
		capturedAt = payload.CapturedAt()
	}

	chunkID, err := s.dispatcher.SubmitSamples(samples, int(header.SampleRate), capturedAt)
	if err != nil {
		return err
	}

	s.logger.Debug("Audio packet submitted",
		slog.String("chunk_id", chunkID),
		slog.Int("sample_rate", int(header.SampleRate)),
		slog.Int("channels", int(header.Channels)),
		slog.Int("samples", len(samples)),
	)
	return nil
}

func (s *UDPServer) applyControl(payload *protocol.ControlPayload) error {
	switch payload.Command {
	case protocol.CommandFlush:
		if err := s.dispatcher.Flush(); err != nil {
			return err
		}
	case protocol.CommandReset:
		s.dispatcher.Reset()
	}

	s.logger.Info("Control packet applied", slog.String("command", payload.String()))
	return nil
}

// GetStatistics returns current server statistics
func (s *UDPServer) GetStatistics() ServerStatistics {
	return ServerStatistics{
		PacketsReceived:  s.received.Load(),
		PacketsProcessed: s.handled.Load(),
		ParseErrors:      s.malformed.Load(),
		SubmitErrors:     s.rejected.Load(),
		PacketsDropped:   s.dropped.Load(),
		QueueSize:        uint64(len(s.queue)),
		QueueCapacity:    uint64(cap(s.queue)),
	}
}

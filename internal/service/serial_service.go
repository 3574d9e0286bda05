// internal/service/serial_service.go
package service

import (
	"bytes"
	"sync"
	"time"

	"go.uber.org/zap"

	"boardtester/internal/config"
	"boardtester/internal/model"
	"boardtester/internal/protocol"
)

// SerialService owns the UART connection to the board under test. It
// reads newline-terminated text on a background goroutine and forwards
// each complete line as an event. Open failures surface as error
// events, never as panics past the service boundary.
type SerialService struct {
	cfg    *config.SerialConfig
	opener protocol.Opener
	logger *zap.Logger

	mutex   sync.Mutex
	port    protocol.Port
	running bool
}

// NewSerialService creates a new serial service
func NewSerialService(cfg *config.SerialConfig, opener protocol.Opener, logger *zap.Logger) *SerialService {
	return &SerialService{
		cfg:    cfg,
		opener: opener,
		logger: logger.With(
			zap.String("service", "serial"),
			zap.String("device", cfg.Device),
		),
	}
}

// Start opens the port and begins reading on a background goroutine.
// Events carry the given generation so the owner can discard anything
// that arrives after a reset. Start returns immediately.
func (s *SerialService) Start(generation uint64, events chan<- model.Event) {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		s.logger.Warn("Serial service already running, start ignored")
		return
	}
	s.running = true
	s.mutex.Unlock()

	go s.run(generation, events)
}

// Stop closes the port and stops the reader. Safe to call from any
// goroutine and at any time; repeated calls are no-ops.
func (s *SerialService) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running && s.port == nil {
		return
	}

	s.running = false
	if s.port != nil {
		if err := s.port.Close(); err != nil {
			s.logger.Warn("Failed to close serial port", zap.Error(err))
		}
		s.port = nil
	}

	s.logger.Info("Serial service stopped")
}

// run opens the port and pumps lines until stopped or the port fails
func (s *SerialService) run(generation uint64, events chan<- model.Event) {
	port, err := s.opener.Open(s.cfg.Device, s.cfg.BaudRate, s.cfg.ReadTimeout)
	if err != nil {
		s.mutex.Lock()
		s.running = false
		s.mutex.Unlock()
		s.post(events, model.Event{
			Type:       model.EventSerialError,
			Generation: generation,
			Err:        &model.ConnectionError{Device: s.cfg.Device, Err: err},
			Timestamp:  time.Now(),
		})
		return
	}

	s.mutex.Lock()
	if !s.running {
		// Stopped while the open was in flight
		s.mutex.Unlock()
		port.Close()
		return
	}
	s.port = port
	s.mutex.Unlock()

	s.post(events, model.Event{
		Type:       model.EventSerialConnected,
		Generation: generation,
		Timestamp:  time.Now(),
	})

	s.readLines(generation, port, events)
}

// readLines reads raw bytes and splits them into trimmed lines. A
// read timeout yields (0, nil) and just loops; a real error ends the
// reader, reported only if the service was not stopped deliberately.
func (s *SerialService) readLines(generation uint64, port protocol.Port, events chan<- model.Event) {
	buf := make([]byte, 256)
	var pending []byte

	for {
		n, err := port.Read(buf)
		if err != nil {
			s.mutex.Lock()
			wasRunning := s.running
			s.running = false
			s.port = nil
			s.mutex.Unlock()

			if wasRunning {
				s.logger.Error("Serial read failed", zap.Error(err))
				port.Close()
				s.post(events, model.Event{
					Type:       model.EventSerialError,
					Generation: generation,
					Err:        &model.ConnectionError{Device: s.cfg.Device, Err: err},
					Timestamp:  time.Now(),
				})
			}
			return
		}
		if n == 0 {
			continue
		}

		pending = append(pending, buf[:n]...)
		for {
			idx := bytes.IndexByte(pending, '\n')
			if idx < 0 {
				break
			}
			line := string(bytes.TrimSpace(pending[:idx]))
			pending = pending[idx+1:]
			if line == "" {
				continue
			}
			s.post(events, model.Event{
				Type:       model.EventSerialLine,
				Generation: generation,
				Line:       line,
				Timestamp:  time.Now(),
			})
		}
	}
}

// post delivers an event without ever blocking the reader goroutine
func (s *SerialService) post(events chan<- model.Event, event model.Event) {
	select {
	case events <- event:
	default:
		s.logger.Warn("Event channel full, dropping serial event",
			zap.String("event_type", string(event.Type)),
		)
	}
}

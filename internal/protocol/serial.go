// internal/protocol/serial.go
package protocol

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// Port is the narrow view of a serial port the station needs: a byte
// stream with a close. Reads return (0, nil) on timeout.
type Port interface {
	io.ReadCloser
}

// Opener opens a serial port at the given device path and baud rate
type Opener interface {
	Open(device string, baudRate int, readTimeout time.Duration) (Port, error)
}

// SerialOpener implements Opener on top of go.bug.st/serial
type SerialOpener struct {
	logger *zap.Logger
}

// NewSerialOpener creates a new serial opener
func NewSerialOpener(logger *zap.Logger) *SerialOpener {
	return &SerialOpener{
		logger: logger.With(zap.String("protocol", "serial")),
	}
}

// Open opens the device as 8N1 with a read timeout so reads never
// block the reader goroutine past a stop request.
func (so *SerialOpener) Open(device string, baudRate int, readTimeout time.Duration) (Port, error) {
	so.logger.Info("Opening serial port",
		zap.String("device", device),
		zap.Int("baud_rate", baudRate),
	)

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		so.logger.Error("Failed to open serial port", zap.Error(err))
		return nil, fmt.Errorf("failed to open serial port %s: %w", device, err)
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	so.logger.Info("Serial port opened successfully")
	return port, nil
}

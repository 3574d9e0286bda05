// internal/service/scanner_service.go
package service

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ScannerService treats operator keyboard input as the barcode
// scanner's output channel: printable characters accumulate in a
// buffer and the terminator key completes a scan.
//
// TODO: replace with a dedicated HID driver once the production
// scanner model is fixed; see USBProbe for the attachment check.
type ScannerService struct {
	mutex  sync.Mutex
	buffer strings.Builder
	logger *zap.Logger
}

// NewScannerService creates a new scanner service
func NewScannerService(logger *zap.Logger) *ScannerService {
	return &ScannerService{
		logger: logger.With(zap.String("service", "scanner")),
	}
}

// HandleKey feeds one key press into the buffer. When terminator is
// set and the buffer is non-empty, the buffered text is returned with
// ok=true and the buffer cleared. An empty buffer at the terminator
// emits nothing.
func (s *ScannerService) HandleKey(text string, terminator bool) (string, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if terminator {
		if s.buffer.Len() == 0 {
			return "", false
		}
		code := s.buffer.String()
		s.buffer.Reset()
		return code, true
	}

	for _, r := range text {
		if r >= ' ' && r <= '~' {
			s.buffer.WriteRune(r)
		}
	}
	return "", false
}

// Clear drops any partially accumulated scan
func (s *ScannerService) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.buffer.Reset()
}

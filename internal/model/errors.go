// internal/model/errors.go
package model

import "fmt"

// ConnectionError indicates the serial port could not be opened or
// closed unexpectedly mid-run.
type ConnectionError struct {
	Device string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("serial connection failed on %s: %v", e.Device, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ScanFormatError indicates a captured code failed format validation
type ScanFormatError struct {
	Code   string
	Reason string
}

func (e *ScanFormatError) Error() string {
	return fmt.Sprintf("invalid scan %q: %s", e.Code, e.Reason)
}

// ServerError indicates the code server request failed or returned an
// unparsable response.
type ServerError struct {
	Reason string
	Err    error
}

func (e *ServerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code server: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("code server: %s", e.Reason)
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// MismatchError indicates the board reported a MAC address outside the
// expected set.
type MismatchError struct {
	MAC string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("unexpected MAC address observed: %s", e.MAC)
}

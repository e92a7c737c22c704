package tty

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned for I/O on a closed handle or torn down device
	ErrClosed = errors.New("device closed")
	// ErrReaderConflict is returned when a second reader tries to read
	// while another read is in progress
	ErrReaderConflict = errors.New("another reader is active")
	// ErrNotOpen is returned when a close has no matching open
	ErrNotOpen = errors.New("device not open")
)

// DeviceError represents a failed device operation
type DeviceError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	return fmt.Sprintf("tty %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *DeviceError) Unwrap() error {
	return e.Err
}

func opError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DeviceError{Op: op, Err: err}
}

// Package serial opens serial lines for the serial backend, where the port
// is both the key stream and the output console of a tty device.
package serial

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

var validBaudRates = []int{9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}

var validParities = []string{"none", "odd", "even", "mark", "space"}

// SerialConfig defines the line settings of a serial port
type SerialConfig struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
	// ReadTimeout bounds each read so the key reader notices a closed port
	ReadTimeout time.Duration `json:"read_timeout"`
}

// Validate checks if the serial configuration is valid
func (c SerialConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}

	if !slices.Contains(validBaudRates, c.BaudRate) {
		return fmt.Errorf("invalid baud rate: %d", c.BaudRate)
	}

	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("data bits must be between 5 and 8, got: %d", c.DataBits)
	}

	if c.StopBits < 1 || c.StopBits > 2 {
		return fmt.Errorf("stop bits must be 1 or 2, got: %d", c.StopBits)
	}

	if !slices.Contains(validParities, c.Parity) {
		return fmt.Errorf("invalid parity: %s", c.Parity)
	}

	if c.ReadTimeout < 0 {
		return fmt.Errorf("read timeout cannot be negative")
	}

	return nil
}

// DefaultConfig returns a default serial configuration
func DefaultConfig() SerialConfig {
	return SerialConfig{
		Port:        "/dev/ttyUSB0",
		BaudRate:    115200,
		DataBits:    8,
		StopBits:    1,
		Parity:      "none",
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Mode converts the configuration to go.bug.st/serial line settings
func (c SerialConfig) Mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		StopBits: convertStopBits(c.StopBits),
		Parity:   convertParity(c.Parity),
	}
}

func convertStopBits(stopBits int) serial.StopBits {
	if stopBits == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}

func convertParity(parity string) serial.Parity {
	switch parity {
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	case "mark":
		return serial.MarkParity
	case "space":
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}

// SerialError represents a failed operation on a named port
type SerialError struct {
	Operation string
	Port      string
	Cause     error
}

// Error implements the error interface
func (e *SerialError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("serial %s operation failed on port %s: %v", e.Operation, e.Port, e.Cause)
	}
	return fmt.Sprintf("serial %s operation failed on port %s", e.Operation, e.Port)
}

// Unwrap returns the underlying error
func (e *SerialError) Unwrap() error {
	return e.Cause
}

// ErrPortClosed is returned for I/O on a closed Conn
var ErrPortClosed = errors.New("serial port is not open")

// OpenFunc opens a port by name; serial.Open is the default
type OpenFunc func(name string, mode *serial.Mode) (serial.Port, error)

// RetryConfig defines how opening a busy or missing port is retried
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries"`
	RetryInterval time.Duration `json:"retry_interval"`
	BackoffFactor float64       `json:"backoff_factor"`
	MaxInterval   time.Duration `json:"max_interval"`
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		RetryInterval: time.Second,
		BackoffFactor: 2.0,
		MaxInterval:   time.Second * 10,
	}
}

// Validate checks if the retry configuration is valid
func (r RetryConfig) Validate() error {
	if r.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if r.RetryInterval < 0 {
		return fmt.Errorf("retry interval cannot be negative")
	}

	if r.BackoffFactor < 1.0 {
		return fmt.Errorf("backoff factor must be >= 1.0")
	}

	if r.MaxInterval < r.RetryInterval {
		return fmt.Errorf("max interval cannot be less than retry interval")
	}

	return nil
}

// Logger interface for debug logging
type Logger interface {
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}

type options struct {
	open  OpenFunc
	retry RetryConfig
	sleep func(time.Duration)
	log   Logger
}

// Option configures Open
type Option func(*options)

// WithRetry retries busy or missing ports with backoff
func WithRetry(retry RetryConfig) Option {
	return func(o *options) {
		o.retry = retry
	}
}

// WithOpenFunc replaces serial.Open, for tests and virtual ports
func WithOpenFunc(open OpenFunc) Option {
	return func(o *options) {
		o.open = open
	}
}

// WithLogger sets the logger for debug output
func WithLogger(logger Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.log = logger
		}
	}
}

// Conn is an open serial line. Reads and writes may run concurrently;
// Close is safe to call from any goroutine.
type Conn struct {
	port   serial.Port
	config SerialConfig

	mu     sync.Mutex
	closed bool
}

// Open opens and configures a serial port
func Open(config SerialConfig, opts ...Option) (*Conn, error) {
	o := options{
		open:  serial.Open,
		retry: RetryConfig{BackoffFactor: 1},
		sleep: time.Sleep,
		log:   nopLogger{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := o.retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry configuration: %w", err)
	}

	port, err := openWithRetry(config, o)
	if err != nil {
		return nil, err
	}

	if config.ReadTimeout > 0 {
		if err := port.SetReadTimeout(config.ReadTimeout); err != nil {
			port.Close()
			return nil, &SerialError{Operation: "configure", Port: config.Port, Cause: err}
		}
	}
	// stale input would otherwise be typed into the first line
	if err := port.ResetInputBuffer(); err != nil {
		o.log.Debugf("serial: failed to reset input on %s: %v", config.Port, err)
	}

	return &Conn{port: port, config: config}, nil
}

func openWithRetry(config SerialConfig, o options) (serial.Port, error) {
	var lastErr error
	interval := o.retry.RetryInterval

	for attempt := 0; attempt <= o.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			o.log.Debugf("serial: retrying %s in %v (attempt %d)", config.Port, interval, attempt+1)
			o.sleep(interval)
			interval = time.Duration(float64(interval) * o.retry.BackoffFactor)
			if interval > o.retry.MaxInterval {
				interval = o.retry.MaxInterval
			}
		}

		port, err := o.open(config.Port, config.Mode())
		if err == nil {
			return port, nil
		}
		lastErr = err

		if !isRecoverableError(err) {
			break
		}
	}

	return nil, &SerialError{Operation: "open", Port: config.Port, Cause: lastErr}
}

// isRecoverableError reports whether opening again may succeed
func isRecoverableError(err error) bool {
	if err == nil {
		return false
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortBusy, serial.PortNotFound:
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"device busy", "resource temporarily unavailable", "no such device"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Read reads from the port. A read that times out returns 0 and no error.
func (c *Conn) Read(p []byte) (int, error) {
	if c.isClosed() {
		return 0, ErrPortClosed
	}
	n, err := c.port.Read(p)
	if err != nil {
		if c.isClosed() {
			return n, ErrPortClosed
		}
		return n, &SerialError{Operation: "read", Port: c.config.Port, Cause: err}
	}
	return n, nil
}

// Write writes to the port
func (c *Conn) Write(p []byte) (int, error) {
	if c.isClosed() {
		return 0, ErrPortClosed
	}
	n, err := c.port.Write(p)
	if err != nil {
		return n, &SerialError{Operation: "write", Port: c.config.Port, Cause: err}
	}
	return n, nil
}

// Config returns the configuration the port was opened with
func (c *Conn) Config() SerialConfig {
	return c.config
}

// Close drains pending output and closes the port
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrPortClosed
	}
	c.closed = true
	c.mu.Unlock()

	c.port.Drain()
	if err := c.port.Close(); err != nil {
		return &SerialError{Operation: "close", Port: c.config.Port, Cause: err}
	}
	return nil
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// PortInfo contains information about a serial port
type PortInfo struct {
	Name         string `json:"name"`
	Product      string `json:"product,omitempty"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
}

// ListPorts returns the names of the serial ports on the system
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get ports list: %w", err)
	}
	return ports, nil
}

// GetDetailedPortsList returns USB details for the serial ports on the system
func GetDetailedPortsList() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get detailed ports list: %w", err)
	}

	infos := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		infos = append(infos, portInfo(p))
	}
	return infos, nil
}

func portInfo(p *enumerator.PortDetails) PortInfo {
	info := PortInfo{Name: p.Name, IsUSB: p.IsUSB}
	if p.IsUSB {
		info.VID = p.VID
		info.PID = p.PID
		info.SerialNumber = p.SerialNumber
		info.Product = p.Product
	}
	return info
}

// IsPortAvailable checks if a specific port is present
func IsPortAvailable(portName string) bool {
	ports, err := ListPorts()
	if err != nil {
		return false
	}
	return slices.Contains(ports, portName)
}

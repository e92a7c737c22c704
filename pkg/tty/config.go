package tty

import (
	"fmt"
	"strings"
)

const (
	// DefaultLineCapacity is the maximum canonical line length
	DefaultLineCapacity = 80
	// DefaultKeyBacklog bounds the number of unprocessed key events
	DefaultKeyBacklog = 16
	// DefaultWriteBacklog bounds the number of bytes awaiting rendering
	DefaultWriteBacklog = 1024

	maxLineCapacity = 4096
)

// Strategy selects how concurrent writers share the write staging queue
type Strategy int

const (
	// StrategyToken serializes writers with a single-slot token and retries
	// on a full queue. Every byte is delivered; a write returns len(p)
	// unless the device closes or the context ends. Progress depends on the
	// driver goroutine being scheduled.
	StrategyToken Strategy = iota
	// StrategyMutex serializes writers with a mutex and never waits for
	// space. A write stops at the first byte the full queue rejects and
	// reports the short count.
	StrategyMutex
)

// String returns the string representation of Strategy
func (s Strategy) String() string {
	switch s {
	case StrategyToken:
		return "token"
	case StrategyMutex:
		return "mutex"
	default:
		return "unknown"
	}
}

// MarshalText encodes the strategy by name
func (s Strategy) MarshalText() ([]byte, error) {
	if s.String() == "unknown" {
		return nil, fmt.Errorf("invalid write strategy: %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a strategy name
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStrategy parses "token" or "mutex"
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(name) {
	case "token":
		return StrategyToken, nil
	case "mutex":
		return StrategyMutex, nil
	default:
		return 0, fmt.Errorf("invalid write strategy: %s", name)
	}
}

// Config defines the capacities and behaviour of a line discipline device
type Config struct {
	LineCapacity int      `json:"line_capacity"`
	KeyBacklog   int      `json:"key_backlog"`
	ReadBacklog  int      `json:"read_backlog"`
	WriteBacklog int      `json:"write_backlog"`
	Strategy     Strategy `json:"strategy"`
	KillKey      Key      `json:"kill_key"`
	Echo         bool     `json:"echo"`
}

// DefaultConfig returns the default device configuration
func DefaultConfig() Config {
	return Config{
		LineCapacity: DefaultLineCapacity,
		KeyBacklog:   DefaultKeyBacklog,
		ReadBacklog:  DefaultLineCapacity + 1,
		WriteBacklog: DefaultWriteBacklog,
		Strategy:     StrategyToken,
		KillKey:      KeyU,
		Echo:         true,
	}
}

// Validate checks if the device configuration is valid
func (c Config) Validate() error {
	if c.LineCapacity <= 0 || c.LineCapacity > maxLineCapacity {
		return fmt.Errorf("line capacity must be between 1 and %d, got: %d", maxLineCapacity, c.LineCapacity)
	}

	if c.KeyBacklog <= 0 {
		return fmt.Errorf("key backlog must be positive, got: %d", c.KeyBacklog)
	}

	// a full line and its end-of-line marker must fit
	if c.ReadBacklog <= c.LineCapacity {
		return fmt.Errorf("read backlog must exceed line capacity %d, got: %d", c.LineCapacity, c.ReadBacklog)
	}

	if c.WriteBacklog <= 0 {
		return fmt.Errorf("write backlog must be positive, got: %d", c.WriteBacklog)
	}

	if c.Strategy != StrategyToken && c.Strategy != StrategyMutex {
		return fmt.Errorf("invalid write strategy: %d", int(c.Strategy))
	}

	if !c.KillKey.IsLetter() {
		return fmt.Errorf("kill key must be a letter, got: %s", c.KillKey)
	}

	return nil
}

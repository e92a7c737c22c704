package app

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Logger interface for debug logging
type Logger interface {
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}

// FileLogger writes timestamped debug lines to a file
type FileLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileLogger creates or truncates the log file at path
func NewFileLogger(path string) (*FileLogger, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create debug log: %w", err)
	}
	return &FileLogger{file: file}, nil
}

// Debugf writes one log line
func (l *FileLogger) Debugf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(l.file, "[%s] %s\n", timestamp, msg)
	l.file.Sync() // Ensure it's written immediately
}

// Close closes the log file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

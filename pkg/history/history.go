// Package history records a session transcript: the lines read from a tty
// device and the bytes written to it.
package history

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Direction represents the direction of data flow
type Direction int

const (
	// DirectionInput is a line read from the device
	DirectionInput Direction = iota
	// DirectionOutput is data written to the device
	DirectionOutput
)

// String returns the string representation of Direction
func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	default:
		return "unknown"
	}
}

// MarshalText encodes the direction by name
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// FileFormat represents different file export formats
type FileFormat int

const (
	FormatPlainText FileFormat = iota
	FormatTimestamped
	FormatJSON
)

// String returns the string representation of FileFormat
func (f FileFormat) String() string {
	switch f {
	case FormatPlainText:
		return "plain"
	case FormatTimestamped:
		return "timestamped"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParseFormat parses "plain", "timestamped" or "json"
func ParseFormat(name string) (FileFormat, error) {
	switch strings.ToLower(name) {
	case "plain", "plain_text", "text":
		return FormatPlainText, nil
	case "timestamped":
		return FormatTimestamped, nil
	case "json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("unsupported transcript format: %s", name)
	}
}

// Entry is a single transcript record
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Direction Direction `json:"direction"`
	Data      string    `json:"data"`
}

// Stats summarizes a transcript
type Stats struct {
	InputEntries  int `json:"input_entries"`
	OutputEntries int `json:"output_entries"`
	InputBytes    int `json:"input_bytes"`
	OutputBytes   int `json:"output_bytes"`
	Evicted       int `json:"evicted"`
}

// Transcript is a size-bounded, in-memory record of a session. When full,
// the oldest entries are evicted. It is safe for concurrent use.
type Transcript struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	maxSize int
	evicted int
	now     func() time.Time
}

// NewTranscript creates a transcript holding at most maxSize bytes of data
func NewTranscript(maxSize int) *Transcript {
	if maxSize <= 0 {
		maxSize = 1024 * 1024 // Default 1MB
	}
	return &Transcript{
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Record appends data in the given direction
func (t *Transcript) Record(data []byte, direction Direction) error {
	if direction != DirectionInput && direction != DirectionOutput {
		return fmt.Errorf("invalid direction: %d", direction)
	}
	if len(data) > t.maxSize {
		return fmt.Errorf("entry of %d bytes exceeds transcript size %d", len(data), t.maxSize)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for t.size+len(data) > t.maxSize && len(t.entries) > 0 {
		t.size -= len(t.entries[0].Data)
		t.entries = t.entries[1:]
		t.evicted++
	}

	t.entries = append(t.entries, Entry{
		Timestamp: t.now(),
		Direction: direction,
		Data:      string(data),
	})
	t.size += len(data)
	return nil
}

// Writer returns an io.Writer recording everything written to it in the
// given direction
func (t *Transcript) Writer(direction Direction) io.Writer {
	return recorder{t: t, dir: direction}
}

type recorder struct {
	t   *Transcript
	dir Direction
}

func (r recorder) Write(p []byte) (int, error) {
	if err := r.t.Record(p, r.dir); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Entries returns a copy of the recorded entries, oldest first
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Size returns the number of data bytes held
func (t *Transcript) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// Stats returns a summary of the transcript
func (t *Transcript) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := Stats{Evicted: t.evicted}
	for _, e := range t.entries {
		if e.Direction == DirectionInput {
			stats.InputEntries++
			stats.InputBytes += len(e.Data)
		} else {
			stats.OutputEntries++
			stats.OutputBytes += len(e.Data)
		}
	}
	return stats
}

// Clear removes all entries
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
	t.size = 0
}

// SaveToFile writes the transcript to filename in the given format
func (t *Transcript) SaveToFile(filename string, format FileFormat) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if err := t.Export(file, format); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Export writes the transcript to w in the given format
func (t *Transcript) Export(w io.Writer, format FileFormat) error {
	entries := t.Entries()

	switch format {
	case FormatPlainText:
		return writePlainText(w, entries)
	case FormatTimestamped:
		return writeTimestamped(w, entries)
	case FormatJSON:
		return writeJSON(w, entries)
	default:
		return fmt.Errorf("unsupported format: %v", format)
	}
}

// writePlainText writes input lines terminated by newlines and output as is
func writePlainText(w io.Writer, entries []Entry) error {
	for _, entry := range entries {
		data := entry.Data
		if entry.Direction == DirectionInput {
			data += "\n"
		}
		if _, err := io.WriteString(w, data); err != nil {
			return fmt.Errorf("failed to write data: %w", err)
		}
	}
	return nil
}

func writeTimestamped(w io.Writer, entries []Entry) error {
	for _, entry := range entries {
		direction := "<<"
		if entry.Direction == DirectionOutput {
			direction = ">>"
		}

		line := fmt.Sprintf("[%s] %s %s\n",
			entry.Timestamp.Format("2006-01-02 15:04:05.000"),
			direction,
			strings.ReplaceAll(entry.Data, "\n", "\\n"))

		if _, err := io.WriteString(w, line); err != nil {
			return fmt.Errorf("failed to write timestamped data: %w", err)
		}
	}
	return nil
}

func writeJSON(w io.Writer, entries []Entry) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	data := struct {
		Entries []Entry `json:"entries"`
		Count   int     `json:"count"`
	}{
		Entries: entries,
		Count:   len(entries),
	}

	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

package console

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// Stream renders onto a byte stream driven by a real terminal at the other
// end, such as stdout in raw mode or a serial line. It keeps its own copy
// of the cursor and moves the remote one with relative cursor sequences.
// The remote terminal draws the cursor, so ToggleCursor does nothing.
type Stream struct {
	mu  sync.Mutex
	w   *bufio.Writer
	g   grid
	err error
}

// NewStream creates a console writing to w, which is width columns wide
func NewStream(w io.Writer, width int) (*Stream, error) {
	if w == nil {
		return nil, fmt.Errorf("writer cannot be nil")
	}
	if width <= 0 {
		return nil, fmt.Errorf("width must be positive, got: %d", width)
	}
	return &Stream{
		w: bufio.NewWriter(w),
		g: grid{width: width},
	}, nil
}

// PutChar renders ch at the cursor
func (s *Stream) PutChar(ch byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case ch == '\n':
		s.emit("\r\n")
	case ch == '\r' || ch == '\b':
		s.emitByte(ch)
	case ch == '\t' || renderable(ch):
	default:
		return
	}

	if s.g.put(ch, s) {
		// the remote terminal holds a pending wrap; make it explicit
		s.emit("\r\n")
	}
}

func (s *Stream) setCell(_, _ int, ch rune) {
	if _, err := s.w.WriteRune(ch); err != nil && s.err == nil {
		s.err = err
	}
}

func (s *Stream) scrollUp() {}

// Cursor returns the cursor position
func (s *Stream) Cursor() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.g.x, s.g.y
}

// SetCursor moves the cursor relative to where it is
func (s *Stream) SetCursor(x, y int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromX, fromY := s.g.x, s.g.y
	s.g.setCursor(x, y)

	if dy := s.g.y - fromY; dy < 0 {
		s.emit(fmt.Sprintf("\x1b[%dA", -dy))
	} else if dy > 0 {
		s.emit(fmt.Sprintf("\x1b[%dB", dy))
	}
	if dx := s.g.x - fromX; dx < 0 {
		s.emit(fmt.Sprintf("\x1b[%dD", -dx))
	} else if dx > 0 {
		s.emit(fmt.Sprintf("\x1b[%dC", dx))
	}
}

// ToggleCursor is a no-op; the remote terminal shows its own cursor
func (s *Stream) ToggleCursor() {}

// Width returns the number of columns
func (s *Stream) Width() int {
	return s.g.width
}

// Flush writes buffered output and reports the first write error seen
func (s *Stream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.w.Flush(); err != nil && s.err == nil {
		s.err = err
	}
	err := s.err
	s.err = nil
	if err != nil {
		return fmt.Errorf("failed to write console output: %w", err)
	}
	return nil
}

func (s *Stream) emit(str string) {
	if _, err := s.w.WriteString(str); err != nil && s.err == nil {
		s.err = err
	}
}

func (s *Stream) emitByte(b byte) {
	if err := s.w.WriteByte(b); err != nil && s.err == nil {
		s.err = err
	}
}

package tty

// Console is the rendering surface driven by the device. Only the driver
// goroutine calls it while a device session is running.
type Console interface {
	// PutChar renders ch at the cursor and advances it, wrapping to the
	// next row after the last column
	PutChar(ch byte)
	Cursor() (x, y int)
	SetCursor(x, y int)
	// ToggleCursor draws the cursor if hidden and erases it if drawn
	ToggleCursor()
	Width() int
}

// Flusher is implemented by consoles that buffer output between bursts
type Flusher interface {
	Flush() error
}

// KeySource delivers key events from its own goroutine. Start registers
// push, which never blocks; Stop unregisters it.
type KeySource interface {
	Start(push func(KeyEvent)) error
	Stop() error
}

// StreamKeySource is a key source fed from a byte stream such as a pipe or
// a serial line. Its push waits for room in the key backlog instead of
// dropping, and fails once the device stops.
type StreamKeySource interface {
	KeySource
	StartStream(push func(KeyEvent) error) error
}

// Logger interface for debug logging
type Logger interface {
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}

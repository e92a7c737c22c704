package keyboard

import (
	"errors"
	"io"
	"sync"

	"line-terminal/pkg/tty"
)

// ByteSource decodes key presses from a raw byte stream, as produced by a
// terminal in raw mode, a pipe or a serial line. One goroutine reads the
// stream for the lifetime of the source; Start and Stop only attach and
// detach the push function, and bytes arriving while detached are discarded.
// Attached with StartStream, the reader waits for the device to take each
// key, so piped input is never lost to a full backlog.
type ByteSource struct {
	r   io.Reader
	log tty.Logger

	mu      sync.Mutex
	push    func(tty.KeyEvent) error
	started bool
	lastCR  bool
	err     error
	done    chan struct{}
}

// ByteOption configures a ByteSource
type ByteOption func(*ByteSource)

// WithByteLogger sets the logger for debug output
func WithByteLogger(logger tty.Logger) ByteOption {
	return func(s *ByteSource) {
		if logger != nil {
			s.log = logger
		}
	}
}

// NewByteSource creates a key source reading from r
func NewByteSource(r io.Reader, opts ...ByteOption) *ByteSource {
	s := &ByteSource{
		r:    r,
		log:  nopLogger{},
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ tty.StreamKeySource = (*ByteSource)(nil)

// Start attaches push, starting the reader goroutine on first use
func (s *ByteSource) Start(push func(tty.KeyEvent)) error {
	return s.StartStream(func(ev tty.KeyEvent) error {
		push(ev)
		return nil
	})
}

// StartStream attaches a push that may wait for room and fails once the
// device stops
func (s *ByteSource) StartStream(push func(tty.KeyEvent) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.push != nil {
		return ErrRunning
	}
	s.push = push
	if !s.started {
		s.started = true
		go s.readLoop()
	}
	return nil
}

// Stop detaches the push function
func (s *ByteSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.push = nil
	return nil
}

// Done is closed when the underlying stream ends or fails
func (s *ByteSource) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the stream, or nil for a clean EOF
func (s *ByteSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *ByteSource) readLoop() {
	defer close(s.done)

	buf := make([]byte, 256)
	for {
		n, err := s.r.Read(buf)
		for _, b := range buf[:n] {
			s.feed(b)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debugf("keyboard: read failed: %v", err)
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
			return
		}
	}
}

func (s *ByteSource) feed(b byte) {
	s.mu.Lock()
	push := s.push
	ev, ok := s.decode(b)
	s.mu.Unlock()

	if ok && push != nil {
		if err := push(ev); err != nil {
			s.log.Debugf("keyboard: key discarded: %v", err)
		}
	}
}

// decode maps one byte to a key press. A CR LF pair yields one return.
func (s *ByteSource) decode(b byte) (tty.KeyEvent, bool) {
	afterCR := s.lastCR
	s.lastCR = b == '\r'

	switch {
	case b == '\r':
		return tty.SpecialEvent(tty.KeyReturn), true
	case b == '\n':
		if afterCR {
			return tty.KeyEvent{}, false
		}
		return tty.SpecialEvent(tty.KeyReturn), true
	case b == 0x7f || b == '\b':
		return tty.SpecialEvent(tty.KeyBackspace), true
	case b == '\t':
		return tty.SpecialEvent(tty.KeyTab), true
	case b == 0x1b:
		return tty.SpecialEvent(tty.KeyEscape), true
	case b >= 0x01 && b <= 0x1a:
		return tty.ControlEvent(tty.KeyA + tty.Key(b-1)), true
	case b >= 32 && b <= 126:
		return tty.CharEvent(b), true
	}
	return tty.KeyEvent{}, false
}

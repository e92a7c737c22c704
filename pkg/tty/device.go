// Package tty implements a canonical-mode line discipline: key events are
// edited into lines for a blocking reader and writes are rendered to a
// console, all multiplexed by one driver goroutine per device.
package tty

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"line-terminal/pkg/ring"
)

// Device is a reference counted line discipline bound to one console and
// one key source. The first Open starts the driver; the last Close stops it.
type Device struct {
	config  Config
	console Console
	keys    KeySource
	log     Logger

	mu       sync.Mutex
	useCount int
	sess     *session

	stats counters
}

// session holds the state that lives from the first open to the last close
type session struct {
	cancel context.CancelFunc
	done   chan struct{}

	notify  *Notifier
	keys    *ring.Queue[KeyEvent]
	results *ring.Queue[byte]
	writes  *ring.Queue[byte]
	stager  stager

	reading atomic.Bool
}

// Option configures a Device
type Option func(*Device)

// WithLogger sets the logger for debug output
func WithLogger(logger Logger) Option {
	return func(d *Device) {
		if logger != nil {
			d.log = logger
		}
	}
}

// New creates a closed device. keys may be nil for an output-only device.
func New(config Config, console Console, keys KeySource, opts ...Option) (*Device, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tty config: %w", err)
	}
	if console == nil {
		return nil, fmt.Errorf("console cannot be nil")
	}

	d := &Device{
		config:  config,
		console: console,
		keys:    keys,
		log:     nopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the device configuration
func (d *Device) Config() Config {
	return d.config
}

// Strategy returns the write strategy and with it the write contract
func (d *Device) Strategy() Strategy {
	return d.config.Strategy
}

// UseCount returns the number of open handles
func (d *Device) UseCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.useCount
}

// Stats returns a snapshot of the device counters
func (d *Device) Stats() Stats {
	return d.stats.snapshot()
}

// Open returns a new handle, starting the device on the first open
func (d *Device) Open() (*Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.useCount == 0 {
		s, err := d.start()
		if err != nil {
			return nil, opError("open", err)
		}
		d.sess = s
	}
	d.useCount++

	return &Handle{dev: d, sess: d.sess}, nil
}

func (d *Device) start() (*session, error) {
	d.log.Debugf("tty: init (line %d, strategy %s)", d.config.LineCapacity, d.config.Strategy)

	s := &session{
		done:    make(chan struct{}),
		notify:  NewNotifier(),
		keys:    ring.New[KeyEvent](d.config.KeyBacklog),
		results: ring.New[byte](d.config.ReadBacklog),
		writes:  ring.New[byte](d.config.WriteBacklog),
	}
	s.stager = newStager(d.config.Strategy, s.writes, s.notify, &d.stats)

	drv := &driver{
		con:     d.console,
		line:    newLineEditor(d.config.LineCapacity, d.config.Echo, d.console, s.results, &d.stats, d.log),
		keys:    s.keys,
		writes:  s.writes,
		notify:  s.notify,
		killKey: d.config.KillKey,
		log:     d.log,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer close(s.done)
		drv.run(ctx)
	}()

	if d.keys != nil {
		var err error
		if stream, ok := d.keys.(StreamKeySource); ok {
			err = stream.StartStream(func(ev KeyEvent) error { return d.waitKey(ctx, s, ev) })
		} else {
			err = d.keys.Start(func(ev KeyEvent) { d.pushKey(s, ev) })
		}
		if err != nil {
			d.stop(s)
			return nil, fmt.Errorf("failed to start key source: %w", err)
		}
	}

	return s, nil
}

// pushKey is the key source boundary: it never blocks and drops the event
// when the backlog is full
func (d *Device) pushKey(s *session, ev KeyEvent) {
	if !s.keys.TryPush(ev) {
		d.stats.keysDropped.Add(1)
	}
	s.notify.Set(KeyPending)
}

// waitKey is pushKey for stream key sources: it waits for room in the
// backlog and drops the event only when the session ends first
func (d *Device) waitKey(ctx context.Context, s *session, ev KeyEvent) error {
	err := s.keys.Push(ctx, ev)
	if err != nil {
		d.stats.keysDropped.Add(1)
		if errors.Is(err, ring.ErrClosed) {
			err = ErrClosed
		}
	}
	s.notify.Set(KeyPending)
	return err
}

func (d *Device) release(s *session) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.useCount == 0 || d.sess != s {
		return opError("close", ErrNotOpen)
	}

	d.useCount--
	if d.useCount > 0 {
		return nil
	}

	d.sess = nil
	var err error
	if d.keys != nil {
		if stopErr := d.keys.Stop(); stopErr != nil {
			err = opError("close", fmt.Errorf("failed to stop key source: %w", stopErr))
		}
	}
	d.stop(s)
	return err
}

func (d *Device) stop(s *session) {
	d.log.Debugf("tty: teardown")
	// writers still waiting for room fail now; the driver renders what
	// is already staged before it exits
	s.writes.Close()
	s.cancel()
	<-s.done

	s.keys.Close()
	s.results.Close()
	if n := s.keys.Drain(); n > 0 {
		d.stats.keysDropped.Add(uint64(n))
	}
}

// Handle is an open reference to a Device. It implements io.ReadWriteCloser.
type Handle struct {
	dev    *Device
	sess   *session
	closed atomic.Bool
}

var _ io.ReadWriteCloser = (*Handle)(nil)

// Read blocks until a line is committed or len(p) bytes are available. It
// returns the bytes before the end of line, so an empty line reads as 0.
// At most one Read may be in progress per device.
func (h *Handle) Read(p []byte) (int, error) {
	return h.ReadContext(context.Background(), p)
}

// ReadContext is Read with cancellation
func (h *Handle) ReadContext(ctx context.Context, p []byte) (int, error) {
	if h.closed.Load() {
		return 0, opError("read", ErrClosed)
	}
	if len(p) == 0 {
		return 0, nil
	}

	s := h.sess
	if !s.reading.CompareAndSwap(false, true) {
		return 0, opError("read", ErrReaderConflict)
	}
	defer s.reading.Store(false)

	for i := range p {
		ch, err := s.results.Pop(ctx)
		if err != nil {
			if errors.Is(err, ring.ErrClosed) {
				err = ErrClosed
			}
			return i, opError("read", err)
		}
		if ch == EOL {
			return i, nil
		}
		p[i] = ch
	}
	return len(p), nil
}

// Write stages p for rendering. Under StrategyToken it waits until every
// byte is staged. Under StrategyMutex it may stage fewer bytes and then
// returns io.ErrShortWrite with the count.
func (h *Handle) Write(p []byte) (int, error) {
	n, err := h.WriteContext(context.Background(), p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

// WriteContext stages p for rendering. A short count with a nil error is
// the normal outcome of a full queue under StrategyMutex.
func (h *Handle) WriteContext(ctx context.Context, p []byte) (int, error) {
	if h.closed.Load() {
		return 0, opError("write", ErrClosed)
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err := h.sess.stager.stage(ctx, p)
	h.dev.stats.bytesWritten.Add(uint64(n))
	return n, opError("write", err)
}

// WriteString is Write for a string
func (h *Handle) WriteString(s string) (int, error) {
	return h.Write([]byte(s))
}

// Close releases the handle. Closing the last handle stops the device.
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return opError("close", ErrClosed)
	}
	return h.dev.release(h.sess)
}

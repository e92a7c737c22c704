// Package app wires a tty device to a console backend and runs the command
// shell on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/term"

	"line-terminal/pkg/config"
	"line-terminal/pkg/console"
	"line-terminal/pkg/history"
	"line-terminal/pkg/keyboard"
	"line-terminal/pkg/serial"
	"line-terminal/pkg/tty"
)

const (
	// defaultStreamWidth is used when the output is not a terminal
	defaultStreamWidth = 80

	// inputDrainDelay lets keys typed before the end of input reach the
	// shell before the session is cancelled
	inputDrainDelay = 100 * time.Millisecond
)

// Initial palette of the screen console
const (
	defaultBackground uint16 = 0x123
	defaultForeground uint16 = 0x0c3
)

// Options configures an Application
type Options struct {
	Backend string
	Device  tty.Config
	Serial  serial.SerialConfig
	Retry   serial.RetryConfig

	// TranscriptFile, when set, receives the session transcript on exit
	TranscriptFile   string
	TranscriptFormat history.FileFormat
	TranscriptSize   int

	Logger Logger

	// Input and Output are used by the stdio backend
	Input  io.Reader
	Output io.Writer

	// NewScreen creates the screen for the screen backend
	NewScreen func() (tcell.Screen, error)
	// OpenPort overrides how the serial backend opens its port
	OpenPort serial.OpenFunc
}

// DefaultOptions returns options for a screen session with default settings
func DefaultOptions() Options {
	return Options{
		Backend:          config.BackendScreen,
		Device:           tty.DefaultConfig(),
		Serial:           serial.DefaultConfig(),
		Retry:            serial.DefaultRetryConfig(),
		TranscriptFormat: history.FormatPlainText,
	}
}

// OptionsFromProfile returns default options carrying a profile's settings
func OptionsFromProfile(p config.Profile) Options {
	opts := DefaultOptions()
	opts.Backend = p.Backend
	opts.Device = p.Device
	opts.Serial = p.Serial
	return opts
}

// Validate checks the options for the selected backend
func (o Options) Validate() error {
	if !slices.Contains(config.Backends, o.Backend) {
		return fmt.Errorf("unknown backend: %s", o.Backend)
	}
	if err := o.Device.Validate(); err != nil {
		return fmt.Errorf("invalid device config: %w", err)
	}
	if o.Backend == config.BackendSerial {
		if err := o.Serial.Validate(); err != nil {
			return fmt.Errorf("invalid serial config: %w", err)
		}
		if err := o.Retry.Validate(); err != nil {
			return fmt.Errorf("invalid retry config: %w", err)
		}
	}
	return nil
}

// Application owns a device and the backend resources behind it
type Application struct {
	opts       Options
	log        Logger
	device     *tty.Device
	palette    Palette
	transcript *history.Transcript

	// inputDone is closed when a byte stream backend reaches end of input
	inputDone <-chan struct{}
	teardown  []func() error

	mu        sync.Mutex
	cancel    context.CancelFunc
	startTime time.Time
	endTime   time.Time
}

// NewApplication sets up the backend and the device on top of it
func NewApplication(opts Options) (*Application, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	a := &Application{
		opts: opts,
		log:  opts.Logger,
	}
	if a.log == nil {
		a.log = nopLogger{}
	}
	if opts.TranscriptFile != "" {
		a.transcript = history.NewTranscript(opts.TranscriptSize)
	}

	var (
		con  tty.Console
		keys tty.KeySource
		err  error
	)
	switch opts.Backend {
	case config.BackendScreen:
		con, keys, err = a.setupScreen()
	case config.BackendStdio:
		con, keys, err = a.setupStdio()
	case config.BackendSerial:
		con, keys, err = a.setupSerial()
	}
	if err != nil {
		a.Close()
		return nil, err
	}

	device, err := tty.New(opts.Device, con, withInterrupt(keys, a.interrupt), tty.WithLogger(a.log))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create device: %w", err)
	}
	a.device = device
	return a, nil
}

func (a *Application) setupScreen() (tty.Console, tty.KeySource, error) {
	newScreen := a.opts.NewScreen
	if newScreen == nil {
		newScreen = tcell.NewScreen
	}

	screen, err := newScreen()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize screen: %w", err)
	}
	a.teardown = append(a.teardown, func() error {
		screen.Fini()
		return nil
	})

	con, err := console.NewScreen(screen)
	if err != nil {
		return nil, nil, err
	}
	if err := con.SetColor(0, defaultBackground); err != nil {
		return nil, nil, err
	}
	if err := con.SetColor(1, defaultForeground); err != nil {
		return nil, nil, err
	}
	a.palette = con

	keys := keyboard.NewScreenSource(screen,
		keyboard.WithScreenLogger(a.log),
		keyboard.WithEventHandler(func(ev tcell.Event) {
			if _, ok := ev.(*tcell.EventResize); ok {
				screen.Sync()
			}
		}),
	)
	return con, keys, nil
}

func (a *Application) setupStdio() (tty.Console, tty.KeySource, error) {
	in, out := a.opts.Input, a.opts.Output
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to set raw mode: %w", err)
		}
		a.teardown = append(a.teardown, func() error {
			return term.Restore(int(f.Fd()), state)
		})
	}

	width := defaultStreamWidth
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			width = w
		}
	}
	a.log.Debugf("app: stdio backend, width %d", width)

	con, err := console.NewStream(out, width)
	if err != nil {
		return nil, nil, err
	}
	keys := keyboard.NewByteSource(in, keyboard.WithByteLogger(a.log))
	a.inputDone = keys.Done()
	return con, keys, nil
}

func (a *Application) setupSerial() (tty.Console, tty.KeySource, error) {
	opts := []serial.Option{
		serial.WithRetry(a.opts.Retry),
		serial.WithLogger(a.log),
	}
	if a.opts.OpenPort != nil {
		opts = append(opts, serial.WithOpenFunc(a.opts.OpenPort))
	}

	conn, err := serial.Open(a.opts.Serial, opts...)
	if err != nil {
		return nil, nil, err
	}
	a.teardown = append(a.teardown, conn.Close)

	con, err := console.NewStream(conn, defaultStreamWidth)
	if err != nil {
		return nil, nil, err
	}
	keys := keyboard.NewByteSource(conn, keyboard.WithByteLogger(a.log))
	a.inputDone = keys.Done()
	return con, keys, nil
}

// Run opens the device and runs the shell until it quits, the input ends,
// ^C is pressed or ctx is done
func (a *Application) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	a.cancel = cancel
	a.startTime = time.Now()
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.cancel = nil
		a.endTime = time.Now()
		a.mu.Unlock()
	}()

	h, err := a.device.Open()
	if err != nil {
		return fmt.Errorf("failed to open device: %w", err)
	}
	defer func() {
		if closeErr := h.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close device: %w", closeErr)
		}
	}()

	if a.inputDone != nil {
		go a.watchInput(ctx, cancel)
	}

	shell := NewShell(h,
		WithPalette(a.palette),
		WithTranscript(a.transcript),
		WithShellLogger(a.log),
	)
	err = shell.Run(ctx)
	if errors.Is(err, context.Canceled) {
		a.log.Debugf("app: session cancelled")
		return nil
	}
	return err
}

func (a *Application) watchInput(ctx context.Context, cancel context.CancelFunc) {
	select {
	case <-a.inputDone:
	case <-ctx.Done():
		return
	}

	a.log.Debugf("app: end of input")
	select {
	case <-time.After(inputDrainDelay):
		cancel()
	case <-ctx.Done():
	}
}

// interrupt cancels the running session
func (a *Application) interrupt() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()

	a.log.Debugf("app: interrupt key")
	if cancel != nil {
		cancel()
	}
}

// Close releases the backend resources in reverse order of acquisition
func (a *Application) Close() error {
	var errs []error
	for i := len(a.teardown) - 1; i >= 0; i-- {
		if err := a.teardown[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.teardown = nil
	return errors.Join(errs...)
}

// Device returns the application's tty device
func (a *Application) Device() *tty.Device {
	return a.device
}

// Transcript returns the session transcript, or nil when none is kept
func (a *Application) Transcript() *history.Transcript {
	return a.transcript
}

// Duration returns how long the last session ran
func (a *Application) Duration() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.startTime.IsZero() {
		return 0
	}
	if a.endTime.Before(a.startTime) {
		return time.Since(a.startTime)
	}
	return a.endTime.Sub(a.startTime)
}

// withInterrupt wraps keys so ^C interrupts the session instead of
// reaching the line. Stream sources stay stream sources.
func withInterrupt(keys tty.KeySource, onInterrupt func()) tty.KeySource {
	k := interruptKeys{KeySource: keys, onInterrupt: onInterrupt}
	if stream, ok := keys.(tty.StreamKeySource); ok {
		return interruptStream{interruptKeys: k, stream: stream}
	}
	return k
}

type interruptKeys struct {
	tty.KeySource
	onInterrupt func()
}

func (k interruptKeys) Start(push func(tty.KeyEvent)) error {
	return k.KeySource.Start(func(ev tty.KeyEvent) {
		if k.interrupted(ev) {
			return
		}
		push(ev)
	})
}

func (k interruptKeys) interrupted(ev tty.KeyEvent) bool {
	if ev.Pressed() && ev.Control() && ev.Code == tty.KeyC {
		k.onInterrupt()
		return true
	}
	return false
}

type interruptStream struct {
	interruptKeys
	stream tty.StreamKeySource
}

func (k interruptStream) StartStream(push func(tty.KeyEvent) error) error {
	return k.stream.StartStream(func(ev tty.KeyEvent) error {
		if k.interrupted(ev) {
			return nil
		}
		return push(ev)
	})
}

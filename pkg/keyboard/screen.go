// Package keyboard provides tty key sources: one driven by tcell screen
// events and one decoding a raw byte stream such as stdin or a serial port.
package keyboard

import (
	"errors"
	"sync"

	"github.com/gdamore/tcell/v2"
	"line-terminal/pkg/tty"
)

// ErrRunning is returned when Start is called on a source that is already
// delivering events
var ErrRunning = errors.New("key source already running")

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}

// ScreenSource polls a tcell screen and pushes translated key events. Non-key
// events go to the optional event handler.
type ScreenSource struct {
	screen  tcell.Screen
	log     tty.Logger
	onEvent func(tcell.Event)

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// ScreenOption configures a ScreenSource
type ScreenOption func(*ScreenSource)

// WithScreenLogger sets the logger for debug output
func WithScreenLogger(logger tty.Logger) ScreenOption {
	return func(s *ScreenSource) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithEventHandler receives every polled event that is not a key press,
// such as resizes. It runs on the polling goroutine.
func WithEventHandler(handler func(tcell.Event)) ScreenOption {
	return func(s *ScreenSource) {
		s.onEvent = handler
	}
}

// NewScreenSource creates a key source for an initialized screen
func NewScreenSource(screen tcell.Screen, opts ...ScreenOption) *ScreenSource {
	s := &ScreenSource{
		screen: screen,
		log:    nopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins polling and pushes every translated key event
func (s *ScreenSource) Start(push func(tty.KeyEvent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return ErrRunning
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.poll(push, s.stop, s.done)
	return nil
}

// Stop interrupts the polling goroutine and waits for it to exit
func (s *ScreenSource) Stop() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}

	close(stop)
	// PollEvent blocks, so wake it with an interrupt
	if err := s.screen.PostEvent(tcell.NewEventInterrupt(nil)); err != nil {
		s.log.Debugf("keyboard: failed to post interrupt: %v", err)
	}
	<-done
	return nil
}

func (s *ScreenSource) poll(push func(tty.KeyEvent), stop, done chan struct{}) {
	defer close(done)

	for {
		ev := s.screen.PollEvent()
		if ev == nil {
			// screen finalized
			return
		}

		select {
		case <-stop:
			return
		default:
		}

		switch ev := ev.(type) {
		case *tcell.EventKey:
			if kev, ok := Translate(ev); ok {
				push(kev)
			} else {
				s.log.Debugf("keyboard: ignoring key %v", ev.Name())
			}
		case *tcell.EventInterrupt:
		default:
			if s.onEvent != nil {
				s.onEvent(ev)
			}
		}
	}
}

// Translate converts a tcell key event into a tty key press
func Translate(ev *tcell.EventKey) (tty.KeyEvent, bool) {
	mods := modifiers(ev.Modifiers())

	switch ev.Key() {
	case tcell.KeyEnter:
		return withMods(tty.SpecialEvent(tty.KeyReturn), mods), true
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return withMods(tty.SpecialEvent(tty.KeyBackspace), mods), true
	case tcell.KeyTab:
		return withMods(tty.SpecialEvent(tty.KeyTab), mods), true
	case tcell.KeyEscape:
		return withMods(tty.SpecialEvent(tty.KeyEscape), mods), true
	case tcell.KeyDelete:
		return withMods(tty.SpecialEvent(tty.KeyDelete), mods), true
	case tcell.KeyUp:
		return withMods(tty.SpecialEvent(tty.KeyUp), mods), true
	case tcell.KeyDown:
		return withMods(tty.SpecialEvent(tty.KeyDown), mods), true
	case tcell.KeyLeft:
		return withMods(tty.SpecialEvent(tty.KeyLeft), mods), true
	case tcell.KeyRight:
		return withMods(tty.SpecialEvent(tty.KeyRight), mods), true
	case tcell.KeyRune:
		r := ev.Rune()
		if ev.Modifiers()&tcell.ModCtrl != 0 {
			if k := tty.LetterKey(r); k != tty.KeyNone {
				return tty.ControlEvent(k), true
			}
		}
		if r < 32 || r > 126 {
			// outside the line alphabet; delivered without a character
			return tty.KeyEvent{Code: tty.KeyChar, Modifiers: tty.ModPressed | mods}, true
		}
		return withMods(tty.CharEvent(byte(r)), mods), true
	}

	if k := ev.Key(); k >= tcell.KeyCtrlA && k <= tcell.KeyCtrlZ {
		return tty.ControlEvent(tty.KeyA + tty.Key(k-tcell.KeyCtrlA)), true
	}
	return tty.KeyEvent{}, false
}

func withMods(ev tty.KeyEvent, mods tty.Modifier) tty.KeyEvent {
	ev.Modifiers |= mods
	return ev
}

func modifiers(m tcell.ModMask) tty.Modifier {
	var mods tty.Modifier
	if m&tcell.ModShift != 0 {
		mods |= tty.ModShift
	}
	if m&tcell.ModAlt != 0 {
		mods |= tty.ModAlt
	}
	return mods
}

package tty

import (
	"errors"
	"sync"
	"testing"
	"time"

	"line-terminal/pkg/console"
)

// fakeKeys is a KeySource driven by the test
type fakeKeys struct {
	mu       sync.Mutex
	push     func(KeyEvent)
	starts   int
	stops    int
	startErr error
}

func (f *fakeKeys) Start(push func(KeyEvent)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.push = push
	f.starts++
	return nil
}

func (f *fakeKeys) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.push = nil
	f.stops++
	return nil
}

func (f *fakeKeys) registered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.push != nil
}

func (f *fakeKeys) send(events ...KeyEvent) {
	f.mu.Lock()
	push := f.push
	f.mu.Unlock()
	for _, ev := range events {
		if push != nil {
			push(ev)
		}
	}
}

func (f *fakeKeys) typeString(s string) {
	for i := 0; i < len(s); i++ {
		f.send(CharEvent(s[i]))
	}
}

func (f *fakeKeys) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

// gatedConsole blocks every PutChar until released
type gatedConsole struct {
	*console.Buffer
	gate chan struct{}
	once sync.Once
}

func newGatedConsole(width, height int) *gatedConsole {
	return &gatedConsole{
		Buffer: console.NewBuffer(width, height),
		gate:   make(chan struct{}),
	}
}

func (g *gatedConsole) PutChar(ch byte) {
	<-g.gate
	g.Buffer.PutChar(ch)
}

func (g *gatedConsole) release() {
	g.once.Do(func() { close(g.gate) })
}

func newTestDevice(t *testing.T, cfg Config, con Console) (*Device, *fakeKeys) {
	t.Helper()
	keys := &fakeKeys{}
	dev, err := New(cfg, con, keys)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return dev, keys
}

func openHandle(t *testing.T, dev *Device) *Handle {
	t.Helper()
	h, err := dev.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type readResult struct {
	data string
	n    int
	err  error
}

func readAsync(h *Handle, size int) <-chan readResult {
	out := make(chan readResult, 1)
	go func() {
		buf := make([]byte, size)
		n, err := h.Read(buf)
		out <- readResult{data: string(buf[:n]), n: n, err: err}
	}()
	return out
}

func awaitRead(t *testing.T, ch <-chan readResult) readResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("read did not return")
		return readResult{}
	}
}

func isDeviceErr(err, target error) bool {
	var devErr *DeviceError
	return errors.As(err, &devErr) && errors.Is(err, target)
}

// fakeStream is a StreamKeySource driven by the test
type fakeStream struct {
	fakeKeys
	streamPush func(KeyEvent) error
}

func (f *fakeStream) StartStream(push func(KeyEvent) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamPush = push
	f.starts++
	return nil
}

func (f *fakeStream) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamPush = nil
	f.stops++
	return nil
}

func (f *fakeStream) typeString(s string) error {
	f.mu.Lock()
	push := f.streamPush
	f.mu.Unlock()
	for i := 0; i < len(s); i++ {
		if err := push(CharEvent(s[i])); err != nil {
			return err
		}
	}
	return push(SpecialEvent(KeyReturn))
}

package tty

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"line-terminal/pkg/console"
	"line-terminal/pkg/ring"
)

func TestNew_Invalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LineCapacity = 0
	if _, err := New(cfg, console.NewBuffer(80, 24), nil); err == nil {
		t.Error("New() with invalid config should fail")
	}

	if _, err := New(DefaultConfig(), nil, nil); err == nil {
		t.Error("New() with nil console should fail")
	}
}

func TestDevice_ReadLine(t *testing.T) {
	tests := []struct {
		name     string
		input    func(k *fakeKeys)
		bufSize  int
		want     string
		rendered string
	}{
		{
			name: "backspace edits the line",
			input: func(k *fakeKeys) {
				k.typeString("ab")
				k.send(SpecialEvent(KeyBackspace))
				k.typeString("c")
				k.send(SpecialEvent(KeyReturn))
			},
			bufSize:  10,
			want:     "ac",
			rendered: "ab c\n",
		},
		{
			name: "kill key discards the line",
			input: func(k *fakeKeys) {
				k.typeString("hello")
				k.send(ControlEvent(KeyU))
				k.typeString("hi")
				k.send(SpecialEvent(KeyReturn))
			},
			bufSize: 10,
			want:    "hi",
		},
		{
			name: "released keys are ignored",
			input: func(k *fakeKeys) {
				k.send(KeyEvent{Code: KeyA, ASCII: 'a'})
				k.typeString("b")
				k.send(SpecialEvent(KeyReturn))
			},
			bufSize:  10,
			want:     "b",
			rendered: "b\n",
		},
		{
			name: "other control keys are ignored",
			input: func(k *fakeKeys) {
				k.typeString("x")
				k.send(ControlEvent(KeyC))
				k.send(SpecialEvent(KeyLeft))
				k.send(SpecialEvent(KeyReturn))
			},
			bufSize:  10,
			want:     "x",
			rendered: "x\n",
		},
		{
			name: "empty line reads as zero bytes",
			input: func(k *fakeKeys) {
				k.send(SpecialEvent(KeyReturn))
			},
			bufSize:  10,
			want:     "",
			rendered: "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			con := console.NewBuffer(80, 24)
			dev, keys := newTestDevice(t, DefaultConfig(), con)
			h := openHandle(t, dev)
			defer h.Close()

			pending := readAsync(h, tt.bufSize)
			tt.input(keys)

			r := awaitRead(t, pending)
			if r.err != nil {
				t.Fatalf("Read() error = %v", r.err)
			}
			if r.data != tt.want || r.n != len(tt.want) {
				t.Errorf("Read() = %q (%d), want %q (%d)", r.data, r.n, tt.want, len(tt.want))
			}
			if tt.rendered != "" {
				if got := string(con.Rendered()); got != tt.rendered {
					t.Errorf("rendered = %q, want %q", got, tt.rendered)
				}
			}
		})
	}
}

func TestDevice_ReadZeroBytes(t *testing.T) {
	dev, _ := newTestDevice(t, DefaultConfig(), console.NewBuffer(80, 24))
	h := openHandle(t, dev)
	defer h.Close()

	n, err := h.Read(nil)
	if n != 0 || err != nil {
		t.Errorf("Read(nil) = %d, %v; want 0, nil", n, err)
	}
}

func TestDevice_PartialRead(t *testing.T) {
	dev, keys := newTestDevice(t, DefaultConfig(), console.NewBuffer(80, 24))
	h := openHandle(t, dev)
	defer h.Close()

	keys.typeString("hello")
	keys.send(SpecialEvent(KeyReturn))

	buf := make([]byte, 3)
	n, err := h.Read(buf)
	if err != nil || string(buf[:n]) != "hel" {
		t.Fatalf("first Read() = %q, %v; want hel", buf[:n], err)
	}

	buf = make([]byte, 10)
	n, err = h.Read(buf)
	if err != nil || string(buf[:n]) != "lo" {
		t.Fatalf("second Read() = %q, %v; want lo", buf[:n], err)
	}
}

func TestDevice_ReadsQueuedLinesInOrder(t *testing.T) {
	dev, keys := newTestDevice(t, DefaultConfig(), console.NewBuffer(80, 24))
	h := openHandle(t, dev)
	defer h.Close()

	// ReadBacklog holds 81 bytes, so both lines fit before anyone reads
	keys.typeString("one")
	keys.send(SpecialEvent(KeyReturn))
	keys.typeString("two")
	keys.send(SpecialEvent(KeyReturn))

	waitFor(t, "two committed lines", func() bool {
		return dev.Stats().LinesCommitted == 2
	})

	for _, want := range []string{"one", "two"} {
		buf := make([]byte, 16)
		n, err := h.Read(buf)
		if err != nil || string(buf[:n]) != want {
			t.Errorf("Read() = %q, %v; want %q", buf[:n], err, want)
		}
	}
}

func TestDevice_ReaderConflict(t *testing.T) {
	dev, keys := newTestDevice(t, DefaultConfig(), console.NewBuffer(80, 24))
	h1 := openHandle(t, dev)
	defer h1.Close()
	h2 := openHandle(t, dev)
	defer h2.Close()

	pending := readAsync(h1, 10)
	waitFor(t, "first reader to block", func() bool {
		return h1.sess.reading.Load()
	})

	_, err := h2.Read(make([]byte, 10))
	if !isDeviceErr(err, ErrReaderConflict) {
		t.Errorf("second Read() error = %v, want ErrReaderConflict", err)
	}

	keys.typeString("ok")
	keys.send(SpecialEvent(KeyReturn))

	r := awaitRead(t, pending)
	if r.err != nil || r.data != "ok" {
		t.Errorf("first Read() = %q, %v; want ok", r.data, r.err)
	}
}

func TestDevice_ReadContextCancelled(t *testing.T) {
	dev, _ := newTestDevice(t, DefaultConfig(), console.NewBuffer(80, 24))
	h := openHandle(t, dev)
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.ReadContext(ctx, make([]byte, 10))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ReadContext() error = %v, want deadline exceeded", err)
	}

	// the reader slot is released
	if h.sess.reading.Load() {
		t.Error("reader slot still held after cancelled read")
	}
}

func TestDevice_TokenWriteLongerThanBacklog(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WriteBacklog = 8
	con := console.NewBuffer(40, 24)
	dev, _ := newTestDevice(t, cfg, con)
	h := openHandle(t, dev)
	defer h.Close()

	data := []byte(strings.Repeat("0123456789", 10))
	n, err := h.Write(data)
	if err != nil || n != len(data) {
		t.Fatalf("Write() = %d, %v; want %d, nil", n, err, len(data))
	}

	waitFor(t, "all bytes rendered", func() bool {
		return len(con.Rendered()) == len(data)
	})
	if !bytes.Equal(con.Rendered(), data) {
		t.Errorf("rendered = %q, want %q", con.Rendered(), data)
	}
	if got := dev.Stats().BytesWritten; got != uint64(len(data)) {
		t.Errorf("BytesWritten = %d, want %d", got, len(data))
	}
}

func TestDevice_TokenWritersDoNotInterleave(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WriteBacklog = 3
	con := console.NewBuffer(80, 24)
	dev, _ := newTestDevice(t, cfg, con)

	const rounds = 50
	var wg sync.WaitGroup
	for _, msg := range []string{"AB", "CD"} {
		h := openHandle(t, dev)
		defer h.Close()

		wg.Add(1)
		go func(h *Handle, msg string) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if _, err := h.WriteString(msg); err != nil {
					t.Errorf("WriteString(%q) error = %v", msg, err)
					return
				}
			}
		}(h, msg)
	}
	wg.Wait()

	waitFor(t, "all writes rendered", func() bool {
		return len(con.Rendered()) == 4*rounds
	})

	out := string(con.Rendered())
	for i := 0; i < len(out); i += 2 {
		if pair := out[i : i+2]; pair != "AB" && pair != "CD" {
			t.Fatalf("interleaved output at %d: %q", i, out)
		}
	}
}

func TestDevice_MutexShortWrite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyMutex
	cfg.WriteBacklog = 8
	con := newGatedConsole(80, 24)
	dev, _ := newTestDevice(t, cfg, con)
	h := openHandle(t, dev)

	data := []byte("abcdefghijklmnopqrst")
	n, err := h.Write(data)
	if !errors.Is(err, io.ErrShortWrite) {
		t.Errorf("Write() error = %v, want io.ErrShortWrite", err)
	}
	// the driver may have taken one byte before blocking on the console
	if n < 8 || n > 9 {
		t.Errorf("Write() = %d, want 8 or 9", n)
	}

	ctxN, ctxErr := h.WriteContext(context.Background(), []byte("z"))
	if ctxErr != nil {
		t.Errorf("WriteContext() on a full queue error = %v, want nil", ctxErr)
	}

	con.release()
	waitFor(t, "staged bytes rendered", func() bool {
		return len(con.Rendered()) == n+ctxN
	})
	if got := string(con.Rendered()[:n]); got != string(data[:n]) {
		t.Errorf("rendered = %q, want %q", got, data[:n])
	}

	if got := dev.Stats().ShortWrites; got < 1 {
		t.Errorf("ShortWrites = %d, want at least 1", got)
	}
	h.Close()
}

func TestDevice_TokenWriteWaitsForDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WriteBacklog = 4
	con := newGatedConsole(80, 24)
	dev, _ := newTestDevice(t, cfg, con)
	h := openHandle(t, dev)

	data := []byte("0123456789")
	done := make(chan error, 1)
	go func() {
		n, err := h.Write(data)
		if err == nil && n != len(data) {
			err = io.ErrShortWrite
		}
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("Write() returned %v before the console drained", err)
	case <-time.After(30 * time.Millisecond):
	}

	con.release()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Write() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Write() did not complete after release")
	}

	waitFor(t, "all bytes rendered", func() bool {
		return bytes.Equal(con.Rendered(), data)
	})
	h.Close()
}

func TestDevice_TokenWriteContextDeadline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WriteBacklog = 4
	con := newGatedConsole(80, 24)
	dev, _ := newTestDevice(t, cfg, con)
	h := openHandle(t, dev)
	defer func() {
		con.release()
		h.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	n, err := h.WriteContext(ctx, []byte("0123456789"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WriteContext() error = %v, want deadline exceeded", err)
	}
	if n < 4 || n > 5 {
		t.Errorf("WriteContext() = %d, want 4 or 5", n)
	}
}

func TestDevice_Lifecycle(t *testing.T) {
	con := console.NewBuffer(80, 24)
	dev, keys := newTestDevice(t, DefaultConfig(), con)

	h1 := openHandle(t, dev)
	h2 := openHandle(t, dev)
	if dev.UseCount() != 2 {
		t.Errorf("UseCount() = %d, want 2", dev.UseCount())
	}
	if starts, _ := keys.counts(); starts != 1 {
		t.Errorf("key source started %d times, want 1", starts)
	}

	if err := h1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !keys.registered() {
		t.Error("key source stopped while a handle is still open")
	}

	// still functional through the remaining handle
	pending := readAsync(h2, 10)
	keys.typeString("yo")
	keys.send(SpecialEvent(KeyReturn))
	if r := awaitRead(t, pending); r.err != nil || r.data != "yo" {
		t.Errorf("Read() = %q, %v; want yo", r.data, r.err)
	}

	if err := h2.Close(); err != nil {
		t.Fatalf("last Close() error = %v", err)
	}
	if dev.UseCount() != 0 {
		t.Errorf("UseCount() = %d, want 0", dev.UseCount())
	}
	if _, stops := keys.counts(); stops != 1 {
		t.Errorf("key source stopped %d times, want 1", stops)
	}

	if err := h2.Close(); !isDeviceErr(err, ErrClosed) {
		t.Errorf("double Close() error = %v, want ErrClosed", err)
	}
	if _, err := h2.Read(make([]byte, 4)); !isDeviceErr(err, ErrClosed) {
		t.Errorf("Read() after Close error = %v, want ErrClosed", err)
	}
	if _, err := h2.Write([]byte("x")); !isDeviceErr(err, ErrClosed) {
		t.Errorf("Write() after Close error = %v, want ErrClosed", err)
	}

	h3 := openHandle(t, dev)
	defer h3.Close()
	if starts, _ := keys.counts(); starts != 2 {
		t.Errorf("key source started %d times after reopen, want 2", starts)
	}
	if _, err := h3.WriteString("again"); err != nil {
		t.Errorf("Write() after reopen error = %v", err)
	}
}

func TestDevice_ReleaseStaleSession(t *testing.T) {
	dev, _ := newTestDevice(t, DefaultConfig(), console.NewBuffer(80, 24))
	h := openHandle(t, dev)
	stale := h.sess
	h.Close()

	if err := dev.release(stale); !isDeviceErr(err, ErrNotOpen) {
		t.Errorf("release() error = %v, want ErrNotOpen", err)
	}
}

func TestDevice_CloseWakesBlockedReader(t *testing.T) {
	dev, _ := newTestDevice(t, DefaultConfig(), console.NewBuffer(80, 24))
	h1 := openHandle(t, dev)
	h2 := openHandle(t, dev)

	pending := readAsync(h1, 10)
	waitFor(t, "reader to block", func() bool {
		return h1.sess.reading.Load()
	})

	h2.Close()
	// the reader's own handle is still open; the device keeps running
	select {
	case r := <-pending:
		t.Fatalf("Read() returned early: %q, %v", r.data, r.err)
	case <-time.After(20 * time.Millisecond):
	}

	// closing the reader's handle from another goroutine ends the session
	h1.Close()
	r := awaitRead(t, pending)
	if !isDeviceErr(r.err, ErrClosed) {
		t.Errorf("Read() error = %v, want ErrClosed", r.err)
	}
}

func TestDevice_KeyBacklogOverflow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeyBacklog = 2
	con := newGatedConsole(80, 24)
	dev, keys := newTestDevice(t, cfg, con)
	h := openHandle(t, dev)

	keys.typeString("abcdefghij")

	// at most one key is held by the driver, blocked on the console
	dropped := dev.Stats().KeysDropped
	if dropped < 7 || dropped > 8 {
		t.Errorf("KeysDropped = %d, want 7 or 8", dropped)
	}

	con.release()
	accepted := 10 - int(dropped)
	waitFor(t, "accepted keys echoed", func() bool {
		return len(con.Rendered()) == accepted
	})
	h.Close()
}

func TestDevice_LineCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LineCapacity = 5
	cfg.ReadBacklog = 6
	con := console.NewBuffer(80, 24)
	dev, keys := newTestDevice(t, cfg, con)
	h := openHandle(t, dev)
	defer h.Close()

	pending := readAsync(h, 10)
	keys.typeString("abcdefg")
	keys.send(SpecialEvent(KeyReturn))

	r := awaitRead(t, pending)
	if r.err != nil || r.data != "abcde" {
		t.Errorf("Read() = %q, %v; want abcde", r.data, r.err)
	}
	if got := dev.Stats().CharsDropped; got != 2 {
		t.Errorf("CharsDropped = %d, want 2", got)
	}
}

func TestDevice_KeySourceStartFailure(t *testing.T) {
	con := console.NewBuffer(80, 24)
	keys := &fakeKeys{startErr: errors.New("no keyboard")}
	dev, err := New(DefaultConfig(), con, keys)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := dev.Open(); err == nil {
		t.Fatal("Open() should fail when the key source fails to start")
	}
	if dev.UseCount() != 0 {
		t.Errorf("UseCount() = %d, want 0", dev.UseCount())
	}
	if con.CursorShown() {
		t.Error("cursor left on screen after failed open")
	}
}

func TestDevice_OutputOnly(t *testing.T) {
	con := console.NewBuffer(80, 24)
	dev, err := New(DefaultConfig(), con, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h := openHandle(t, dev)

	if _, err := h.WriteString("hi"); err != nil {
		t.Fatalf("WriteString() error = %v", err)
	}
	waitFor(t, "output rendered", func() bool {
		return string(con.Rendered()) == "hi"
	})
	if err := h.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestDevice_CursorVisibility(t *testing.T) {
	con := console.NewBuffer(80, 24)
	dev, keys := newTestDevice(t, DefaultConfig(), con)
	h := openHandle(t, dev)

	waitFor(t, "cursor drawn", con.CursorShown)

	keys.typeString("a")
	waitFor(t, "key echoed", func() bool {
		return string(con.Rendered()) == "a"
	})
	waitFor(t, "cursor redrawn after burst", con.CursorShown)

	h.Close()
	if con.CursorShown() {
		t.Error("cursor still drawn after teardown")
	}
}

func TestDriver_KeysBeforeWrites(t *testing.T) {
	con := console.NewBuffer(80, 24)
	stats := &counters{}
	results := ring.New[byte](10)
	d := &driver{
		con:     con,
		line:    newLineEditor(8, true, con, results, stats, nopLogger{}),
		keys:    ring.New[KeyEvent](4),
		writes:  ring.New[byte](4),
		notify:  NewNotifier(),
		killKey: KeyU,
		log:     nopLogger{},
	}

	d.keys.TryPush(CharEvent('x'))
	d.writes.TryPush('W')
	d.notify.Set(KeyPending | WritePending)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.run(ctx)
	}()

	waitFor(t, "both bursts rendered", func() bool {
		return len(con.Rendered()) == 2
	})
	cancel()
	<-done

	if got := string(con.Rendered()); got != "xW" {
		t.Errorf("rendered = %q, want xW", got)
	}
}

func TestDriver_HandleKey(t *testing.T) {
	con := console.NewBuffer(80, 24)
	d := &driver{
		con:     con,
		line:    newLineEditor(8, true, con, ring.New[byte](9), &counters{}, nopLogger{}),
		killKey: KeyW,
	}

	tests := []struct {
		name string
		ev   KeyEvent
		want bool
	}{
		{"printable", CharEvent('a'), true},
		{"return", SpecialEvent(KeyReturn), true},
		{"backspace", SpecialEvent(KeyBackspace), true},
		{"configured kill key", ControlEvent(KeyW), true},
		{"default kill key not configured", ControlEvent(KeyU), false},
		{"arrow", SpecialEvent(KeyUp), false},
		{"release", KeyEvent{Code: KeyA, ASCII: 'a'}, false},
	}

	for _, tt := range tests {
		if got := d.handleKey(tt.ev); got != tt.want {
			t.Errorf("%s: handleKey() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDevice_StreamKeysWaitForBacklog(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeyBacklog = 2
	con := newGatedConsole(80, 24)
	keys := &fakeStream{}
	dev, err := New(cfg, con, keys)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h := openHandle(t, dev)
	defer h.Close()

	pending := readAsync(h, 20)
	typed := make(chan error, 1)
	go func() { typed <- keys.typeString("abcdefghij") }()

	select {
	case err := <-typed:
		t.Fatalf("stream push returned %v before the driver made room", err)
	case <-time.After(30 * time.Millisecond):
	}

	con.release()
	select {
	case err := <-typed:
		if err != nil {
			t.Fatalf("stream push error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream push did not complete after release")
	}

	if r := awaitRead(t, pending); r.err != nil || r.data != "abcdefghij" {
		t.Errorf("Read() = %q, %v; want abcdefghij", r.data, r.err)
	}
	if got := dev.Stats().KeysDropped; got != 0 {
		t.Errorf("KeysDropped = %d, want 0", got)
	}
}

func TestDevice_CloseDuringTokenWrite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WriteBacklog = 4
	con := newGatedConsole(80, 24)
	dev, _ := newTestDevice(t, cfg, con)
	h := openHandle(t, dev)

	data := []byte("0123456789")
	type writeResult struct {
		n   int
		err error
	}
	written := make(chan writeResult, 1)
	go func() {
		n, err := h.Write(data)
		written <- writeResult{n, err}
	}()
	time.Sleep(30 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- h.Close() }()

	var w writeResult
	select {
	case w = <-written:
	case <-time.After(2 * time.Second):
		t.Fatal("Write() stayed blocked after Close")
	}
	if w.n == len(data) || !isDeviceErr(w.err, ErrClosed) {
		t.Errorf("Write() = %d, %v; want a short count and ErrClosed", w.n, w.err)
	}

	con.release()
	if err := <-closed; err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// every byte reported as written reached the console
	if got := string(con.Rendered()); got != string(data[:w.n]) {
		t.Errorf("rendered = %q, want %q", got, data[:w.n])
	}
}

func TestDevice_TeardownCountsUnhandledKeys(t *testing.T) {
	dev, keys := newTestDevice(t, DefaultConfig(), console.NewBuffer(80, 24))
	h := openHandle(t, dev)

	// stop the driver first so the keys stay queued
	h.sess.cancel()
	<-h.sess.done
	keys.typeString("abc")

	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := dev.Stats().KeysDropped; got != 3 {
		t.Errorf("KeysDropped = %d, want 3", got)
	}
}

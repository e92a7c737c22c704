package tty

import (
	"context"

	"line-terminal/pkg/ring"
)

// driver is the single consumer of the key and write queues and the only
// goroutine that touches the line editor and the console
type driver struct {
	con     Console
	line    *lineEditor
	keys    *ring.Queue[KeyEvent]
	writes  *ring.Queue[byte]
	notify  *Notifier
	killKey Key
	log     Logger
}

func (d *driver) run(ctx context.Context) {
	d.con.ToggleCursor()
	d.flush()

	for {
		ev, err := d.notify.Wait(ctx)
		if err != nil {
			// render what writers already staged, then leave the screen
			// without a stray cursor
			d.con.ToggleCursor()
			d.drainWrites()
			d.flush()
			d.log.Debugf("tty: driver stopped with %s pending: %v", d.notify.Pending(), err)
			return
		}

		d.con.ToggleCursor()
		if ev&KeyPending != 0 {
			d.drainKeys()
			if ev&WritePending != 0 {
				// keys win this round; writes are handled on the next wake-up
				d.notify.Set(WritePending)
			}
		} else if ev&WritePending != 0 {
			d.drainWrites()
		}
		d.con.ToggleCursor()
		d.flush()
	}
}

func (d *driver) drainKeys() {
	for {
		ev, ok := d.keys.TryPop()
		if !ok {
			return
		}
		d.handleKey(ev)
	}
}

// handleKey applies one key event to the line and reports whether it was
// recognized
func (d *driver) handleKey(ev KeyEvent) bool {
	if !ev.Pressed() {
		return false
	}

	if ev.Control() {
		if ev.Code == d.killKey {
			d.line.killLine()
			return true
		}
		return false
	}

	switch {
	case ev.Code == KeyReturn:
		d.line.commitLine()
	case ev.Code == KeyBackspace:
		d.line.deleteLast()
	case ev.Printable():
		d.line.appendPrintable(ev.ASCII)
	default:
		return false
	}
	return true
}

func (d *driver) drainWrites() {
	for {
		ch, ok := d.writes.TryPop()
		if !ok {
			return
		}
		d.con.PutChar(ch)
	}
}

func (d *driver) flush() {
	if f, ok := d.con.(Flusher); ok {
		if err := f.Flush(); err != nil {
			d.log.Debugf("tty: console flush failed: %v", err)
		}
	}
}

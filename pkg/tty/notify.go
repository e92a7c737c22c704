package tty

import (
	"context"
	"sync"
)

// Event is a bitset of pending work for the driver goroutine
type Event uint32

const (
	KeyPending Event = 1 << iota
	WritePending
)

// String returns the string representation of Event
func (e Event) String() string {
	switch e {
	case 0:
		return "none"
	case KeyPending:
		return "key"
	case WritePending:
		return "write"
	case KeyPending | WritePending:
		return "key|write"
	default:
		return "invalid"
	}
}

// Notifier is a level-triggered notification word. Bits set by any number
// of producers stay set until a Wait consumes them.
type Notifier struct {
	mu     sync.Mutex
	bits   Event
	signal chan struct{}
}

// NewNotifier creates a notifier with no bits set
func NewNotifier() *Notifier {
	return &Notifier{signal: make(chan struct{}, 1)}
}

// Set ORs bits into the word and wakes the waiter. It never blocks.
func (n *Notifier) Set(bits Event) {
	n.mu.Lock()
	n.bits |= bits
	n.mu.Unlock()

	select {
	case n.signal <- struct{}{}:
	default:
	}
}

// Pending returns the bits currently set without consuming them
func (n *Notifier) Pending() Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.bits
}

// Wait blocks until at least one bit is set, then clears and returns all
// set bits
func (n *Notifier) Wait(ctx context.Context) (Event, error) {
	for {
		n.mu.Lock()
		bits := n.bits
		n.bits = 0
		n.mu.Unlock()

		if bits != 0 {
			return bits, nil
		}

		select {
		case <-n.signal:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

package tty

import (
	"context"
	"errors"
	"sync"

	"line-terminal/pkg/ring"
)

// stager moves a writer's bytes onto the write staging queue
type stager interface {
	stage(ctx context.Context, p []byte) (int, error)
}

func newStager(s Strategy, q *ring.Queue[byte], notify *Notifier, stats *counters) stager {
	if s == StrategyMutex {
		return &mutexStager{q: q, notify: notify, stats: stats}
	}
	token := make(chan struct{}, 1)
	token <- struct{}{}
	return &tokenStager{token: token, q: q, notify: notify}
}

// mutexStager pushes as much as fits and reports a short count otherwise
type mutexStager struct {
	mu     sync.Mutex
	q      *ring.Queue[byte]
	notify *Notifier
	stats  *counters
}

func (s *mutexStager) stage(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for n < len(p) && s.q.TryPush(p[n]) {
		n++
	}
	if n > 0 {
		s.notify.Set(WritePending)
	}

	if n < len(p) {
		select {
		case <-s.q.Done():
			return n, ErrClosed
		default:
		}
		s.stats.shortWrites.Add(1)
	}
	return n, nil
}

// tokenStager holds the token for a whole write and waits out a full queue
type tokenStager struct {
	token  chan struct{}
	q      *ring.Queue[byte]
	notify *Notifier
}

func (s *tokenStager) stage(ctx context.Context, p []byte) (int, error) {
	select {
	case <-s.token:
	case <-s.q.Done():
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	defer func() { s.token <- struct{}{} }()

	for i, b := range p {
		if s.q.TryPush(b) {
			continue
		}
		// wake the driver to make room, then retry the same byte
		s.notify.Set(WritePending)
		if err := s.q.Push(ctx, b); err != nil {
			if i > 0 {
				s.notify.Set(WritePending)
			}
			if errors.Is(err, ring.ErrClosed) {
				return i, ErrClosed
			}
			return i, err
		}
	}

	if len(p) > 0 {
		s.notify.Set(WritePending)
	}
	return len(p), nil
}

package memory

import (
	"context"
	"sync"
)

// subscription delivers pushed values in order on out without making the
// pusher wait for the reader.
type subscription[T any] struct {
	mu    sync.Mutex
	queue []T
	ready chan struct{}
	out   chan T
}

func newSubscription[T any](ctx context.Context, onDone func()) *subscription[T] {
	s := &subscription[T]{
		ready: make(chan struct{}, 1),
		out:   make(chan T),
	}
	go s.pump(ctx, onDone)
	return s
}

func (s *subscription[T]) push(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *subscription[T]) pump(ctx context.Context, onDone func()) {
	defer close(s.out)
	defer onDone()

	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, v := range batch {
			select {
			case s.out <- v:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-s.ready:
		case <-ctx.Done():
			return
		}
	}
}

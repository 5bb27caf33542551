package pubsub

import (
	"context"
	"sync"
)

// pumpedSubscription is a Subscription fed by a driver goroutine (the
// pump). The pump owns the events channel and calls finish when it exits.
type pumpedSubscription struct {
	channel string
	events  chan *Event
	cancel  context.CancelFunc
	release func() error

	mu     sync.Mutex
	err    error
	closed bool
	once   sync.Once
}

func newPumpedSubscription(channel string, buffer int, cancel context.CancelFunc, release func() error) *pumpedSubscription {
	return &pumpedSubscription{
		channel: channel,
		events:  make(chan *Event, buffer),
		cancel:  cancel,
		release: release,
	}
}

func (s *pumpedSubscription) Channel() string { return s.channel }

func (s *pumpedSubscription) Events() <-chan *Event { return s.events }

func (s *pumpedSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the pump and releases the transport resources. Idempotent.
func (s *pumpedSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		if s.release != nil {
			err = s.release()
		}
	})
	return err
}

// deliver hands ev to the owner, blocking until it is taken or ctx ends.
func (s *pumpedSubscription) deliver(ctx context.Context, ev *Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish records why the pump stopped and closes the events channel.
// A cause is dropped when the owner closed the subscription itself.
func (s *pumpedSubscription) finish(cause error) {
	s.mu.Lock()
	if !s.closed {
		if cause == nil {
			cause = ErrDisconnected
		}
		s.err = cause
	}
	s.mu.Unlock()
	close(s.events)
}

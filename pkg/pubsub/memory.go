package pubsub

import (
	"context"
	"sync"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
)

// MemoryPubSub is an in-process event bus used by the local embedded
// backend and by tests. Delivery is fire-and-forget: an event is dropped
// for a subscriber whose buffer is full.
type MemoryPubSub struct {
	buffer int

	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	closed bool
}

// NewMemoryPubSub creates an in-process PubSub.
func NewMemoryPubSub(buffer int) *MemoryPubSub {
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryPubSub{
		buffer: buffer,
		subs:   make(map[string]map[*memorySubscription]struct{}),
	}
}

// Publish fans the event out to every subscription on channel.
func (m *MemoryPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	for sub := range m.subs[channel] {
		cp := *event
		select {
		case sub.events <- &cp:
		default:
			l := log.Ctx(ctx)
			l.Warn().Str(log.FieldTopic, channel).Msg("memory pubsub: subscriber buffer full, event dropped")
		}
	}
	return nil
}

// Subscribe registers a new subscription on channel.
func (m *MemoryPubSub) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	sub := &memorySubscription{
		bus:     m,
		channel: channel,
		events:  make(chan *Event, m.buffer),
	}
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[*memorySubscription]struct{})
	}
	m.subs[channel][sub] = struct{}{}

	return sub, nil
}

// Disconnect ends every subscription on channel as if the transport had
// dropped them. Owners see Events closed with ErrDisconnected.
func (m *MemoryPubSub) Disconnect(channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sub := range m.subs[channel] {
		m.endLocked(sub, ErrDisconnected)
	}
}

// SubscriberCount returns the number of open subscriptions on channel.
func (m *MemoryPubSub) SubscriberCount(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[channel])
}

// Close ends all subscriptions with ErrClosed.
func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	for _, subs := range m.subs {
		for sub := range subs {
			m.endLocked(sub, ErrClosed)
		}
	}
	return nil
}

// endLocked removes sub and closes its stream. Callers hold m.mu.
func (m *MemoryPubSub) endLocked(sub *memorySubscription, cause error) {
	subs, ok := m.subs[sub.channel]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}

	delete(subs, sub)
	if len(subs) == 0 {
		delete(m.subs, sub.channel)
	}

	sub.mu.Lock()
	sub.err = cause
	sub.mu.Unlock()
	close(sub.events)
}

type memorySubscription struct {
	bus     *MemoryPubSub
	channel string
	events  chan *Event

	mu  sync.Mutex
	err error
}

func (s *memorySubscription) Channel() string { return s.channel }

func (s *memorySubscription) Events() <-chan *Event { return s.events }

func (s *memorySubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *memorySubscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.bus.endLocked(s, nil)
	return nil
}

// Package feed keeps change-feed subscriptions alive and reduces the
// transport's connection life cycle to three states.
package feed

import (
	"context"
	"time"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/pubsub"
)

// DefaultReconnectDelay is the fixed wait between a drop and the next
// subscribe attempt.
const DefaultReconnectDelay = 3 * time.Second

// State is the connectivity of one handle.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// Transport is the change-feed collaborator.
type Transport = pubsub.Subscriber

// EventFunc receives normalized events.
type EventFunc func(Envelope)

// StateFunc receives every state the handle enters, starting with the
// initial connecting.
type StateFunc func(State)

// Client opens handles on one transport.
type Client struct {
	transport      Transport
	reconnectDelay time.Duration
	after          func(time.Duration) <-chan time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithReconnectDelay overrides DefaultReconnectDelay.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// WithAfter replaces time.After for the reconnect wait.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(c *Client) { c.after = after }
}

// NewClient creates a change-feed client.
func NewClient(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport:      transport,
		reconnectDelay: DefaultReconnectDelay,
		after:          time.After,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open registers interest in topic and returns at once, in the connecting
// state. The subscription and its reconnect loop run in their own
// goroutine until the handle is closed or ctx ends. Callbacks run on that
// goroutine; either may be nil.
func (c *Client) Open(ctx context.Context, topic Topic, onEvent EventFunc, onState StateFunc) *Handle {
	runCtx, cancel := context.WithCancel(ctx)

	l := log.Ctx(ctx)
	h := &Handle{
		client:  c,
		topic:   topic,
		onEvent: onEvent,
		onState: onState,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  l.With().Str(log.FieldTopic, topic.Channel()).Logger(),
	}
	h.state.Store(StateConnecting)

	go h.run(runCtx)
	return h
}

// Close releases the handle. Same as h.Close.
func (c *Client) Close(h *Handle) {
	if h != nil {
		h.Close()
	}
}

// ReconnectDelay returns the configured backoff.
func (c *Client) ReconnectDelay() time.Duration {
	return c.reconnectDelay
}

package feed

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/pubsub"
)

// Handle is one owned change-feed registration.
type Handle struct {
	client  *Client
	topic   Topic
	onEvent EventFunc
	onState StateFunc
	logger  zerolog.Logger

	state   atomic.Value // State
	retries atomic.Int64

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Topic returns the topic the handle was opened on.
func (h *Handle) Topic() Topic {
	return h.topic
}

// State returns the current connectivity.
func (h *Handle) State() State {
	return h.state.Load().(State)
}

// RetryCount returns how many resubscribe attempts followed the first one.
func (h *Handle) RetryCount() int {
	return int(h.retries.Load())
}

// Done is closed once the handle's goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Close stops the subscription and waits for its goroutine, so no
// callback runs after Close returns. It must not be called from the
// handle's own callbacks. Idempotent.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.cancel()
	})
	<-h.done
}

func (h *Handle) run(ctx context.Context) {
	defer close(h.done)

	channel := h.topic.Channel()
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			h.retries.Add(1)
		}
		h.setState(ctx, StateConnecting)

		sub, err := h.client.transport.Subscribe(ctx, channel)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.Warn().Err(err).Int(log.FieldRetry, attempt).Msg("change feed subscribe failed")
		} else {
			h.setState(ctx, StateConnected)
			h.consume(ctx, sub)
			sub.Close()
			if ctx.Err() != nil {
				return
			}
			h.logger.Warn().Err(sub.Err()).Msg("change feed dropped")
		}

		h.setState(ctx, StateDisconnected)

		select {
		case <-ctx.Done():
			return
		case <-h.client.after(h.client.reconnectDelay):
		}
	}
}

// consume delivers events until the stream ends or ctx is done.
func (h *Handle) consume(ctx context.Context, sub pubsub.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			env, err := Decode(h.topic, ev)
			if err != nil {
				h.logger.Warn().Err(err).Str("event_type", ev.Type).Msg("dropping malformed change event")
				continue
			}
			if h.onEvent != nil && ctx.Err() == nil {
				h.onEvent(env)
			}
		}
	}
}

func (h *Handle) setState(ctx context.Context, s State) {
	h.state.Store(s)
	h.logger.Debug().Str(log.FieldFeedState, string(s)).Msg("change feed state")
	if h.onState != nil && ctx.Err() == nil {
		h.onState(s)
	}
}

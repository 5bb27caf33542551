package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
)

// RedisPubSub implements PubSub interface using Redis Pub/Sub.
type RedisPubSub struct {
	client *redis.Client
	buffer int

	mu     sync.Mutex
	subs   map[*pumpedSubscription]struct{}
	closed bool
}

// NewRedisPubSub creates a new Redis-based PubSub instance.
func NewRedisPubSub(cfg RedisConfig, buffer int) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisPubSubFromClient(client, buffer), nil
}

// NewRedisPubSubFromClient wraps an existing client. The PubSub takes
// ownership and closes the client on Close.
func NewRedisPubSubFromClient(client *redis.Client, buffer int) *RedisPubSub {
	if buffer <= 0 {
		buffer = 256
	}
	return &RedisPubSub{
		client: client,
		buffer: buffer,
		subs:   make(map[*pumpedSubscription]struct{}),
	}
}

// Publish publishes an event to the specified channel.
func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe subscribes to a channel and waits for Redis to confirm it.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.mu.Unlock()

	ps := r.client.Subscribe(ctx, channel)

	// The first reply is the subscription confirmation.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	var sub *pumpedSubscription
	sub = newPumpedSubscription(channel, r.buffer, cancel, func() error {
		r.forget(sub)
		return ps.Close()
	})

	r.mu.Lock()
	r.subs[sub] = struct{}{}
	r.mu.Unlock()

	go r.pump(subCtx, ps, sub)

	return sub, nil
}

// Close closes all subscriptions and the Redis client.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	r.closed = true
	subs := make([]*pumpedSubscription, 0, len(r.subs))
	for s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}

	return r.client.Close()
}

// GetClient returns the underlying Redis client for advanced operations.
func (r *RedisPubSub) GetClient() *redis.Client {
	return r.client
}

func (r *RedisPubSub) forget(sub *pumpedSubscription) {
	r.mu.Lock()
	delete(r.subs, sub)
	r.mu.Unlock()
}

// pump reads from the Redis connection until it fails or the subscription
// is closed. go-redis would silently reconnect on the next Receive; ending
// the stream instead lets the owner observe the outage and resubscribe.
func (r *RedisPubSub) pump(ctx context.Context, ps *redis.PubSub, sub *pumpedSubscription) {
	var cause error
	defer func() { sub.finish(cause) }()

	l := log.L()
	for {
		msg, err := ps.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return
			}
			cause = fmt.Errorf("%w: %v", ErrDisconnected, err)
			return
		}

		m, ok := msg.(*redis.Message)
		if !ok {
			// Subscription confirmations and pongs.
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
			l.Warn().Err(err).Str(log.FieldTopic, m.Channel).Msg("redis pubsub: invalid event payload")
			continue
		}

		if !sub.deliver(ctx, &event) {
			return
		}
	}
}

package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisPubSub(t *testing.T) (*RedisPubSub, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	ps := NewRedisPubSubFromClient(client, 8)
	t.Cleanup(func() { ps.Close() })
	return ps, mr
}

func TestRedisPubSub_PublishSubscribe(t *testing.T) {
	ps, _ := newTestRedisPubSub(t)
	ctx := context.Background()
	ch := ConversationMessagesChannel("c1")

	sub, err := ps.Subscribe(ctx, ch)
	require.NoError(t, err)
	defer sub.Close()
	assert.Equal(t, ch, sub.Channel())

	ev, err := NewEvent(EventInsert, ch, map[string]string{"id": "m1"})
	require.NoError(t, err)
	require.NoError(t, ps.Publish(ctx, ch, ev))

	got := receive(t, sub)
	assert.Equal(t, EventInsert, got.Type)
	assert.Equal(t, ch, got.Topic)
}

func TestRedisPubSub_TwoSubscriptionsSameChannel(t *testing.T) {
	ps, _ := newTestRedisPubSub(t)
	ctx := context.Background()
	ch := UserConversationsChannel("u1")

	first, err := ps.Subscribe(ctx, ch)
	require.NoError(t, err)
	second, err := ps.Subscribe(ctx, ch)
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.Close())
	_, open := <-first.Events()
	assert.False(t, open)
	assert.NoError(t, first.Err())

	ev, _ := NewEvent(EventUpdate, ch, nil)
	require.NoError(t, ps.Publish(ctx, ch, ev))
	assert.Equal(t, EventUpdate, receive(t, second).Type)
}

func TestRedisPubSub_ServerLossEndsStream(t *testing.T) {
	ps, mr := newTestRedisPubSub(t)

	sub, err := ps.Subscribe(context.Background(), ConversationMessagesChannel("c1"))
	require.NoError(t, err)
	defer sub.Close()

	mr.Close()

	select {
	case _, open := <-sub.Events():
		assert.False(t, open)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after server loss")
	}
	assert.ErrorIs(t, sub.Err(), ErrDisconnected)
}

func TestRedisPubSub_SubscribeAfterClose(t *testing.T) {
	ps, _ := newTestRedisPubSub(t)
	require.NoError(t, ps.Close())

	_, err := ps.Subscribe(context.Background(), "chat:user:u1:conversations")
	assert.ErrorIs(t, err, ErrClosed)
}

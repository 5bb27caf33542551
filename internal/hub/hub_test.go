package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/config"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/feed"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/pubsub"
)

func newClient(h *Hub, id, userID string) *Client {
	return NewClient(id, userID, h, nil, config.WebSocketConfig{SendBuffer: 4})
}

func TestHub_RegisterUnregister(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub()
	go h.Run(ctx)

	a1 := newClient(h, "c1", "ana")
	a2 := newClient(h, "c2", "ana")
	b1 := newClient(h, "c3", "bruno")
	h.Register(a1)
	h.Register(a2)
	h.Register(b1)

	require.Eventually(t, func() bool { return h.ClientCount() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, h.UserClientCount("ana"))

	h.Unregister(a1)
	h.Unregister(a1)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.UserClientCount("ana"))

	_, open := <-a1.Send
	assert.False(t, open, "send channel closed on unregister")
}

func TestClient_ShutdownReleasesHandles(t *testing.T) {
	bus := pubsub.NewMemoryPubSub(8)
	defer bus.Close()
	fc := feed.NewClient(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub()
	go h.Run(ctx)

	c := newClient(h, "c1", "ana")
	h.Register(c)

	topic := feed.MessagesTopic("conv-1")
	handle := fc.Open(context.Background(), topic, nil, nil)
	require.True(t, c.Track(topic, handle))
	assert.False(t, c.Track(topic, handle), "one handle per topic")
	assert.True(t, c.Subscribed(topic))
	require.Eventually(t, func() bool { return handle.State() == feed.StateConnected }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, bus.SubscriberCount(topic.Channel()))

	// Run returning shuts every client down.
	cancel()
	require.Eventually(t, func() bool { return c.HandleCount() == 0 && bus.SubscriberCount(topic.Channel()) == 0 }, time.Second, 5*time.Millisecond)

	other := fc.Open(context.Background(), feed.MessagesTopic("conv-2"), nil, nil)
	defer other.Close()
	assert.False(t, c.Track(feed.MessagesTopic("conv-2"), other), "closed client refuses handles")
	assert.NoError(t, c.SendMessage(map[string]string{"type": "pong"}))

	// Registration after Run returned shuts the client down at once.
	late := newClient(h, "c2", "bruno")
	h.Register(late)
	_, open := <-late.Send
	assert.False(t, open)
}

func TestClient_SendMessageDropsWhenFull(t *testing.T) {
	c := newClient(NewHub(), "c1", "ana")
	for i := 0; i < 10; i++ {
		require.NoError(t, c.SendMessage(map[string]int{"n": i}))
	}
	assert.Len(t, c.Send, 4)

	topic := feed.MessagesTopic("conv-1")
	assert.Nil(t, c.Untrack(topic))
}

package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/config"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/feed"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
)

// Client is one authenticated WebSocket connection. It owns the feed
// handles opened on its behalf; they are closed when it unregisters.
type Client struct {
	ID     string
	UserID string
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	config config.WebSocketConfig

	mu      sync.Mutex
	handles map[feed.Topic]*feed.Handle
	closed  bool
}

func NewClient(id, userID string, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		ID:      id,
		UserID:  userID,
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, buffer),
		config:  cfg,
		handles: make(map[feed.Topic]*feed.Handle),
	}
}

func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	if c.config.MaxMessageSize > 0 {
		c.Conn.SetReadLimit(c.config.MaxMessageSize)
	}
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Warn().Err(err).Str("client_id", c.ID).Msg("websocket read error")
			}
			break
		}

		handler(c, message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues message for the write pump. A full buffer or a
// closed client drops it.
func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}

	select {
	case c.Send <- data:
	default:
		l := log.L()
		l.Warn().Str("client_id", c.ID).Str(log.FieldUserID, c.UserID).Msg("websocket send buffer full, dropping message")
	}
	return nil
}

// Subscribed reports whether the client holds a handle on topic.
func (c *Client) Subscribed(topic feed.Topic) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handles[topic]
	return ok
}

// Track hands h to the client. It returns false, and the caller keeps
// ownership, if the client is closed or already subscribed to topic.
func (c *Client) Track(topic feed.Topic, h *feed.Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if _, ok := c.handles[topic]; ok {
		return false
	}
	c.handles[topic] = h
	return true
}

// Untrack removes and returns the handle on topic, nil if none.
func (c *Client) Untrack(topic feed.Topic) *feed.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.handles[topic]
	delete(c.handles, topic)
	return h
}

// HandleCount returns the number of open feed handles.
func (c *Client) HandleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// shutdown closes every handle, then the send channel. Idempotent.
func (c *Client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	handles := c.handles
	c.handles = make(map[feed.Topic]*feed.Handle)
	c.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
	close(c.Send)
}

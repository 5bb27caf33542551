package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/config"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/feed"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/hub"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/service"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler relays change-feed topics over WebSocket. Every subscription
// is a feed handle owned by the connection.
type WSHandler struct {
	ctx            context.Context
	hub            *hub.Hub
	chatService    service.ChatService
	feed           *feed.Client
	authMiddleware *middleware.AuthMiddleware
	wsCfg          config.WebSocketConfig
}

// NewWSHandler creates the handler. Handles opened by it live at most as
// long as ctx.
func NewWSHandler(ctx context.Context, h *hub.Hub, chatService service.ChatService, feedClient *feed.Client, authMiddleware *middleware.AuthMiddleware, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		ctx:            ctx,
		hub:            h,
		chatService:    chatService,
		feed:           feedClient,
		authMiddleware: authMiddleware,
		wsCfg:          wsCfg,
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/v1/ws", h.authMiddleware.RequireAuth(), h.HandleWebSocket)
}

func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	userID := middleware.GetUserID(c)
	l := log.Ctx(c.Request.Context())

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), userID, h.hub, conn, h.wsCfg)

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	ctx := log.WithUser(h.ctx, client.UserID)

	switch base.Type {
	case domain.MsgTypeSubscribe:
		var msg domain.SubscribeMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid subscribe message"))
			return
		}
		h.subscribe(ctx, client, msg)

	case domain.MsgTypeUnsubscribe:
		var msg domain.SubscribeMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid unsubscribe message"))
			return
		}
		h.unsubscribe(client, msg)

	case domain.MsgTypePing:
		client.SendMessage(map[string]string{"type": domain.MsgTypePong})

	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Unknown message type"))
	}
}

func (h *WSHandler) subscribe(ctx context.Context, client *hub.Client, msg domain.SubscribeMessage) {
	topic, ok := h.authorize(ctx, client, msg)
	if !ok {
		return
	}

	if !client.Subscribed(topic) {
		handle := h.feed.Open(ctx, topic,
			func(env feed.Envelope) {
				client.SendMessage(eventMessage(env))
			},
			func(s feed.State) {
				client.SendMessage(&domain.StateMessage{
					Type:  domain.MsgTypeState,
					Topic: string(topic.Kind),
					ID:    topic.ID,
					State: string(s),
				})
			},
		)
		if !client.Track(topic, handle) {
			handle.Close()
			return
		}
	}

	client.SendMessage(&domain.SubscriptionMessage{
		Type:  domain.MsgTypeSubscribed,
		Topic: string(topic.Kind),
		ID:    topic.ID,
	})
}

func (h *WSHandler) unsubscribe(client *hub.Client, msg domain.SubscribeMessage) {
	topic, ok := parseTopic(client, msg)
	if !ok {
		return
	}

	if handle := client.Untrack(topic); handle != nil {
		handle.Close()
	}

	client.SendMessage(&domain.SubscriptionMessage{
		Type:  domain.MsgTypeUnsubscribed,
		Topic: string(topic.Kind),
		ID:    topic.ID,
	})
}

// authorize resolves the requested topic and checks the client may read
// it: its own conversation list, or a conversation it takes part in.
func (h *WSHandler) authorize(ctx context.Context, client *hub.Client, msg domain.SubscribeMessage) (feed.Topic, bool) {
	topic, ok := parseTopic(client, msg)
	if !ok {
		return topic, false
	}

	switch topic.Kind {
	case feed.TopicConversations:
		if topic.ID != client.UserID {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeForbidden, "cannot subscribe to another user's conversations"))
			return topic, false
		}
	case feed.TopicMessages:
		if _, err := h.chatService.GetConversation(ctx, topic.ID, client.UserID); err != nil {
			client.SendMessage(wsError(ctx, err))
			return topic, false
		}
	}
	return topic, true
}

func parseTopic(client *hub.Client, msg domain.SubscribeMessage) (feed.Topic, bool) {
	switch feed.TopicKind(msg.Topic) {
	case feed.TopicConversations:
		id := msg.ID
		if id == "" {
			id = client.UserID
		}
		return feed.ConversationsTopic(id), true
	case feed.TopicMessages:
		if msg.ID == "" {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "id is required"))
			return feed.Topic{}, false
		}
		return feed.MessagesTopic(msg.ID), true
	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "unknown topic"))
		return feed.Topic{}, false
	}
}

func eventMessage(env feed.Envelope) *domain.EventMessage {
	var record interface{}
	if env.Message != nil {
		record = env.Message
	} else {
		record = env.Conversation
	}
	return &domain.EventMessage{
		Type:  domain.MsgTypeEvent,
		Topic: string(env.Topic.Kind),
		ID:    env.Topic.ID,
		Event: domain.EventBody{Kind: string(env.Kind), Record: record},
	}
}

func wsError(ctx context.Context, err error) *domain.ErrorMessage {
	switch {
	case errors.Is(err, domain.ErrNotParticipant):
		return domain.NewErrorMessage(domain.ErrCodeForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return domain.NewErrorMessage(domain.ErrCodeNotFound, "conversation not found")
	default:
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("websocket subscribe failed")
		return domain.NewErrorMessage(domain.ErrCodeInternalError, "subscribe failed")
	}
}

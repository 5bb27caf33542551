// Package session owns one user's live chat state: the conversation list
// projection, the open conversation views and every subscription and
// timer behind them. Closing the session releases all of it.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/feed"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/inbox"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/messagestore"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/outbound"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
)

// DefaultStatusPollInterval is how often views re-check their handle.
const DefaultStatusPollInterval = 5 * time.Second

var ErrClosed = errors.New("session closed")

// Storage is the storage collaborator as the session uses it.
type Storage interface {
	outbound.Storage
	inbox.Source
	CreateConversation(ctx context.Context, userA, userB string) (*domain.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
}

// Deps wires a session. Storage and Feed are required; the callbacks are
// re-render hooks and may be nil.
type Deps struct {
	Storage            Storage
	Feed               *feed.Client
	RefreshRate        int
	StatusPollInterval time.Duration

	OnMessages      func(conversationID string, msgs []domain.Message)
	OnConversations func(convs []domain.Conversation, err error)
	OnConnectivity  func(topic feed.Topic, state feed.State)
	OnSendState     outbound.StateFunc
}

// Session is safe for concurrent use.
type Session struct {
	userID      string
	deps        Deps
	storage     Storage
	projector   *inbox.Projector
	coordinator *outbound.Coordinator

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	views      map[string]*View
	userHandle *feed.Handle
	closed     bool
}

// New creates a session for userID. Call Start to go live.
func New(ctx context.Context, userID string, deps Deps) *Session {
	if deps.StatusPollInterval == 0 {
		deps.StatusPollInterval = DefaultStatusPollInterval
	}

	ctx = log.WithUser(ctx, userID)
	ctx, cancel := context.WithCancel(ctx)

	s := &Session{
		userID:  userID,
		deps:    deps,
		storage: deps.Storage,
		ctx:     ctx,
		cancel:  cancel,
		views:   make(map[string]*View),
	}

	s.projector = inbox.New(deps.Storage,
		inbox.WithRefreshRate(deps.RefreshRate),
		inbox.WithOnChange(deps.OnConversations),
	)
	s.coordinator = outbound.New(deps.Storage, s.resolveStore,
		outbound.WithStateFunc(deps.OnSendState),
	)
	return s
}

// UserID returns the session's user.
func (s *Session) UserID() string {
	return s.userID
}

// Projector returns the conversation list projection.
func (s *Session) Projector() *inbox.Projector {
	return s.projector
}

// Coordinator returns the send coordinator.
func (s *Session) Coordinator() *outbound.Coordinator {
	return s.coordinator
}

// Start subscribes to the user's conversations topic and loads the list.
// A failed load leaves the session running with an empty list.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.userHandle == nil {
		topic := feed.ConversationsTopic(s.userID)
		s.userHandle = s.deps.Feed.Open(s.ctx, topic,
			func(env feed.Envelope) { s.projector.HandleEvent(s.ctx, env) },
			func(st feed.State) {
				if st == feed.StateConnected {
					// Changes made while unsubscribed have no event.
					s.projector.Refresh(s.ctx, s.userID)
				}
				if fn := s.deps.OnConnectivity; fn != nil {
					fn(topic, st)
				}
			},
		)
	}
	s.mu.Unlock()

	_, err := s.projector.Refresh(ctx, s.userID)
	return err
}

// UserFeedState returns the connectivity of the conversations topic.
func (s *Session) UserFeedState() feed.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userHandle == nil {
		return feed.StateDisconnected
	}
	return s.userHandle.State()
}

// OpenConversation loads a conversation into a new view, or returns the
// view already open for it.
func (s *Session) OpenConversation(ctx context.Context, conversationID string) (*View, error) {
	if v := s.View(conversationID); v != nil {
		return v, nil
	}
	l := log.Ctx(s.ctx)

	msgs, err := s.storage.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, domain.Transport("list messages", err)
	}

	v := &View{
		conversationID: conversationID,
		session:        s,
		stopPoll:       make(chan struct{}),
		pollDone:       make(chan struct{}),
	}
	v.ctx, v.cancel = context.WithCancel(s.ctx)
	v.store = messagestore.New(conversationID, messagestore.WithOnChange(func(snap []domain.Message) {
		if fn := s.deps.OnMessages; fn != nil {
			fn(conversationID, snap)
		}
	}))
	v.store.Load(msgs)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		v.cancel()
		v.store.Close()
		return nil, ErrClosed
	}
	if existing, ok := s.views[conversationID]; ok {
		s.mu.Unlock()
		v.cancel()
		v.store.Close()
		return existing, nil
	}
	s.views[conversationID] = v
	v.handle = s.deps.Feed.Open(v.ctx, feed.MessagesTopic(conversationID),
		func(env feed.Envelope) { v.handleEvent(v.ctx, env) },
		v.onState,
	)
	v.startPolling(s.deps.StatusPollInterval)
	s.mu.Unlock()

	if unread := v.store.UnreadCount(s.userID); unread > 0 {
		if err := s.storage.MarkRead(ctx, conversationID, s.userID); err != nil {
			l.Warn().Err(err).Str(log.FieldConversationID, conversationID).Msg("mark read on open failed")
		} else {
			v.store.MarkAllRead(s.userID)
		}
	}

	l.Debug().Str(log.FieldConversationID, conversationID).Int("messages", len(msgs)).Msg("conversation opened")
	return v, nil
}

// StartConversation opens the conversation with otherUserID, creating
// it if needed.
func (s *Session) StartConversation(ctx context.Context, otherUserID string) (*View, error) {
	conv, err := s.storage.CreateConversation(ctx, s.userID, otherUserID)
	if err != nil {
		return nil, domain.Transport("create conversation", err)
	}
	return s.OpenConversation(ctx, conv.ID)
}

// View returns the open view of a conversation, nil if none.
func (s *Session) View(conversationID string) *View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views[conversationID]
}

// Send sends content to a conversation as the session's user.
func (s *Session) Send(ctx context.Context, conversationID, content string) (*domain.Message, error) {
	return s.coordinator.Send(log.WithUser(ctx, s.userID), conversationID, s.userID, content)
}

// CloseConversation tears down the view of a conversation.
func (s *Session) CloseConversation(conversationID string) {
	s.mu.Lock()
	v, ok := s.views[conversationID]
	delete(s.views, conversationID)
	s.mu.Unlock()

	if ok {
		v.close()
	}
}

// Close tears down every view and the conversations subscription.
// Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	views := s.views
	s.views = make(map[string]*View)
	userHandle := s.userHandle
	s.mu.Unlock()

	// Unblocks storage calls running inside feed callbacks.
	s.cancel()

	for _, v := range views {
		v.close()
	}
	if userHandle != nil {
		userHandle.Close()
	}
}

func (s *Session) resolveStore(conversationID string) *messagestore.Store {
	if v := s.View(conversationID); v != nil {
		return v.store
	}
	return nil
}

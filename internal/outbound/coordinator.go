// Package outbound runs the send-message state machine: optimistic
// insert, storage call, then reconcile or roll back.
package outbound

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/messagestore"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
)

// SendState is the per-conversation send state.
type SendState string

const (
	StateIdle    SendState = "idle"
	StateSending SendState = "sending"
	StateSent    SendState = "sent"
	StateError   SendState = "error"
)

// Storage is the part of the storage collaborator the coordinator calls.
type Storage interface {
	CreateMessage(ctx context.Context, input domain.CreateMessageInput) (*domain.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string) error
}

// StoreResolver returns the open store of a conversation, or nil when no
// view is open.
type StoreResolver func(conversationID string) *messagestore.Store

// StateFunc observes send state changes.
type StateFunc func(conversationID string, state SendState)

// SendError is returned when storage rejected or failed a send. Content
// is the text the user typed, for restoring the compose field.
type SendError struct {
	ConversationID string
	Content        string
	Err            error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s failed: %v", e.ConversationID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Coordinator is safe for concurrent use.
type Coordinator struct {
	storage Storage
	resolve StoreResolver
	onState StateFunc
	newID   func() (string, error)
	now     func() time.Time

	mu     sync.Mutex
	states map[string]SendState
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStateFunc registers a state observer.
func WithStateFunc(fn StateFunc) Option {
	return func(c *Coordinator) { c.onState = fn }
}

// WithIDGenerator replaces NewProvisionalID.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(c *Coordinator) { c.newID = fn }
}

// WithClock replaces time.Now for provisional timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a coordinator. resolve may be nil when no view keeps a
// store.
func New(storage Storage, resolve StoreResolver, opts ...Option) *Coordinator {
	c := &Coordinator{
		storage: storage,
		resolve: resolve,
		newID:   NewProvisionalID,
		now:     func() time.Time { return time.Now().UTC() },
		states:  make(map[string]SendState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send validates content, inserts a pending message, persists it and
// reconciles the store with the confirmed record. On a storage failure
// the pending message is removed and a *SendError is returned. There is
// no automatic retry.
func (c *Coordinator) Send(ctx context.Context, conversationID, senderID, content string) (*domain.Message, error) {
	l := log.Ctx(ctx)

	if err := domain.ValidateContent(content); err != nil {
		return nil, err
	}
	if err := c.begin(conversationID); err != nil {
		return nil, err
	}

	provisionalID, err := c.newID()
	if err != nil {
		c.setState(conversationID, StateError)
		return nil, &SendError{ConversationID: conversationID, Content: content, Err: err}
	}

	store := c.store(conversationID)
	if store != nil {
		store.Append(domain.Message{
			ID:             provisionalID,
			ConversationID: conversationID,
			SenderID:       senderID,
			Content:        content,
			CreatedAt:      c.now(),
			DeliveryState:  domain.DeliveryPending,
		})
	}

	confirmed, err := c.storage.CreateMessage(ctx, domain.CreateMessageInput{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		ClientRef:      provisionalID,
	})
	if err != nil {
		if store != nil {
			store.Remove(provisionalID)
		}
		c.setState(conversationID, StateError)
		l.Warn().Err(err).
			Str(log.FieldConversationID, conversationID).
			Str(log.FieldProvisionalID, provisionalID).
			Msg("send failed, rolled back")
		return nil, &SendError{
			ConversationID: conversationID,
			Content:        content,
			Err:            domain.Transport("create message", err),
		}
	}

	if store != nil {
		store.ReplaceProvisional(provisionalID, *confirmed)
	}
	c.setState(conversationID, StateSent)

	// Reset the sender's unread counter for this conversation.
	if err := c.storage.MarkRead(ctx, conversationID, senderID); err != nil {
		l.Warn().Err(err).Str(log.FieldConversationID, conversationID).Msg("mark read after send failed")
	}
	if store != nil {
		store.MarkAllRead(senderID)
	}

	return confirmed, nil
}

// State returns the send state of a conversation.
func (c *Coordinator) State(conversationID string) SendState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.states[conversationID]; ok {
		return s
	}
	return StateIdle
}

// Reset returns a conversation to idle unless a send is in flight.
func (c *Coordinator) Reset(conversationID string) {
	c.mu.Lock()
	if c.states[conversationID] == StateSending {
		c.mu.Unlock()
		return
	}
	delete(c.states, conversationID)
	c.mu.Unlock()

	if c.onState != nil {
		c.onState(conversationID, StateIdle)
	}
}

func (c *Coordinator) begin(conversationID string) error {
	c.mu.Lock()
	if c.states[conversationID] == StateSending {
		c.mu.Unlock()
		return domain.ErrSendInProgress
	}
	c.states[conversationID] = StateSending
	c.mu.Unlock()

	if c.onState != nil {
		c.onState(conversationID, StateSending)
	}
	return nil
}

func (c *Coordinator) setState(conversationID string, s SendState) {
	c.mu.Lock()
	c.states[conversationID] = s
	c.mu.Unlock()

	if c.onState != nil {
		c.onState(conversationID, s)
	}
}

// store returns the view's store, nil once the view is gone.
func (c *Coordinator) store(conversationID string) *messagestore.Store {
	if c.resolve == nil {
		return nil
	}
	s := c.resolve(conversationID)
	if s == nil || s.Closed() {
		return nil
	}
	return s
}

package outbound

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/messagestore"
)

var sentAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeStorage struct {
	mu          sync.Mutex
	creates     []domain.CreateMessageInput
	markReads   int
	createErr   error
	markReadErr error
	nextID      string

	// entered receives once CreateMessage starts; release unblocks it.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeStorage) CreateMessage(ctx context.Context, input domain.CreateMessageInput) (*domain.Message, error) {
	f.mu.Lock()
	f.creates = append(f.creates, input)
	entered, release := f.entered, f.release
	err, id := f.createErr, f.nextID
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = "m-42"
	}
	return &domain.Message{
		ID:             id,
		ConversationID: input.ConversationID,
		SenderID:       input.SenderID,
		Content:        input.Content,
		CreatedAt:      sentAt,
		DeliveryState:  domain.DeliveryConfirmed,
		ClientRef:      input.ClientRef,
	}, nil
}

func (f *fakeStorage) MarkRead(ctx context.Context, conversationID, readerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReads++
	return f.markReadErr
}

func (f *fakeStorage) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates)
}

func newCoordinator(storage Storage, store *messagestore.Store, opts ...Option) *Coordinator {
	return New(storage, func(id string) *messagestore.Store {
		if store != nil && id == store.ConversationID() {
			return store
		}
		return nil
	}, opts...)
}

func TestSend_ValidationBoundary(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"empty", "", true},
		{"single space", " ", true},
		{"whitespace", "\n\t ", true},
		{"one char", "a", false},
		{"1000 chars", strings.Repeat("a", 1000), false},
		{"1000 multibyte runes", strings.Repeat("ñ", 1000), false},
		{"1001 chars", strings.Repeat("a", 1001), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := &fakeStorage{}
			store := messagestore.New("C123")
			c := newCoordinator(storage, store)

			_, err := c.Send(context.Background(), "C123", "A", tt.content)
			if tt.wantErr {
				var verr *domain.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, 0, storage.createCount(), "no storage call on invalid input")
				assert.Equal(t, 0, store.Len())
				assert.Equal(t, StateIdle, c.State("C123"))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StateSent, c.State("C123"))
		})
	}
}

func TestSend_ScenarioHola(t *testing.T) {
	storage := &fakeStorage{entered: make(chan struct{}), release: make(chan struct{})}
	store := messagestore.New("C123")
	c := newCoordinator(storage, store)

	var (
		msg *domain.Message
		err error
	)
	done := make(chan struct{})
	go func() {
		msg, err = c.Send(context.Background(), "C123", "A", "Hola")
		close(done)
	}()

	<-storage.entered
	pending := store.All()
	require.Len(t, pending, 1)
	assert.Equal(t, "Hola", pending[0].Content)
	assert.Equal(t, domain.DeliveryPending, pending[0].DeliveryState)
	assert.True(t, IsProvisionalID(pending[0].ID))
	assert.Equal(t, StateSending, c.State("C123"))

	close(storage.release)
	<-done

	require.NoError(t, err)
	assert.Equal(t, "m-42", msg.ID)
	all := store.All()
	require.Len(t, all, 1)
	assert.Equal(t, "m-42", all[0].ID)
	assert.Equal(t, "Hola", all[0].Content)
	assert.Equal(t, domain.DeliveryConfirmed, all[0].DeliveryState)
	assert.Equal(t, pending[0].ID, storage.creates[0].ClientRef)
	assert.Equal(t, 1, storage.markReads)
}

func TestSend_RejectsWhileSending(t *testing.T) {
	storage := &fakeStorage{entered: make(chan struct{}), release: make(chan struct{})}
	store := messagestore.New("C123")
	c := newCoordinator(storage, store)

	done := make(chan error)
	go func() {
		_, err := c.Send(context.Background(), "C123", "A", "first")
		done <- err
	}()
	<-storage.entered

	_, err := c.Send(context.Background(), "C123", "A", "second")
	assert.ErrorIs(t, err, domain.ErrSendInProgress)
	assert.Equal(t, 1, store.Len())

	close(storage.release)
	require.NoError(t, <-done)

	// Resolved: sending is possible again.
	storage.mu.Lock()
	storage.entered, storage.release = nil, nil
	storage.nextID = "m-43"
	storage.mu.Unlock()
	_, err = c.Send(context.Background(), "C123", "A", "second")
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())
}

func TestSend_FailureRollsBack(t *testing.T) {
	storage := &fakeStorage{createErr: errors.New("connection reset")}
	store := messagestore.New("C123")
	store.Append(domain.Message{ID: "m-1", SenderID: "B", Content: "hi", CreatedAt: sentAt.Add(-time.Minute), DeliveryState: domain.DeliveryConfirmed})

	var states []SendState
	c := newCoordinator(storage, store, WithStateFunc(func(_ string, s SendState) {
		states = append(states, s)
	}))

	msg, err := c.Send(context.Background(), "C123", "A", "¿Sigue disponible?")
	assert.Nil(t, msg)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, "¿Sigue disponible?", sendErr.Content)
	assert.ErrorIs(t, err, domain.ErrTransport)

	require.Equal(t, 1, store.Len())
	assert.Equal(t, "m-1", store.All()[0].ID)
	assert.Equal(t, StateError, c.State("C123"))
	assert.Equal(t, []SendState{StateSending, StateError}, states)
	assert.Equal(t, 0, storage.markReads)

	c.Reset("C123")
	assert.Equal(t, StateIdle, c.State("C123"))
}

func TestSend_MarkReadFailureIsNotFatal(t *testing.T) {
	storage := &fakeStorage{markReadErr: errors.New("timeout")}
	store := messagestore.New("C123")
	store.Append(domain.Message{ID: "m-1", SenderID: "B", Content: "hi", CreatedAt: sentAt.Add(-time.Minute), DeliveryState: domain.DeliveryConfirmed})
	c := newCoordinator(storage, store)

	_, err := c.Send(context.Background(), "C123", "A", "ok")
	require.NoError(t, err)
	assert.Equal(t, StateSent, c.State("C123"))

	// The local counter still resets.
	assert.Equal(t, 0, store.UnreadCount("A"))
}

func TestSend_FeedDeliversConfirmedFirst(t *testing.T) {
	storage := &fakeStorage{entered: make(chan struct{}), release: make(chan struct{})}
	store := messagestore.New("C123")
	c := newCoordinator(storage, store)

	done := make(chan error)
	go func() {
		_, err := c.Send(context.Background(), "C123", "A", "Hola")
		done <- err
	}()
	<-storage.entered

	provisionalID := store.All()[0].ID
	store.Append(domain.Message{
		ID: "m-42", ConversationID: "C123", SenderID: "A", Content: "Hola",
		CreatedAt: sentAt, DeliveryState: domain.DeliveryConfirmed, ClientRef: provisionalID,
	})

	close(storage.release)
	require.NoError(t, <-done)

	all := store.All()
	require.Len(t, all, 1)
	assert.Equal(t, "m-42", all[0].ID)
}

func TestSend_ViewTornDown(t *testing.T) {
	storage := &fakeStorage{entered: make(chan struct{}), release: make(chan struct{})}
	store := messagestore.New("C123")
	c := newCoordinator(storage, store)

	done := make(chan error)
	go func() {
		_, err := c.Send(context.Background(), "C123", "A", "Hola")
		done <- err
	}()
	<-storage.entered
	store.Close()
	close(storage.release)

	require.NoError(t, <-done)
	assert.Equal(t, 1, store.Len(), "closed store keeps its last state")
	assert.True(t, IsProvisionalID(store.All()[0].ID))
}

func TestSend_NoView(t *testing.T) {
	storage := &fakeStorage{}
	c := New(storage, nil)

	msg, err := c.Send(context.Background(), "C123", "A", "Hola")
	require.NoError(t, err)
	assert.Equal(t, "m-42", msg.ID)
}

func TestProvisionalIDs(t *testing.T) {
	id, err := NewProvisionalID()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "tmp-"))
	assert.True(t, IsProvisionalID(id))
	assert.False(t, IsProvisionalID("3f1c2b9e-0000-4000-8000-000000000000"))
	assert.False(t, IsProvisionalID("tmp-not-a-ulid"))

	ts, err := ProvisionalTime(id)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)

	other, err := NewProvisionalID()
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

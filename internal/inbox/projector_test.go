package inbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/feed"
)

type fakeSource struct {
	mu    sync.Mutex
	convs []domain.Conversation
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (f *fakeSource) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Conversation, len(f.convs))
	copy(out, f.convs)
	return out, nil
}

func (f *fakeSource) set(convs []domain.Conversation, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convs = convs
	f.err = err
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func str(s string) *string { return &s }

func conv(id string, last *time.Time, created time.Duration) domain.Conversation {
	return domain.Conversation{ID: id, LastMessageAt: last, CreatedAt: now.Add(created)}
}

func convIDs(convs []domain.Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}

func TestRefresh_SortsByRecencyNullsLast(t *testing.T) {
	src := &fakeSource{convs: []domain.Conversation{
		conv("hour", at(-time.Hour), -48*time.Hour),
		conv("minute", at(-time.Minute), -48*time.Hour),
		conv("never", nil, -time.Hour),
	}}
	p := New(src)

	convs, err := p.Refresh(context.Background(), "U")
	require.NoError(t, err)
	assert.Equal(t, []string{"minute", "hour", "never"}, convIDs(convs))
	assert.Equal(t, "U", p.UserID())
}

func TestSort_TiesByCreatedAtDesc(t *testing.T) {
	convs := []domain.Conversation{
		conv("old-null", nil, -3*time.Hour),
		conv("tie-old", at(-time.Minute), -2*time.Hour),
		conv("new-null", nil, -time.Hour),
		conv("tie-new", at(-time.Minute), -time.Hour),
	}
	Sort(convs)
	assert.Equal(t, []string{"tie-new", "tie-old", "new-null", "old-null"}, convIDs(convs))
}

func TestRefresh_ErrorEmptiesProjection(t *testing.T) {
	src := &fakeSource{convs: []domain.Conversation{conv("c1", nil, 0)}}
	p := New(src)

	_, err := p.Refresh(context.Background(), "U")
	require.NoError(t, err)
	require.Len(t, p.Conversations(), 1)

	src.set(nil, errors.New("connection refused"))
	convs, err := p.Refresh(context.Background(), "U")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.NotNil(t, convs)
	assert.Empty(t, convs)
	assert.Empty(t, p.Conversations())
	assert.ErrorIs(t, p.Err(), domain.ErrTransport)

	src.set([]domain.Conversation{conv("c1", nil, 0)}, nil)
	_, err = p.Refresh(context.Background(), "U")
	require.NoError(t, err)
	assert.NoError(t, p.Err())
}

func TestFilter(t *testing.T) {
	src := &fakeSource{convs: []domain.Conversation{
		{ID: "c1", Counterpart: &domain.UserSummary{DisplayName: "Bruno Díaz", Email: "bruno@example.com"}, LastMessagePreview: str("¿Sigue disponible la bici?"), LastMessageAt: at(-time.Minute)},
		{ID: "c2", Counterpart: &domain.UserSummary{DisplayName: "Carla", Email: "carla@shop.io"}, LastMessagePreview: str("Gracias"), LastMessageAt: at(-time.Hour)},
		{ID: "c3"},
	}}
	p := New(src)
	_, err := p.Refresh(context.Background(), "U")
	require.NoError(t, err)

	tests := []struct {
		term string
		want []string
	}{
		{"", []string{"c1", "c2", "c3"}},
		{"   ", []string{"c1", "c2", "c3"}},
		{"BRUNO", []string{"c1"}},
		{"shop.io", []string{"c2"}},
		{"BICI", []string{"c1"}},
		{"a", []string{"c1", "c2"}},
		{"zzz", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			assert.Equal(t, tt.want, convIDs(p.Filter(tt.term)))
		})
	}
}

func TestTotalUnread(t *testing.T) {
	src := &fakeSource{convs: []domain.Conversation{
		{ID: "c1", UnreadCount: 2},
		{ID: "c2", UnreadCount: 3},
	}}
	p := New(src)
	_, err := p.Refresh(context.Background(), "U")
	require.NoError(t, err)
	assert.Equal(t, 5, p.TotalUnread())
}

func TestHandleEvent_RefreshesOnConversationTopicOnly(t *testing.T) {
	src := &fakeSource{}
	var changes atomic.Int32
	p := New(src, WithOnChange(func([]domain.Conversation, error) { changes.Add(1) }))

	p.HandleEvent(context.Background(), feed.Envelope{
		Kind:  feed.KindInsert,
		Topic: feed.MessagesTopic("c1"),
	})
	assert.Equal(t, int32(0), src.calls.Load())

	src.set([]domain.Conversation{conv("c1", nil, 0)}, nil)
	p.HandleEvent(context.Background(), feed.Envelope{
		Kind:         feed.KindInsert,
		Topic:        feed.ConversationsTopic("U"),
		Conversation: &domain.Conversation{ID: "c1"},
	})
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, int32(1), changes.Load())
	assert.Equal(t, []string{"c1"}, convIDs(p.Conversations()))
}

func TestRefresh_CoalescesConcurrentCalls(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{}), convs: []domain.Conversation{conv("c1", nil, 0)}}
	p := New(src, WithRefreshRate(1000))

	const callers = 8
	var wg sync.WaitGroup
	refresh := func() {
		defer wg.Done()
		convs, err := p.Refresh(context.Background(), "U")
		assert.NoError(t, err)
		assert.Len(t, convs, 1)
	}

	wg.Add(1)
	go refresh()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	// These arrive while the first load is blocked.
	wg.Add(callers - 1)
	for i := 1; i < callers; i++ {
		go refresh()
	}
	time.Sleep(50 * time.Millisecond)

	close(src.gate)
	wg.Wait()

	// One load for the first caller, one shared by everyone who came later.
	assert.Equal(t, int32(2), src.calls.Load())
}

// stepSource answers each call only when the test sends on the call's
// reply channel.
type stepSource struct {
	calls chan chan []domain.Conversation
}

func (s *stepSource) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	reply := make(chan []domain.Conversation)
	s.calls <- reply
	return <-reply, nil
}

func TestReload_OlderResultIsDropped(t *testing.T) {
	src := &stepSource{calls: make(chan chan []domain.Conversation)}
	p := New(src)
	ctx := context.Background()

	p.requested.Store(1)
	olderDone := make(chan struct{})
	go func() {
		defer close(olderDone)
		p.reload(ctx, "U")
	}()
	older := <-src.calls

	p.requested.Store(2)
	newerDone := make(chan struct{})
	go func() {
		defer close(newerDone)
		p.reload(ctx, "U")
	}()
	newer := <-src.calls

	newer <- []domain.Conversation{conv("new", nil, 0)}
	<-newerDone
	older <- []domain.Conversation{conv("old", nil, 0)}
	<-olderDone

	assert.Equal(t, []string{"new"}, convIDs(p.Conversations()))
}

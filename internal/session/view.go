package session

import (
	"context"
	"sync"
	"time"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/feed"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/messagestore"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
)

// View is one open conversation. It owns the conversation's store, its
// change-feed handle and its status-poll ticker.
type View struct {
	conversationID string
	session        *Session
	store          *messagestore.Store
	handle         *feed.Handle

	ctx    context.Context
	cancel context.CancelFunc

	stopPoll chan struct{}
	pollDone chan struct{}

	mu       sync.Mutex
	reported feed.State
	closed   bool
}

// ConversationID returns the conversation shown by the view.
func (v *View) ConversationID() string {
	return v.conversationID
}

// Store returns the view's message store.
func (v *View) Store() *messagestore.Store {
	return v.store
}

// Messages returns the current ordered messages.
func (v *View) Messages() []domain.Message {
	return v.store.All()
}

// State returns the live connectivity of the view's feed handle.
func (v *View) State() feed.State {
	if v.handle == nil {
		return feed.StateConnecting
	}
	return v.handle.State()
}

// Closed reports whether the view was torn down.
func (v *View) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// handleEvent reconciles one messages-topic event with the store.
func (v *View) handleEvent(ctx context.Context, env feed.Envelope) {
	if env.Message == nil || (env.Message.ConversationID != "" && env.Message.ConversationID != v.conversationID) {
		return
	}
	msg := *env.Message

	switch env.Kind {
	case feed.KindInsert:
		if !v.store.Append(msg) {
			return
		}
		if msg.SenderID != v.session.userID && !msg.IsRead {
			v.acknowledge(ctx, msg.ID)
		}
	case feed.KindUpdate:
		v.store.ApplyUpdate(msg)
	}
}

// acknowledge marks an incoming message read, since the view shows it.
func (v *View) acknowledge(ctx context.Context, messageID string) {
	if err := v.session.storage.MarkRead(ctx, v.conversationID, v.session.userID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldConversationID, v.conversationID).Msg("mark read on receive failed")
		return
	}
	v.store.MarkRead([]string{messageID}, v.session.userID)
}

// onState resyncs on every transition into connected, then reports.
// Anything written before the first subscribe or while the feed was down
// arrives through the reload; the subscription buffers what is published
// meanwhile.
func (v *View) onState(st feed.State) {
	if st == feed.StateConnected {
		v.resync(v.ctx)
	}
	v.report(st)
}

func (v *View) resync(ctx context.Context) {
	l := log.Ctx(ctx)
	msgs, err := v.session.storage.ListMessages(ctx, v.conversationID)
	if err != nil {
		if ctx.Err() == nil {
			l.Warn().Err(err).Str(log.FieldConversationID, v.conversationID).Msg("resync after connect failed")
		}
		return
	}
	v.store.Sync(msgs)

	if v.store.UnreadCount(v.session.userID) == 0 {
		return
	}
	if err := v.session.storage.MarkRead(ctx, v.conversationID, v.session.userID); err != nil {
		l.Warn().Err(err).Str(log.FieldConversationID, v.conversationID).Msg("mark read on resync failed")
		return
	}
	v.store.MarkAllRead(v.session.userID)
}

// report forwards s to the connectivity observer if it differs from the
// last reported state.
func (v *View) report(s feed.State) {
	v.mu.Lock()
	if v.closed || s == v.reported {
		v.mu.Unlock()
		return
	}
	v.reported = s
	v.mu.Unlock()

	if fn := v.session.deps.OnConnectivity; fn != nil {
		fn(feed.MessagesTopic(v.conversationID), s)
	}
}

// pollOnce is the fallback for a missed push notification.
func (v *View) pollOnce() {
	v.report(v.State())
}

func (v *View) startPolling(interval time.Duration) {
	if interval <= 0 {
		close(v.pollDone)
		return
	}

	go func() {
		defer close(v.pollDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-v.stopPoll:
				return
			case <-ticker.C:
				v.pollOnce()
			}
		}
	}()
}

// close releases the handle, stops the ticker and detaches the store.
func (v *View) close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()

	v.cancel()
	if v.handle != nil {
		v.handle.Close()
	}
	close(v.stopPoll)
	<-v.pollDone
	v.store.Close()
}

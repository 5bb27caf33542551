// Package messagestore holds the deduplicated, ordered view of one
// conversation's messages. Both the outbound send path and the inbound
// change feed mutate it; the arrival order of their calls determines the
// final state.
package messagestore

import (
	"sort"
	"sync"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
)

// ChangeFunc receives a snapshot after every effective mutation. It runs
// outside the store lock, serialized in mutation order, and must not
// mutate the store.
type ChangeFunc func(snapshot []domain.Message)

type entry struct {
	msg domain.Message
	seq uint64
}

// Store is safe for concurrent use.
type Store struct {
	conversationID string
	onChange       ChangeFunc

	mu      sync.Mutex
	entries map[string]*entry
	nextSeq uint64
	closed  bool

	notifyMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithOnChange registers the re-render hook.
func WithOnChange(fn ChangeFunc) Option {
	return func(s *Store) { s.onChange = fn }
}

// New creates an empty store for one conversation.
func New(conversationID string, opts ...Option) *Store {
	s := &Store{
		conversationID: conversationID,
		entries:        make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConversationID returns the conversation this store belongs to.
func (s *Store) ConversationID() string {
	return s.conversationID
}

// Load appends a history page with a single change notification.
func (s *Store) Load(msgs []domain.Message) {
	s.mutate(func() bool {
		changed := false
		for i := range msgs {
			if s.appendLocked(msgs[i]) {
				changed = true
			}
		}
		return changed
	})
}

// Sync merges a fresh read of the conversation: unknown records are added
// as in Load and read flags set in storage are applied to known ones.
func (s *Store) Sync(msgs []domain.Message) {
	s.mutate(func() bool {
		changed := false
		for i := range msgs {
			if s.appendLocked(msgs[i]) {
				changed = true
				continue
			}
			if e, ok := s.entries[msgs[i].ID]; ok && msgs[i].IsRead && !e.msg.IsRead {
				e.msg.IsRead = true
				changed = true
			}
		}
		return changed
	})
}

// Append inserts msg unless a record with the same id exists. A confirmed
// message whose ClientRef names a provisional entry still in the store
// takes over that entry's slot.
func (s *Store) Append(msg domain.Message) bool {
	return s.mutate(func() bool {
		return s.appendLocked(msg)
	})
}

// ReplaceProvisional swaps a provisional entry for its confirmed record.
// If the confirmed id is already present (the change feed delivered it
// first) the provisional entry is dropped and nothing is re-inserted.
// Without a provisional entry the confirmed record is inserted by
// timestamp.
func (s *Store) ReplaceProvisional(provisionalID string, confirmed domain.Message) bool {
	return s.mutate(func() bool {
		if _, ok := s.entries[confirmed.ID]; ok {
			if provisionalID == confirmed.ID {
				return false
			}
			if _, ok := s.entries[provisionalID]; ok {
				delete(s.entries, provisionalID)
				return true
			}
			return false
		}

		if e, ok := s.entries[provisionalID]; ok {
			s.swapLocked(e, confirmed)
			return true
		}

		s.insertLocked(confirmed)
		return true
	})
}

// MarkRead flags the listed messages as read by readerID. Messages
// authored by readerID and already-read messages are left untouched.
func (s *Store) MarkRead(messageIDs []string, readerID string) int {
	var n int
	s.mutate(func() bool {
		for _, id := range messageIDs {
			if e, ok := s.entries[id]; ok && markLocked(e, readerID) {
				n++
			}
		}
		return n > 0
	})
	return n
}

// MarkAllRead flags every message not authored by readerID as read.
func (s *Store) MarkAllRead(readerID string) int {
	var n int
	s.mutate(func() bool {
		for _, e := range s.entries {
			if markLocked(e, readerID) {
				n++
			}
		}
		return n > 0
	})
	return n
}

// ApplyUpdate merges an update event into the stored record. Only the
// read flag of a confirmed message may change; a read flag never reverts.
func (s *Store) ApplyUpdate(msg domain.Message) bool {
	return s.mutate(func() bool {
		e, ok := s.entries[msg.ID]
		if !ok || !msg.IsRead || e.msg.IsRead {
			return false
		}
		e.msg.IsRead = true
		return true
	})
}

// Remove drops a record, typically a provisional one whose send failed.
func (s *Store) Remove(id string) bool {
	return s.mutate(func() bool {
		if _, ok := s.entries[id]; !ok {
			return false
		}
		delete(s.entries, id)
		return true
	})
}

// Get returns the record with id.
func (s *Store) Get(id string) (domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return domain.Message{}, false
	}
	return e.msg, true
}

// All returns the messages sorted by CreatedAt, ties in insertion order.
func (s *Store) All() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// UnreadCount counts messages from others that readerID has not read.
func (s *Store) UnreadCount(readerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if e.msg.SenderID != readerID && !e.msg.IsRead {
			n++
		}
	}
	return n
}

// Close detaches the store from its view. Later mutations are no-ops.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Closed reports whether Close was called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// mutate runs fn under the lock and notifies if it changed anything.
func (s *Store) mutate(fn func() bool) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	changed := fn()
	if !changed || s.onChange == nil {
		s.mu.Unlock()
		return changed
	}

	snapshot := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()

	s.onChange(snapshot)
	s.notifyMu.Unlock()
	return true
}

func (s *Store) appendLocked(msg domain.Message) bool {
	if msg.ID == "" {
		return false
	}
	if _, ok := s.entries[msg.ID]; ok {
		return false
	}

	if msg.ClientRef != "" && !msg.IsProvisional() {
		if e, ok := s.entries[msg.ClientRef]; ok && e.msg.IsProvisional() {
			s.swapLocked(e, msg)
			return true
		}
	}

	s.insertLocked(msg)
	return true
}

// swapLocked puts msg in e's slot, keeping e's insertion sequence.
func (s *Store) swapLocked(e *entry, msg domain.Message) {
	delete(s.entries, e.msg.ID)
	e.msg = msg
	s.entries[msg.ID] = e
}

func (s *Store) insertLocked(msg domain.Message) {
	s.entries[msg.ID] = &entry{msg: msg, seq: s.nextSeq}
	s.nextSeq++
}

func (s *Store) snapshotLocked() []domain.Message {
	sorted := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.msg.CreatedAt.Equal(b.msg.CreatedAt) {
			return a.msg.CreatedAt.Before(b.msg.CreatedAt)
		}
		return a.seq < b.seq
	})

	out := make([]domain.Message, len(sorted))
	for i, e := range sorted {
		out[i] = e.msg
	}
	return out
}

func markLocked(e *entry, readerID string) bool {
	if e.msg.SenderID == readerID || e.msg.IsRead {
		return false
	}
	e.msg.IsRead = true
	return true
}

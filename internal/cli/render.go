package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/feed"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/outbound"
)

const clearScreen = "\033[H\033[2J"

// deliveryMark is shown after one's own messages.
func deliveryMark(m domain.Message) string {
	switch {
	case m.DeliveryState == domain.DeliveryPending:
		return "…"
	case m.DeliveryState == domain.DeliveryFailed:
		return "!"
	case m.IsRead:
		return "✓✓"
	default:
		return "✓"
	}
}

func formatMessage(m domain.Message, me, counterpart string) string {
	ts := m.CreatedAt.Local().Format("15:04")
	if m.SenderID == me {
		return fmt.Sprintf("[%s] you: %s %s", ts, m.Content, deliveryMark(m))
	}
	return fmt.Sprintf("[%s] %s: %s", ts, counterpart, m.Content)
}

// chatScreen redraws a conversation on every change. Callbacks arrive
// from several goroutines.
type chatScreen struct {
	mu          sync.Mutex
	w           io.Writer
	me          string
	counterpart string
	limit       int
	clear       bool

	msgs   []domain.Message
	state  feed.State
	notice string
}

func newChatScreen(w io.Writer, me, counterpart string, limit int, clear bool) *chatScreen {
	return &chatScreen{
		w:           w,
		me:          me,
		counterpart: counterpart,
		limit:       limit,
		clear:       clear,
		state:       feed.StateConnecting,
	}
}

func (s *chatScreen) setMessages(msgs []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = msgs
	s.drawLocked()
}

func (s *chatScreen) setState(st feed.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	s.drawLocked()
}

func (s *chatScreen) setSendState(st outbound.SendState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch st {
	case outbound.StateSending:
		s.notice = "sending…"
	case outbound.StateSent, outbound.StateIdle:
		s.notice = ""
	}
	s.drawLocked()
}

// showError reports a failed send or a rejected input.
func (s *chatScreen) showError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sendErr *outbound.SendError
	switch {
	case errors.Is(err, domain.ErrValidation):
		s.notice = "not sent: " + err.Error()
	case errors.As(err, &sendErr):
		s.notice = fmt.Sprintf("not sent (%v), retype %q to retry", sendErr.Err, sendErr.Content)
	default:
		s.notice = err.Error()
	}
	s.drawLocked()
}

func (s *chatScreen) drawLocked() {
	var b strings.Builder
	if s.clear {
		b.WriteString(clearScreen)
	}
	fmt.Fprintf(&b, "── %s ── [%s]\n", s.counterpart, s.state)

	msgs := s.msgs
	if s.limit > 0 && len(msgs) > s.limit {
		msgs = msgs[len(msgs)-s.limit:]
	}
	for _, m := range msgs {
		b.WriteString(formatMessage(m, s.me, s.counterpart))
		b.WriteByte('\n')
	}
	if s.notice != "" {
		b.WriteString(s.notice)
		b.WriteByte('\n')
	}
	b.WriteString("> ")
	io.WriteString(s.w, b.String())
}

// renderInbox writes the conversation list as a table.
func renderInbox(w io.Writer, convs []domain.Conversation) error {
	if len(convs) == 0 {
		_, err := fmt.Fprintln(w, "no conversations")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WITH\tUNREAD\tLAST\tPREVIEW")
	for _, c := range convs {
		with := "?"
		if c.Counterpart != nil {
			with = c.Counterpart.DisplayName
		}
		last, preview := "-", ""
		if c.LastMessageAt != nil {
			last = humanTime(*c.LastMessageAt, time.Now())
		}
		if c.LastMessagePreview != nil {
			preview = *c.LastMessagePreview
		}
		unread := ""
		if c.UnreadCount > 0 {
			unread = fmt.Sprintf("%d", c.UnreadCount)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", with, unread, last, preview)
	}
	return tw.Flush()
}

func humanTime(t, now time.Time) string {
	t = t.Local()
	now = now.Local()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("2006-01-02")
}

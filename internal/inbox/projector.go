// Package inbox projects a user's conversations into a recency-sorted,
// filterable list.
package inbox

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/ratelimit"
	"golang.org/x/sync/singleflight"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/feed"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
)

// Source loads a user's conversations.
type Source interface {
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)
}

// ChangeFunc receives the list after every refresh, with the refresh
// error if it failed.
type ChangeFunc func(convs []domain.Conversation, err error)

// Projector is safe for concurrent use.
type Projector struct {
	source   Source
	limiter  ratelimit.Limiter
	onChange ChangeFunc

	sf        singleflight.Group
	requested atomic.Uint64

	mu     sync.RWMutex
	userID string
	convs  []domain.Conversation
	err    error
	loaded uint64
}

// Option configures a Projector.
type Option func(*Projector)

// WithRefreshRate caps storage reloads per second. Zero or less disables
// the cap.
func WithRefreshRate(perSecond int) Option {
	return func(p *Projector) {
		if perSecond > 0 {
			p.limiter = ratelimit.New(perSecond, ratelimit.WithoutSlack)
		} else {
			p.limiter = ratelimit.NewUnlimited()
		}
	}
}

// WithOnChange registers the re-render hook.
func WithOnChange(fn ChangeFunc) Option {
	return func(p *Projector) { p.onChange = fn }
}

// New creates an empty projector over source.
func New(source Source, opts ...Option) *Projector {
	p := &Projector{
		source:  source,
		limiter: ratelimit.NewUnlimited(),
		convs:   []domain.Conversation{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Refresh reloads userID's conversations. On failure the projection is
// emptied, the error is kept for Err and returned alongside an empty list.
//
// Concurrent refreshes for a user share one reload, but a caller never
// settles for a reload that started before its own request.
func (p *Projector) Refresh(ctx context.Context, userID string) ([]domain.Conversation, error) {
	want := p.requested.Add(1)

	for {
		p.mu.RLock()
		done := p.loaded >= want
		convs, err := cloneList(p.convs), p.err
		p.mu.RUnlock()

		if done {
			if err != nil {
				return []domain.Conversation{}, err
			}
			return convs, nil
		}
		if err := ctx.Err(); err != nil {
			return []domain.Conversation{}, domain.Transport("list conversations", err)
		}

		p.sf.Do(userID, func() (interface{}, error) {
			p.reload(ctx, userID)
			return nil, nil
		})
	}
}

func (p *Projector) reload(ctx context.Context, userID string) {
	gen := p.requested.Load()
	p.limiter.Take()

	convs, err := p.source.ListConversations(ctx, userID)
	if err != nil {
		err = domain.Transport("list conversations", err)
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("conversation list refresh failed")
		convs = []domain.Conversation{}
	} else {
		convs = cloneList(convs)
		Sort(convs)
	}

	p.mu.Lock()
	if gen < p.loaded {
		// A newer reload already landed.
		p.mu.Unlock()
		return
	}
	p.userID = userID
	p.convs = convs
	p.err = err
	p.loaded = gen
	p.mu.Unlock()

	if p.onChange != nil {
		p.onChange(cloneList(convs), err)
	}
}

// HandleEvent refreshes on any conversations-topic event. Other topics
// are ignored.
func (p *Projector) HandleEvent(ctx context.Context, env feed.Envelope) {
	if env.Topic.Kind != feed.TopicConversations {
		return
	}
	p.Refresh(ctx, env.Topic.ID)
}

// Conversations returns the current projection.
func (p *Projector) Conversations() []domain.Conversation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneList(p.convs)
}

// Err returns the error of the last refresh, nil if it succeeded.
func (p *Projector) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

// UserID returns the user of the last refresh.
func (p *Projector) UserID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.userID
}

// TotalUnread sums the unread counters of the projection.
func (p *Projector) TotalUnread() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := 0
	for i := range p.convs {
		total += p.convs[i].UnreadCount
	}
	return total
}

// Filter returns the conversations whose counterpart name, counterpart
// email or last-message preview contains term, ignoring case. A blank
// term returns the whole list.
func (p *Projector) Filter(term string) []domain.Conversation {
	return FilterList(p.Conversations(), term)
}

// FilterList is Filter over an arbitrary list. convs is not modified.
func FilterList(convs []domain.Conversation, term string) []domain.Conversation {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return convs
	}

	out := make([]domain.Conversation, 0, len(convs))
	for _, c := range convs {
		if matches(&c, term) {
			out = append(out, c)
		}
	}
	return out
}

func matches(c *domain.Conversation, term string) bool {
	if c.Counterpart != nil {
		if strings.Contains(strings.ToLower(c.Counterpart.DisplayName), term) ||
			strings.Contains(strings.ToLower(c.Counterpart.Email), term) {
			return true
		}
	}
	return c.LastMessagePreview != nil &&
		strings.Contains(strings.ToLower(*c.LastMessagePreview), term)
}

// Sort orders conversations by LastMessageAt descending with never-used
// conversations last, ties by CreatedAt descending.
func Sort(convs []domain.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		a, b := convs[i], convs[j]
		switch {
		case a.LastMessageAt != nil && b.LastMessageAt != nil:
			if !a.LastMessageAt.Equal(*b.LastMessageAt) {
				return a.LastMessageAt.After(*b.LastMessageAt)
			}
		case a.LastMessageAt != nil:
			return true
		case b.LastMessageAt != nil:
			return false
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func cloneList(convs []domain.Conversation) []domain.Conversation {
	out := make([]domain.Conversation, len(convs))
	copy(out, convs)
	return out
}

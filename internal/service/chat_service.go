package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/audit"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/cache"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/repository"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/pubsub"
)

// chatServiceImpl persists through the repository and announces every
// change on the change feed.
type chatServiceImpl struct {
	repo      repository.ChatRepository
	publisher pubsub.Publisher
	cache     cache.ConversationCache
	cacheTTL  time.Duration
	sf        singleflight.Group

	// versions counts invalidations per user. A list read before a bump
	// must not be cached after it.
	mu       sync.Mutex
	versions map[string]uint64
}

// NewChatService creates a chat service. publisher and convCache may be nil.
func NewChatService(
	repo repository.ChatRepository,
	publisher pubsub.Publisher,
	convCache cache.ConversationCache,
	cacheTTL time.Duration,
) ChatService {
	return &chatServiceImpl{
		repo:      repo,
		publisher: publisher,
		cache:     convCache,
		cacheTTL:  cacheTTL,
		versions:  make(map[string]uint64),
	}
}

// CreateConversation is idempotent on the unordered pair.
func (s *chatServiceImpl) CreateConversation(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	l := log.Ctx(ctx)

	if userA == "" || userB == "" {
		return nil, &domain.ValidationError{Field: "participant_id", Reason: "participant is required"}
	}
	if userA == userB {
		return nil, domain.ErrSelfConversation
	}

	existing, err := s.repo.FindConversationByPair(ctx, userA, userB)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}

	users, err := s.repo.GetUsersByIDs(ctx, []string{userA, userB})
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	if len(users) != 2 {
		return nil, fmt.Errorf("participant: %w", domain.ErrNotFound)
	}

	conv := &domain.Conversation{ParticipantA: userA, ParticipantB: userB}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Lost the race against the other participant.
			return s.repo.FindConversationByPair(ctx, userA, userB)
		}
		l.Error().Err(err).Msg("failed to create conversation")
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	audit.LogTarget(ctx, audit.ActionConversationCreated, userA, conv.ID, "conversation created")

	s.invalidate(ctx, conv.ParticipantA, conv.ParticipantB)
	s.publish(ctx, pubsub.UserConversationsChannel(conv.ParticipantA), pubsub.EventInsert, conv)
	s.publish(ctx, pubsub.UserConversationsChannel(conv.ParticipantB), pubsub.EventInsert, conv)

	return conv, nil
}

// GetConversation returns the conversation if userID takes part in it.
func (s *chatServiceImpl) GetConversation(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, domain.ErrNotParticipant
	}
	return conv, nil
}

// ListConversations returns userID's conversations with counterpart and
// unread count. Concurrent calls for one user share a single load.
func (s *chatServiceImpl) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	result, err, _ := s.sf.Do(userID, func() (interface{}, error) {
		return s.fetchConversations(ctx, userID)
	})
	if err != nil {
		return nil, err
	}

	convs, ok := result.([]domain.Conversation)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}

	// Callers may mutate the slice; singleflight shares it.
	out := make([]domain.Conversation, len(convs))
	copy(out, convs)
	return out, nil
}

func (s *chatServiceImpl) fetchConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	ver := s.version(userID)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Msg("cache get error")
		}
	}

	convs, err := s.repo.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	s.fill(ctx, userID, ver, convs)
	return convs, nil
}

// fill caches convs unless userID was invalidated since ver was read. The
// second check covers an invalidation that lands between the first check
// and the write.
func (s *chatServiceImpl) fill(ctx context.Context, userID string, ver uint64, convs []domain.Conversation) {
	if s.cache == nil || s.version(userID) != ver {
		return
	}
	l := log.Ctx(ctx)
	if err := s.cache.Set(ctx, userID, convs, s.cacheTTL); err != nil {
		l.Warn().Err(err).Msg("cache set error")
		return
	}
	if s.version(userID) != ver {
		if err := s.cache.Invalidate(ctx, userID); err != nil {
			l.Warn().Err(err).Msg("cache delete error")
		}
	}
}

func (s *chatServiceImpl) version(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[userID]
}

// ListMessages returns the conversation history in send order.
func (s *chatServiceImpl) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	msgs, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

// CreateMessage validates, persists and announces a message.
func (s *chatServiceImpl) CreateMessage(ctx context.Context, input domain.CreateMessageInput) (*domain.Message, error) {
	l := log.Ctx(ctx)

	if err := domain.ValidateContent(input.Content); err != nil {
		return nil, err
	}
	if _, err := s.GetConversation(ctx, input.ConversationID, input.SenderID); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ConversationID: input.ConversationID,
		SenderID:       input.SenderID,
		Content:        input.Content,
		ClientRef:      input.ClientRef,
	}
	conv, err := s.repo.CreateMessage(ctx, msg)
	if err != nil {
		l.Error().Err(err).Str(log.FieldConversationID, input.ConversationID).Msg("failed to create message")
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	audit.LogTarget(ctx, audit.ActionMessageSent, msg.SenderID, msg.ID, "message sent")

	s.invalidate(ctx, conv.ParticipantA, conv.ParticipantB)
	s.publish(ctx, pubsub.ConversationMessagesChannel(msg.ConversationID), pubsub.EventInsert, msg)
	s.publish(ctx, pubsub.UserConversationsChannel(conv.ParticipantA), pubsub.EventUpdate, conv)
	s.publish(ctx, pubsub.UserConversationsChannel(conv.ParticipantB), pubsub.EventUpdate, conv)

	return msg, nil
}

// MarkRead flags the counterpart's messages as read by readerID.
func (s *chatServiceImpl) MarkRead(ctx context.Context, conversationID, readerID string) error {
	conv, err := s.GetConversation(ctx, conversationID, readerID)
	if err != nil {
		return err
	}

	ids, err := s.repo.MarkRead(ctx, conversationID, readerID)
	if err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	audit.LogWithDetail(ctx, audit.ActionMessagesRead, readerID, conversationID, "messages read")

	s.invalidate(ctx, readerID)
	channel := pubsub.ConversationMessagesChannel(conversationID)
	for _, id := range ids {
		s.publish(ctx, channel, pubsub.EventUpdate, &domain.Message{
			ID:             id,
			ConversationID: conversationID,
			SenderID:       conv.Other(readerID),
			IsRead:         true,
			DeliveryState:  domain.DeliveryConfirmed,
		})
	}
	s.publish(ctx, pubsub.UserConversationsChannel(readerID), pubsub.EventUpdate, conv)
	return nil
}

// ListOtherUsers lists every user but userID.
func (s *chatServiceImpl) ListOtherUsers(ctx context.Context, userID string) ([]domain.UserSummary, error) {
	users, err := s.repo.ListUsersExcept(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	out := make([]domain.UserSummary, 0, len(users))
	for i := range users {
		out = append(out, users[i].Summary())
	}
	return out, nil
}

// publish announces a change. Failures are logged; the write stands.
func (s *chatServiceImpl) publish(ctx context.Context, channel, eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	l := log.Ctx(ctx)

	event, err := pubsub.NewEvent(eventType, channel, payload)
	if err != nil {
		l.Error().Err(err).Str(log.FieldTopic, channel).Msg("failed to build change event")
		return
	}
	if err := s.publisher.Publish(ctx, channel, event); err != nil {
		l.Warn().Err(err).Str(log.FieldTopic, channel).Msg("failed to publish change event")
	}
}

// invalidate runs after a write. Loads already in flight for these users
// stop being shared and stop being cached.
func (s *chatServiceImpl) invalidate(ctx context.Context, userIDs ...string) {
	s.mu.Lock()
	for _, id := range userIDs {
		s.versions[id]++
	}
	s.mu.Unlock()
	for _, id := range userIDs {
		s.sf.Forget(id)
	}

	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userIDs...); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("cache delete error")
	}
}

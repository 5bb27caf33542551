package repository

import (
	"context"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
)

// UserRepository defines the interface for user data persistence.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsersExcept(ctx context.Context, userID string) ([]domain.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error)
}

// ChatRepository defines the interface for conversation and message
// persistence.
type ChatRepository interface {
	UserRepository

	// CreateConversation inserts conv with a normalized pair. It returns
	// domain.ErrConflict when the pair already exists.
	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	FindConversationByPair(ctx context.Context, userA, userB string) (*domain.Conversation, error)
	// ListConversations returns userID's conversations with Counterpart and
	// UnreadCount filled in.
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)

	// CreateMessage inserts msg and updates the conversation preview in
	// one transaction. It returns the updated conversation.
	CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	// MarkRead flags every unread message of the conversation not sent by
	// readerID and returns the IDs it changed.
	MarkRead(ctx context.Context, conversationID, readerID string) ([]string, error)
}

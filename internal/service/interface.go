package service

import (
	"context"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/jwt"
)

// ChatStorage is the storage collaborator the real-time core is written
// against.
type ChatStorage interface {
	// CreateConversation returns the conversation between two users,
	// creating it on first use.
	CreateConversation(ctx context.Context, userA, userB string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	CreateMessage(ctx context.Context, input domain.CreateMessageInput) (*domain.Message, error)
	// MarkRead flags every message of the conversation not sent by
	// readerID as read. Idempotent.
	MarkRead(ctx context.Context, conversationID, readerID string) error
	ListOtherUsers(ctx context.Context, userID string) ([]domain.UserSummary, error)
}

// ChatService is ChatStorage plus the participant-scoped reads the HTTP
// API needs.
type ChatService interface {
	ChatStorage
	// GetConversation returns the conversation if userID takes part in it.
	GetConversation(ctx context.Context, conversationID, userID string) (*domain.Conversation, error)
}

// AuthService registers users and exchanges credentials for tokens.
type AuthService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error)
	Authenticate(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error)
	ValidateToken(token string) (*jwt.Claims, error)
	GetUser(ctx context.Context, userID string) (*domain.UserSummary, error)
}

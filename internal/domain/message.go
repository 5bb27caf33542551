package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageLength is the upper bound on message content, in runes.
const MaxMessageLength = 1000

// previewLength bounds Conversation.LastMessagePreview, in runes.
const previewLength = 100

// DeliveryState tracks a message from optimistic insert to confirmation.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryConfirmed DeliveryState = "confirmed"
	DeliveryFailed    DeliveryState = "failed"
)

// Message is one direct message of a conversation.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	Content        string        `json:"content"`
	CreatedAt      time.Time     `json:"created_at"`
	IsRead         bool          `json:"is_read"`
	DeliveryState  DeliveryState `json:"delivery_state"`
	// ClientRef is the provisional ID the sender used before confirmation.
	ClientRef string `json:"client_ref,omitempty"`
}

// IsProvisional reports whether m has not been confirmed by storage yet.
func (m *Message) IsProvisional() bool {
	return m.DeliveryState == DeliveryPending
}

// CreateMessageInput is the storage create-message request.
type CreateMessageInput struct {
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content" binding:"required"`
	ClientRef      string `json:"client_ref"`
}

// ValidateContent enforces the [1, MaxMessageLength] bound. Whitespace-only
// content counts as empty.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return &ValidationError{Field: "content", Reason: "message cannot be empty"}
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return &ValidationError{Field: "content", Reason: "message exceeds 1000 characters"}
	}
	return nil
}

// Preview returns the conversation preview for a message body.
func Preview(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewLength])
}

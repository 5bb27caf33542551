package domain

import "time"

// Conversation is a one-to-one conversation. ParticipantA sorts before
// ParticipantB so the unordered pair has a single representation.
type Conversation struct {
	ID                 string     `json:"id"`
	ParticipantA       string     `json:"participant_a"`
	ParticipantB       string     `json:"participant_b"`
	LastMessagePreview *string    `json:"last_message_preview"`
	LastMessageAt      *time.Time `json:"last_message_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	// Viewer-relative fields, filled by list queries.
	Counterpart *UserSummary `json:"counterpart,omitempty"`
	UnreadCount int          `json:"unread_count"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID string) string {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// NormalizePair orders two user IDs the way storage keys conversations.
func NormalizePair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// UserSummary is the public view of another user.
type UserSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// CreateConversationRequest is the body of POST /conversations.
type CreateConversationRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
}

package pubsub

import (
	"fmt"
	"strings"
)

// Channel naming conventions for the chat change feed.
const (
	// Per-conversation message inserts and read-state updates.
	ChannelConversationMessages = "chat:conversation:%s:messages"

	// Per-user conversation list changes.
	ChannelUserConversations = "chat:user:%s:conversations"
)

// Event types carried on both channels.
const (
	EventInsert = "insert"
	EventUpdate = "update"
)

// ConversationMessagesChannel returns the channel for one conversation's messages.
func ConversationMessagesChannel(conversationID string) string {
	return fmt.Sprintf(ChannelConversationMessages, conversationID)
}

// UserConversationsChannel returns the channel for one user's conversation list.
func UserConversationsChannel(userID string) string {
	return fmt.Sprintf(ChannelUserConversations, userID)
}

// ParseChannel splits a channel into its scope ("conversation" or "user"),
// the scoped ID and the stream name ("messages" or "conversations").
func ParseChannel(channel string) (scope, id, stream string, err error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[0] != "chat" || parts[2] == "" {
		return "", "", "", fmt.Errorf("invalid channel format: %s", channel)
	}
	return parts[1], parts[2], parts[3], nil
}

package feed

import (
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/pubsub"
)

// TopicKind names what a topic carries.
type TopicKind string

const (
	TopicMessages      TopicKind = "messages"
	TopicConversations TopicKind = "conversations"
)

// Topic is one change-feed stream: a conversation's messages or a user's
// conversation list.
type Topic struct {
	Kind TopicKind `json:"kind"`
	ID   string    `json:"id"`
}

// MessagesTopic returns the topic for a conversation's messages.
func MessagesTopic(conversationID string) Topic {
	return Topic{Kind: TopicMessages, ID: conversationID}
}

// ConversationsTopic returns the topic for a user's conversation list.
func ConversationsTopic(userID string) Topic {
	return Topic{Kind: TopicConversations, ID: userID}
}

// Channel returns the transport channel name.
func (t Topic) Channel() string {
	if t.Kind == TopicConversations {
		return pubsub.UserConversationsChannel(t.ID)
	}
	return pubsub.ConversationMessagesChannel(t.ID)
}

func (t Topic) String() string {
	return t.Channel()
}

// EventKind is insert or update.
type EventKind string

const (
	KindInsert EventKind = pubsub.EventInsert
	KindUpdate EventKind = pubsub.EventUpdate
)

// Envelope is the normalized change event. Exactly one of Message and
// Conversation is set, matching Topic.Kind.
type Envelope struct {
	Kind         EventKind            `json:"kind"`
	Topic        Topic                `json:"topic"`
	Message      *domain.Message      `json:"message,omitempty"`
	Conversation *domain.Conversation `json:"conversation,omitempty"`
}

// Decode normalizes a transport event for topic.
func Decode(topic Topic, ev *pubsub.Event) (Envelope, error) {
	env := Envelope{Topic: topic}

	switch ev.Type {
	case pubsub.EventInsert:
		env.Kind = KindInsert
	case pubsub.EventUpdate:
		env.Kind = KindUpdate
	default:
		return env, &domain.ValidationError{Field: "type", Reason: "unknown event type " + ev.Type}
	}

	switch topic.Kind {
	case TopicMessages:
		var msg domain.Message
		if err := ev.UnmarshalPayload(&msg); err != nil {
			return env, err
		}
		if msg.ID == "" {
			return env, &domain.ValidationError{Field: "id", Reason: "message event without id"}
		}
		if msg.DeliveryState == "" {
			msg.DeliveryState = domain.DeliveryConfirmed
		}
		env.Message = &msg
	case TopicConversations:
		var conv domain.Conversation
		if err := ev.UnmarshalPayload(&conv); err != nil {
			return env, err
		}
		if conv.ID == "" {
			return env, &domain.ValidationError{Field: "id", Reason: "conversation event without id"}
		}
		env.Conversation = &conv
	default:
		return env, &domain.ValidationError{Field: "topic", Reason: "unknown topic kind " + string(topic.Kind)}
	}

	return env, nil
}

package domain

// WebSocket message types from client.
const (
	MsgTypeSubscribe   = "subscribe"
	MsgTypeUnsubscribe = "unsubscribe"
	MsgTypePing        = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeSubscribed   = "subscribed"
	MsgTypeUnsubscribed = "unsubscribed"
	MsgTypeEvent        = "event"
	MsgTypeState        = "state"
	MsgTypeError        = "error"
	MsgTypePong         = "pong"
)

// Error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

// SubscribeMessage is used for both subscribe and unsubscribe. Topic is
// "messages" or "conversations"; ID is the conversation id or, for
// conversations, the caller's own user id (may be omitted).
type SubscribeMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	ID    string `json:"id"`
}

// Server -> Client messages

type SubscriptionMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	ID    string `json:"id"`
}

type EventBody struct {
	Kind   string      `json:"kind"`
	Record interface{} `json:"record"`
}

type EventMessage struct {
	Type  string    `json:"type"`
	Topic string    `json:"topic"`
	ID    string    `json:"id"`
	Event EventBody `json:"event"`
}

type StateMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	ID    string `json:"id"`
	State string `json:"state"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("validation error")
	// ErrTransport matches every *TransportError via errors.Is.
	ErrTransport = errors.New("transport error")

	// ErrConflict is returned by storage when a unique pair already exists.
	// Services resolve it by returning the existing record.
	ErrConflict = errors.New("conflict")

	ErrNotFound           = errors.New("not found")
	ErrNotParticipant     = errors.New("user is not a participant of the conversation")
	ErrSelfConversation   = errors.New("cannot start a conversation with yourself")
	ErrSendInProgress     = errors.New("a message is already being sent in this conversation")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailExists        = errors.New("email already exists")
	ErrUsernameExists     = errors.New("username already exists")
)

// ValidationError reports user input that violates a contract.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransportError wraps a failed storage or change-feed call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Transport wraps err as a *TransportError unless it already is a domain
// error the caller branches on (validation, not found, participant).
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsClientError(err) {
		return err
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// IsClientError reports whether err is caused by the request rather than
// by the infrastructure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNotParticipant) ||
		errors.Is(err, ErrSelfConversation)
}

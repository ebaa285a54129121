package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when no access token is available.
	// No request is attempted in that case.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrEmptyMessage is returned when the text is blank after trimming.
	ErrEmptyMessage = errors.New("empty message")

	// ErrSendInFlight is returned when a send is already pending for the view.
	ErrSendInFlight = errors.New("send already in flight")

	// ErrViewClosed is returned by operations on a closed view.
	ErrViewClosed = errors.New("conversation view closed")

	// ErrUnknownStatus is returned for unrecognized delivery status values.
	ErrUnknownStatus = errors.New("unknown status")

	// ErrMissingConversation is returned when a conversation id is blank.
	ErrMissingConversation = errors.New("missing conversation id")
)

// SendError reports a failed persistence call. Text is the draft that was
// restored so the user can retry; TempID is the optimistic record that stays visible.
type SendError struct {
	ConversationID string
	TempID         string
	Text           string
	Err            error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.ConversationID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

package v1

import (
	"errors"
	"strings"
	"time"
)

// Message is the wire representation of a chat message, used both by the REST
// history/send endpoints and by message_new push events.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	ClientMsgID    string    `json:"client_msg_id,omitempty"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	Status         string    `json:"status"`
}

// Validate checks the fields every consumer relies on.
func (m Message) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return errors.New("message: missing id")
	}
	if m.Timestamp.IsZero() {
		return errors.New("message: missing timestamp")
	}
	if m.Status != "" && !ValidStatus(m.Status) {
		return errors.New("message: unknown status " + m.Status)
	}
	return nil
}

// MessageList is returned by the history endpoint.
type MessageList struct {
	Messages []Message `json:"messages"`
}

// SendMessageRequest is the body of the create-message endpoint.
type SendMessageRequest struct {
	Text        string `json:"text"`
	ClientMsgID string `json:"client_msg_id,omitempty"`
}

// Participant is the display metadata of the other side of a conversation.
type Participant struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Online      bool   `json:"online"`
}

// Conversation is returned by the conversation metadata endpoint.
type Conversation struct {
	ID          string      `json:"id"`
	Participant Participant `json:"participant"`
}

// Profile is a match candidate returned by the profiles endpoint.
type Profile struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Online      bool   `json:"online"`
}

// ProfileList is returned by the profiles endpoint.
type ProfileList struct {
	Profiles []Profile `json:"profiles"`
}

// ReadReceipt acknowledges a mark-as-read request.
type ReadReceipt struct {
	ConversationID string `json:"conversation_id"`
	Updated        int    `json:"updated"`
}

// APIError is the JSON error body of the REST endpoints.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps APIError as {"error": {...}}.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

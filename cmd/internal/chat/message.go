// Package chat is the client-side core of a conversation: an in-memory message
// store, the reconciler that merges history, push events, fallback polling and
// optimistic sends into it, and the view that owns transport selection.
package chat

import (
	"fmt"
	"strings"
	"time"

	v1 "unimatch/shared/contracts/chat/v1"
)

// Status is the delivery status of a message. It only moves forward.
type Status uint8

const (
	StatusSent Status = iota + 1
	StatusDelivered
	StatusRead
)

// ParseStatus maps a wire value onto Status. Unrecognized values are rejected.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case v1.StatusSent:
		return StatusSent, nil
	case v1.StatusDelivered:
		return StatusDelivered, nil
	case v1.StatusRead:
		return StatusRead, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// String returns the wire value.
func (s Status) String() string {
	switch s {
	case StatusSent:
		return v1.StatusSent
	case StatusDelivered:
		return v1.StatusDelivered
	case StatusRead:
		return v1.StatusRead
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	return s >= StatusSent && s <= StatusRead
}

// Message is one record of the conversation store.
type Message struct {
	ID          string
	ClientMsgID string
	Text        string
	// IsSent is true when the local user authored the message.
	IsSent    bool
	Timestamp time.Time
	Status    Status
}

// IsTemporary reports whether the message still carries a client-generated id.
func (m Message) IsTemporary() bool {
	return strings.HasPrefix(m.ID, tempIDPrefix)
}

// Participant is read-only display metadata of the other side of a conversation.
type Participant struct {
	UserID      string
	DisplayName string
	AvatarURL   string
	Online      bool
}

// Conversation is read-only metadata used to render headers.
type Conversation struct {
	ID          string
	Participant Participant
}

// FromWire converts a wire message. selfID decides IsSent. A missing status
// defaults to sent; an unknown one is an error.
func FromWire(m v1.Message, selfID string) (Message, error) {
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	st := StatusSent
	if m.Status != "" {
		parsed, err := ParseStatus(m.Status)
		if err != nil {
			return Message{}, err
		}
		st = parsed
	}
	return Message{
		ID:          m.ID,
		ClientMsgID: m.ClientMsgID,
		Text:        m.Text,
		IsSent:      selfID != "" && m.SenderID == selfID,
		Timestamp:   m.Timestamp.UTC(),
		Status:      st,
	}, nil
}

// FromWireList converts a batch, skipping records that fail validation.
// The number of skipped records is returned for logging.
func FromWireList(in []v1.Message, selfID string) ([]Message, int) {
	out := make([]Message, 0, len(in))
	skipped := 0
	for _, m := range in {
		msg, err := FromWire(m, selfID)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, msg)
	}
	return out, skipped
}

func conversationFromWire(c v1.Conversation) Conversation {
	return Conversation{
		ID: c.ID,
		Participant: Participant{
			UserID:      c.Participant.UserID,
			DisplayName: c.Participant.DisplayName,
			AvatarURL:   c.Participant.AvatarURL,
			Online:      c.Participant.Online,
		},
	}
}

package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Event is a decoded, validated push-channel event. The concrete type is one of
// RoomEvent, MessageSendEvent, MessageNewEvent, MessageStatusEvent or ErrorEvent.
type Event interface {
	EventType() string
}

// RoomEvent is a room_join or room_leave frame.
type RoomEvent struct {
	Type    string
	ReplyTo string
	Room    RoomPayload
}

// MessageSendEvent is a client announce of a persisted message.
type MessageSendEvent struct {
	Send MessageSendPayload
}

// MessageNewEvent carries a message for a room member.
type MessageNewEvent struct {
	Message Message
}

// MessageStatusEvent carries a status transition for an existing message.
type MessageStatusEvent struct {
	Status MessageStatusPayload
}

// ErrorEvent carries a server error, optionally correlated to a request id.
type ErrorEvent struct {
	ReplyTo string
	Err     ErrorPayload
}

func (e RoomEvent) EventType() string { return e.Type }
func (MessageSendEvent) EventType() string { return TypeMessageSend }
func (MessageNewEvent) EventType() string { return TypeMessageNew }
func (MessageStatusEvent) EventType() string { return TypeMessageStatus }
func (ErrorEvent) EventType() string { return TypeError }
func (e ErrorEvent) Error() string { return e.Err.Code + ": " + e.Err.Message }

// DecodeEvent validates env and decodes its payload into the matching Event variant.
// Loosely typed payloads never leave this function.
func DecodeEvent(env Envelope) (Event, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("%s: missing payload", env.Type)
	}

	switch env.Type {
	case TypeRoomJoin, TypeRoomLeave:
		var p RoomPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.ConversationID) == "" {
			return nil, fmt.Errorf("%s: missing conversation_id", env.Type)
		}
		return RoomEvent{Type: env.Type, ReplyTo: env.ID, Room: p}, nil

	case TypeMessageSend:
		var p MessageSendPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.ConversationID) == "" || strings.TrimSpace(p.MessageID) == "" {
			return nil, errors.New("message_send: missing conversation_id or message_id")
		}
		return MessageSendEvent{Send: p}, nil

	case TypeMessageNew:
		var m Message
		if err := decodePayload(env, &m); err != nil {
			return nil, err
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if m.ConversationID == "" {
			m.ConversationID = env.ConvID
		}
		return MessageNewEvent{Message: m}, nil

	case TypeMessageStatus:
		var p MessageStatusPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.MessageID) == "" {
			return nil, errors.New("message_status: missing message_id")
		}
		if !ValidStatus(p.Status) {
			return nil, fmt.Errorf("message_status: unknown status %q", p.Status)
		}
		if p.ConversationID == "" {
			p.ConversationID = env.ConvID
		}
		return MessageStatusEvent{Status: p}, nil

	case TypeError:
		var p ErrorPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return ErrorEvent{ReplyTo: env.ID, Err: p}, nil
	}

	return nil, fmt.Errorf("unknown type: %q", env.Type)
}

func decodePayload(env Envelope, dst any) error {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", env.Type, err)
	}
	return nil
}

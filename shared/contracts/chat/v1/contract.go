// Package v1 defines the unimatch chat contract v1.
//
// It is shared between the chat client core and the dev backend so both sides
// agree on the push-channel envelope and the REST payloads.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is the WebSocket subprotocol negotiated by push clients.
const Subprotocol = "unimatch.chat.v1"

// Type constants (wire-stable).
const (
	// TypeRoomJoin subscribes to a conversation room (client -> server), echoed back on success.
	TypeRoomJoin = "room_join"
	// TypeRoomLeave unsubscribes from a conversation room (client -> server), echoed back.
	TypeRoomLeave = "room_leave"

	// TypeMessageSend announces an already persisted message to the room (client -> server).
	// Fire-and-forget: the server never acknowledges it.
	TypeMessageSend = "message_send"
	// TypeMessageNew delivers a message to room members (server -> client).
	TypeMessageNew = "message_new"
	// TypeMessageStatus delivers a delivery-status transition (server -> client).
	TypeMessageStatus = "message_status"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Status wire values.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// ValidStatus reports whether s is one of the three wire status values.
func ValidStatus(s string) bool {
	switch s {
	case StatusSent, StatusDelivered, StatusRead:
		return true
	default:
		return false
	}
}

// Envelope is the canonical push-channel frame.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	ConvID  string          `json:"conv_id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeRoomJoin,
		TypeRoomLeave,
		TypeMessageSend,
		TypeMessageNew,
		TypeMessageStatus,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// NewEnvelope marshals payload into a fresh envelope.
func NewEnvelope(typ, id, convID string, payload any, ts time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Envelope{
		V:       Version,
		Type:    typ,
		ID:      id,
		ConvID:  convID,
		TS:      ts,
		Payload: raw,
	}, nil
}

// ---- Payloads ----

// RoomPayload names the conversation room being joined or left.
type RoomPayload struct {
	ConversationID string `json:"conversation_id"`
}

// MessageSendPayload announces a persisted message to the other room members.
type MessageSendPayload struct {
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	ClientMsgID    string    `json:"client_msg_id,omitempty"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

// MessageStatusPayload moves an existing message to a new delivery status.
type MessageStatusPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Status         string `json:"status"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

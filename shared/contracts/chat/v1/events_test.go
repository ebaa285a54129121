package v1

import (
	"encoding/json"
	"testing"
	"time"
)

func mustEnvelope(t *testing.T, typ string, payload any) Envelope {
	t.Helper()
	env, err := NewEnvelope(typ, "req-1", "conv-1", payload, time.Now().UTC())
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	return env
}

func TestEnvelopeValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{name: "ok", env: Envelope{V: Version, Type: TypeMessageNew}},
		{name: "missing version", env: Envelope{Type: TypeMessageNew}, wantErr: true},
		{name: "wrong version", env: Envelope{V: "v0", Type: TypeMessageNew}, wantErr: true},
		{name: "missing type", env: Envelope{V: Version}, wantErr: true},
		{name: "unknown type", env: Envelope{V: Version, Type: "typing"}, wantErr: true},
	}

	for _, tc := range cases {
		err := tc.env.Validate()
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: Validate() err=%v wantErr=%v", tc.name, err, tc.wantErr)
		}
	}
}

func TestDecodeEvent_MessageNew(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env := mustEnvelope(t, TypeMessageNew, Message{
		ID:        "m-1",
		SenderID:  "u-2",
		Text:      "hi",
		Timestamp: ts,
		Status:    StatusSent,
	})

	ev, err := DecodeEvent(env)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	got, ok := ev.(MessageNewEvent)
	if !ok {
		t.Fatalf("event type=%T want MessageNewEvent", ev)
	}
	if got.Message.ID != "m-1" || got.Message.Text != "hi" || !got.Message.Timestamp.Equal(ts) {
		t.Fatalf("unexpected message: %+v", got.Message)
	}
	if got.Message.ConversationID != "conv-1" {
		t.Fatalf("conversation_id=%q want fallback to envelope conv_id", got.Message.ConversationID)
	}
}

func TestDecodeEvent_RejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	env := mustEnvelope(t, TypeMessageStatus, MessageStatusPayload{
		ConversationID: "conv-1",
		MessageID:      "m-1",
		Status:         "seen",
	})
	if _, err := DecodeEvent(env); err == nil {
		t.Fatalf("expected unknown status to be rejected")
	}

	env = mustEnvelope(t, TypeMessageNew, Message{ID: "m-1", Timestamp: time.Now(), Status: "blue"})
	if _, err := DecodeEvent(env); err == nil {
		t.Fatalf("expected message with unknown status to be rejected")
	}
}

func TestDecodeEvent_StatusAndRoomAndError(t *testing.T) {
	t.Parallel()

	ev, err := DecodeEvent(mustEnvelope(t, TypeMessageStatus, MessageStatusPayload{MessageID: "m-1", Status: StatusRead}))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	st := ev.(MessageStatusEvent)
	if st.Status.Status != StatusRead || st.Status.ConversationID != "conv-1" {
		t.Fatalf("unexpected status event: %+v", st)
	}

	ev, err = DecodeEvent(mustEnvelope(t, TypeRoomJoin, RoomPayload{ConversationID: "conv-1"}))
	if err != nil {
		t.Fatalf("room: %v", err)
	}
	room := ev.(RoomEvent)
	if room.EventType() != TypeRoomJoin || room.ReplyTo != "req-1" {
		t.Fatalf("unexpected room event: %+v", room)
	}

	ev, err = DecodeEvent(mustEnvelope(t, TypeError, ErrorPayload{Code: "not_member", Message: "nope"}))
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if e := ev.(ErrorEvent); e.Error() != "not_member: nope" {
		t.Fatalf("Error()=%q", e.Error())
	}
}

func TestDecodeEvent_BadPayload(t *testing.T) {
	t.Parallel()

	env := Envelope{V: Version, Type: TypeMessageNew, Payload: json.RawMessage(`{"id":42}`)}
	if _, err := DecodeEvent(env); err == nil {
		t.Fatalf("expected invalid payload error")
	}

	env = Envelope{V: Version, Type: TypeRoomJoin}
	if _, err := DecodeEvent(env); err == nil {
		t.Fatalf("expected missing payload error")
	}
}

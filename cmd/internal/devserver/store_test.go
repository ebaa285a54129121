package devserver

import (
	"context"
	"errors"
	"testing"
	"time"

	v1 "unimatch/shared/contracts/chat/v1"
)

var storeT0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryStore_AppendIsIdempotentPerClientMsgID(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.Append(ctx, AppendInput{ConversationID: "c1", ClientMsgID: "cm-1", SenderID: "u1", Text: "hi", Now: storeT0})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if first.Duplicated {
		t.Fatalf("first append reported duplicate")
	}
	if first.Stored.Seq != 1 || first.Stored.Status != v1.StatusSent {
		t.Fatalf("stored=%+v", first.Stored)
	}

	again, err := s.Append(ctx, AppendInput{ConversationID: "c1", ClientMsgID: "cm-1", SenderID: "u1", Text: "hi", Now: storeT0.Add(time.Second)})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !again.Duplicated || again.Stored.MessageID != first.Stored.MessageID {
		t.Fatalf("replay=%+v want duplicate of %s", again, first.Stored.MessageID)
	}

	// Same client id from another sender is a different message.
	other, err := s.Append(ctx, AppendInput{ConversationID: "c1", ClientMsgID: "cm-1", SenderID: "u2", Text: "hi", Now: storeT0})
	if err != nil {
		t.Fatalf("append other: %v", err)
	}
	if other.Duplicated || other.Stored.Seq != 2 {
		t.Fatalf("other=%+v", other)
	}

	list, err := s.List(ctx, "c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len=%d want=2", len(list))
	}
}

func TestMemoryStore_TrimDropsReplayKeys(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	s.maxPerConv = 2
	ctx := context.Background()

	var firstID string
	for i, cm := range []string{"cm-1", "cm-2", "cm-3"} {
		res, err := s.Append(ctx, AppendInput{ConversationID: "c1", ClientMsgID: cm, SenderID: "u1", Text: cm, Now: storeT0.Add(time.Duration(i) * time.Second)})
		if err != nil {
			t.Fatalf("append %s: %v", cm, err)
		}
		if i == 0 {
			firstID = res.Stored.MessageID
		}
	}

	c := s.convs["c1"]
	if len(c.msgs) != 2 || len(c.index) != 2 || len(c.dedupe) != 2 {
		t.Fatalf("msgs=%d index=%d dedupe=%d want=2 each", len(c.msgs), len(c.index), len(c.dedupe))
	}
	if _, ok := c.dedupe["u1\x00cm-1"]; ok {
		t.Fatalf("replay key of a trimmed message kept")
	}

	// A replay of a trimmed message is stored again under a new id.
	res, err := s.Append(ctx, AppendInput{ConversationID: "c1", ClientMsgID: "cm-1", SenderID: "u1", Text: "cm-1", Now: storeT0.Add(time.Minute)})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if res.Duplicated || res.Stored.MessageID == firstID {
		t.Fatalf("res=%+v want a fresh record", res)
	}
}

func TestMemoryStore_AppendRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	cases := []AppendInput{
		{SenderID: "u1", Text: "x"},
		{ConversationID: "c1", Text: "x"},
		{ConversationID: "c1", SenderID: "u1"},
	}
	for _, in := range cases {
		if _, err := s.Append(context.Background(), in); !errors.Is(err, errInvalidInput) {
			t.Fatalf("in=%+v err=%v want=%v", in, err, errInvalidInput)
		}
	}
}

func TestMemoryStore_AdvanceOnlyMovesForward(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	res, err := s.Append(ctx, AppendInput{ConversationID: "c1", SenderID: "u1", Text: "hi", Now: storeT0})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	id := res.Stored.MessageID

	steps := []struct {
		status  string
		changed bool
		want    string
	}{
		{v1.StatusDelivered, true, v1.StatusDelivered},
		{v1.StatusDelivered, false, v1.StatusDelivered},
		{v1.StatusRead, true, v1.StatusRead},
		{v1.StatusSent, false, v1.StatusRead},
	}
	for _, st := range steps {
		m, changed, err := s.Advance(ctx, "c1", id, st.status)
		if err != nil {
			t.Fatalf("advance %s: %v", st.status, err)
		}
		if changed != st.changed || m.Status != st.want {
			t.Fatalf("advance %s: changed=%v status=%s want changed=%v status=%s", st.status, changed, m.Status, st.changed, st.want)
		}
	}

	if _, _, err := s.Advance(ctx, "c1", "missing", v1.StatusRead); !errors.Is(err, errNotFound) {
		t.Fatalf("missing err=%v want=%v", err, errNotFound)
	}
	if _, _, err := s.Advance(ctx, "c1", id, "seen"); !errors.Is(err, errInvalidInput) {
		t.Fatalf("bad status err=%v want=%v", err, errInvalidInput)
	}
}

func TestMemoryStore_MarkReadSkipsOwnMessages(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	for i, sender := range []string{"u1", "u2", "u1"} {
		if _, err := s.Append(ctx, AppendInput{ConversationID: "c1", SenderID: sender, Text: "m", Now: storeT0.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	changed, err := s.MarkRead(ctx, "c1", "u2")
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if len(changed) != 2 {
		t.Fatalf("changed=%d want=2", len(changed))
	}
	for _, m := range changed {
		if m.SenderID != "u1" || m.Status != v1.StatusRead {
			t.Fatalf("changed=%+v", m)
		}
	}

	again, err := s.MarkRead(ctx, "c1", "u2")
	if err != nil {
		t.Fatalf("mark read again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second mark read changed=%d want=0", len(again))
	}
}

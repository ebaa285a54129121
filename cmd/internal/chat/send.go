package chat

import (
	"context"
	"fmt"
	"strings"

	v1 "unimatch/shared/contracts/chat/v1"
)

// Send originates a message from the local user.
//
// The optimistic record is merged before the backend is called. On success the
// record is confirmed in place and, in live mode, announced to the room. On
// failure the draft is restored and a *SendError is returned.
func (v *View) Send(ctx context.Context, text string) (Message, error) {
	body := strings.TrimSpace(text)
	if body == "" {
		return Message{}, ErrEmptyMessage
	}
	if v.Closed() {
		return Message{}, ErrViewClosed
	}
	if !v.sending.CompareAndSwap(false, true) {
		return Message{}, ErrSendInFlight
	}
	defer v.sending.Store(false)

	c := v.client
	token, ok := c.creds.AccessToken()
	if !ok {
		c.log.Warn("chat.send.unauthenticated", "conversation_id", v.id)
		c.metrics.incSend("unauthenticated")
		return Message{}, ErrNotAuthenticated
	}

	now := c.now().UTC()
	clientMsgID, err := NewClientMsgID(now)
	if err != nil {
		return Message{}, fmt.Errorf("client message id: %w", err)
	}
	optimistic := Message{
		ID:          c.temps.next(now),
		ClientMsgID: clientMsgID,
		Text:        body,
		IsSent:      true,
		Timestamp:   now,
		Status:      StatusSent,
	}

	v.SetDraft("")
	v.apply(func() { v.rec.MergeMessage(SourceOptimistic, optimistic) })

	wire, err := c.backend.SendMessage(ctx, token, v.id, v1.SendMessageRequest{
		Text:        body,
		ClientMsgID: clientMsgID,
	})
	var durable Message
	if err == nil {
		durable, err = FromWire(wire, c.creds.UserID())
	}
	if err != nil {
		// The optimistic record is left in the store without a durable id.
		// Only the draft is restored; the user retries by sending again.
		if !v.Closed() {
			v.SetDraft(text)
		}
		c.metrics.incSend("failed")
		c.log.Warn("chat.send.fail", "conversation_id", v.id, "temp_id", optimistic.ID, "err", err)
		return optimistic, &SendError{
			ConversationID: v.id,
			TempID:         optimistic.ID,
			Text:           text,
			Err:            err,
		}
	}
	durable.IsSent = true

	if !v.apply(func() { v.rec.Confirm(optimistic.ID, durable) }) {
		c.log.Debug("chat.send.stale", "conversation_id", v.id, "message_id", durable.ID)
		return durable, nil
	}
	c.metrics.incSend("ok")

	if v.Mode() == ModeLive && c.push != nil {
		err := c.push.Announce(ctx, v1.MessageSendPayload{
			ConversationID: v.id,
			MessageID:      durable.ID,
			ClientMsgID:    clientMsgID,
			Text:           durable.Text,
			Timestamp:      durable.Timestamp,
		})
		if err != nil {
			c.log.Warn("chat.send.announce.fail", "conversation_id", v.id, "message_id", durable.ID, "err", err)
		}
	}
	return durable, nil
}

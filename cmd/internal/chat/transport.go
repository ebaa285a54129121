package chat

import (
	"context"
	"time"

	v1 "unimatch/shared/contracts/chat/v1"
)

const (
	DefaultPollInterval = 3 * time.Second
	defaultJoinTimeout  = 5 * time.Second
	defaultLeaveTimeout = 2 * time.Second
)

// Mode is the update mechanism of an open view.
type Mode uint8

const (
	ModeNone Mode = iota
	ModeLive
	ModePolling
)

func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModePolling:
		return "polling"
	default:
		return "none"
	}
}

// PushChannel is the live bidirectional channel. Implementations must make On
// replace any handler already registered for the same event type.
type PushChannel interface {
	Join(ctx context.Context, conversationID string) error
	Leave(ctx context.Context, conversationID string) error
	On(eventType string, fn func(v1.Event))
	Off(eventType string)
	// Announce publishes a persisted message to the room. No acknowledgement is awaited.
	Announce(ctx context.Context, msg v1.MessageSendPayload) error
}

// closer is implemented by push channels that can report a dead connection.
type closer interface {
	Done() <-chan struct{}
}

// Ticker drives fallback polling. *time.Ticker satisfies it through NewTicker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop() { t.t.Stop() }

// NewTicker wraps time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// startTransport selects exactly one update mode for v. Live mode is tried
// first when a push channel is configured; any failure falls back to polling
// and is only logged.
func (v *View) startTransport() {
	c := v.client
	if p := c.push; p != nil {
		p.On(v1.TypeMessageNew, v.onMessageNew)
		p.On(v1.TypeMessageStatus, v.onMessageStatus)

		ctx, cancel := context.WithTimeout(v.ctx, c.joinTimeout)
		err := p.Join(ctx, v.id)
		cancel()
		if err == nil {
			v.setMode(ModeLive)
			c.log.Info("chat.transport.live", "conversation_id", v.id)
			if pc, ok := p.(closer); ok {
				go v.watchPush(p, pc.Done())
			}
			return
		}

		p.Off(v1.TypeMessageNew)
		p.Off(v1.TypeMessageStatus)
		c.log.Info("chat.transport.fallback", "conversation_id", v.id, "err", err)
	}

	v.startPolling()
}

// watchPush moves a live view to polling when the push connection dies.
func (v *View) watchPush(p PushChannel, done <-chan struct{}) {
	select {
	case <-v.ctx.Done():
		return
	case <-done:
	}
	if v.ctx.Err() != nil {
		return
	}
	p.Off(v1.TypeMessageNew)
	p.Off(v1.TypeMessageStatus)
	v.client.log.Info("chat.transport.lost", "conversation_id", v.id)
	v.startPolling()
}

// startPolling is a no-op on a closed view, so a late fallback never
// outlives Close.
func (v *View) startPolling() {
	t := v.client.newTicker(v.client.pollInterval)
	done := make(chan struct{})

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		t.Stop()
		return
	}
	v.ticker = t
	v.pollDone = done
	v.mode = ModePolling
	v.mu.Unlock()

	v.client.metrics.setMode(ModePolling)
	go v.pollLoop(t, done)
}

func (v *View) pollLoop(t Ticker, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-v.ctx.Done():
			return
		case <-t.C():
			if v.ctx.Err() != nil {
				return
			}
			_ = v.refresh(v.ctx, SourcePoll)
		}
	}
}

// stopTransport runs every teardown step regardless of the active mode.
func (v *View) stopTransport() {
	c := v.client
	if p := c.push; p != nil {
		p.Off(v1.TypeMessageNew)
		p.Off(v1.TypeMessageStatus)

		ctx, cancel := context.WithTimeout(context.Background(), defaultLeaveTimeout)
		if err := p.Leave(ctx, v.id); err != nil {
			c.log.Debug("chat.transport.leave.fail", "conversation_id", v.id, "err", err)
		}
		cancel()
	}

	v.mu.Lock()
	t, done := v.ticker, v.pollDone
	v.ticker, v.pollDone = nil, nil
	v.mu.Unlock()

	if t != nil {
		t.Stop()
	}
	if done != nil {
		<-done
	}
	v.setMode(ModeNone)
}

func (v *View) onMessageNew(ev v1.Event) {
	e, ok := ev.(v1.MessageNewEvent)
	if !ok {
		return
	}
	if e.Message.ConversationID != "" && e.Message.ConversationID != v.id {
		return
	}
	m, err := FromWire(e.Message, v.client.creds.UserID())
	if err != nil {
		v.client.log.Warn("chat.push.message.invalid", "conversation_id", v.id, "err", err)
		return
	}
	v.apply(func() { v.rec.MergeMessage(SourcePush, m) })
}

func (v *View) onMessageStatus(ev v1.Event) {
	e, ok := ev.(v1.MessageStatusEvent)
	if !ok {
		return
	}
	if e.Status.ConversationID != "" && e.Status.ConversationID != v.id {
		return
	}
	st, err := ParseStatus(e.Status.Status)
	if err != nil {
		v.client.log.Warn("chat.push.status.invalid", "conversation_id", v.id, "err", err)
		return
	}
	v.apply(func() { v.rec.ApplyStatus(e.Status.MessageID, st) })
}

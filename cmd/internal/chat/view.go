package chat

import (
	"context"
	"sync"
	"sync/atomic"
)

// View is one open conversation: its store, its transport and its compose state.
// Everything it holds is discarded by Close.
type View struct {
	client *Client
	id     string
	rec    *Reconciler

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards the fields below. apply holds it for reading while a result is
	// written into the store, so nothing lands after Close.
	mu       sync.RWMutex
	closed   bool
	mode     Mode
	conv     Conversation
	draft    string
	ticker   Ticker
	pollDone chan struct{}

	sending   atomic.Bool
	closeOnce sync.Once
}

func newView(parent context.Context, c *Client, id string) *View {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &View{
		client: c,
		id:     id,
		rec:    NewReconciler(c.log.With("conversation_id", id), c.metrics, c.window),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (v *View) ID() string { return v.id }

// Messages returns the current list in display order.
func (v *View) Messages() []Message { return v.rec.Store().Messages() }

// Store exposes the read-only store, mainly for Updates and Version.
func (v *View) Store() *Store { return v.rec.Store() }

// Updates signals when the message list changed.
func (v *View) Updates() <-chan struct{} { return v.rec.Store().Updates() }

func (v *View) Mode() Mode {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.mode
}

func (v *View) Conversation() Conversation {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.conv
}

// Draft is the compose-field text. A failed send puts the text back here.
func (v *View) Draft() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.draft
}

func (v *View) SetDraft(s string) {
	v.mu.Lock()
	v.draft = s
	v.mu.Unlock()
}

func (v *View) Closed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.closed
}

// Refresh re-fetches the full list once and reconciles it as a batch.
func (v *View) Refresh(ctx context.Context) error {
	return v.refresh(ctx, SourcePoll)
}

func (v *View) refresh(ctx context.Context, src Source) error {
	c := v.client
	token, ok := c.creds.AccessToken()
	if !ok {
		c.log.Warn("chat.refresh.unauthenticated", "conversation_id", v.id)
		return ErrNotAuthenticated
	}

	wire, err := c.backend.FetchMessages(ctx, token, v.id)
	if src == SourcePoll {
		c.metrics.incPoll(err)
	}
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn("chat.refresh.fetch.fail", "conversation_id", v.id, "err", err)
		}
		return err
	}

	list, skipped := FromWireList(wire, c.creds.UserID())
	if skipped > 0 {
		c.log.Warn("chat.refresh.skip", "conversation_id", v.id, "skipped", skipped)
	}
	if !v.apply(func() { v.rec.MergeBatch(src, list) }) {
		return ErrViewClosed
	}
	return nil
}

// Close tears down the transport and discards the store. It is idempotent.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		v.mu.Lock()
		v.closed = true
		v.mu.Unlock()

		v.cancel()
		v.stopTransport()
		v.rec.discard()
		v.client.release(v)
		v.client.log.Info("chat.view.close", "conversation_id", v.id)
	})
}

// apply runs fn unless the view is closed. Responses that resolve after Close
// are dropped here. Reports whether fn ran.
func (v *View) apply(fn func()) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return false
	}
	fn()
	return true
}

func (v *View) setMode(m Mode) {
	v.mu.Lock()
	v.mode = m
	v.mu.Unlock()
	v.client.metrics.setMode(m)
}

func (v *View) setConversation(c Conversation) {
	v.mu.Lock()
	v.conv = c
	v.mu.Unlock()
}

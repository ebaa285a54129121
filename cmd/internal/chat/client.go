package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	v1 "unimatch/shared/contracts/chat/v1"
)

// Credentials supplies the bearer token and the local user id.
type Credentials interface {
	// AccessToken returns the current token, or false when signed out.
	AccessToken() (string, bool)
	UserID() string
}

// Backend is the REST collaborator.
type Backend interface {
	FetchMessages(ctx context.Context, token, conversationID string) ([]v1.Message, error)
	MarkRead(ctx context.Context, token, conversationID string) error
	SendMessage(ctx context.Context, token, conversationID string, req v1.SendMessageRequest) (v1.Message, error)
	FetchConversation(ctx context.Context, token, conversationID string) (v1.Conversation, error)
}

// Client opens conversation views. At most one view is active at a time;
// opening another one closes the previous view first.
type Client struct {
	backend Backend
	creds   Credentials
	push    PushChannel

	log          *slog.Logger
	metrics      *Metrics
	pollInterval time.Duration
	joinTimeout  time.Duration
	window       time.Duration
	newTicker    func(time.Duration) Ticker
	now          func() time.Time

	temps tempIDs

	openMu sync.Mutex
	mu     sync.Mutex
	active *View
}

type Option func(*Client)

// WithPush enables live mode. Without it every view polls.
func WithPush(p PushChannel) Option {
	return func(c *Client) { c.push = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

func WithJoinTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.joinTimeout = d
		}
	}
}

func WithDuplicateWindow(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.window = d
		}
	}
}

// WithTicker replaces the poll ticker constructor. Tests use it to drive time.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(c *Client) {
		if fn != nil {
			c.newTicker = fn
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func NewClient(backend Backend, creds Credentials, opts ...Option) *Client {
	c := &Client{
		backend:      backend,
		creds:        creds,
		log:          slog.Default(),
		pollInterval: DefaultPollInterval,
		joinTimeout:  defaultJoinTimeout,
		window:       DefaultDuplicateWindow,
		newTicker:    NewTicker,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open closes the active view, loads the conversation and selects its transport.
//
// History and metadata failures are logged and leave the view empty; the only
// errors returned are a blank id and missing credentials.
func (c *Client) Open(ctx context.Context, conversationID string) (*View, error) {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return nil, ErrMissingConversation
	}
	token, ok := c.creds.AccessToken()
	if !ok {
		c.log.Warn("chat.view.open.unauthenticated", "conversation_id", id)
		return nil, ErrNotAuthenticated
	}

	c.openMu.Lock()
	defer c.openMu.Unlock()

	c.mu.Lock()
	prev := c.active
	c.active = nil
	c.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	v := newView(ctx, c, id)
	c.log.Info("chat.view.open", "conversation_id", id)

	if wire, err := c.backend.FetchMessages(ctx, token, id); err != nil {
		c.log.Warn("chat.history.fetch.fail", "conversation_id", id, "err", err)
	} else {
		list, skipped := FromWireList(wire, c.creds.UserID())
		if skipped > 0 {
			c.log.Warn("chat.history.skip", "conversation_id", id, "skipped", skipped)
		}
		v.rec.MergeBatch(SourceHistory, list)
	}

	if meta, err := c.backend.FetchConversation(ctx, token, id); err != nil {
		c.log.Debug("chat.conversation.fetch.fail", "conversation_id", id, "err", err)
		v.setConversation(Conversation{ID: id})
	} else {
		v.setConversation(conversationFromWire(meta))
	}

	if err := c.backend.MarkRead(ctx, token, id); err != nil {
		c.log.Warn("chat.read.mark.fail", "conversation_id", id, "err", err)
	}

	v.startTransport()

	c.mu.Lock()
	c.active = v
	c.mu.Unlock()
	return v, nil
}

// Active returns the open view, or nil.
func (c *Client) Active() *View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Close closes the active view, if any.
func (c *Client) Close() {
	c.mu.Lock()
	v := c.active
	c.active = nil
	c.mu.Unlock()
	if v != nil {
		v.Close()
	}
}

func (c *Client) release(v *View) {
	c.mu.Lock()
	if c.active == v {
		c.active = nil
	}
	c.mu.Unlock()
}

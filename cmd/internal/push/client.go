// Package push is the live push channel: a WebSocket client that joins
// conversation rooms, dispatches decoded events to per-type handlers and
// announces persisted messages.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"unimatch/cmd/internal/ids"
	v1 "unimatch/shared/contracts/chat/v1"

	"github.com/coder/websocket"
)

const (
	maxReadBytes = 1 << 20

	defaultSendQueue        = 64
	defaultWriteTimeout     = 5 * time.Second
	defaultHeartbeatEvery   = 25 * time.Second
	defaultHeartbeatTimeout = 5 * time.Second
	maxPingFailures         = 3
	closeGrace              = time.Second
)

var (
	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("push: closed")
	// ErrBackpressure is returned when the send queue is full.
	ErrBackpressure = errors.New("push: send queue full")
)

// Client is a live push connection. All methods are safe for concurrent use.
//
// Handlers run on the read goroutine in arrival order and must not block on
// the client itself.
type Client struct {
	log  *slog.Logger
	conn *websocket.Conn
	cfg  config

	send chan v1.Envelope

	mu       sync.Mutex
	handlers map[string]func(v1.Event)
	pending  map[string]chan v1.Event

	done      chan struct{}
	readDone  chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

type config struct {
	log              *slog.Logger
	origin           string
	httpClient       *http.Client
	sendQueue        int
	writeTimeout     time.Duration
	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration
}

// Option configures Dial.
type Option func(*config)

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithOrigin sets the Origin header sent with the handshake.
func WithOrigin(origin string) Option {
	return func(c *config) { c.origin = strings.TrimSpace(origin) }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithHeartbeat overrides the ping interval and per-ping timeout.
func WithHeartbeat(every, timeout time.Duration) Option {
	return func(c *config) {
		if every > 0 {
			c.heartbeatEvery = every
		}
		if timeout > 0 {
			c.heartbeatTimeout = timeout
		}
	}
}

func WithSendQueue(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.sendQueue = n
		}
	}
}

// Dial opens the push connection. token is sent as a bearer Authorization header.
func Dial(ctx context.Context, rawURL, token string, opts ...Option) (*Client, error) {
	cfg := config{
		log:              slog.Default(),
		sendQueue:        defaultSendQueue,
		writeTimeout:     defaultWriteTimeout,
		heartbeatEvery:   defaultHeartbeatEvery,
		heartbeatTimeout: defaultHeartbeatTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if err := validateURL(rawURL); err != nil {
		return nil, fmt.Errorf("push: url: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("push: missing token")
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	if cfg.origin != "" {
		h.Set("Origin", cfg.origin)
	}

	conn, resp, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
		HTTPClient:   cfg.httpClient,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("push: dial: %w", err)
	}
	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return nil, fmt.Errorf("push: subprotocol mismatch: got=%q want=%q", sp, v1.Subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &Client{
		log:      cfg.log,
		conn:     conn,
		cfg:      cfg,
		send:     make(chan v1.Envelope, cfg.sendQueue),
		handlers: make(map[string]func(v1.Event)),
		pending:  make(map[string]chan v1.Event),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}

	go c.writeLoop()
	go c.heartbeat()
	go c.readLoop()

	c.log.Info("push.connect", "url", rawURL)
	return c, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

// On registers fn for eventType, replacing any previous handler.
func (c *Client) On(eventType string, fn func(v1.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn == nil {
		delete(c.handlers, eventType)
		return
	}
	c.handlers[eventType] = fn
}

// Off removes the handler for eventType.
func (c *Client) Off(eventType string) {
	c.mu.Lock()
	delete(c.handlers, eventType)
	c.mu.Unlock()
}

// Join subscribes to a conversation room and waits for the server echo.
func (c *Client) Join(ctx context.Context, conversationID string) error {
	return c.roundTrip(ctx, v1.TypeRoomJoin, conversationID)
}

// Leave unsubscribes from a conversation room and waits for the server echo.
func (c *Client) Leave(ctx context.Context, conversationID string) error {
	return c.roundTrip(ctx, v1.TypeRoomLeave, conversationID)
}

// Announce queues a message_send frame. Nothing is awaited.
func (c *Client) Announce(ctx context.Context, msg v1.MessageSendPayload) error {
	env, err := c.newEnvelope(v1.TypeMessageSend, msg.ConversationID, msg)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, env)
}

func (c *Client) roundTrip(ctx context.Context, typ, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return errors.New("push: missing conversation id")
	}
	env, err := c.newEnvelope(typ, conversationID, v1.RoomPayload{ConversationID: conversationID})
	if err != nil {
		return err
	}

	reply := make(chan v1.Event, 1)
	c.mu.Lock()
	c.pending[env.ID] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, env.ID)
		c.mu.Unlock()
	}()

	if err := c.enqueue(ctx, env); err != nil {
		return err
	}

	select {
	case ev := <-reply:
		if e, ok := ev.(v1.ErrorEvent); ok {
			return fmt.Errorf("push: %s: %w", typ, e)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.closedErr()
	}
}

func (c *Client) newEnvelope(typ, convID string, payload any) (v1.Envelope, error) {
	now := time.Now().UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return v1.Envelope{}, fmt.Errorf("push: envelope id: %w", err)
	}
	return v1.NewEnvelope(typ, id, convID, payload, now)
}

func (c *Client) enqueue(ctx context.Context, env v1.Envelope) error {
	select {
	case <-c.done:
		return c.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case c.send <- env:
		return nil
	default:
		return ErrBackpressure
	}
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the reason the connection ended, or nil while it is open.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) closedErr() error {
	if err := c.Err(); err != nil && !errors.Is(err, ErrClosed) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return ErrClosed
}

// Close shuts the connection down. It is idempotent.
func (c *Client) Close() error {
	c.shutdown(websocket.StatusNormalClosure, "bye", ErrClosed)

	select {
	case <-c.readDone:
	case <-time.After(closeGrace):
	}
	return nil
}

func (c *Client) shutdown(code websocket.StatusCode, reason string, cause error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = cause
		c.errMu.Unlock()

		close(c.done)
		_ = c.conn.Close(code, reason)
		c.log.Info("push.close", "reason", reason, "err", cause)
	})
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case env := <-c.send:
			if err := writeEnvelope(c.conn, env, c.cfg.writeTimeout); err != nil {
				c.log.Info("push.write.fail", "type", env.Type, "close_status", websocket.CloseStatus(err), "err", err)
				c.shutdown(websocket.StatusAbnormalClosure, "write failed", err)
				return
			}
		}
	}
}

func (c *Client) heartbeat() {
	t := time.NewTicker(c.cfg.heartbeatEvery)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.heartbeatTimeout)
			err := c.conn.Ping(ctx)
			cancel()

			if err != nil {
				failures++
				c.log.Info("push.ping.fail", "failures", failures, "err", err)
				if failures >= maxPingFailures {
					c.shutdown(websocket.StatusGoingAway, "heartbeat failed", err)
					return
				}
				continue
			}
			failures = 0
		}
	}
}

func (c *Client) readLoop() {
	defer close(c.readDone)

	// Reads end when conn.Close completes the close handshake.
	ctx := context.Background()
	for {
		env, err := readEnvelope(ctx, c.conn)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrBadFrame:
				c.log.Warn("push.read.bad_frame", "err", err)
				continue
			case readErrClose, readErrCtxDone:
				c.shutdown(websocket.StatusNormalClosure, "peer closed", err)
			default:
				c.log.Info("push.read.fail", "err", err)
				c.shutdown(websocket.StatusAbnormalClosure, "read failed", err)
			}
			return
		}

		ev, err := v1.DecodeEvent(env)
		if err != nil {
			c.log.Warn("push.event.invalid", "type", env.Type, "err", err)
			continue
		}
		c.dispatch(env.ID, ev)
	}
}

// dispatch hands replies to their waiting request and everything else to the
// handler registered for the event type.
func (c *Client) dispatch(envID string, ev v1.Event) {
	c.mu.Lock()
	if envID != "" {
		if reply, ok := c.pending[envID]; ok {
			delete(c.pending, envID)
			c.mu.Unlock()
			reply <- ev
			return
		}
	}
	fn := c.handlers[ev.EventType()]
	c.mu.Unlock()

	if fn == nil {
		if e, ok := ev.(v1.ErrorEvent); ok {
			c.log.Warn("push.error", "code", e.Err.Code, "message", e.Err.Message)
		}
		return
	}
	fn(ev)
}

// ---- envelope IO ----

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, &frameError{err: fmt.Errorf("unsupported message type: %v", mt)}
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, &frameError{err: err}
	}
	if err := env.Validate(); err != nil {
		return v1.Envelope{}, &frameError{err: err}
	}
	return env, nil
}

func writeEnvelope(conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

// frameError is a malformed frame on a healthy connection.
type frameError struct{ err error }

func (e *frameError) Error() string { return "bad frame: " + e.err.Error() }
func (e *frameError) Unwrap() error { return e.err }

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrBadFrame
)

func classifyReadErr(err error) readErrKind {
	var fe *frameError
	if errors.As(err, &fe) {
		return readErrBadFrame
	}
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	return readErrUnknown
}

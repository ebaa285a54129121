// Package api is the REST client for the chat backend: history, mark-as-read,
// send and conversation metadata.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	v1 "unimatch/shared/contracts/chat/v1"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 4 << 20
	maxErrorBytes    = 8 << 10
)

// Client talks to the /v1 REST endpoints. It is safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client
	log  *slog.Logger
	ua   string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.ua = ua
		}
	}
}

// NewClient parses baseURL (scheme and host, optional path prefix).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("api: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api: base url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("api: base url: missing host")
	}
	u.Path = strings.TrimRight(u.Path, "/")

	c := &Client{
		base: u,
		http: &http.Client{Timeout: defaultTimeout},
		log:  slog.Default(),
		ua:   "unimatch-chat",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c, nil
}

// FetchMessages returns the full message list of a conversation.
func (c *Client) FetchMessages(ctx context.Context, token, conversationID string) ([]v1.Message, error) {
	var out v1.MessageList
	if err := c.do(ctx, http.MethodGet, conversationPath(conversationID, "messages"), token, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// MarkRead marks the peer's messages in the conversation as read.
func (c *Client) MarkRead(ctx context.Context, token, conversationID string) error {
	var out v1.ReadReceipt
	if err := c.do(ctx, http.MethodPost, conversationPath(conversationID, "read"), token, nil, &out); err != nil {
		return err
	}
	c.log.Debug("api.read.ok", "conversation_id", conversationID, "updated", out.Updated)
	return nil
}

// SendMessage persists a message and returns the stored record.
func (c *Client) SendMessage(ctx context.Context, token, conversationID string, req v1.SendMessageRequest) (v1.Message, error) {
	var out v1.Message
	if err := c.do(ctx, http.MethodPost, conversationPath(conversationID, "messages"), token, req, &out); err != nil {
		return v1.Message{}, err
	}
	if err := out.Validate(); err != nil {
		return v1.Message{}, fmt.Errorf("api: send: %w", err)
	}
	return out, nil
}

// FetchConversation returns header metadata for a conversation.
func (c *Client) FetchConversation(ctx context.Context, token, conversationID string) (v1.Conversation, error) {
	var out v1.Conversation
	if err := c.do(ctx, http.MethodGet, conversationPath(conversationID, ""), token, nil, &out); err != nil {
		return v1.Conversation{}, err
	}
	return out, nil
}

// FetchProfiles returns the profiles the signed-in user can browse.
func (c *Client) FetchProfiles(ctx context.Context, token string) ([]v1.Profile, error) {
	var out v1.ProfileList
	if err := c.do(ctx, http.MethodGet, "/v1/profiles", token, nil, &out); err != nil {
		return nil, err
	}
	return out.Profiles, nil
}

func conversationPath(id, suffix string) string {
	p := "/v1/conversations/" + url.PathEscape(id)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path, token string, body, dst any) error {
	if strings.TrimSpace(token) == "" {
		return ErrUnauthorized
	}

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.ua)
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug("api.request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(method, path, resp)
	}
	if dst == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("api: decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(method, path string, resp *http.Response) error {
	se := &StatusError{Method: method, Path: path, Status: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
	var body v1.ErrorResponse
	if len(raw) > 0 && json.Unmarshal(raw, &body) == nil {
		se.Code = body.Error.Code
		se.Message = body.Error.Message
	}
	return se
}

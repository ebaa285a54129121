// Package main is a CI-friendly smoke test for a running unimatch backend.
//
// It validates:
//   - push handshake for two users
//   - room join echo
//   - REST send, then announce -> message_new on the other session
//   - delivered status back to the sender
//   - read receipt -> read status back to the sender
//   - idempotent replay by client_msg_id
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"unimatch/cmd/internal/api"
	"unimatch/cmd/internal/ids"
	"unimatch/cmd/internal/push"
	v1 "unimatch/shared/contracts/chat/v1"
)

type smokeConfig struct {
	baseURL string
	pushURL string
	origin  string
	convID  string
	tokenA  string
	tokenB  string
	text    string
	timeout time.Duration
}

type smokeUser struct {
	name  string
	token string
	push  *push.Client

	news     chan v1.Message
	statuses chan v1.MessageStatusPayload
}

func main() {
	var cfg smokeConfig
	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "REST base URL")
	flag.StringVar(&cfg.pushURL, "push-url", "ws://127.0.0.1:8080/ws", "push WebSocket URL")
	flag.StringVar(&cfg.origin, "origin", "", "Origin header to send (browser-like handshake)")
	flag.StringVar(&cfg.convID, "conv", "dev-room-1", "conversation to use")
	flag.StringVar(&cfg.tokenA, "token-a", "dev-alice", "sender token")
	flag.StringVar(&cfg.tokenB, "token-b", "dev-bob", "recipient token")
	flag.StringVar(&cfg.text, "text", "hello unimatch 👋", "message text")
	flag.DurationVar(&cfg.timeout, "timeout", 7*time.Second, "per-step timeout")
	verbose := flag.Bool("v", false, "verbose output")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(context.Background(), cfg, log, os.Stdout); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg smokeConfig, log *slog.Logger, out io.Writer) error {
	rest, err := api.NewClient(cfg.baseURL, api.WithLogger(log))
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}

	a, err := connect(ctx, "A", cfg, cfg.tokenA, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.push.Close() }()
	b, err := connect(ctx, "B", cfg, cfg.tokenB, log)
	if err != nil {
		return err
	}
	defer func() { _ = b.push.Close() }()

	if err := step(ctx, cfg.timeout, "join A", func(ctx context.Context) error { return a.push.Join(ctx, cfg.convID) }); err != nil {
		return err
	}
	if err := step(ctx, cfg.timeout, "join B", func(ctx context.Context) error { return b.push.Join(ctx, cfg.convID) }); err != nil {
		return err
	}

	clientMsgID, err := ids.NewULID(time.Now())
	if err != nil {
		return fmt.Errorf("client_msg_id: %w", err)
	}

	var sent v1.Message
	err = step(ctx, cfg.timeout, "send", func(ctx context.Context) error {
		var err error
		sent, err = rest.SendMessage(ctx, a.token, cfg.convID, v1.SendMessageRequest{Text: cfg.text, ClientMsgID: clientMsgID})
		return err
	})
	if err != nil {
		return err
	}
	err = step(ctx, cfg.timeout, "announce", func(ctx context.Context) error {
		return a.push.Announce(ctx, v1.MessageSendPayload{
			ConversationID: cfg.convID,
			MessageID:      sent.ID,
			ClientMsgID:    clientMsgID,
			Text:           sent.Text,
			Timestamp:      sent.Timestamp,
		})
	})
	if err != nil {
		return err
	}

	got, err := receive(b.news, cfg.timeout, "B message_new")
	if err != nil {
		return err
	}
	if got.ID != sent.ID || got.Text != cfg.text {
		return fmt.Errorf("B message_new: got id=%s text=%q want id=%s text=%q", got.ID, got.Text, sent.ID, cfg.text)
	}
	if err := awaitStatus(a, sent.ID, v1.StatusDelivered, cfg.timeout); err != nil {
		return err
	}

	if err := step(ctx, cfg.timeout, "mark read", func(ctx context.Context) error { return rest.MarkRead(ctx, b.token, cfg.convID) }); err != nil {
		return err
	}
	if err := awaitStatus(a, sent.ID, v1.StatusRead, cfg.timeout); err != nil {
		return err
	}

	var replay v1.Message
	err = step(ctx, cfg.timeout, "replay", func(ctx context.Context) error {
		var err error
		replay, err = rest.SendMessage(ctx, a.token, cfg.convID, v1.SendMessageRequest{Text: cfg.text, ClientMsgID: clientMsgID})
		return err
	})
	if err != nil {
		return err
	}
	if replay.ID != sent.ID {
		return fmt.Errorf("replay: id mismatch: first=%s second=%s", sent.ID, replay.ID)
	}

	_, _ = fmt.Fprintf(out, "OK: conv_id=%s message_id=%s client_msg_id=%s\n", cfg.convID, sent.ID, clientMsgID)
	return nil
}

func connect(parent context.Context, name string, cfg smokeConfig, token string, log *slog.Logger) (*smokeUser, error) {
	ctx, cancel := context.WithTimeout(parent, cfg.timeout)
	defer cancel()

	opts := []push.Option{push.WithLogger(log.With("client", name))}
	if cfg.origin != "" {
		opts = append(opts, push.WithOrigin(cfg.origin))
	}
	pc, err := push.Dial(ctx, cfg.pushURL, token, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", name, err)
	}

	u := &smokeUser{
		name:     name,
		token:    token,
		push:     pc,
		news:     make(chan v1.Message, 16),
		statuses: make(chan v1.MessageStatusPayload, 16),
	}
	pc.On(v1.TypeMessageNew, func(ev v1.Event) {
		if e, ok := ev.(v1.MessageNewEvent); ok {
			u.news <- e.Message
		}
	})
	pc.On(v1.TypeMessageStatus, func(ev v1.Event) {
		if e, ok := ev.(v1.MessageStatusEvent); ok {
			u.statuses <- e.Status
		}
	})
	return u, nil
}

func step(parent context.Context, timeout time.Duration, what string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		var ev v1.ErrorEvent
		if errors.As(err, &ev) {
			return fmt.Errorf("%s: server error %s", what, ev.Error())
		}
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func receive[T any](ch <-chan T, timeout time.Duration, what string) (T, error) {
	select {
	case v := <-ch:
		return v, nil
	case <-time.After(timeout):
		var zero T
		return zero, fmt.Errorf("timeout waiting for %s", what)
	}
}

func awaitStatus(u *smokeUser, messageID, want string, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		select {
		case st := <-u.statuses:
			if st.MessageID == messageID && st.Status == want {
				return nil
			}
		case <-deadline:
			return fmt.Errorf("timeout waiting for %s status %s on %s", u.name, want, messageID)
		}
	}
}

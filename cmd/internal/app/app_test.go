package app

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"unimatch/cmd/internal/chat"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "port only", in: ":7070", want: "http://127.0.0.1:7070"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWSBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "http://127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
		{in: "https://chat.example.com/", want: "wss://chat.example.com"},
		{in: "127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
		{in: "wss://already.example.com", want: "wss://already.example.com"},
	}

	for _, tc := range cases {
		got := wsBaseURL(tc.in)
		if got != tc.want {
			t.Fatalf("wsBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

// ---- end to end over the dev backend ----

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startDevServer(t *testing.T, cfg ServerConfig) string {
	t.Helper()
	log := discardLogger()
	s := NewDevServer(cfg, log, prometheus.NewRegistry())
	ts := httptest.NewServer(DevServerHandler(s, cfg, log))
	t.Cleanup(ts.Close)
	return ts.URL
}

func newRuntime(t *testing.T, baseURL, userID, token string) *ChatRuntime {
	t.Helper()
	cfg := DefaultConfig().Client
	cfg.BaseURL = baseURL
	cfg.UserID = userID
	cfg.Token = token
	cfg.PollInterval = 20 * time.Millisecond

	rt, err := NewChatRuntime(context.Background(), cfg, discardLogger(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	t.Cleanup(rt.Close)
	return rt
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func findText(msgs []chat.Message, text string) (chat.Message, bool) {
	for _, m := range msgs {
		if m.Text == text {
			return m, true
		}
	}
	return chat.Message{}, false
}

func TestEndToEnd_LiveMode(t *testing.T) {
	t.Parallel()

	base := startDevServer(t, DefaultConfig().Server)
	alice := newRuntime(t, base, "u-alice", "dev-alice")
	bob := newRuntime(t, base, "u-bob", "dev-bob")

	ctx := context.Background()
	av, err := alice.Client.Open(ctx, "dev-room-1")
	if err != nil {
		t.Fatalf("alice open: %v", err)
	}
	bv, err := bob.Client.Open(ctx, "dev-room-1")
	if err != nil {
		t.Fatalf("bob open: %v", err)
	}
	if av.Mode() != chat.ModeLive || bv.Mode() != chat.ModeLive {
		t.Fatalf("modes alice=%s bob=%s want live", av.Mode(), bv.Mode())
	}
	if got := av.Conversation().Participant.DisplayName; got != "Bob" {
		t.Fatalf("participant=%q want=Bob", got)
	}

	sent, err := av.Send(ctx, "  Hello  ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent.IsTemporary() || sent.Text != "Hello" {
		t.Fatalf("sent=%+v", sent)
	}

	eventually(t, "bob to receive the message", func() bool {
		m, ok := findText(bv.Messages(), "Hello")
		return ok && m.ID == sent.ID && !m.IsSent
	})
	eventually(t, "alice to see delivered", func() bool {
		m, ok := findText(av.Messages(), "Hello")
		return ok && m.Status >= chat.StatusDelivered
	})

	if n := len(av.Messages()); n != 1 {
		t.Fatalf("alice messages=%d want=1", n)
	}
	if m := av.Messages()[0]; !m.IsSent || m.ID != sent.ID {
		t.Fatalf("alice message=%+v", m)
	}
}

func TestEndToEnd_PollingWhenPushDisabled(t *testing.T) {
	t.Parallel()

	srv := DefaultConfig().Server
	srv.DisablePush = true
	base := startDevServer(t, srv)

	alice := newRuntime(t, base, "u-alice", "dev-alice")
	bob := newRuntime(t, base, "u-bob", "dev-bob")

	ctx := context.Background()
	av, err := alice.Client.Open(ctx, "dev-room-1")
	if err != nil {
		t.Fatalf("alice open: %v", err)
	}
	if av.Mode() != chat.ModePolling {
		t.Fatalf("mode=%s want polling", av.Mode())
	}
	bv, err := bob.Client.Open(ctx, "dev-room-1")
	if err != nil {
		t.Fatalf("bob open: %v", err)
	}

	if _, err := bv.Send(ctx, "Hi from polling"); err != nil {
		t.Fatalf("send: %v", err)
	}

	eventually(t, "alice to poll the message", func() bool {
		m, ok := findText(av.Messages(), "Hi from polling")
		return ok && !m.IsSent && !m.IsTemporary()
	})
}

func TestNewChatRuntime_RequiresCredentials(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig().Client
	if _, err := NewChatRuntime(context.Background(), cfg, discardLogger(), nil); err == nil {
		t.Fatalf("expected error without token")
	}
	cfg.Token = "t"
	if _, err := NewChatRuntime(context.Background(), cfg, discardLogger(), nil); err == nil {
		t.Fatalf("expected error without user id")
	}
}

func TestChatRuntime_LogoutClearsSession(t *testing.T) {
	t.Parallel()

	base := startDevServer(t, DefaultConfig().Server)
	rt := newRuntime(t, base, "u-alice", "dev-alice")
	if _, err := rt.Client.Open(context.Background(), "dev-room-1"); err != nil {
		t.Fatalf("open: %v", err)
	}

	rt.Logout()

	if _, ok := rt.Session.AccessToken(); ok {
		t.Fatalf("token survived logout")
	}
	if rt.Client.Active() != nil {
		t.Fatalf("view survived logout")
	}
	if _, err := rt.Client.Open(context.Background(), "dev-room-1"); err != chat.ErrNotAuthenticated {
		t.Fatalf("open after logout err=%v want=%v", err, chat.ErrNotAuthenticated)
	}
}

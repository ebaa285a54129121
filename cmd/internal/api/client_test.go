package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	v1 "unimatch/shared/contracts/chat/v1"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL + "/")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient_RejectsBadBase(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "ftp://x", "http://", "::bad"} {
		if _, err := NewClient(raw); err == nil {
			t.Fatalf("NewClient(%q) expected error", raw)
		}
	}
}

func TestFetchMessages(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/conversations/c-1/messages" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization=%q", got)
		}
		_ = json.NewEncoder(w).Encode(v1.MessageList{Messages: []v1.Message{
			{ID: "m-1", SenderID: "u-1", Text: "hi", Timestamp: ts, Status: v1.StatusRead},
		}})
	})

	got, err := c.FetchMessages(context.Background(), "tok", "c-1")
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if len(got) != 1 || got[0].ID != "m-1" || !got[0].Timestamp.Equal(ts) {
		t.Fatalf("messages=%+v", got)
	}
}

func TestSendMessage(t *testing.T) {
	t.Parallel()

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/conversations/c-1/messages" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			t.Errorf("Content-Type=%q", ct)
		}
		var req v1.SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(v1.Message{
			ID: "m-7", ClientMsgID: req.ClientMsgID, Text: req.Text, Timestamp: time.Now().UTC(), Status: v1.StatusSent,
		})
	})

	got, err := c.SendMessage(context.Background(), "tok", "c-1", v1.SendMessageRequest{Text: "yo", ClientMsgID: "cm-1"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got.ID != "m-7" || got.ClientMsgID != "cm-1" || got.Text != "yo" {
		t.Fatalf("message=%+v", got)
	}
}

func TestFetchProfiles(t *testing.T) {
	t.Parallel()

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/profiles" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(v1.ProfileList{Profiles: []v1.Profile{
			{UserID: "u-2", DisplayName: "Sam", Online: true},
		}})
	})

	got, err := c.FetchProfiles(context.Background(), "tok")
	if err != nil {
		t.Fatalf("FetchProfiles: %v", err)
	}
	if len(got) != 1 || got[0].UserID != "u-2" || !got[0].Online {
		t.Fatalf("profiles=%+v", got)
	}
}

func TestSendMessage_RejectsInvalidRecord(t *testing.T) {
	t.Parallel()

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(v1.Message{Text: "no id"})
	})
	if _, err := c.SendMessage(context.Background(), "tok", "c-1", v1.SendMessageRequest{Text: "x"}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestStatusErrors(t *testing.T) {
	t.Parallel()

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/conversations/c-1/read":
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(v1.ErrorResponse{Error: v1.APIError{Code: "unauthorized", Message: "bad token"}})
		default:
			http.NotFound(w, r)
		}
	})

	err := c.MarkRead(context.Background(), "tok", "c-1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err=%v want ErrUnauthorized", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != "unauthorized" || se.Message != "bad token" {
		t.Fatalf("status error=%+v", se)
	}

	_, err = c.FetchConversation(context.Background(), "tok", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestMissingTokenSkipsRequest(t *testing.T) {
	t.Parallel()

	called := false
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	if _, err := c.FetchMessages(context.Background(), "", "c-1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err=%v want ErrUnauthorized", err)
	}
	if called {
		t.Fatalf("request sent without a token")
	}
}

func TestConversationPathEscapes(t *testing.T) {
	t.Parallel()

	if got := conversationPath("a/b", "read"); got != "/v1/conversations/a%2Fb/read" {
		t.Fatalf("path=%q", got)
	}
}

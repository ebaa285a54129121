package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"unimatch/cmd/internal/session"
	v1 "unimatch/shared/contracts/chat/v1"
)

type fakeProfiles struct {
	list  []v1.Profile
	err   error
	token string
}

func (f *fakeProfiles) FetchProfiles(_ context.Context, token string) ([]v1.Profile, error) {
	f.token = token
	return f.list, f.err
}

func TestRunBrowse(t *testing.T) {
	t.Parallel()

	src := &fakeProfiles{list: []v1.Profile{
		{UserID: "u-bob", DisplayName: "Bob", AvatarURL: "https://example.test/bob.png"},
		{UserID: "u-carol"},
	}}

	cases := []struct {
		name  string
		input string
		want  string
		last  string
	}{
		{"walks to the end", "\n\n", "[1/2] Bob (u-bob) https://example.test/bob.png\n[2/2] u-carol (u-carol)\n-- no more profiles\n", ""},
		{"quit early", "q\n", "[1/2] Bob (u-bob) https://example.test/bob.png\n", "u-bob"},
		{"input ends", "", "[1/2] Bob (u-bob) https://example.test/bob.png\n", "u-bob"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sess := session.New("u-alice", "tok")
			var buf bytes.Buffer
			if err := runBrowse(context.Background(), src, sess, strings.NewReader(tc.input), &buf); err != nil {
				t.Fatalf("runBrowse: %v", err)
			}
			if buf.String() != tc.want {
				t.Fatalf("out=%q want=%q", buf.String(), tc.want)
			}
			cur, ok := sess.CurrentProfile()
			if tc.last == "" && ok {
				t.Fatalf("current=%+v want exhausted", cur)
			}
			if tc.last != "" && cur.UserID != tc.last {
				t.Fatalf("current=%q want=%q", cur.UserID, tc.last)
			}
			if len(sess.Profiles()) != 2 {
				t.Fatalf("profiles=%d want=2", len(sess.Profiles()))
			}
		})
	}
}

func TestRunBrowse_RequiresSession(t *testing.T) {
	t.Parallel()

	sess := session.New("u-alice", "tok")
	sess.Clear()
	src := &fakeProfiles{}
	if err := runBrowse(context.Background(), src, sess, strings.NewReader(""), &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for a cleared session")
	}
	if src.token != "" {
		t.Fatalf("profiles fetched without a session")
	}
}

func TestRunBrowse_FetchError(t *testing.T) {
	t.Parallel()

	want := errors.New("offline")
	err := runBrowse(context.Background(), &fakeProfiles{err: want}, session.New("u", "tok"), strings.NewReader(""), &bytes.Buffer{})
	if !errors.Is(err, want) {
		t.Fatalf("err=%v want=%v", err, want)
	}
}

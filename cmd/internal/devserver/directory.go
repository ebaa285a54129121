package devserver

import (
	"errors"
	"fmt"
	"strings"
)

// User is a dev account. Tokens are static and only meant for local use.
type User struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	AvatarURL   string `yaml:"avatar_url"`
	Token       string `yaml:"token"`
}

// Thread is a two-party conversation definition.
type Thread struct {
	ID      string   `yaml:"id"`
	Members []string `yaml:"members"`
}

// Directory is the static user and conversation table of the dev backend.
type Directory struct {
	Users   []User   `yaml:"users"`
	Threads []Thread `yaml:"conversations"`

	byToken map[string]User
	byID    map[string]User
	threads map[string]Thread
}

// DefaultDirectory seeds two users sharing one conversation.
func DefaultDirectory() *Directory {
	d := &Directory{
		Users: []User{
			{ID: "u-alice", DisplayName: "Alice", Token: "dev-alice"},
			{ID: "u-bob", DisplayName: "Bob", Token: "dev-bob"},
		},
		Threads: []Thread{
			{ID: "dev-room-1", Members: []string{"u-alice", "u-bob"}},
		},
	}
	_ = d.Index()
	return d
}

// Index validates the tables and builds lookups. It must be called after
// the directory is populated (DefaultDirectory and the config loader do).
func (d *Directory) Index() error {
	d.byToken = make(map[string]User, len(d.Users))
	d.byID = make(map[string]User, len(d.Users))
	d.threads = make(map[string]Thread, len(d.Threads))

	for _, u := range d.Users {
		u.ID = strings.TrimSpace(u.ID)
		u.Token = strings.TrimSpace(u.Token)
		if u.ID == "" || u.Token == "" {
			return fmt.Errorf("devserver: user %q: id and token are required", u.ID)
		}
		if _, dup := d.byToken[u.Token]; dup {
			return fmt.Errorf("devserver: duplicate token for user %q", u.ID)
		}
		if u.DisplayName == "" {
			u.DisplayName = u.ID
		}
		d.byToken[u.Token] = u
		d.byID[u.ID] = u
	}
	for _, r := range d.Threads {
		if strings.TrimSpace(r.ID) == "" {
			return errors.New("devserver: conversation without id")
		}
		if len(r.Members) != 2 {
			return fmt.Errorf("devserver: conversation %q: want 2 members, got %d", r.ID, len(r.Members))
		}
		for _, m := range r.Members {
			if _, ok := d.byID[m]; !ok {
				return fmt.Errorf("devserver: conversation %q: unknown member %q", r.ID, m)
			}
		}
		d.threads[r.ID] = r
	}
	return nil
}

// Authenticate resolves a bearer token.
func (d *Directory) Authenticate(token string) (User, bool) {
	u, ok := d.byToken[strings.TrimSpace(token)]
	return u, ok
}

// IsMember reports whether userID takes part in conversationID.
func (d *Directory) IsMember(userID, conversationID string) bool {
	r, ok := d.threads[conversationID]
	if !ok {
		return false
	}
	for _, m := range r.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Profiles lists every user except userID, in directory order.
func (d *Directory) Profiles(userID string) []User {
	out := make([]User, 0, len(d.Users))
	for _, raw := range d.Users {
		u, ok := d.byID[strings.TrimSpace(raw.ID)]
		if !ok || u.ID == userID {
			continue
		}
		out = append(out, u)
	}
	return out
}

// Peer returns the other member of a conversation.
func (d *Directory) Peer(userID, conversationID string) (User, bool) {
	r, ok := d.threads[conversationID]
	if !ok {
		return User{}, false
	}
	for _, m := range r.Members {
		if m != userID {
			u, ok := d.byID[m]
			return u, ok
		}
	}
	return User{}, false
}

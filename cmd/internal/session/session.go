// Package session holds the signed-in user's context: the access token the
// chat client authenticates with and the profile list being browsed.
//
// A Session is created at login and passed explicitly to whatever needs it.
// Clear wipes it on logout.
package session

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Profile is a match candidate shown while browsing.
type Profile struct {
	UserID      string
	DisplayName string
	AvatarURL   string
}

// Session is safe for concurrent use.
type Session struct {
	id string

	mu       sync.RWMutex
	userID   string
	token    string
	profiles []Profile
	index    int
}

func New(userID, token string) *Session {
	return &Session{
		id:     uuid.NewString(),
		userID: strings.TrimSpace(userID),
		token:  strings.TrimSpace(token),
	}
}

// ID identifies this login. It does not change on Clear.
func (s *Session) ID() string { return s.id }

// AccessToken returns the bearer token and whether one is present.
func (s *Session) AccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Clear drops the token, the user and the browsed profiles.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = ""
	s.token = ""
	s.profiles = nil
	s.index = 0
}

// SetProfiles replaces the browse list and rewinds to its start.
func (s *Session) SetProfiles(p []Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = append([]Profile(nil), p...)
	s.index = 0
}

func (s *Session) Profiles() []Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Profile(nil), s.profiles...)
}

// CurrentProfile returns the profile at the browse position.
func (s *Session) CurrentProfile() (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index >= len(s.profiles) {
		return Profile{}, false
	}
	return s.profiles[s.index], true
}

// NextProfile advances the browse position and returns the new current profile.
// It reports false once the list is exhausted.
func (s *Session) NextProfile() (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index < len(s.profiles) {
		s.index++
	}
	if s.index >= len(s.profiles) {
		return Profile{}, false
	}
	return s.profiles[s.index], true
}

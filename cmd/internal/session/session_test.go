package session

import (
	"testing"

	"github.com/google/uuid"
)

func TestNew(t *testing.T) {
	t.Parallel()

	s := New(" u-1 ", " tok ")
	if _, err := uuid.Parse(s.ID()); err != nil {
		t.Fatalf("id=%q is not a uuid: %v", s.ID(), err)
	}
	tok, ok := s.AccessToken()
	if !ok || tok != "tok" {
		t.Fatalf("token=%q ok=%v", tok, ok)
	}
	if s.UserID() != "u-1" {
		t.Fatalf("user=%q want=u-1", s.UserID())
	}
	if New("u", "t").ID() == s.ID() {
		t.Fatalf("session ids must differ")
	}
}

func TestClearWipesState(t *testing.T) {
	t.Parallel()

	s := New("u-1", "tok")
	s.SetProfiles([]Profile{{UserID: "p1"}, {UserID: "p2"}})
	id := s.ID()

	s.Clear()

	if _, ok := s.AccessToken(); ok {
		t.Fatalf("token survived Clear")
	}
	if s.UserID() != "" {
		t.Fatalf("user survived Clear")
	}
	if len(s.Profiles()) != 0 {
		t.Fatalf("profiles survived Clear")
	}
	if _, ok := s.CurrentProfile(); ok {
		t.Fatalf("current profile survived Clear")
	}
	if s.ID() != id {
		t.Fatalf("id changed on Clear")
	}
}

func TestProfileBrowsing(t *testing.T) {
	t.Parallel()

	s := New("u-1", "tok")
	if _, ok := s.CurrentProfile(); ok {
		t.Fatalf("empty list has a current profile")
	}

	in := []Profile{{UserID: "p1"}, {UserID: "p2"}}
	s.SetProfiles(in)
	in[0].UserID = "mutated"

	p, ok := s.CurrentProfile()
	if !ok || p.UserID != "p1" {
		t.Fatalf("current=%+v ok=%v want=p1", p, ok)
	}
	p, ok = s.NextProfile()
	if !ok || p.UserID != "p2" {
		t.Fatalf("next=%+v ok=%v want=p2", p, ok)
	}
	if _, ok := s.NextProfile(); ok {
		t.Fatalf("next past the end reported ok")
	}
	if _, ok := s.NextProfile(); ok {
		t.Fatalf("next past the end reported ok twice")
	}

	s.SetProfiles([]Profile{{UserID: "p3"}})
	if p, _ := s.CurrentProfile(); p.UserID != "p3" {
		t.Fatalf("SetProfiles did not rewind: %+v", p)
	}
}

package devserver

import "testing"

func TestDefaultDirectory(t *testing.T) {
	t.Parallel()

	d := DefaultDirectory()

	u, ok := d.Authenticate("dev-alice")
	if !ok || u.ID != "u-alice" {
		t.Fatalf("authenticate=%+v ok=%v", u, ok)
	}
	if _, ok := d.Authenticate("nope"); ok {
		t.Fatalf("unknown token authenticated")
	}
	if !d.IsMember("u-bob", "dev-room-1") {
		t.Fatalf("bob should be a member of dev-room-1")
	}
	if d.IsMember("u-bob", "other") {
		t.Fatalf("bob should not be a member of an unknown room")
	}
	p, ok := d.Peer("u-alice", "dev-room-1")
	if !ok || p.ID != "u-bob" || p.DisplayName != "Bob" {
		t.Fatalf("peer=%+v ok=%v", p, ok)
	}
}

func TestDirectory_IndexValidates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		dir  Directory
	}{
		{"missing token", Directory{Users: []User{{ID: "a"}}}},
		{"duplicate token", Directory{Users: []User{{ID: "a", Token: "t"}, {ID: "b", Token: "t"}}}},
		{"one member", Directory{
			Users:   []User{{ID: "a", Token: "t"}},
			Threads: []Thread{{ID: "c", Members: []string{"a"}}},
		}},
		{"unknown member", Directory{
			Users:   []User{{ID: "a", Token: "t"}},
			Threads: []Thread{{ID: "c", Members: []string{"a", "z"}}},
		}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := tc.dir.Index(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDirectory_DisplayNameDefaultsToID(t *testing.T) {
	t.Parallel()

	d := &Directory{Users: []User{{ID: "a", Token: "t"}}}
	if err := d.Index(); err != nil {
		t.Fatalf("index: %v", err)
	}
	u, _ := d.Authenticate("t")
	if u.DisplayName != "a" {
		t.Fatalf("display name=%q want=a", u.DisplayName)
	}
}

package chat

import "sync"

// Store is the in-memory, ordered message list of one open conversation.
//
// It is read-only to callers. Records are added and changed only by the
// Reconciler that owns the store, which keeps ids unique.
type Store struct {
	mu      sync.RWMutex
	msgs    []Message
	index   map[string]int
	version uint64

	updates chan struct{}
}

func newStore() *Store {
	return &Store{
		index:   make(map[string]int),
		updates: make(chan struct{}, 1),
	}
}

// Messages returns a copy of the current list in display order.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Version increases by one on every mutation that changed the list.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) Get(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return Message{}, false
	}
	return s.msgs[i], true
}

// Updates signals after a change. Signals coalesce: a reader that falls behind
// sees one pending signal and should re-read Messages.
func (s *Store) Updates() <-chan struct{} {
	return s.updates
}

// The helpers below expect s.mu to be held for writing.

func (s *Store) appendLocked(m Message) {
	s.index[m.ID] = len(s.msgs)
	s.msgs = append(s.msgs, m)
	s.changedLocked()
}

func (s *Store) replaceAtLocked(i int, m Message) {
	old := s.msgs[i]
	if old.ID != m.ID {
		delete(s.index, old.ID)
		s.index[m.ID] = i
	}
	s.msgs[i] = m
	s.changedLocked()
}

func (s *Store) removeAtLocked(i int) {
	delete(s.index, s.msgs[i].ID)
	s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
	for j := i; j < len(s.msgs); j++ {
		s.index[s.msgs[j].ID] = j
	}
	s.changedLocked()
}

// resetLocked installs list as the new content. list must already be unique by id.
func (s *Store) resetLocked(list []Message) {
	s.msgs = list
	s.index = make(map[string]int, len(list))
	for i, m := range list {
		s.index[m.ID] = i
	}
	s.changedLocked()
}

func (s *Store) changedLocked() {
	s.version++
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// discard drops all records. Used when the view closes.
func (s *Store) discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.msgs) == 0 {
		return
	}
	s.resetLocked(nil)
}

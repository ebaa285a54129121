package devserver

import (
	"context"
	"errors"
	"sync"
	"time"

	"unimatch/cmd/internal/ids"
	v1 "unimatch/shared/contracts/chat/v1"
)

const memMaxMessagesPerConversation = 10_000

var (
	errInvalidInput = errors.New("invalid input")
	errNotFound     = errors.New("not found")
)

// StoredMessage is the dev backend's record of a message.
type StoredMessage struct {
	ConversationID string
	MessageID      string
	ClientMsgID    string
	SenderID       string
	Seq            int64
	Text           string
	Status         string
	ServerTS       time.Time
}

// Wire converts to the contract representation.
func (m StoredMessage) Wire() v1.Message {
	return v1.Message{
		ID:             m.MessageID,
		ConversationID: m.ConversationID,
		ClientMsgID:    m.ClientMsgID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		Timestamp:      m.ServerTS,
		Status:         m.Status,
	}
}

// AppendInput describes a message append request.
type AppendInput struct {
	ConversationID string
	ClientMsgID    string
	SenderID       string
	Text           string
	Now            time.Time
}

// AppendResult reports the stored record and whether it was a replay.
type AppendResult struct {
	Stored     StoredMessage
	Duplicated bool
}

// MemoryStore keeps messages per conversation. Appends are idempotent per
// (conversation, sender, client_msg_id) and sequence numbers have no gaps.
type MemoryStore struct {
	mu         sync.Mutex
	convs      map[string]*memConv
	maxPerConv int
}

type memConv struct {
	seq    int64
	dedupe map[string]string // sender + client_msg_id -> message id
	index  map[string]int    // message id -> position in msgs
	msgs   []StoredMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string]*memConv), maxPerConv: memMaxMessagesPerConversation}
}

func (s *MemoryStore) conv(id string) *memConv {
	c := s.convs[id]
	if c == nil {
		c = &memConv{
			dedupe: make(map[string]string),
			index:  make(map[string]int),
			msgs:   make([]StoredMessage, 0, 64),
		}
		s.convs[id] = c
	}
	return c
}

// Append stores a message. Replays of a client_msg_id return the original record.
func (s *MemoryStore) Append(ctx context.Context, in AppendInput) (AppendResult, error) {
	if in.ConversationID == "" || in.SenderID == "" || in.Text == "" {
		return AppendResult{}, errInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return AppendResult{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conv(in.ConversationID)

	key := ""
	if in.ClientMsgID != "" {
		key = in.SenderID + "\x00" + in.ClientMsgID
		if id, ok := c.dedupe[key]; ok {
			if i, ok := c.index[id]; ok {
				return AppendResult{Stored: c.msgs[i], Duplicated: true}, nil
			}
		}
	}

	msgID, err := ids.NewULID(now)
	if err != nil {
		return AppendResult{}, err
	}

	c.seq++
	msg := StoredMessage{
		ConversationID: in.ConversationID,
		MessageID:      msgID,
		ClientMsgID:    in.ClientMsgID,
		SenderID:       in.SenderID,
		Seq:            c.seq,
		Text:           in.Text,
		Status:         v1.StatusSent,
		ServerTS:       now.UTC(),
	}
	if key != "" {
		c.dedupe[key] = msgID
	}
	c.index[msgID] = len(c.msgs)
	c.msgs = append(c.msgs, msg)

	// Bound memory in long dev sessions.
	if len(c.msgs) > s.maxPerConv {
		drop := c.msgs[:len(c.msgs)-s.maxPerConv]
		for _, m := range drop {
			delete(c.index, m.MessageID)
			if m.ClientMsgID != "" {
				delete(c.dedupe, m.SenderID+"\x00"+m.ClientMsgID)
			}
		}
		c.msgs = append([]StoredMessage(nil), c.msgs[len(drop):]...)
		for i, m := range c.msgs {
			c.index[m.MessageID] = i
		}
	}

	return AppendResult{Stored: msg}, nil
}

// List returns the conversation's messages ordered by sequence.
func (s *MemoryStore) List(ctx context.Context, conversationID string) ([]StoredMessage, error) {
	if conversationID == "" {
		return nil, errInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.convs[conversationID]
	if c == nil {
		return nil, nil
	}
	return append([]StoredMessage(nil), c.msgs...), nil
}

// Get returns one message.
func (s *MemoryStore) Get(ctx context.Context, conversationID, messageID string) (StoredMessage, error) {
	if err := ctx.Err(); err != nil {
		return StoredMessage{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.convs[conversationID]
	if c == nil {
		return StoredMessage{}, errNotFound
	}
	i, ok := c.index[messageID]
	if !ok {
		return StoredMessage{}, errNotFound
	}
	return c.msgs[i], nil
}

// Advance moves a message forward to status. It returns the updated record and
// whether anything changed; a status at or behind the current one is ignored.
func (s *MemoryStore) Advance(ctx context.Context, conversationID, messageID, status string) (StoredMessage, bool, error) {
	if !v1.ValidStatus(status) {
		return StoredMessage{}, false, errInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return StoredMessage{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.convs[conversationID]
	if c == nil {
		return StoredMessage{}, false, errNotFound
	}
	i, ok := c.index[messageID]
	if !ok {
		return StoredMessage{}, false, errNotFound
	}
	if statusRank(status) <= statusRank(c.msgs[i].Status) {
		return c.msgs[i], false, nil
	}
	c.msgs[i].Status = status
	return c.msgs[i], true, nil
}

// MarkRead moves every message not sent by readerID to read and returns the
// records that changed.
func (s *MemoryStore) MarkRead(ctx context.Context, conversationID, readerID string) ([]StoredMessage, error) {
	if conversationID == "" || readerID == "" {
		return nil, errInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.convs[conversationID]
	if c == nil {
		return nil, nil
	}
	var changed []StoredMessage
	for i := range c.msgs {
		m := &c.msgs[i]
		if m.SenderID == readerID || m.Status == v1.StatusRead {
			continue
		}
		m.Status = v1.StatusRead
		changed = append(changed, *m)
	}
	return changed, nil
}

func statusRank(s string) int {
	switch s {
	case v1.StatusSent:
		return 1
	case v1.StatusDelivered:
		return 2
	case v1.StatusRead:
		return 3
	default:
		return 0
	}
}

package devserver

import (
	"log/slog"
	"sync"

	v1 "unimatch/shared/contracts/chat/v1"
)

// Hub owns the in-memory rooms and tracks which users have a live session.
type Hub struct {
	log     *slog.Logger
	metrics *serverMetrics

	mu     sync.RWMutex
	rooms  map[string]*room
	online map[string]int // user id -> live sessions
}

func newHub(log *slog.Logger, m *serverMetrics) *Hub {
	return &Hub{
		log:     log,
		metrics: m,
		rooms:   make(map[string]*room),
		online:  make(map[string]int),
	}
}

// room returns a stable handle for conversationID.
func (h *Hub) room(conversationID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[conversationID]; ok {
		return r
	}
	r := &room{hub: h, id: conversationID, members: make(map[string]*Peer)}
	h.rooms[conversationID] = r
	return r
}

// lookup returns the room if it exists.
func (h *Hub) lookup(conversationID string) *room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[conversationID]
}

func (h *Hub) connect(p *Peer) {
	h.mu.Lock()
	h.online[p.UserID]++
	h.mu.Unlock()
	h.metrics.sessions.Inc()
}

func (h *Hub) disconnect(p *Peer) {
	h.mu.Lock()
	if n := h.online[p.UserID] - 1; n > 0 {
		h.online[p.UserID] = n
	} else {
		delete(h.online, p.UserID)
	}
	h.mu.Unlock()
	h.metrics.sessions.Dec()
}

// Online reports whether userID has at least one live push session.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.online[userID] > 0
}

// room is the membership and fanout primitive of one conversation.
// join and leave are safe under concurrent broadcast, and broadcast never blocks.
type room struct {
	hub *Hub
	id  string

	mu      sync.RWMutex
	members map[string]*Peer
}

func (r *room) join(p *Peer) {
	r.mu.Lock()
	r.members[p.SessionID] = p
	r.mu.Unlock()

	r.hub.log.Info("room.member.join", "conversation_id", r.id, "session_id", p.SessionID, "user_id", p.UserID)
}

func (r *room) leave(sessionID string) bool {
	r.mu.Lock()
	_, ok := r.members[sessionID]
	delete(r.members, sessionID)
	r.mu.Unlock()

	if ok {
		r.hub.log.Info("room.member.leave", "conversation_id", r.id, "session_id", sessionID)
	}
	return ok
}

// broadcast fans env out to every member except the session exceptSession.
// Members with a full queue miss the frame. Returns the number of deliveries.
func (r *room) broadcast(env v1.Envelope, exceptSession string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for sid, m := range r.members {
		if sid == exceptSession {
			continue
		}
		if m.offer(env) {
			n++
			continue
		}
		r.hub.metrics.dropped.Inc()
	}
	return n
}

// hasOther reports whether a member other than userID is in the room.
func (r *room) hasOther(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.members {
		if m.UserID != userID {
			return true
		}
	}
	return false
}

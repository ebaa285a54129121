package devserver

import (
	"sync"

	v1 "unimatch/shared/contracts/chat/v1"
)

// Peer is one connected push session.
//
// Send is never closed by the server so concurrent broadcasters cannot panic;
// done signals shutdown instead. Close is idempotent.
type Peer struct {
	SessionID string
	UserID    string
	Send      chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

func newPeer(userID, sessionID string, sendQueueSize int) *Peer {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Peer{
		SessionID: sessionID,
		UserID:    userID,
		Send:      make(chan v1.Envelope, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Done is closed when the peer is shutting down.
func (p *Peer) Done() <-chan struct{} {
	if p == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return p.done
}

func (p *Peer) Close() {
	if p == nil {
		return
	}
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

// offer enqueues env without blocking. It reports false when the queue is
// full or the peer is closing.
func (p *Peer) offer(env v1.Envelope) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.Send <- env:
		return true
	default:
		return false
	}
}

package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"unimatch/cmd/internal/ids"
	v1 "unimatch/shared/contracts/chat/v1"

	"github.com/coder/websocket"
)

// handleWS upgrades an authenticated request to a push session and runs its loops.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.pushDisabled {
		s.metrics.rejected.WithLabelValues("disabled").Inc()
		writeError(w, http.StatusServiceUnavailable, "push_disabled", "push channel disabled")
		return
	}
	u, ok := s.authenticate(r)
	if !ok {
		s.metrics.rejected.WithLabelValues("unauthorized").Inc()
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
		return
	}
	if err := s.enforceOrigin(r); err != nil {
		s.metrics.rejected.WithLabelValues("origin").Inc()
		s.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{v1.Subprotocol},
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		s.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		s.metrics.rejected.WithLabelValues("subprotocol").Inc()
		s.log.Info("ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	sessionID, err := ids.NewULID(s.now())
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "session id")
		return
	}
	peer := newPeer(u.ID, sessionID, s.sendQueueSize)
	s.hub.connect(peer)
	defer s.hub.disconnect(peer)

	s.log.Info("ws.session.open", "session_id", sessionID, "user_id", u.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var (
		closeOnce sync.Once
		joinedMu  sync.Mutex
		joined    *room
	)

	// shutdown is idempotent and never closes peer.Send.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			joinedMu.Lock()
			if joined != nil {
				joined.leave(sessionID)
				joined = nil
			}
			joinedMu.Unlock()

			peer.Close()
			_ = conn.Close(code, reason)
			cancel()
			s.log.Info("ws.session.close", "session_id", sessionID, "reason", reason)
		})
	}

	rl := newRateLimiter(s.rateEvents, s.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-peer.Done():
				return
			case env := <-peer.Send:
				if err := writeEnvelope(ctx, conn, env, s.writeTimeout); err != nil {
					s.log.Info("ws.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(s.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-peer.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, s.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					s.log.Info("ws.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= maxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, s.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				s.sendError(peer, "", "bad_json", "invalid JSON")
				continue readLoop
			default:
				s.log.Info("ws.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		if !rl.allow(s.now()) {
			s.sendError(peer, env.ID, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		ev, err := v1.DecodeEvent(env)
		if err != nil {
			s.sendError(peer, env.ID, "bad_envelope", err.Error())
			continue readLoop
		}

		switch e := ev.(type) {
		case v1.RoomEvent:
			joinedMu.Lock()
			joined, err = s.onRoom(peer, joined, env.ID, e)
			joinedMu.Unlock()
			if err != nil {
				s.sendError(peer, env.ID, "join_failed", err.Error())
			}

		case v1.MessageSendEvent:
			joinedMu.Lock()
			cur := joined
			joinedMu.Unlock()
			if cur == nil || cur.id != e.Send.ConversationID {
				s.sendError(peer, env.ID, "not_joined", "join first")
				continue readLoop
			}
			if code, err := s.onMessageSend(ctx, peer, cur, e.Send); err != nil {
				s.sendError(peer, env.ID, code, err.Error())
			}

		default:
			s.sendError(peer, env.ID, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}
}

// ---- handlers ----

// onRoom handles room_join and room_leave. A session is in at most one room:
// joining another room leaves the current one. It returns the new current room.
// Replies reuse the request id so clients can correlate them.
func (s *Server) onRoom(p *Peer, cur *room, replyTo string, e v1.RoomEvent) (*room, error) {
	convID := strings.TrimSpace(e.Room.ConversationID)

	if e.Type == v1.TypeRoomLeave {
		if cur != nil && cur.id == convID {
			cur.leave(p.SessionID)
			cur = nil
		}
		s.reply(p, v1.TypeRoomLeave, replyTo, convID, v1.RoomPayload{ConversationID: convID})
		return cur, nil
	}

	if !s.dir.IsMember(p.UserID, convID) {
		return cur, errors.New("not a member of conversation")
	}

	next := s.hub.room(convID)
	if cur != nil && cur != next {
		cur.leave(p.SessionID)
	}
	next.join(p)

	if !s.reply(p, v1.TypeRoomJoin, replyTo, convID, v1.RoomPayload{ConversationID: convID}) {
		next.leave(p.SessionID)
		return nil, errors.New("backpressure: join echo")
	}
	return next, nil
}

// onMessageSend relays an already persisted message to the other room members
// and moves it to delivered when the recipient is in the room.
func (s *Server) onMessageSend(ctx context.Context, p *Peer, r *room, in v1.MessageSendPayload) (string, error) {
	stored, err := s.store.Get(ctx, r.id, in.MessageID)
	if err != nil {
		return "unknown_message", fmt.Errorf("message %s not found", in.MessageID)
	}
	if stored.SenderID != p.UserID {
		return "forbidden", errors.New("not the sender of this message")
	}

	env, err := v1.NewEnvelope(v1.TypeMessageNew, s.newEnvelopeID(), r.id, stored.Wire(), s.now().UTC())
	if err != nil {
		return "internal", err
	}
	n := r.broadcast(env, p.SessionID)
	s.metrics.relayed.Inc()
	s.log.Debug("ws.message.relay", "conversation_id", r.id, "message_id", stored.MessageID, "deliveries", n)

	if !r.hasOther(p.UserID) {
		return "", nil
	}
	updated, changed, err := s.store.Advance(ctx, r.id, stored.MessageID, v1.StatusDelivered)
	if err != nil {
		return "internal", err
	}
	if changed {
		s.broadcastStatus(updated, "")
	}
	return "", nil
}

// broadcastStatus sends a message_status event for m to its conversation room.
func (s *Server) broadcastStatus(m StoredMessage, exceptSession string) {
	r := s.hub.lookup(m.ConversationID)
	if r == nil {
		return
	}
	env, err := v1.NewEnvelope(v1.TypeMessageStatus, s.newEnvelopeID(), m.ConversationID, v1.MessageStatusPayload{
		ConversationID: m.ConversationID,
		MessageID:      m.MessageID,
		Status:         m.Status,
	}, s.now().UTC())
	if err != nil {
		return
	}
	r.broadcast(env, exceptSession)
	s.metrics.statuses.WithLabelValues(m.Status).Inc()
}

// ---- send helpers ----

func (s *Server) reply(p *Peer, typ, id, convID string, payload any) bool {
	if id == "" {
		id = s.newEnvelopeID()
	}
	env, err := v1.NewEnvelope(typ, id, convID, payload, s.now().UTC())
	if err != nil {
		return false
	}
	return p.offer(env)
}

func (s *Server) sendError(p *Peer, replyTo, code, msg string) {
	_ = s.reply(p, v1.TypeError, replyTo, "", v1.ErrorPayload{Code: code, Message: msg})
}

func (s *Server) newEnvelopeID() string {
	return ids.MustULID(s.now())
}

// ---- envelope IO ----

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return readErrBadJSON
	}
	return readErrUnknown
}

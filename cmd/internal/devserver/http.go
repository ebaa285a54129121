package devserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	v1 "unimatch/shared/contracts/chat/v1"
)

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
		return
	}
	users := s.dir.Profiles(u.ID)
	out := v1.ProfileList{Profiles: make([]v1.Profile, 0, len(users))}
	for _, p := range users {
		out.Profiles = append(out.Profiles, v1.Profile{
			UserID:      p.ID,
			DisplayName: p.DisplayName,
			AvatarURL:   p.AvatarURL,
			Online:      s.hub.Online(p.ID),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	u, convID, ok := s.authorize(w, r)
	if !ok {
		return
	}
	peer, _ := s.dir.Peer(u.ID, convID)
	writeJSON(w, http.StatusOK, v1.Conversation{
		ID: convID,
		Participant: v1.Participant{
			UserID:      peer.ID,
			DisplayName: peer.DisplayName,
			AvatarURL:   peer.AvatarURL,
			Online:      s.hub.Online(peer.ID),
		},
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	_, convID, ok := s.authorize(w, r)
	if !ok {
		return
	}
	stored, err := s.store.List(r.Context(), convID)
	if err != nil {
		s.log.Error("devserver.messages.list.fail", "conversation_id", convID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "list failed")
		return
	}
	out := v1.MessageList{Messages: make([]v1.Message, 0, len(stored))}
	for _, m := range stored {
		out.Messages = append(out.Messages, m.Wire())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	u, convID, ok := s.authorize(w, r)
	if !ok {
		return
	}

	var req v1.SendMessageRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "empty_text", "text is required")
		return
	}
	if utf8.RuneCountInString(text) > maxMessageChars {
		writeError(w, http.StatusBadRequest, "too_long", "message too long")
		return
	}

	res, err := s.store.Append(r.Context(), AppendInput{
		ConversationID: convID,
		ClientMsgID:    strings.TrimSpace(req.ClientMsgID),
		SenderID:       u.ID,
		Text:           text,
		Now:            s.now(),
	})
	if err != nil {
		s.log.Error("devserver.messages.append.fail", "conversation_id", convID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "append failed")
		return
	}

	status := http.StatusCreated
	result := "stored"
	if res.Duplicated {
		status = http.StatusOK
		result = "replayed"
	}
	s.metrics.messages.WithLabelValues(result).Inc()
	writeJSON(w, status, res.Stored.Wire())
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	u, convID, ok := s.authorize(w, r)
	if !ok {
		return
	}
	changed, err := s.store.MarkRead(r.Context(), convID, u.ID)
	if err != nil {
		s.log.Error("devserver.read.fail", "conversation_id", convID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "mark read failed")
		return
	}
	for _, m := range changed {
		s.broadcastStatus(m, "")
	}
	writeJSON(w, http.StatusOK, v1.ReadReceipt{ConversationID: convID, Updated: len(changed)})
}

// authorize resolves the bearer token and checks membership of the {id} conversation.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (User, string, bool) {
	u, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
		return User{}, "", false
	}
	convID := strings.TrimSpace(r.PathValue("id"))
	if convID == "" || !s.dir.IsMember(u.ID, convID) {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		return User{}, "", false
	}
	return u, convID, true
}

func (s *Server) authenticate(r *http.Request) (User, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	token, found := strings.CutPrefix(h, "Bearer ")
	if !found {
		return User{}, false
	}
	return s.dir.Authenticate(token)
}

// ---- JSON helpers ----

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, v1.ErrorResponse{Error: v1.APIError{Code: code, Message: msg}})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}

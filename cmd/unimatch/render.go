package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"unimatch/cmd/internal/chat"

	"github.com/dustin/go-humanize"
)

const (
	ansiReset = "\x1b[0m"
	ansiBold  = "\x1b[1m"
	ansiDim   = "\x1b[2m"
	ansiGreen = "\x1b[32m"
	ansiBlue  = "\x1b[34m"
	ansiCyan  = "\x1b[36m"
)

// renderer prints a conversation incrementally: each message once, then a
// short line whenever one of the user's own messages changes status.
type renderer struct {
	w     io.Writer
	peer  string
	color bool
	seen  map[string]chat.Status
}

func newRenderer(w io.Writer, peer string, color bool) *renderer {
	if strings.TrimSpace(peer) == "" {
		peer = "them"
	}
	return &renderer{w: w, peer: peer, color: color, seen: make(map[string]chat.Status)}
}

func (r *renderer) header(c chat.Conversation, mode chat.Mode) {
	name := c.Participant.DisplayName
	if name == "" {
		name = c.ID
	}
	parts := []string{r.paint(name, ansiBold)}
	if c.Participant.Online {
		parts = append(parts, r.paint("online", ansiGreen))
	}
	if mode != chat.ModeNone {
		parts = append(parts, mode.String())
	}
	fmt.Fprintf(r.w, "== %s\n", strings.Join(parts, " · "))
}

func (r *renderer) sync(msgs []chat.Message, now time.Time) {
	for _, m := range msgs {
		key := messageKey(m)
		prev, ok := r.seen[key]
		switch {
		case !ok:
			fmt.Fprintln(r.w, r.format(m, now))
		case m.IsSent && !m.IsTemporary() && m.Status != prev:
			fmt.Fprintf(r.w, "   %s %s\n", r.glyph(m), r.paint(snippet(m.Text, 24), ansiDim))
		default:
			continue
		}
		r.seen[key] = m.Status
	}
}

func (r *renderer) notice(format string, args ...any) {
	fmt.Fprintf(r.w, "-- "+format+"\n", args...)
}

func (r *renderer) format(m chat.Message, now time.Time) string {
	who := r.paint(r.peer, ansiCyan)
	if m.IsSent {
		who = r.paint("you", ansiGreen)
	}
	line := fmt.Sprintf("[%s] %s: %s", r.paint(relTime(m.Timestamp, now), ansiDim), who, m.Text)
	if m.IsSent {
		line += " " + r.glyph(m)
	}
	return line
}

func (r *renderer) glyph(m chat.Message) string {
	g := statusGlyph(m)
	if m.Status == chat.StatusRead {
		return r.paint(g, ansiBlue)
	}
	return g
}

func (r *renderer) paint(s, code string) string {
	if !r.color {
		return s
	}
	return code + s + ansiReset
}

// statusGlyph is the delivery marker of an outgoing message.
func statusGlyph(m chat.Message) string {
	if m.IsTemporary() {
		return "…"
	}
	switch m.Status {
	case chat.StatusSent:
		return "✓"
	case chat.StatusDelivered:
		return "✓✓"
	case chat.StatusRead:
		return "✓✓ read"
	default:
		return "?"
	}
}

// messageKey survives the temp id to durable id swap.
func messageKey(m chat.Message) string {
	if m.ClientMsgID != "" {
		return "c:" + m.ClientMsgID
	}
	return "i:" + m.ID
}

func relTime(ts, now time.Time) string {
	if ts.IsZero() {
		return "unknown"
	}
	return humanize.RelTime(ts, now, "ago", "from now")
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

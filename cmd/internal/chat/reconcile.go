package chat

import (
	"log/slog"
	"time"
)

// DefaultDuplicateWindow is the timestamp distance under which two messages
// with identical text are treated as the same send.
const DefaultDuplicateWindow = time.Second

// Source names where a candidate came from. It only feeds logs and metrics.
type Source string

const (
	SourceHistory    Source = "history"
	SourcePush       Source = "push"
	SourcePoll       Source = "poll"
	SourceOptimistic Source = "optimistic"
	SourceConfirm    Source = "confirm"
)

const (
	ruleID          = "id"
	ruleTextWindow  = "text_window"
	ruleClientMsgID = "client_msg_id"
)

// StatusResult is the outcome of ApplyStatus.
type StatusResult uint8

const (
	ResultApplied StatusResult = iota
	ResultUnchanged
	ResultUnknownID
	ResultRegressive
	ResultInvalid
)

func (r StatusResult) String() string {
	switch r {
	case ResultApplied:
		return "applied"
	case ResultUnchanged:
		return "unchanged"
	case ResultUnknownID:
		return "unknown_id"
	case ResultRegressive:
		return "regressive"
	case ResultInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Reconciler is the only writer of its Store. Every operation takes the store
// lock for its whole test-and-apply step, so concurrent arrivals for the same
// send are checked against the latest state.
type Reconciler struct {
	store   *Store
	window  time.Duration
	log     *slog.Logger
	metrics *Metrics
}

// NewReconciler returns a reconciler over a fresh, empty store.
func NewReconciler(log *slog.Logger, metrics *Metrics, window time.Duration) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	return &Reconciler{
		store:   newStore(),
		window:  window,
		log:     log,
		metrics: metrics,
	}
}

// Store returns the read-only store this reconciler writes to.
func (r *Reconciler) Store() *Store { return r.store }

// MergeMessage appends m unless an existing record already represents it.
//
// A record matches when it has the same id, the same non-empty ClientMsgID, or
// the same text within the duplicate window. A ClientMsgID match against an
// optimistic record promotes that record to m in place. Reports whether the
// store changed.
//
// Identical text sent twice within the window is indistinguishable from a
// redelivery and the second copy is dropped.
func (r *Reconciler) MergeMessage(src Source, m Message) bool {
	if m.ID == "" {
		r.log.Debug("chat.merge.reject", "source", string(src), "reason", "missing_id")
		return false
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	i, rule := r.findDuplicateLocked(m)
	switch rule {
	case "":
		s.appendLocked(m)
		r.metrics.incMerged(src)
		return true

	case ruleClientMsgID:
		existing := s.msgs[i]
		if existing.IsTemporary() && !m.IsTemporary() {
			s.replaceAtLocked(i, promote(existing, m))
			r.log.Debug("chat.merge.promote", "source", string(src), "temp_id", existing.ID, "message_id", m.ID)
			return true
		}
	}

	r.metrics.incDuplicate(rule)
	r.log.Debug("chat.merge.duplicate", "source", string(src), "message_id", m.ID, "rule", rule)
	return false
}

// findDuplicateLocked returns the index of the record m duplicates and the rule that matched.
func (r *Reconciler) findDuplicateLocked(m Message) (int, string) {
	s := r.store
	if i, ok := s.index[m.ID]; ok {
		return i, ruleID
	}
	if m.ClientMsgID != "" {
		for i, existing := range s.msgs {
			if existing.ClientMsgID == m.ClientMsgID {
				return i, ruleClientMsgID
			}
		}
	}
	for i, existing := range s.msgs {
		if existing.Text == m.Text && absDuration(existing.Timestamp.Sub(m.Timestamp)) < r.window {
			return i, ruleTextWindow
		}
	}
	return -1, ""
}

// MergeBatch reconciles a full re-fetched list. When every incoming id is
// already present the batch is dropped; otherwise it replaces the store
// verbatim. Reports whether a replacement happened.
//
// A batch holding fewer messages than the store still replaces it when any id
// is new; there is no sequence number to tell a stale list from a deletion.
func (r *Reconciler) MergeBatch(src Source, list []Message) bool {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := false
	for _, m := range list {
		if _, ok := s.index[m.ID]; !ok {
			fresh = true
			break
		}
	}
	if !fresh {
		r.metrics.incBatch("noop")
		return false
	}

	next := make([]Message, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, m := range list {
		if m.ID == "" {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		next = append(next, m)
	}
	s.resetLocked(next)

	r.metrics.incBatch("replace")
	r.log.Debug("chat.batch.replace", "source", string(src), "count", len(next))
	return true
}

// Confirm swaps the optimistic record tempID for the persisted message.
//
// If durable is already in the store (a push echo won the race) the optimistic
// record is removed instead. If the optimistic record is gone (a batch replaced
// the store) durable goes through MergeMessage. Reports whether the store changed.
func (r *Reconciler) Confirm(tempID string, durable Message) bool {
	if durable.ID == "" {
		return false
	}

	s := r.store
	s.mu.Lock()
	ti, hasTemp := s.index[tempID]
	_, hasDurable := s.index[durable.ID]

	switch {
	case hasTemp && hasDurable:
		s.removeAtLocked(ti)
		s.mu.Unlock()
		r.log.Debug("chat.confirm.drop_temp", "temp_id", tempID, "message_id", durable.ID)
		return true

	case hasTemp:
		s.replaceAtLocked(ti, promote(s.msgs[ti], durable))
		s.mu.Unlock()
		r.metrics.incMerged(SourceConfirm)
		return true
	}
	s.mu.Unlock()

	return r.MergeMessage(SourceConfirm, durable)
}

// ApplyStatus sets the status of the record with the given id. Unknown ids are
// dropped without error. A status never moves backward.
func (r *Reconciler) ApplyStatus(id string, st Status) StatusResult {
	res := r.applyStatus(id, st)
	r.metrics.incStatus(res)
	if res != ResultApplied {
		r.log.Debug("chat.status.skip", "message_id", id, "status", st.String(), "result", res.String())
	}
	return res
}

func (r *Reconciler) applyStatus(id string, st Status) StatusResult {
	if !st.Valid() {
		return ResultInvalid
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return ResultUnknownID
	}
	cur := s.msgs[i]
	switch {
	case st == cur.Status:
		return ResultUnchanged
	case st < cur.Status:
		return ResultRegressive
	}
	cur.Status = st
	s.replaceAtLocked(i, cur)
	return ResultApplied
}

// discard empties the store.
func (r *Reconciler) discard() {
	r.store.discard()
}

// promote carries the durable identity onto an optimistic record. Server
// timestamp and status win; authorship stays with the local copy.
func promote(local, durable Message) Message {
	out := durable
	out.IsSent = local.IsSent || durable.IsSent
	if out.ClientMsgID == "" {
		out.ClientMsgID = local.ClientMsgID
	}
	if out.Status < local.Status {
		out.Status = local.Status
	}
	if !out.Status.Valid() {
		out.Status = StatusSent
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Package reconcile implements the client-side merge contract for the dual
// transport. A message can reach a client as its own send acknowledgement, a
// room broadcast, a personal-channel notification or a REST response; this
// package guarantees each one renders exactly once, and that an optimistic
// pending message is replaced in place by its server-confirmed counterpart.
package reconcile

import (
	"sort"
	"sync"
	"time"
)

// DefaultWindow is the tolerance for the content heuristic, used only when
// neither a server id nor a tempId is available.
const DefaultWindow = 3 * time.Second

// DefaultPendingTTL bounds how long an optimistic message waits for its
// confirmation before Sweep hands it back to the caller to revert or retry.
const DefaultPendingTTL = 30 * time.Second

// Message is the transport-agnostic view a client holds.
type Message struct {
	ID             uint
	TempID         string
	ConversationID uint
	SenderID       uint
	Content        string
	SentAt         time.Time
	Pending        bool
}

type pendingEntry struct {
	index     int
	trackedAt time.Time
}

// Reconciler is one user's correlation table. Safe for concurrent use by a
// socket reader and a REST response handler.
type Reconciler struct {
	mu         sync.Mutex
	messages   []Message
	byServerID map[uint]int
	pending    map[string]pendingEntry

	window     time.Duration
	pendingTTL time.Duration
}

func New() *Reconciler {
	return &Reconciler{
		byServerID: make(map[uint]int),
		pending:    make(map[string]pendingEntry),
		window:     DefaultWindow,
		pendingTTL: DefaultPendingTTL,
	}
}

// Track renders an optimistic message and remembers its tempId until the
// confirmed counterpart arrives or the TTL expires.
func (r *Reconciler) Track(tempID string, m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m.TempID = tempID
	m.Pending = true
	r.messages = append(r.messages, m)
	r.pending[tempID] = pendingEntry{index: len(r.messages) - 1, trackedAt: time.Now()}
}

// Apply merges an incoming message, in priority order: (1) server id match
// drops a duplicate, (2) tempId match replaces the optimistic message in
// place, (3) the content heuristic catches echoes that carry neither id.
// Returns true when the message list changed.
func (r *Reconciler) Apply(m Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.ID != 0 {
		if _, seen := r.byServerID[m.ID]; seen {
			// An ack for a message whose echo already landed still has to
			// resolve the optimistic copy, or it would sit pending until the
			// sweep even though the confirmed row is rendered.
			if m.TempID != "" {
				if entry, ok := r.pending[m.TempID]; ok {
					delete(r.pending, m.TempID)
					r.removeAt(entry.index)
					return true
				}
			}
			return false
		}
	}

	if m.TempID != "" {
		if entry, ok := r.pending[m.TempID]; ok {
			m.Pending = false
			r.messages[entry.index] = m
			delete(r.pending, m.TempID)
			if m.ID != 0 {
				r.byServerID[m.ID] = entry.index
			}
			return true
		}
	}

	if m.ID == 0 && r.matchesHeuristic(m) {
		return false
	}

	// A confirmed echo can also land before the tempId route: match it
	// against a pending message by content so it replaces rather than
	// duplicates.
	if m.ID != 0 {
		for tempID, entry := range r.pending {
			p := r.messages[entry.index]
			if p.ConversationID == m.ConversationID && p.SenderID == m.SenderID &&
				p.Content == m.Content && within(p.SentAt, m.SentAt, r.window) {
				m.Pending = false
				m.TempID = tempID
				r.messages[entry.index] = m
				delete(r.pending, tempID)
				r.byServerID[m.ID] = entry.index
				return true
			}
		}
	}

	m.Pending = false
	r.messages = append(r.messages, m)
	if m.ID != 0 {
		r.byServerID[m.ID] = len(r.messages) - 1
	}
	return true
}

// removeAt drops one message and shifts the index maps down past it.
func (r *Reconciler) removeAt(index int) {
	r.messages = append(r.messages[:index], r.messages[index+1:]...)
	for id, idx := range r.byServerID {
		switch {
		case idx == index:
			delete(r.byServerID, id)
		case idx > index:
			r.byServerID[id] = idx - 1
		}
	}
	for tempID, entry := range r.pending {
		if entry.index > index {
			entry.index--
			r.pending[tempID] = entry
		}
	}
}

func (r *Reconciler) matchesHeuristic(m Message) bool {
	for i := range r.messages {
		existing := r.messages[i]
		if existing.ConversationID == m.ConversationID && existing.SenderID == m.SenderID &&
			existing.Content == m.Content && within(existing.SentAt, m.SentAt, r.window) {
			return true
		}
	}
	return false
}

func within(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}

// Messages returns the merged view in sentAt order, ties by server id.
func (r *Reconciler) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SentAt.Before(out[j].SentAt)
	})
	return out
}

// Sweep expires pending entries past the TTL and returns their tempIds so
// the caller can revert the stranded optimistic messages. The entries are
// removed from the view.
func (r *Reconciler) Sweep(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []string
	for tempID, entry := range r.pending {
		if now.Sub(entry.trackedAt) > r.pendingTTL {
			expired = append(expired, tempID)
		}
	}
	if len(expired) == 0 {
		return nil
	}

	drop := make(map[int]struct{}, len(expired))
	for _, tempID := range expired {
		drop[r.pending[tempID].index] = struct{}{}
		delete(r.pending, tempID)
	}

	kept := r.messages[:0]
	oldIndex := 0
	newIndexes := make(map[int]int, len(r.messages))
	for i := range r.messages {
		if _, gone := drop[i]; gone {
			continue
		}
		newIndexes[i] = oldIndex
		kept = append(kept, r.messages[i])
		oldIndex++
	}
	r.messages = kept

	for id, idx := range r.byServerID {
		if ni, ok := newIndexes[idx]; ok {
			r.byServerID[id] = ni
		} else {
			delete(r.byServerID, id)
		}
	}
	for tempID, entry := range r.pending {
		if ni, ok := newIndexes[entry.index]; ok {
			entry.index = ni
			r.pending[tempID] = entry
		}
	}
	return expired
}

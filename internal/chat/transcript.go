package chat

import "sort"

// Transcript is the ordered message collection for the active session.
//
// It is not safe for concurrent use. The engine owns one transcript and
// mutates it only from its dispatch loop; callers on other goroutines work
// with snapshots returned by Messages.
//
// Every mutating operation re-applies the ordering law before returning, so
// the store is always consistent even when messages are inserted with
// timestamps captured after an earlier asynchronous insertion.
type Transcript struct {
	msgs []Message
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append inserts a message. If a message with the same ID already exists it
// is replaced wholesale; IDs are unique within a session.
func (t *Transcript) Append(m Message) {
	for i := range t.msgs {
		if t.msgs[i].ID == m.ID {
			t.msgs[i] = m
			t.reorder()
			return
		}
	}
	t.msgs = append(t.msgs, m)
	t.reorder()
}

// Patch applies fn to the message with the given ID. It returns false when no
// such message exists, which callers treat as a stale mutation to discard.
func (t *Transcript) Patch(id string, fn func(*Message)) bool {
	for i := range t.msgs {
		if t.msgs[i].ID == id {
			fn(&t.msgs[i])
			t.reorder()
			return true
		}
	}
	return false
}

// ReplaceAll swaps the whole transcript, e.g. after a history load.
func (t *Transcript) ReplaceAll(msgs []Message) {
	t.msgs = append([]Message(nil), msgs...)
	t.reorder()
}

// Clear removes every message.
func (t *Transcript) Clear() {
	t.msgs = nil
}

// Messages returns a snapshot copy of the transcript.
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int { return len(t.msgs) }

// Get returns the message with the given ID.
func (t *Transcript) Get(id string) (Message, bool) {
	for _, m := range t.msgs {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// Contains reports whether any message satisfies the predicate.
func (t *Transcript) Contains(pred func(Message) bool) bool {
	for _, m := range t.msgs {
		if pred(m) {
			return true
		}
	}
	return false
}

// reorder re-applies the ordering law. The sort is stable so messages that
// compare equal keep their insertion order.
func (t *Transcript) reorder() {
	sort.SliceStable(t.msgs, func(i, j int) bool {
		return t.msgs[i].Before(t.msgs[j])
	})
}

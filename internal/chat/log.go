// Package chat keeps the ordered, origin-tagged text log of the active session.
package chat

import (
	"sync"
	"time"
)

// Origin tells who wrote an entry.
type Origin string

const (
	Local  Origin = "local"
	Remote Origin = "remote"
)

// Entry is one immutable chat line.
type Entry struct {
	ID         uint64 // unique, strictly increasing in insertion order
	Text       string
	Origin     Origin
	SenderID   string // remote entries only
	ReceivedAt time.Time
}

// Log is an append-only list of entries that is wiped on session teardown.
// IDs keep increasing across Clear so an entry id is never reused.
type Log struct {
	limit int
	now   func() time.Time

	mu      sync.RWMutex
	nextID  uint64
	entries []Entry
}

// NewLog creates an empty log. limit caps the number of retained entries,
// dropping the oldest first; 0 keeps everything.
func NewLog(limit int) *Log {
	return &Log{limit: limit, now: time.Now}
}

// Append records text with the given origin and returns the new entry.
func (l *Log) Append(text string, origin Origin) Entry {
	return l.append(text, origin, "")
}

// AppendRemote records a message received from senderID.
func (l *Log) AppendRemote(text, senderID string) Entry {
	return l.append(text, Remote, senderID)
}

func (l *Log) append(text string, origin Origin, senderID string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	e := Entry{
		ID:         l.nextID,
		Text:       text,
		Origin:     origin,
		SenderID:   senderID,
		ReceivedAt: l.now(),
	}
	l.entries = append(l.entries, e)

	if l.limit > 0 && len(l.entries) > l.limit {
		drop := len(l.entries) - l.limit
		l.entries = append(l.entries[:0:0], l.entries[drop:]...)
	}
	return e
}

// Entries returns a copy of the log in arrival order.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear drops every entry.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

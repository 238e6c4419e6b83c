/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

// Package history implements the ordered, append-only state log attached to
// exchange records. Push order is authoritative: entries are never reordered,
// merged or truncated, and the current state is always the last pushed entry.
package history

import (
	"encoding/json"
	"time"
)

// Entry is a single recorded state transition.
type Entry struct {
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is an append-only sequence of state transitions. The zero value is an
// empty log ready for use. Log is not safe for concurrent use; callers
// serialize access through their manager guard.
type Log struct {
	entries []Entry
}

// New returns a log seeded with an initial state.
func New(state string, ts time.Time) *Log {
	l := &Log{}
	l.Push(state, ts)

	return l
}

// Push appends a transition. Duplicates of the current state and entries
// whose reported timestamp precedes the tail are appended as-is: the log
// records what was reported, in the order it was reported.
func (l *Log) Push(state string, ts time.Time) {
	l.entries = append(l.entries, Entry{State: state, Timestamp: ts})
}

// Current returns the most recent entry. The second return is false for an
// empty log.
func (l *Log) Current() (Entry, bool) {
	if len(l.entries) == 0 {
		return Entry{}, false
	}

	return l.entries[len(l.entries)-1], true
}

// CurrentState returns the most recent state tag, or "" for an empty log.
func (l *Log) CurrentState() string {
	e, ok := l.Current()
	if !ok {
		return ""
	}

	return e.State
}

// AsOf returns the prefix of the log whose reported timestamps are not after
// t, in push order. Entries past the first future-dated one are excluded even
// if their own timestamps qualify, since push order, not timestamp order, is
// the log's ordering.
func (l *Log) AsOf(t time.Time) []Entry {
	var i int

	for i = 0; i < len(l.entries); i++ {
		if l.entries[i].Timestamp.After(t) {
			break
		}
	}

	out := make([]Entry, i)
	copy(out, l.entries[:i])

	return out
}

// Entries returns a copy of the full log in push order.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)

	return out
}

// Len returns the number of recorded transitions.
func (l *Log) Len() int {
	return len(l.entries)
}

// MarshalJSON serializes the log as an ordered array of entries.
func (l *Log) MarshalJSON() ([]byte, error) {
	if l.entries == nil {
		return []byte("[]"), nil
	}

	return json.Marshal(l.entries)
}

// UnmarshalJSON restores the log, preserving append order.
func (l *Log) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &l.entries)
}

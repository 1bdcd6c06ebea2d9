// Package ledger keeps the bounded set of record identities already delivered
//
// The ledger is owned by a single poll controller and is not safe for concurrent use
package ledger

import "otprelay/internal/core/sms"

// DefaultCapacity is the number of identities kept when no capacity is configured
const DefaultCapacity = 200

// Ledger is an insertion-ordered identity set bounded to Cap entries
type Ledger struct {
	cap   int
	order []sms.Identity
	index map[sms.Identity]struct{}
}

// New builds a ledger of the given capacity seeded with ids, oldest first
// When ids exceeds the capacity only the newest entries are kept
func New(capacity int, ids []sms.Identity) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Ledger{
		cap:   capacity,
		order: make([]sms.Identity, 0, capacity),
		index: make(map[sms.Identity]struct{}, capacity),
	}
	for _, id := range ids {
		l.Record(id)
	}
	return l
}

// FromStrings is New over persisted string ids
func FromStrings(capacity int, ids []string) *Ledger {
	conv := make([]sms.Identity, 0, len(ids))
	for _, s := range ids {
		if s != "" {
			conv = append(conv, sms.Identity(s))
		}
	}
	return New(capacity, conv)
}

// IsNew reports whether id has not been recorded
func (l *Ledger) IsNew(id sms.Identity) bool {
	_, seen := l.index[id]
	return !seen
}

// Record appends id and returns the identities evicted to stay within capacity
// Recording an id already present is a no-op
func (l *Ledger) Record(id sms.Identity) (evicted []sms.Identity) {
	if !l.IsNew(id) {
		return nil
	}
	l.order = append(l.order, id)
	l.index[id] = struct{}{}
	if over := len(l.order) - l.cap; over > 0 {
		evicted = append(evicted, l.order[:over]...)
		for _, old := range evicted {
			delete(l.index, old)
		}
		l.order = append(l.order[:0], l.order[over:]...)
	}
	return evicted
}

// Snapshot returns a copy of the identities, oldest first
func (l *Ledger) Snapshot() []sms.Identity {
	out := make([]sms.Identity, len(l.order))
	copy(out, l.order)
	return out
}

// Strings is Snapshot as plain strings for persistence
func (l *Ledger) Strings() []string {
	out := make([]string, len(l.order))
	for i, id := range l.order {
		out[i] = string(id)
	}
	return out
}

// Len is the number of identities held
func (l *Ledger) Len() int { return len(l.order) }

// Cap is the configured capacity
func (l *Ledger) Cap() int { return l.cap }

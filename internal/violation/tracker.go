// Package violation tracks per-chat, per-user offense counters that drive
// the escalation ladder. Counters reset lazily: a user whose last violation
// is older than the chat's reset window starts over on their next offense,
// with no background sweep.
package violation

import (
	"sync"
	"time"
)

// Record is one user's standing in one chat.
type Record struct {
	ViolationCount  int
	WarningCount    int
	LastViolationAt time.Time
}

type key struct {
	chatID int64
	userID int64
}

// shardCount must be a power of two; the shard index is a cheap hash of the
// (chat, user) pair.
const shardCount = 32

type shard struct {
	mu      sync.Mutex
	records map[key]*Record
}

// Tracker is a striped-mutex map of violation records. Operations on one
// (chatID, userID) key are linearizable: two rapid-fire violations from the
// same spammer serialize on the shard lock, so counts are never lost or
// doubled. The tracker knows nothing about enforcement actions; it only
// counts.
type Tracker struct {
	shards [shardCount]*shard
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	t := &Tracker{}
	for i := range t.shards {
		t.shards[i] = &shard{records: make(map[key]*Record)}
	}
	return t
}

func (t *Tracker) shardFor(k key) *shard {
	h := uint64(k.chatID)*0x9e3779b97f4a7c15 ^ uint64(k.userID)
	return t.shards[h&(shardCount-1)]
}

// RecordViolation applies the lazy-reset rule, increments the violation
// counter and stamps the violation time. Returns the updated count (1 for a
// fresh or reset record).
func (t *Tracker) RecordViolation(chatID, userID int64, now time.Time, resetWindow time.Duration) int {
	k := key{chatID, userID}
	s := t.shardFor(k)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[k]
	if !ok {
		rec = &Record{}
		s.records[k] = rec
	} else if resetWindow > 0 && now.Sub(rec.LastViolationAt) > resetWindow {
		// Stale history: treat the user as clean before counting this one.
		rec.ViolationCount = 0
		rec.WarningCount = 0
	}

	rec.ViolationCount++
	rec.LastViolationAt = now
	return rec.ViolationCount
}

// RecordWarning increments the warning counter and returns the new value.
// Call after deciding a Warn action so the warn-threshold modes can count
// warnings separately from raw violations.
func (t *Tracker) RecordWarning(chatID, userID int64) int {
	k := key{chatID, userID}
	s := t.shardFor(k)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[k]
	if !ok {
		rec = &Record{}
		s.records[k] = rec
	}
	rec.WarningCount++
	return rec.WarningCount
}

// Reset removes the record entirely. Used after a ban: the ban is terminal
// for escalation purposes, so a re-added user starts the ladder fresh.
func (t *Tracker) Reset(chatID, userID int64) {
	k := key{chatID, userID}
	s := t.shardFor(k)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, k)
}

// Get returns a copy of the user's record, if any.
func (t *Tracker) Get(chatID, userID int64) (Record, bool) {
	k := key{chatID, userID}
	s := t.shardFor(k)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[k]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

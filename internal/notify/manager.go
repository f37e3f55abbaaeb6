// Package notify posts ephemeral system notices to chats and schedules
// their self-deletion. Enforcement notices should inform the room and then
// get out of the way, so each one expires after the chat's configured TTL
// unless the chat opts to keep them.
package notify

import (
	"context"
	"log"
	"sync"
	"time"
)

// retractTimeout bounds the best-effort deletion call when a notice expires.
const retractTimeout = 10 * time.Second

// Sender is the subset of the chat platform API the manager needs.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int64, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// Manager posts notices and owns their expiry timers.
type Manager struct {
	api Sender

	mu     sync.Mutex
	timers map[int64]*time.Timer // message handle -> pending expiry
	closed bool

	onExpired func() // metrics hook, may be nil
}

// NewManager creates a Manager over the given sender.
func NewManager(api Sender) *Manager {
	return &Manager{
		api:    api,
		timers: make(map[int64]*time.Timer),
	}
}

// OnExpired registers a callback invoked after each expiry attempt
// (successful or not). Used for metrics.
func (m *Manager) OnExpired(fn func()) { m.onExpired = fn }

// Post sends the notice and, when expire is true, schedules its deletion
// after ttl. Returns the posted message handle. Expiry is best-effort: if
// the notice was already removed (say, by an admin) the deletion attempt
// fails silently — this path has no externally visible failure mode.
func (m *Manager) Post(ctx context.Context, chatID int64, text string, ttl time.Duration, expire bool) (int64, error) {
	handle, err := m.api.SendMessage(ctx, chatID, text)
	if err != nil {
		return 0, err
	}
	if expire {
		m.ScheduleExpiry(chatID, handle, ttl)
	}
	return handle, nil
}

// ScheduleExpiry arranges deletion of an already-posted message after ttl.
func (m *Manager) ScheduleExpiry(chatID, messageID int64, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.timers[messageID] = time.AfterFunc(ttl, func() {
		m.mu.Lock()
		delete(m.timers, messageID)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), retractTimeout)
		defer cancel()
		if err := m.api.DeleteMessage(ctx, chatID, messageID); err != nil {
			// Already deleted or permission lost — not an error.
			log.Printf("[notify] expire chat=%d msg=%d: %v", chatID, messageID, err)
		}
		if m.onExpired != nil {
			m.onExpired()
		}
	})
}

// Stop cancels all pending expiry timers. Safe to call once at shutdown;
// deletions that already fired keep running to completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, timer := range m.timers {
		timer.Stop()
		delete(m.timers, id)
	}
}

package quiet

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// TickInterval is how often the scheduler re-evaluates every chat's window.
// State is recomputed from the wall clock each tick, so a delayed or skipped
// tick self-corrects on the next one.
const TickInterval = 60 * time.Second

// Announcer is the subset of the chat platform API the scheduler needs to
// post and retract curfew announcements.
type Announcer interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int64, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// WindowSource yields the quiet-hours window for every chat that has one
// configured. The policy store implements this.
type WindowSource interface {
	QuietWindows() map[int64]Window
}

// chatState tracks whether a chat is currently inside its window and the
// announcement message posted on entry, so it can be retracted on exit.
type chatState struct {
	active bool
	handle int64
}

// Scheduler drives quiet-hours transitions for all chats. It is ephemeral
// state only: the wall clock plus each chat's configured window is the
// source of truth.
type Scheduler struct {
	source   WindowSource
	api      Announcer
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	states map[int64]*chatState
}

// NewScheduler creates a Scheduler over the given policy source and
// announcement API.
func NewScheduler(source WindowSource, api Announcer) *Scheduler {
	return &Scheduler{
		source:   source,
		api:      api,
		interval: TickInterval,
		now:      time.Now,
		states:   make(map[int64]*chatState),
	}
}

// Run evaluates all chats every TickInterval until ctx is cancelled.
// It performs one immediate evaluation before the first tick so restarts
// converge without waiting a full interval.
func (s *Scheduler) Run(ctx context.Context) {
	s.Tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[quiet] scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick recomputes every configured chat's quiet state and applies
// transitions. Exported so the engine's wiring can force an evaluation after
// an admin changes a window.
func (s *Scheduler) Tick(ctx context.Context) {
	windows := s.source.QuietWindows()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Chats whose window was removed fall out of quiet mode.
	for chatID, st := range s.states {
		if _, ok := windows[chatID]; !ok {
			if st.active {
				s.deactivate(ctx, chatID, st)
			}
			delete(s.states, chatID)
		}
	}

	for chatID, w := range windows {
		st, ok := s.states[chatID]
		if !ok {
			st = &chatState{}
			s.states[chatID] = st
		}

		isQuiet := w.Contains(now)
		switch {
		case isQuiet && !st.active:
			s.activate(ctx, chatID, st, w)
		case !isQuiet && st.active:
			s.deactivate(ctx, chatID, st)
		}
	}
}

// IsQuiet reports whether the scheduler currently considers the chat inside
// its quiet window. The message-intake gate evaluates the window directly
// against the wall clock; this accessor exists for status endpoints.
func (s *Scheduler) IsQuiet(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[chatID]
	return ok && st.active
}

func (s *Scheduler) activate(ctx context.Context, chatID int64, st *chatState, w Window) {
	st.active = true
	text := fmt.Sprintf("🌙 Quiet hours are in effect (%s). Messages from members will be removed until the window ends.", w)
	handle, err := s.api.SendMessage(ctx, chatID, text)
	if err != nil {
		// The chat is still quiet; we just have nothing to retract later.
		log.Printf("[quiet] announce chat=%d failed: %v", chatID, err)
		st.handle = 0
		return
	}
	st.handle = handle
	log.Printf("[quiet] chat=%d entered quiet hours (%s)", chatID, w)
}

func (s *Scheduler) deactivate(ctx context.Context, chatID int64, st *chatState) {
	if st.handle != 0 {
		if err := s.api.DeleteMessage(ctx, chatID, st.handle); err != nil {
			log.Printf("[quiet] retract announcement chat=%d msg=%d failed: %v", chatID, st.handle, err)
		}
	}
	st.active = false
	st.handle = 0
	log.Printf("[quiet] chat=%d left quiet hours", chatID)
}

package policy

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/qloooooop1/guardian/internal/quiet"
)

// Persister is the storage collaborator behind the Store. The Store loads
// everything once at startup and saves a chat's policy after every mutation;
// the medium (Redis, file, database) is the persister's business.
type Persister interface {
	LoadAll(ctx context.Context) (map[int64]*ChatPolicy, error)
	Save(ctx context.Context, chatID int64, pol *ChatPolicy) error
}

// NopPersister discards writes and loads nothing. Used in tests and when
// running without a backing store.
type NopPersister struct{}

func (NopPersister) LoadAll(context.Context) (map[int64]*ChatPolicy, error) { return nil, nil }
func (NopPersister) Save(context.Context, int64, *ChatPolicy) error         { return nil }

// Store holds every chat's policy in memory with per-store locking.
// Reads return deep copies, so a concurrent Update can never expose a
// half-applied mutation to a reader.
type Store struct {
	mu        sync.RWMutex
	policies  map[int64]*ChatPolicy
	persister Persister
}

// NewStore creates a Store over the given persister.
func NewStore(p Persister) *Store {
	if p == nil {
		p = NopPersister{}
	}
	return &Store{
		policies:  make(map[int64]*ChatPolicy),
		persister: p,
	}
}

// Load populates the store from the persister. Call once at startup.
func (s *Store) Load(ctx context.Context) error {
	loaded, err := s.persister.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("policy: load: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for chatID, pol := range loaded {
		pol.normalize()
		s.policies[chatID] = pol
	}
	log.Printf("[policy] loaded %d chat policies", len(loaded))
	return nil
}

// Get returns a snapshot of the chat's policy, creating it with defaults on
// first access.
func (s *Store) Get(chatID int64) *ChatPolicy {
	s.mu.RLock()
	pol, ok := s.policies[chatID]
	if ok {
		defer s.mu.RUnlock()
		return pol.Clone()
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if pol, ok = s.policies[chatID]; !ok {
		pol = Default()
		s.policies[chatID] = pol
	}
	return pol.Clone()
}

// Update applies an admin mutation to the chat's policy atomically and saves
// the result. The mutator runs under the store lock; readers see either the
// old policy or the fully mutated one, never an intermediate state.
func (s *Store) Update(ctx context.Context, chatID int64, mutate func(*ChatPolicy)) error {
	s.mu.Lock()
	pol, ok := s.policies[chatID]
	if !ok {
		pol = Default()
		s.policies[chatID] = pol
	}
	mutate(pol)
	pol.normalize()
	snapshot := pol.Clone()
	s.mu.Unlock()

	if err := s.persister.Save(ctx, chatID, snapshot); err != nil {
		return fmt.Errorf("policy: save chat=%d: %w", chatID, err)
	}
	return nil
}

// QuietWindows returns the quiet-hours window of every chat that has one
// configured. Implements quiet.WindowSource.
func (s *Store) QuietWindows() map[int64]quiet.Window {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]quiet.Window)
	for chatID, pol := range s.policies {
		if pol.QuietHours != nil {
			out[chatID] = *pol.QuietHours
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Admin configuration surface
// ---------------------------------------------------------------------------

// SetMode changes the chat's enforcement mode.
func (s *Store) SetMode(ctx context.Context, chatID int64, mode Mode) error {
	if !ValidModes[mode] {
		return fmt.Errorf("policy: unknown mode %q", mode)
	}
	return s.Update(ctx, chatID, func(p *ChatPolicy) { p.Mode = mode })
}

// SetMuteDuration changes how long a Mute action silences the user, in
// seconds.
func (s *Store) SetMuteDuration(ctx context.Context, chatID int64, seconds int64) error {
	if seconds < 0 {
		return fmt.Errorf("policy: mute duration must be >= 0, got %d", seconds)
	}
	return s.Update(ctx, chatID, func(p *ChatPolicy) { p.MuteDuration = seconds })
}

// AddKeyword adds a banned keyword (case-insensitive substring match).
func (s *Store) AddKeyword(ctx context.Context, chatID int64, keyword string) error {
	return s.Update(ctx, chatID, func(p *ChatPolicy) {
		p.BannedKeywords = appendUnique(p.BannedKeywords, keyword)
	})
}

// RemoveKeyword removes a banned keyword.
func (s *Store) RemoveKeyword(ctx context.Context, chatID int64, keyword string) error {
	return s.Update(ctx, chatID, func(p *ChatPolicy) {
		p.BannedKeywords = remove(p.BannedKeywords, keyword)
	})
}

// AddLinkFragment adds a banned link fragment.
func (s *Store) AddLinkFragment(ctx context.Context, chatID int64, fragment string) error {
	return s.Update(ctx, chatID, func(p *ChatPolicy) {
		p.BannedLinkFragments = appendUnique(p.BannedLinkFragments, fragment)
	})
}

// RemoveLinkFragment removes a banned link fragment.
func (s *Store) RemoveLinkFragment(ctx context.Context, chatID int64, fragment string) error {
	return s.Update(ctx, chatID, func(p *ChatPolicy) {
		p.BannedLinkFragments = remove(p.BannedLinkFragments, fragment)
	})
}

// SetQuietHours configures the daily quiet window.
func (s *Store) SetQuietHours(ctx context.Context, chatID int64, w quiet.Window) error {
	return s.Update(ctx, chatID, func(p *ChatPolicy) { p.QuietHours = &w })
}

// DisableQuietHours removes the quiet window.
func (s *Store) DisableQuietHours(ctx context.Context, chatID int64) error {
	return s.Update(ctx, chatID, func(p *ChatPolicy) { p.QuietHours = nil })
}

// ExemptUser excludes a user from classification and enforcement.
func (s *Store) ExemptUser(ctx context.Context, chatID, userID int64) error {
	return s.Update(ctx, chatID, func(p *ChatPolicy) {
		for _, id := range p.ExemptUserIDs {
			if id == userID {
				return
			}
		}
		p.ExemptUserIDs = append(p.ExemptUserIDs, userID)
	})
}

// UnexemptUser removes a user's exemption.
func (s *Store) UnexemptUser(ctx context.Context, chatID, userID int64) error {
	return s.Update(ctx, chatID, func(p *ChatPolicy) {
		out := p.ExemptUserIDs[:0]
		for _, id := range p.ExemptUserIDs {
			if id != userID {
				out = append(out, id)
			}
		}
		p.ExemptUserIDs = out
	})
}

// SetNotificationTTL changes how long enforcement notices live, in seconds.
// Pass TTLPersist to keep them forever.
func (s *Store) SetNotificationTTL(ctx context.Context, chatID int64, seconds int64) error {
	if seconds != TTLPersist && seconds <= 0 {
		return fmt.Errorf("policy: notification ttl must be positive or TTLPersist, got %d", seconds)
	}
	return s.Update(ctx, chatID, func(p *ChatPolicy) { p.NotificationTTL = seconds })
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

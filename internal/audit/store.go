// Package audit provides PostgreSQL-backed storage for the enforcement log.
// Each row records one enforcement decision: who violated what in which
// chat, the fragment that matched, and the action taken. Moderators query
// this log when members dispute a ban.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Entry is one enforcement decision to be persisted.
type Entry struct {
	EventID string // gateway event id, for correlating with service logs
	ChatID  int64
	UserID  int64
	Kind    string // classifier reason kind
	Matched string // offending fragment, may be empty
	Action  string // enforcement action taken
}

// Store manages the enforcement log in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates an audit store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert appends one enforcement-log row.
func (s *Store) Insert(ctx context.Context, e *Entry) error {
	const query = `
		INSERT INTO enforcement_log (event_id, chat_id, user_id, reason_kind, matched_text, action)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		e.EventID, e.ChatID, e.UserID, e.Kind, e.Matched, e.Action)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// CountRecent returns the number of enforcement actions in a chat within the
// given window. Useful for spotting chats under a spam wave.
func (s *Store) CountRecent(ctx context.Context, chatID int64, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM enforcement_log
		WHERE chat_id = $1
		  AND created_at >= NOW() - ($2 * INTERVAL '1 second')`

	var count int
	err := s.db.QueryRowContext(ctx, query, chatID, int64(window.Seconds())).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("audit: count recent: %w", err)
	}
	return count, nil
}

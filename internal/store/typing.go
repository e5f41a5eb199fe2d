package store

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/driftpro/internal/bus"
	"github.com/matheus3301/driftpro/internal/chat"
)

// StaleTyping is how old a typing record may get before it is reported as
// not typing. It covers clients that went away without clearing their flag.
const StaleTyping = time.Minute

// SetTyping records userID's typing flag in chatID.
func (db *DB) SetTyping(ctx context.Context, chatID, userID string, typing bool) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO typing (chat_id, user_id, is_typing, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET
			is_typing = excluded.is_typing,
			updated_at = excluded.updated_at`,
		chatID, userID, typing, now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set typing: %w", err)
	}
	db.announce(bus.TypingTopic(chatID))
	return nil
}

// ListTyping returns every typing record in chatID.
func (db *DB) ListTyping(ctx context.Context, chatID string) ([]chat.TypingState, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT user_id, is_typing, updated_at FROM typing
		WHERE chat_id = ?
		ORDER BY user_id`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cutoff := now().Add(-StaleTyping)
	var states []chat.TypingState
	for rows.Next() {
		var (
			s       = chat.TypingState{ChatID: chatID}
			updated int64
		)
		if err := rows.Scan(&s.UserID, &s.Typing, &updated); err != nil {
			return nil, err
		}
		s.UpdatedAt = time.UnixMilli(updated)
		if s.UpdatedAt.Before(cutoff) {
			s.Typing = false
		}
		states = append(states, s)
	}
	return states, rows.Err()
}

package store

import (
	"context"
	"strings"

	"github.com/matheus3301/driftpro/internal/chat"
)

// SearchMessages finds messages whose text contains query, case-insensitively,
// newest first. An empty chatID searches every chat.
func (db *DB) SearchMessages(ctx context.Context, query, chatID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT ` + messageColumns + `
		FROM messages m
		WHERE m.text LIKE ? ESCAPE '\'`

	args := []any{"%" + escapeLike(query) + "%"}
	if chatID != "" {
		q += " AND m.chat_id = ?"
		args = append(args, chatID)
	}
	q += " ORDER BY m.created_at DESC, m.rowid DESC LIMIT ?"
	args = append(args, limit)

	return db.queryMessages(ctx, q, args...)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

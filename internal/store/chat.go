package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/driftpro/internal/bus"
	"github.com/matheus3301/driftpro/internal/chat"
)

// now is the store clock.
var now = time.Now

// CreateChat inserts a chat and its participants. An empty ID gets a new one.
func (db *DB) CreateChat(ctx context.Context, c chat.Chat) (string, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chats (id, company_id, name, last_message, last_message_at, last_message_sender, last_message_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CompanyID, c.Name, c.Summary.LastMessage, millis(c.Summary.LastMessageAt),
		c.Summary.LastMessageSender, string(c.Summary.LastMessageStatus), now().UnixMilli()); err != nil {
		return "", fmt.Errorf("insert chat: %w", err)
	}
	for i, u := range c.Participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO chat_participants (chat_id, user_id, position) VALUES (?, ?, ?)`, c.ID, u, i); err != nil {
			return "", fmt.Errorf("insert participant: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	db.announce(bus.ChatsTopic)
	return c.ID, nil
}

// UpdateSummary overwrites the chat's latest-message fields.
func (db *DB) UpdateSummary(ctx context.Context, chatID string, s chat.Summary) error {
	res, err := db.ExecContext(ctx, `
		UPDATE chats SET
			last_message = ?,
			last_message_at = ?,
			last_message_sender = ?,
			last_message_status = ?
		WHERE id = ?`,
		s.LastMessage, millis(s.LastMessageAt), s.LastMessageSender, string(s.LastMessageStatus), chatID)
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chat %s: %w", chatID, chat.ErrNotFound)
	}
	db.announce(bus.ChatsTopic)
	return nil
}

// ListChats returns a company's chats, most recently active first.
func (db *DB) ListChats(ctx context.Context, companyID string) ([]chat.Chat, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, company_id, name, last_message, last_message_at, last_message_sender, last_message_status,
			COALESCE((SELECT group_concat(user_id, char(31)) FROM (SELECT user_id FROM chat_participants WHERE chat_id = c.id ORDER BY position)), '')
		FROM chats c
		WHERE company_id = ?
		ORDER BY last_message_at DESC, created_at DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []chat.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by id, or chat.ErrNotFound.
func (db *DB) GetChat(ctx context.Context, chatID string) (chat.Chat, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, company_id, name, last_message, last_message_at, last_message_sender, last_message_status,
			COALESCE((SELECT group_concat(user_id, char(31)) FROM (SELECT user_id FROM chat_participants WHERE chat_id = c.id ORDER BY position)), '')
		FROM chats c
		WHERE id = ?`, chatID)
	c, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Chat{}, fmt.Errorf("chat %s: %w", chatID, chat.ErrNotFound)
	}
	return c, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(s scanner) (chat.Chat, error) {
	var (
		c            chat.Chat
		lastAt       int64
		status       string
		participants string
	)
	if err := s.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Summary.LastMessage, &lastAt,
		&c.Summary.LastMessageSender, &status, &participants); err != nil {
		return chat.Chat{}, err
	}
	if lastAt > 0 {
		c.Summary.LastMessageAt = time.UnixMilli(lastAt)
	}
	c.Summary.LastMessageStatus = chat.Status(status)
	c.Participants = splitSet(participants)
	return c, nil
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

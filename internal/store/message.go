package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/driftpro/internal/bus"
	"github.com/matheus3301/driftpro/internal/chat"
)

const messageColumns = `m.id, m.chat_id, m.status, m.doc,
	COALESCE((SELECT group_concat(user_id, char(31)) FROM (SELECT user_id FROM message_readers WHERE message_id = m.id ORDER BY read_at, user_id)), ''),
	COALESCE((SELECT group_concat(user_id, char(31)) FROM (SELECT user_id FROM message_deliveries WHERE message_id = m.id ORDER BY delivered_at, user_id)), '')`

// AddMessage inserts m under a new id and returns the id. Reader and
// delivery sets on m seed the relational sets.
func (db *DB) AddMessage(ctx context.Context, m chat.Message) (string, error) {
	if m.ChatID == "" {
		return "", errors.New("add message: empty chat id")
	}
	m.ID = uuid.NewString()
	if m.Status == "" {
		m.Status = chat.StatusSent
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	doc, err := json.Marshal(m.ToDocument())
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, text, status, created_at, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChatID, m.SenderID, m.Text, string(m.Status), m.CreatedAt.UnixMilli(), string(doc)); err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	ts := m.CreatedAt.UnixMilli()
	for _, u := range m.ReadBy {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO message_readers (message_id, user_id, read_at) VALUES (?, ?, ?)`, m.ID, u, ts); err != nil {
			return "", fmt.Errorf("insert reader: %w", err)
		}
	}
	for _, u := range m.DeliveredTo {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO message_deliveries (message_id, user_id, delivered_at) VALUES (?, ?, ?)`, m.ID, u, ts); err != nil {
			return "", fmt.Errorf("insert delivery: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	db.announce(bus.MessagesTopic(m.ChatID))
	return m.ID, nil
}

// ListMessages returns a chat's messages ascending by creation time, ties in
// insertion order.
func (db *DB) ListMessages(ctx context.Context, chatID string) ([]chat.Message, error) {
	return db.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.chat_id = ?
		ORDER BY m.created_at, m.rowid`, chatID)
}

// MessagesNotFrom returns the chat's messages authored by anyone but userID.
func (db *DB) MessagesNotFrom(ctx context.Context, chatID, userID string) ([]chat.Message, error) {
	return db.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.chat_id = ? AND m.sender_id != ?
		ORDER BY m.created_at, m.rowid`, chatID, userID)
}

// GetMessage returns one message, or chat.ErrNotFound.
func (db *DB) GetMessage(ctx context.Context, chatID, messageID string) (chat.Message, error) {
	msgs, err := db.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.chat_id = ? AND m.id = ?`, chatID, messageID)
	if err != nil {
		return chat.Message{}, err
	}
	if len(msgs) == 0 {
		return chat.Message{}, fmt.Errorf("message %s: %w", messageID, chat.ErrNotFound)
	}
	return msgs[0], nil
}

// AddReader adds userID to the message's reader set. Adding an existing
// reader changes nothing and publishes no change.
func (db *DB) AddReader(ctx context.Context, chatID, messageID, userID string) error {
	if err := db.messageExists(ctx, chatID, messageID); err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO message_readers (message_id, user_id, read_at) VALUES (?, ?, ?)`,
		messageID, userID, now().UnixMilli())
	if err != nil {
		return fmt.Errorf("add reader: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		db.announce(bus.MessagesTopic(chatID))
	}
	return nil
}

// AdvanceStatus moves the message's status forward. Setting the current
// status again is a no-op; moving backwards returns chat.ErrInvalidTransition.
func (db *DB) AdvanceStatus(ctx context.Context, chatID, messageID string, to chat.Status) error {
	if !to.Valid() {
		return fmt.Errorf("unknown status %q: %w", to, chat.ErrInvalidTransition)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM messages WHERE chat_id = ? AND id = ?`, chatID, messageID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("message %s: %w", messageID, chat.ErrNotFound)
	}
	if err != nil {
		return err
	}
	from := chat.Status(current)
	if from == to {
		return nil
	}
	if !from.CanAdvance(to) {
		return fmt.Errorf("%s -> %s: %w", from, to, chat.ErrInvalidTransition)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE messages SET status = ? WHERE id = ?`, string(to), messageID); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	db.announce(bus.MessagesTopic(chatID))
	return nil
}

// DeleteMessage hard-deletes one message.
func (db *DB) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ? AND id = ?`, chatID, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %s: %w", messageID, chat.ErrNotFound)
	}
	db.announce(bus.MessagesTopic(chatID))
	return nil
}

func (db *DB) messageExists(ctx context.Context, chatID, messageID string) error {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE chat_id = ? AND id = ?`, chatID, messageID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("message %s: %w", messageID, chat.ErrNotFound)
	}
	return err
}

func (db *DB) queryMessages(ctx context.Context, query string, args ...any) ([]chat.Message, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []chat.Message
	for rows.Next() {
		var id, chatID, status, raw, readers, deliveries string
		if err := rows.Scan(&id, &chatID, &status, &raw, &readers, &deliveries); err != nil {
			return nil, err
		}
		msgs = append(msgs, decodeMessage(id, chatID, status, raw, readers, deliveries))
	}
	return msgs, rows.Err()
}

// decodeMessage projects a row into a message. A corrupt doc yields a message
// with only the indexed fields rather than an error.
func decodeMessage(id, chatID, status, raw, readers, deliveries string) chat.Message {
	doc := chat.Document{}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	_ = dec.Decode(&doc)

	m := chat.MessageFromDocument(id, doc)
	m.ChatID = chatID
	m.Status = chat.Status(status)
	m.ReadBy = splitSet(readers)
	m.DeliveredTo = splitSet(deliveries)
	return m
}

func splitSet(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\x1f")
}

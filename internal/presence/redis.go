// Package presence keeps typing flags in Redis: one expiring key per typist
// plus a pub/sub channel per chat that announces changes.
package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/matheus3301/driftpro/internal/chat"
)

// KeyTTL bounds how long a typing flag outlives a client that never cleared it.
const KeyTTL = time.Minute

// refreshEvery re-reads the snapshot so expired keys drop out of watchers
// even when nobody publishes.
const refreshEvery = 15 * time.Second

// RedisTyping is a chat.TypingStore backed by a go-redis v9 client.
type RedisTyping struct {
	client *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

var _ chat.TypingStore = (*RedisTyping)(nil)

// NewRedisTyping connects to url (redis://...) and verifies the connection.
func NewRedisTyping(url string, logger *zap.Logger) (*RedisTyping, error) {
	if url == "" {
		return nil, errors.New("redis: empty url")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisTyping{client: c, logger: logger, now: time.Now}, nil
}

// Close releases the client.
func (r *RedisTyping) Close() error {
	return r.client.Close()
}

func typingKey(chatID, userID string) string {
	return "typing:" + chatID + ":" + userID
}

// globEscaper quotes the characters SCAN MATCH treats as wildcards.
var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

func typingPattern(chatID string) string {
	return "typing:" + globEscaper.Replace(chatID) + ":*"
}

// ErrChatID rejects chat ids that would make the key space ambiguous:
// "typing:a:b:c" could be chat "a" user "b:c" or chat "a:b" user "c".
var ErrChatID = errors.New("redis: chat id must not contain ':'")

func checkChatID(chatID string) error {
	if chatID == "" || strings.Contains(chatID, ":") {
		return fmt.Errorf("%w: %q", ErrChatID, chatID)
	}
	return nil
}

func typingChannel(chatID string) string {
	return "typing-events:" + chatID
}

// SetTyping stores or clears userID's flag and announces the change.
func (r *RedisTyping) SetTyping(ctx context.Context, chatID, userID string, typing bool) error {
	if err := checkChatID(chatID); err != nil {
		return err
	}
	key := typingKey(chatID, userID)
	pipe := r.client.TxPipeline()
	if typing {
		pipe.Set(ctx, key, strconv.FormatInt(r.now().UnixMilli(), 10), KeyTTL)
	} else {
		pipe.Del(ctx, key)
	}
	pipe.Publish(ctx, typingChannel(chatID), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set typing: %w", err)
	}
	return nil
}

// ListTyping returns one record per user currently flagged as typing.
func (r *RedisTyping) ListTyping(ctx context.Context, chatID string) ([]chat.TypingState, error) {
	if err := checkChatID(chatID); err != nil {
		return nil, err
	}
	var keys []string
	iter := r.client.Scan(ctx, 0, typingPattern(chatID), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: scan typing: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read typing: %w", err)
	}
	prefix := typingKey(chatID, "")
	states := make([]chat.TypingState, 0, len(keys))
	for i, key := range keys {
		// Expired between SCAN and MGET.
		if vals[i] == nil {
			continue
		}
		states = append(states, decodeState(chatID, strings.TrimPrefix(key, prefix), vals[i]))
	}
	return states, nil
}

func decodeState(chatID, userID string, val any) chat.TypingState {
	s := chat.TypingState{ChatID: chatID, UserID: userID, Typing: true}
	if raw, ok := val.(string); ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			s.UpdatedAt = time.UnixMilli(ms)
		}
	}
	return s
}

// WatchTyping delivers the chat's typing records now, after every announced
// change and periodically so expired flags disappear.
func (r *RedisTyping) WatchTyping(ctx context.Context, chatID string) (<-chan chat.TypingSnapshot, error) {
	if err := checkChatID(chatID); err != nil {
		return nil, err
	}
	sub := r.client.Subscribe(ctx, typingChannel(chatID))
	// Wait for the subscription so changes made after this call are seen.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis: subscribe typing: %w", err)
	}

	out := make(chan chat.TypingSnapshot, 1)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		msgs := sub.Channel()
		ticker := time.NewTicker(refreshEvery)
		defer ticker.Stop()
		for {
			states, err := r.ListTyping(ctx, chatID)
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- chat.TypingSnapshot{States: states, Err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				r.logger.Warn("typing snapshot failed", zap.String("chat_id", chatID), zap.Error(err))
				return
			}

			select {
			case _, ok := <-msgs:
				if !ok {
					return
				}
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

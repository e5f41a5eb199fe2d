package store

import (
	"context"

	"github.com/matheus3301/driftpro/internal/bus"
	"github.com/matheus3301/driftpro/internal/chat"
)

// feedBuffer bounds queued change events per watcher. Overflow is harmless:
// a watcher with a full buffer already has a refresh pending.
const feedBuffer = 16

// WatchMessages delivers the chat's full ordered message list now and again
// after every write to it. The channel closes when ctx ends or after a
// snapshot carrying a query error.
func (db *DB) WatchMessages(ctx context.Context, chatID string) (<-chan chat.MessageSnapshot, error) {
	out := make(chan chat.MessageSnapshot, 1)
	go watch(ctx, db.feed, bus.MessagesTopic(chatID), out, func() chat.MessageSnapshot {
		msgs, err := db.ListMessages(ctx, chatID)
		return chat.MessageSnapshot{Messages: msgs, Err: err}
	}, func(s chat.MessageSnapshot) bool { return s.Err != nil })
	return out, nil
}

// WatchTyping delivers the chat's typing records now and after every change.
func (db *DB) WatchTyping(ctx context.Context, chatID string) (<-chan chat.TypingSnapshot, error) {
	out := make(chan chat.TypingSnapshot, 1)
	go watch(ctx, db.feed, bus.TypingTopic(chatID), out, func() chat.TypingSnapshot {
		states, err := db.ListTyping(ctx, chatID)
		return chat.TypingSnapshot{States: states, Err: err}
	}, func(s chat.TypingSnapshot) bool { return s.Err != nil })
	return out, nil
}

// watch subscribes before the first query so no write between the two is
// missed, then re-queries once per burst of change events.
func watch[T any](ctx context.Context, feed *bus.Bus, topic string, out chan<- T, query func() T, failed func(T) bool) {
	defer close(out)
	events, cancel := feed.Subscribe(topic, feedBuffer)
	defer cancel()

	for {
		snap := query()
		if ctx.Err() != nil {
			return
		}
		select {
		case out <- snap:
		case <-ctx.Done():
			return
		}
		if failed(snap) {
			return
		}

		select {
		case <-events:
		case <-ctx.Done():
			return
		}
	drain:
		for {
			select {
			case <-events:
			default:
				break drain
			}
		}
	}
}

package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/matheus3301/driftpro/internal/chat"
)

func testRedis(t *testing.T) (*RedisTyping, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedisTyping("redis://"+mr.Addr(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func typists(t *testing.T, r *RedisTyping, chatID string) []string {
	t.Helper()
	states, err := r.ListTyping(context.Background(), chatID)
	if err != nil {
		t.Fatal(err)
	}
	var users []string
	for _, s := range states {
		if s.Typing {
			users = append(users, s.UserID)
		}
	}
	return users
}

func TestKeyLayout(t *testing.T) {
	if got := typingKey("c1", "u2"); got != "typing:c1:u2" {
		t.Errorf("typingKey = %q", got)
	}
	if got := typingPattern("c1"); got != "typing:c1:*" {
		t.Errorf("typingPattern = %q", got)
	}
	if got := typingPattern(`c*?[1]\`); got != `typing:c\*\?\[1\]\\:*` {
		t.Errorf("typingPattern with wildcards = %q", got)
	}
	// The channel must not match the key pattern, or SCAN would return it.
	if got := typingChannel("c1"); got == typingKey("c1", "") {
		t.Errorf("channel %q collides with key space", got)
	}
}

func TestDecodeState(t *testing.T) {
	s := decodeState("c1", "u2", "1700000000000")
	if !s.Typing || s.UserID != "u2" || s.ChatID != "c1" {
		t.Errorf("state = %+v", s)
	}
	if !s.UpdatedAt.Equal(time.UnixMilli(1_700_000_000_000)) {
		t.Errorf("updatedAt = %v", s.UpdatedAt)
	}

	s = decodeState("c1", "u2", "garbage")
	if !s.Typing || !s.UpdatedAt.IsZero() {
		t.Errorf("malformed value state = %+v, want typing with zero time", s)
	}
}

func TestNewRedisTypingRejectsBadURL(t *testing.T) {
	if _, err := NewRedisTyping("", nil); err == nil {
		t.Error("expected error for empty url")
	}
	if _, err := NewRedisTyping("http://not-redis", nil); err == nil {
		t.Error("expected error for non-redis scheme")
	}
	// Nothing listens on port 1.
	if _, err := NewRedisTyping("redis://127.0.0.1:1/0", nil); err == nil {
		t.Error("expected ping error for unreachable server")
	}
}

func TestSetTypingRoundTrip(t *testing.T) {
	r, _ := testRedis(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return at }

	if err := r.SetTyping(ctx, "c1", "u2", true); err != nil {
		t.Fatal(err)
	}
	states, err := r.ListTyping(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 1 || states[0].UserID != "u2" || !states[0].Typing || !states[0].UpdatedAt.Equal(at) {
		t.Fatalf("states = %+v, want u2 typing since %v", states, at)
	}
	if !chat.PeerTyping(states, "u1") {
		t.Error("PeerTyping = false with u2 typing")
	}

	if err := r.SetTyping(ctx, "c1", "u2", false); err != nil {
		t.Fatal(err)
	}
	if got := typists(t, r, "c1"); len(got) != 0 {
		t.Errorf("typists after clear = %v, want none", got)
	}
}

func TestTypingKeyExpires(t *testing.T) {
	r, mr := testRedis(t)
	if err := r.SetTyping(context.Background(), "c1", "u2", true); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL(typingKey("c1", "u2")); ttl != KeyTTL {
		t.Errorf("ttl = %v, want %v", ttl, KeyTTL)
	}

	mr.FastForward(KeyTTL - time.Second)
	if got := typists(t, r, "c1"); len(got) != 1 {
		t.Fatalf("typists before expiry = %v, want [u2]", got)
	}
	mr.FastForward(2 * time.Second)
	if got := typists(t, r, "c1"); len(got) != 0 {
		t.Errorf("typists after expiry = %v, want none", got)
	}
}

func TestListTypingStaysInsideChat(t *testing.T) {
	r, mr := testRedis(t)
	ctx := context.Background()
	for _, chatID := range []string{"c1", "c10", "c*"} {
		if err := r.SetTyping(ctx, chatID, "u-"+chatID, true); err != nil {
			t.Fatal(err)
		}
	}
	// A key written by some other client under a nested id.
	if err := mr.Set("typing:c1:x:u2", "1"); err != nil {
		t.Fatal(err)
	}

	if got := typists(t, r, "c*"); len(got) != 1 || got[0] != "u-c*" {
		t.Errorf("typists in c* = %v, want [u-c*]", got)
	}
	got := typists(t, r, "c1")
	if len(got) != 2 || got[0] == "u-c10" || got[1] == "u-c10" {
		t.Errorf("typists in c1 = %v, want u-c1 and the nested key only", got)
	}
}

func TestChatIDWithColonRejected(t *testing.T) {
	r, _ := testRedis(t)
	ctx := context.Background()
	if err := r.SetTyping(ctx, "c1:x", "u2", true); !errors.Is(err, ErrChatID) {
		t.Errorf("SetTyping error = %v, want ErrChatID", err)
	}
	if _, err := r.ListTyping(ctx, "c1:x"); !errors.Is(err, ErrChatID) {
		t.Errorf("ListTyping error = %v, want ErrChatID", err)
	}
	if _, err := r.WatchTyping(ctx, ""); !errors.Is(err, ErrChatID) {
		t.Errorf("WatchTyping error = %v, want ErrChatID", err)
	}
}

func TestWatchTypingSeesChanges(t *testing.T) {
	r, _ := testRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := r.WatchTyping(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	recv := func() chat.TypingSnapshot {
		t.Helper()
		select {
		case snap, ok := <-ch:
			if !ok {
				t.Fatal("watch closed early")
			}
			if snap.Err != nil {
				t.Fatal(snap.Err)
			}
			return snap
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot")
		}
		return chat.TypingSnapshot{}
	}

	if snap := recv(); len(snap.States) != 0 {
		t.Fatalf("initial snapshot = %+v, want empty", snap.States)
	}

	if err := r.SetTyping(ctx, "c1", "u2", true); err != nil {
		t.Fatal(err)
	}
	if snap := recv(); !chat.PeerTyping(snap.States, "u1") {
		t.Errorf("snapshot after set = %+v, want u2 typing", snap.States)
	}

	if err := r.SetTyping(ctx, "c1", "u2", false); err != nil {
		t.Fatal(err)
	}
	if snap := recv(); chat.PeerTyping(snap.States, "u1") {
		t.Errorf("snapshot after clear = %+v, want nobody typing", snap.States)
	}

	cancel()
	select {
	case _, ok := <-ch:
		for ok {
			_, ok = <-ch
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not close after cancel")
	}
}

package client

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/driftpro/internal/api"
	"github.com/matheus3301/driftpro/internal/chat"
	"github.com/matheus3301/driftpro/internal/store"
	"google.golang.org/grpc"
)

// startDaemon serves a fresh store on a Unix socket and returns a client for
// it plus the server, so tests can stop it early.
func startDaemon(t *testing.T) (*Client, *grpc.Server, *store.DB) {
	t.Helper()
	// Use a short path to avoid macOS 104-char Unix socket limit.
	tmpDir, err := os.MkdirTemp("/tmp", "drift-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	db, err := store.Open(filepath.Join(tmpDir, "driftpro.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	srv := grpc.NewServer()
	api.Register(srv, api.NewService(db, nil, api.Info{Profile: "test", Presence: "sqlite", Started: time.Now()}, nil))
	socketPath := filepath.Join(tmpDir, "d.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(listener) }()
	t.Cleanup(srv.Stop)

	c, err := New(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, srv, db
}

func TestRemoteStoreRoundTrip(t *testing.T) {
	c, _, _ := startDaemon(t)
	ctx := context.Background()

	chatID, err := c.CreateChat(ctx, chat.Chat{CompanyID: "co", Name: "Ops", Participants: []string{"u1", "u2"}})
	if err != nil {
		t.Fatalf("CreateChat error = %v", err)
	}

	created := time.UnixMilli(1_700_000_000_000)
	id, err := c.AddMessage(ctx, chat.Message{
		ChatID: chatID, SenderID: "u1", SenderName: "Ana", Text: "hi",
		CreatedAt: created, Status: chat.StatusSent, MessageType: chat.TypeText,
		Location: &chat.Location{Latitude: 1.25, Name: "HQ"},
	})
	if err != nil {
		t.Fatalf("AddMessage error = %v", err)
	}

	msgs, err := c.ListMessages(ctx, chatID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != id || msgs[0].Text != "hi" || !msgs[0].CreatedAt.Equal(created) {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[0].Location == nil || msgs[0].Location.Latitude != 1.25 {
		t.Errorf("location = %+v", msgs[0].Location)
	}

	if err := c.AddReader(ctx, chatID, id, "u2"); err != nil {
		t.Fatal(err)
	}
	unread, err := c.MessagesNotFrom(ctx, chatID, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if len(unread) != 1 || !unread[0].ReadByUser("u2") {
		t.Errorf("messagesNotFrom = %+v", unread)
	}

	if err := c.AdvanceStatus(ctx, chatID, id, chat.StatusRead); err != nil {
		t.Fatal(err)
	}
	if err := c.AdvanceStatus(ctx, chatID, id, chat.StatusSent); !errors.Is(err, chat.ErrInvalidTransition) {
		t.Errorf("backwards status err = %v, want ErrInvalidTransition", err)
	}

	sum := chat.Summary{LastMessage: "hi", LastMessageAt: created, LastMessageSender: "Ana", LastMessageStatus: chat.StatusSent}
	if err := c.UpdateSummary(ctx, chatID, sum); err != nil {
		t.Fatal(err)
	}
	chats, err := c.ListChats(ctx, "co")
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 || chats[0].Summary.LastMessage != "hi" || len(chats[0].Participants) != 2 {
		t.Errorf("chats = %+v", chats)
	}
	got, err := c.GetChat(ctx, chatID)
	if err != nil || got.Name != "Ops" {
		t.Errorf("GetChat = %+v, %v", got, err)
	}

	found, err := c.SearchMessages(ctx, "HI", "", 10)
	if err != nil || len(found) != 1 {
		t.Errorf("search = %+v, %v", found, err)
	}

	if err := c.DeleteMessage(ctx, chatID, id); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteMessage(ctx, chatID, id); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
	if _, err := c.GetChat(ctx, "missing"); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("missing chat err = %v, want ErrNotFound", err)
	}

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Profile != "test" || st.Presence != "sqlite" {
		t.Errorf("status = %+v", st)
	}
}

func TestRemoteWatchMessages(t *testing.T) {
	c, _, _ := startDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := c.WatchMessages(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if snap := <-ch; snap.Err != nil || len(snap.Messages) != 0 {
		t.Fatalf("initial snapshot = %+v", snap)
	}

	if _, err := c.AddMessage(ctx, chat.Message{ChatID: "c1", SenderID: "u1", Text: "live"}); err != nil {
		t.Fatal(err)
	}
	select {
	case snap := <-ch:
		if len(snap.Messages) != 1 || snap.Messages[0].Text != "live" {
			t.Errorf("snapshot = %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestRemoteWatchTyping(t *testing.T) {
	c, _, _ := startDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := c.WatchTyping(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	<-ch
	if err := c.SetTyping(ctx, "c1", "u2", true); err != nil {
		t.Fatal(err)
	}
	select {
	case snap := <-ch:
		if !chat.PeerTyping(snap.States, "u1") {
			t.Errorf("states = %+v, want u2 typing", snap.States)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for typing snapshot")
	}
}

// TestWatchReportsDaemonShutdown verifies a feed cut by the daemon surfaces
// as an error snapshot so the timeline can resubscribe.
func TestWatchReportsDaemonShutdown(t *testing.T) {
	c, srv, _ := startDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := c.WatchMessages(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	<-ch
	srv.Stop()

	select {
	case snap, ok := <-ch:
		if !ok || snap.Err == nil {
			t.Errorf("got %+v (open=%v), want an error snapshot", snap, ok)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after shutdown")
	}
}

// TestSessionOverDaemon drives a chat session against the remote store, the
// way the terminal UI does.
func TestSessionOverDaemon(t *testing.T) {
	c, _, db := startDaemon(t)
	ctx := context.Background()
	chatID, err := c.CreateChat(ctx, chat.Chat{CompanyID: "co", Name: "Ops"})
	if err != nil {
		t.Fatal(err)
	}
	hi, err := db.AddMessage(ctx, chat.Message{ChatID: chatID, SenderID: "u1", SenderName: "Ana", Text: "hi"})
	if err != nil {
		t.Fatal(err)
	}

	s, err := chat.NewSession(chat.Config{ChatID: chatID, PeerName: "Ana"}, chat.Deps{
		Messages: c,
		Typing:   c,
		User:     chat.User{ID: "u2", DisplayName: "Bo", CompanyID: "co"},
		View:     nopView{},
	})
	if err != nil {
		t.Fatal(err)
	}
	s.Open(ctx)
	defer s.Close()

	s.RequestReply(chat.Message{ID: hi, SenderName: "Ana", Text: "hi"})
	if _, err := s.Send(ctx, "hello"); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(ctx, chatID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[1].ReplyToMessageID != hi || msgs[1].Status != chat.StatusSent {
		t.Fatalf("messages = %+v", msgs)
	}
	got, err := db.GetChat(ctx, chatID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Summary.LastMessage != "hello" {
		t.Errorf("summary = %+v, want lastMessage hello", got.Summary)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m, _ := db.GetMessage(ctx, chatID, hi); m.ReadByUser("u2") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("opening the session did not mark the peer's message read")
}

type nopView struct{}

func (nopView) RenderMessages([]chat.Message, int) {}
func (nopView) SetTypingIndicator(bool, string)    {}
func (nopView) ShowReplyPreview(string)            {}
func (nopView) HideReplyPreview()                  {}
func (nopView) ClearCompose()                      {}
func (nopView) Notify(string)                      {}
func (nopView) SetSyncLost(bool)                   {}
func (nopView) Confirm(_ string, onConfirm func()) { onConfirm() }

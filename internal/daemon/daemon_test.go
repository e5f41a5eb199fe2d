package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/driftpro/internal/api"
	"github.com/matheus3301/driftpro/internal/chat"
	"github.com/matheus3301/driftpro/internal/config"
	"github.com/matheus3301/driftpro/internal/lock"
	"github.com/matheus3301/driftpro/internal/profile"
	"github.com/matheus3301/driftpro/internal/store"
	"github.com/matheus3301/driftpro/internal/tui/client"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// testHome points DRIFTPRO_HOME at a short /tmp dir (macOS 104-char socket
// limit) and returns it.
func testHome(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "drift-d-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	t.Setenv("DRIFTPRO_HOME", dir)
	return dir
}

func TestDaemonLifecycle(t *testing.T) {
	home := testHome(t)
	socketPath := filepath.Join(home, "d.sock")

	app := fx.New(
		Module(Params{Profile: "test", Config: &config.Config{}, SocketPath: socketPath, Logger: zap.NewNop()}),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		t.Fatalf("fx graph error = %v", err)
	}
	startCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		t.Fatal(err)
	}

	c, err := client.New(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status error = %v", err)
	}
	if st.Profile != "test" || st.Presence != "sqlite" {
		t.Errorf("status = %+v, want profile test on sqlite", st)
	}

	chatID, err := c.CreateChat(ctx, chat.Chat{CompanyID: "co", Name: "Ops"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.AddMessage(ctx, chat.Message{ChatID: chatID, SenderID: "u1", Text: "hello"}); err != nil {
		t.Fatal(err)
	}

	// Keep a watch open so shutdown must cut a live stream.
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	feed, err := c.WatchMessages(watchCtx, chatID)
	if err != nil {
		t.Fatal(err)
	}
	if snap := <-feed; len(snap.Messages) != 1 {
		t.Errorf("watch snapshot = %+v, want 1 message", snap)
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket still present after stop: %v", err)
	}
	// The lock must be free again.
	lk, err := lock.Acquire(profile.Dir("test"))
	if err != nil {
		t.Fatalf("lock not released: %v", err)
	}
	_ = lk.Release()

	// Data written through the daemon is in the profile database.
	db, err := store.Open(profile.DBPath("test"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	msgs, err := db.ListMessages(ctx, chatID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Text != "hello" {
		t.Errorf("persisted messages = %+v", msgs)
	}
}

// TestSecondDaemonRefused verifies the profile lock keeps a second daemon
// from opening the same database.
func TestSecondDaemonRefused(t *testing.T) {
	home := testHome(t)

	first := fx.New(
		Module(Params{Profile: "solo", SocketPath: filepath.Join(home, "a.sock"), Logger: zap.NewNop()}),
		fx.NopLogger,
	)
	if err := first.Err(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := first.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = first.Stop(ctx) }()

	second := fx.New(
		Module(Params{Profile: "solo", SocketPath: filepath.Join(home, "b.sock"), Logger: zap.NewNop()}),
		fx.NopLogger,
	)
	if second.Err() == nil {
		t.Fatal("second daemon on the same profile should fail to build")
	}
}

// TestUnreachableRedisFailsStartup verifies a configured but unreachable
// presence backend is reported instead of silently falling back.
func TestUnreachableRedisFailsStartup(t *testing.T) {
	home := testHome(t)
	cfg := &config.Config{Presence: config.Presence{RedisURL: "redis://127.0.0.1:1/0"}}

	app := fx.New(
		Module(Params{Profile: "redis", Config: cfg, SocketPath: filepath.Join(home, "r.sock"), Logger: zap.NewNop()}),
		fx.NopLogger,
	)
	if app.Err() == nil {
		t.Fatal("expected startup error for unreachable redis")
	}
}

// TestNewServerRemovesStaleSocket verifies a leftover socket file from a
// crashed daemon does not block startup.
func TestNewServerRemovesStaleSocket(t *testing.T) {
	home := testHome(t)
	socketPath := filepath.Join(home, "stale.sock")
	if err := os.WriteFile(socketPath, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	db, err := store.Open(filepath.Join(home, "s.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	srv, err := NewServer(Params{Profile: "stale", SocketPath: socketPath}, zap.NewNop(), api.NewService(db, nil, api.Info{}, nil))
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		t.Errorf("mode = %v, want a socket", info.Mode())
	}
	srv.Stop(context.Background())
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/matheus3301/driftpro/internal/chat"
	"github.com/matheus3301/driftpro/internal/config"
	"github.com/matheus3301/driftpro/internal/logging"
	"github.com/matheus3301/driftpro/internal/profile"
	"github.com/matheus3301/driftpro/internal/tui"
	"github.com/matheus3301/driftpro/internal/tui/client"
	"go.uber.org/zap"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		fatal(err)
	}
	if cfg.User.ID == "" {
		fatal(errors.New("no user configured; run: driftctl init <user-id> <display-name>"))
	}

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fatal(err)
	}
	if err := profile.EnsureDir(name); err != nil {
		fatal(err)
	}

	// The terminal belongs to tview, so logs only go to the file.
	logger, err := logging.NewFileOnly(profile.LogPath(name, "drifttui"), name)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	socketPath := profile.SocketPath(name)

	// Probe daemon health; auto-start if needed.
	if !probeDaemon(socketPath) {
		fmt.Fprintf(os.Stderr, "daemon not running for profile %q, starting...\n", name)
		if err := startDaemon(name); err != nil {
			fatal(fmt.Errorf("failed to start daemon: %w", err))
		}
		if !waitForDaemon(socketPath, 10*time.Second) {
			fatal(errors.New("daemon did not become ready"))
		}
	}

	c, err := client.New(socketPath)
	if err != nil {
		fatal(fmt.Errorf("connect to daemon: %w", err))
	}
	defer func() { _ = c.Close() }()

	app := tui.NewApp(c, tui.Options{
		Profile: name,
		User: chat.User{
			ID:          cfg.User.ID,
			DisplayName: cfg.User.DisplayName,
			CompanyID:   cfg.User.CompanyID,
		},
		TypingQuiet: cfg.Chat.TypingQuiet(),
		Backoff:     chat.Backoff{Min: cfg.Chat.ResubscribeMin(), Max: cfg.Chat.ResubscribeMax()},
		Logger:      logger,
	})
	logger.Info("tui started", zap.String("user_id", cfg.User.ID))
	if err := app.Run(); err != nil {
		fatal(err)
	}
}

// probeDaemon checks if a daemon is running and responsive on the socket.
func probeDaemon(socketPath string) bool {
	c, err := client.New(socketPath)
	if err != nil {
		return false
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = c.Status(ctx)
	return err == nil
}

func startDaemon(name string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	driftd := filepath.Join(filepath.Dir(executable), "driftd")

	if _, err := os.Stat(driftd); err != nil {
		driftd = "driftd"
	}

	cmd := exec.Command(driftd, "--profile", name)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

// waitForDaemon polls the daemon with a real status call (not just socket connect).
func waitForDaemon(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if probeDaemon(socketPath) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

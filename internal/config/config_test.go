package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{
		DefaultProfile: "work",
		User:           User{ID: "u1", DisplayName: "Kari", CompanyID: "company1"},
		Chat:           Chat{TypingQuietMs: 1500},
		Presence:       Presence{RedisURL: "redis://localhost:6379/0"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if loaded.User != cfg.User {
		t.Errorf("User = %+v, want %+v", loaded.User, cfg.User)
	}
	if loaded.Presence.RedisURL != cfg.Presence.RedisURL {
		t.Errorf("RedisURL = %q, want %q", loaded.Presence.RedisURL, cfg.Presence.RedisURL)
	}
	if got := loaded.Chat.TypingQuiet(); got != 1500*time.Millisecond {
		t.Errorf("TypingQuiet() = %v, want 1.5s", got)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadOrDefaultMissing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.DefaultProfile != "" {
		t.Errorf("DefaultProfile = %q, want empty", cfg.DefaultProfile)
	}
}

func TestChatDefaults(t *testing.T) {
	var c Chat
	if got := c.TypingQuiet(); got != 2*time.Second {
		t.Errorf("TypingQuiet() = %v, want 2s", got)
	}
	if got := c.ResubscribeMin(); got != 250*time.Millisecond {
		t.Errorf("ResubscribeMin() = %v, want 250ms", got)
	}
	if got := c.ResubscribeMax(); got != 30*time.Second {
		t.Errorf("ResubscribeMax() = %v, want 30s", got)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultProfile: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

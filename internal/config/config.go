package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.driftpro/config.toml.
type Config struct {
	DefaultProfile string   `toml:"default_profile"`
	User           User     `toml:"user"`
	Chat           Chat     `toml:"chat"`
	Presence       Presence `toml:"presence"`
}

// User is the signed-in identity used when composing messages.
type User struct {
	ID          string `toml:"id"`
	DisplayName string `toml:"display_name"`
	CompanyID   string `toml:"company_id"`
}

// Chat holds chat session tuning.
type Chat struct {
	TypingQuietMs    int `toml:"typing_quiet_ms"`
	ResubscribeMinMs int `toml:"resubscribe_min_ms"`
	ResubscribeMaxMs int `toml:"resubscribe_max_ms"`
}

// Presence selects the typing-presence backend. Empty RedisURL keeps typing
// records in the SQLite store.
type Presence struct {
	RedisURL string `toml:"redis_url"`
}

const (
	defaultTypingQuiet    = 2 * time.Second
	defaultResubscribeMin = 250 * time.Millisecond
	defaultResubscribeMax = 30 * time.Second
)

// TypingQuiet returns the typing debounce period.
func (c Chat) TypingQuiet() time.Duration {
	return msOr(c.TypingQuietMs, defaultTypingQuiet)
}

// ResubscribeMin returns the first resubscribe delay after a lost feed.
func (c Chat) ResubscribeMin() time.Duration {
	return msOr(c.ResubscribeMinMs, defaultResubscribeMin)
}

// ResubscribeMax caps the resubscribe delay.
func (c Chat) ResubscribeMax() time.Duration {
	return msOr(c.ResubscribeMaxMs, defaultResubscribeMax)
}

func msOr(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// Load reads config from the given path. Returns nil config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads config from path, falling back to a zero config when
// the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

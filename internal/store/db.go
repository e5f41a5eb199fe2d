package store

import (
	"database/sql"
	"fmt"

	"github.com/matheus3301/driftpro/internal/bus"
	"github.com/matheus3301/driftpro/internal/chat"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite database connection for the app-owned driftpro.db. Every
// write publishes on the change feed so live queries can refresh.
type DB struct {
	*sql.DB
	feed *bus.Bus
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
// Writes are announced on feed; a nil feed gets a private bus.
func Open(path string, feed *bus.Bus) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if feed == nil {
		feed = bus.New()
	}
	return &DB{DB: db, feed: feed}, nil
}

// Feed returns the bus writes are announced on.
func (db *DB) Feed() *bus.Bus {
	return db.feed
}

func (db *DB) announce(kind string) {
	db.feed.Publish(bus.Event{Kind: kind, Timestamp: now()})
}

var (
	_ chat.MessageStore = (*DB)(nil)
	_ chat.TypingStore  = (*DB)(nil)
)

package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Kinds published by the sync link and the store change feed.
const (
	KindSyncStatusChanged = "sync.status_changed"
)

// MessagesTopic is the change-feed kind for a chat's message collection.
// The trailing segment keeps "store/c1/" from matching "store/c10/".
func MessagesTopic(chatID string) string {
	return "store/" + chatID + "/messages"
}

// TypingTopic is the change-feed kind for a chat's typing records.
func TypingTopic(chatID string) string {
	return "store/" + chatID + "/typing"
}

// ChatsTopic is the change-feed kind for chat summary rows.
const ChatsTopic = "store/chats"

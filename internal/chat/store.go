package chat

import "context"

// MessageSnapshot is one full delivery of a chat's ordered message list.
// A snapshot with a non-nil Err is the last one on its channel.
type MessageSnapshot struct {
	Messages []Message
	Err      error
}

// TypingSnapshot is one full delivery of a chat's typing records.
type TypingSnapshot struct {
	States []TypingState
	Err    error
}

// MessageStore is the remote document store the chat flow runs against:
// ordered live queries, inserts with generated ids, partial and set-union
// updates, and hard deletes. Watch channels redeliver the full result set on
// every change and close when ctx ends.
type MessageStore interface {
	WatchMessages(ctx context.Context, chatID string) (<-chan MessageSnapshot, error)
	ListMessages(ctx context.Context, chatID string) ([]Message, error)
	AddMessage(ctx context.Context, m Message) (string, error)
	UpdateSummary(ctx context.Context, chatID string, s Summary) error
	AddReader(ctx context.Context, chatID, messageID, userID string) error
	AdvanceStatus(ctx context.Context, chatID, messageID string, to Status) error
	DeleteMessage(ctx context.Context, chatID, messageID string) error
	MessagesNotFrom(ctx context.Context, chatID, userID string) ([]Message, error)
	CreateChat(ctx context.Context, c Chat) (string, error)
	ListChats(ctx context.Context, companyID string) ([]Chat, error)
}

// TypingStore holds ephemeral per-user typing flags.
type TypingStore interface {
	SetTyping(ctx context.Context, chatID, userID string, typing bool) error
	WatchTyping(ctx context.Context, chatID string) (<-chan TypingSnapshot, error)
}

// View is the UI surface a Session drives. Calls always arrive through the
// session's Dispatcher.
type View interface {
	// RenderMessages replaces the rendered list. last is the index to scroll
	// to, or -1 when msgs is empty.
	RenderMessages(msgs []Message, last int)
	SetTypingIndicator(visible bool, label string)
	ShowReplyPreview(text string)
	HideReplyPreview()
	ClearCompose()
	Notify(text string)
	SetSyncLost(lost bool)
	// Confirm asks the user a yes/no question and calls onConfirm on yes.
	Confirm(prompt string, onConfirm func())
}

// Dispatcher runs fn on the UI thread.
type Dispatcher func(fn func())

// Inline runs fn on the calling goroutine.
func Inline(fn func()) { fn() }

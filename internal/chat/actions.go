package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
)

// Action is one entry of the long-press message menu.
type Action int

const (
	ActionReply Action = iota
	ActionForward
	ActionCopy
	ActionDelete
)

var actionNames = map[Action]string{
	ActionReply:   "Reply",
	ActionForward: "Forward",
	ActionCopy:    "Copy",
	ActionDelete:  "Delete",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// MenuActions returns the long-press menu in display order.
func MenuActions() []Action {
	return []Action{ActionReply, ActionForward, ActionCopy, ActionDelete}
}

// Clipboard receives copied message text.
type Clipboard interface {
	WriteAll(text string) error
}

// SystemClipboard writes to the OS clipboard.
type SystemClipboard struct{}

// WriteAll implements Clipboard.
func (SystemClipboard) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

// NewTextMessage builds an outgoing text message in the sent state.
func NewTextMessage(from User, chatID, text string, now time.Time) Message {
	return Message{
		Text:        text,
		SenderID:    from.ID,
		SenderName:  from.Name(),
		ChatID:      chatID,
		CompanyID:   from.CompanyID,
		CreatedAt:   now,
		MessageType: TypeText,
		Status:      StatusSent,
	}
}

// ForwardMessage copies m into targetChatID as a new message from `from`,
// recording where it came from, and refreshes the target chat's summary.
func ForwardMessage(ctx context.Context, store MessageStore, from User, m Message, targetChatID string, now time.Time) (Message, error) {
	fwd := NewTextMessage(from, targetChatID, m.Text, now)
	if m.MessageType != "" {
		fwd.MessageType = m.MessageType
	}
	fwd.MediaURLs = append([]string(nil), m.MediaURLs...)
	fwd.Location = m.Location
	fwd.Contact = m.Contact
	fwd.AudioDuration = m.AudioDuration
	fwd.FileSize = m.FileSize
	fwd.FileName = m.FileName
	fwd.ForwardedFrom = m.ID
	fwd.ForwardedFromName = m.SenderName

	id, err := store.AddMessage(ctx, fwd)
	if err != nil {
		return Message{}, fmt.Errorf("forward message: %w", err)
	}
	fwd.ID = id
	if err := store.UpdateSummary(ctx, targetChatID, summaryOf(fwd)); err != nil {
		return fwd, fmt.Errorf("update summary: %w", err)
	}
	return fwd, nil
}

func summaryOf(m Message) Summary {
	return Summary{
		LastMessage:       m.Text,
		LastMessageAt:     m.CreatedAt,
		LastMessageSender: m.SenderName,
		LastMessageStatus: m.Status,
	}
}

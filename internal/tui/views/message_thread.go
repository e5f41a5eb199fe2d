package views

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/driftpro/internal/chat"
	"github.com/matheus3301/driftpro/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays one chat: the message table, the peer typing line,
// the reply preview and the composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.Table
	typing   *tview.TextView
	reply    *tview.TextView
	composer *tview.InputField
	chatName string
	self     string
	msgs     []chat.Message
	now      func() time.Time

	// muted suppresses onChange while the composer is cleared programmatically.
	muted    bool
	onSend   func(text string)
	onChange func(text string)
	onEscape func()
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	typing := tview.NewTextView().SetDynamicColors(true)
	typing.SetBackgroundColor(theme.BgColor)
	typing.SetTextColor(theme.TypingColor)

	reply := tview.NewTextView().SetDynamicColors(true)
	reply.SetBackgroundColor(theme.BgColor)
	reply.SetTextColor(theme.ReplyColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(typing, 1, 0, false).
		AddItem(reply, 0, 0, false).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		typing:   typing,
		reply:    reply,
		composer: composer,
		now:      time.Now,
	}

	composer.SetChangedFunc(func(text string) {
		if !mt.muted && mt.onChange != nil {
			mt.onChange(text)
		}
	})
	composer.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			if mt.onSend != nil {
				mt.onSend(composer.GetText())
			}
		case tcell.KeyEscape:
			if mt.onEscape != nil {
				mt.onEscape()
			}
		}
	})

	return mt
}

// Reset prepares the thread for a newly opened chat.
func (mt *MessageThread) Reset(chatName, self string) {
	mt.chatName = chatName
	mt.self = self
	mt.msgs = nil
	mt.messages.Clear()
	mt.SetSyncLost(false)
	mt.SetTyping(false, "")
	mt.HideReply()
	mt.ClearComposer()
}

// SetOnSend sets the callback for Enter in the composer.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// SetOnChange sets the callback for user edits in the composer.
func (mt *MessageThread) SetOnChange(fn func(text string)) {
	mt.onChange = fn
}

// SetOnEscape sets the callback for Escape in the composer.
func (mt *MessageThread) SetOnEscape(fn func()) {
	mt.onEscape = fn
}

// Render replaces the message table and selects row last.
func (mt *MessageThread) Render(msgs []chat.Message, last int) {
	mt.msgs = msgs
	mt.messages.Clear()

	byID := make(map[string]chat.Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}

	now := mt.now()
	for row, m := range msgs {
		sender, color := m.SenderName, mt.theme.PeerColor
		if m.SenderID == mt.self {
			sender, color = "You", mt.theme.SelfColor
		}
		if sender == "" {
			sender = m.SenderID
		}

		mt.messages.SetCell(row, 0, tview.NewTableCell(" "+formatTimestamp(m.CreatedAt, now)).
			SetTextColor(mt.theme.MutedColor))
		mt.messages.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(sender))).
			SetTextColor(color).SetMaxWidth(20))
		mt.messages.SetCell(row, 2, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(MessageLine(m, byID)))).
			SetExpansion(1))
		mt.messages.SetCell(row, 3, tview.NewTableCell(statusMark(m, mt.self)+" ").
			SetTextColor(mt.theme.MutedColor).SetAlign(tview.AlignRight))
	}

	if last >= 0 && last < len(msgs) {
		mt.messages.Select(last, 0)
	}
}

// Selected returns the message under the cursor.
func (mt *MessageThread) Selected() (chat.Message, bool) {
	row, _ := mt.messages.GetSelection()
	if row >= 0 && row < len(mt.msgs) {
		return mt.msgs[row], true
	}
	return chat.Message{}, false
}

// SetTyping shows or hides the peer typing line.
func (mt *MessageThread) SetTyping(visible bool, label string) {
	mt.typing.Clear()
	if visible {
		_, _ = fmt.Fprintf(mt.typing, " [::i]%s[::-]", tview.Escape(sanitizeForTerminal(label)))
	}
}

// ShowReply shows the reply preview above the composer.
func (mt *MessageThread) ShowReply(text string) {
	mt.reply.Clear()
	_, _ = fmt.Fprintf(mt.reply, " %s  [::d](Esc to cancel)[::-]", tview.Escape(sanitizeForTerminal(text)))
	mt.ResizeItem(mt.reply, 1, 0)
}

// HideReply collapses the reply preview.
func (mt *MessageThread) HideReply() {
	mt.reply.Clear()
	mt.ResizeItem(mt.reply, 0, 0)
}

// ClearComposer empties the composer without reporting an edit.
func (mt *MessageThread) ClearComposer() {
	mt.muted = true
	mt.composer.SetText("")
	mt.muted = false
}

// SetSyncLost marks the title while the live feed is down.
func (mt *MessageThread) SetSyncLost(lost bool) {
	title := fmt.Sprintf(" %s ", tview.Escape(sanitizeForTerminal(mt.chatName)))
	if lost {
		title += fmt.Sprintf("[%s]sync lost, reconnecting[-] ", ui.ColorName(mt.theme.LostColor))
	}
	mt.messages.SetTitle(title)
}

// Messages returns the message table (for focus management).
func (mt *MessageThread) Messages() *tview.Table {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}

// MessageLine renders a message's primary payload as one line, prefixed
// with its forward and reply context.
func MessageLine(m chat.Message, byID map[string]chat.Message) string {
	var b strings.Builder
	if m.ForwardedFrom != "" {
		name := m.ForwardedFromName
		if name == "" {
			name = m.ForwardedFrom
		}
		fmt.Fprintf(&b, "(forwarded from %s) ", name)
	}
	if m.ReplyToMessageID != "" {
		if target, ok := byID[m.ReplyToMessageID]; ok {
			fmt.Fprintf(&b, "> %s: %s | ", target.SenderName, clip(target.Text, 30))
		} else {
			b.WriteString("> (deleted message) | ")
		}
	}

	switch m.Primary() {
	case chat.PayloadLocation:
		loc := m.Location
		label := loc.Name
		if label == "" {
			label = loc.Address
		}
		fmt.Fprintf(&b, "[location] %s (%s, %s)", label,
			strconv.FormatFloat(loc.Latitude, 'f', 5, 64),
			strconv.FormatFloat(loc.Longitude, 'f', 5, 64))
	case chat.PayloadContact:
		fmt.Fprintf(&b, "[contact] %s %s", m.Contact.Name, m.Contact.Phone)
	case chat.PayloadMedia:
		kind := m.MessageType
		if kind == "" || kind == chat.TypeText {
			kind = chat.TypeFile
		}
		name := m.FileName
		if name == "" {
			name = m.MediaURLs[0]
		}
		fmt.Fprintf(&b, "[%s] %s", kind, name)
		if m.Text != "" {
			b.WriteString(" " + m.Text)
		}
	default:
		b.WriteString(m.Text)
	}

	if m.IsEdited {
		b.WriteString(" (edited)")
	}
	return b.String()
}

func statusMark(m chat.Message, self string) string {
	if m.SenderID != self {
		return ""
	}
	switch m.Status {
	case chat.StatusDelivered:
		return "✓✓"
	case chat.StatusRead:
		return "✓✓ read"
	case chat.StatusFailed:
		return "failed"
	default:
		return "✓"
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

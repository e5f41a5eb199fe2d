package views

import (
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/driftpro/internal/chat"
	"github.com/matheus3301/driftpro/internal/tui/ui"
	"github.com/rivo/tview"
)

// ChatList is the company's chat table.
type ChatList struct {
	*tview.Table
	chats   []chat.Chat
	visible []chat.Chat
	filter  string
	now     func() time.Time
}

// NewChatList creates a new chat list table.
func NewChatList(theme *ui.Theme) *ChatList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Chats ")
	table.SetTitleColor(theme.TitleColor)

	return &ChatList{Table: table, now: time.Now}
}

// Update refreshes the chat list with new data.
func (cl *ChatList) Update(chats []chat.Chat) {
	cl.chats = chats
	cl.render()
}

// SetFilter narrows the list to chats whose name contains text.
func (cl *ChatList) SetFilter(text string) {
	cl.filter = strings.ToLower(strings.TrimSpace(text))
	cl.render()
}

// render redraws the visible rows, keeping the cursor on the same chat.
func (cl *ChatList) render() {
	prev, _ := cl.SelectedChat()
	cl.visible = cl.visible[:0]
	for _, c := range cl.chats {
		if cl.filter == "" || strings.Contains(strings.ToLower(displayName(c)), cl.filter) {
			cl.visible = append(cl.visible, c)
		}
	}

	cl.Clear()
	cl.SetCell(0, 0, tview.NewTableCell(" Name").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 1, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 2, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, c := range cl.visible {
		row := i + 1
		last := c.Summary.LastMessage
		if c.Summary.LastMessageSender != "" && last != "" {
			last = c.Summary.LastMessageSender + ": " + last
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(displayName(c)))).SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(last))).SetMaxWidth(40).SetExpansion(2))
		cl.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(c.Summary.LastMessageAt, cl.now())).SetMaxWidth(12))
	}
	if len(cl.visible) == 0 {
		return
	}
	row := 1
	for i, c := range cl.visible {
		if c.ID == prev.ID {
			row = i + 1
			break
		}
	}
	cl.Select(row, 0)
}

// SelectedChat returns the currently selected chat.
func (cl *ChatList) SelectedChat() (chat.Chat, bool) {
	row, _ := cl.GetSelection()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(cl.visible) {
		return cl.visible[idx], true
	}
	return chat.Chat{}, false
}

func displayName(c chat.Chat) string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

func formatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

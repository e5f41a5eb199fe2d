package views

import (
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/driftpro/internal/chat"
	"github.com/matheus3301/driftpro/internal/tui/ui"
)

var noon = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestChatListFilterAndSelect(t *testing.T) {
	cl := NewChatList(ui.DefaultTheme())
	cl.now = func() time.Time { return noon }
	cl.Update([]chat.Chat{
		{ID: "c1", Name: "Ops Team"},
		{ID: "c2", Name: "Drivers"},
		{ID: "c3"},
	})

	got, ok := cl.SelectedChat()
	if !ok || got.ID != "c1" {
		t.Fatalf("expected first chat selected, got %+v ok=%v", got, ok)
	}
	if rows := cl.GetRowCount(); rows != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", rows)
	}

	cl.SetFilter("DRIV")
	got, ok = cl.SelectedChat()
	if !ok || got.ID != "c2" {
		t.Fatalf("expected filtered selection c2, got %+v ok=%v", got, ok)
	}
	if rows := cl.GetRowCount(); rows != 2 {
		t.Fatalf("expected header plus 1 row, got %d", rows)
	}

	cl.SetFilter("nothing")
	if _, ok := cl.SelectedChat(); ok {
		t.Fatal("expected no selection on empty filter result")
	}

	cl.SetFilter("c3")
	if got, ok := cl.SelectedChat(); !ok || got.ID != "c3" {
		t.Fatalf("unnamed chat should match by id, got %+v", got)
	}
}

func TestFormatTimestamp(t *testing.T) {
	if got := formatTimestamp(time.Time{}, noon); got != "" {
		t.Fatalf("zero time should render empty, got %q", got)
	}
	if got := formatTimestamp(noon.Add(-2*time.Hour), noon); got != "10:00" {
		t.Fatalf("same day = %q, want 10:00", got)
	}
	if got := formatTimestamp(noon.AddDate(0, 0, -3), noon); got != "02/26" {
		t.Fatalf("older = %q, want 02/26", got)
	}
}

func TestThreadRenderAndSelect(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	mt.now = func() time.Time { return noon }
	mt.Reset("Ops Team", "u1")

	msgs := []chat.Message{
		{ID: "m1", SenderID: "u2", SenderName: "Bo", Text: "hi", CreatedAt: noon.Add(-time.Minute)},
		{ID: "m2", SenderID: "u1", SenderName: "Ana", Text: "hello", CreatedAt: noon, Status: chat.StatusRead},
	}
	mt.Render(msgs, 1)

	if rows := mt.Messages().GetRowCount(); rows != 2 {
		t.Fatalf("expected 2 rows, got %d", rows)
	}
	sel, ok := mt.Selected()
	if !ok || sel.ID != "m2" {
		t.Fatalf("expected last message selected, got %+v", sel)
	}
	if sender := mt.Messages().GetCell(1, 1).Text; !strings.Contains(sender, "You") {
		t.Fatalf("own message sender = %q, want You", sender)
	}
	if mark := mt.Messages().GetCell(1, 3).Text; !strings.Contains(mark, "read") {
		t.Fatalf("status mark = %q", mark)
	}

	mt.Render(nil, -1)
	if _, ok := mt.Selected(); ok {
		t.Fatal("expected no selection on empty list")
	}
}

func TestThreadClearComposerIsSilent(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	var changes []string
	mt.SetOnChange(func(text string) { changes = append(changes, text) })

	mt.Composer().SetText("draft")
	mt.ClearComposer()

	if mt.Composer().GetText() != "" {
		t.Fatal("composer not cleared")
	}
	for _, c := range changes {
		if c == "" {
			t.Fatalf("clearing reported an edit: %v", changes)
		}
	}
}

func TestThreadSyncLostTitle(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	mt.Reset("Ops", "u1")

	mt.SetSyncLost(true)
	if !strings.Contains(mt.Messages().GetTitle(), "sync lost") {
		t.Fatalf("title = %q", mt.Messages().GetTitle())
	}
	mt.SetSyncLost(false)
	if strings.Contains(mt.Messages().GetTitle(), "sync lost") {
		t.Fatalf("title = %q", mt.Messages().GetTitle())
	}
}

func TestMessageLine(t *testing.T) {
	byID := map[string]chat.Message{
		"m1": {ID: "m1", SenderName: "Bo", Text: "where are you?"},
	}
	tests := []struct {
		name string
		msg  chat.Message
		want string
	}{
		{"text", chat.Message{Text: "hi"}, "hi"},
		{"edited", chat.Message{Text: "hi", IsEdited: true}, "hi (edited)"},
		{"reply", chat.Message{Text: "here", ReplyToMessageID: "m1"}, "> Bo: where are you? | here"},
		{"reply to deleted", chat.Message{Text: "here", ReplyToMessageID: "gone"}, "> (deleted message) | here"},
		{"forwarded", chat.Message{Text: "fyi", ForwardedFrom: "u9", ForwardedFromName: "Cy"}, "(forwarded from Cy) fyi"},
		{"location wins", chat.Message{
			Text:     "ignored",
			Location: &chat.Location{Latitude: -3.7319, Longitude: -38.5267, Name: "Depot"},
		}, "[location] Depot (-3.73190, -38.52670)"},
		{"contact", chat.Message{Contact: &chat.Contact{Name: "Dee", Phone: "+55 85 9999"}}, "[contact] Dee +55 85 9999"},
		{"media", chat.Message{
			MessageType: chat.TypeImage,
			MediaURLs:   []string{"https://cdn/x.jpg"},
		}, "[image] https://cdn/x.jpg"},
		{"file with name", chat.Message{
			MessageType: chat.TypeFile,
			MediaURLs:   []string{"https://cdn/r.pdf"},
			FileName:    "route.pdf",
			Text:        "today",
		}, "[file] route.pdf today"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MessageLine(tt.msg, byID); got != tt.want {
				t.Fatalf("MessageLine = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusBarShowsLink(t *testing.T) {
	sb := NewStatusBar(ui.DefaultTheme(), "main", "Ana")
	sb.now = func() time.Time { return noon }

	sb.SetLink("live", false)
	if text := sb.GetText(true); !strings.Contains(text, "live") || !strings.Contains(text, "12:00") {
		t.Fatalf("status bar = %q", text)
	}
	sb.SetLink("", false)
	if text := sb.GetText(true); strings.Contains(text, "live") {
		t.Fatalf("status bar = %q", text)
	}
}

func TestChatListKeepsSelectionOnRefresh(t *testing.T) {
	cl := NewChatList(ui.DefaultTheme())
	cl.Update([]chat.Chat{{ID: "c1", Name: "A"}, {ID: "c2", Name: "B"}})
	cl.Select(2, 0)

	cl.Update([]chat.Chat{{ID: "c2", Name: "B"}, {ID: "c1", Name: "A"}, {ID: "c3", Name: "C"}})
	if got, _ := cl.SelectedChat(); got.ID != "c2" {
		t.Fatalf("selection moved to %q after refresh", got.ID)
	}
}

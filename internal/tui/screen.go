package tui

import "github.com/matheus3301/driftpro/internal/chat"

// screen is the chat.View of one open session. Every call arrives on the
// tview event loop; once the session is detached the screen goes inactive
// and drops late effects so they cannot paint over the next chat.
type screen struct {
	app    *App
	active bool
}

var _ chat.View = (*screen)(nil)

func (s *screen) RenderMessages(msgs []chat.Message, last int) {
	if s.active {
		s.app.thread.Render(msgs, last)
	}
}

func (s *screen) SetTypingIndicator(visible bool, label string) {
	if s.active {
		s.app.thread.SetTyping(visible, label)
	}
}

func (s *screen) ShowReplyPreview(text string) {
	if s.active {
		s.app.thread.ShowReply(text)
	}
}

func (s *screen) HideReplyPreview() {
	if s.active {
		s.app.thread.HideReply()
	}
}

func (s *screen) ClearCompose() {
	if s.active {
		s.app.thread.ClearComposer()
	}
}

func (s *screen) Notify(text string) {
	if s.active {
		s.app.notify(text)
	}
}

func (s *screen) SetSyncLost(lost bool) {
	if s.active {
		s.app.thread.SetSyncLost(lost)
	}
}

func (s *screen) Confirm(prompt string, onConfirm func()) {
	if s.active {
		s.app.confirm(prompt, onConfirm)
	}
}

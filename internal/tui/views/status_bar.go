package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/driftpro/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar displays the profile, the signed-in user and the live-sync state.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	profile string
	user    string
	link    string
	lost    bool
	now     func() time.Time
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme, profile, user string) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	sb := &StatusBar{TextView: tv, theme: theme, profile: profile, user: user, now: time.Now}
	sb.render()
	return sb
}

// SetLink updates the link state shown for the open chat. Empty hides it.
func (sb *StatusBar) SetLink(state string, lost bool) {
	sb.link = state
	sb.lost = lost
	sb.render()
}

// Tick redraws the clock.
func (sb *StatusBar) Tick() {
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s", tview.Escape(sb.profile), tview.Escape(sb.user))
	if sb.link != "" {
		color := ui.ColorName(sb.theme.LiveColor)
		if sb.lost {
			color = ui.ColorName(sb.theme.LostColor)
		}
		line += fmt.Sprintf(" | [%s]%s[-]", color, sb.link)
	}
	line += " | " + sb.now().Format("15:04")

	_, _ = fmt.Fprint(sb, line)
}

package keys

import (
	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/driftpro/internal/tui/ui"
)

// Scopes the chat screen registers bindings under.
const (
	ScopeChats = "chats"
	ScopeChat  = "chat"
)

// Action represents a keybinding action.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Label       string
	Description string
	Handler     func()
	Visible     bool
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Registry holds keybindings organized by scope, in registration order.
type Registry struct {
	global []*Action
	scoped map[string][]*Action
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{scoped: make(map[string][]*Action)}
}

// AddGlobal registers a global keybinding.
func (r *Registry) AddGlobal(action *Action) {
	r.global = append(r.global, action)
}

// AddView registers a keybinding that only fires in scope.
func (r *Registry) AddView(scope string, action *Action) {
	r.scoped[scope] = append(r.scoped[scope], action)
}

// Hints returns visible keybindings for scope, scoped ones first.
func (r *Registry) Hints(scope string) []ui.MenuHint {
	var hints []ui.MenuHint
	for _, a := range append(append([]*Action(nil), r.scoped[scope]...), r.global...) {
		if a.Visible {
			hints = append(hints, ui.MenuHint{Key: a.Label, Description: a.Description})
		}
	}
	return hints
}

// HandleEvent dispatches a key event to the first matching action in scope,
// then the global bindings. Returns true if a handler matched.
func (r *Registry) HandleEvent(scope string, ev *tcell.EventKey) bool {
	for _, a := range r.scoped[scope] {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	for _, a := range r.global {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	return false
}

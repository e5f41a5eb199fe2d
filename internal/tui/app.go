package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/driftpro/internal/bus"
	"github.com/matheus3301/driftpro/internal/chat"
	"github.com/matheus3301/driftpro/internal/status"
	"github.com/matheus3301/driftpro/internal/tui/keys"
	"github.com/matheus3301/driftpro/internal/tui/ui"
	"github.com/matheus3301/driftpro/internal/tui/views"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

// Store is what the chat screen needs from the daemon.
type Store interface {
	chat.MessageStore
	chat.TypingStore
}

// Options configures the chat screen.
type Options struct {
	Profile     string
	User        chat.User
	TypingQuiet time.Duration
	Backoff     chat.Backoff
	Logger      *zap.Logger
}

const (
	pageChats = "chats"
	pageChat  = "chat"
	pageModal = "modal"

	refreshInterval = 5 * time.Second
	storeTimeout    = 10 * time.Second
)

// App is the main TUI application.
type App struct {
	app      *tview.Application
	pages    *tview.Pages
	store    Store
	opts     Options
	logger   *zap.Logger
	bus      *bus.Bus
	theme    *ui.Theme
	registry *keys.Registry
	flash    *ui.FlashModel
	ctx      context.Context
	cancel   context.CancelFunc

	chatList  *views.ChatList
	thread    *views.MessageThread
	statusBar *views.StatusBar
	flashBar  *ui.FlashBar
	menu      *ui.Menu
	prompt    *ui.Prompt
	root      *tview.Flex

	// UI thread only.
	session    *chat.Session
	screen     *screen
	chatID     string
	forwarding *chat.Message
}

// NewApp creates the TUI application.
func NewApp(store Store, opts Options) *App {
	ctx, cancel := context.WithCancel(context.Background())
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		store:     store,
		opts:      opts,
		logger:    logger,
		bus:       bus.New(),
		theme:     theme,
		registry:  keys.NewRegistry(),
		flash:     ui.NewFlashModel(),
		ctx:       ctx,
		cancel:    cancel,
		chatList:  views.NewChatList(theme),
		thread:    views.NewMessageThread(theme),
		statusBar: views.NewStatusBar(theme, opts.Profile, opts.User.Name()),
		flashBar:  ui.NewFlashBar(theme),
		menu:      ui.NewMenu(theme),
		prompt:    ui.NewPrompt(theme),
	}

	a.thread.SetOnChange(func(text string) {
		if a.session != nil {
			a.session.InputChanged(text)
		}
	})
	a.thread.SetOnSend(a.send)
	a.thread.SetOnEscape(func() {
		if a.session == nil {
			return
		}
		if a.session.ComposeState() == chat.Replying {
			a.session.CancelReply()
			return
		}
		a.app.SetFocus(a.thread.Messages())
	})
	a.prompt.SetOnSubmit(a.submitPrompt)
	a.prompt.SetOnFilter(a.chatList.SetFilter)
	a.prompt.SetOnCancel(a.hidePrompt)

	a.setupKeys()
	a.setupLayout()
	return a
}

// dispatch queues fn on the tview event loop.
func (a *App) dispatch(fn func()) {
	a.app.QueueUpdateDraw(fn)
}

func (a *App) setupKeys() {
	r := a.registry
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: ':', Label: ":", Description: "Command", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptCommand, "") }})
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: 'q', Label: "q", Description: "Quit", Visible: true,
		Handler: a.Stop})

	r.AddView(keys.ScopeChats, &keys.Action{Key: tcell.KeyEnter, Label: "Enter", Description: "Open", Visible: true,
		Handler: func() {
			if c, ok := a.chatList.SelectedChat(); ok {
				a.openChat(c)
			}
		}})
	r.AddView(keys.ScopeChats, &keys.Action{Key: tcell.KeyRune, Rune: '/', Label: "/", Description: "Filter", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptFilter, "") }})
	r.AddView(keys.ScopeChats, &keys.Action{Key: tcell.KeyRune, Rune: 'r', Label: "r", Description: "Refresh", Visible: true,
		Handler: func() { go a.loadChats() }})

	r.AddView(keys.ScopeChat, &keys.Action{Key: tcell.KeyEnter, Label: "Enter", Description: "Actions", Visible: true,
		Handler: a.showActions})
	r.AddView(keys.ScopeChat, &keys.Action{Key: tcell.KeyRune, Rune: 'i', Label: "i", Description: "Compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) }})
	r.AddView(keys.ScopeChat, &keys.Action{Key: tcell.KeyRune, Rune: 'r', Label: "r", Description: "Reply", Visible: true,
		Handler: func() { a.chooseSelected(chat.ActionReply) }})
	r.AddView(keys.ScopeChat, &keys.Action{Key: tcell.KeyRune, Rune: 'y', Label: "y", Description: "Copy", Visible: true,
		Handler: func() { a.chooseSelected(chat.ActionCopy) }})
	r.AddView(keys.ScopeChat, &keys.Action{Key: tcell.KeyRune, Rune: 'd', Label: "d", Description: "Delete", Visible: true,
		Handler: func() { a.chooseSelected(chat.ActionDelete) }})
	r.AddView(keys.ScopeChat, &keys.Action{Key: tcell.KeyEscape, Label: "Esc", Description: "Back", Visible: true,
		Handler: a.closeChat})
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageChats, a.chatList, true, true)
	a.pages.AddPage(pageChat, a.thread, true, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.menu, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)
	a.menu.Update(a.registry.Hints(keys.ScopeChats))

	a.app.SetRoot(a.root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		page, _ := a.pages.GetFrontPage()
		if page == pageModal {
			return event
		}

		// Let text input widgets handle all keys normally.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			return event
		}

		scope := keys.ScopeChats
		if page == pageChat {
			scope = keys.ScopeChat
		}
		if a.registry.HandleEvent(scope, event) {
			return nil
		}
		return event
	})
}

func (a *App) showPrompt(mode ui.PromptMode, text string) {
	a.prompt.Activate(mode)
	a.prompt.SetText(text)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.forwarding = nil
	a.root.ResizeItem(a.prompt, 0, 0)
	if page, _ := a.pages.GetFrontPage(); page == pageChat {
		a.app.SetFocus(a.thread.Messages())
		return
	}
	a.app.SetFocus(a.chatList)
}

func (a *App) submitPrompt(mode ui.PromptMode, text string) {
	fwd := a.forwarding
	a.hidePrompt()
	if mode == ui.PromptFilter {
		return
	}

	name, args := splitCommand(text)
	switch name {
	case "q", "quit":
		a.Stop()
	case "new":
		if args == "" {
			a.notify("usage: new <chat name>")
			return
		}
		go a.createChat(args)
	case "fwd", "forward":
		if fwd == nil {
			if m, ok := a.thread.Selected(); ok {
				fwd = &m
			}
		}
		if fwd == nil || args == "" || a.session == nil {
			a.notify("usage: select a message, then fwd <chat-id>")
			return
		}
		go a.forward(a.session, *fwd, args)
	case "":
	default:
		a.notify(fmt.Sprintf("unknown command %q", name))
	}
}

// splitCommand splits a ':' line into a lower-cased verb and the trimmed
// rest, so "new  Ops Team " is ("new", "Ops Team").
func splitCommand(line string) (name, args string) {
	name, args, _ = strings.Cut(strings.TrimSpace(line), " ")
	return strings.ToLower(name), strings.TrimSpace(args)
}

// Run loads the chat list and blocks until the user quits. The open chat
// session is closed once the event loop has returned.
func (a *App) Run() error {
	go a.loadChats()
	go a.followLink()
	a.startRefreshLoop()

	err := a.app.Run()
	a.cancel()
	if a.session != nil {
		a.session.Close()
	}
	return err
}

// Stop ends the event loop.
func (a *App) Stop() {
	a.app.Stop()
}

func (a *App) loadChats() {
	ctx, cancel := context.WithTimeout(a.ctx, storeTimeout)
	defer cancel()

	chats, err := a.store.ListChats(ctx, a.opts.User.CompanyID)
	if err != nil {
		if a.ctx.Err() == nil {
			a.logger.Warn("failed to load chats", zap.Error(err))
			a.dispatch(func() { a.notifyErr(fmt.Errorf("load chats: %w", err)) })
		}
		return
	}
	a.dispatch(func() { a.chatList.Update(chats) })
}

func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.loadChats()
				a.dispatch(func() {
					a.statusBar.Tick()
					a.flashBar.Update(a.flash.Get())
				})
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

// followLink mirrors the open chat's timeline link state on the status bar.
func (a *App) followLink() {
	events, unsub := a.bus.Subscribe(bus.KindSyncStatusChanged, 16)
	defer unsub()
	for {
		select {
		case <-a.ctx.Done():
			return
		case evt := <-events:
			change, ok := evt.Payload.(status.StatusChange)
			if !ok {
				continue
			}
			a.dispatch(func() {
				if a.chatID == "" || change.Feed != "messages/"+a.chatID {
					return
				}
				a.statusBar.SetLink(strings.ToLower(string(change.To)), change.To == status.Lost || change.To == status.Resubscribing)
			})
		}
	}
}

func (a *App) openChat(c chat.Chat) {
	a.closeChat()

	sc := &screen{app: a, active: true}
	s, err := chat.NewSession(
		chat.Config{ChatID: c.ID, PeerName: c.Name, TypingQuiet: a.opts.TypingQuiet, Backoff: a.opts.Backoff},
		chat.Deps{
			Messages: a.store,
			Typing:   a.store,
			User:     a.opts.User,
			View:     sc,
			Dispatch: a.dispatch,
			Bus:      a.bus,
			Logger:   a.logger,
		},
	)
	if err != nil {
		a.notifyErr(err)
		return
	}

	name := c.Name
	if name == "" {
		name = c.ID
	}
	a.thread.Reset(name, a.opts.User.ID)
	a.session, a.screen, a.chatID = s, sc, c.ID
	a.statusBar.SetLink(strings.ToLower(string(status.Subscribing)), false)
	a.menu.Update(a.registry.Hints(keys.ScopeChat))
	a.pages.SwitchToPage(pageChat)
	a.app.SetFocus(a.thread.Composer())

	s.Open(a.ctx)
}

// closeChat detaches the open session and returns to the chat list. Effects
// already queued by the old session are dropped by its screen.
func (a *App) closeChat() {
	if a.session != nil {
		a.screen.active = false
		// Close waits on feed goroutines that may be queuing UI updates.
		go a.session.Close()
	}
	a.session, a.screen, a.chatID, a.forwarding = nil, nil, "", nil
	a.statusBar.SetLink("", false)
	a.menu.Update(a.registry.Hints(keys.ScopeChats))
	a.pages.SwitchToPage(pageChats)
	a.app.SetFocus(a.chatList)
	go a.loadChats()
}

func (a *App) send(text string) {
	s := a.session
	if s == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, storeTimeout)
		defer cancel()
		if _, err := s.Send(ctx, text); err != nil {
			a.logger.Warn("send failed", zap.Error(err))
		}
	}()
}

// showActions opens the action menu for the selected message.
func (a *App) showActions() {
	m, ok := a.thread.Selected()
	if !ok || a.session == nil {
		return
	}
	actions := a.session.LongPress(m)
	labels := make([]string, 0, len(actions)+1)
	for _, act := range actions {
		labels = append(labels, act.String())
	}
	labels = append(labels, "Cancel")

	modal := tview.NewModal().
		SetText(clip(m.Text, 60)).
		AddButtons(labels).
		SetDoneFunc(func(idx int, _ string) {
			a.dismissModal()
			if idx >= 0 && idx < len(actions) {
				a.choose(m, actions[idx])
			}
		})
	a.showModal(modal)
}

func (a *App) chooseSelected(act chat.Action) {
	if m, ok := a.thread.Selected(); ok {
		a.choose(m, act)
	}
}

func (a *App) choose(m chat.Message, act chat.Action) {
	s := a.session
	if s == nil {
		return
	}
	switch act {
	case chat.ActionReply:
		a.app.SetFocus(a.thread.Composer())
	case chat.ActionForward:
		a.showPrompt(ui.PromptCommand, "fwd ")
		a.forwarding = &m
	}
	go func() {
		if err := s.Choose(a.ctx, m, act); err != nil {
			a.logger.Warn("message action failed", zap.Stringer("action", act), zap.Error(err))
		}
	}()
}

func (a *App) forward(s *chat.Session, m chat.Message, target string) {
	ctx, cancel := context.WithTimeout(a.ctx, storeTimeout)
	defer cancel()
	if _, err := s.Forward(ctx, m, target); err != nil {
		a.logger.Warn("forward failed", zap.Error(err), zap.String("target_chat_id", target))
		a.dispatch(func() { a.notifyErr(fmt.Errorf("forward: %w", err)) })
		return
	}
	a.dispatch(func() { a.notify("Message forwarded") })
}

func (a *App) createChat(name string) {
	ctx, cancel := context.WithTimeout(a.ctx, storeTimeout)
	defer cancel()
	id, err := a.store.CreateChat(ctx, chat.Chat{
		CompanyID:    a.opts.User.CompanyID,
		Name:         name,
		Participants: []string{a.opts.User.ID},
	})
	if err != nil {
		a.dispatch(func() { a.notifyErr(fmt.Errorf("create chat: %w", err)) })
		return
	}
	a.logger.Info("chat created", zap.String("chat_id", id))
	a.dispatch(func() { a.notify("Created chat " + id) })
	a.loadChats()
}

// confirm asks a yes/no question in a modal and runs onConfirm on yes.
func (a *App) confirm(prompt string, onConfirm func()) {
	modal := tview.NewModal().
		SetText(prompt).
		AddButtons([]string{"Delete", "Cancel"}).
		SetDoneFunc(func(idx int, _ string) {
			a.dismissModal()
			if idx == 0 {
				onConfirm()
			}
		})
	a.showModal(modal)
}

func (a *App) showModal(m *tview.Modal) {
	m.SetBackgroundColor(a.theme.BgColor)
	m.SetBorderColor(a.theme.BorderFocusColor)
	a.pages.AddPage(pageModal, m, false, true)
	a.app.SetFocus(m)
}

func (a *App) dismissModal() {
	a.pages.RemovePage(pageModal)
	if a.session != nil {
		a.app.SetFocus(a.thread.Messages())
	}
}

func (a *App) notify(text string) {
	a.flash.Info(text)
	a.flashBar.Update(a.flash.Get())
}

func (a *App) notifyErr(err error) {
	a.flash.Err(err)
	a.flashBar.Update(a.flash.Get())
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/driftpro/internal/bus"
	"github.com/matheus3301/driftpro/internal/status"
	"go.uber.org/zap"
)

// Config holds per-screen session settings.
type Config struct {
	ChatID      string
	PeerName    string
	TypingQuiet time.Duration
	Backoff     Backoff
}

// Deps are the collaborators a Session is built from.
type Deps struct {
	Messages  MessageStore
	Typing    TypingStore
	User      User
	View      View
	Dispatch  Dispatcher
	Clipboard Clipboard
	Bus       *bus.Bus
	Logger    *zap.Logger
	Now       func() time.Time
}

// Session is the controller behind one open chat screen. It composes the
// timeline, typing presence, compose state and the message action menu.
type Session struct {
	cfg       Config
	store     MessageStore
	typing    TypingStore
	user      User
	view      View
	dispatch  Dispatcher
	clipboard Clipboard
	logger    *zap.Logger
	now       func() time.Time

	timeline  *Timeline
	publisher *TypingPublisher
	compose   Compose

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	openOnce  sync.Once
	closeOnce sync.Once
}

// NewSession validates deps and builds a session. Nothing runs until Open.
func NewSession(cfg Config, deps Deps) (*Session, error) {
	switch {
	case cfg.ChatID == "":
		return nil, errors.New("chat session: empty chat id")
	case deps.User.ID == "":
		return nil, errors.New("chat session: no signed-in user")
	case deps.Messages == nil || deps.Typing == nil:
		return nil, errors.New("chat session: missing store")
	case deps.View == nil:
		return nil, errors.New("chat session: missing view")
	}
	if deps.Dispatch == nil {
		deps.Dispatch = Inline
	}
	if deps.Clipboard == nil {
		deps.Clipboard = SystemClipboard{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.Backoff.Min <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	logger := deps.Logger.With(zap.String("chat_id", cfg.ChatID), zap.String("user_id", deps.User.ID))

	publisher := NewTypingPublisher(deps.Typing, cfg.ChatID, deps.User.ID, cfg.TypingQuiet, logger)
	publisher.now = deps.Now

	return &Session{
		cfg:       cfg,
		store:     deps.Messages,
		typing:    deps.Typing,
		user:      deps.User,
		view:      deps.View,
		dispatch:  deps.Dispatch,
		clipboard: deps.Clipboard,
		logger:    logger,
		now:       deps.Now,
		timeline:  NewTimeline(deps.Messages, cfg.ChatID, deps.View, deps.Dispatch, cfg.Backoff, deps.Bus, logger),
		publisher: publisher,
	}, nil
}

// Open starts the message timeline and the peer typing feed and sweeps
// unread messages as read.
func (s *Session) Open(ctx context.Context) {
	s.openOnce.Do(func() {
		s.ctx, s.cancel = context.WithCancel(ctx)
		s.timeline.Start(s.ctx)

		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			s.watchTyping(s.ctx)
		}()
		go func() {
			defer s.wg.Done()
			if err := s.MarkRead(s.ctx); err != nil && s.ctx.Err() == nil {
				s.logger.Warn("mark as read incomplete", zap.Error(err))
			}
		}()
		s.logger.Info("chat session opened")
	})
}

// Close tears down both feeds and the typing timer and waits for background
// work. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.timeline.Stop()
		s.publisher.Stop()
		s.wg.Wait()
		s.logger.Info("chat session closed")
	})
}

// Messages returns the current timeline.
func (s *Session) Messages() []Message {
	return s.timeline.Messages()
}

// Link returns the timeline subscription state.
func (s *Session) Link() status.State {
	return s.timeline.Link()
}

// ComposeState returns the reply state of the compose box.
func (s *Session) ComposeState() ComposeState {
	return s.compose.State()
}

// InputChanged is called on every compose input change.
func (s *Session) InputChanged(string) {
	s.publisher.Keystroke()
}

// Send persists text as a new message. Blank text is ignored. On failure the
// compose input and reply target stay as they are so the user can retry.
func (s *Session) Send(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, nil
	}

	m := NewTextMessage(s.user, s.cfg.ChatID, text, s.now())
	if target, ok := s.compose.Target(); ok {
		m.ReplyToMessageID = target.ID
	}

	id, err := s.store.AddMessage(ctx, m)
	if err != nil {
		s.logger.Error("failed to send message", zap.Error(err))
		s.dispatch(func() { s.view.Notify("Failed to send message") })
		return Message{}, fmt.Errorf("send message: %w", err)
	}
	m.ID = id

	s.compose.SendSucceeded()
	s.dispatch(func() {
		s.view.ClearCompose()
		s.view.HideReplyPreview()
	})

	// Second, independent write: a failure leaves the summary stale while the
	// message itself is delivered.
	if err := s.store.UpdateSummary(ctx, s.cfg.ChatID, summaryOf(m)); err != nil {
		s.logger.Warn("failed to update chat summary", zap.Error(err), zap.String("msg_id", id))
	}
	s.publisher.Reset()
	return m, nil
}

// RequestReply targets m with the next send.
func (s *Session) RequestReply(m Message) {
	preview := s.compose.RequestReply(m)
	s.dispatch(func() { s.view.ShowReplyPreview(preview) })
}

// CancelReply drops the reply target.
func (s *Session) CancelReply() {
	s.compose.Cancel()
	s.dispatch(func() { s.view.HideReplyPreview() })
}

// LongPress returns the action menu for m.
func (s *Session) LongPress(Message) []Action {
	return MenuActions()
}

// Choose runs one menu action against m. Delete asks for confirmation first
// and hard-deletes the message in the background once confirmed.
func (s *Session) Choose(ctx context.Context, m Message, a Action) error {
	switch a {
	case ActionReply:
		s.RequestReply(m)
	case ActionForward:
		s.dispatch(func() { s.view.Notify("Forwarding message...") })
	case ActionCopy:
		if err := s.clipboard.WriteAll(m.Text); err != nil {
			s.dispatch(func() { s.view.Notify("Could not copy message") })
			return fmt.Errorf("copy message: %w", err)
		}
		s.dispatch(func() { s.view.Notify("Message copied") })
	case ActionDelete:
		s.dispatch(func() {
			s.view.Confirm("Delete this message?", func() {
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					s.deleteMessage(ctx, m)
				}()
			})
		})
	default:
		return fmt.Errorf("unknown action %v", a)
	}
	return nil
}

func (s *Session) deleteMessage(ctx context.Context, m Message) {
	if err := s.store.DeleteMessage(ctx, s.cfg.ChatID, m.ID); err != nil {
		s.logger.Error("failed to delete message", zap.Error(err), zap.String("msg_id", m.ID))
		s.dispatch(func() { s.view.Notify("Failed to delete message") })
		return
	}
	s.logger.Info("message deleted", zap.String("msg_id", m.ID))
}

// Forward copies m into another chat.
func (s *Session) Forward(ctx context.Context, m Message, targetChatID string) (Message, error) {
	return ForwardMessage(ctx, s.store, s.user, m, targetChatID, s.now())
}

// MarkRead adds the current user to the reader set of every message in the
// chat they did not author. Re-running it changes nothing.
func (s *Session) MarkRead(ctx context.Context) error {
	return MarkRead(ctx, s.store, s.cfg.ChatID, s.user.ID)
}

// MarkRead is the store-level read sweep used by sessions and the CLI.
func MarkRead(ctx context.Context, store MessageStore, chatID, userID string) error {
	msgs, err := store.MessagesNotFrom(ctx, chatID, userID)
	if err != nil {
		return fmt.Errorf("list unread: %w", err)
	}
	var errs []error
	for _, m := range msgs {
		if err := store.AddReader(ctx, chatID, m.ID, userID); err != nil {
			errs = append(errs, fmt.Errorf("mark %s read: %w", m.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Session) watchTyping(ctx context.Context) {
	attempt := 0
	for {
		err := s.followTyping(ctx, func() { attempt = 0 })
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("typing feed lost", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.Backoff.Delay(attempt)):
		}
		attempt++
	}
}

func (s *Session) followTyping(ctx context.Context, onDelivery func()) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := s.typing.WatchTyping(subCtx, s.cfg.ChatID)
	if err != nil {
		return err
	}
	for snap := range ch {
		if snap.Err != nil {
			return snap.Err
		}
		onDelivery()
		visible := PeerTyping(snap.States, s.user.ID)
		label := ""
		if visible {
			label = TypingLabel(s.cfg.PeerName)
		}
		s.dispatch(func() { s.view.SetTypingIndicator(visible, label) })
	}
	return errors.New("typing feed closed")
}

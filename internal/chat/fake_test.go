package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// memStore is an in-memory MessageStore and TypingStore. Watchers get a full
// snapshot on subscribe and after every write.
type memStore struct {
	mu        sync.Mutex
	nextID    int
	msgs      map[string][]Message
	summaries map[string]Summary
	chats     []Chat
	typing    map[string]map[string]bool
	published []bool

	failAdd     error
	failWatch   error
	msgWatchers map[string][]chan MessageSnapshot
	typWatchers map[string][]chan TypingSnapshot
	watchCalls  int
}

func newMemStore() *memStore {
	return &memStore{
		msgs:        map[string][]Message{},
		summaries:   map[string]Summary{},
		typing:      map[string]map[string]bool{},
		msgWatchers: map[string][]chan MessageSnapshot{},
		typWatchers: map[string][]chan TypingSnapshot{},
	}
}

func (s *memStore) WatchMessages(ctx context.Context, chatID string) (<-chan MessageSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchCalls++
	if s.failWatch != nil {
		return nil, s.failWatch
	}
	ch := make(chan MessageSnapshot, 16)
	ch <- MessageSnapshot{Messages: append([]Message(nil), s.msgs[chatID]...)}
	s.msgWatchers[chatID] = append(s.msgWatchers[chatID], ch)
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		s.dropMsgWatcherLocked(chatID, ch)
	}()
	return ch, nil
}

func (s *memStore) dropMsgWatcherLocked(chatID string, ch chan MessageSnapshot) {
	ws := s.msgWatchers[chatID]
	for i, w := range ws {
		if w == ch {
			s.msgWatchers[chatID] = append(ws[:i], ws[i+1:]...)
			close(ch)
			return
		}
	}
}

// breakFeed ends every message watcher on chatID with err.
func (s *memStore) breakFeed(chatID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.msgWatchers[chatID] {
		ch <- MessageSnapshot{Err: err}
		close(ch)
	}
	s.msgWatchers[chatID] = nil
}

// push delivers msgs as-is to every watcher, bypassing the store contents.
func (s *memStore) push(chatID string, msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.msgWatchers[chatID] {
		ch <- MessageSnapshot{Messages: msgs}
	}
}

func (s *memStore) notifyLocked(chatID string) {
	snap := append([]Message(nil), s.msgs[chatID]...)
	for _, ch := range s.msgWatchers[chatID] {
		ch <- MessageSnapshot{Messages: snap}
	}
}

func (s *memStore) ListMessages(_ context.Context, chatID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.msgs[chatID]...), nil
}

func (s *memStore) AddMessage(_ context.Context, m Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAdd != nil {
		return "", s.failAdd
	}
	s.nextID++
	m.ID = fmt.Sprintf("m%d", s.nextID)
	s.msgs[m.ChatID] = append(s.msgs[m.ChatID], m)
	s.notifyLocked(m.ChatID)
	return m.ID, nil
}

func (s *memStore) UpdateSummary(_ context.Context, chatID string, sum Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[chatID] = sum
	return nil
}

func (s *memStore) find(chatID, id string) (*Message, error) {
	for i := range s.msgs[chatID] {
		if s.msgs[chatID][i].ID == id {
			return &s.msgs[chatID][i], nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) AddReader(_ context.Context, chatID, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.find(chatID, id)
	if err != nil {
		return err
	}
	if !m.ReadByUser(userID) {
		m.ReadBy = append(m.ReadBy, userID)
	}
	s.notifyLocked(chatID)
	return nil
}

func (s *memStore) AdvanceStatus(_ context.Context, chatID, id string, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.find(chatID, id)
	if err != nil {
		return err
	}
	if !m.Status.CanAdvance(to) {
		return ErrInvalidTransition
	}
	m.Status = to
	s.notifyLocked(chatID)
	return nil
}

func (s *memStore) DeleteMessage(_ context.Context, chatID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.msgs[chatID] {
		if m.ID == id {
			s.msgs[chatID] = append(s.msgs[chatID][:i], s.msgs[chatID][i+1:]...)
			s.notifyLocked(chatID)
			return nil
		}
	}
	return ErrNotFound
}

func (s *memStore) MessagesNotFrom(_ context.Context, chatID, userID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.msgs[chatID] {
		if m.SenderID != userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) CreateChat(_ context.Context, c Chat) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = fmt.Sprintf("c%d", len(s.chats)+1)
	}
	s.chats = append(s.chats, c)
	return c.ID, nil
}

func (s *memStore) ListChats(_ context.Context, companyID string) ([]Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Chat
	for _, c := range s.chats {
		if c.CompanyID == companyID {
			c.Summary = s.summaries[c.ID]
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) SetTyping(_ context.Context, chatID, userID string, typing bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typing[chatID] == nil {
		s.typing[chatID] = map[string]bool{}
	}
	s.typing[chatID][userID] = typing
	s.published = append(s.published, typing)
	snap := s.typingSnapshotLocked(chatID)
	for _, ch := range s.typWatchers[chatID] {
		ch <- snap
	}
	return nil
}

func (s *memStore) typingSnapshotLocked(chatID string) TypingSnapshot {
	var states []TypingState
	for u, t := range s.typing[chatID] {
		states = append(states, TypingState{ChatID: chatID, UserID: u, Typing: t})
	}
	return TypingSnapshot{States: states}
}

func (s *memStore) WatchTyping(ctx context.Context, chatID string) (<-chan TypingSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan TypingSnapshot, 16)
	ch <- s.typingSnapshotLocked(chatID)
	s.typWatchers[chatID] = append(s.typWatchers[chatID], ch)
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		ws := s.typWatchers[chatID]
		for i, w := range ws {
			if w == ch {
				s.typWatchers[chatID] = append(ws[:i], ws[i+1:]...)
				close(ch)
				return
			}
		}
	}()
	return ch, nil
}

func (s *memStore) publishes() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.published...)
}

func (s *memStore) watches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watchCalls
}

// recView records every call a Session makes on its view.
type recView struct {
	mu          sync.Mutex
	renders     [][]Message
	lasts       []int
	typing      bool
	typingLabel string
	preview     string
	previewOn   bool
	cleared     int
	notices     []string
	syncLost    []bool
	confirmYes  bool
	prompts     []string
}

func (v *recView) RenderMessages(msgs []Message, last int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.renders = append(v.renders, msgs)
	v.lasts = append(v.lasts, last)
}

func (v *recView) SetTypingIndicator(visible bool, label string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.typing, v.typingLabel = visible, label
}

func (v *recView) ShowReplyPreview(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.preview, v.previewOn = text, true
}

func (v *recView) HideReplyPreview() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.previewOn = false
}

func (v *recView) ClearCompose() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cleared++
}

func (v *recView) Notify(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notices = append(v.notices, text)
}

func (v *recView) SetSyncLost(lost bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.syncLost = append(v.syncLost, lost)
}

func (v *recView) Confirm(prompt string, onConfirm func()) {
	v.mu.Lock()
	v.prompts = append(v.prompts, prompt)
	yes := v.confirmYes
	v.mu.Unlock()
	if yes {
		onConfirm()
	}
}

func (v *recView) lastRender() ([]Message, int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.renders) == 0 {
		return nil, 0, false
	}
	return v.renders[len(v.renders)-1], v.lasts[len(v.lasts)-1], true
}

func (v *recView) renderCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.renders)
}

// viewState is a lock-free copy of what a recView has seen.
type viewState struct {
	typing      bool
	typingLabel string
	preview     string
	previewOn   bool
	cleared     int
	notices     []string
	syncLost    []bool
	prompts     []string
}

func (v *recView) snapshot() viewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return viewState{
		typing:      v.typing,
		typingLabel: v.typingLabel,
		preview:     v.preview,
		previewOn:   v.previewOn,
		cleared:     v.cleared,
		notices:     append([]string(nil), v.notices...),
		syncLost:    append([]bool(nil), v.syncLost...),
		prompts:     append([]string(nil), v.prompts...),
	}
}

type fakeClipboard struct {
	text string
	err  error
}

func (c *fakeClipboard) WriteAll(text string) error {
	if c.err != nil {
		return c.err
	}
	c.text = text
	return nil
}

var errBoom = errors.New("boom")

package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/driftpro/internal/bus"
	"github.com/matheus3301/driftpro/internal/status"
	"go.uber.org/zap"
)

var errFeedClosed = errors.New("message feed closed")

// Backoff is an exponential resubscribe delay.
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

// DefaultBackoff is used when a session is configured without one.
var DefaultBackoff = Backoff{Min: 250 * time.Millisecond, Max: 30 * time.Second}

// Delay returns the wait before resubscribe attempt n (0-based). An unset
// Max takes the default ceiling. Delay never drops below Min.
func (b Backoff) Delay(n int) time.Duration {
	if b.Min <= 0 {
		b = DefaultBackoff
	}
	if b.Max <= 0 {
		b.Max = DefaultBackoff.Max
	}
	b.Max = max(b.Max, b.Min)
	if n > 30 {
		return b.Max
	}
	d := b.Min << n
	if d <= 0 || d > b.Max {
		return b.Max
	}
	return d
}

// Timeline projects a chat's live message feed into an in-memory list. Every
// snapshot replaces the list; a failed feed keeps the last good list, marks
// the link lost and resubscribes with backoff.
type Timeline struct {
	store    MessageStore
	chatID   string
	view     View
	dispatch Dispatcher
	backoff  Backoff
	link     *status.Machine
	logger   *zap.Logger

	mu   sync.RWMutex
	msgs []Message

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewTimeline creates a timeline for chatID. view may be nil.
func NewTimeline(store MessageStore, chatID string, view View, dispatch Dispatcher, backoff Backoff, b *bus.Bus, logger *zap.Logger) *Timeline {
	if dispatch == nil {
		dispatch = Inline
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Timeline{
		store:    store,
		chatID:   chatID,
		view:     view,
		dispatch: dispatch,
		backoff:  backoff,
		link:     status.NewMachine("messages/"+chatID, b),
		logger:   logger,
	}
}

// Start begins the subscription loop. It must be called at most once.
func (t *Timeline) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		t.run(ctx)
	}()
}

// Stop tears down the subscription and waits for the loop to exit. Safe to
// call repeatedly, and before Start.
func (t *Timeline) Stop() {
	t.stopOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
			<-t.done
		}
		_ = t.link.Transition(status.Closed)
	})
}

// Messages returns a copy of the current list.
func (t *Timeline) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Message(nil), t.msgs...)
}

// Link returns the subscription link state.
func (t *Timeline) Link() status.State {
	return t.link.Current()
}

func (t *Timeline) run(ctx context.Context) {
	attempt := 0
	for {
		err := t.follow(ctx, func() { attempt = 0 })
		if ctx.Err() != nil {
			return
		}
		t.markLost(err)

		delay := t.backoff.Delay(attempt)
		attempt++
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		_ = t.link.Transition(status.Resubscribing)
	}
}

// follow consumes one subscription until it fails or ctx ends.
func (t *Timeline) follow(ctx context.Context, onDelivery func()) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := t.store.WatchMessages(subCtx, t.chatID)
	if err != nil {
		return err
	}
	for snap := range ch {
		if snap.Err != nil {
			return snap.Err
		}
		onDelivery()
		t.apply(snap.Messages)
	}
	return errFeedClosed
}

func (t *Timeline) apply(msgs []Message) {
	msgs = dedupe(msgs)

	t.mu.Lock()
	t.msgs = msgs
	t.mu.Unlock()

	wasLost := t.link.IsLost()
	_ = t.link.Transition(status.Live)

	if t.view == nil {
		return
	}
	rendered := append([]Message(nil), msgs...)
	t.dispatch(func() {
		if wasLost {
			t.view.SetSyncLost(false)
		}
		t.view.RenderMessages(rendered, len(rendered)-1)
	})
}

func (t *Timeline) markLost(err error) {
	t.logger.Warn("message feed lost", zap.Error(err), zap.String("chat_id", t.chatID))
	_ = t.link.Transition(status.Lost)
	if t.view != nil {
		t.dispatch(func() { t.view.SetSyncLost(true) })
	}
}

// dedupe drops repeated ids, keeping the first occurrence and store order.
func dedupe(msgs []Message) []Message {
	seen := make(map[string]struct{}, len(msgs))
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID != "" {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
		}
		out = append(out, m)
	}
	return out
}

package chat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTypingQuiet is how long input must stay idle before the publisher
// reports that the user stopped typing.
const DefaultTypingQuiet = 2 * time.Second

// TypingHeartbeat is how often a user who keeps typing re-publishes true.
// Stores age typing records out after a minute, so it must stay well below
// that.
const TypingHeartbeat = 20 * time.Second

const publishTimeout = 5 * time.Second

// TypingPublisher publishes the local user's typing flag with a debounce:
// the first keystroke publishes true, and false follows only after a full
// quiet period with no further keystrokes. At most one timer is pending.
//
// Publishes run on one worker goroutine in the order they were decided, so
// Keystroke, Reset and the timer never wait on the store.
type TypingPublisher struct {
	store  TypingStore
	chatID string
	userID string
	quiet  time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	typing    bool
	announced time.Time
	timer     *time.Timer
	gen       uint64
	stopped   bool
	queue     []bool
	running   bool
	wake      chan struct{}
	done      chan struct{}
}

// NewTypingPublisher creates a publisher for userID in chatID.
func NewTypingPublisher(store TypingStore, chatID, userID string, quiet time.Duration, logger *zap.Logger) *TypingPublisher {
	if quiet <= 0 {
		quiet = DefaultTypingQuiet
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TypingPublisher{
		store:  store,
		chatID: chatID,
		userID: userID,
		quiet:  quiet,
		logger: logger,
		now:    time.Now,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Keystroke records an input change. True is published on the flip from
// idle and again every TypingHeartbeat while typing continues.
func (p *TypingPublisher) Keystroke() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}

	p.rearmLocked()
	now := p.now()
	if !p.typing || now.Sub(p.announced) >= TypingHeartbeat {
		p.typing = true
		p.announced = now
		p.enqueueLocked(true)
	}
}

// Typing reports the locally tracked flag.
func (p *TypingPublisher) Typing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typing
}

// Reset cancels the pending timer and, if the user was typing, publishes
// false. Used after a successful send.
func (p *TypingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
	if p.typing && !p.stopped {
		p.typing = false
		p.enqueueLocked(false)
	}
}

// Stop cancels the pending timer so nothing is published after teardown.
// A user still marked typing is cleared first. Stop waits for queued
// publishes to finish and is idempotent.
func (p *TypingPublisher) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.cancelLocked()
	if p.typing {
		p.typing = false
		p.enqueueLocked(false)
	}
	p.stopped = true
	running := p.running
	p.signal()
	p.mu.Unlock()

	if running {
		<-p.done
	}
}

func (p *TypingPublisher) rearmLocked() {
	p.cancelLocked()
	gen := p.gen
	p.timer = time.AfterFunc(p.quiet, func() { p.expire(gen) })
}

func (p *TypingPublisher) cancelLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	// A timer that already fired but has not taken the lock yet sees a
	// newer generation and does nothing.
	p.gen++
}

func (p *TypingPublisher) expire(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || gen != p.gen || !p.typing {
		return
	}
	p.timer = nil
	p.typing = false
	p.enqueueLocked(false)
}

func (p *TypingPublisher) enqueueLocked(typing bool) {
	p.queue = append(p.queue, typing)
	if !p.running {
		p.running = true
		go p.run()
	}
	p.signal()
}

func (p *TypingPublisher) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// run drains the queue in order until the publisher is stopped and empty.
func (p *TypingPublisher) run() {
	defer close(p.done)
	for {
		p.mu.Lock()
		batch := p.queue
		p.queue = nil
		stopped := p.stopped
		p.mu.Unlock()

		for _, typing := range batch {
			p.publish(typing)
		}
		if len(batch) > 0 {
			continue
		}
		if stopped {
			return
		}
		<-p.wake
	}
}

func (p *TypingPublisher) publish(typing bool) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.store.SetTyping(ctx, p.chatID, p.userID, typing); err != nil {
		p.logger.Warn("failed to publish typing state",
			zap.Error(err), zap.String("chat_id", p.chatID), zap.Bool("typing", typing))
	}
}

// PeerTyping reports whether anyone other than self is typing. Several
// typists collapse into one answer.
func PeerTyping(states []TypingState, self string) bool {
	for _, s := range states {
		if s.Typing && s.UserID != self {
			return true
		}
	}
	return false
}

// TypingLabel is the indicator text shown while a peer types.
func TypingLabel(peer string) string {
	if peer == "" {
		peer = "Someone"
	}
	return peer + " is typing..."
}

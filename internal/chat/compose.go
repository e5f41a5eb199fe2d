package chat

import (
	"fmt"
	"sync"
)

// ComposeState is the reply state of the compose box.
type ComposeState int

const (
	Idle ComposeState = iota
	Replying
)

func (s ComposeState) String() string {
	if s == Replying {
		return "replying"
	}
	return "idle"
}

// Compose tracks the optional message the next send replies to.
type Compose struct {
	mu     sync.Mutex
	target *Message
}

// State returns the current compose state.
func (c *Compose) State() ComposeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.target != nil {
		return Replying
	}
	return Idle
}

// Target returns the reply target while Replying.
func (c *Compose) Target() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.target == nil {
		return Message{}, false
	}
	return *c.target, true
}

// RequestReply moves to Replying(m) and returns the preview text. A second
// request replaces the target.
func (c *Compose) RequestReply(m Message) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = &m
	return ReplyPreview(m)
}

// Cancel moves to Idle.
func (c *Compose) Cancel() {
	c.mu.Lock()
	c.target = nil
	c.mu.Unlock()
}

// SendSucceeded moves to Idle once the outgoing message is persisted.
func (c *Compose) SendSucceeded() {
	c.Cancel()
}

// ReplyPreview summarizes the reply target for the compose view.
func ReplyPreview(m Message) string {
	return fmt.Sprintf("Replying to %s: %s", m.SenderName, m.Text)
}

package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/driftpro/internal/bus"
)

// State is the state of one live subscription link (a chat timeline or a
// typing feed).
type State string

const (
	Subscribing   State = "SUBSCRIBING"
	Live          State = "LIVE"
	Lost          State = "LOST"
	Resubscribing State = "RESUBSCRIBING"
	Closed        State = "CLOSED"
)

// validTransitions defines allowed link transitions. Closed is terminal.
var validTransitions = map[State][]State{
	Subscribing:   {Live, Lost, Closed},
	Live:          {Lost, Closed},
	Lost:          {Resubscribing, Closed},
	Resubscribing: {Live, Lost, Closed},
	Closed:        {},
}

// Machine tracks and enforces link state transitions for one feed.
type Machine struct {
	mu      sync.RWMutex
	feed    string
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine in the Subscribing state. feed names the link
// in published events (e.g. "messages/c1").
func NewMachine(feed string, b *bus.Bus) *Machine {
	return &Machine{
		feed:    feed,
		current: Subscribing,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsLost reports whether the link is not currently delivering updates.
func (m *Machine) IsLost() bool {
	s := m.Current()
	return s == Lost || s == Resubscribing
}

// Transition attempts to move to a new state. Moving to the current state is
// a no-op; other invalid moves return an error and leave the state unchanged.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid link transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindSyncStatusChanged,
			Timestamp: time.Now(),
			Payload: StatusChange{
				Feed: m.feed,
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for link status events.
type StatusChange struct {
	Feed string
	From State
	To   State
}

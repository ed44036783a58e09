// Package agent wires the on-chain operator, the inference process
// supervisor, the session/checkpoint engine, and the wallet into one
// lifecycle: initialize, authenticate, register, serve, shut down.
package agent

import (
	"sync"
	"time"
)

// EventKind is the closed set of events an Agent publishes, per spec.md
// §4.4's event list.
type EventKind string

const (
	EventConnected            EventKind = "connected"
	EventAuthChanged          EventKind = "auth_changed"
	EventRegistered           EventKind = "registered"
	EventPricingChanged       EventKind = "pricing_changed"
	EventSessionStarted       EventKind = "session_started"
	EventSessionEnded         EventKind = "session_ended"
	EventCheckpointReached    EventKind = "checkpoint_reached"
	EventCheckpointProcessed  EventKind = "checkpoint_processed"
	EventCheckpointFailed     EventKind = "checkpoint_failed"
	EventWithdrawn            EventKind = "withdrawn"
	EventBalanceChanged       EventKind = "balance_changed"
	EventRequirementsChanged  EventKind = "requirements_changed"
	EventError                EventKind = "error"
)

// Event is the single envelope every subscriber receives, regardless of
// Kind — the management API's WS stream and the CLI's `status --follow`
// both read from the same typed channel per SPEC_FULL §4.4's redesign note.
type Event struct {
	Kind EventKind
	At   time.Time

	Authenticated bool   // AuthChanged
	Address       string // AuthChanged, Connected

	ModelID string // PricingChanged
	TokenID string // PricingChanged

	SessionID string // SessionStarted/Ended, CheckpointReached/Processed/Failed
	JobID     string
	Index     int    // CheckpointReached/Processed/Failed
	TxHash    string // Registered, Withdrawn, CheckpointProcessed

	Balances map[string]string // BalanceChanged (symbol -> decimal string)

	RequirementsMet bool     // RequirementsChanged
	Reasons         []string // RequirementsChanged

	Err error // Error
}

// bus is a minimal typed publish/subscribe fan-out. Slow subscribers never
// block a publisher: each gets its own bounded buffered channel and a
// publish that would block is dropped for that subscriber only.
//
// Connected and AuthChanged describe durable state rather than one-off
// occurrences, and both are typically published before any caller has had
// a chance to Subscribe. The bus replays the most recent of each to every
// new subscriber so that state is never silently lost.
type bus struct {
	subsMu sync.Mutex
	subs   []chan Event

	lastConnected   *Event
	lastAuthChanged *Event
}

func newBus() *bus { return &bus{} }

func (b *bus) subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.subsMu.Lock()
	if b.lastConnected != nil {
		ch <- *b.lastConnected
	}
	if b.lastAuthChanged != nil {
		ch <- *b.lastAuthChanged
	}
	b.subs = append(b.subs, ch)
	b.subsMu.Unlock()
	return ch
}

func (b *bus) publish(ev Event) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	switch ev.Kind {
	case EventConnected:
		captured := ev
		b.lastConnected = &captured
	case EventAuthChanged:
		captured := ev
		b.lastAuthChanged = &captured
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

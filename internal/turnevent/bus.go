// Package turnevent provides a pub/sub bus for the agent loop's
// turn-lifecycle events (same watermill-backed design as opencode's
// internal/event, narrowed to a small turn-lifecycle catalog) so a
// headless CLI printer — or a test asserting the turn lifecycle's
// ordering — can observe a turn's progress without coupling to
// agentloop internals.
package turnevent

import (
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Kind identifies a turn-lifecycle event.
type Kind string

const (
	TurnStarted    Kind = "turn.started"
	TurnStreaming  Kind = "turn.streaming"
	ShellExecuted  Kind = "turn.shell_executed"
	TurnPersisted  Kind = "turn.persisted"
	SessionSpawned Kind = "session.spawned"
	SessionExited  Kind = "session.exited"
)

// Event is one turn-lifecycle occurrence.
type Event struct {
	Kind Kind
	// TurnID correlates events within one agent turn; it is a display/log
	// concern only (an oklog/ulid), never part of the on-disk conversation.
	TurnID string
	Data   any
}

// Subscriber receives events.
type Subscriber func(Event)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus is the turn-lifecycle event bus. It holds a watermill gochannel,
// which Close shuts down, but Publish does not route events through it:
// delivery is a direct call to each subscriber, so subscribers keep
// concrete Go types.
type Bus struct {
	mu          sync.RWMutex
	pubsub      *gochannel.GoChannel
	subscribers []subscriberEntry
	nextID      uint64
	closed      bool
}

// New creates a turn-event bus.
func New() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64, Persistent: false},
			watermill.NopLogger{},
		),
	}
}

// Subscribe registers fn for every event and returns an unsubscribe func.
func (b *Bus) Subscribe(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := atomic.AddUint64(&b.nextID, 1)
	b.subscribers = append(b.subscribers, subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.subscribers {
		if e.id == id {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every subscriber synchronously, in registration
// order, so a test can rely on the ordering guarantees of the turn lifecycle.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]Subscriber, len(b.subscribers))
	for i, e := range b.subscribers {
		subs[i] = e.fn
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub(ev)
	}
}

// Close shuts down the underlying watermill pub/sub.
func (b *Bus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return b.pubsub.Close()
}

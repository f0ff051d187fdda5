package syncer

import "sync"

// EventKind classifies a terminal sync event.
type EventKind int

const (
	// EventSuccess reports a sync run that completed all phases.
	EventSuccess EventKind = iota
	// EventFailure reports a sync run that stopped at a failed phase.
	EventFailure
)

// Event is the single terminal outcome of one sync invocation.
type Event struct {
	Kind    EventKind
	Key     ErrorKey // set on failure
	Message string   // localized, set on failure
}

// Broadcaster fans terminal sync events out to subscribers. Slow
// subscribers never block the publisher: a subscriber that has not
// drained its previous event misses the new one.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener. The returned cancel func must be
// called to release the subscription; the channel is closed on cancel.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, 1)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every current subscriber without
// blocking.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

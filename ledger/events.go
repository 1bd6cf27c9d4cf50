package ledger

import "sync"

// EventType labels a status event on the bus.
type EventType string

const (
	EventVoteCast                 EventType = "voteCast"
	EventTallyUpdate              EventType = "tallyUpdate"
	EventDecryptionShareSubmitted EventType = "decryptionShareSubmitted"
	EventVoteFinalized            EventType = "voteFinalized"
)

// Event is one status notification. Payload content depends on the type and
// never contains voter-identifying data.
type Event struct {
	Type        EventType
	VoteEventID string
	Payload     map[string]any
}

// Bus is a fan-out event bus for vote status updates. Slow subscribers drop
// events instead of blocking the ledger write path.
type Bus struct {
	mu   sync.Mutex
	subs map[int]*subscriber
	next int
}

// subscriber is one listener; an empty filter receives every event.
type subscriber struct {
	ch     chan Event
	filter string
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers a listener for all events. The returned cancel
// function must be called to release the subscription.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	return b.subscribe("")
}

// SubscribeTo registers a listener scoped to one vote event; it only
// receives events whose VoteEventID matches.
func (b *Bus) SubscribeTo(voteEventID string) (<-chan Event, func()) {
	return b.subscribe(voteEventID)
}

func (b *Bus) subscribe(filter string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	sub := &subscriber{ch: make(chan Event, 64), filter: filter}
	b.subs[id] = sub
	return sub.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub.ch)
		}
	}
}

// Publish delivers an event to all matching subscribers without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.filter != "" && sub.filter != ev.VoteEventID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

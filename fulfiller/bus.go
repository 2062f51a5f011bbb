package fulfiller

import "sync"

// subscriptionBuffer is how many undelivered events a single subscriber can
// lag behind before publishes start dropping for it.
const subscriptionBuffer = 32

// Bus broadcasts notification events to every live subscription. Publishing
// never blocks: a subscriber that cannot keep up loses events instead of
// stalling the publisher or its peers.
type Bus struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Subscription is a private view of all events published after Subscribe
// was called. Close it when done or the bus keeps delivering into it.
type Subscription struct {
	C   chan NotificationEvent
	bus *Bus
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		C:   make(chan NotificationEvent, subscriptionBuffer),
		bus: b,
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
}

// Publish delivers ev to every current subscription. Zero subscribers is
// fine; the event is simply dropped.
func (b *Bus) Publish(ev NotificationEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.C <- ev:
		default:
			// subscriber buffer full -- drop rather than block
		}
	}
}

// Subscribers reports the current subscription count.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

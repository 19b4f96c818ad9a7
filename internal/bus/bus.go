// Package bus is the event fan-out used by the dashboard's live job feed.
// Adapted from the teacher's MessageBus: the inbound/outbound channel
// queues (built for routing across many chat transports) are dropped since
// peterbot's ChatDispatcher talks to its single ChatGateway directly; what's
// kept is the subscriber registry, used here to push JobEvents to every
// open /api/ws/jobs connection.
package bus

import "sync"

// EventHandler receives a broadcast Event. Handlers must not block.
type EventHandler func(Event)

// EventBus fans a stream of Events out to any number of subscribers.
type EventBus struct {
	subscribers map[string]EventHandler
	subMu       sync.RWMutex
}

func New() *EventBus {
	return &EventBus{subscribers: make(map[string]EventHandler)}
}

// Subscribe registers an event subscriber under id. A second Subscribe call
// with the same id replaces the first.
func (b *EventBus) Subscribe(id string, handler EventHandler) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.subscribers[id] = handler
}

// Unsubscribe removes a subscriber.
func (b *EventBus) Unsubscribe(id string) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	delete(b.subscribers, id)
}

// Broadcast sends event to every current subscriber.
func (b *EventBus) Broadcast(event Event) {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	for _, handler := range b.subscribers {
		handler(event)
	}
}

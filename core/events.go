package core

import "sync"

// Event is a message published on a Broker topic.
type Event struct {
	Topic   string
	Payload interface{}
}

// Broker is an in-process publish/subscribe channel owned by the application
// shell and injected into the parts that need cross-screen notifications
// (e.g. refreshing a list when a subscription status changes). Publish never
// blocks: events to subscribers with a full buffer are dropped.
type Broker struct {
	mu     sync.Mutex
	subs   map[string][]chan Event
	closed bool
}

const subscriberBuffer = 8

func NewBroker() *Broker {
	return &Broker{subs: make(map[string][]chan Event)}
}

// Subscribe registers interest in the given topics and returns the delivery
// channel along with an unsubscribe function. The channel is closed on
// unsubscribe and on Broker.Close.
func (b *Broker) Subscribe(topics ...string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	for _, topic := range topics {
		b.subs[topic] = append(b.subs[topic], ch)
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for _, topic := range topics {
				chans := b.subs[topic]
				for i, c := range chans {
					if c == ch {
						b.subs[topic] = append(chans[:i], chans[i+1:]...)
						break
					}
				}
			}
			if !b.closed {
				close(ch)
			}
		})
	}
	return ch, unsubscribe
}

// Publish delivers the event to all current subscribers of the topic.
func (b *Broker) Publish(topic string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs[topic] {
		select {
		case ch <- Event{Topic: topic, Payload: payload}:
		default: // subscriber is not keeping up
		}
	}
}

// Close closes all subscriber channels and discards further publishes.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	seen := make(map[chan Event]bool)
	for _, chans := range b.subs {
		for _, ch := range chans {
			if !seen[ch] {
				seen[ch] = true
				close(ch)
			}
		}
	}
	b.subs = nil
}

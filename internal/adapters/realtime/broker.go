// Package realtime fans out table-change notifications to live subscribers.
package realtime

import (
	"log/slog"
	"sync"
	"time"
)

// Topics published by writers.
const (
	TopicUsers   = "users"
	TopicMembers = "members"
	TopicAudit   = "audit_logs"
)

// Event announces that a table changed. Subscribers refetch; events carry no rows.
type Event struct {
	Topic string
	At    time.Time
}

// Broker is an in-process publish/subscribe hub.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscription delivers events for one topic until Unsubscribe is called.
type Subscription struct {
	broker *Broker
	topic  string
	ch     chan Event
	once   sync.Once
}

// Subscribe registers interest in a topic.
// POST: the caller must Unsubscribe when its scope ends
func (b *Broker) Subscribe(topic string) *Subscription {
	s := &Subscription{broker: b, topic: topic, ch: make(chan Event, 1)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*Subscription]struct{})
	}
	b.subs[topic][s] = struct{}{}
	slog.Debug("realtime_event", "event", "subscribed", "topic", topic)
	return s
}

// Events returns the delivery channel. It is closed by Unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Unsubscribe removes the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[s.topic]; ok {
			if _, present := set[s]; present {
				delete(set, s)
				close(s.ch)
			}
			if len(set) == 0 {
				delete(b.subs, s.topic)
			}
		}
		slog.Debug("realtime_event", "event", "unsubscribed", "topic", s.topic)
	})
}

// Publish notifies every subscriber of topic without blocking.
// A subscriber with an undelivered event already pending is skipped;
// one pending notification is enough to trigger a refetch.
func (b *Broker) Publish(topic string) {
	ev := Event{Topic: topic, At: time.Now()}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs[topic] {
		select {
		case s.ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Close ends every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, set := range b.subs {
		for s := range set {
			close(s.ch)
		}
		delete(b.subs, topic)
	}
}

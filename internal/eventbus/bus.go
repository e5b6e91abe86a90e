// Package eventbus implements the Event Bus component: a single best-effort
// broadcast stream that fans Event values out to every connected dashboard
// subscriber. The subscriber set is a map guarded by a sync.RWMutex;
// Subscribe, unsubscribe and eviction take the write lock, while Publish
// copies the recipient set under the read lock and sends outside of it.
// There is one broadcast stream, not per-topic channels (the WS /events
// endpoint has no topic scoping).
package eventbus

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// subscriberDeadline bounds how long Publish waits on a single subscriber's
// channel before giving up and evicting it. A slow dashboard client must
// never be able to stall delivery to everyone else.
const subscriberDeadline = 200 * time.Millisecond

// sendBufferSize is the per-subscriber outbound buffer. Once it is full,
// Publish waits up to subscriberDeadline for room and then evicts.
const sendBufferSize = 64

// Bus is the Event Bus: Subscribe to receive a channel of Events, Publish to
// broadcast one to every current subscriber.
type Bus struct {
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	ch chan Event
}

// New creates an empty Bus.
func New(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger.Named("eventbus"),
		subs:   make(map[*subscriber]struct{}),
	}
}

// Subscribe registers a new listener and returns its channel along with an
// unsubscribe function. The channel is closed once unsubscribe runs (or once
// the bus evicts the subscriber for falling behind).
func (b *Bus) Subscribe() (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, sendBufferSize)}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[sub]; ok {
				delete(b.subs, sub)
				close(sub.ch)
			}
			b.mu.Unlock()
		})
	}

	return sub.ch, unsubscribe
}

// Publish broadcasts ev to every current subscriber. Delivery to each
// subscriber is attempted for up to subscriberDeadline; a subscriber that
// doesn't drain in time is evicted so one stuck client can't back up the
// whole bus.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subs))
	for s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- ev:
		default:
			// Buffer full — fall back to a bounded wait before evicting.
			timer := time.NewTimer(subscriberDeadline)
			select {
			case s.ch <- ev:
				timer.Stop()
			case <-timer.C:
				b.evict(s)
			}
		}
	}
}

func (b *Bus) evict(s *subscriber) {
	b.mu.Lock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
	b.mu.Unlock()
	b.logger.Warn("evicted event subscriber that did not keep up")
}

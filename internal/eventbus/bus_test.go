package eventbus

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	bus := New(zap.NewNop())
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	id := int64(7)
	bus.Publish(Event{Type: KindConnected, TurtleID: &id})

	select {
	case ev := <-ch:
		if ev.Type != KindConnected || ev.TurtleID == nil || *ev.TurtleID != id {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(zap.NewNop())
	ch, unsubscribe := bus.Subscribe()
	unsubscribe()

	_, ok := <-ch
	if ok {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestPublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	bus := New(zap.NewNop())
	done := make(chan struct{})
	go func() {
		bus.Publish(Event{Type: KindLog, Message: "hello"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}

func TestSlowSubscriberIsEvicted(t *testing.T) {
	bus := New(zap.NewNop())
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	// Fill the subscriber's buffer, then push one more — the subscriber
	// never drains, so this publish must evict it instead of blocking
	// forever.
	for i := 0; i < sendBufferSize; i++ {
		bus.Publish(Event{Type: KindLog})
	}

	done := make(chan struct{})
	go func() {
		bus.Publish(Event{Type: KindLog})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish did not return after evicting a slow subscriber")
	}

	// Drain to confirm the channel was closed by eviction.
	for range ch {
	}
}

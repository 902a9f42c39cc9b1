package core

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	events, unsubscribe := b.Subscribe("auth.verified", "auth.token-refreshed")
	defer unsubscribe()

	b.Publish("auth.verified", 7)
	b.Publish("unrelated.topic", "nope")
	b.Publish("auth.token-refreshed", nil)

	ev := <-events
	if ev.Topic != "auth.verified" || ev.Payload.(int) != 7 {
		t.Errorf("event = %+v", ev)
	}
	ev = <-events
	if ev.Topic != "auth.token-refreshed" {
		t.Errorf("event = %+v", ev)
	}
	select {
	case ev := <-events:
		t.Errorf("unexpected event %+v", ev)
	default:
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	events, unsubscribe := b.Subscribe("topic")
	unsubscribe()

	// channel is closed and no longer receives
	if _, open := <-events; open {
		t.Error("channel still open after unsubscribe")
	}
	b.Publish("topic", nil)

	// unsubscribing twice is fine
	unsubscribe()
}

func TestBrokerSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	_, unsubscribe := b.Subscribe("topic")
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// more than the subscriber buffer; extra events are dropped
		for i := 0; i < subscriberBuffer*3; i++ {
			b.Publish("topic", i)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestBrokerClose(t *testing.T) {
	b := NewBroker()
	events, unsubscribe := b.Subscribe("topic")

	b.Close()
	if _, open := <-events; open {
		t.Error("channel still open after Close")
	}

	// all further operations are no-ops
	b.Publish("topic", nil)
	b.Close()
	unsubscribe()

	late, _ := b.Subscribe("topic")
	if _, open := <-late; open {
		t.Error("subscribing to a closed broker must hand back a closed channel")
	}
}

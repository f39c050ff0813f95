package events

import (
	"testing"
	"time"
)

func TestMemoryBrokerPubSub(t *testing.T) {
	b := NewMemory()
	ch := b.Subscribe(TopicFleet)
	defer b.Unsubscribe(TopicFleet, ch)

	b.Publish(TopicFleet, Event{Type: "playlist.generated", Data: map[string]any{"truckId": "t1"}})
	select {
	case evt := <-ch:
		if evt.Type != "playlist.generated" {
			t.Fatalf("type: got %s", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestMemoryBrokerTopicsIsolated(t *testing.T) {
	b := NewMemory()
	fleet := b.Subscribe(TopicFleet)
	truck := b.Subscribe("truck-1")
	defer b.Unsubscribe(TopicFleet, fleet)
	defer b.Unsubscribe("truck-1", truck)

	b.Publish("truck-1", Event{Type: "truck.heartbeat"})
	select {
	case <-truck:
	case <-time.After(time.Second):
		t.Fatal("truck subscriber missed its event")
	}
	select {
	case evt := <-fleet:
		t.Fatalf("fleet subscriber got foreign event %s", evt.Type)
	default:
	}
}

func TestMemoryBrokerDropsWhenSlow(t *testing.T) {
	b := NewMemory()
	ch := b.Subscribe(TopicFleet)
	defer b.Unsubscribe(TopicFleet, ch)
	// Publishing past a full buffer must not block the publisher.
	for i := 0; i < 1000; i++ {
		b.Publish(TopicFleet, Event{Type: "campaign.approved"})
	}
}

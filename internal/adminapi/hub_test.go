package adminapi

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestHubBroadcastDeliversToAllSubscribers(t *testing.T) {
	h := NewHub(zerolog.Nop())

	ch1, cancel1 := h.subscribe()
	defer cancel1()
	ch2, cancel2 := h.subscribe()
	defer cancel2()

	if got := h.SubscriberCount(); got != 2 {
		t.Fatalf("SubscriberCount() = %d, want 2", got)
	}

	h.broadcast("wake/event", []byte(`{"type":"wake"}`))

	for _, ch := range []chan wireEvent{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Topic != "wake/event" {
				t.Fatalf("evt.Topic = %q, want wake/event", evt.Topic)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for broadcast")
		}
	}
}

func TestHubBroadcastDropsOnFullSlowSubscriber(t *testing.T) {
	h := NewHub(zerolog.Nop())
	ch, cancel := h.subscribe()
	defer cancel()

	for i := 0; i < cap(ch)+5; i++ {
		h.broadcast("llm/stream", []byte(`{}`))
	}
	// Must not block or panic; the slow subscriber just misses some.
	if len(ch) != cap(ch) {
		t.Fatalf("len(ch) = %d, want %d (full but not blocked)", len(ch), cap(ch))
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub(zerolog.Nop())
	ch, cancel := h.subscribe()
	cancel()

	if got := h.SubscriberCount(); got != 0 {
		t.Fatalf("SubscriberCount() after cancel = %d, want 0", got)
	}

	h.broadcast("wake/event", []byte(`{}`))
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}
}

func TestFleetTrackerConnectedWorkersExcludesStale(t *testing.T) {
	f := NewFleetTracker(50 * time.Millisecond)
	f.mu.Lock()
	f.seen["wake-1"] = time.Now()
	f.seen["llm-1"] = time.Now().Add(-time.Second)
	f.mu.Unlock()

	if got := f.ConnectedWorkers(); got != 1 {
		t.Fatalf("ConnectedWorkers() = %d, want 1", got)
	}
}

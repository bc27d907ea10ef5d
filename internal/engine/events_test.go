package engine_test

import (
	"testing"

	"github.com/seantiz/modreg/internal/engine"
)

func TestBrokerDeliversToAllSubscribers(t *testing.T) {
	b := engine.NewBroker()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.Publish(engine.Event{Type: engine.EventEnabled, Key: "cart"})
	b.Close()

	for i, ch := range []<-chan engine.Event{ch1, ch2} {
		var got []engine.Event
		for ev := range ch {
			got = append(got, ev)
		}
		if len(got) != 1 || got[0].Key != "cart" || got[0].Type != engine.EventEnabled {
			t.Errorf("subscriber %d got %+v, want one enabled event for cart", i, got)
		}
		if got[0].At.IsZero() {
			t.Errorf("subscriber %d event has no timestamp", i)
		}
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := engine.NewBroker()
	ch, unsub := b.Subscribe()

	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	b.Publish(engine.Event{Type: engine.EventSynced})
}

func TestBrokerSubscribeAfterClose(t *testing.T) {
	b := engine.NewBroker()
	b.Close()

	ch, unsub := b.Subscribe()
	defer unsub()

	if _, ok := <-ch; ok {
		t.Error("subscribing to a closed broker should return a closed channel")
	}
}

func TestBrokerDropsWhenSubscriberIsSlow(t *testing.T) {
	b := engine.NewBroker()
	ch, unsub := b.Subscribe()
	defer unsub()

	// Publish must never block on a full buffer.
	for range 1000 {
		b.Publish(engine.Event{Type: engine.EventSynced})
	}
	b.Close()

	n := 0
	for range ch {
		n++
	}
	if n == 0 || n >= 1000 {
		t.Errorf("received %d events, want between 1 and 999", n)
	}
}

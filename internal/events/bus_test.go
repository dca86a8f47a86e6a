package events

import (
	"testing"
	"time"
)

func TestSubscribeFiltersByKind(t *testing.T) {
	b := NewBus()
	wakeCh := b.Subscribe(KindSchedulerWake)
	workCh := b.Subscribe(KindNewWork)

	now := time.Now()
	b.Publish(NewWork("o/r", 1, now))
	b.Publish(SchedulerWake("", now))

	select {
	case ev := <-workCh:
		if ev.Kind != KindNewWork {
			t.Fatalf("workCh got kind %s", ev.Kind)
		}
	default:
		t.Fatal("expected new_work event on workCh")
	}

	select {
	case ev := <-wakeCh:
		if ev.Kind != KindSchedulerWake {
			t.Fatalf("wakeCh got kind %s", ev.Kind)
		}
	default:
		t.Fatal("expected scheduler_wake event on wakeCh")
	}
}

func TestSubscribeAllKindsWithEmptyFilter(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()

	b.Publish(Escalation("o/r", 9, "stuck", time.Now()))

	select {
	case ev := <-ch:
		if ev.Kind != KindEscalation || ev.Reason != "stuck" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected escalation event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe(KindNewWork)
	b.Unsubscribe(ch)

	b.Publish(NewWork("o/r", 2, time.Now()))

	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
}

func TestPublishDropsOnFullChannelWithoutBlocking(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe(KindNewWork)

	for i := 0; i < subscriberBuffer+5; i++ {
		done := make(chan struct{})
		go func() {
			b.Publish(NewWork("o/r", i, time.Now()))
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Publish blocked on a full subscriber channel")
		}
	}

	if b.DroppedCount() == 0 {
		t.Fatal("expected at least one dropped event once the buffer overflowed")
	}
	_ = ch
}

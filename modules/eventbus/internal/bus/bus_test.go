package bus

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPublishDelivers(t *testing.T) {
	b := New()
	defer b.Close()

	ch := make(chan Event, 4)
	if err := b.Subscribe("ui", ch); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	b.Publish(Event{Kind: KindCaptured, Shot: 1})

	select {
	case ev := <-ch:
		if ev.Kind != KindCaptured || ev.Shot != 1 {
			t.Errorf("unexpected event %+v", ev)
		}
		if ev.Timestamp.IsZero() {
			t.Error("expected Publish to stamp the event")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	defer b.Close()

	ch := make(chan Event, 1)
	b.Subscribe("slow", ch)

	done := make(chan struct{})
	go func() {
		b.Publish(Event{Kind: KindDeleted})
		b.Publish(Event{Kind: KindDownloaded})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Publish blocked (should be non-blocking)")
	}

	if ev := <-ch; ev.Kind != KindDeleted {
		t.Errorf("expected first event kept, got %v", ev.Kind)
	}

	stats := b.Stats()
	if stats.TotalPublished != 2 {
		t.Errorf("expected 2 published, got %d", stats.TotalPublished)
	}
	sub := stats.Subscribers["slow"]
	if sub.Sent != 1 || sub.Dropped != 1 {
		t.Errorf("expected sent=1 dropped=1, got %+v", sub)
	}
}

func TestSubscribeErrors(t *testing.T) {
	b := New()

	if err := b.Subscribe("a", nil); !errors.Is(err, ErrNilChannel) {
		t.Errorf("expected ErrNilChannel, got %v", err)
	}

	ch := make(chan Event, 1)
	b.Subscribe("a", ch)
	if err := b.Subscribe("a", ch); !errors.Is(err, ErrSubscriberExists) {
		t.Errorf("expected ErrSubscriberExists, got %v", err)
	}

	if err := b.Unsubscribe("missing"); !errors.Is(err, ErrSubscriberNotFound) {
		t.Errorf("expected ErrSubscriberNotFound, got %v", err)
	}

	b.Close()
	b.Close()

	if err := b.Subscribe("b", ch); !errors.Is(err, ErrBusClosed) {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}
	if err := b.Unsubscribe("a"); !errors.Is(err, ErrBusClosed) {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}

	// no panic
	b.Publish(Event{Kind: KindFlash})
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	defer b.Close()

	ch := make(chan Event, 2)
	b.Subscribe("x", ch)
	b.Unsubscribe("x")
	b.Publish(Event{Kind: KindComposed})

	if len(ch) != 0 {
		t.Errorf("expected no delivery after unsubscribe, got %d events", len(ch))
	}
}

func TestConcurrentPublish(t *testing.T) {
	b := New()
	defer b.Close()

	ch := make(chan Event, 1000)
	b.Subscribe("sink", ch)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.Publish(Event{Kind: KindCaptured, Shot: i + 1})
			}
		}()
	}
	wg.Wait()

	stats := b.Stats()
	if stats.TotalPublished != 500 {
		t.Errorf("expected 500 published, got %d", stats.TotalPublished)
	}
	if stats.TotalSent+stats.TotalDropped != 500 {
		t.Errorf("sent+dropped = %d, want 500", stats.TotalSent+stats.TotalDropped)
	}
}

func TestEventMessage(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{Event{Kind: KindCaptured, Shot: 3}, "Photo 3 captured!"},
		{Event{Kind: KindDeleted}, "Image deleted!"},
		{Event{Kind: KindDownloaded}, "Image downloaded!"},
		{Event{Kind: KindCameraSwitched}, "Camera switched!"},
		{Event{Kind: KindCompositeFailed, Reason: "need 3"}, "Composite failed: need 3"},
	}

	for _, tt := range tests {
		t.Run(tt.event.Kind.String(), func(t *testing.T) {
			if got := tt.event.Message(); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	if got := KindSelectionIgnored.String(); got != "selection_ignored" {
		t.Errorf("got %q", got)
	}
	if got := Kind(99).String(); got != "unknown" {
		t.Errorf("got %q", got)
	}
}

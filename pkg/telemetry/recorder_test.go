package telemetry

import (
	"testing"
	"time"
)

func TestRecorder_RecentReturnsOldestFirst(t *testing.T) {
	r := NewRecorder(8)

	for i := uint64(1); i <= 5; i++ {
		r.Publish(Sample{Tick: i})
	}

	got := r.Recent(3)
	if len(got) != 3 {
		t.Fatalf("Recent(3) returned %d samples", len(got))
	}
	for i, want := range []uint64{3, 4, 5} {
		if got[i].Tick != want {
			t.Errorf("Recent[%d].Tick = %d, want %d", i, got[i].Tick, want)
		}
	}
}

func TestRecorder_DropsOldestWhenFull(t *testing.T) {
	r := NewRecorder(4)

	for i := uint64(1); i <= 10; i++ {
		r.Publish(Sample{Tick: i})
	}

	got := r.Recent(4)
	if len(got) != 4 {
		t.Fatalf("Recent(4) returned %d samples", len(got))
	}
	for i, want := range []uint64{7, 8, 9, 10} {
		if got[i].Tick != want {
			t.Errorf("Recent[%d].Tick = %d, want %d", i, got[i].Tick, want)
		}
	}
	if r.Dropped() == 0 {
		t.Error("overflow must be counted as dropped")
	}
}

func TestRecorder_SubscribeReceivesSamples(t *testing.T) {
	r := NewRecorder(8)
	ch, cancel := r.Subscribe(4)
	defer cancel()

	r.Publish(Sample{Tick: 42})

	select {
	case s := <-ch:
		if s.Tick != 42 {
			t.Errorf("received Tick %d, want 42", s.Tick)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the sample")
	}
}

// A subscriber that stops draining must never block Publish.
func TestRecorder_SlowSubscriberDoesNotBlock(t *testing.T) {
	r := NewRecorder(4)
	_, cancel := r.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := uint64(0); i < 100; i++ {
			r.Publish(Sample{Tick: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	if r.Dropped() == 0 {
		t.Error("drops on a full subscriber buffer must be counted")
	}
}

func TestRecorder_CancelClosesChannel(t *testing.T) {
	r := NewRecorder(4)
	ch, cancel := r.Subscribe(1)

	cancel()
	// Second cancel is a no-op.
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}

	// Publishing after cancel must not panic.
	r.Publish(Sample{Tick: 1})
}

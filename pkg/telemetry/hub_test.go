package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestHub_RunStopsOnContextCancel(t *testing.T) {
	hub := NewHub("test")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	if err := hub.BroadcastMessage(TypeStatus, map[string]int{"tick": 1}); err != nil {
		t.Fatalf("BroadcastMessage: %v", err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub goroutine did not exit after cancel")
	}
	if n := hub.ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d after shutdown, want 0", n)
	}
}

func TestHub_ShutdownClosesClientSendChannels(t *testing.T) {
	hub := NewHub("test")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	// Register directly; the websocket pumps are not needed to observe the
	// channel close.
	client := &Client{hub: hub, send: make(chan Frame, 1)}
	hub.register <- client

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	<-done

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected send channel closed, got a frame")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed on shutdown")
	}
}

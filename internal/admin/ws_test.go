package admin

import (
	"testing"
	"time"

	"astrond/cluster/internal/channel"
	"astrond/cluster/internal/md"
)

func TestHubObserverBroadcastsToRegisteredClients(t *testing.T) {
	hub := NewHub(nil)
	client := hub.register()
	defer hub.unregister(client)

	observer := hub.Observer()
	observer("routed", md.MessageHandle{
		Channel:     channel.Channel(100),
		Sender:      channel.Channel(200),
		MessageType: 7,
		Payload:     []byte("hello"),
	})

	select {
	case ev := <-client.send:
		if ev.Channel != 100 || ev.Sender != 200 || ev.MessageType != 7 || ev.Outcome != "routed" || ev.PayloadSize != 5 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for broadcast event")
	}
}

func TestHubDropsEventsForFullClientBuffer(t *testing.T) {
	hub := NewHub(nil)
	client := hub.register()
	defer hub.unregister(client)

	for i := 0; i < 100; i++ {
		hub.Broadcast(RoutingEvent{Channel: uint64(i)})
	}
	// Broadcast must never stall the router behind a slow or absent reader:
	// once the client's buffer is full, further events are dropped.
	if got := len(client.send); got != cap(client.send) {
		t.Fatalf("expected a full buffer of %d events, got %d", cap(client.send), got)
	}
}

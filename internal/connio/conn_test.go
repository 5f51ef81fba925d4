package connio

import (
	"testing"
	"time"

	"astrond/cluster/internal/connio/connutil"
)

func TestServeDeliversFramesBothWays(t *testing.T) {
	a, b := connutil.Pipe()
	connA := NewConn(a, WithKeepAlive(time.Hour))
	connB := NewConn(b, WithKeepAlive(time.Hour))

	receivedB := make(chan []byte, 1)
	receivedA := make(chan []byte, 1)
	go connA.Serve(func(p []byte) { receivedA <- p })
	go connB.Serve(func(p []byte) { receivedB <- p })

	if err := connA.Send([]byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case got := <-receivedB:
		if string(got) != "hello" {
			t.Fatalf("expected %q, got %q", "hello", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for B to receive frame")
	}

	if err := connB.Send([]byte("world")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case got := <-receivedA:
		if string(got) != "world" {
			t.Fatalf("expected %q, got %q", "world", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for A to receive frame")
	}

	connA.Close()
	connB.Close()
}

func TestSendAfterCloseReturnsError(t *testing.T) {
	a, b := connutil.Pipe()
	connA := NewConn(a)
	_ = b.Close()
	connA.Close()
	if err := connA.Send([]byte("x")); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

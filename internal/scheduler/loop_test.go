package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopRunsTasksEveryTickInOrder(t *testing.T) {
	var order []string
	var count int32
	tasks := []Task{
		{Name: "first", Run: func() { order = append(order, "first") }},
		{Name: "second", Run: func() { order = append(order, "second"); atomic.AddInt32(&count, 1) }},
	}
	loop := NewLoop(200, tasks)

	ctx, cancel := context.WithCancel(context.Background())
	loop.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	cancel()
	loop.Stop()

	if atomic.LoadInt32(&count) == 0 {
		t.Fatalf("expected at least one tick to have run")
	}
	if len(order) < 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected tasks to run in registration order, got %v", order[:2])
	}
}

func TestTickMonitorSnapshot(t *testing.T) {
	m := NewTickMonitor()
	m.Observe(10 * time.Millisecond)
	m.Observe(30 * time.Millisecond)

	snap := m.Snapshot()
	if snap.Samples != 2 {
		t.Fatalf("expected 2 samples, got %d", snap.Samples)
	}
	if snap.Max != 30*time.Millisecond {
		t.Fatalf("expected max 30ms, got %v", snap.Max)
	}
	if snap.Average != 20*time.Millisecond {
		t.Fatalf("expected average 20ms, got %v", snap.Average)
	}

	m.Reset()
	if m.Snapshot().Samples != 0 {
		t.Fatalf("expected reset to clear samples")
	}
}

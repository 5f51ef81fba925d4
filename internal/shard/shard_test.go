package shard

import (
	"testing"
	"time"

	"astrond/cluster/internal/channel"
)

func TestRegisterAndDistrictLookup(t *testing.T) {
	now := time.Unix(500, 0)
	m := NewManager(WithClock(func() time.Time { return now }))

	m.Register(channel.Channel(7001), 12, "district-north")

	district, ok := m.District(channel.Channel(7001))
	if !ok || district != 12 {
		t.Fatalf("expected district 12, got %d ok=%v", district, ok)
	}
}

func TestUnregisterRemovesShard(t *testing.T) {
	m := NewManager()
	m.Register(channel.Channel(1), 1, "a")

	if _, ok := m.Unregister(channel.Channel(1)); !ok {
		t.Fatalf("expected Unregister to find the shard")
	}
	if _, ok := m.Get(channel.Channel(1)); ok {
		t.Fatalf("expected shard to be gone after unregister")
	}
}

func TestSnapshotSortedByChannel(t *testing.T) {
	m := NewManager()
	m.Register(channel.Channel(30), 3, "c")
	m.Register(channel.Channel(10), 1, "a")
	m.Register(channel.Channel(20), 2, "b")

	snap := m.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 shards, got %d", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if snap[i-1].Channel > snap[i].Channel {
			t.Fatalf("expected sorted snapshot, got %+v", snap)
		}
	}
}

// Package shard tracks AI servers that have registered a district channel,
// answering get_shard(channel) -> district_id for the State Server's AI
// handoff logic (§4.4 "Set AI", §3 "Shard"). The bookkeeping pattern is
// adapted from the teacher's match session manager: a mutex-protected
// registry with deterministic, sorted snapshots for the admin plane.
package shard

import (
	"sort"
	"sync"
	"time"

	"astrond/cluster/internal/channel"
)

// Shard is an AI registration: a channel, the district it administers, and
// the display name it announced (§3 "Shard").
type Shard struct {
	Channel      channel.Channel
	DistrictID   uint32
	Name         string
	RegisteredAt time.Time
}

// Option customises Manager construction.
type Option func(*Manager)

// WithClock overrides the clock used to timestamp registrations.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// Manager is the registry of live shards (districts), keyed by the
// channel the owning AI process registered.
type Manager struct {
	mu     sync.RWMutex
	clock  func() time.Time
	shards map[channel.Channel]*Shard
}

// NewManager constructs an empty shard registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		clock:  time.Now,
		shards: make(map[channel.Channel]*Shard),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Register records that the AI on c administers districtID, returning the
// new Shard record. Re-registering the same channel replaces its prior
// entry (a reconnecting AI resumes the same district identity).
func (m *Manager) Register(c channel.Channel, districtID uint32, name string) *Shard {
	s := &Shard{Channel: c, DistrictID: districtID, Name: name, RegisteredAt: m.clock()}
	m.mu.Lock()
	m.shards[c] = s
	m.mu.Unlock()
	return s
}

// Unregister removes the shard registered on c, if any, and reports whether
// one was present.
func (m *Manager) Unregister(c channel.Channel) (*Shard, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shards[c]
	if ok {
		delete(m.shards, c)
	}
	return s, ok
}

// Get looks up the shard registered on c.
func (m *Manager) Get(c channel.Channel) (*Shard, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shards[c]
	return s, ok
}

// District answers get_shard(channel) -> district_id.
func (m *Manager) District(c channel.Channel) (uint32, bool) {
	s, ok := m.Get(c)
	if !ok {
		return 0, false
	}
	return s.DistrictID, true
}

// Snapshot returns every registered shard sorted by channel, for
// deterministic admin-plane output.
func (m *Manager) Snapshot() []Shard {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Shard, 0, len(m.shards))
	for _, s := range m.shards {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// Channels matching a given AI registration are torn down by the caller
// (the State Server) when a shard disconnects; Manager only tracks
// registration, not the DOs a district owns.

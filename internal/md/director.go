package md

import (
	"sync"
	"time"

	"astrond/cluster/internal/channel"
	"astrond/cluster/internal/logging"
	"astrond/cluster/internal/wire"
)

// DefaultMessageTimeout is the grace period a queued message is allowed to
// wait for its sender to regain a live subscription before being dropped
// (§4.2, §6 "messagedirector-message-timeout", default 15.0s).
const DefaultMessageTimeout = 15 * time.Second

// MessageHandle is an in-flight routed message as described in §3: the
// destination channel, the sender channel used for the retry/timeout check,
// the message type, its payload, and the time it was enqueued.
type MessageHandle struct {
	Channel          channel.Channel
	Sender           channel.Channel
	MessageType      uint16
	Payload          []byte
	EnqueueTimestamp time.Time
}

// Option customises Director construction.
type Option func(*Director)

// WithClock overrides the clock used for enqueue timestamps and timeout
// comparisons, primarily for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(d *Director) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithLogger attaches a logger used for protocol-violation diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(d *Director) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics injects a pre-built QueueMetrics collector.
func WithMetrics(metrics *QueueMetrics) Option {
	return func(d *Director) {
		if metrics != nil {
			d.metrics = metrics
		}
	}
}

// RoutingObserver is notified of every terminal routing decision Flush
// makes (not re-queues), letting callers outside this package — the
// replaylog recorder, the admin live-tail — watch traffic without the
// Director importing either.
type RoutingObserver func(outcome string, h MessageHandle)

// WithObserver attaches a RoutingObserver invoked for every routed or
// dropped message handle.
func WithObserver(observer RoutingObserver) Option {
	return func(d *Director) {
		if observer != nil {
			d.observer = observer
		}
	}
}

// Director is the Message Director: the participant table, the routing
// queue, and the post-remove store. Per §5, the Director's state is
// loop-owned; the mutex exists only to cover the short critical sections
// around Enqueue (called from connection I/O goroutines) and queue-head
// removal during Flush.
type Director struct {
	mu sync.Mutex

	participants map[channel.Channel]*Participant
	postRemove   map[channel.Channel][]wire.Datagram
	queue        []MessageHandle

	messageTimeout time.Duration
	clock          func() time.Time
	logger         *logging.Logger
	metrics        *QueueMetrics
	observer       RoutingObserver
}

// NewDirector constructs a Director with the given message timeout.
func NewDirector(messageTimeout time.Duration, opts ...Option) *Director {
	if messageTimeout <= 0 {
		messageTimeout = DefaultMessageTimeout
	}
	d := &Director{
		participants:   make(map[channel.Channel]*Participant),
		postRemove:     make(map[channel.Channel][]wire.Datagram),
		messageTimeout: messageTimeout,
		clock:          time.Now,
		logger:         logging.L(),
		metrics:        NewQueueMetrics(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Metrics exposes the Director's queue metrics collector.
func (d *Director) Metrics() *QueueMetrics { return d.metrics }

// Participant looks up the live participant subscribed to c, if any.
func (d *Director) Participant(c channel.Channel) (*Participant, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.participants[c]
	return p, ok
}

// ParticipantCount reports how many distinct channels currently have a
// live subscription.
func (d *Director) ParticipantCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.participants)
}

// QueueLen reports how many handles are currently queued for routing.
func (d *Director) QueueLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Subscribe records that p has subscribed to c (CONTROL_SET_CHANNEL).
func (d *Director) Subscribe(c channel.Channel, p *Participant) {
	d.mu.Lock()
	d.participants[c] = p
	d.mu.Unlock()
	p.addChannel(c)
}

// Unsubscribe removes c's subscription, draining and replaying its
// post-remove queue first (CONTROL_REMOVE_CHANNEL and disconnect teardown
// share this behavior per §4.2).
func (d *Director) Unsubscribe(c channel.Channel) {
	d.playPostRemove(c)
	d.mu.Lock()
	p, ok := d.participants[c]
	delete(d.participants, c)
	d.mu.Unlock()
	if ok {
		p.removeChannel(c)
	}
}

// RemoveParticipant tears down every channel a disconnecting participant
// held, in the order required by §4.2: for each channel, post-remove is
// played back before the subscription is released.
func (d *Director) RemoveParticipant(p *Participant) {
	for _, c := range p.Channels() {
		d.Unsubscribe(c)
	}
}

// AddPostRemove stores datagram to be replayed under c when c disconnects
// or is explicitly removed (CONTROL_ADD_POST_REMOVE).
func (d *Director) AddPostRemove(c channel.Channel, datagram wire.Datagram) {
	d.mu.Lock()
	d.postRemove[c] = append(d.postRemove[c], datagram)
	d.mu.Unlock()
}

// ClearPostRemove discards every stored post-remove datagram for c
// (CONTROL_CLEAR_POST_REMOVE).
func (d *Director) ClearPostRemove(c channel.Channel) {
	d.mu.Lock()
	delete(d.postRemove, c)
	d.mu.Unlock()
}

// playPostRemove delivers every datagram stored under c straight to the
// current subscriber of its destination channel, while c is still
// subscribed, then discards the store for c. A datagram whose destination
// has no subscriber is discarded.
func (d *Director) playPostRemove(c channel.Channel) {
	d.mu.Lock()
	pending := d.postRemove[c]
	delete(d.postRemove, c)
	d.mu.Unlock()

	for _, datagram := range pending {
		d.mu.Lock()
		recipient, ok := d.participants[channel.Channel(datagram.Channel)]
		d.mu.Unlock()
		if !ok {
			continue
		}
		if err := recipient.Send(datagram); err != nil && d.logger != nil {
			d.logger.Warn("md: failed to deliver post-remove datagram", logging.Error(err))
		}
	}
}

// Enqueue appends a handle to the tail of the routing queue, stamping its
// enqueue timestamp if the caller did not already set one.
func (d *Director) Enqueue(h MessageHandle) {
	if h.EnqueueTimestamp.IsZero() {
		h.EnqueueTimestamp = d.clock()
	}
	d.mu.Lock()
	d.queue = append(d.queue, h)
	d.mu.Unlock()
}

// Flush processes up to max handles from the head of the queue following
// the three-step rule in §4.2:
//
//  1. sender unreachable and stale -> drop.
//  2. sender unreachable but fresh -> re-queue at the tail.
//  3. otherwise -> route to the channel's subscriber, if any.
//
// Flush never blocks on connection I/O: Conn.Send is expected to hand off
// to the connection's own write goroutine.
func (d *Director) Flush(max int) {
	now := d.clock()

	for i := 0; i < max; i++ {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			break
		}
		handle := d.queue[0]
		d.queue = d.queue[1:]
		sender, senderLive := d.participants[handle.Sender]
		recipient, recipientLive := d.participants[handle.Channel]
		d.mu.Unlock()

		if !senderLive {
			if now.Sub(handle.EnqueueTimestamp) > d.messageTimeout {
				d.metrics.recordDropped()
				if d.logger != nil {
					d.logger.Debug("md: dropping stale message handle", logging.String("reason", "sender_unreachable_timeout"))
				}
				if d.observer != nil {
					d.observer("dropped", handle)
				}
				continue
			}
			d.mu.Lock()
			d.queue = append(d.queue, handle)
			d.mu.Unlock()
			d.metrics.recordRequeued()
			continue
		}
		_ = sender

		if !recipientLive {
			// No subscriber for this channel; the datagram has nowhere to
			// go. This is not a retry case — only the sender side is
			// subject to the grace period (§4.2) — so it is dropped.
			d.metrics.recordDropped()
			if d.observer != nil {
				d.observer("dropped", handle)
			}
			continue
		}

		datagram := wire.Datagram{
			Channel:     uint64(handle.Channel),
			Sender:      uint64(handle.Sender),
			MessageType: handle.MessageType,
			Payload:     handle.Payload,
		}
		if err := recipient.Send(datagram); err != nil && d.logger != nil {
			d.logger.Warn("md: failed to deliver datagram", logging.Error(err))
		}
		d.metrics.recordRouted()
		if d.observer != nil {
			d.observer("routed", handle)
		}
	}
}

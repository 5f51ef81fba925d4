package ss

import (
	"fmt"
	"sync"
	"time"

	"astrond/cluster/internal/channel"
	"astrond/cluster/internal/dc"
	"astrond/cluster/internal/logging"
	"astrond/cluster/internal/md"
	"astrond/cluster/internal/shard"
	"astrond/cluster/internal/wire"
)

// Server is the State Server: the object table plus the per-parent
// children/watch indices (§3, §4.4–§4.6). It participates in the Message
// Director as a single in-process participant, subscribed on its own
// well-known channel plus one channel per live do_id — there is no real
// socket involved since MD and SS share a process (§2 "Data flow").
type Server struct {
	mu sync.Mutex

	director    *md.Director
	registry    *dc.Registry
	shards      *shard.Manager
	participant *md.Participant

	selfChannel     channel.Channel
	databaseChannel channel.Channel

	objects map[uint32]*DO

	// childrenByZone[parentID][zoneID] is the set of do_ids currently
	// children of parentID in zoneID (§3 "children_by_zone").
	childrenByZone map[uint32]map[uint32]map[uint32]struct{}
	// watchList[parentID][observer] is the set of zones that observer is
	// watching under parentID (§3 "watch_list").
	watchList map[uint32]map[channel.Channel]map[uint32]struct{}

	clock  func() time.Time
	logger *logging.Logger
}

// Option customises Server construction.
type Option func(*Server)

// WithClock overrides the clock used for diagnostics.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger attaches a logger for protocol-violation diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer constructs a State Server bound to director, wired with the
// given schema registry and shard manager, and subscribes it on
// selfChannel (the configured stateserver-channel).
func NewServer(director *md.Director, registry *dc.Registry, shards *shard.Manager, selfChannel, databaseChannel channel.Channel, opts ...Option) *Server {
	s := &Server{
		director:        director,
		registry:        registry,
		shards:          shards,
		selfChannel:     selfChannel,
		databaseChannel: databaseChannel,
		objects:         make(map[uint32]*DO),
		childrenByZone:  make(map[uint32]map[uint32]map[uint32]struct{}),
		watchList:       make(map[uint32]map[channel.Channel]map[uint32]struct{}),
		clock:           time.Now,
		logger:          logging.L(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.participant = md.NewParticipant(serverConn{s})
	director.Subscribe(selfChannel, s.participant)
	return s
}

// serverConn adapts Server to the md.Conn interface so the Director can
// route datagrams into it exactly as it would to a socket-backed
// participant.
type serverConn struct{ s *Server }

func (c serverConn) Send(datagram wire.Datagram) error {
	return c.s.dispatch(datagram)
}

// ObjectCount reports how many DOs are currently registered.
func (s *Server) ObjectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Object looks up a DO by id, returning a copy of its header fields for
// read-only inspection (callers must not mutate the returned value to
// affect server state).
func (s *Server) Object(doID uint32) (DO, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.objects[doID]
	if !ok {
		return DO{}, false
	}
	return *d, true
}

func (s *Server) dispatch(datagram wire.Datagram) error {
	switch datagram.MessageType {
	case MsgObjectGenerateWithRequired:
		return s.handleGenerate(datagram, false)
	case MsgObjectGenerateWithRequiredOther:
		return s.handleGenerate(datagram, true)
	case MsgObjectUpdateField:
		return s.handleUpdateField(datagram)
	case MsgObjectDeleteRam:
		return s.handleDelete(datagram)
	case MsgObjectSetOwnerRecv:
		return s.handleSetOwner(datagram)
	case MsgObjectSetAI:
		return s.handleSetAI(datagram)
	case MsgObjectSetZone, MsgObjectSetLocation:
		return s.handleSetLocation(datagram)
	case MsgObjectGetZonesObjects:
		return s.handleGetZonesObjects(datagram, false)
	case MsgObjectGetZonesObjects2:
		return s.handleGetZonesObjects(datagram, true)
	case MsgObjectClearWatch:
		return s.handleClearWatch(datagram)
	case MsgDistrictAnnounce:
		return s.handleDistrictAnnounce(datagram)
	default:
		return fmt.Errorf("ss: unknown message type %d", datagram.MessageType)
	}
}

// send enqueues an outbound datagram on the Director's routing queue, with
// this Server as sender.
func (s *Server) send(to channel.Channel, messageType uint16, payload []byte) {
	s.director.Enqueue(md.MessageHandle{
		Channel:     to,
		Sender:      s.selfChannel,
		MessageType: messageType,
		Payload:     payload,
	})
}

func (s *Server) logDebug(msg string, fields ...logging.Field) {
	if s.logger != nil {
		s.logger.Debug(msg, fields...)
	}
}

func (s *Server) logInfo(msg string, fields ...logging.Field) {
	if s.logger != nil {
		s.logger.Info(msg, fields...)
	}
}

func (s *Server) logWarn(msg string, fields ...logging.Field) {
	if s.logger != nil {
		s.logger.Warn(msg, fields...)
	}
}

// Package channel defines the u64 logical addressing scheme shared by every
// participant on the bus: the control sentinel, the well-known role
// channels, and the composite (kind, avatar_id) encoding used for puppet
// and account channels (§3 "Channel (u64)").
package channel

// Channel is a 64-bit logical address, the routing key for every datagram
// on the bus.
type Channel uint64

// Well-known channels (§6). These constants must match across every
// process in the cluster; they are not configurable per participant.
const (
	// Control is the sentinel channel recognised only by the Message
	// Director itself, never routed to a participant.
	Control Channel = 1
	// StateServer is the default channel the State Server subscribes to
	// for generate/update traffic that does not target a specific do_id.
	StateServer Channel = 2
	// Database is the channel the MD forwards "db"-flagged field updates
	// and save requests to; the Database Server is an external peer.
	Database Channel = 3
	// ClientAgent is the channel the Client Agent subscribes to for
	// traffic that is not addressed to a specific avatar or account.
	ClientAgent Channel = 4
	// UD is the trusted "Util Daemon" channel whose field updates are
	// treated as authoritative the same way a shard AI's are (§4.4).
	UD Channel = 5
)

// Composite channel kinds (§3).
const (
	KindPuppet  uint32 = 1001
	KindAccount uint32 = 1003
)

// Composite builds a (kind, avatar_id) composite channel: (kind<<32)|avatar_id.
func Composite(kind uint32, avatarID uint32) Channel {
	return Channel(uint64(kind)<<32 | uint64(avatarID))
}

// Puppet builds the composite channel addressing a live avatar/puppet.
func Puppet(avatarID uint32) Channel {
	return Composite(KindPuppet, avatarID)
}

// Account builds the composite channel addressing an account owner.
func Account(avatarID uint32) Channel {
	return Composite(KindAccount, avatarID)
}

// Split extracts the (kind, avatar_id) halves of a composite channel. A
// channel below 1<<32 is not a composite channel; ok reports whether kind
// decodes to one of the recognised composite kinds.
func Split(c Channel) (kind uint32, avatarID uint32, ok bool) {
	kind = uint32(uint64(c) >> 32)
	avatarID = uint32(uint64(c))
	ok = kind == KindPuppet || kind == KindAccount
	return kind, avatarID, ok
}

// IsComposite reports whether c decodes to a recognised composite kind.
func IsComposite(c Channel) bool {
	_, _, ok := Split(c)
	return ok
}

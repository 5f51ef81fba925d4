package ss

import "astrond/cluster/internal/channel"

// DO is a live Distributed Object (§3 "DistributedObject"). Fields are
// stored in their already-packed wire form: the State Server never
// interprets field contents, only validates decodability and forwards
// bytes.
type DO struct {
	DoID          uint32
	ParentID      uint32
	ZoneID        uint32
	OldParentID   uint32
	OldZoneID     uint32
	DCClassNumber uint16
	AIChannel     channel.Channel
	OwnerID       channel.Channel

	RequiredFields map[uint16][]byte
	OtherFields    map[uint16][]byte
	HasOther       bool

	// pendingAckContexts is the FIFO of ack-contexts queued by OBJECT_SET_AI
	// (§4.4 "Set AI"), consumed one at a time by the location-ack emitted
	// after the next successful location change (§4.4 "Location ack").
	pendingAckContexts []uint32
}

func newDO(doID, parentID, zoneID uint32, dcClassNumber uint16) *DO {
	return &DO{
		DoID:           doID,
		ParentID:       parentID,
		ZoneID:         zoneID,
		DCClassNumber:  dcClassNumber,
		RequiredFields: make(map[uint16][]byte),
		OtherFields:    make(map[uint16][]byte),
	}
}

// enqueueLocationAck records context as owed to the owner, to be attached
// to the next location-change ack (§4.4 "Set AI").
func (d *DO) enqueueLocationAck(context uint32) {
	d.pendingAckContexts = append(d.pendingAckContexts, context)
}

// consumeLocationAck pops the oldest pending ack-context, returning 0 if
// the queue is empty (§4.4 "Location ack": "consuming one pending
// ack-context (FIFO; zero if empty)").
func (d *DO) consumeLocationAck() uint32 {
	if len(d.pendingAckContexts) == 0 {
		return 0
	}
	context := d.pendingAckContexts[0]
	d.pendingAckContexts = d.pendingAckContexts[1:]
	return context
}

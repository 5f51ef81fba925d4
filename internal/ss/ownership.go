package ss

import (
	"astrond/cluster/internal/channel"
	"astrond/cluster/internal/logging"
	"astrond/cluster/internal/wire"
)

// handleSetOwner implements OBJECT_SET_OWNER_RECV (§4.4).
func (s *Server) handleSetOwner(datagram wire.Datagram) error {
	c := wire.NewCursor(datagram.Payload)
	doID, err := c.Uint32()
	if err != nil {
		return err
	}
	newOwner, err := c.Uint64()
	if err != nil {
		return err
	}

	s.mu.Lock()
	do, ok := s.objects[doID]
	if !ok {
		s.mu.Unlock()
		s.logDebug("ss: set-owner referenced unknown do_id", logging.Int64("do_id", int64(doID)))
		return nil
	}
	oldOwner := do.OwnerID
	do.OwnerID = channel.Channel(newOwner)
	s.mu.Unlock()

	ownerEntry := s.encodeGenerate(do, do.HasOther)
	s.send(channel.Channel(newOwner), MsgObjectEnterOwnerRecv, ownerEntry)

	if oldOwner != 0 {
		s.send(oldOwner, MsgObjectChangeOwnerRecv, wire.NewWriter().PutUint32(doID).Bytes())
	}
	return nil
}

// handleSetAI implements OBJECT_SET_AI (§4.4).
func (s *Server) handleSetAI(datagram wire.Datagram) error {
	c := wire.NewCursor(datagram.Payload)
	doID, err := c.Uint32()
	if err != nil {
		return err
	}
	newAI, err := c.Uint64()
	if err != nil {
		return err
	}

	s.mu.Lock()
	do, ok := s.objects[doID]
	s.mu.Unlock()
	if !ok {
		s.logDebug("ss: set-ai referenced unknown do_id", logging.Int64("do_id", int64(doID)))
		return nil
	}

	newAIChannel := channel.Channel(newAI)
	district, known := s.shards.District(newAIChannel)
	if !known {
		s.logWarn("ss: set-ai referenced unknown shard", logging.Int64("channel", int64(newAI)))
		return nil
	}

	oldAI := do.AIChannel

	// Optional trailing context+zone payload: the context is always pushed
	// onto the pending location-ack queue; the zone is applied, and the old
	// AI notified of the departure, only if it is not a "quiet" zone
	// (> 999) (§4.4 "Set AI").
	if c.Remaining() >= 8 {
		context, cerr := c.Uint32()
		newZoneID, zerr := c.Uint32()
		if cerr == nil && zerr == nil {
			s.mu.Lock()
			do.enqueueLocationAck(context)
			s.mu.Unlock()

			if newZoneID > QuietZoneThreshold {
				s.mu.Lock()
				oldZoneID := do.ZoneID
				do.ZoneID = newZoneID
				s.mu.Unlock()
				if oldAI != 0 {
					s.send(oldAI, MsgObjectChangingLocation, wire.NewWriter().PutUint32(doID).PutUint32(oldZoneID).Bytes())
				}
			}
		}
	}

	s.mu.Lock()
	do.AIChannel = newAIChannel
	if do.OwnerID != 0 {
		// Realign the object's parent to the new shard's district so
		// future zone membership is scoped under the correct district.
		oldParentID, oldZoneID := do.ParentID, do.ZoneID
		s.removeChildLocked(oldParentID, oldZoneID, doID)
		do.ParentID = district
		s.insertChildLocked(district, do.ZoneID, doID)
	}
	s.mu.Unlock()

	entryMsg := MsgObjectEnterAIWithRequired
	if do.HasOther {
		entryMsg = MsgObjectEnterAIWithRequiredOther
	}
	s.send(newAIChannel, entryMsg, s.encodeGenerate(do, do.HasOther))

	if oldAI != 0 {
		s.send(oldAI, MsgObjectChangingAI, wire.NewWriter().PutUint64(uint64(oldAI)).PutUint64(newAI).Bytes())
	}
	return nil
}

package ss

import (
	"astrond/cluster/internal/channel"
	"astrond/cluster/internal/logging"
	"astrond/cluster/internal/wire"
)

// handleGetZonesObjects implements OBJECT_GET_ZONES_OBJECTS[_2] (§4.5).
// Payload: u32 context_do_id, u16 zone_count, zone_count x u32 zone_id.
// context_do_id identifies the requester's own object, used to find its
// parent and to exclude itself from the candidate set.
func (s *Server) handleGetZonesObjects(datagram wire.Datagram, unionPeers bool) error {
	c := wire.NewCursor(datagram.Payload)
	contextDoID, err := c.Uint32()
	if err != nil {
		return err
	}
	zoneCount, err := c.Uint16()
	if err != nil {
		return err
	}
	zones := make([]uint32, 0, zoneCount)
	for i := 0; i < int(zoneCount); i++ {
		z, err := c.Uint32()
		if err != nil {
			return err
		}
		zones = append(zones, z)
	}

	s.mu.Lock()
	contextDO, ok := s.objects[contextDoID]
	s.mu.Unlock()
	if !ok {
		s.logDebug("ss: get-zones-objects referenced unknown do_id", logging.Int64("do_id", int64(contextDoID)))
		return nil
	}
	parentID := contextDO.ParentID
	observer := channel.Channel(datagram.Sender)

	candidates := make(map[uint32]struct{})
	for _, zoneID := range zones {
		for _, doID := range s.childrenOf(parentID, zoneID) {
			if doID == contextDoID {
				continue
			}
			candidates[doID] = struct{}{}
		}
	}

	if unionPeers {
		s.mu.Lock()
		parentDO, parentOK := s.objects[parentID]
		s.mu.Unlock()
		if parentOK {
			grandparentID := parentDO.ParentID
			for _, zoneID := range zones {
				for _, doID := range s.childrenOf(grandparentID, zoneID) {
					if doID == contextDoID || doID == parentID {
						continue
					}
					candidates[doID] = struct{}{}
				}
			}
		}
	}

	ids := make([]uint32, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}

	respType := MsgObjectGetZonesObjectsResp
	if unionPeers {
		respType = MsgObjectGetZonesObjectsResp2
	}
	resp := wire.NewWriter().PutUint64(uint64(contextDoID)).PutUint16(uint16(len(ids)))
	for _, id := range ids {
		resp.PutUint64(uint64(id))
	}
	s.send(observer, uint16(respType), resp.Bytes())

	for _, id := range ids {
		s.mu.Lock()
		do, ok := s.objects[id]
		s.mu.Unlock()
		if !ok {
			continue
		}
		msgType := MsgObjectEnterLocationWithRequired
		if do.HasOther {
			msgType = MsgObjectEnterLocationWithRequiredOther
		}
		s.send(observer, uint16(msgType), s.encodeGenerate(do, do.HasOther))
	}

	s.mu.Lock()
	observers, ok := s.watchList[parentID]
	if !ok {
		observers = make(map[channel.Channel]map[uint32]struct{})
		s.watchList[parentID] = observers
	}
	zoneSet, ok := observers[observer]
	if !ok {
		zoneSet = make(map[uint32]struct{})
		observers[observer] = zoneSet
	}
	for _, zoneID := range zones {
		zoneSet[zoneID] = struct{}{}
	}
	s.mu.Unlock()

	return nil
}

// handleClearWatch implements OBJECT_CLEAR_WATCH (§4.5): payload
// u32 parent_id, u32 zone_id, with the observer taken from the envelope's
// sender.
func (s *Server) handleClearWatch(datagram wire.Datagram) error {
	c := wire.NewCursor(datagram.Payload)
	parentID, err := c.Uint32()
	if err != nil {
		return err
	}
	zoneID, err := c.Uint32()
	if err != nil {
		return err
	}
	observer := channel.Channel(datagram.Sender)

	s.mu.Lock()
	defer s.mu.Unlock()
	observers, ok := s.watchList[parentID]
	if !ok {
		return nil
	}
	zoneSet, ok := observers[observer]
	if !ok {
		return nil
	}
	delete(zoneSet, zoneID)
	if len(zoneSet) == 0 {
		delete(observers, observer)
	}
	if len(observers) == 0 {
		delete(s.watchList, parentID)
	}
	return nil
}

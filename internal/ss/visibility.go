package ss

import (
	"astrond/cluster/internal/channel"
	"astrond/cluster/internal/logging"
	"astrond/cluster/internal/wire"
)

// insertChildLocked records doID as a child of (parentID, zoneID). Callers
// must hold s.mu.
func (s *Server) insertChildLocked(parentID, zoneID, doID uint32) {
	zones, ok := s.childrenByZone[parentID]
	if !ok {
		zones = make(map[uint32]map[uint32]struct{})
		s.childrenByZone[parentID] = zones
	}
	set, ok := zones[zoneID]
	if !ok {
		set = make(map[uint32]struct{})
		zones[zoneID] = set
	}
	set[doID] = struct{}{}
}

// removeChildLocked drops doID from (parentID, zoneID), pruning empty maps.
// Callers must hold s.mu.
func (s *Server) removeChildLocked(parentID, zoneID, doID uint32) {
	zones, ok := s.childrenByZone[parentID]
	if !ok {
		return
	}
	set, ok := zones[zoneID]
	if !ok {
		return
	}
	delete(set, doID)
	if len(set) == 0 {
		delete(zones, zoneID)
	}
	if len(zones) == 0 {
		delete(s.childrenByZone, parentID)
	}
}

// childrenOf returns a snapshot of do_ids under (parentID, zoneID).
func (s *Server) childrenOf(parentID, zoneID uint32) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	zones, ok := s.childrenByZone[parentID]
	if !ok {
		return nil
	}
	set, ok := zones[zoneID]
	if !ok {
		return nil
	}
	out := make([]uint32, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// watchersOf returns the observers currently watching zoneID under
// parentID.
func (s *Server) watchersOf(parentID, zoneID uint32) []channel.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	observers, ok := s.watchList[parentID]
	if !ok {
		return nil
	}
	var out []channel.Channel
	for observer, zones := range observers {
		if _, watching := zones[zoneID]; watching {
			out = append(out, observer)
		}
	}
	return out
}

// observersOf returns the union of (a) owners of every child in
// (parentID, zoneID) excluding excludeDoID, and (b) watchers registered on
// that zone (§4.5 "Entry events are sent to ... every owner of objects in
// the new zone and ... any watcher registered on that zone").
func (s *Server) observersOf(parentID, zoneID, excludeDoID uint32) []channel.Channel {
	seen := make(map[channel.Channel]struct{})
	var out []channel.Channel

	add := func(c channel.Channel) {
		if c == 0 {
			return
		}
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}

	for _, siblingID := range s.childrenOf(parentID, zoneID) {
		if siblingID == excludeDoID {
			continue
		}
		s.mu.Lock()
		sibling, ok := s.objects[siblingID]
		s.mu.Unlock()
		if ok {
			add(sibling.OwnerID)
		}
	}
	for _, observer := range s.watchersOf(parentID, zoneID) {
		add(observer)
	}
	return out
}

// handleSetLocation implements both OBJECT_SET_ZONE and
// OBJECT_SET_LOCATION (§4.4 — both change (parent_id, zone_id) identically).
func (s *Server) handleSetLocation(datagram wire.Datagram) error {
	c := wire.NewCursor(datagram.Payload)
	doID, err := c.Uint32()
	if err != nil {
		return err
	}
	newParentID, err := c.Uint32()
	if err != nil {
		return err
	}
	newZoneID, err := c.Uint32()
	if err != nil {
		return err
	}

	s.mu.Lock()
	do, ok := s.objects[doID]
	if !ok {
		s.mu.Unlock()
		s.logDebug("ss: set-location referenced unknown do_id", logging.Int64("do_id", int64(doID)))
		return nil
	}
	oldParentID, oldZoneID := do.ParentID, do.ZoneID
	do.OldParentID, do.OldZoneID = oldParentID, oldZoneID

	if oldParentID == newParentID && oldZoneID == newZoneID {
		s.mu.Unlock()
		return nil // idempotent no-op (§8 round-trip property)
	}

	s.removeChildLocked(oldParentID, oldZoneID, doID)
	s.insertChildLocked(newParentID, newZoneID, doID)
	do.ParentID = newParentID
	do.ZoneID = newZoneID
	context := do.consumeLocationAck()
	s.mu.Unlock()

	s.propagateMove(do, doID, oldParentID, oldZoneID, newParentID, newZoneID)

	if do.OwnerID != 0 {
		ackPayload := wire.NewWriter().
			PutUint32(doID).PutUint32(oldParentID).PutUint32(oldZoneID).
			PutUint32(newParentID).PutUint32(newZoneID).PutUint32(context).Bytes()
		s.send(do.OwnerID, MsgObjectLocationAck, ackPayload)
	}
	return nil
}

// propagateMove emits the entry/departure/zone-change events required by
// §4.4's "Set zone / Set location" rule and the §4.5 move-propagation
// table. The branch is parent-identity based, not sender-based.
func (s *Server) propagateMove(do *DO, doID, oldParentID, oldZoneID, newParentID, newZoneID uint32) {
	if oldParentID == newParentID {
		// Same parent, different zone: lightweight OBJECT_CHANGE_ZONE to
		// old-zone observers not already covered by the new zone, plus
		// entry info to new-zone observers via the same message (no
		// separate generate needed since the object already exists).
		payload := wire.NewWriter().
			PutUint32(doID).PutUint32(newParentID).PutUint32(newZoneID).
			PutUint32(oldParentID).PutUint32(oldZoneID).Bytes()

		newObservers := s.observersOf(newParentID, newZoneID, doID)
		newSet := make(map[channel.Channel]struct{}, len(newObservers))
		for _, o := range newObservers {
			newSet[o] = struct{}{}
			s.send(o, MsgObjectChangeZone, payload)
		}
		for _, o := range s.observersOf(oldParentID, oldZoneID, doID) {
			if _, already := newSet[o]; already {
				continue
			}
			s.send(o, MsgObjectChangeZone, payload)
		}
		return
	}

	// Different parent: departure on the old location, then a full
	// enter-zone generate on the new one.
	departurePayload := wire.NewWriter().PutUint32(doID).Bytes()
	newObservers := s.observersOf(newParentID, newZoneID, doID)
	newSet := make(map[channel.Channel]struct{}, len(newObservers))
	for _, o := range newObservers {
		newSet[o] = struct{}{}
	}
	for _, o := range s.observersOf(oldParentID, oldZoneID, doID) {
		if _, already := newSet[o]; already {
			continue // avoid a spurious departure for dual-side watchers
		}
		s.send(o, MsgObjectChangingLocation, departurePayload)
	}

	enterPayload := s.encodeGenerate(do, true)
	for _, o := range newObservers {
		s.send(o, MsgObjectEnterzoneWithRequiredOther, enterPayload)
	}
}

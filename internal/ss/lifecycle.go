package ss

import (
	"astrond/cluster/internal/channel"
	"astrond/cluster/internal/logging"
	"astrond/cluster/internal/wire"
)

// handleGenerate implements OBJECT_GENERATE_WITH_REQUIRED[_OTHER] (§4.4).
func (s *Server) handleGenerate(datagram wire.Datagram, withOther bool) error {
	c := wire.NewCursor(datagram.Payload)
	doID, err := c.Uint32()
	if err != nil {
		return err
	}
	parentID, err := c.Uint32()
	if err != nil {
		return err
	}
	zoneID, err := c.Uint32()
	if err != nil {
		return err
	}
	dcID, err := c.Uint16()
	if err != nil {
		return err
	}

	class, ok := s.registry.ClassByNumber(dcID)
	if !ok {
		s.logWarn("ss: generate referenced unknown dc_id", logging.Int("dc_id", int(dcID)))
		return nil
	}

	s.mu.Lock()
	if _, exists := s.objects[doID]; exists {
		s.mu.Unlock()
		s.logInfo("ss: duplicate generate ignored", logging.Int64("do_id", int64(doID)))
		return nil
	}
	s.mu.Unlock()

	do := newDO(doID, parentID, zoneID, dcID)
	for _, field := range class.RequiredFields() {
		raw, err := field.ReadRaw(c)
		if err != nil {
			s.logWarn("ss: truncated generate payload", logging.Int64("do_id", int64(doID)))
			return nil
		}
		do.RequiredFields[field.Index] = raw
	}

	if withOther {
		n, err := c.Uint16()
		if err != nil {
			s.logWarn("ss: truncated generate other-field count", logging.Int64("do_id", int64(doID)))
			return nil
		}
		for i := 0; i < int(n); i++ {
			idx, err := c.Uint16()
			if err != nil {
				return nil
			}
			field, ok := class.FieldByIndex(idx)
			if !ok {
				s.logWarn("ss: generate referenced unknown field index", logging.Int("field_index", int(idx)))
				return nil
			}
			raw, err := field.ReadRaw(c)
			if err != nil {
				return nil
			}
			if field.Keywords.Required {
				do.RequiredFields[idx] = raw
			} else {
				do.OtherFields[idx] = raw
				do.HasOther = true
			}
		}
	}

	s.mu.Lock()
	s.objects[doID] = do
	s.insertChildLocked(parentID, zoneID, doID)
	s.mu.Unlock()

	// Subscribe on do_id so future updates addressed to this object route
	// straight back into the Server (§3 "Participant", §4.4).
	s.director.Subscribe(channel.Channel(doID), s.participant)

	s.emitLocationEntry(parentID, zoneID, do, doID)
	return nil
}

// handleDelete implements OBJECT_DELETE_RAM (§4.4).
func (s *Server) handleDelete(datagram wire.Datagram) error {
	c := wire.NewCursor(datagram.Payload)
	doID, err := c.Uint32()
	if err != nil {
		return err
	}

	s.mu.Lock()
	do, ok := s.objects[doID]
	if !ok {
		s.mu.Unlock()
		s.logDebug("ss: delete referenced unknown do_id", logging.Int64("do_id", int64(doID)))
		return nil
	}
	delete(s.objects, doID)
	s.removeChildLocked(do.ParentID, do.ZoneID, doID)
	s.mu.Unlock()

	s.director.Unsubscribe(channel.Channel(doID))

	if do.AIChannel != 0 {
		s.send(do.AIChannel, MsgObjectDeleteRam, deleteRamPayload(doID))
	}
	for _, observer := range s.observersOf(do.ParentID, do.ZoneID, doID) {
		s.send(observer, MsgObjectDeleteRam, deleteRamPayload(doID))
	}
	return nil
}

func deleteRamPayload(doID uint32) []byte {
	return wire.NewWriter().PutUint32(doID).Bytes()
}

// emitLocationEntry sends ENTER_LOCATION_WITH_REQUIRED[_OTHER] to every
// current observer of (parentID, zoneID) following a fresh generate.
func (s *Server) emitLocationEntry(parentID, zoneID uint32, do *DO, excludeDoID uint32) {
	msgType := MsgObjectEnterLocationWithRequired
	if do.HasOther {
		msgType = MsgObjectEnterLocationWithRequiredOther
	}
	payload := s.encodeGenerate(do, do.HasOther)
	for _, observer := range s.observersOf(parentID, zoneID, excludeDoID) {
		s.send(observer, uint16(msgType), payload)
	}
}

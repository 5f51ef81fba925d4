package ss

import (
	"astrond/cluster/internal/channel"
	"astrond/cluster/internal/dc"
	"astrond/cluster/internal/logging"
	"astrond/cluster/internal/md"
	"astrond/cluster/internal/wire"
)

// handleUpdateField implements OBJECT_UPDATE_FIELD (§4.4, §4.6).
func (s *Server) handleUpdateField(datagram wire.Datagram) error {
	c := wire.NewCursor(datagram.Payload)
	doID, err := c.Uint32()
	if err != nil {
		return err
	}
	fieldIndex, err := c.Uint16()
	if err != nil {
		return err
	}
	args := c.Rest()

	s.mu.Lock()
	do, ok := s.objects[doID]
	s.mu.Unlock()
	if !ok {
		s.logDebug("ss: update referenced unknown do_id", logging.Int64("do_id", int64(doID)))
		return nil
	}

	class, ok := s.registry.ClassByNumber(do.DCClassNumber)
	if !ok {
		return nil
	}
	field, ok := class.FieldByIndex(fieldIndex)
	if !ok {
		s.logWarn("ss: update referenced unknown field index", logging.Int("field_index", int(fieldIndex)))
		return nil
	}
	if err := field.Validate(args); err != nil {
		// Decode failure: drop silently (§7).
		return nil
	}

	sender := channel.Channel(datagram.Sender)
	authoritative := s.isAuthoritative(sender)
	if !authoritative {
		if !(field.Keywords.ClSend || (field.Keywords.OwnSend && sender == do.OwnerID)) {
			s.logInfo("ss: client update of non-sendable field dropped",
				logging.Int64("do_id", int64(doID)), logging.Int("field_index", int(fieldIndex)))
			return nil
		}
	}

	s.storeField(do, field, args)

	// Authoritative senders (shard AI / UD) notify both the owner and the
	// AI channel; client senders notify only the AI channel, never the
	// owner (§4.4 "Update field").
	if authoritative && do.OwnerID != 0 && sender != do.OwnerID {
		s.send(do.OwnerID, MsgObjectUpdateField, encodeUpdateField(doID, fieldIndex, args))
	}
	if do.AIChannel != 0 && sender != do.AIChannel {
		s.send(do.AIChannel, MsgObjectUpdateField, encodeUpdateField(doID, fieldIndex, args))
	}

	if field.Keywords.Broadcast {
		s.broadcastFieldToPeers(do, doID, field.Index, args, sender)
	}
	if field.Keywords.DB {
		s.send(s.databaseChannel, MsgDBServerObjectSetField, encodeUpdateField(doID, fieldIndex, args))
	}
	return nil
}

// isAuthoritative reports whether sender is a registered shard AI channel
// or the trusted UD channel, in which case the update is authoritative
// rather than subject to ownsend/clsend client checks (§4.4).
func (s *Server) isAuthoritative(sender channel.Channel) bool {
	if sender == channel.UD {
		return true
	}
	_, ok := s.shards.District(sender)
	return ok
}

// storeField persists args according to the field's required/ram flags
// (§4.4: "if ram, persist in required_fields or other_fields by the
// field's required flag").
func (s *Server) storeField(do *DO, field *dc.Field, args []byte) {
	if !field.Keywords.Ram {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if field.Keywords.Required {
		do.RequiredFields[field.Index] = append([]byte(nil), args...)
	} else {
		do.OtherFields[field.Index] = append([]byte(nil), args...)
		do.HasOther = true
	}
}

// broadcastFieldToPeers implements §4.6's sibling fan-out: every sibling DO
// across all of the parent's zones with a live owner (excluding the
// updating object itself) receives the update addressed to its owner, with
// the updating DO's id carried as the envelope's Sender.
func (s *Server) broadcastFieldToPeers(do *DO, doID uint32, fieldIndex uint16, args []byte, excludeObserverAvatar channel.Channel) {
	s.mu.Lock()
	zones := s.childrenByZone[do.ParentID]
	var siblingOwners []channel.Channel
	for _, set := range zones {
		for siblingID := range set {
			if siblingID == doID {
				continue
			}
			sibling, ok := s.objects[siblingID]
			if !ok || sibling.OwnerID == 0 {
				continue
			}
			if sibling.OwnerID == excludeObserverAvatar {
				continue
			}
			siblingOwners = append(siblingOwners, sibling.OwnerID)
		}
	}
	s.mu.Unlock()

	payload := encodeFieldOnly(fieldIndex, args)
	for _, owner := range siblingOwners {
		s.director.Enqueue(md.MessageHandle{
			Channel:     owner,
			Sender:      channel.Channel(doID),
			MessageType: MsgObjectUpdateField,
			Payload:     payload,
		})
	}
}

package ss

import (
	"sort"

	"astrond/cluster/internal/wire"
)

// encodeGenerate builds the `do_id, parent_id, zone_id, dc_id` header plus
// required fields in inherited order, optionally followed by the `other`
// fields section (`u16 n` then `n x (u16 field_index, packed_args)`). Used
// for every "entry" message variety (generate fan-out, owner-entry, AI
// entry, enter-zone) since they all share this payload shape (§4.4, §4.5).
func (s *Server) encodeGenerate(do *DO, includeOther bool) []byte {
	class, _ := s.registry.ClassByNumber(do.DCClassNumber)

	w := wire.NewWriter()
	w.PutUint32(do.DoID)
	w.PutUint32(do.ParentID)
	w.PutUint32(do.ZoneID)
	w.PutUint16(do.DCClassNumber)

	if class != nil {
		for _, field := range class.RequiredFields() {
			if raw, ok := do.RequiredFields[field.Index]; ok {
				w.PutRaw(raw)
			}
		}
	}

	if includeOther {
		w.PutUint16(uint16(len(do.OtherFields)))
		indices := make([]uint16, 0, len(do.OtherFields))
		for idx := range do.OtherFields {
			indices = append(indices, idx)
		}
		sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
		for _, idx := range indices {
			w.PutUint16(idx)
			w.PutRaw(do.OtherFields[idx])
		}
	}

	return w.Bytes()
}

// encodeUpdateField builds the `do_id, field_index, packed_args` body used
// when an update is echoed to the updated object's own owner/AI channel —
// the recipient may own several DOs, so do_id travels in the payload.
func encodeUpdateField(doID uint32, fieldIndex uint16, args []byte) []byte {
	w := wire.NewWriter()
	w.PutUint32(doID)
	w.PutUint16(fieldIndex)
	w.PutRaw(args)
	return w.Bytes()
}

// encodeFieldOnly builds the `field_index, packed_args` body used for the
// sibling broadcast case (§4.6), where the updating DO's id instead travels
// as the envelope's Sender.
func encodeFieldOnly(fieldIndex uint16, args []byte) []byte {
	w := wire.NewWriter()
	w.PutUint16(fieldIndex)
	w.PutRaw(args)
	return w.Bytes()
}

// Snapshot encodes the entire live object table, ordered by do_id for a
// deterministic byte-for-byte result across ticks, as `u32 count` followed
// by `count` length-prefixed entries in the same layout `encodeGenerate`
// produces. Used by the periodic replaylog object-table trail
// (SPEC_FULL.md §A.3.6).
func (s *Server) Snapshot() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uint32, 0, len(s.objects))
	for id := range s.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	w := wire.NewWriter()
	w.PutUint32(uint32(len(ids)))
	for _, id := range ids {
		do := s.objects[id]
		w.PutBytes(s.encodeGenerate(do, do.HasOther))
	}
	return w.Bytes()
}

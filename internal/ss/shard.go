package ss

import (
	"astrond/cluster/internal/channel"
	"astrond/cluster/internal/logging"
	"astrond/cluster/internal/wire"
)

// handleDistrictAnnounce implements the AI registration named by spec §3
// "Shard": "An AI registration: {channel, district_id, name}. Created when
// an AI announces itself." The announcing AI has already subscribed to its
// own channel via CONTROL_SET_CHANNEL; this message tells the State Server
// which district that channel administers.
func (s *Server) handleDistrictAnnounce(datagram wire.Datagram) error {
	c := wire.NewCursor(datagram.Payload)
	districtID, err := c.Uint32()
	if err != nil {
		return err
	}
	name, err := c.String()
	if err != nil {
		return err
	}

	aiChannel := channel.Channel(datagram.Sender)
	s.shards.Register(aiChannel, districtID, name)
	s.logInfo("ss: shard announced", logging.Int64("channel", int64(aiChannel)), logging.Int("district_id", int(districtID)))
	return nil
}

// HandleAIDisconnect tears down the shard registered on aiChannel, if any,
// per spec §3 "Shard": "destroyed on disconnect, at which point all DOs
// whose ai_channel equals the shard's channel are torn down" (§4.5). It is
// the caller's responsibility (the connection layer) to invoke this once a
// disconnecting participant's channels are known, since shard membership is
// not visible from a bare Director.RemoveParticipant call.
func (s *Server) HandleAIDisconnect(aiChannel channel.Channel) {
	if _, ok := s.shards.Unregister(aiChannel); !ok {
		return
	}

	s.mu.Lock()
	var orphaned []*DO
	for _, do := range s.objects {
		if do.AIChannel == aiChannel {
			orphaned = append(orphaned, do)
		}
	}
	for _, do := range orphaned {
		delete(s.objects, do.DoID)
		s.removeChildLocked(do.ParentID, do.ZoneID, do.DoID)
	}
	s.mu.Unlock()

	for _, do := range orphaned {
		s.director.Unsubscribe(channel.Channel(do.DoID))
		for _, observer := range s.observersOf(do.ParentID, do.ZoneID, do.DoID) {
			s.send(observer, MsgObjectDeleteRam, deleteRamPayload(do.DoID))
		}
		s.logInfo("ss: tore down orphaned object after shard disconnect", logging.Int64("do_id", int64(do.DoID)), logging.Int64("ai_channel", int64(aiChannel)))
	}
}

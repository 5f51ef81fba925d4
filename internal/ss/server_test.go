package ss

import (
	"testing"
	"time"

	"astrond/cluster/internal/channel"
	"astrond/cluster/internal/dc"
	"astrond/cluster/internal/md"
	"astrond/cluster/internal/shard"
	"astrond/cluster/internal/wire"
)

const avatarSchema = `
dclass Avatar {
    string name required broadcast;
    uint32 health required ram;
    blob inventory ownsend ram;
    blob announcement clsend;
}
`

type recordingConn struct {
	received []wire.Datagram
}

func (c *recordingConn) Send(d wire.Datagram) error {
	c.received = append(c.received, d)
	return nil
}

func newHarness(t *testing.T) (*Server, *md.Director, *dc.Registry, *shard.Manager) {
	t.Helper()
	registry, err := dc.LoadSources(map[string]string{"avatar.dc": avatarSchema})
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	director := md.NewDirector(5 * time.Second)
	shards := shard.NewManager()
	server := NewServer(director, registry, shards, channel.StateServer, channel.Database)
	return server, director, registry, shards
}

// subscribe registers a recording participant on c, both so it can capture
// outbound datagrams addressed to it and so the Director considers it a
// live sender for any message it originates (§4.2 requires a live sender
// subscription for a message to route rather than requeue).
func subscribe(director *md.Director, c channel.Channel) *recordingConn {
	conn := &recordingConn{}
	director.Subscribe(c, md.NewParticipant(conn))
	return conn
}

func generatePayload(doID, parentID, zoneID uint32, dcID uint16, name string, health uint32) []byte {
	w := wire.NewWriter()
	w.PutUint32(doID)
	w.PutUint32(parentID)
	w.PutUint32(zoneID)
	w.PutUint16(dcID)
	w.PutString(name)
	w.PutUint32(health)
	return w.Bytes()
}

func TestGenerateThenInterestDeliversEnterLocation(t *testing.T) {
	server, director, registry, _ := newHarness(t)
	class, _ := registry.ClassByName("Avatar")

	subscribe(director, channel.Channel(1000))
	director.Enqueue(md.MessageHandle{
		Channel:     channel.StateServer,
		Sender:      channel.Channel(1000),
		MessageType: MsgObjectGenerateWithRequired,
		Payload:     generatePayload(100, 1, 5, class.Number, "alice", 50),
	})
	director.Flush(20)

	if _, ok := server.Object(100); !ok {
		t.Fatalf("expected do_id 100 to be registered")
	}

	// Register a bystander object under the same (parent, zone) so the
	// observer has a context do_id to query from.
	director.Enqueue(md.MessageHandle{
		Channel:     channel.StateServer,
		Sender:      channel.Channel(1000),
		MessageType: MsgObjectGenerateWithRequired,
		Payload:     generatePayload(999, 1, 5, class.Number, "observer-do", 10),
	})
	director.Flush(20)

	observerConn := subscribe(director, channel.Channel(9000))

	director.Enqueue(md.MessageHandle{
		Channel:     channel.Channel(999),
		Sender:      channel.Channel(9000),
		MessageType: MsgObjectGetZonesObjects,
		Payload:     wire.NewWriter().PutUint32(999).PutUint16(1).PutUint32(5).Bytes(),
	})
	director.Flush(20)

	if len(observerConn.received) < 2 {
		t.Fatalf("expected at least a RESP and an ENTER_LOCATION datagram, got %d", len(observerConn.received))
	}
	resp := observerConn.received[0]
	if resp.MessageType != MsgObjectGetZonesObjectsResp {
		t.Fatalf("expected first datagram to be GET_ZONES_OBJECTS_RESP, got %d", resp.MessageType)
	}
	entry := observerConn.received[1]
	if entry.MessageType != MsgObjectEnterLocationWithRequired {
		t.Fatalf("expected ENTER_LOCATION_WITH_REQUIRED, got %d", entry.MessageType)
	}
}

func TestGenerateThenDeleteEmptiesObjectTable(t *testing.T) {
	server, director, registry, _ := newHarness(t)
	class, _ := registry.ClassByName("Avatar")

	subscribe(director, channel.Channel(1))
	director.Enqueue(md.MessageHandle{
		Channel: channel.StateServer, Sender: channel.Channel(1), MessageType: MsgObjectGenerateWithRequired,
		Payload: generatePayload(1, 0, 0, class.Number, "a", 1),
	})
	director.Flush(10)
	if server.ObjectCount() != 1 {
		t.Fatalf("expected one object registered")
	}

	director.Enqueue(md.MessageHandle{
		Channel: channel.Channel(1), Sender: channel.Channel(1), MessageType: MsgObjectDeleteRam,
		Payload: wire.NewWriter().PutUint32(1).Bytes(),
	})
	director.Flush(10)
	if server.ObjectCount() != 0 {
		t.Fatalf("expected object table to be empty after delete, got %d", server.ObjectCount())
	}
}

func TestOwnerSendAuthorization(t *testing.T) {
	server, director, registry, _ := newHarness(t)
	class, _ := registry.ClassByName("Avatar")
	inventory, _ := class.FieldByName("inventory")

	subscribe(director, channel.Channel(1))
	director.Enqueue(md.MessageHandle{
		Channel: channel.StateServer, Sender: channel.Channel(1), MessageType: MsgObjectGenerateWithRequired,
		Payload: generatePayload(1, 0, 0, class.Number, "a", 1),
	})
	director.Flush(10)

	owner := subscribe(director, channel.Channel(5000))
	subscribe(director, channel.Channel(6000))

	director.Enqueue(md.MessageHandle{
		Channel: channel.Channel(1), Sender: channel.Channel(5000), MessageType: MsgObjectSetOwnerRecv,
		Payload: wire.NewWriter().PutUint32(1).PutUint64(5000).Bytes(),
	})
	director.Flush(10)
	owner.received = nil

	args, _ := inventory.Pack([]byte("sword"))

	// Owner sends an ownsend field: accepted.
	director.Enqueue(md.MessageHandle{
		Channel: channel.Channel(1), Sender: channel.Channel(5000), MessageType: MsgObjectUpdateField,
		Payload: wire.NewWriter().PutUint32(1).PutUint16(inventory.Index).PutRaw(args).Bytes(),
	})
	director.Flush(10)

	do, _ := server.Object(1)
	if string(do.OtherFields[inventory.Index]) != string(args) {
		t.Fatalf("expected owner's ownsend update to be stored")
	}

	// A different client attempting the same field: dropped (not ownsend
	// for this sender, not clsend, not from an authoritative channel).
	rejectedArgs, _ := inventory.Pack([]byte("shield"))
	director.Enqueue(md.MessageHandle{
		Channel: channel.Channel(1), Sender: channel.Channel(6000), MessageType: MsgObjectUpdateField,
		Payload: wire.NewWriter().PutUint32(1).PutUint16(inventory.Index).PutRaw(rejectedArgs).Bytes(),
	})
	director.Flush(10)

	do2, _ := server.Object(1)
	if string(do2.OtherFields[inventory.Index]) != string(args) {
		t.Fatalf("expected DO state unchanged after rejected update")
	}
}

func TestAIHandoffSendsChangingAndEnterAI(t *testing.T) {
	server, director, registry, shards := newHarness(t)
	class, _ := registry.ClassByName("Avatar")

	subscribe(director, channel.Channel(1))
	director.Enqueue(md.MessageHandle{
		Channel: channel.StateServer, Sender: channel.Channel(1), MessageType: MsgObjectGenerateWithRequired,
		Payload: generatePayload(1, 0, 0, class.Number, "a", 1),
	})
	director.Flush(10)

	oldAI := subscribe(director, channel.Channel(7000))
	newAI := subscribe(director, channel.Channel(7001))
	shards.Register(channel.Channel(7000), 10, "old-district")
	shards.Register(channel.Channel(7001), 20, "new-district")

	// First handoff: no AI yet, so only the new AI should receive an entry.
	director.Enqueue(md.MessageHandle{
		Channel: channel.Channel(1), Sender: channel.UD, MessageType: MsgObjectSetAI,
		Payload: wire.NewWriter().PutUint32(1).PutUint64(7000).Bytes(),
	})
	subscribe(director, channel.UD)
	director.Flush(10)
	if len(oldAI.received) != 1 || oldAI.received[0].MessageType != MsgObjectEnterAIWithRequired {
		t.Fatalf("expected initial AI to receive an ENTER_AI_WITH_REQUIRED, got %+v", oldAI.received)
	}

	// Second handoff: hand off from 7000 to 7001; 7000 must see CHANGING_AI,
	// 7001 must see ENTER_AI_WITH_REQUIRED.
	director.Enqueue(md.MessageHandle{
		Channel: channel.Channel(1), Sender: channel.UD, MessageType: MsgObjectSetAI,
		Payload: wire.NewWriter().PutUint32(1).PutUint64(7001).Bytes(),
	})
	director.Flush(10)

	if len(newAI.received) != 1 || newAI.received[0].MessageType != MsgObjectEnterAIWithRequired {
		t.Fatalf("expected new AI to receive an ENTER_AI_WITH_REQUIRED, got %+v", newAI.received)
	}
	foundChangingAI := false
	for _, d := range oldAI.received {
		if d.MessageType == MsgObjectChangingAI {
			foundChangingAI = true
		}
	}
	if !foundChangingAI {
		t.Fatalf("expected old AI to receive CHANGING_AI, got %+v", oldAI.received)
	}

	do, _ := server.Object(1)
	if do.AIChannel != channel.Channel(7001) {
		t.Fatalf("expected do's AI channel to be updated to 7001, got %d", do.AIChannel)
	}
}

func TestSetAIQuietZoneContextIsQueuedButZoneUnchanged(t *testing.T) {
	server, director, registry, shards := newHarness(t)
	class, _ := registry.ClassByName("Avatar")

	subscribe(director, channel.Channel(1))
	director.Enqueue(md.MessageHandle{
		Channel: channel.StateServer, Sender: channel.Channel(1), MessageType: MsgObjectGenerateWithRequired,
		Payload: generatePayload(1, 0, 500, class.Number, "a", 1),
	})
	director.Flush(10)

	owner := subscribe(director, channel.Channel(5000))
	director.Enqueue(md.MessageHandle{
		Channel: channel.Channel(1), Sender: channel.Channel(5000), MessageType: MsgObjectSetOwnerRecv,
		Payload: wire.NewWriter().PutUint32(1).PutUint64(5000).Bytes(),
	})
	director.Flush(10)
	owner.received = nil

	subscribe(director, channel.Channel(7000))
	shards.Register(channel.Channel(7000), 10, "district")

	// Trailing context=42, zone=999 (quiet: not > 999): context must still be
	// queued for the next location ack, but zone_id must not change and the
	// old AI (none yet) gets no departure notice.
	director.Enqueue(md.MessageHandle{
		Channel: channel.Channel(1), Sender: channel.UD, MessageType: MsgObjectSetAI,
		Payload: wire.NewWriter().PutUint32(1).PutUint64(7000).PutUint32(42).PutUint32(999).Bytes(),
	})
	subscribe(director, channel.UD)
	director.Flush(10)

	do, _ := server.Object(1)
	if do.ZoneID != 500 {
		t.Fatalf("expected quiet zone (999) to leave zone_id unchanged at 500, got %d", do.ZoneID)
	}

	// The next location change's ack must carry the queued context (42), not 0.
	director.Enqueue(md.MessageHandle{
		Channel: channel.Channel(1), Sender: channel.Channel(7000), MessageType: MsgObjectSetLocation,
		Payload: wire.NewWriter().PutUint32(1).PutUint32(0).PutUint32(501).Bytes(),
	})
	director.Flush(10)

	var ackDatagram *wire.Datagram
	for i := range owner.received {
		if owner.received[i].MessageType == MsgObjectLocationAck {
			ackDatagram = &owner.received[i]
		}
	}
	if ackDatagram == nil {
		t.Fatalf("expected owner to receive an OBJECT_LOCATION_ACK, got %+v", owner.received)
	}
	c := wire.NewCursor(ackDatagram.Payload)
	c.Uint32() // do_id
	c.Uint32() // old_parent_id
	c.Uint32() // old_zone_id
	c.Uint32() // parent_id
	c.Uint32() // zone_id
	context, err := c.Uint32()
	if err != nil || context != 42 {
		t.Fatalf("expected ack to carry queued context 42, got %d (err %v)", context, err)
	}
}

func TestSetAINonQuietZoneUpdatesZoneAndNotifiesOldAI(t *testing.T) {
	server, director, registry, shards := newHarness(t)
	class, _ := registry.ClassByName("Avatar")

	subscribe(director, channel.Channel(1))
	director.Enqueue(md.MessageHandle{
		Channel: channel.StateServer, Sender: channel.Channel(1), MessageType: MsgObjectGenerateWithRequired,
		Payload: generatePayload(1, 0, 500, class.Number, "a", 1),
	})
	director.Flush(10)

	oldAI := subscribe(director, channel.Channel(7000))
	shards.Register(channel.Channel(7000), 10, "district-a")
	director.Enqueue(md.MessageHandle{
		Channel: channel.Channel(1), Sender: channel.UD, MessageType: MsgObjectSetAI,
		Payload: wire.NewWriter().PutUint32(1).PutUint64(7000).Bytes(),
	})
	subscribe(director, channel.UD)
	director.Flush(10)
	oldAI.received = nil

	subscribe(director, channel.Channel(7001))
	shards.Register(channel.Channel(7001), 20, "district-b")

	// Trailing context=7, zone=1000 (non-quiet: > 999): zone_id must update
	// and the old AI must see a CHANGING_LOCATION departure notice.
	director.Enqueue(md.MessageHandle{
		Channel: channel.Channel(1), Sender: channel.UD, MessageType: MsgObjectSetAI,
		Payload: wire.NewWriter().PutUint32(1).PutUint64(7001).PutUint32(7).PutUint32(1000).Bytes(),
	})
	director.Flush(10)

	do, _ := server.Object(1)
	if do.ZoneID != 1000 {
		t.Fatalf("expected non-quiet zone to update zone_id to 1000, got %d", do.ZoneID)
	}
	foundDeparture := false
	for _, d := range oldAI.received {
		if d.MessageType == MsgObjectChangingLocation {
			foundDeparture = true
		}
	}
	if !foundDeparture {
		t.Fatalf("expected old AI to receive CHANGING_LOCATION departure notice, got %+v", oldAI.received)
	}
}

func TestClientFieldUpdateNotifiesAIOnlyNotOwner(t *testing.T) {
	server, director, registry, shards := newHarness(t)
	class, _ := registry.ClassByName("Avatar")
	announcement, _ := class.FieldByName("announcement")

	subscribe(director, channel.Channel(1))
	director.Enqueue(md.MessageHandle{
		Channel: channel.StateServer, Sender: channel.Channel(1), MessageType: MsgObjectGenerateWithRequired,
		Payload: generatePayload(1, 0, 0, class.Number, "a", 1),
	})
	director.Flush(10)

	owner := subscribe(director, channel.Channel(5000))
	director.Enqueue(md.MessageHandle{
		Channel: channel.Channel(1), Sender: channel.Channel(5000), MessageType: MsgObjectSetOwnerRecv,
		Payload: wire.NewWriter().PutUint32(1).PutUint64(5000).Bytes(),
	})
	director.Flush(10)

	ai := subscribe(director, channel.Channel(7000))
	shards.Register(channel.Channel(7000), 10, "district")
	director.Enqueue(md.MessageHandle{
		Channel: channel.Channel(1), Sender: channel.UD, MessageType: MsgObjectSetAI,
		Payload: wire.NewWriter().PutUint32(1).PutUint64(7000).Bytes(),
	})
	subscribe(director, channel.UD)
	director.Flush(10)
	owner.received = nil
	ai.received = nil

	// A different client (not the owner, not authoritative) sends a clsend
	// field update: must reach the AI only, never the owner.
	args, _ := announcement.Pack([]byte("hi"))
	director.Enqueue(md.MessageHandle{
		Channel: channel.Channel(1), Sender: channel.Channel(6000), MessageType: MsgObjectUpdateField,
		Payload: wire.NewWriter().PutUint32(1).PutUint16(announcement.Index).PutRaw(args).Bytes(),
	})
	subscribe(director, channel.Channel(6000))
	director.Flush(10)

	if len(owner.received) != 0 {
		t.Fatalf("expected owner to receive no notification for a client clsend update, got %+v", owner.received)
	}
	found := false
	for _, d := range ai.received {
		if d.MessageType == MsgObjectUpdateField {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected AI channel to receive the clsend update, got %+v", ai.received)
	}
	_ = server
}

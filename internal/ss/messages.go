// Package ss implements the State Server: the authority for live
// Distributed Objects, their location (parent/zone), ownership, AI
// assignment, field state, and the visibility graph that drives per
// recipient generate/departure events (§4.4–§4.6).
package ss

// Message types routed to State-Server-owned channels (§6 "State-server
// message types"). These values are internal to this cluster; nothing
// outside the process needs them to match a third-party implementation's
// numbering, only to be consistent with each other.
const (
	MsgObjectGenerateWithRequired uint16 = 100 + iota
	MsgObjectGenerateWithRequiredOther
	MsgObjectUpdateField
	MsgObjectDeleteRam
	MsgObjectSetOwnerRecv
	MsgObjectChangeOwnerRecv
	MsgObjectEnterOwnerRecv
	MsgObjectSetAI
	MsgObjectEnterAIWithRequired
	MsgObjectEnterAIWithRequiredOther
	MsgObjectChangingAI
	MsgObjectSetZone
	MsgObjectSetLocation
	MsgObjectChangeZone
	MsgObjectEnterzoneWithRequiredOther
	MsgObjectEnterLocationWithRequired
	MsgObjectEnterLocationWithRequiredOther
	MsgObjectChangingLocation
	MsgObjectLocationAck
	MsgObjectGetZonesObjects
	MsgObjectGetZonesObjects2
	MsgObjectGetZonesObjectsResp
	MsgObjectGetZonesObjectsResp2
	MsgObjectClearWatch
	MsgBounceMessage
	// MsgDBServerObjectSetField is sent to the Database Server channel
	// whenever a `db`-flagged field is updated (§4.4).
	MsgDBServerObjectSetField
	// MsgDistrictAnnounce registers the sender as the AI administering a
	// district (§3 "Shard"). Sent by an AI process to the State Server's
	// own channel once it has subscribed to its own AI channel.
	MsgDistrictAnnounce
)

// QuietZoneThreshold marks the boundary above which a zone is considered
// "quiet" (§4.4 "Set AI": "the zone is not a 'quiet' zone (zone > 999)").
const QuietZoneThreshold = 999

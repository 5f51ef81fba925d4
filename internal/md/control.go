package md

import (
	"fmt"

	"astrond/cluster/internal/channel"
	"astrond/cluster/internal/wire"
)

// HandleControl dispatches a CONTROL_MESSAGE datagram's body on behalf of p.
// buf is the payload following the fixed channel_count/channel header (the
// caller has already confirmed the channel is channel.Control). Range
// subscription control types are accepted but remain no-ops per §4.5/§9
// ("CONTROL_ADD_RANGE / CONTROL_REMOVE_RANGE ... the MD must not error").
func (d *Director) HandleControl(p *Participant, buf []byte) error {
	hdr, cursor, err := wire.DecodeControlHeader(buf)
	if err != nil {
		return fmt.Errorf("md: malformed control header: %w", err)
	}

	switch hdr.MessageType {
	case wire.ControlSetChannel:
		d.Subscribe(channel.Channel(hdr.Sender), p)
		return nil

	case wire.ControlRemoveChannel:
		d.Unsubscribe(channel.Channel(hdr.Sender))
		return nil

	case wire.ControlAddRange, wire.ControlRemoveRange:
		// Reserved no-ops (§9 open question).
		return nil

	case wire.ControlAddPostRemove:
		datagram, err := wire.DecodeDatagram(cursor.Rest())
		if err != nil {
			return fmt.Errorf("md: malformed post-remove datagram: %w", err)
		}
		d.AddPostRemove(channel.Channel(hdr.Sender), datagram)
		return nil

	case wire.ControlClearPostRemove:
		d.ClearPostRemove(channel.Channel(hdr.Sender))
		return nil

	case wire.ControlSetConName:
		name, err := cursor.String()
		if err != nil {
			return fmt.Errorf("md: malformed SET_CON_NAME: %w", err)
		}
		p.SetName(name)
		return nil

	case wire.ControlSetConURL:
		url, err := cursor.String()
		if err != nil {
			return fmt.Errorf("md: malformed SET_CON_URL: %w", err)
		}
		p.SetURL(url)
		return nil

	default:
		return fmt.Errorf("md: unknown control message type %d", hdr.MessageType)
	}
}

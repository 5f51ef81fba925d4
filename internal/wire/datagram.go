package wire

// Datagram is a single routed message as it appears on the bus: a
// destination channel, the sender channel, a message type, and an opaque
// payload already packed by the caller. channel_count is always 1 in this
// core (point-to-point routing only); Datagram models that fixed shape
// directly rather than carrying a slice for a single element.
type Datagram struct {
	Channel     uint64
	Sender      uint64
	MessageType uint16
	Payload     []byte
}

// Encode serialises the datagram using the standard (non-control) header:
// u8 channel_count=1, u64 channel, u64 sender, u16 message_type, payload.
func (d Datagram) Encode() []byte {
	w := NewWriter()
	w.PutUint8(1)
	w.PutUint64(d.Channel)
	w.PutUint64(d.Sender)
	w.PutUint16(d.MessageType)
	w.PutRaw(d.Payload)
	return w.Bytes()
}

// DecodeDatagram parses a standard-header datagram, rejecting any
// channel_count other than 1 since multi-subscriber fanout is not modeled
// at this layer (see §4.2, "Multi-subscriber channels").
func DecodeDatagram(buf []byte) (Datagram, error) {
	c := NewCursor(buf)
	count, err := c.Uint8()
	if err != nil {
		return Datagram{}, err
	}
	if count != 1 {
		return Datagram{}, ErrShortBuffer
	}
	channel, err := c.Uint64()
	if err != nil {
		return Datagram{}, err
	}
	sender, err := c.Uint64()
	if err != nil {
		return Datagram{}, err
	}
	msgType, err := c.Uint16()
	if err != nil {
		return Datagram{}, err
	}
	return Datagram{Channel: channel, Sender: sender, MessageType: msgType, Payload: c.Rest()}, nil
}

// ControlHeader is the subset of control-message fields common to every
// CONTROL_MESSAGE datagram before its message-specific body. Two control
// types (SET_CON_NAME, SET_CON_URL) omit Sender entirely; callers must
// branch on MessageType before trusting HasSender/Sender (§4.1).
type ControlHeader struct {
	MessageType uint16
	Sender      uint64
	HasSender   bool
}

// SendsSenderField reports whether the given control message type carries
// a sender field, per the two documented exceptions.
func SendsSenderField(messageType uint16) bool {
	switch messageType {
	case ControlSetConName, ControlSetConURL:
		return false
	default:
		return true
	}
}

// DecodeControlHeader parses message_type and the conditional sender field
// from buf, which starts after the channel_count and channel fields (the
// caller has already read them and verified the channel). It returns a
// cursor positioned at the message-specific body.
func DecodeControlHeader(buf []byte) (ControlHeader, *Cursor, error) {
	c := NewCursor(buf)
	msgType, err := c.Uint16()
	if err != nil {
		return ControlHeader{}, nil, err
	}
	hdr := ControlHeader{MessageType: msgType}
	if SendsSenderField(msgType) {
		sender, err := c.Uint64()
		if err != nil {
			return ControlHeader{}, nil, err
		}
		hdr.Sender = sender
		hdr.HasSender = true
	}
	return hdr, c, nil
}

// Control message type constants (§6).
const (
	ControlSetChannel      uint16 = 1
	ControlRemoveChannel   uint16 = 2
	ControlAddRange        uint16 = 3
	ControlRemoveRange     uint16 = 4
	ControlAddPostRemove   uint16 = 5
	ControlClearPostRemove uint16 = 6
	ControlSetConName      uint16 = 7
	ControlSetConURL       uint16 = 8
)

package dc

import "astrond/cluster/internal/wire"

// Keywords captures the keyword flags attached to a field declaration
// (§4.3). Keywords are immutable once the schema is loaded.
type Keywords struct {
	Required  bool
	Broadcast bool
	OwnSend   bool
	ClSend    bool
	Ram       bool
	DB        bool
}

// Field describes one field of a DC class: its stable index within the
// class, its type tree, and its keyword flags.
type Field struct {
	Name     string
	Index    uint16
	Type     *Type
	Keywords Keywords
}

// Pack encodes value as this field's wire form.
func (f *Field) Pack(value any) ([]byte, error) {
	w := wire.NewWriter()
	if err := f.Type.Pack(w, value); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Unpack decodes data as this field's type, returning an error if data does
// not fully validate — either the type tree rejects it or bytes remain
// unconsumed. Per §7 "Decode failure", a caller that gets an error here must
// drop the update silently rather than propagate.
func (f *Field) Unpack(data []byte) (any, error) {
	c := wire.NewCursor(data)
	value, err := f.Type.Unpack(c)
	if err != nil {
		return nil, err
	}
	if c.Remaining() != 0 {
		return nil, wire.ErrShortBuffer
	}
	return value, nil
}

// ReadRaw consumes this field's encoding from c and returns the raw bytes
// that were consumed, without retaining a materialised value. Callers that
// only need to store or retransmit a field's packed form (the State Server,
// which never interprets field contents itself) use this instead of
// Unpack.
func (f *Field) ReadRaw(c *wire.Cursor) ([]byte, error) {
	start := c.Offset()
	if _, err := f.Type.Unpack(c); err != nil {
		return nil, err
	}
	end := c.Offset()
	raw := make([]byte, end-start)
	copy(raw, c.Slice(start, end))
	return raw, nil
}

// Validate reports whether data decodes cleanly as this field's type,
// without returning the decoded value. Used by the State Server to check
// decodability of client-supplied field args before storing/forwarding them.
func (f *Field) Validate(data []byte) error {
	_, err := f.Unpack(data)
	return err
}

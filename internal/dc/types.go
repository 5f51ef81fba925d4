package dc

import (
	"fmt"

	"astrond/cluster/internal/wire"
)

// Kind enumerates the primitive type vocabulary a field's type tree is
// built from. Per §9 "Dynamic schema-driven packing", the packer is a
// single recursive structure walking this tree rather than
// generated-per-class code.
type Kind int

const (
	KindUint8 Kind = iota
	KindUint16
	KindUint32
	KindUint64
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindString
	KindBlob
	KindArray
)

// Type is a node in a field's type tree. Array nodes carry an Elem describing
// the element type and a Count; Count == 0 means a variable-length array
// prefixed by a u16 element count, mirroring how String/Blob are themselves
// length-prefixed.
type Type struct {
	Kind  Kind
	Elem  *Type
	Count int
}

// String renders the type tree in .dc-like source notation, used by the
// admin catalog endpoint to document loaded classes.
func (t *Type) String() string {
	if t == nil {
		return "?"
	}
	if t.Kind == KindArray {
		if t.Count != 0 {
			return fmt.Sprintf("%s[%d]", t.Elem.String(), t.Count)
		}
		return fmt.Sprintf("%s[]", t.Elem.String())
	}
	return t.Kind.String()
}

// String names a primitive Kind as it appears in .dc schema source.
func (k Kind) String() string {
	switch k {
	case KindUint8:
		return "uint8"
	case KindUint16:
		return "uint16"
	case KindUint32:
		return "uint32"
	case KindUint64:
		return "uint64"
	case KindInt8:
		return "int8"
	case KindInt16:
		return "int16"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBlob:
		return "blob"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

func scalar(k Kind) *Type { return &Type{Kind: k} }

// Named type constructors used by the schema parser and by tests that build
// field descriptions programmatically.
var (
	Uint8   = scalar(KindUint8)
	Uint16  = scalar(KindUint16)
	Uint32  = scalar(KindUint32)
	Uint64  = scalar(KindUint64)
	Int8    = scalar(KindInt8)
	Int16   = scalar(KindInt16)
	Int32   = scalar(KindInt32)
	Int64   = scalar(KindInt64)
	Float32 = scalar(KindFloat32)
	Float64 = scalar(KindFloat64)
	String  = scalar(KindString)
	Blob    = scalar(KindBlob)
)

// Array builds a fixed- or variable-length array type. count == 0 requests
// a variable-length array.
func Array(elem *Type, count int) *Type {
	return &Type{Kind: KindArray, Elem: elem, Count: count}
}

// Pack writes value onto w following t's type tree. value must be the Go
// type naturally corresponding to t's Kind (uint8/.../uint64, int8/.../int64,
// float32/float64, string, []byte, or []any for arrays).
func (t *Type) Pack(w *wire.Writer, value any) error {
	switch t.Kind {
	case KindUint8:
		v, err := asUint(value, 8)
		if err != nil {
			return err
		}
		w.PutUint8(uint8(v))
	case KindUint16:
		v, err := asUint(value, 16)
		if err != nil {
			return err
		}
		w.PutUint16(uint16(v))
	case KindUint32:
		v, err := asUint(value, 32)
		if err != nil {
			return err
		}
		w.PutUint32(uint32(v))
	case KindUint64:
		v, err := asUint(value, 64)
		if err != nil {
			return err
		}
		w.PutUint64(v)
	case KindInt8, KindInt16, KindInt32, KindInt64:
		v, err := asInt(value)
		if err != nil {
			return err
		}
		switch t.Kind {
		case KindInt8:
			w.PutUint8(uint8(int8(v)))
		case KindInt16:
			w.PutUint16(uint16(int16(v)))
		case KindInt32:
			w.PutUint32(uint32(int32(v)))
		case KindInt64:
			w.PutUint64(uint64(v))
		}
	case KindFloat32:
		v, err := asFloat(value)
		if err != nil {
			return err
		}
		w.PutUint32(float32bits(float32(v)))
	case KindFloat64:
		v, err := asFloat(value)
		if err != nil {
			return err
		}
		w.PutUint64(float64bits(v))
	case KindString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("dc: expected string, got %T", value)
		}
		w.PutString(s)
	case KindBlob:
		b, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("dc: expected []byte, got %T", value)
		}
		w.PutBytes(b)
	case KindArray:
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("dc: expected []any for array, got %T", value)
		}
		if t.Count != 0 && len(items) != t.Count {
			return fmt.Errorf("dc: array expects %d elements, got %d", t.Count, len(items))
		}
		if t.Count == 0 {
			w.PutUint16(uint16(len(items)))
		}
		for _, item := range items {
			if err := t.Elem.Pack(w, item); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("dc: unknown type kind %d", t.Kind)
	}
	return nil
}

// Unpack reads a value matching t's type tree off c.
func (t *Type) Unpack(c *wire.Cursor) (any, error) {
	switch t.Kind {
	case KindUint8:
		return c.Uint8()
	case KindUint16:
		return c.Uint16()
	case KindUint32:
		return c.Uint32()
	case KindUint64:
		return c.Uint64()
	case KindInt8:
		v, err := c.Uint8()
		return int8(v), err
	case KindInt16:
		v, err := c.Uint16()
		return int16(v), err
	case KindInt32:
		v, err := c.Uint32()
		return int32(v), err
	case KindInt64:
		v, err := c.Uint64()
		return int64(v), err
	case KindFloat32:
		v, err := c.Uint32()
		return float32frombits(v), err
	case KindFloat64:
		v, err := c.Uint64()
		return float64frombits(v), err
	case KindString:
		return c.String()
	case KindBlob:
		return c.Bytes()
	case KindArray:
		count := t.Count
		if count == 0 {
			n, err := c.Uint16()
			if err != nil {
				return nil, err
			}
			count = int(n)
		}
		items := make([]any, count)
		for i := 0; i < count; i++ {
			v, err := t.Elem.Unpack(c)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil
	default:
		return nil, fmt.Errorf("dc: unknown type kind %d", t.Kind)
	}
}

func asUint(value any, bits int) (uint64, error) {
	switch v := value.(type) {
	case uint64:
		return v, nil
	case uint32:
		return uint64(v), nil
	case uint16:
		return uint64(v), nil
	case uint8:
		return uint64(v), nil
	case int:
		if v < 0 {
			return 0, fmt.Errorf("dc: negative value %d for unsigned field", v)
		}
		return uint64(v), nil
	default:
		return 0, fmt.Errorf("dc: expected unsigned integer, got %T", value)
	}
}

func asInt(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("dc: expected signed integer, got %T", value)
	}
}

func asFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("dc: expected float, got %T", value)
	}
}

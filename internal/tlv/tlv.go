// Package tlv implements the Type-Length-Value attribute representation used
// to carry RADIUS payload content across the transport core.
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrValueTooLarge is returned when a value would not fit in the single
// length byte a TLV header carries.
var ErrValueTooLarge = errors.New("tlv: value exceeds 255 bytes")

// TLV is a Type-Length-Value attribute. A zero-value TLV with Present()
// false represents the "null" TLV described by the wire format: a TLV that
// was never assigned a value, as distinct from one present with zero length.
type TLV struct {
	Type    byte
	present bool
	value   []byte
}

// New allocates a TLV by copying the given bytes. Passing a nil value
// yields a null TLV; passing a non-nil (possibly empty) value yields a
// present TLV, so an absent value is only produced when the caller passes
// nil explicitly.
func New(t byte, value []byte) TLV {
	if value == nil {
		return TLV{Type: t}
	}
	v := make([]byte, len(value))
	copy(v, value)
	return TLV{Type: t, present: true, value: v}
}

// Present reports whether this TLV carries a value, as opposed to being the
// null TLV.
func (v TLV) Present() bool {
	return v.present
}

// Len returns the number of value bytes, or 0 for a null TLV.
func (v TLV) Len() int {
	return len(v.value)
}

// Bytes returns the raw value bytes. The returned slice must not be
// retained or mutated by the caller; use Copy to obtain an independent TLV.
func (v TLV) Bytes() []byte {
	return v.value
}

// Copy produces a deep clone. Copying a null TLV yields a null TLV.
func (v TLV) Copy() TLV {
	if !v.present {
		return TLV{Type: v.Type}
	}
	return New(v.Type, v.value)
}

// Equal reports whether two TLVs are structurally identical: both null, or
// both present with equal type and byte-identical values.
func (v TLV) Equal(other TLV) bool {
	if v.present != other.present {
		return false
	}
	if !v.present {
		return true
	}
	if v.Type != other.Type {
		return false
	}
	if len(v.value) != len(other.value) {
		return false
	}
	for i := range v.value {
		if v.value[i] != other.value[i] {
			return false
		}
	}
	return true
}

// Resize reallocates the value buffer to newlen bytes, zero-extending or
// truncating as needed. A successful resize always leaves the TLV present,
// so a null TLV resized to any length, zero included, becomes present.
func (v *TLV) Resize(newlen int) error {
	if newlen < 0 {
		return fmt.Errorf("tlv: negative length %d", newlen)
	}
	if newlen > 255 {
		return ErrValueTooLarge
	}
	resized := make([]byte, newlen)
	copy(resized, v.value)
	v.value = resized
	v.present = true
	return nil
}

// String returns the value as a string, or "" if the TLV is null or empty.
// Presence must be checked separately via Present when the distinction
// between "absent" and "present but empty" matters.
func (v TLV) String() string {
	return string(v.value)
}

// GoString renders a debug form including the type and presence.
func (v TLV) GoString() string {
	if !v.present {
		return fmt.Sprintf("tlv.TLV{Type: %d, null}", v.Type)
	}
	return fmt.Sprintf("tlv.TLV{Type: %d, Value: %q}", v.Type, v.value)
}

// Uint32 interprets the first 4 bytes of the value as a big-endian unsigned
// 32-bit integer. ok is false when fewer than 4 bytes are present.
func (v TLV) Uint32() (val uint32, ok bool) {
	if len(v.value) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(v.value[:4]), true
}

// IPv4 formats the first 4 bytes of the value as a dotted-decimal address.
// ok is false when fewer than 4 bytes are present.
func (v TLV) IPv4() (addr string, ok bool) {
	if len(v.value) < 4 {
		return "", false
	}
	b := v.value
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3]), true
}

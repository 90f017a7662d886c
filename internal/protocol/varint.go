package protocol

import (
	"errors"
	"io"
)

// Maximum encoded sizes of variable-length integers.
const (
	MaxVarIntLen  = 5
	MaxVarLongLen = 10
)

// ErrVarIntTooBig is returned when a varint continues past its maximum size.
var ErrVarIntTooBig = errors.New("varint is too big")

// AppendVarInt appends the varint encoding of v to dst. Negative values are
// encoded through their uint32 reinterpretation and always take 5 bytes.
func AppendVarInt(dst []byte, v int32) []byte {
	u := uint32(v)
	for u&^0x7f != 0 {
		dst = append(dst, byte(u&0x7f)|0x80)
		u >>= 7
	}
	return append(dst, byte(u))
}

// AppendVarLong is the 64-bit counterpart of AppendVarInt.
func AppendVarLong(dst []byte, v int64) []byte {
	u := uint64(v)
	for u&^0x7f != 0 {
		dst = append(dst, byte(u&0x7f)|0x80)
		u >>= 7
	}
	return append(dst, byte(u))
}

// VarIntSize returns the number of bytes AppendVarInt would write for v.
func VarIntSize(v int32) int {
	u := uint32(v)
	n := 1
	for u&^0x7f != 0 {
		u >>= 7
		n++
	}
	return n
}

// DecodeVarInt decodes a varint from the front of b and returns the value and
// the number of bytes consumed. It returns io.ErrUnexpectedEOF when b ends
// before the terminating byte and ErrVarIntTooBig when the encoding runs
// past five bytes.
func DecodeVarInt(b []byte) (int32, int, error) {
	var result uint32
	for i := 0; i < MaxVarIntLen; i++ {
		if i >= len(b) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		c := b[i]
		result |= uint32(c&0x7f) << (7 * i)
		if c&0x80 == 0 {
			return int32(result), i + 1, nil
		}
	}
	return 0, 0, ErrVarIntTooBig
}

// DecodeVarLong is the 64-bit counterpart of DecodeVarInt.
func DecodeVarLong(b []byte) (int64, int, error) {
	var result uint64
	for i := 0; i < MaxVarLongLen; i++ {
		if i >= len(b) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		c := b[i]
		result |= uint64(c&0x7f) << (7 * i)
		if c&0x80 == 0 {
			return int64(result), i + 1, nil
		}
	}
	return 0, 0, ErrVarIntTooBig
}

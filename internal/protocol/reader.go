package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ErrInvalidLength is returned for negative or oversized length prefixes.
var ErrInvalidLength = errors.New("invalid length prefix")

// Reader decodes primitive values from a packet body. The first failure is
// kept and every later read returns a zero value, so decoders can read a
// whole packet and check Err once.
type Reader struct {
	data []byte
	pos  int
	err  error
}

// NewReader creates a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.fail(fmt.Errorf("need %d bytes at offset %d, have %d: %w", n, r.pos, r.Remaining(), io.ErrUnexpectedEOF))
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) ReadBool() bool {
	b := r.take(1)
	return b != nil && b[0] != 0
}

func (r *Reader) ReadUint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) ReadInt8() int8 {
	return int8(r.ReadUint8())
}

func (r *Reader) ReadUint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *Reader) ReadInt16() int16 {
	return int16(r.ReadUint16())
}

func (r *Reader) ReadInt32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *Reader) ReadInt64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (r *Reader) ReadFloat32() float32 {
	return math.Float32frombits(uint32(r.ReadInt32()))
}

func (r *Reader) ReadFloat64() float64 {
	return math.Float64frombits(uint64(r.ReadInt64()))
}

// ReadVarInt reads a 32-bit variable-length integer.
func (r *Reader) ReadVarInt() int32 {
	if r.err != nil {
		return 0
	}
	v, n, err := DecodeVarInt(r.data[r.pos:])
	if err != nil {
		r.fail(fmt.Errorf("failed to read varint at offset %d: %w", r.pos, err))
		return 0
	}
	r.pos += n
	return v
}

// ReadVarLong reads a 64-bit variable-length integer.
func (r *Reader) ReadVarLong() int64 {
	if r.err != nil {
		return 0
	}
	v, n, err := DecodeVarLong(r.data[r.pos:])
	if err != nil {
		r.fail(fmt.Errorf("failed to read varlong at offset %d: %w", r.pos, err))
		return 0
	}
	r.pos += n
	return v
}

// ReadLength reads a varint length prefix and checks it against max and
// the bytes left in the packet.
func (r *Reader) ReadLength(max int) int {
	n := r.ReadVarInt()
	if r.err != nil {
		return 0
	}
	if n < 0 || int(n) > max {
		r.fail(fmt.Errorf("%w: %d (max %d)", ErrInvalidLength, n, max))
		return 0
	}
	return int(n)
}

// ReadString reads a varint-prefixed UTF-8 string.
func (r *Reader) ReadString() string {
	n := r.ReadLength(MaxStringLength * 4)
	b := r.take(n)
	if b == nil {
		return ""
	}
	if !utf8.Valid(b) {
		r.fail(errors.New("string is not valid UTF-8"))
		return ""
	}
	return string(b)
}

func (r *Reader) ReadUUID() uuid.UUID {
	var id uuid.UUID
	copy(id[:], r.take(16))
	return id
}

// ReadBytes reads exactly n raw bytes. The result is a copy, and nil when
// n is zero.
func (r *Reader) ReadBytes(n int) []byte {
	b := r.take(n)
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// ReadByteArray reads a varint-prefixed byte array.
func (r *Reader) ReadByteArray() []byte {
	return r.ReadBytes(r.ReadLength(r.Remaining()))
}

// ReadRest consumes every remaining byte.
func (r *Reader) ReadRest() []byte {
	return r.ReadBytes(r.Remaining())
}

// ReadBitSet reads a varint long count followed by the longs.
func (r *Reader) ReadBitSet() []int64 {
	n := r.ReadLength(r.Remaining() / 8)
	var words []int64
	for i := 0; i < n && r.err == nil; i++ {
		words = append(words, r.ReadInt64())
	}
	return words
}

// ReadNBT reads a nameless network NBT tag.
func (r *Reader) ReadNBT() any {
	if r.err != nil {
		return nil
	}
	v, n, err := DecodeNBT(r.data[r.pos:])
	if err != nil {
		r.fail(fmt.Errorf("failed to read nbt at offset %d: %w", r.pos, err))
		return nil
	}
	r.pos += n
	return v
}

// ReadCount reads a sequence length. Each element is assumed to take at
// least one byte, which bounds allocations on hostile input.
func (r *Reader) ReadCount() int {
	return r.ReadLength(r.Remaining())
}

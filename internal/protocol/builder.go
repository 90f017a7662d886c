package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// PacketBuilder constructs packet bodies. All writers are chainable and
// never fail; the buffer grows as needed.
type PacketBuilder struct {
	buf []byte
}

// NewPacketBuilder creates a new PacketBuilder.
func NewPacketBuilder() *PacketBuilder {
	return &PacketBuilder{buf: make([]byte, 0, 64)}
}

// Reset clears the builder for reuse.
func (b *PacketBuilder) Reset() {
	b.buf = b.buf[:0]
}

// WriteBool writes a single byte, 1 for true.
func (b *PacketBuilder) WriteBool(v bool) *PacketBuilder {
	if v {
		b.buf = append(b.buf, 1)
	} else {
		b.buf = append(b.buf, 0)
	}
	return b
}

// WriteUint8 writes an unsigned byte.
func (b *PacketBuilder) WriteUint8(v uint8) *PacketBuilder {
	b.buf = append(b.buf, v)
	return b
}

// WriteInt8 writes a signed byte.
func (b *PacketBuilder) WriteInt8(v int8) *PacketBuilder {
	b.buf = append(b.buf, byte(v))
	return b
}

func (b *PacketBuilder) WriteUint16(v uint16) *PacketBuilder {
	b.buf = binary.BigEndian.AppendUint16(b.buf, v)
	return b
}

func (b *PacketBuilder) WriteInt16(v int16) *PacketBuilder {
	b.buf = binary.BigEndian.AppendUint16(b.buf, uint16(v))
	return b
}

func (b *PacketBuilder) WriteInt32(v int32) *PacketBuilder {
	b.buf = binary.BigEndian.AppendUint32(b.buf, uint32(v))
	return b
}

func (b *PacketBuilder) WriteInt64(v int64) *PacketBuilder {
	b.buf = binary.BigEndian.AppendUint64(b.buf, uint64(v))
	return b
}

func (b *PacketBuilder) WriteFloat32(v float32) *PacketBuilder {
	b.buf = binary.BigEndian.AppendUint32(b.buf, math.Float32bits(v))
	return b
}

func (b *PacketBuilder) WriteFloat64(v float64) *PacketBuilder {
	b.buf = binary.BigEndian.AppendUint64(b.buf, math.Float64bits(v))
	return b
}

// WriteVarInt writes a 32-bit variable-length integer.
func (b *PacketBuilder) WriteVarInt(v int32) *PacketBuilder {
	b.buf = AppendVarInt(b.buf, v)
	return b
}

// WriteVarLong writes a 64-bit variable-length integer.
func (b *PacketBuilder) WriteVarLong(v int64) *PacketBuilder {
	b.buf = AppendVarLong(b.buf, v)
	return b
}

// WriteString writes a varint byte length followed by UTF-8 bytes.
// Format: [length:varint][bytes...]
func (b *PacketBuilder) WriteString(s string) *PacketBuilder {
	b.buf = AppendVarInt(b.buf, int32(len(s)))
	b.buf = append(b.buf, s...)
	return b
}

// WriteUUID writes the 16 raw bytes of id.
func (b *PacketBuilder) WriteUUID(id uuid.UUID) *PacketBuilder {
	b.buf = append(b.buf, id[:]...)
	return b
}

// WriteBytes writes raw bytes with no length prefix.
func (b *PacketBuilder) WriteBytes(data []byte) *PacketBuilder {
	b.buf = append(b.buf, data...)
	return b
}

// WriteByteArray writes a varint length followed by data.
func (b *PacketBuilder) WriteByteArray(data []byte) *PacketBuilder {
	b.buf = AppendVarInt(b.buf, int32(len(data)))
	b.buf = append(b.buf, data...)
	return b
}

// WriteBitSet writes a varint long count followed by the longs.
func (b *PacketBuilder) WriteBitSet(words []int64) *PacketBuilder {
	b.buf = AppendVarInt(b.buf, int32(len(words)))
	for _, w := range words {
		b.buf = binary.BigEndian.AppendUint64(b.buf, uint64(w))
	}
	return b
}

// WriteNBT writes v as a nameless network NBT tag.
func (b *PacketBuilder) WriteNBT(v any) *PacketBuilder {
	b.buf = AppendNBT(b.buf, v)
	return b
}

// WriteJSON writes a JSON text component as a string.
func (b *PacketBuilder) WriteJSON(raw string) *PacketBuilder {
	return b.WriteString(raw)
}

// Build returns the constructed bytes. The slice aliases the builder's
// buffer until the next Reset.
func (b *PacketBuilder) Build() []byte {
	return b.buf
}

// Len returns the current size of the packet being built.
func (b *PacketBuilder) Len() int {
	return len(b.buf)
}

// String returns a hex dump of the current packet for debugging.
func (b *PacketBuilder) String() string {
	return fmt.Sprintf("PacketBuilder[%d bytes]: %x", len(b.buf), b.buf)
}

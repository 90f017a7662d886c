package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
)

// TagType identifies an NBT tag.
type TagType byte

const (
	TagEnd TagType = iota
	TagByte
	TagShort
	TagInt
	TagLong
	TagFloat
	TagDouble
	TagByteArray
	TagString
	TagList
	TagCompound
	TagIntArray
	TagLongArray
)

// Compound is an NBT compound tag. Keys are written in sorted order.
type Compound map[string]any

// List is an NBT list tag. Every item holds the Go type matching Type.
type List struct {
	Type  TagType
	Items []any
}

// Go types used for each tag:
//
//	TagByte      int8 (bool is accepted when encoding)
//	TagShort     int16
//	TagInt       int32
//	TagLong      int64
//	TagFloat     float32
//	TagDouble    float64
//	TagByteArray []byte
//	TagString    string
//	TagList      List
//	TagCompound  Compound
//	TagIntArray  []int32
//	TagLongArray []int64

const maxNBTDepth = 512

var errNBTDepth = errors.New("nbt nesting too deep")

func tagTypeOf(v any) TagType {
	switch v.(type) {
	case nil:
		return TagEnd
	case int8, bool:
		return TagByte
	case int16:
		return TagShort
	case int32:
		return TagInt
	case int64:
		return TagLong
	case float32:
		return TagFloat
	case float64:
		return TagDouble
	case []byte:
		return TagByteArray
	case string:
		return TagString
	case List:
		return TagList
	case Compound:
		return TagCompound
	case []int32:
		return TagIntArray
	case []int64:
		return TagLongArray
	}
	panic(fmt.Sprintf("nbt: unsupported value type %T", v))
}

// AppendNBT appends v as a nameless network NBT tag: the tag type byte
// followed by the payload. A nil value writes a single TagEnd.
func AppendNBT(dst []byte, v any) []byte {
	t := tagTypeOf(v)
	dst = append(dst, byte(t))
	if t == TagEnd {
		return dst
	}
	return appendNBTPayload(dst, v)
}

func appendNBTString(dst []byte, s string) []byte {
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(s)))
	return append(dst, s...)
}

func appendNBTPayload(dst []byte, v any) []byte {
	switch x := v.(type) {
	case int8:
		return append(dst, byte(x))
	case bool:
		if x {
			return append(dst, 1)
		}
		return append(dst, 0)
	case int16:
		return binary.BigEndian.AppendUint16(dst, uint16(x))
	case int32:
		return binary.BigEndian.AppendUint32(dst, uint32(x))
	case int64:
		return binary.BigEndian.AppendUint64(dst, uint64(x))
	case float32:
		return binary.BigEndian.AppendUint32(dst, math.Float32bits(x))
	case float64:
		return binary.BigEndian.AppendUint64(dst, math.Float64bits(x))
	case []byte:
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(x)))
		return append(dst, x...)
	case string:
		return appendNBTString(dst, x)
	case List:
		dst = append(dst, byte(x.Type))
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(x.Items)))
		for _, item := range x.Items {
			dst = appendNBTPayload(dst, item)
		}
		return dst
	case Compound:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			dst = append(dst, byte(tagTypeOf(x[k])))
			dst = appendNBTString(dst, k)
			dst = appendNBTPayload(dst, x[k])
		}
		return append(dst, byte(TagEnd))
	case []int32:
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(x)))
		for _, n := range x {
			dst = binary.BigEndian.AppendUint32(dst, uint32(n))
		}
		return dst
	case []int64:
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(x)))
		for _, n := range x {
			dst = binary.BigEndian.AppendUint64(dst, uint64(n))
		}
		return dst
	}
	panic(fmt.Sprintf("nbt: unsupported value type %T", v))
}

// DecodeNBT decodes a nameless network NBT tag from the front of b and
// returns the value and the number of bytes consumed.
func DecodeNBT(b []byte) (any, int, error) {
	d := nbtDecoder{data: b}
	t := TagType(d.u8())
	if d.err != nil {
		return nil, 0, d.err
	}
	if t == TagEnd {
		return nil, 1, nil
	}
	v := d.payload(t, 0)
	if d.err != nil {
		return nil, 0, d.err
	}
	return v, d.pos, nil
}

type nbtDecoder struct {
	data []byte
	pos  int
	err  error
}

func (d *nbtDecoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.data)-d.pos < n {
		d.err = io.ErrUnexpectedEOF
		return nil
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *nbtDecoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *nbtDecoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (d *nbtDecoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (d *nbtDecoder) u64() uint64 {
	if b := d.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// length reads an array length and bounds it by the remaining input.
func (d *nbtDecoder) length(elemSize int) int {
	n := int32(d.u32())
	if d.err != nil {
		return 0
	}
	if n < 0 || int(n)*elemSize > len(d.data)-d.pos {
		d.err = fmt.Errorf("%w: nbt array of %d", ErrInvalidLength, n)
		return 0
	}
	return int(n)
}

func (d *nbtDecoder) str() string {
	return string(d.take(int(d.u16())))
}

func (d *nbtDecoder) payload(t TagType, depth int) any {
	if depth > maxNBTDepth {
		d.err = errNBTDepth
		return nil
	}
	switch t {
	case TagByte:
		return int8(d.u8())
	case TagShort:
		return int16(d.u16())
	case TagInt:
		return int32(d.u32())
	case TagLong:
		return int64(d.u64())
	case TagFloat:
		return math.Float32frombits(d.u32())
	case TagDouble:
		return math.Float64frombits(d.u64())
	case TagByteArray:
		n := d.length(1)
		out := make([]byte, n)
		copy(out, d.take(n))
		return out
	case TagString:
		return d.str()
	case TagList:
		elem := TagType(d.u8())
		n := d.length(0)
		list := List{Type: elem}
		for i := 0; i < n && d.err == nil; i++ {
			list.Items = append(list.Items, d.payload(elem, depth+1))
		}
		return list
	case TagCompound:
		c := Compound{}
		for d.err == nil {
			child := TagType(d.u8())
			if child == TagEnd || d.err != nil {
				break
			}
			name := d.str()
			c[name] = d.payload(child, depth+1)
		}
		return c
	case TagIntArray:
		n := d.length(4)
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(d.u32())
		}
		return out
	case TagLongArray:
		n := d.length(8)
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(d.u64())
		}
		return out
	}
	d.err = fmt.Errorf("unknown nbt tag type %d", t)
	return nil
}

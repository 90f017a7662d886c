package protocol

// Heightmap type ids.
const (
	HeightmapWorldSurface   int32 = 1
	HeightmapMotionBlocking int32 = 4
)

// Chunk dimensions for the overworld (-64..319).
const (
	SectionsPerChunk = 24
	heightmapLongs   = 37 // 256 entries of 9 bits, 7 per long
)

// Heightmap is one packed heightmap of a chunk column.
type Heightmap struct {
	Type int32
	Data []int64
}

// BlockEntity is a block entity inside a chunk column.
type BlockEntity struct {
	PackedXZ uint8
	Y        int16
	Type     int32
	Data     any
}

// LightData carries the sky and block light of a chunk column.
type LightData struct {
	SkyLightMask        []int64
	BlockLightMask      []int64
	EmptySkyLightMask   []int64
	EmptyBlockLightMask []int64
	SkyLight            [][]byte
	BlockLight          [][]byte
}

func (l *LightData) encode(b *PacketBuilder) {
	b.WriteBitSet(l.SkyLightMask).
		WriteBitSet(l.BlockLightMask).
		WriteBitSet(l.EmptySkyLightMask).
		WriteBitSet(l.EmptyBlockLightMask)
	for _, arrays := range [][][]byte{l.SkyLight, l.BlockLight} {
		b.WriteVarInt(int32(len(arrays)))
		for _, a := range arrays {
			b.WriteByteArray(a)
		}
	}
}

func (l *LightData) decode(r *Reader) {
	l.SkyLightMask = r.ReadBitSet()
	l.BlockLightMask = r.ReadBitSet()
	l.EmptySkyLightMask = r.ReadBitSet()
	l.EmptyBlockLightMask = r.ReadBitSet()
	l.SkyLight = readLightArrays(r)
	l.BlockLight = readLightArrays(r)
}

func readLightArrays(r *Reader) [][]byte {
	n := r.ReadCount()
	var arrays [][]byte
	for i := 0; i < n && r.Err() == nil; i++ {
		arrays = append(arrays, r.ReadByteArray())
	}
	return arrays
}

// LevelChunkWithLight sends one chunk column.
type LevelChunkWithLight struct {
	X, Z          int32
	Heightmaps    []Heightmap
	Data          []byte
	BlockEntities []BlockEntity
	Light         LightData
}

func (p *LevelChunkWithLight) ID() int32 { return IDLevelChunkWithLight }

func (p *LevelChunkWithLight) Encode(b *PacketBuilder) {
	b.WriteInt32(p.X).WriteInt32(p.Z)
	b.WriteVarInt(int32(len(p.Heightmaps)))
	for _, h := range p.Heightmaps {
		b.WriteVarInt(h.Type).WriteBitSet(h.Data)
	}
	b.WriteByteArray(p.Data)
	b.WriteVarInt(int32(len(p.BlockEntities)))
	for _, be := range p.BlockEntities {
		b.WriteUint8(be.PackedXZ).WriteInt16(be.Y).WriteVarInt(be.Type).WriteNBT(be.Data)
	}
	p.Light.encode(b)
}

func (p *LevelChunkWithLight) Decode(r *Reader) error {
	p.X = r.ReadInt32()
	p.Z = r.ReadInt32()

	p.Heightmaps = nil
	n := r.ReadCount()
	for i := 0; i < n && r.Err() == nil; i++ {
		p.Heightmaps = append(p.Heightmaps, Heightmap{
			Type: r.ReadVarInt(),
			Data: r.ReadBitSet(),
		})
	}

	p.Data = r.ReadByteArray()

	p.BlockEntities = nil
	n = r.ReadCount()
	for i := 0; i < n && r.Err() == nil; i++ {
		p.BlockEntities = append(p.BlockEntities, BlockEntity{
			PackedXZ: r.ReadUint8(),
			Y:        r.ReadInt16(),
			Type:     r.ReadVarInt(),
			Data:     r.ReadNBT(),
		})
	}

	p.Light.decode(r)
	return r.Err()
}

// EmptyHeightmaps returns flat heightmaps for an empty column.
func EmptyHeightmaps() []Heightmap {
	return []Heightmap{
		{Type: HeightmapWorldSurface, Data: make([]int64, heightmapLongs)},
		{Type: HeightmapMotionBlocking, Data: make([]int64, heightmapLongs)},
	}
}

// EmptyChunkSections encodes count sections of air, each filled with the
// given biome id. Both containers use the single-value palette.
// Section: [block_count:i16][bpe=0][block:varint][bpe=0][biome:varint]
func EmptyChunkSections(count int, biome int32) []byte {
	b := NewPacketBuilder()
	for i := 0; i < count; i++ {
		b.WriteInt16(0)
		b.WriteUint8(0).WriteVarInt(0)
		b.WriteUint8(0).WriteVarInt(biome)
	}
	return b.Build()
}

// NewEmptyChunk builds an empty, unlit chunk column at (x, z).
func NewEmptyChunk(x, z int32, biome int32) *LevelChunkWithLight {
	return &LevelChunkWithLight{
		X:          x,
		Z:          z,
		Heightmaps: EmptyHeightmaps(),
		Data:       EmptyChunkSections(SectionsPerChunk, biome),
	}
}

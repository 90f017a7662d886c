package protocol

// SignatureLength is the size of a chat message signature.
const SignatureLength = 256

// AcceptTeleportation confirms a PlayerPosition teleport.
type AcceptTeleportation struct {
	TeleportID int32
}

func (p *AcceptTeleportation) ID() int32 { return IDAcceptTeleportation }

func (p *AcceptTeleportation) Encode(b *PacketBuilder) { b.WriteVarInt(p.TeleportID) }

func (p *AcceptTeleportation) Decode(r *Reader) error {
	p.TeleportID = r.ReadVarInt()
	return r.Err()
}

// ChatMessage is a chat line typed by the player. Signature is nil for
// unsigned messages and SignatureLength bytes otherwise.
type ChatMessage struct {
	Message      string
	Timestamp    int64
	Salt         int64
	Signature    []byte
	MessageCount int32
	Acknowledged [3]byte
	Checksum     uint8
}

func (p *ChatMessage) ID() int32 { return IDChatMessage }

func (p *ChatMessage) Encode(b *PacketBuilder) {
	b.WriteString(p.Message).
		WriteInt64(p.Timestamp).
		WriteInt64(p.Salt).
		WriteBool(p.Signature != nil)
	if p.Signature != nil {
		sig := make([]byte, SignatureLength)
		copy(sig, p.Signature)
		b.WriteBytes(sig)
	}
	b.WriteVarInt(p.MessageCount).
		WriteBytes(p.Acknowledged[:]).
		WriteUint8(p.Checksum)
}

func (p *ChatMessage) Decode(r *Reader) error {
	p.Message = r.ReadString()
	p.Timestamp = r.ReadInt64()
	p.Salt = r.ReadInt64()
	p.Signature = nil
	if r.ReadBool() {
		p.Signature = r.ReadBytes(SignatureLength)
	}
	p.MessageCount = r.ReadVarInt()
	copy(p.Acknowledged[:], r.ReadBytes(3))
	p.Checksum = r.ReadUint8()
	return r.Err()
}

// ChunkBatchReceived reports how fast the client consumed the last chunk
// batch.
type ChunkBatchReceived struct {
	ChunksPerTick float32
}

func (p *ChunkBatchReceived) ID() int32 { return IDChunkBatchReceived }

func (p *ChunkBatchReceived) Encode(b *PacketBuilder) { b.WriteFloat32(p.ChunksPerTick) }

// Decode tolerates an empty body, which some clients send.
func (p *ChunkBatchReceived) Decode(r *Reader) error {
	if r.Remaining() >= 4 {
		p.ChunksPerTick = r.ReadFloat32()
	}
	return r.Err()
}

// KeepAlive is the client's answer to ClientboundKeepAlive.
type KeepAlive struct {
	KeepAliveID int64
}

func (p *KeepAlive) ID() int32 { return IDKeepAlive }

func (p *KeepAlive) Encode(b *PacketBuilder) { b.WriteInt64(p.KeepAliveID) }

func (p *KeepAlive) Decode(r *Reader) error {
	p.KeepAliveID = r.ReadInt64()
	return r.Err()
}

// MovePlayerPos reports a position update.
type MovePlayerPos struct {
	X, FeetY, Z float64
	Flags       int8
}

func (p *MovePlayerPos) ID() int32 { return IDMovePlayerPos }

func (p *MovePlayerPos) Encode(b *PacketBuilder) {
	b.WriteFloat64(p.X).WriteFloat64(p.FeetY).WriteFloat64(p.Z).WriteInt8(p.Flags)
}

func (p *MovePlayerPos) Decode(r *Reader) error {
	p.X = r.ReadFloat64()
	p.FeetY = r.ReadFloat64()
	p.Z = r.ReadFloat64()
	p.Flags = r.ReadInt8()
	return r.Err()
}

// MovePlayerPosRot reports a position and rotation update.
type MovePlayerPosRot struct {
	X, FeetY, Z float64
	Yaw, Pitch  float32
	Flags       int8
}

func (p *MovePlayerPosRot) ID() int32 { return IDMovePlayerPosRot }

func (p *MovePlayerPosRot) Encode(b *PacketBuilder) {
	b.WriteFloat64(p.X).WriteFloat64(p.FeetY).WriteFloat64(p.Z).
		WriteFloat32(p.Yaw).WriteFloat32(p.Pitch).
		WriteInt8(p.Flags)
}

func (p *MovePlayerPosRot) Decode(r *Reader) error {
	p.X = r.ReadFloat64()
	p.FeetY = r.ReadFloat64()
	p.Z = r.ReadFloat64()
	p.Yaw = r.ReadFloat32()
	p.Pitch = r.ReadFloat32()
	p.Flags = r.ReadInt8()
	return r.Err()
}

// PlayDisconnect closes a connection during play.
type PlayDisconnect struct {
	Reason Text
}

func (p *PlayDisconnect) ID() int32 { return IDPlayDisconnect }

func (p *PlayDisconnect) Encode(b *PacketBuilder) { b.WriteNBT(p.Reason.NBT()) }

func (p *PlayDisconnect) Decode(r *Reader) error {
	p.Reason = TextFromNBT(r.ReadNBT())
	return r.Err()
}

// GameEvent signals a world state change such as chunk loading.
type GameEvent struct {
	Event uint8
	Value float32
}

func (p *GameEvent) ID() int32 { return IDGameEvent }

func (p *GameEvent) Encode(b *PacketBuilder) { b.WriteUint8(p.Event).WriteFloat32(p.Value) }

func (p *GameEvent) Decode(r *Reader) error {
	p.Event = r.ReadUint8()
	p.Value = r.ReadFloat32()
	return r.Err()
}

// ClientboundKeepAlive probes the client. The client echoes KeepAliveID.
type ClientboundKeepAlive struct {
	KeepAliveID int64
}

func (p *ClientboundKeepAlive) ID() int32 { return IDClientboundKeepAlive }

func (p *ClientboundKeepAlive) Encode(b *PacketBuilder) { b.WriteInt64(p.KeepAliveID) }

func (p *ClientboundKeepAlive) Decode(r *Reader) error {
	p.KeepAliveID = r.ReadInt64()
	return r.Err()
}

// DeathLocation is where the player last died.
type DeathLocation struct {
	Dimension string
	Position  int64
}

// LoginPlay puts the client into the world.
type LoginPlay struct {
	EntityID            int32
	Hardcore            bool
	DimensionNames      []string
	MaxPlayers          int32
	ViewDistance        int32
	SimulationDistance  int32
	ReducedDebugInfo    bool
	EnableRespawnScreen bool
	DoLimitedCrafting   bool
	DimensionType       int32
	DimensionName       string
	HashedSeed          int64
	GameMode            uint8
	PreviousGameMode    int8
	IsDebug             bool
	IsFlat              bool
	DeathLocation       *DeathLocation
	PortalCooldown      int32
	SeaLevel            int32
	EnforcesSecureChat  bool
}

func (p *LoginPlay) ID() int32 { return IDLoginPlay }

func (p *LoginPlay) Encode(b *PacketBuilder) {
	b.WriteInt32(p.EntityID).
		WriteBool(p.Hardcore).
		WriteVarInt(int32(len(p.DimensionNames)))
	for _, name := range p.DimensionNames {
		b.WriteString(name)
	}
	b.WriteVarInt(p.MaxPlayers).
		WriteVarInt(p.ViewDistance).
		WriteVarInt(p.SimulationDistance).
		WriteBool(p.ReducedDebugInfo).
		WriteBool(p.EnableRespawnScreen).
		WriteBool(p.DoLimitedCrafting).
		WriteVarInt(p.DimensionType).
		WriteString(p.DimensionName).
		WriteInt64(p.HashedSeed).
		WriteUint8(p.GameMode).
		WriteInt8(p.PreviousGameMode).
		WriteBool(p.IsDebug).
		WriteBool(p.IsFlat).
		WriteBool(p.DeathLocation != nil)
	if p.DeathLocation != nil {
		b.WriteString(p.DeathLocation.Dimension).WriteInt64(p.DeathLocation.Position)
	}
	b.WriteVarInt(p.PortalCooldown).
		WriteVarInt(p.SeaLevel).
		WriteBool(p.EnforcesSecureChat)
}

func (p *LoginPlay) Decode(r *Reader) error {
	p.EntityID = r.ReadInt32()
	p.Hardcore = r.ReadBool()
	n := r.ReadCount()
	p.DimensionNames = nil
	for i := 0; i < n && r.Err() == nil; i++ {
		p.DimensionNames = append(p.DimensionNames, r.ReadString())
	}
	p.MaxPlayers = r.ReadVarInt()
	p.ViewDistance = r.ReadVarInt()
	p.SimulationDistance = r.ReadVarInt()
	p.ReducedDebugInfo = r.ReadBool()
	p.EnableRespawnScreen = r.ReadBool()
	p.DoLimitedCrafting = r.ReadBool()
	p.DimensionType = r.ReadVarInt()
	p.DimensionName = r.ReadString()
	p.HashedSeed = r.ReadInt64()
	p.GameMode = r.ReadUint8()
	p.PreviousGameMode = r.ReadInt8()
	p.IsDebug = r.ReadBool()
	p.IsFlat = r.ReadBool()
	p.DeathLocation = nil
	if r.ReadBool() {
		p.DeathLocation = &DeathLocation{
			Dimension: r.ReadString(),
			Position:  r.ReadInt64(),
		}
	}
	p.PortalCooldown = r.ReadVarInt()
	p.SeaLevel = r.ReadVarInt()
	p.EnforcesSecureChat = r.ReadBool()
	return r.Err()
}

// PlayerPosition teleports the player. The client answers with
// AcceptTeleportation carrying TeleportID.
type PlayerPosition struct {
	TeleportID       int32
	X, Y, Z          float64
	VelX, VelY, VelZ float64
	Yaw, Pitch       float32
	Flags            int32
}

func (p *PlayerPosition) ID() int32 { return IDPlayerPosition }

func (p *PlayerPosition) Encode(b *PacketBuilder) {
	b.WriteVarInt(p.TeleportID).
		WriteFloat64(p.X).WriteFloat64(p.Y).WriteFloat64(p.Z).
		WriteFloat64(p.VelX).WriteFloat64(p.VelY).WriteFloat64(p.VelZ).
		WriteFloat32(p.Yaw).WriteFloat32(p.Pitch).
		WriteInt32(p.Flags)
}

func (p *PlayerPosition) Decode(r *Reader) error {
	p.TeleportID = r.ReadVarInt()
	p.X = r.ReadFloat64()
	p.Y = r.ReadFloat64()
	p.Z = r.ReadFloat64()
	p.VelX = r.ReadFloat64()
	p.VelY = r.ReadFloat64()
	p.VelZ = r.ReadFloat64()
	p.Yaw = r.ReadFloat32()
	p.Pitch = r.ReadFloat32()
	p.Flags = r.ReadInt32()
	return r.Err()
}

// SetChunkCacheCenter moves the center of the client's loaded area.
type SetChunkCacheCenter struct {
	ChunkX, ChunkZ int32
}

func (p *SetChunkCacheCenter) ID() int32 { return IDSetChunkCacheCenter }

func (p *SetChunkCacheCenter) Encode(b *PacketBuilder) {
	b.WriteVarInt(p.ChunkX).WriteVarInt(p.ChunkZ)
}

func (p *SetChunkCacheCenter) Decode(r *Reader) error {
	p.ChunkX = r.ReadVarInt()
	p.ChunkZ = r.ReadVarInt()
	return r.Err()
}

// SystemChat shows a server message in chat, or above the hotbar when
// Overlay is set.
type SystemChat struct {
	Content Text
	Overlay bool
}

func (p *SystemChat) ID() int32 { return IDSystemChat }

func (p *SystemChat) Encode(b *PacketBuilder) {
	b.WriteNBT(p.Content.NBT()).WriteBool(p.Overlay)
}

func (p *SystemChat) Decode(r *Reader) error {
	p.Content = TextFromNBT(r.ReadNBT())
	p.Overlay = r.ReadBool()
	return r.Err()
}

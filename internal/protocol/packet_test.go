package protocol

import (
	"bytes"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, p Packet, fresh Packet) {
	t.Helper()
	b := NewPacketBuilder()
	p.Encode(b)

	r := NewReader(b.Build())
	require.NoError(t, fresh.Decode(r))
	assert.Zero(t, r.Remaining(), "%T left unread bytes", p)
	assert.Equal(t, p, fresh)
}

func TestServerboundPackets_RoundTrip(t *testing.T) {
	id := uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5")
	sig := bytes.Repeat([]byte{0x5a}, SignatureLength)

	tests := []struct {
		name  string
		p     Packet
		fresh Packet
	}{
		{"handshake", &Handshake{ProtocolVersion: ProtocolVersion, ServerAddress: "play.example.net", ServerPort: 25565, NextState: NextStateLogin}, &Handshake{}},
		{"handshake defaults", NewHandshake(), &Handshake{}},
		{"status request", &StatusRequest{}, &StatusRequest{}},
		{"ping min", &PingRequest{Payload: math.MinInt64}, &PingRequest{}},
		{"ping max", &PingRequest{Payload: math.MaxInt64}, &PingRequest{}},
		{"login start", &LoginStart{Name: "Notch", UUID: id}, &LoginStart{}},
		{"login ack", &LoginAcknowledged{}, &LoginAcknowledged{}},
		{"client information", &ClientInformation{Locale: "zh_cn", ViewDistance: -1, ChatMode: 2, ChatColors: true, DisplayedSkinParts: 0x7f, MainHand: 1, AllowServerListings: true, ParticleStatus: 2}, &ClientInformation{}},
		{"plugin message", &PluginMessage{Channel: "minecraft:brand", Data: []byte{0x07, 'v', 'a', 'n', 'i', 'l', 'l', 'a'}}, &PluginMessage{}},
		{"finish configuration", &FinishConfiguration{}, &FinishConfiguration{}},
		{"known packs", &SelectKnownPacks{Packs: []KnownPack{CorePack}}, &SelectKnownPacks{}},
		{"known packs empty", &SelectKnownPacks{}, &SelectKnownPacks{}},
		{"accept teleport", &AcceptTeleportation{TeleportID: 1}, &AcceptTeleportation{}},
		{"chat unsigned", &ChatMessage{Message: "hi", Timestamp: 1700000000000, Salt: -9, MessageCount: 3, Acknowledged: [3]byte{1, 2, 3}, Checksum: 7}, &ChatMessage{}},
		{"chat signed", &ChatMessage{Message: "signed", Signature: sig}, &ChatMessage{}},
		{"chunk batch", &ChunkBatchReceived{ChunksPerTick: 9.5}, &ChunkBatchReceived{}},
		{"keep alive", &KeepAlive{KeepAliveID: -42}, &KeepAlive{}},
		{"move pos", &MovePlayerPos{X: 1.5, FeetY: -64, Z: math.MaxFloat64, Flags: 1}, &MovePlayerPos{}},
		{"move pos rot", &MovePlayerPosRot{X: -1, FeetY: 70, Z: 3, Yaw: 90, Pitch: -45, Flags: 3}, &MovePlayerPosRot{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roundTrip(t, tt.p, tt.fresh)
		})
	}
}

func TestClientboundPackets_RoundTrip(t *testing.T) {
	id := uuid.New()
	sig := "c2lnbmF0dXJl"

	tests := []struct {
		name  string
		p     Packet
		fresh Packet
	}{
		{"status response", &StatusResponse{JSON: `{"a":1}`}, &StatusResponse{}},
		{"pong", &PongResponse{Payload: 123456789}, &PongResponse{}},
		{"login disconnect", &LoginDisconnect{Reason: Text{Text: "bye", Color: "red", Bold: true}.JSON()}, &LoginDisconnect{}},
		{"login success", &LoginSuccess{UUID: id, Name: "Steve", Properties: []Property{{Name: "textures", Value: "e30=", Signature: &sig}, {Name: "other", Value: "x"}}}, &LoginSuccess{}},
		{"set compression", &SetCompression{Threshold: 256}, &SetCompression{}},
		{"set compression disabled", &SetCompression{Threshold: -1}, &SetCompression{}},
		{"plugin message", &ClientboundPluginMessage{Channel: "minecraft:brand", Data: []byte{3, 'a', 'b', 'c'}}, &ClientboundPluginMessage{}},
		{"config disconnect", &ConfigDisconnect{Reason: Text{Text: "full", Color: "gold"}}, &ConfigDisconnect{}},
		{"finish configuration", &ClientboundFinishConfiguration{}, &ClientboundFinishConfiguration{}},
		{"registry data", &RegistryData{RegistryID: "minecraft:dimension_type", Entries: []RegistryEntry{{ID: "minecraft:overworld"}, {ID: "voxelgate:void", Data: Compound{"height": int32(384)}}}}, &RegistryData{}},
		{"update tags", &UpdateTags{Registries: []TagRegistry{{Registry: "minecraft:block", Tags: []Tag{{Name: "minecraft:logs", Entries: []int32{1, 2, 300}}, {Name: "minecraft:empty"}}}}}, &UpdateTags{}},
		{"known packs", &ClientboundKnownPacks{Packs: []KnownPack{CorePack}}, &ClientboundKnownPacks{}},
		{"play disconnect", &PlayDisconnect{Reason: Text{Text: "kicked"}}, &PlayDisconnect{}},
		{"game event", &GameEvent{Event: GameEventStartWaitingForChunks}, &GameEvent{}},
		{"keep alive", &ClientboundKeepAlive{KeepAliveID: 1700000000000}, &ClientboundKeepAlive{}},
		{"login play", &LoginPlay{EntityID: 7, DimensionNames: []string{"minecraft:overworld", "minecraft:the_end"}, MaxPlayers: 100, ViewDistance: 12, SimulationDistance: 12, EnableRespawnScreen: true, DimensionName: "minecraft:overworld", HashedSeed: -5, GameMode: 1, PreviousGameMode: -1, SeaLevel: 63}, &LoginPlay{}},
		{"login play death", &LoginPlay{DeathLocation: &DeathLocation{Dimension: "minecraft:the_nether", Position: 12345}, PortalCooldown: 20}, &LoginPlay{}},
		{"player position", &PlayerPosition{TeleportID: 1, X: 0.5, Y: 64, Z: -0.5, Yaw: 180, Pitch: 10, Flags: 0x10}, &PlayerPosition{}},
		{"chunk center", &SetChunkCacheCenter{ChunkX: -3, ChunkZ: 4}, &SetChunkCacheCenter{}},
		{"system chat", &SystemChat{Content: Text{Text: "<Steve> hi"}, Overlay: true}, &SystemChat{}},
		{"empty chunk", NewEmptyChunk(-2, 5, 1), &LevelChunkWithLight{}},
		{"chunk with light", &LevelChunkWithLight{X: 1, Z: 1, Heightmaps: EmptyHeightmaps(), Data: []byte{1, 2}, BlockEntities: []BlockEntity{{PackedXZ: 0x11, Y: -60, Type: 7, Data: Compound{"id": "minecraft:chest"}}}, Light: LightData{SkyLightMask: []int64{3}, SkyLight: [][]byte{bytes.Repeat([]byte{0xff}, 2048)}}}, &LevelChunkWithLight{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roundTrip(t, tt.p, tt.fresh)
		})
	}
}

func TestUnmarshal_UnknownID(t *testing.T) {
	payload := NewPacketBuilder().WriteVarInt(0x42).WriteBytes([]byte{1, 2, 3}).Build()

	p, err := Unmarshal(PhasePlay, payload)
	require.NoError(t, err)
	u, ok := p.(*UnknownPacket)
	require.True(t, ok)
	assert.Equal(t, IDUnknown, u.ID())
	assert.Equal(t, int32(0x42), u.PacketID)
	assert.Equal(t, []byte{1, 2, 3}, u.Body)
}

func TestUnmarshal_PhaseScopedIDs(t *testing.T) {
	// 0x00 means a different packet in every phase.
	status := Marshal(&StatusRequest{})
	p, err := Unmarshal(PhaseStatus, status)
	require.NoError(t, err)
	assert.IsType(t, &StatusRequest{}, p)

	login := Marshal(&LoginStart{Name: "Alex", UUID: uuid.New()})
	p, err = Unmarshal(PhaseLogin, login)
	require.NoError(t, err)
	assert.IsType(t, &LoginStart{}, p)

	// A configuration packet arriving during login is decoded against the
	// login table, not the configuration one.
	ack := Marshal(&SelectKnownPacks{Packs: []KnownPack{CorePack}})
	p, err = Unmarshal(PhaseLogin, ack)
	require.NoError(t, err)
	assert.IsType(t, &UnknownPacket{}, p)
}

func TestUnmarshal_Truncated(t *testing.T) {
	payload := Marshal(&PingRequest{Payload: 99})
	_, err := Unmarshal(PhaseStatus, payload[:len(payload)-2])
	assert.Error(t, err)
}

func TestMarshal_PrefixesID(t *testing.T) {
	data := Marshal(&SetChunkCacheCenter{ChunkX: 1, ChunkZ: 2})
	assert.Equal(t, []byte{0x57, 0x01, 0x02}, data)
}

func TestEmptyChunkSections_Layout(t *testing.T) {
	data := EmptyChunkSections(2, 1)
	section := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	assert.Equal(t, append(append([]byte{}, section...), section...), data)
}

func TestServerStatus_Marshal(t *testing.T) {
	s := ServerStatus{
		Version:     StatusVersion{Name: VersionName, Protocol: ProtocolVersion},
		Players:     StatusPlayers{Max: 100, Online: 2},
		Description: Text{Text: "hello"},
	}
	out, err := s.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":{"name":"1.21.8","protocol":772},"players":{"max":100,"online":2,"sample":[]},"description":{"text":"hello"},"enforcesSecureChat":false}`, out)
}

func TestNBT_RoundTrip(t *testing.T) {
	v := Compound{
		"byte":   int8(-1),
		"short":  int16(300),
		"int":    int32(-70000),
		"long":   int64(math.MaxInt64),
		"float":  float32(0.25),
		"double": 1e100,
		"bytes":  []byte{1, 2},
		"name":   "voxel",
		"list":   List{Type: TagString, Items: []any{"a", "b"}},
		"nested": Compound{"x": int32(1)},
		"ints":   []int32{1, -1},
		"longs":  []int64{5},
	}

	enc := AppendNBT(nil, v)
	got, n, err := DecodeNBT(enc)
	require.NoError(t, err)
	assert.Equal(t, len(enc), n)
	assert.Equal(t, v, got)
}

func TestNBT_StringRootAndEnd(t *testing.T) {
	enc := AppendNBT(nil, "plain")
	got, _, err := DecodeNBT(enc)
	require.NoError(t, err)
	assert.Equal(t, "plain", got)
	assert.Equal(t, Text{Text: "plain"}, TextFromNBT(got))

	got, n, err := DecodeNBT([]byte{0x00})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1, n)
}

func TestNBT_Truncated(t *testing.T) {
	enc := AppendNBT(nil, Compound{"k": "value"})
	_, _, err := DecodeNBT(enc[:len(enc)-3])
	assert.Error(t, err)
}

func TestText_JSON(t *testing.T) {
	reason := Text{Text: "请使用正版《我的世界》账户登录", Color: "red", Bold: true}
	assert.JSONEq(t, `{"text":"请使用正版《我的世界》账户登录","color":"red","bold":true}`, reason.JSON())
}

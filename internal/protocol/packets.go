// Package protocol implements the wire codec, frame transport and packet
// definitions spoken between Voxelgate and Minecraft Java Edition clients.
// All fixed-width integers are big-endian. Lengths, counts and packet ids
// are varints.
package protocol

// Game version advertised in status responses and known-pack negotiation.
const (
	VersionName     = "1.21.8"
	ProtocolVersion = 772
)

// Serverbound packet ids, scoped by phase.
const (
	// Handshake
	IDHandshake int32 = 0x00

	// Status
	IDStatusRequest int32 = 0x00
	IDPingRequest   int32 = 0x01

	// Login
	IDLoginStart        int32 = 0x00
	IDLoginAcknowledged int32 = 0x03

	// Configuration
	IDClientInformation      int32 = 0x00
	IDConfigPluginMessage    int32 = 0x02
	IDConfigFinish           int32 = 0x03
	IDConfigSelectKnownPacks int32 = 0x07

	// Play
	IDAcceptTeleportation int32 = 0x00
	IDChatMessage         int32 = 0x08
	IDChunkBatchReceived  int32 = 0x0C
	IDKeepAlive           int32 = 0x1B
	IDMovePlayerPos       int32 = 0x1D
	IDMovePlayerPosRot    int32 = 0x1E
)

// Clientbound packet ids, scoped by phase.
const (
	// Status
	IDStatusResponse int32 = 0x00
	IDPongResponse   int32 = 0x01

	// Login
	IDLoginDisconnect int32 = 0x00
	IDLoginSuccess    int32 = 0x02
	IDSetCompression  int32 = 0x03

	// Configuration
	IDClientboundConfigPluginMessage int32 = 0x01
	IDConfigDisconnect               int32 = 0x02
	IDClientboundConfigFinish        int32 = 0x03
	IDRegistryData                   int32 = 0x07
	IDUpdateTags                     int32 = 0x0D
	IDClientboundKnownPacks          int32 = 0x0E

	// Play
	IDPlayDisconnect       int32 = 0x1C
	IDGameEvent            int32 = 0x22
	IDClientboundKeepAlive int32 = 0x26
	IDLevelChunkWithLight  int32 = 0x27
	IDLoginPlay            int32 = 0x2B
	IDPlayerPosition       int32 = 0x41
	IDSetChunkCacheCenter  int32 = 0x57
	IDSystemChat           int32 = 0x72
)

// IDUnknown marks a packet whose id has no entry in the phase table.
const IDUnknown int32 = 0xfff

// Handshake next-state values.
const (
	NextStateStatus   int32 = 1
	NextStateLogin    int32 = 2
	NextStateTransfer int32 = 3
)

// Game event codes sent in GameEvent.
const (
	GameEventStartWaitingForChunks uint8 = 13
)

// MaxPacketSize is the largest frame the server accepts, in bytes.
const MaxPacketSize = 2 * 1024 * 1024

// MaxStringLength is the protocol limit on string length in UTF-16 units;
// the byte limit is four times this.
const MaxStringLength = 32767

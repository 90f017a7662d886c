package protocol

// Registry maps a packet id to a constructor for a zero packet.
type Registry map[int32]func() Packet

var serverbound = map[Phase]Registry{
	PhaseHandshake: {
		IDHandshake: func() Packet { return &Handshake{} },
	},
	PhaseStatus: {
		IDStatusRequest: func() Packet { return &StatusRequest{} },
		IDPingRequest:   func() Packet { return &PingRequest{} },
	},
	PhaseLogin: {
		IDLoginStart:        func() Packet { return &LoginStart{} },
		IDLoginAcknowledged: func() Packet { return &LoginAcknowledged{} },
	},
	PhaseConfiguration: {
		IDClientInformation:      func() Packet { return &ClientInformation{} },
		IDConfigPluginMessage:    func() Packet { return &PluginMessage{} },
		IDConfigFinish:           func() Packet { return &FinishConfiguration{} },
		IDConfigSelectKnownPacks: func() Packet { return &SelectKnownPacks{} },
	},
	PhasePlay: {
		IDAcceptTeleportation: func() Packet { return &AcceptTeleportation{} },
		IDChatMessage:         func() Packet { return &ChatMessage{} },
		IDChunkBatchReceived:  func() Packet { return &ChunkBatchReceived{} },
		IDKeepAlive:           func() Packet { return &KeepAlive{} },
		IDMovePlayerPos:       func() Packet { return &MovePlayerPos{} },
		IDMovePlayerPosRot:    func() Packet { return &MovePlayerPosRot{} },
	},
}

var clientbound = map[Phase]Registry{
	PhaseStatus: {
		IDStatusResponse: func() Packet { return &StatusResponse{} },
		IDPongResponse:   func() Packet { return &PongResponse{} },
	},
	PhaseLogin: {
		IDLoginDisconnect: func() Packet { return &LoginDisconnect{} },
		IDLoginSuccess:    func() Packet { return &LoginSuccess{} },
		IDSetCompression:  func() Packet { return &SetCompression{} },
	},
	PhaseConfiguration: {
		IDClientboundConfigPluginMessage: func() Packet { return &ClientboundPluginMessage{} },
		IDConfigDisconnect:               func() Packet { return &ConfigDisconnect{} },
		IDClientboundConfigFinish:        func() Packet { return &ClientboundFinishConfiguration{} },
		IDRegistryData:                   func() Packet { return &RegistryData{} },
		IDUpdateTags:                     func() Packet { return &UpdateTags{} },
		IDClientboundKnownPacks:          func() Packet { return &ClientboundKnownPacks{} },
	},
	PhasePlay: {
		IDPlayDisconnect:       func() Packet { return &PlayDisconnect{} },
		IDGameEvent:            func() Packet { return &GameEvent{} },
		IDClientboundKeepAlive: func() Packet { return &ClientboundKeepAlive{} },
		IDLevelChunkWithLight:  func() Packet { return &LevelChunkWithLight{} },
		IDLoginPlay:            func() Packet { return &LoginPlay{} },
		IDPlayerPosition:       func() Packet { return &PlayerPosition{} },
		IDSetChunkCacheCenter:  func() Packet { return &SetChunkCacheCenter{} },
		IDSystemChat:           func() Packet { return &SystemChat{} },
	},
}

func lookup(tables map[Phase]Registry, phase Phase, id int32) Packet {
	if ctor, ok := tables[phase][id]; ok {
		return ctor()
	}
	return &UnknownPacket{PacketID: id}
}

// NewServerbound returns a zero packet for a client-sent id in phase, or an
// *UnknownPacket when the phase has no such id.
func NewServerbound(phase Phase, id int32) Packet {
	return lookup(serverbound, phase, id)
}

// NewClientbound returns a zero packet for a server-sent id in phase.
func NewClientbound(phase Phase, id int32) Packet {
	return lookup(clientbound, phase, id)
}

// Serverbound returns the dispatch table for phase. The map must not be
// modified.
func Serverbound(phase Phase) Registry {
	return serverbound[phase]
}

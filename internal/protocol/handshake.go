package protocol

// Handshake is the first packet on every connection and selects the next
// phase.
// Format: [protocol:varint][address:string][port:u16][next_state:varint]
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       int32
}

// NewHandshake returns a Handshake with the defaults a client would send
// when connecting to a local server for login.
func NewHandshake() *Handshake {
	return &Handshake{
		ProtocolVersion: -1,
		ServerAddress:   "localhost",
		ServerPort:      25565,
		NextState:       NextStateLogin,
	}
}

func (p *Handshake) ID() int32 { return IDHandshake }

func (p *Handshake) Encode(b *PacketBuilder) {
	b.WriteVarInt(p.ProtocolVersion).
		WriteString(p.ServerAddress).
		WriteUint16(p.ServerPort).
		WriteVarInt(p.NextState)
}

func (p *Handshake) Decode(r *Reader) error {
	p.ProtocolVersion = r.ReadVarInt()
	p.ServerAddress = r.ReadString()
	p.ServerPort = r.ReadUint16()
	p.NextState = r.ReadVarInt()
	return r.Err()
}

package protocol

import (
	"fmt"
)

// Phase is the protocol state of a connection. Packet ids are only
// meaningful within a phase.
type Phase int

const (
	PhaseHandshake Phase = iota
	PhaseStatus
	PhaseLogin
	PhaseConfiguration
	PhasePlay
)

var phaseNames = map[Phase]string{
	PhaseHandshake:     "handshake",
	PhaseStatus:        "status",
	PhaseLogin:         "login",
	PhaseConfiguration: "configuration",
	PhasePlay:          "play",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler so phases read well in
// JSON and logs.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Packet is a single protocol message. Decode must consume what Encode
// writes, so Decode(Encode(p)) yields a value equal to p.
type Packet interface {
	ID() int32
	Encode(b *PacketBuilder)
	Decode(r *Reader) error
}

// UnknownPacket stands in for an id that has no entry in the phase table.
// Its body is kept so it can be logged.
type UnknownPacket struct {
	PacketID int32
	Body     []byte
}

// ID returns IDUnknown; the wire id is in PacketID.
func (p *UnknownPacket) ID() int32 { return IDUnknown }

func (p *UnknownPacket) Encode(b *PacketBuilder) { b.WriteBytes(p.Body) }

func (p *UnknownPacket) Decode(r *Reader) error {
	p.Body = r.ReadRest()
	return r.Err()
}

// Marshal encodes the packet id followed by the packet body.
func Marshal(p Packet) []byte {
	b := NewPacketBuilder()
	b.WriteVarInt(p.ID())
	p.Encode(b)
	return b.Build()
}

// Unmarshal decodes a frame payload received in phase. Ids missing from the
// phase's serverbound table decode to *UnknownPacket and never fail.
func Unmarshal(phase Phase, payload []byte) (Packet, error) {
	r := NewReader(payload)
	id := r.ReadVarInt()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("failed to read packet id: %w", err)
	}

	p := NewServerbound(phase, id)
	if err := p.Decode(r); err != nil {
		return nil, fmt.Errorf("failed to decode %s packet 0x%02x: %w", phase, id, err)
	}
	if u, ok := p.(*UnknownPacket); ok {
		u.PacketID = id
	}
	return p, nil
}

// UnmarshalClientbound decodes a payload the server sent in phase. It is
// the client-side mirror of Unmarshal and is used by tests and tooling.
func UnmarshalClientbound(phase Phase, payload []byte) (Packet, error) {
	r := NewReader(payload)
	id := r.ReadVarInt()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("failed to read packet id: %w", err)
	}

	p := NewClientbound(phase, id)
	if err := p.Decode(r); err != nil {
		return nil, fmt.Errorf("failed to decode clientbound %s packet 0x%02x: %w", phase, id, err)
	}
	if u, ok := p.(*UnknownPacket); ok {
		u.PacketID = id
	}
	return p, nil
}

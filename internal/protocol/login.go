package protocol

import "github.com/google/uuid"

// LoginStart carries the name and UUID a client claims.
type LoginStart struct {
	Name string
	UUID uuid.UUID
}

func (p *LoginStart) ID() int32 { return IDLoginStart }

func (p *LoginStart) Encode(b *PacketBuilder) {
	b.WriteString(p.Name).WriteUUID(p.UUID)
}

func (p *LoginStart) Decode(r *Reader) error {
	p.Name = r.ReadString()
	p.UUID = r.ReadUUID()
	return r.Err()
}

// LoginAcknowledged moves the connection to the configuration phase.
type LoginAcknowledged struct{}

func (p *LoginAcknowledged) ID() int32 { return IDLoginAcknowledged }

func (p *LoginAcknowledged) Encode(b *PacketBuilder) {}

func (p *LoginAcknowledged) Decode(r *Reader) error { return r.Err() }

// LoginDisconnect closes a login with a reason. Reason is JSON text.
type LoginDisconnect struct {
	Reason string
}

func (p *LoginDisconnect) ID() int32 { return IDLoginDisconnect }

func (p *LoginDisconnect) Encode(b *PacketBuilder) { b.WriteJSON(p.Reason) }

func (p *LoginDisconnect) Decode(r *Reader) error {
	p.Reason = r.ReadString()
	return r.Err()
}

// Property is a signed profile property such as a skin texture.
type Property struct {
	Name      string  `json:"name"`
	Value     string  `json:"value"`
	Signature *string `json:"signature,omitempty"`
}

func (p *Property) encode(b *PacketBuilder) {
	b.WriteString(p.Name).WriteString(p.Value).WriteBool(p.Signature != nil)
	if p.Signature != nil {
		b.WriteString(*p.Signature)
	}
}

func (p *Property) decode(r *Reader) {
	p.Name = r.ReadString()
	p.Value = r.ReadString()
	if r.ReadBool() {
		sig := r.ReadString()
		p.Signature = &sig
	}
}

// LoginSuccess completes login.
// Format: [uuid:16][name:string][count:varint][property...]
type LoginSuccess struct {
	UUID       uuid.UUID
	Name       string
	Properties []Property
}

func (p *LoginSuccess) ID() int32 { return IDLoginSuccess }

func (p *LoginSuccess) Encode(b *PacketBuilder) {
	b.WriteUUID(p.UUID).WriteString(p.Name).WriteVarInt(int32(len(p.Properties)))
	for i := range p.Properties {
		p.Properties[i].encode(b)
	}
}

func (p *LoginSuccess) Decode(r *Reader) error {
	p.UUID = r.ReadUUID()
	p.Name = r.ReadString()
	n := r.ReadCount()
	p.Properties = nil
	for i := 0; i < n && r.Err() == nil; i++ {
		var prop Property
		prop.decode(r)
		p.Properties = append(p.Properties, prop)
	}
	return r.Err()
}

// SetCompression announces the compression threshold. Frames after this
// packet use the compressed format in both directions.
type SetCompression struct {
	Threshold int32
}

func (p *SetCompression) ID() int32 { return IDSetCompression }

func (p *SetCompression) Encode(b *PacketBuilder) { b.WriteVarInt(p.Threshold) }

func (p *SetCompression) Decode(r *Reader) error {
	p.Threshold = r.ReadVarInt()
	return r.Err()
}

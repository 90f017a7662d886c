package protocol

// ClientInformation reports client settings.
type ClientInformation struct {
	Locale              string
	ViewDistance        int8
	ChatMode            int32
	ChatColors          bool
	DisplayedSkinParts  uint8
	MainHand            int32
	EnableTextFiltering bool
	AllowServerListings bool
	ParticleStatus      int32
}

func (p *ClientInformation) ID() int32 { return IDClientInformation }

func (p *ClientInformation) Encode(b *PacketBuilder) {
	b.WriteString(p.Locale).
		WriteInt8(p.ViewDistance).
		WriteVarInt(p.ChatMode).
		WriteBool(p.ChatColors).
		WriteUint8(p.DisplayedSkinParts).
		WriteVarInt(p.MainHand).
		WriteBool(p.EnableTextFiltering).
		WriteBool(p.AllowServerListings).
		WriteVarInt(p.ParticleStatus)
}

func (p *ClientInformation) Decode(r *Reader) error {
	p.Locale = r.ReadString()
	p.ViewDistance = r.ReadInt8()
	p.ChatMode = r.ReadVarInt()
	p.ChatColors = r.ReadBool()
	p.DisplayedSkinParts = r.ReadUint8()
	p.MainHand = r.ReadVarInt()
	p.EnableTextFiltering = r.ReadBool()
	p.AllowServerListings = r.ReadBool()
	p.ParticleStatus = r.ReadVarInt()
	return r.Err()
}

// PluginMessage is a client-sent custom payload. Data runs to the end of
// the frame.
type PluginMessage struct {
	Channel string
	Data    []byte
}

func (p *PluginMessage) ID() int32 { return IDConfigPluginMessage }

func (p *PluginMessage) Encode(b *PacketBuilder) {
	b.WriteString(p.Channel).WriteBytes(p.Data)
}

func (p *PluginMessage) Decode(r *Reader) error {
	p.Channel = r.ReadString()
	p.Data = r.ReadRest()
	return r.Err()
}

// ClientboundPluginMessage is the server-sent form of PluginMessage.
type ClientboundPluginMessage struct {
	Channel string
	Data    []byte
}

func (p *ClientboundPluginMessage) ID() int32 { return IDClientboundConfigPluginMessage }

func (p *ClientboundPluginMessage) Encode(b *PacketBuilder) {
	b.WriteString(p.Channel).WriteBytes(p.Data)
}

func (p *ClientboundPluginMessage) Decode(r *Reader) error {
	p.Channel = r.ReadString()
	p.Data = r.ReadRest()
	return r.Err()
}

// FinishConfiguration is the client's acknowledgement that configuration
// is done.
type FinishConfiguration struct{}

func (p *FinishConfiguration) ID() int32 { return IDConfigFinish }

func (p *FinishConfiguration) Encode(b *PacketBuilder) {}

func (p *FinishConfiguration) Decode(r *Reader) error { return r.Err() }

// ClientboundFinishConfiguration tells the client configuration is done.
type ClientboundFinishConfiguration struct{}

func (p *ClientboundFinishConfiguration) ID() int32 { return IDClientboundConfigFinish }

func (p *ClientboundFinishConfiguration) Encode(b *PacketBuilder) {}

func (p *ClientboundFinishConfiguration) Decode(r *Reader) error { return r.Err() }

// KnownPack names a data pack both sides have.
type KnownPack struct {
	Namespace string `json:"namespace"`
	ID        string `json:"id"`
	Version   string `json:"version"`
}

// CorePack is the vanilla data pack for the served version.
var CorePack = KnownPack{Namespace: "minecraft", ID: "core", Version: VersionName}

func encodePacks(b *PacketBuilder, packs []KnownPack) {
	b.WriteVarInt(int32(len(packs)))
	for _, kp := range packs {
		b.WriteString(kp.Namespace).WriteString(kp.ID).WriteString(kp.Version)
	}
}

func decodePacks(r *Reader) []KnownPack {
	n := r.ReadCount()
	var packs []KnownPack
	for i := 0; i < n && r.Err() == nil; i++ {
		packs = append(packs, KnownPack{
			Namespace: r.ReadString(),
			ID:        r.ReadString(),
			Version:   r.ReadString(),
		})
	}
	return packs
}

// SelectKnownPacks is the client's reply listing the offered packs it has.
type SelectKnownPacks struct {
	Packs []KnownPack
}

func (p *SelectKnownPacks) ID() int32 { return IDConfigSelectKnownPacks }

func (p *SelectKnownPacks) Encode(b *PacketBuilder) { encodePacks(b, p.Packs) }

func (p *SelectKnownPacks) Decode(r *Reader) error {
	p.Packs = decodePacks(r)
	return r.Err()
}

// ClientboundKnownPacks offers the server's packs.
type ClientboundKnownPacks struct {
	Packs []KnownPack
}

func (p *ClientboundKnownPacks) ID() int32 { return IDClientboundKnownPacks }

func (p *ClientboundKnownPacks) Encode(b *PacketBuilder) { encodePacks(b, p.Packs) }

func (p *ClientboundKnownPacks) Decode(r *Reader) error {
	p.Packs = decodePacks(r)
	return r.Err()
}

// RegistryEntry is one entry of a synchronized registry. A nil Data means
// the client takes the entry from a known pack.
type RegistryEntry struct {
	ID   string
	Data any
}

// RegistryData sends one registry.
// Format: [registry:string][count:varint]([id:string][has_data:bool][nbt]?)...
type RegistryData struct {
	RegistryID string
	Entries    []RegistryEntry
}

func (p *RegistryData) ID() int32 { return IDRegistryData }

func (p *RegistryData) Encode(b *PacketBuilder) {
	b.WriteString(p.RegistryID).WriteVarInt(int32(len(p.Entries)))
	for _, e := range p.Entries {
		b.WriteString(e.ID).WriteBool(e.Data != nil)
		if e.Data != nil {
			b.WriteNBT(e.Data)
		}
	}
}

func (p *RegistryData) Decode(r *Reader) error {
	p.RegistryID = r.ReadString()
	n := r.ReadCount()
	p.Entries = nil
	for i := 0; i < n && r.Err() == nil; i++ {
		e := RegistryEntry{ID: r.ReadString()}
		if r.ReadBool() {
			e.Data = r.ReadNBT()
		}
		p.Entries = append(p.Entries, e)
	}
	return r.Err()
}

// Tag binds a tag name to registry entry ids.
type Tag struct {
	Name    string
	Entries []int32
}

// TagRegistry is the set of tags for one registry.
type TagRegistry struct {
	Registry string
	Tags     []Tag
}

// UpdateTags sends every tag of every registry.
type UpdateTags struct {
	Registries []TagRegistry
}

func (p *UpdateTags) ID() int32 { return IDUpdateTags }

func (p *UpdateTags) Encode(b *PacketBuilder) {
	b.WriteVarInt(int32(len(p.Registries)))
	for _, reg := range p.Registries {
		b.WriteString(reg.Registry).WriteVarInt(int32(len(reg.Tags)))
		for _, tag := range reg.Tags {
			b.WriteString(tag.Name).WriteVarInt(int32(len(tag.Entries)))
			for _, e := range tag.Entries {
				b.WriteVarInt(e)
			}
		}
	}
}

func (p *UpdateTags) Decode(r *Reader) error {
	p.Registries = nil
	regs := r.ReadCount()
	for i := 0; i < regs && r.Err() == nil; i++ {
		reg := TagRegistry{Registry: r.ReadString()}
		tags := r.ReadCount()
		for j := 0; j < tags && r.Err() == nil; j++ {
			tag := Tag{Name: r.ReadString()}
			entries := r.ReadCount()
			for k := 0; k < entries && r.Err() == nil; k++ {
				tag.Entries = append(tag.Entries, r.ReadVarInt())
			}
			reg.Tags = append(reg.Tags, tag)
		}
		p.Registries = append(p.Registries, reg)
	}
	return r.Err()
}

// ConfigDisconnect closes a connection during configuration.
type ConfigDisconnect struct {
	Reason Text
}

func (p *ConfigDisconnect) ID() int32 { return IDConfigDisconnect }

func (p *ConfigDisconnect) Encode(b *PacketBuilder) { b.WriteNBT(p.Reason.NBT()) }

func (p *ConfigDisconnect) Decode(r *Reader) error {
	p.Reason = TextFromNBT(r.ReadNBT())
	return r.Err()
}

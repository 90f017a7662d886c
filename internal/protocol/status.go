package protocol

import "encoding/json"

// StatusRequest asks for the server list document. It has no body.
type StatusRequest struct{}

func (p *StatusRequest) ID() int32 { return IDStatusRequest }

func (p *StatusRequest) Encode(b *PacketBuilder) {}

func (p *StatusRequest) Decode(r *Reader) error { return r.Err() }

// PingRequest carries an opaque payload the server echoes back.
type PingRequest struct {
	Payload int64
}

func (p *PingRequest) ID() int32 { return IDPingRequest }

func (p *PingRequest) Encode(b *PacketBuilder) { b.WriteInt64(p.Payload) }

func (p *PingRequest) Decode(r *Reader) error {
	p.Payload = r.ReadInt64()
	return r.Err()
}

// StatusResponse carries the server list document as JSON.
type StatusResponse struct {
	JSON string
}

func (p *StatusResponse) ID() int32 { return IDStatusResponse }

func (p *StatusResponse) Encode(b *PacketBuilder) { b.WriteJSON(p.JSON) }

func (p *StatusResponse) Decode(r *Reader) error {
	p.JSON = r.ReadString()
	return r.Err()
}

// PongResponse echoes a PingRequest payload.
type PongResponse struct {
	Payload int64
}

func (p *PongResponse) ID() int32 { return IDPongResponse }

func (p *PongResponse) Encode(b *PacketBuilder) { b.WriteInt64(p.Payload) }

func (p *PongResponse) Decode(r *Reader) error {
	p.Payload = r.ReadInt64()
	return r.Err()
}

// ServerStatus is the document served in StatusResponse.
type ServerStatus struct {
	Version            StatusVersion `json:"version"`
	Players            StatusPlayers `json:"players"`
	Description        Text          `json:"description"`
	Favicon            string        `json:"favicon,omitempty"`
	EnforcesSecureChat bool          `json:"enforcesSecureChat"`
}

type StatusVersion struct {
	Name     string `json:"name"`
	Protocol int32  `json:"protocol"`
}

type StatusPlayers struct {
	Max    int            `json:"max"`
	Online int            `json:"online"`
	Sample []StatusSample `json:"sample"`
}

// StatusSample is one entry of the hover list of online players.
type StatusSample struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Marshal returns the document as JSON. Sample is always an array.
func (s ServerStatus) Marshal() (string, error) {
	if s.Players.Sample == nil {
		s.Players.Sample = []StatusSample{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

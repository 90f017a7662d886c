package server

import (
	"math/rand"

	"github.com/energizer-project/voxelgate/internal/protocol"
)

// StatusDocument builds the server list JSON: version, player counts, a
// randomly chosen MOTD line and the favicon when configured.
func (m *Manager) StatusDocument() (string, error) {
	sd := m.cfg.GetServerData()

	motd := ""
	if len(sd.MOTD) > 0 {
		motd = sd.MOTD[rand.Intn(len(sd.MOTD))]
	}

	status := protocol.ServerStatus{
		Version: protocol.StatusVersion{
			Name:     protocol.VersionName,
			Protocol: protocol.ProtocolVersion,
		},
		Players: protocol.StatusPlayers{
			Max:    sd.MaxPlayers,
			Online: m.sessions.Count(),
			Sample: []protocol.StatusSample{},
		},
		Description: protocol.Text{Text: motd},
		Favicon:     sd.Favicon,
	}
	return status.Marshal()
}

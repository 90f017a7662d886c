package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultLANAddress is the multicast group clients watch for LAN worlds.
const DefaultLANAddress = "224.0.2.60:4445"

// LANAnnouncer periodically multicasts the server's MOTD and port so
// clients on the local network list it under LAN worlds.
type LANAnnouncer struct {
	addr     string
	interval time.Duration
	port     int
	motd     func() string
}

// NewLANAnnouncer creates an announcer. motd is called before every
// announcement so MOTD changes show up without a restart.
func NewLANAnnouncer(addr string, interval time.Duration, port int, motd func() string) *LANAnnouncer {
	if addr == "" {
		addr = DefaultLANAddress
	}
	if interval <= 0 {
		interval = 1500 * time.Millisecond
	}
	return &LANAnnouncer{addr: addr, interval: interval, port: port, motd: motd}
}

// LANPayload formats one announcement.
func LANPayload(motd string, port int) []byte {
	return []byte(fmt.Sprintf("[MOTD]%s[/MOTD][AD]%d[/AD]", motd, port))
}

// Start announces until ctx is cancelled.
func (a *LANAnnouncer) Start(ctx context.Context) error {
	group, err := net.ResolveUDPAddr("udp4", a.addr)
	if err != nil {
		return fmt.Errorf("invalid LAN address %s: %w", a.addr, err)
	}

	lc := ReuseAddrListenConfig()
	pc, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return fmt.Errorf("failed to open LAN announce socket: %w", err)
	}
	defer pc.Close()

	log.Info().Str("group", a.addr).Int("port", a.port).Msg("LAN announcer started")

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if _, err := pc.WriteTo(LANPayload(a.motd(), a.port), group); err != nil {
			log.Warn().Err(err).Str("group", a.addr).Msg("failed to send LAN announcement")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("LAN announcer stopping")
			return nil
		case <-ticker.C:
		}
	}
}

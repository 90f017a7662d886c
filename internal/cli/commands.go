// Package cli implements the operator console read from stdin: server
// status, the player list, kicks, broadcasts and live config edits.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/voxelgate/internal/config"
	"github.com/energizer-project/voxelgate/internal/events"
	"github.com/energizer-project/voxelgate/internal/protocol"
	"github.com/energizer-project/voxelgate/internal/server"
)

// Target is the part of server.Manager the console drives.
type Target interface {
	Stats() server.Stats
	Sessions() []server.SessionInfo
	KickByName(ctx context.Context, name, reason string) error
	Broadcast(ctx context.Context, text protocol.Text) int
}

// ProfileCache is cleared by the cacheclear command.
type ProfileCache interface {
	ClearCache(ctx context.Context) error
}

// kickReason is shown to players kicked from the console.
const kickReason = "Kicked by an operator"

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	target   Target
	profiles ProfileCache

	in  io.Reader
	out io.Writer
}

// NewCLI creates a console reading commands from in and writing to out.
// profiles may be nil when online mode is off.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, target Target, profiles ProfileCache, in io.Reader, out io.Writer) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		target:   target,
		profiles: profiles,
		in:       in,
		out:      out,
	}
}

// Start reads commands until ctx is cancelled or input ends.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\nVoxelgate console ready. Type 'help' for available commands.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				log.Debug().Msg("console input closed")
				return
			}
			c.handleLine(ctx, line)
		}
	}
}

func (c *CLI) handleLine(ctx context.Context, line string) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return
	}
	cmd := strings.ToLower(parts[0])
	if err := c.execute(ctx, cmd, parts[1:]); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "players", "list":
		c.printPlayers()
	case "kick":
		return c.cmdKick(ctx, args)
	case "say":
		return c.cmdSay(ctx, args)
	case "cacheclear":
		return c.cmdCacheClear(ctx)
	case "setconfig":
		return c.cmdSetConfig(ctx, args)
	case "quit", "exit", "stop", "q":
		fmt.Fprintln(c.out, "Shutting down Voxelgate...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"Command", "Description"})
	tw.SetAutoWrapText(false)
	tw.AppendBulk([][]string{
		{"status", "Show server status"},
		{"players", "List connected players"},
		{"kick <name>", "Disconnect a player"},
		{"say <message>", "Broadcast a system message"},
		{"cacheclear", "Clear the online-mode profile cache"},
		{"setconfig <key> <value>", "Update a server_data setting"},
		{"quit", "Shut down Voxelgate"},
		{"help", "Show this help message"},
	})
	tw.Render()
}

// printStatus displays the server summary.
func (c *CLI) printStatus() {
	st := c.target.Stats()

	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"Online", "Connections", "Entity IDs", "Traffic In", "Traffic Out", "Uptime"})
	tw.SetBorder(true)
	tw.Append([]string{
		fmt.Sprintf("%d/%d", st.Online, st.MaxPlayers),
		strconv.Itoa(st.Connections),
		fmt.Sprintf("%d (%d ranges)", st.EntityIDsInUse, st.EntityIDFragments),
		strconv.FormatUint(st.BytesIn, 10),
		strconv.FormatUint(st.BytesOut, 10),
		(time.Duration(st.UptimeSec) * time.Second).String(),
	})
	tw.Render()
}

// printPlayers lists every session in a table.
func (c *CLI) printPlayers() {
	sessions := c.target.Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(c.out, "No players connected.")
		return
	}

	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"Name", "UUID", "Entity", "Phase", "Remote", "Ping"})
	tw.SetAutoWrapText(false)

	for _, s := range sessions {
		entity := "-"
		if s.EntityID != nil {
			entity = strconv.Itoa(int(*s.EntityID))
		}
		ping := "-"
		if s.KeepAliveRTT > 0 {
			ping = s.KeepAliveRTT.Round(time.Millisecond).String()
		}
		name := s.Username
		if name == "" {
			name = "(connecting)"
		}
		tw.Append([]string{name, s.UUID, entity, s.Phase.String(), s.Remote, ping})
	}
	tw.Render()
}

func (c *CLI) cmdKick(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: kick <name> [reason]")
	}

	reason := kickReason
	if len(args) > 1 {
		reason = strings.Join(args[1:], " ")
	}

	if err := c.target.KickByName(ctx, args[0], reason); err != nil {
		if errors.Is(err, server.ErrPlayerOffline) {
			return fmt.Errorf("player %s is not online", args[0])
		}
		return err
	}
	fmt.Fprintf(c.out, "Kicked %s\n", args[0])
	return nil
}

func (c *CLI) cmdSay(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: say <message>")
	}

	message := strings.Join(args, " ")
	sent := c.target.Broadcast(ctx, protocol.Text{Text: "[Server] " + message})
	fmt.Fprintf(c.out, "Message sent to %d players\n", sent)
	return nil
}

func (c *CLI) cmdCacheClear(ctx context.Context) error {
	if c.profiles == nil {
		return fmt.Errorf("online mode is disabled, there is no profile cache")
	}
	if err := c.profiles.ClearCache(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Profile cache cleared")
	return nil
}

func (c *CLI) cmdSetConfig(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: setconfig <key> <value>")
	}

	key := args[0]
	raw := strings.Join(args[1:], " ")

	var value interface{} = raw
	if n, err := strconv.Atoi(raw); err == nil {
		value = n
	} else if b, err := strconv.ParseBool(raw); err == nil {
		value = b
	}

	if err := c.cfg.UpdateServerField(key, value); err != nil {
		return err
	}

	if c.cfg.Path() != "" {
		if err := c.cfg.Save(); err != nil {
			return err
		}
	}

	c.eventBus.Emit(ctx, events.Event{
		Type:   events.EventConfigChanged,
		Source: "cli",
		Payload: events.ConfigChangedPayload{
			Section: "server_data",
			Key:     key,
			Value:   value,
		},
	})

	fmt.Fprintf(c.out, "Config updated: %s = %s\n", key, raw)
	return nil
}

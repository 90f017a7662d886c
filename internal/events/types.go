// Package events defines the event types published on the Voxelgate event
// bus and the payload carried by each.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Player lifecycle
	EventPlayerJoin   EventType = "player_join"
	EventPlayerLeave  EventType = "player_leave"
	EventPlayerChat   EventType = "player_chat"
	EventPlayerKicked EventType = "player_kicked"

	// Protocol
	EventPluginMessage EventType = "plugin_message"
	EventLoginFailed   EventType = "login_failed"

	// Server
	EventServerStatus  EventType = "server_status"
	EventBroadcast     EventType = "broadcast"
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"
)

// AllEventTypes lists every event type, for subscribers that stream the
// whole bus.
var AllEventTypes = []EventType{
	EventPlayerJoin,
	EventPlayerLeave,
	EventPlayerChat,
	EventPlayerKicked,
	EventPluginMessage,
	EventLoginFailed,
	EventServerStatus,
	EventBroadcast,
	EventConfigChanged,
	EventShutdown,
}

// Event represents a single event in the system.
type Event struct {
	Type    EventType   `json:"type"`
	Source  string      `json:"source"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload,omitempty"`
}

// PlayerPayload identifies a player for join, leave and kick events.
type PlayerPayload struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	EntityID int32  `json:"entity_id"`
	Remote   string `json:"remote"`
	Reason   string `json:"reason,omitempty"`
}

// ChatPayload carries a chat line.
type ChatPayload struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// PluginMessagePayload carries a custom payload on a plugin channel.
type PluginMessagePayload struct {
	UUID    string `json:"uuid,omitempty"`
	Channel string `json:"channel"`
	Data    []byte `json:"data"`
}

// LoginFailedPayload describes a rejected online-mode login.
type LoginFailedPayload struct {
	Username string `json:"username"`
	UUID     string `json:"uuid"`
	Remote   string `json:"remote"`
	Error    string `json:"error"`
}

// ServerStatusPayload is a periodic snapshot of server load.
type ServerStatusPayload struct {
	Online        int     `json:"online"`
	MaxPlayers    int     `json:"max_players"`
	Connections   int     `json:"connections"`
	EntityIDsUsed int64   `json:"entity_ids_used"`
	CPUUsage      float64 `json:"cpu_usage"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
}

// BroadcastPayload is an operator message sent to every player.
type BroadcastPayload struct {
	Message    string `json:"message"`
	Recipients int    `json:"recipients"`
}

// ConfigChangedPayload is emitted when configuration changes occur.
type ConfigChangedPayload struct {
	Section string      `json:"section"`
	Key     string      `json:"key"`
	Value   interface{} `json:"value"`
}

// Package config handles configuration loading, validation, and persistence
// for the Voxelgate server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultGamePort   = 25565
	DefaultAPIPort    = 8080
	DefaultEULAFile   = "eula.txt"

	DefaultSessionServerURL = "https://sessionserver.mojang.com"
)

// Config is the root configuration structure for Voxelgate.
type Config struct {
	mu   sync.RWMutex
	path string

	ServerData      ServerData      `json:"server_data"`
	ApplicationData ApplicationData `json:"application_data"`
}

// ServerData contains the game-facing server settings.
type ServerData struct {
	// Listener
	IP   string `json:"ip"`
	Port int    `json:"port"`

	// Login
	OnlineMode           bool   `json:"online_mode"`
	CompressionThreshold int    `json:"network_compression_threshold"`
	AuthFailMessage      string `json:"auth_fail_message"`

	// World
	RenderDistance int `json:"render_distance"`
	MaxPlayers     int `json:"max_players"`

	// Server list
	MOTD    []string `json:"motd"`
	Favicon string   `json:"favicon"`
	Brand   string   `json:"brand"`

	// Liveness
	KeepAliveIntervalSec int `json:"keep_alive_interval_sec"`
	KeepAliveTimeoutSec  int `json:"keep_alive_timeout_sec"`
}

// ApplicationData contains process-level settings.
type ApplicationData struct {
	Auth     AuthConfig     `json:"auth"`
	Database DatabaseConfig `json:"database"`
	API      APIConfig      `json:"api"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Security SecurityConfig `json:"security"`
	Logging  LoggingConfig  `json:"logging"`
	Timers   TimerConfig    `json:"timers"`
	LAN      LANConfig      `json:"lan"`
	EULAFile string         `json:"eula_file"`
}

// AuthConfig holds session server and profile cache settings.
type AuthConfig struct {
	SessionServerURL string      `json:"session_server_url"`
	TimeoutSec       int         `json:"timeout_sec"`
	CacheBackend     string      `json:"cache_backend"`
	Redis            RedisConfig `json:"redis"`
}

// Profile cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// RedisConfig holds the shared profile cache connection.
type RedisConfig struct {
	Addr      string `json:"addr"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

// DatabaseConfig holds player store settings.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// APIConfig holds the admin HTTP API settings.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	CAFile    string `json:"ca_file"`
	ClientID  string `json:"client_id"`
}

// SecurityConfig holds security-related settings for the admin API.
type SecurityConfig struct {
	TLSEnabled     bool     `json:"tls_enabled"`
	TLSCertFile    string   `json:"tls_cert_file"`
	TLSKeyFile     string   `json:"tls_key_file"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	IPWhitelist    []string `json:"ip_whitelist"`
	APIToken       string   `json:"api_token"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// TimerConfig holds background task intervals.
type TimerConfig struct {
	AutosaveInterval      int `json:"autosave_interval_sec"`
	StatsInterval         int `json:"stats_interval_sec"`
	GeneralHealthInterval int `json:"general_health_interval_sec"`
	HeartbeatInterval     int `json:"heartbeat_interval_sec"`
}

// LANConfig holds LAN world announcement settings.
type LANConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	IntervalMs int    `json:"interval_ms"`
}

// DefaultAuthFailMessage is shown to clients that fail online verification.
const DefaultAuthFailMessage = "请使用正版《我的世界》账户登录"

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ServerData: ServerData{
			IP:                   "0.0.0.0",
			Port:                 DefaultGamePort,
			OnlineMode:           true,
			CompressionThreshold: 64,
			AuthFailMessage:      DefaultAuthFailMessage,
			RenderDistance:       12,
			MaxPlayers:           100,
			MOTD: []string{
				"Welcome to the best server ever!",
				"Voxelgate",
				"Good luck, have fun!",
			},
			Brand:                "voxelgate",
			KeepAliveIntervalSec: 10,
			KeepAliveTimeoutSec:  30,
		},
		ApplicationData: ApplicationData{
			Auth: AuthConfig{
				SessionServerURL: DefaultSessionServerURL,
				TimeoutSec:       10,
				CacheBackend:     CacheBackendMemory,
				Redis: RedisConfig{
					Addr:      "localhost:6379",
					KeyPrefix: "voxelgate:profile:",
				},
			},
			Database: DatabaseConfig{
				Path: filepath.Join("data", "players.db"),
			},
			API: APIConfig{
				Enabled: true,
				Host:    "127.0.0.1",
				Port:    DefaultAPIPort,
			},
			MQTT: MQTTConfig{
				Enabled: false,
				Port:    8883,
				UseTLS:  true,
			},
			Security: SecurityConfig{
				RateLimitRPS: 50,
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxSizeMB:  10,
				MaxBackups: 5,
			},
			Timers: TimerConfig{
				AutosaveInterval:      300,
				StatsInterval:         60,
				GeneralHealthInterval: 15,
				HeartbeatInterval:     60,
			},
			LAN: LANConfig{
				Enabled:    false,
				Address:    "224.0.2.60:4445",
				IntervalMs: 1500,
			},
			EULAFile: DefaultEULAFile,
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save so fields added since the file was written show up in it.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetServerData returns a copy of the server data configuration.
func (c *Config) GetServerData() ServerData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sd := c.ServerData
	sd.MOTD = append([]string(nil), c.ServerData.MOTD...)
	return sd
}

// SetServerData updates the server data configuration.
func (c *Config) SetServerData(data ServerData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ServerData = data
}

// GetApplicationData returns a copy of the application data configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// SetApplicationData updates the application data configuration.
func (c *Config) SetApplicationData(data ApplicationData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ApplicationData = data
}

// UpdateServerField updates a single server data field by its JSON key.
func (c *Config) UpdateServerField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, _ := json.Marshal(c.ServerData)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	if _, ok := m[key]; !ok {
		return fmt.Errorf("unknown server field %q", key)
	}
	m[key] = value

	updated, _ := json.Marshal(m)
	next := c.ServerData
	if err := json.Unmarshal(updated, &next); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}
	c.ServerData = next

	return nil
}

// Redacted returns a copy of the configuration with secrets blanked, for
// display through the API.
func (c *Config) Redacted() map[string]interface{} {
	c.mu.RLock()
	app := c.ApplicationData
	server := c.ServerData
	c.mu.RUnlock()

	if app.Security.APIToken != "" {
		app.Security.APIToken = "********"
	}
	if app.Auth.Redis.Password != "" {
		app.Auth.Redis.Password = "********"
	}
	return map[string]interface{}{
		"server_data":      server,
		"application_data": app,
	}
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// SetPath sets where Save writes the configuration.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	server := cfg.GetServerData()
	app := cfg.GetApplicationData()
	validateServerData(&server, result)
	validateApplicationData(&app, result)

	if app.API.Enabled && app.API.Port == server.Port {
		result.AddError("application_data.api.port", "API port conflicts with the game port")
	}

	return result
}

func validateServerData(data *ServerData, result *ValidationResult) {
	if net.ParseIP(data.IP) == nil {
		result.AddError("server_data.ip", fmt.Sprintf("invalid bind address: %q", data.IP))
	}
	validatePort(data.Port, "server_data.port", result)

	if data.CompressionThreshold < -1 {
		result.AddError("server_data.network_compression_threshold",
			"threshold must be -1 (disabled) or at least 0")
	}

	if data.RenderDistance < 2 || data.RenderDistance > 32 {
		result.AddError("server_data.render_distance",
			fmt.Sprintf("render distance %d out of range (2-32)", data.RenderDistance))
	} else if data.RenderDistance > 16 {
		result.AddWarning("server_data.render_distance",
			fmt.Sprintf("render distance %d sends %d chunks per join", data.RenderDistance,
				(2*data.RenderDistance+1)*(2*data.RenderDistance+1)))
	}

	if data.MaxPlayers < 1 {
		result.AddError("server_data.max_players", "must allow at least 1 player")
	}

	if len(data.MOTD) == 0 {
		result.AddError("server_data.motd", "at least one MOTD line is required")
	}

	if data.KeepAliveIntervalSec < 1 {
		result.AddError("server_data.keep_alive_interval_sec", "keep-alive interval must be at least 1s")
	}
	if data.KeepAliveTimeoutSec <= data.KeepAliveIntervalSec {
		result.AddWarning("server_data.keep_alive_timeout_sec",
			"keep-alive timeout should be longer than the interval")
	}

	if !data.OnlineMode {
		result.AddWarning("server_data.online_mode",
			"online mode is disabled, player identities are not verified")
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	validateTimers(&data.Timers, result)

	// Auth
	switch data.Auth.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if strings.TrimSpace(data.Auth.Redis.Addr) == "" {
			result.AddError("application_data.auth.redis.addr", "redis address is required for the redis cache backend")
		}
	default:
		result.AddError("application_data.auth.cache_backend",
			fmt.Sprintf("unknown cache backend %q (expected memory or redis)", data.Auth.CacheBackend))
	}
	if data.Auth.TimeoutSec < 1 {
		result.AddError("application_data.auth.timeout_sec", "session server timeout must be at least 1s")
	}

	if strings.TrimSpace(data.Database.Path) == "" {
		result.AddError("application_data.database.path", "database path is required")
	}

	if data.API.Enabled {
		validatePort(data.API.Port, "application_data.api.port", result)
	}

	// MQTT
	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", "invalid MQTT port")
		}
	}

	// Security
	if data.Security.TLSEnabled {
		if strings.TrimSpace(data.Security.TLSCertFile) == "" {
			result.AddError("application_data.security.tls_cert_file",
				"TLS certificate file is required when TLS is enabled")
		}
		if strings.TrimSpace(data.Security.TLSKeyFile) == "" {
			result.AddError("application_data.security.tls_key_file",
				"TLS key file is required when TLS is enabled")
		}
	}

	if data.Security.RateLimitRPS < 1 {
		result.AddWarning("application_data.security.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}

	if data.API.Enabled && data.Security.APIToken == "" {
		result.AddWarning("application_data.security.api_token",
			"no API token set, control endpoints are unauthenticated")
	}

	if data.LAN.Enabled {
		if _, err := net.ResolveUDPAddr("udp4", data.LAN.Address); err != nil {
			result.AddError("application_data.lan.address", fmt.Sprintf("invalid LAN address: %v", err))
		}
		if data.LAN.IntervalMs < 100 {
			result.AddWarning("application_data.lan.interval_ms", "LAN announcements faster than 100ms flood the network")
		}
	}
}

func validateTimers(timers *TimerConfig, result *ValidationResult) {
	if timers.AutosaveInterval < 10 {
		result.AddWarning("timers.autosave_interval",
			"autosave interval less than 10s may cause excessive disk writes")
	}
	if timers.GeneralHealthInterval < 1 {
		result.AddError("timers.general_health_interval", "health interval must be at least 1s")
	}
	if timers.HeartbeatInterval < 10 {
		result.AddWarning("timers.heartbeat_interval",
			"heartbeat interval less than 10s may cause excessive traffic")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

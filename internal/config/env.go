package config

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"
)

// DefaultEnvFile is loaded, if present, before environment overrides apply.
const DefaultEnvFile = ".env"

// envOverrides lists the settings that can be set from the environment.
// Values are kept as strings so an unset variable is distinguishable from
// a zero value.
type envOverrides struct {
	IP                   string `env:"VOXELGATE_IP"`
	Port                 string `env:"VOXELGATE_PORT"`
	OnlineMode           string `env:"VOXELGATE_ONLINE_MODE"`
	CompressionThreshold string `env:"VOXELGATE_COMPRESSION_THRESHOLD"`
	MaxPlayers           string `env:"VOXELGATE_MAX_PLAYERS"`
	DatabasePath         string `env:"VOXELGATE_DB_PATH"`
	LogLevel             string `env:"VOXELGATE_LOG_LEVEL"`
	APIToken             string `env:"VOXELGATE_API_TOKEN"`
	RedisAddr            string `env:"VOXELGATE_REDIS_ADDR"`
	RedisPassword        string `env:"VOXELGATE_REDIS_PASSWORD"`
}

// ApplyEnv loads envFile into the process environment when it exists and
// then applies VOXELGATE_* variables on top of the loaded configuration.
// It returns the names of the settings that were overridden.
func ApplyEnv(ctx context.Context, cfg *Config, envFile string) ([]string, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	var env envOverrides
	if err := envconfig.Process(ctx, &env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return applyOverrides(cfg, env)
}

func applyOverrides(cfg *Config, env envOverrides) ([]string, error) {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	var applied []string
	setInt := func(name, raw string, dst *int) error {
		if raw == "" {
			return nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		*dst = v
		applied = append(applied, name)
		return nil
	}
	setString := func(name, raw string, dst *string) {
		if raw != "" {
			*dst = raw
			applied = append(applied, name)
		}
	}

	sd := &cfg.ServerData
	app := &cfg.ApplicationData

	setString("VOXELGATE_IP", env.IP, &sd.IP)
	if err := setInt("VOXELGATE_PORT", env.Port, &sd.Port); err != nil {
		return applied, err
	}
	if env.OnlineMode != "" {
		v, err := strconv.ParseBool(env.OnlineMode)
		if err != nil {
			return applied, fmt.Errorf("invalid VOXELGATE_ONLINE_MODE %q: %w", env.OnlineMode, err)
		}
		sd.OnlineMode = v
		applied = append(applied, "VOXELGATE_ONLINE_MODE")
	}
	if err := setInt("VOXELGATE_COMPRESSION_THRESHOLD", env.CompressionThreshold, &sd.CompressionThreshold); err != nil {
		return applied, err
	}
	if err := setInt("VOXELGATE_MAX_PLAYERS", env.MaxPlayers, &sd.MaxPlayers); err != nil {
		return applied, err
	}
	setString("VOXELGATE_DB_PATH", env.DatabasePath, &app.Database.Path)
	setString("VOXELGATE_LOG_LEVEL", env.LogLevel, &app.Logging.Level)
	setString("VOXELGATE_API_TOKEN", env.APIToken, &app.Security.APIToken)
	setString("VOXELGATE_REDIS_ADDR", env.RedisAddr, &app.Auth.Redis.Addr)
	setString("VOXELGATE_REDIS_PASSWORD", env.RedisPassword, &app.Auth.Redis.Password)

	for _, name := range applied {
		log.Debug().Str("variable", name).Msg("configuration overridden from environment")
	}
	return applied, nil
}

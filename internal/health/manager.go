// Package health runs periodic liveness checks: keep-alive timeouts, stale
// connections, database reachability, disk space and the MQTT heartbeat.
package health

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/voxelgate/internal/config"
	"github.com/energizer-project/voxelgate/internal/server"
	"github.com/energizer-project/voxelgate/internal/util"
)

// Target is the server whose sessions are checked.
type Target interface {
	CheckKeepAlives(ctx context.Context, timeout time.Duration) int
	Stats() server.Stats
}

// StaleCleaner closes idle connections.
type StaleCleaner interface {
	CleanStale(timeout time.Duration) int
}

// Pinger checks that a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Heartbeater publishes the periodic liveness message.
type Heartbeater interface {
	PublishHeartbeat(status interface{})
}

// Status is the latest result of every check.
type Status struct {
	Healthy      bool      `json:"healthy"`
	DatabaseOK   bool      `json:"database_ok"`
	DatabaseErr  string    `json:"database_error,omitempty"`
	LastKicked   int       `json:"last_keepalive_kicks"`
	DiskUsedPct  float64   `json:"disk_used_percent"`
	LastCheckAt  time.Time `json:"last_check_at"`
	TotalKicked  int       `json:"total_keepalive_kicks"`
	StaleClosed  int       `json:"stale_closed"`
	Online       int       `json:"online"`
	Connections  int       `json:"connections"`
	HeartbeatsTx int       `json:"heartbeats_sent"`
}

// Manager runs the health checks.
type Manager struct {
	cfg       *config.Config
	target    Target
	conns     StaleCleaner
	db        Pinger
	heartbeat Heartbeater

	mu     sync.RWMutex
	status Status
}

// NewManager creates a health manager. conns, db and heartbeat may be nil.
func NewManager(cfg *config.Config, target Target, conns StaleCleaner, db Pinger, heartbeat Heartbeater) *Manager {
	return &Manager{
		cfg:       cfg,
		target:    target,
		conns:     conns,
		db:        db,
		heartbeat: heartbeat,
		status:    Status{Healthy: true, DatabaseOK: true},
	}
}

// Start launches each check on its own ticker and blocks until ctx is
// cancelled.
func (m *Manager) Start(ctx context.Context) {
	timers := m.cfg.GetApplicationData().Timers
	sd := m.cfg.GetServerData()

	checks := []struct {
		name     string
		interval int
		fn       func(context.Context)
	}{
		{"keep_alive", sd.KeepAliveIntervalSec, m.checkKeepAlives},
		{"general_health", timers.GeneralHealthInterval, m.checkGeneralHealth},
		{"heartbeat", timers.HeartbeatInterval, m.publishHeartbeat},
	}

	started := 0
	for _, check := range checks {
		if check.interval <= 0 {
			continue
		}
		started++

		check := check
		go func() {
			ticker := time.NewTicker(time.Duration(check.interval) * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					check.fn(ctx)
				}
			}
		}()
	}

	log.Info().Int("checks", started).Msg("health check manager started")

	<-ctx.Done()
	log.Info().Msg("health check manager stopped")
}

// Status returns the latest check results.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// checkKeepAlives kicks players that stopped answering keep-alives.
func (m *Manager) checkKeepAlives(ctx context.Context) {
	timeout := time.Duration(m.cfg.GetServerData().KeepAliveTimeoutSec) * time.Second
	kicked := m.target.CheckKeepAlives(ctx, timeout)
	if kicked > 0 {
		log.Info().Int("kicked", kicked).Msg("kicked unresponsive players")
	}

	m.mu.Lock()
	m.status.LastKicked = kicked
	m.status.TotalKicked += kicked
	m.mu.Unlock()
}

// checkGeneralHealth pings the database, closes idle connections and
// checks disk space next to the database.
func (m *Manager) checkGeneralHealth(ctx context.Context) {
	dbErr := m.pingDatabase(ctx)

	// Connections that send nothing for twice the keep-alive timeout are dead.
	idle := 2 * time.Duration(m.cfg.GetServerData().KeepAliveTimeoutSec) * time.Second
	stale := 0
	if idle > 0 && m.conns != nil {
		stale = m.conns.CleanStale(idle)
	}

	diskPct := m.checkDisk()
	stats := m.target.Stats()

	m.mu.Lock()
	m.status.DatabaseOK = dbErr == nil
	m.status.DatabaseErr = ""
	if dbErr != nil {
		m.status.DatabaseErr = dbErr.Error()
	}
	m.status.StaleClosed += stale
	m.status.DiskUsedPct = diskPct
	m.status.Online = stats.Online
	m.status.Connections = stats.Connections
	m.status.Healthy = dbErr == nil && diskPct < 95
	m.status.LastCheckAt = time.Now()
	m.mu.Unlock()
}

func (m *Manager) pingDatabase(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.db.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("database ping failed")
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// checkDisk monitors the volume holding the database and logs at the
// 80, 90 and 95 percent thresholds.
func (m *Manager) checkDisk() float64 {
	path := filepath.Dir(m.cfg.GetApplicationData().Database.Path)
	usage, err := util.GetDiskUsage(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("disk utilization check failed")
		return 0
	}

	var level string
	switch {
	case usage.UsedPercent >= 95:
		level = "critical"
	case usage.UsedPercent >= 90:
		level = "warning"
	case usage.UsedPercent >= 80:
		level = "info"
	default:
		return usage.UsedPercent
	}

	log.Warn().
		Str("level", level).
		Float64("used_percent", usage.UsedPercent).
		Uint64("free_gb", usage.Free).
		Msg("disk space low")
	return usage.UsedPercent
}

// publishHeartbeat sends the liveness message over MQTT.
func (m *Manager) publishHeartbeat(ctx context.Context) {
	if m.heartbeat == nil {
		return
	}
	stats := m.target.Stats()
	status := m.Status()

	m.heartbeat.PublishHeartbeat(map[string]interface{}{
		"online":      stats.Online,
		"max_players": stats.MaxPlayers,
		"connections": stats.Connections,
		"uptime_sec":  stats.UptimeSec,
		"healthy":     status.Healthy,
		"timestamp":   time.Now().Unix(),
	})

	m.mu.Lock()
	m.status.HeartbeatsTx++
	m.mu.Unlock()
}

// Package scheduler runs periodic background tasks: profile autosave and
// server statistics.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/voxelgate/internal/config"
	"github.com/energizer-project/voxelgate/internal/events"
	"github.com/energizer-project/voxelgate/internal/server"
	"github.com/energizer-project/voxelgate/internal/util"
)

// Target is the server the scheduler works on.
type Target interface {
	SaveAll(ctx context.Context) error
	Stats() server.Stats
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg      *config.Config
	eventBus *events.EventBus
	target   Target
}

// NewScheduler creates a new task scheduler.
func NewScheduler(cfg *config.Config, eventBus *events.EventBus, target Target) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		eventBus: eventBus,
		target:   target,
	}
}

// Start runs every task with a positive interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	timers := s.cfg.GetApplicationData().Timers
	log.Info().Msg("scheduler started")

	tasks := []struct {
		name     string
		interval int
		fn       func(context.Context)
	}{
		{"autosave", timers.AutosaveInterval, s.autosave},
		{"stats", timers.StatsInterval, s.collectStats},
	}

	for _, task := range tasks {
		if task.interval <= 0 {
			log.Debug().Str("task", task.name).Msg("task disabled")
			continue
		}
		go runEvery(ctx, time.Duration(task.interval)*time.Second, task.fn)
	}

	<-ctx.Done()

	// Profiles are saved once more on the way out.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.autosave(shutdownCtx)
	log.Info().Msg("scheduler stopped")
}

func runEvery(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// autosave flushes every live profile to the database.
func (s *Scheduler) autosave(ctx context.Context) {
	start := time.Now()
	if err := s.target.SaveAll(ctx); err != nil {
		log.Error().Err(err).Msg("autosave failed")
		return
	}
	log.Debug().Dur("took", time.Since(start)).Msg("autosave completed")
}

// collectStats logs a server summary and publishes it on the bus.
func (s *Scheduler) collectStats(ctx context.Context) {
	stats := s.target.Stats()

	payload := events.ServerStatusPayload{
		Online:        stats.Online,
		MaxPlayers:    stats.MaxPlayers,
		Connections:   stats.Connections,
		EntityIDsUsed: stats.EntityIDsInUse,
	}
	if cpu, err := util.GetCPUUsage(); err == nil {
		payload.CPUUsage = cpu
	}
	if proc, err := util.GetProcessUsage(); err == nil {
		payload.MemoryUsedMB = proc.RSSMB
	}

	log.Info().
		Int("online", stats.Online).
		Int("connections", stats.Connections).
		Int64("entity_ids", stats.EntityIDsInUse).
		Str("traffic_in", formatBytes(int64(stats.BytesIn))).
		Str("traffic_out", formatBytes(int64(stats.BytesOut))).
		Float64("cpu", payload.CPUUsage).
		Msg("server stats")

	if s.eventBus != nil {
		s.eventBus.Emit(ctx, events.Event{
			Type:    events.EventServerStatus,
			Source:  "scheduler",
			Payload: payload,
		})
	}
}

// formatBytes formats bytes into human-readable format.
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

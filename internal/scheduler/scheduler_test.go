package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/voxelgate/internal/config"
	"github.com/energizer-project/voxelgate/internal/events"
	"github.com/energizer-project/voxelgate/internal/server"
)

type fakeTarget struct {
	saves atomic.Int32
	err   error
}

func (f *fakeTarget) SaveAll(ctx context.Context) error {
	f.saves.Add(1)
	return f.err
}

func (f *fakeTarget) Stats() server.Stats {
	return server.Stats{Online: 3, MaxPlayers: 10, Connections: 4, EntityIDsInUse: 3}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.50 KB", formatBytes(1536))
	assert.Equal(t, "2.00 MB", formatBytes(2*1024*1024))
	assert.Equal(t, "1.00 GB", formatBytes(1024*1024*1024))
}

func TestCollectStats_EmitsStatus(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Stop()

	got := make(chan events.ServerStatusPayload, 1)
	bus.Subscribe(events.EventServerStatus, "test", func(ctx context.Context, e events.Event) error {
		got <- e.Payload.(events.ServerStatusPayload)
		return nil
	})

	s := NewScheduler(config.DefaultConfig(), bus, &fakeTarget{})
	s.collectStats(context.Background())

	select {
	case p := <-got:
		assert.Equal(t, 3, p.Online)
		assert.Equal(t, 10, p.MaxPlayers)
		assert.Equal(t, int64(3), p.EntityIDsUsed)
	case <-time.After(time.Second):
		t.Fatal("status not emitted")
	}
}

func TestStart_AutosavesOnTickAndShutdown(t *testing.T) {
	cfg := config.DefaultConfig()
	app := cfg.GetApplicationData()
	app.Timers.AutosaveInterval = 1
	app.Timers.StatsInterval = 0
	cfg.SetApplicationData(app)

	target := &fakeTarget{}
	s := NewScheduler(cfg, nil, target)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return target.saves.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	before := target.saves.Load()
	cancel()
	<-done
	assert.Greater(t, target.saves.Load(), before)
}

func TestAutosave_ErrorIsLogged(t *testing.T) {
	target := &fakeTarget{err: assert.AnError}
	s := NewScheduler(config.DefaultConfig(), nil, target)
	s.autosave(context.Background())
	assert.Equal(t, int32(1), target.saves.Load())
}

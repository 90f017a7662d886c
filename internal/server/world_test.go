package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/voxelgate/internal/protocol"
)

func TestNewWorld_Registries(t *testing.T) {
	w := NewWorld()

	var biomes *protocol.RegistryData
	for _, reg := range w.Registries() {
		for _, e := range reg.Entries {
			assert.Nil(t, e.Data, "%s %s should come from the core pack", reg.RegistryID, e.ID)
		}
		if reg.RegistryID == "minecraft:worldgen/biome" {
			biomes = reg
		}
	}
	require.NotNil(t, biomes)
	assert.Equal(t, "minecraft:plains", biomes.Entries[w.PlainsBiome()].ID)
}

func TestNewWorld_TagsResolveToIDs(t *testing.T) {
	w := NewWorld()

	var damage *protocol.TagRegistry
	for i := range w.Tags().Registries {
		if w.Tags().Registries[i].Registry == "minecraft:damage_type" {
			damage = &w.Tags().Registries[i]
		}
	}
	require.NotNil(t, damage)

	for _, tag := range damage.Tags {
		if tag.Name == "minecraft:is_drowning" {
			// drown is the seventh damage type
			assert.Equal(t, []int32{6}, tag.Entries)
			return
		}
	}
	t.Fatal("is_drowning tag missing")
}

func TestWorld_ChunkAndLoginPlay(t *testing.T) {
	w := NewWorld()

	c := w.Chunk(-3, 4)
	assert.Equal(t, int32(-3), c.X)
	assert.Equal(t, int32(4), c.Z)
	assert.Equal(t, protocol.NewEmptyChunk(-3, 4, w.PlainsBiome()).Data, c.Data)

	lp := w.LoginPlay(7, 20, 10)
	assert.Equal(t, int32(7), lp.EntityID)
	assert.Equal(t, []string{OverworldName, "minecraft:the_end", "minecraft:the_nether"}, lp.DimensionNames)
	assert.Equal(t, int32(20), lp.MaxPlayers)
	assert.Equal(t, int32(10), lp.ViewDistance)
	assert.Equal(t, int32(10), lp.SimulationDistance)
	assert.Nil(t, lp.DeathLocation)
	assert.False(t, lp.EnforcesSecureChat)
}

func TestHeartbeat_ProbeAndAck(t *testing.T) {
	h := newHeartbeat(time.Hour)

	_, ok := h.ack(123)
	assert.False(t, ok, "ack before any probe")

	var sent int64
	require.NoError(t, h.probe(func(id int64) error {
		sent = id
		return nil
	}))
	assert.NotZero(t, sent)

	_, ok = h.ack(sent + 1)
	assert.False(t, ok)

	before := h.LastAck()
	rtt, ok := h.ack(sent)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, rtt, time.Duration(0))
	assert.False(t, h.LastAck().Before(before))
	assert.Equal(t, rtt, h.RTT())
}

func TestHeartbeat_SendErrorStopsRun(t *testing.T) {
	h := newHeartbeat(5 * time.Millisecond)
	err := h.run(context.Background(), func(id int64) error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
}

package server

import (
	"sort"

	"github.com/energizer-project/voxelgate/internal/protocol"
)

// Overworld identifiers sent in LoginPlay.
const (
	OverworldName = "minecraft:overworld"
	SeaLevel      = 63
)

// builtinRegistries lists the synchronized registries and their entries in
// id order. Entry data is omitted so the client loads it from the core
// known pack.
var builtinRegistries = []struct {
	id      string
	entries []string
}{
	{"minecraft:dimension_type", []string{
		"overworld", "overworld_caves", "the_end", "the_nether",
	}},
	{"minecraft:worldgen/biome", []string{
		"badlands", "bamboo_jungle", "basalt_deltas", "beach", "birch_forest",
		"cherry_grove", "cold_ocean", "crimson_forest", "dark_forest",
		"deep_cold_ocean", "deep_dark", "deep_frozen_ocean", "deep_lukewarm_ocean",
		"deep_ocean", "desert", "dripstone_caves", "end_barrens", "end_highlands",
		"end_midlands", "eroded_badlands", "flower_forest", "forest",
		"frozen_ocean", "frozen_peaks", "frozen_river", "grove", "ice_spikes",
		"jagged_peaks", "jungle", "lukewarm_ocean", "lush_caves",
		"mangrove_swamp", "meadow", "mushroom_fields", "nether_wastes", "ocean",
		"old_growth_birch_forest", "old_growth_pine_taiga",
		"old_growth_spruce_taiga", "pale_garden", "plains", "river", "savanna",
		"savanna_plateau", "small_end_islands", "snowy_beach", "snowy_plains",
		"snowy_slopes", "snowy_taiga", "soul_sand_valley", "sparse_jungle",
		"stony_peaks", "stony_shore", "sunflower_plains", "swamp", "taiga",
		"the_end", "the_void", "warm_ocean", "warped_forest", "windswept_forest",
		"windswept_gravelly_hills", "windswept_hills", "windswept_savanna",
		"wooded_badlands",
	}},
	{"minecraft:chat_type", []string{
		"chat", "emote_command", "msg_command_incoming", "msg_command_outgoing",
		"say_command", "team_msg_command_incoming", "team_msg_command_outgoing",
	}},
	{"minecraft:damage_type", []string{
		"arrow", "bad_respawn_point", "cactus", "campfire", "cramming",
		"dragon_breath", "drown", "dry_out", "ender_pearl", "explosion", "fall",
		"falling_anvil", "falling_block", "falling_stalactite", "fireball",
		"fireworks", "fly_into_wall", "freeze", "generic", "generic_kill",
		"hot_floor", "in_fire", "in_wall", "indirect_magic", "lava",
		"lightning_bolt", "mace_smash", "magic", "mob_attack",
		"mob_attack_no_aggro", "mob_projectile", "on_fire", "out_of_world",
		"outside_border", "player_attack", "player_explosion", "sonic_boom",
		"spit", "stalagmite", "starve", "sting", "sweet_berry_bush", "thorns",
		"thrown", "trident", "unattributed_fireball", "wind_charge", "wither",
		"wither_skull",
	}},
	{"minecraft:painting_variant", []string{
		"alban", "aztec", "aztec2", "backyard", "baroque", "bomb", "bouquet",
		"burning_skull", "bust", "cavebird", "changing", "cotan", "courbet",
		"creebet", "donkey_kong", "earth", "endboss", "fern", "fighters",
		"finding", "fire", "graham", "humble", "kebab", "lowmist", "match",
		"meditative", "orb", "owlemons", "passage", "pigscene", "plant",
		"pointer", "pond", "pool", "prairie_ride", "sea", "skeleton",
		"skull_and_roses", "stage", "sunflowers", "sunset", "tides", "unpacked",
		"void", "wanderer", "wasteland", "water", "wind", "wither",
	}},
	{"minecraft:wolf_variant", []string{
		"ashen", "black", "chestnut", "pale", "rusty", "snowy", "spotted",
		"striped", "woods",
	}},
	{"minecraft:wolf_sound_variant", []string{
		"angry", "big", "classic", "cute", "grumpy", "puglin", "sad",
	}},
	{"minecraft:pig_variant", []string{"cold", "temperate", "warm"}},
	{"minecraft:cow_variant", []string{"cold", "temperate", "warm"}},
	{"minecraft:chicken_variant", []string{"cold", "temperate", "warm"}},
	{"minecraft:frog_variant", []string{"cold", "temperate", "warm"}},
	{"minecraft:cat_variant", []string{
		"all_black", "black", "british_shorthair", "calico", "jellie", "persian",
		"ragdoll", "red", "siamese", "tabby", "white",
	}},
}

// builtinTags lists tags by registry. Entries name registry entries and are
// resolved to ids when the world is built.
var builtinTags = []struct {
	registry string
	tags     map[string][]string
}{
	{"minecraft:damage_type", map[string][]string{
		"minecraft:is_fire":       {"campfire", "fireball", "hot_floor", "in_fire", "lava", "on_fire", "unattributed_fireball"},
		"minecraft:is_fall":       {"fall", "ender_pearl", "stalagmite"},
		"minecraft:is_drowning":   {"drown"},
		"minecraft:is_freezing":   {"freeze"},
		"minecraft:is_lightning":  {"lightning_bolt"},
		"minecraft:is_explosion":  {"explosion", "fireworks", "player_explosion", "bad_respawn_point", "wither_skull"},
		"minecraft:is_projectile": {"arrow", "fireball", "mob_projectile", "spit", "thrown", "trident", "unattributed_fireball", "wind_charge", "wither_skull"},
		"minecraft:bypasses_armor": {
			"cramming", "drown", "dry_out", "fall", "fly_into_wall", "freeze",
			"generic", "in_wall", "indirect_magic", "magic", "on_fire",
			"out_of_world", "outside_border", "sonic_boom", "stalagmite", "starve", "wither",
		},
		"minecraft:bypasses_invulnerability": {"generic_kill", "out_of_world"},
	}},
	{"minecraft:worldgen/biome", map[string][]string{
		"minecraft:is_overworld": {"plains", "forest", "desert", "ocean", "river", "taiga", "swamp", "savanna", "jungle"},
		"minecraft:is_nether":    {"basalt_deltas", "crimson_forest", "nether_wastes", "soul_sand_valley", "warped_forest"},
		"minecraft:is_end":       {"end_barrens", "end_highlands", "end_midlands", "small_end_islands", "the_end"},
	}},
}

// World holds the static data every joining player receives: registries,
// tags and the empty chunk column.
type World struct {
	registries []*protocol.RegistryData
	tags       *protocol.UpdateTags
	plainsID   int32
	sections   []byte
	heightmaps []protocol.Heightmap
}

// NewWorld builds the registry, tag and chunk data.
func NewWorld() *World {
	w := &World{plainsID: -1}
	index := make(map[string]map[string]int32, len(builtinRegistries))

	for _, reg := range builtinRegistries {
		data := &protocol.RegistryData{RegistryID: reg.id}
		ids := make(map[string]int32, len(reg.entries))
		for i, name := range reg.entries {
			data.Entries = append(data.Entries, protocol.RegistryEntry{ID: "minecraft:" + name})
			ids[name] = int32(i)
		}
		index[reg.id] = ids
		w.registries = append(w.registries, data)
	}
	w.plainsID = index["minecraft:worldgen/biome"]["plains"]

	w.tags = &protocol.UpdateTags{}
	for _, group := range builtinTags {
		ids := index[group.registry]
		tr := protocol.TagRegistry{Registry: group.registry}
		for _, name := range sortedKeys(group.tags) {
			tag := protocol.Tag{Name: name}
			for _, entry := range group.tags[name] {
				if id, ok := ids[entry]; ok {
					tag.Entries = append(tag.Entries, id)
				}
			}
			tr.Tags = append(tr.Tags, tag)
		}
		w.tags.Registries = append(w.tags.Registries, tr)
	}

	w.sections = protocol.EmptyChunkSections(protocol.SectionsPerChunk, w.plainsID)
	w.heightmaps = protocol.EmptyHeightmaps()
	return w
}

// Registries returns the RegistryData packets in send order.
func (w *World) Registries() []*protocol.RegistryData {
	return w.registries
}

// Tags returns the UpdateTags packet.
func (w *World) Tags() *protocol.UpdateTags {
	return w.tags
}

// PlainsBiome returns the biome id used for every chunk section.
func (w *World) PlainsBiome() int32 {
	return w.plainsID
}

// Chunk returns the empty chunk column at (x, z). The section data is
// shared between chunks and must not be modified.
func (w *World) Chunk(x, z int32) *protocol.LevelChunkWithLight {
	return &protocol.LevelChunkWithLight{
		X:          x,
		Z:          z,
		Heightmaps: w.heightmaps,
		Data:       w.sections,
	}
}

// LoginPlay builds the world entry packet.
func (w *World) LoginPlay(entityID int32, maxPlayers, viewDistance int) *protocol.LoginPlay {
	return &protocol.LoginPlay{
		EntityID:           entityID,
		DimensionNames:     []string{OverworldName, "minecraft:the_end", "minecraft:the_nether"},
		MaxPlayers:         int32(maxPlayers),
		ViewDistance:       int32(viewDistance),
		SimulationDistance: int32(viewDistance),
		DimensionType:      0,
		DimensionName:      OverworldName,
		GameMode:           0,
		PreviousGameMode:   -1,
		SeaLevel:           SeaLevel,
	}
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

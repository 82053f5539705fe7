package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrymc/quarry/nbt"
)

// Golden runtime ids for minecraft:stone with no properties. These
// pin the exact network-NBT byte stream fed into FNV-1a, including
// the ZigZag varint encoding of the version field.
const (
	stoneHash12150 = 0xcd247355 // version 18100737 (1.21.50)
	stoneHash1260  = 0x0ef67795 // version 18168865 (1.26.0)
)

func TestFNV1aKnownVectors(t *testing.T) {
	assert.Equal(t, uint32(0x811c9dc5), fnv1a32(nil))
	assert.Equal(t, uint32(0xe40c292c), fnv1a32([]byte("a")))
	assert.Equal(t, uint32(0xbf9cf968), fnv1a32([]byte("foobar")))
}

func TestBlockHashGolden(t *testing.T) {
	stone := BlockState{Name: "minecraft:stone"}
	assert.Equal(t, uint32(stoneHash12150), stone.RuntimeID(18100737))
	assert.Equal(t, uint32(stoneHash1260), stone.RuntimeID(18168865))
}

func TestBlockHashVersionIsZigZagVarint(t *testing.T) {
	// Bug bait: the version field is a network-NBT TAG_Int, so it is
	// ZigZag varint encoded inside the hashed bytes. An
	// implementation writing it as a raw little-endian 32-bit
	// integer produces this wrong hash and a frozen client.
	const wrongHashRawLE = 0xe7e95625

	stone := BlockState{Name: "minecraft:stone"}
	got := stone.RuntimeID(18100737)
	require.NotEqual(t, uint32(wrongHashRawLE), got,
		"version must not be encoded as raw little-endian")
	assert.Equal(t, uint32(stoneHash12150), got)

	// The hashed bytes must actually contain the ZigZag varint of
	// the version, 0x82 0xc8 0xa1 0x11, not its LE32 bytes.
	data := nbt.Marshal("", stone.StateNBT(18100737), nbt.Network)
	assert.Contains(t, string(data), string([]byte{0x82, 0xc8, 0xa1, 0x11}))
	assert.NotContains(t, string(data), string([]byte{0x01, 0x32, 0x14, 0x01}))
}

func TestBlockHashStableAndDistinct(t *testing.T) {
	a := BlockState{Name: "minecraft:stone"}.RuntimeID(BlockStateVersion)
	b := BlockState{Name: "minecraft:stone"}.RuntimeID(BlockStateVersion)
	assert.Equal(t, a, b)

	names := []string{"minecraft:air", "minecraft:dirt", "minecraft:stone", "minecraft:bedrock"}
	seen := map[uint32]string{}
	for _, name := range names {
		id := BlockState{Name: name}.RuntimeID(BlockStateVersion)
		if prev, ok := seen[id]; ok {
			t.Fatalf("hash collision: %s and %s", prev, name)
		}
		seen[id] = name
	}
}

func TestBlockStatePropertiesSorted(t *testing.T) {
	s := BlockState{
		Name: "minecraft:oak_log",
		Properties: map[string]PropertyValue{
			"pillar_axis": {Type: nbt.TagString, Str: "y"},
			"age":         {Type: nbt.TagInt, Int: 2},
		},
	}
	root := s.StateNBT(BlockStateVersion)
	statesTag, ok := root.Get("states")
	require.True(t, ok)
	states := statesTag.(*nbt.Compound)
	assert.Equal(t, []string{"age", "pillar_axis"}, states.Keys())
	assert.Equal(t, []string{"name", "states", "version"}, root.Keys())
}

func TestRegistryLookup(t *testing.T) {
	reg := DefaultRegistry()
	air, ok := reg.Lookup("minecraft:air")
	require.True(t, ok)
	assert.Equal(t, air, AirRuntimeID())

	state, ok := reg.State(air)
	require.True(t, ok)
	assert.Equal(t, "minecraft:air", state.Name)

	_, ok = reg.Lookup("minecraft:not_a_block")
	assert.False(t, ok)

	assert.Equal(t, BlockStateVersion, reg.Version())
}

func TestPackIndicesAllBitSizes(t *testing.T) {
	for _, bits := range []uint8{1, 2, 3, 4, 5, 6, 8, 16} {
		max := uint16(1)<<bits - 1
		indices := make([]uint16, 4096)
		for i := range indices {
			indices[i] = uint16(i) & max
		}
		words, err := PackIndices(indices, bits)
		require.NoError(t, err, "bits=%d", bits)

		perWord := 32 / int(bits)
		assert.Equal(t, (4096+perWord-1)/perWord, len(words), "bits=%d", bits)

		got, err := UnpackIndices(words, bits, 4096)
		require.NoError(t, err)
		assert.Equal(t, indices, got, "bits=%d", bits)
	}
}

func TestPackIndicesAlternatingAtFourBits(t *testing.T) {
	indices := make([]uint16, 4096)
	for i := range indices {
		if i%2 == 1 {
			indices[i] = 15
		}
	}
	words, err := PackIndices(indices, 4)
	require.NoError(t, err)
	require.Len(t, words, 512)
	assert.Equal(t, uint32(0xf0f0f0f0), words[0])
}

func TestPackIndicesRejectsOverflow(t *testing.T) {
	indices := make([]uint16, 4096)
	indices[17] = 2
	_, err := PackIndices(indices, 1)
	assert.Error(t, err)
}

func TestBitsForPaletteSize(t *testing.T) {
	cases := map[int]uint8{
		1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 8: 3, 9: 4, 16: 4,
		17: 5, 32: 5, 33: 6, 64: 6, 65: 8, 256: 8, 257: 16,
	}
	for size, want := range cases {
		assert.Equal(t, want, bitsFor(size), "palette size %d", size)
	}
}

func TestPalettedStorageSetGet(t *testing.T) {
	p := NewPalettedStorage(100)
	assert.Equal(t, uint32(100), p.At(0, 0, 0))

	p.Set(5, 10, 3, 200)
	assert.Equal(t, uint32(200), p.At(5, 10, 3))
	assert.Equal(t, uint32(100), p.At(0, 0, 0))

	// Re-using a known id must not grow the palette.
	p.Set(1, 1, 1, 200)
	assert.Len(t, p.Palette(), 2)
}

func TestBlockIndexXZYOrder(t *testing.T) {
	// XZY: x*256 + z*16 + y.
	assert.Equal(t, 0, blockIndex(0, 0, 0))
	assert.Equal(t, (1*16+3)*16+2, blockIndex(1, 2, 3))
	assert.Equal(t, 4095, blockIndex(15, 15, 15))
}

package world

import (
	"fmt"

	"github.com/quarrymc/quarry/nbt"
)

const (
	// SubChunkCount is the fixed section count of a column,
	// spanning Y = -64 through Y = 319.
	SubChunkCount = 24

	// MinY is the world's lowest block coordinate.
	MinY = -64

	// subChunkVersion is the section wire format in use.
	subChunkVersion = 9
)

// ChunkPos addresses a chunk column.
type ChunkPos struct {
	X, Z int32
}

// A SubChunk is one 16x16x16 section with up to two block layers;
// the second holds waterlogging.
type SubChunk struct {
	Layers []*PalettedStorage
}

// NewSubChunk returns a single-layer section filled with one block.
func NewSubChunk(fill uint32) *SubChunk {
	return &SubChunk{Layers: []*PalettedStorage{NewPalettedStorage(fill)}}
}

// Layer returns the storage at the index, growing the layer list up
// to the waterlogging layer if needed.
func (s *SubChunk) Layer(i int) *PalettedStorage {
	for len(s.Layers) <= i {
		s.Layers = append(s.Layers, NewPalettedStorage(0))
	}
	return s.Layers[i]
}

// A Column is the full vertical stack of sections plus its biome
// sections.
type Column struct {
	Pos       ChunkPos
	Sub       [SubChunkCount]*SubChunk
	Biomes    [SubChunkCount]*PalettedStorage
}

// NewColumn returns a column of air with a uniform biome.
func NewColumn(pos ChunkPos, air uint32, biome uint32) *Column {
	c := &Column{Pos: pos}
	for i := range c.Sub {
		c.Sub[i] = NewSubChunk(air)
		b := NewPalettedStorage(biome)
		b.indices = make([]uint16, 64)
		c.Biomes[i] = b
	}
	return c
}

// SetBlock stores a runtime id at local x/z and world y on layer 0.
func (c *Column) SetBlock(x int, y int, z int, runtimeID uint32) error {
	sy := y - MinY
	if sy < 0 || sy >= SubChunkCount*16 {
		return fmt.Errorf("y %d outside [-64, 319]", y)
	}
	c.Sub[sy/16].Layer(0).Set(x, sy%16, z, runtimeID)
	return nil
}

// Block returns the runtime id at local x/z and world y on layer 0.
func (c *Column) Block(x, y, z int) (uint32, error) {
	sy := y - MinY
	if sy < 0 || sy >= SubChunkCount*16 {
		return 0, fmt.Errorf("y %d outside [-64, 319]", y)
	}
	return c.Sub[sy/16].Layer(0).At(x, sy%16, z), nil
}

// A ChunkSource supplies columns to the session layer. The core
// never assumes where they come from.
type ChunkSource interface {
	Fetch(pos ChunkPos) (*Column, error)
}

// serializeStorage writes one layer: the header byte, the packed
// index words and — unless writeEntry handles a disk palette — the
// palette itself. The palette size and every network palette entry
// use the signed varint form WITHOUT ZigZag: the two's-complement
// bits reinterpreted as an unsigned LEB128 integer.
func serializeStorage(buf []byte, p *PalettedStorage, entryCount int, runtime bool, writeEntry func([]byte, uint32) []byte) ([]byte, error) {
	bits := bitsFor(len(p.palette))
	header := bits << 1
	if runtime {
		header |= 1
	}
	buf = append(buf, header)

	if bits > 0 {
		words, err := PackIndices(p.indices[:entryCount], bits)
		if err != nil {
			return nil, err
		}
		for _, w := range words {
			buf = append(buf, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
		}
	}

	buf = appendVarintNoZigZag(buf, int32(len(p.palette)))
	for _, id := range p.palette {
		buf = writeEntry(buf, id)
	}
	return buf, nil
}

// appendVarintNoZigZag writes the palette integer form; see
// serializeStorage on why -1 is five bytes here, not one.
func appendVarintNoZigZag(buf []byte, v int32) []byte {
	u := uint32(v)
	for u&^0x7f != 0 {
		buf = append(buf, byte(u&0x7f|0x80))
		u >>= 7
	}
	return append(buf, byte(u))
}

func appendRuntimeEntry(buf []byte, id uint32) []byte {
	return appendVarintNoZigZag(buf, int32(id))
}

// SerializeNetwork produces the column payload the level-chunk
// packet ships: 24 sections, 24 biome sections, one border byte.
// The output is bit-exact; the client refuses the world otherwise.
func (c *Column) SerializeNetwork() ([]byte, error) {
	var buf []byte
	var err error
	for i, sub := range c.Sub {
		if buf, err = serializeSubChunk(buf, sub, int8(i+MinY/16), true, appendRuntimeEntry); err != nil {
			return nil, fmt.Errorf("section %d: %w", i, err)
		}
	}
	for i, biome := range c.Biomes {
		// Biome palettes are plain ids, never runtime-hashed, so
		// the header's runtime bit stays clear.
		if buf, err = serializeStorage(buf, biome, 64, false, appendRuntimeEntry); err != nil {
			return nil, fmt.Errorf("biome section %d: %w", i, err)
		}
	}
	return append(buf, 0x00), nil // border blocks
}

// SerializeDisk produces the persistent form of each section: block
// layers keep the same packed indices but the palette holds full
// little-endian NBT block states.
func (c *Column) SerializeDisk(reg *Registry) ([][]byte, error) {
	out := make([][]byte, 0, SubChunkCount)
	for i, sub := range c.Sub {
		entry := func(buf []byte, id uint32) []byte {
			state, ok := reg.State(id)
			if !ok {
				state = BlockState{Name: "minecraft:unknown"}
			}
			return append(buf, nbt.Marshal("", state.StateNBT(reg.Version()), nbt.LittleEndian)...)
		}
		blob, err := serializeSubChunk(nil, sub, int8(i+MinY/16), false, entry)
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", i, err)
		}
		out = append(out, blob)
	}
	return out, nil
}

func serializeSubChunk(buf []byte, sub *SubChunk, yIndex int8, runtime bool, writeEntry func([]byte, uint32) []byte) ([]byte, error) {
	buf = append(buf, subChunkVersion, byte(len(sub.Layers)), byte(yIndex))
	var err error
	for _, layer := range sub.Layers {
		if buf, err = serializeStorage(buf, layer, 4096, runtime, writeEntry); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// FlatSource generates the reference superflat terrain: bedrock,
// dirt fill, grass surface. It backs tests and the default server
// world.
type FlatSource struct {
	Registry *Registry
	Biome    uint32
}

// Fetch builds one flat column on demand.
func (f *FlatSource) Fetch(pos ChunkPos) (*Column, error) {
	reg := f.Registry
	if reg == nil {
		reg = DefaultRegistry()
	}
	air, _ := reg.Lookup("minecraft:air")
	bedrock, _ := reg.Lookup("minecraft:bedrock")
	dirt, _ := reg.Lookup("minecraft:dirt")
	grass, _ := reg.Lookup("minecraft:grass_block")

	c := NewColumn(pos, air, f.Biome)
	for x := 0; x < 16; x++ {
		for z := 0; z < 16; z++ {
			c.SetBlock(x, MinY, z, bedrock)
			for y := MinY + 1; y < 4; y++ {
				c.SetBlock(x, y, z, dirt)
			}
			c.SetBlock(x, 4, z, grass)
		}
	}
	return c, nil
}

// Package world holds the wire-facing world data structures: the
// block-state registry with its hashed runtime ids, bit-packed
// paletted storage and the chunk-column serializer whose output the
// client checks byte for byte.
package world

import (
	"fmt"
	"sort"
	"sync"

	"github.com/quarrymc/quarry/nbt"
)

// BlockStateVersion packs the targeted game version 1.21.50 as
// (major<<24)|(minor<<16)|(patch<<8)|revision. It is pinned per
// protocol version; supporting another protocol means rebuilding the
// registry with its version integer.
const BlockStateVersion int32 = 0x01143201 // 18100737

const (
	fnvOffset32 = 0x811c9dc5
	fnvPrime32  = 0x01000193
)

func fnv1a32(data []byte) uint32 {
	h := uint32(fnvOffset32)
	for _, b := range data {
		h ^= uint32(b)
		h *= fnvPrime32
	}
	return h
}

// A PropertyValue is one block state property: a bool, int32 or
// string, matching the NBT types block states use.
type PropertyValue struct {
	Type  nbt.TagType // TagByte, TagInt or TagString
	Bool  bool
	Int   int32
	Str   string
}

// A BlockState is a namespaced block name plus its property map.
type BlockState struct {
	Name string
	// Properties has no order of its own; StateNBT writes the keys in
	// ascending order.
	Properties map[string]PropertyValue
}

// StateNBT builds the canonical {name, states, version} compound,
// states keys in ascending byte order.
func (s BlockState) StateNBT(version int32) *nbt.Compound {
	states := nbt.NewCompound()
	keys := make([]string, 0, len(s.Properties))
	for k := range s.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p := s.Properties[k]
		switch p.Type {
		case nbt.TagByte:
			var b nbt.Byte
			if p.Bool {
				b = 1
			}
			states.Set(k, b)
		case nbt.TagInt:
			states.Set(k, nbt.Int(p.Int))
		default:
			states.Set(k, nbt.String(p.Str))
		}
	}
	root := nbt.NewCompound()
	root.Set("name", nbt.String(s.Name))
	root.Set("states", states)
	root.Set("version", nbt.Int(version))
	return root
}

// RuntimeID computes the block state's 32-bit runtime id: the FNV-1a
// hash of the network-NBT encoding of the canonical compound. The
// version field goes through the network variant's ZigZag varint
// Int encoding; writing it as a raw little-endian 32-bit integer
// produces a different, wrong hash that the client will not accept.
func (s BlockState) RuntimeID(version int32) uint32 {
	return fnv1a32(nbt.Marshal("", s.StateNBT(version), nbt.Network))
}

// The Registry maps block states to runtime ids. It is built once at
// startup, immutable afterwards and safe for concurrent reads.
type Registry struct {
	version int32
	byName  map[string]uint32
	byID    map[uint32]BlockState
}

// NewRegistry hashes the given states under one version integer.
func NewRegistry(version int32, states []BlockState) (*Registry, error) {
	r := &Registry{
		version: version,
		byName:  make(map[string]uint32, len(states)),
		byID:    make(map[uint32]BlockState, len(states)),
	}
	for _, s := range states {
		id := s.RuntimeID(version)
		if prev, clash := r.byID[id]; clash && prev.Name != s.Name {
			return nil, fmt.Errorf("runtime id collision: %q and %q both hash to %#x", prev.Name, s.Name, id)
		}
		r.byID[id] = s
		if len(s.Properties) == 0 {
			r.byName[s.Name] = id
		}
	}
	return r, nil
}

// Lookup returns the runtime id of a property-free block by name.
func (r *Registry) Lookup(name string) (uint32, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// State returns the block state behind a runtime id.
func (r *Registry) State(id uint32) (BlockState, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// Version returns the version integer the registry hashed under.
func (r *Registry) Version() int32 { return r.version }

// vanillaBlocks is the block set this core ships and DefaultRegistry
// hashes; a built Registry has no way to add further states.
var vanillaBlocks = []string{
	"minecraft:air",
	"minecraft:bedrock",
	"minecraft:dirt",
	"minecraft:grass_block",
	"minecraft:stone",
	"minecraft:sand",
	"minecraft:gravel",
	"minecraft:water",
	"minecraft:oak_log",
	"minecraft:oak_leaves",
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry for the pinned
// version, building it on first use.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		states := make([]BlockState, len(vanillaBlocks))
		for i, name := range vanillaBlocks {
			states[i] = BlockState{Name: name}
		}
		var err error
		if defaultRegistry, err = NewRegistry(BlockStateVersion, states); err != nil {
			panic(err)
		}
	})
	return defaultRegistry
}

// AirRuntimeID is the runtime id of plain air under the pinned
// version.
func AirRuntimeID() uint32 {
	id, _ := DefaultRegistry().Lookup("minecraft:air")
	return id
}

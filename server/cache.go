package server

import (
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/quarrymc/quarry/world"
)

// chunkCache keeps serialized column payloads lz4-compressed in
// memory so repeated chunk sync of the same area doesn't re-run the
// serializer. Peers receive decompressed snapshots, never shared
// slices.
type chunkCache struct {
	mu      sync.Mutex
	entries map[world.ChunkPos]cachedChunk
}

type cachedChunk struct {
	compressed []byte
	rawSize    int
	subChunks  uint32
	// stored uncompressed because lz4 couldn't shrink it
	raw bool
}

func newChunkCache() *chunkCache {
	return &chunkCache{entries: make(map[world.ChunkPos]cachedChunk)}
}

func (c *chunkCache) get(pos world.ChunkPos) (payload []byte, subChunks uint32, ok bool) {
	c.mu.Lock()
	entry, ok := c.entries[pos]
	c.mu.Unlock()
	if !ok {
		return nil, 0, false
	}
	payload = make([]byte, entry.rawSize)
	if entry.raw {
		copy(payload, entry.compressed)
		return payload, entry.subChunks, true
	}
	if _, err := lz4.UncompressBlock(entry.compressed, payload); err != nil {
		return nil, 0, false
	}
	return payload, entry.subChunks, true
}

func (c *chunkCache) put(pos world.ChunkPos, payload []byte, subChunks uint32) error {
	buf := make([]byte, lz4.CompressBlockBound(len(payload)))
	n, err := lz4.CompressBlock(payload, buf, nil)
	if err != nil {
		return fmt.Errorf("lz4: %w", err)
	}
	entry := cachedChunk{rawSize: len(payload), subChunks: subChunks}
	if n == 0 {
		// Incompressible; keep a plain copy.
		entry.compressed = append([]byte(nil), payload...)
		entry.raw = true
	} else {
		entry.compressed = buf[:n]
	}
	c.mu.Lock()
	c.entries[pos] = entry
	c.mu.Unlock()
	return nil
}

func (c *chunkCache) invalidate(pos world.ChunkPos) {
	c.mu.Lock()
	delete(c.entries, pos)
	c.mu.Unlock()
}

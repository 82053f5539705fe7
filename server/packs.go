package server

import (
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"

	"github.com/quarrymc/quarry/proto"
)

// packChunkSize slices pack downloads; the client rejects chunks of
// a mebibyte or more.
const packChunkSize = 512 << 10

// A ResourcePack is one downloadable pack the server offers.
type ResourcePack struct {
	UUID    uuid.UUID
	Version string
	Content []byte
}

func (p ResourcePack) id() string {
	return fmt.Sprintf("%s_%s", p.UUID, p.Version)
}

func (p ResourcePack) chunkCount() uint32 {
	return uint32((len(p.Content) + packChunkSize - 1) / packChunkSize)
}

// packsInfo builds the pack announcement for a joining client.
func (srv *Server) packsInfo() *proto.ResourcePacksInfo {
	info := &proto.ResourcePacksInfo{
		TexturePackRequired: srv.cfg.TexturePackRequired,
	}
	for _, p := range srv.cfg.Packs {
		info.Packs = append(info.Packs, proto.ResourcePackEntry{
			UUID:      proto.UUID(p.UUID),
			Version:   p.Version,
			Size:      uint64(len(p.Content)),
			ContentID: p.UUID.String(),
		})
	}
	return info
}

// packStack fixes the application order after downloads finish.
func (srv *Server) packStack() *proto.ResourcePackStack {
	stack := &proto.ResourcePackStack{
		TexturePackRequired: srv.cfg.TexturePackRequired,
		BaseGameVersion:     proto.CurrentVersion,
	}
	for _, p := range srv.cfg.Packs {
		stack.TexturePacks = append(stack.TexturePacks, proto.StackEntry{
			UUID:    p.UUID.String(),
			Version: p.Version,
		})
	}
	return stack
}

// packData answers a send-packs request for one pack id, which the
// client sends as "uuid_version".
func (srv *Server) packData(id string) (*proto.ResourcePackDataInfo, bool) {
	p, ok := srv.findPack(id)
	if !ok {
		return nil, false
	}
	sum := sha256.Sum256(p.Content)
	return &proto.ResourcePackDataInfo{
		PackID:       p.id(),
		MaxChunkSize: packChunkSize,
		ChunkCount:   p.chunkCount(),
		Size:         uint64(len(p.Content)),
		Hash:         sum[:],
		PackType:     1,
	}, true
}

// packChunk serves one indexed slice of a pack's content.
func (srv *Server) packChunk(id string, index uint32) (*proto.ResourcePackChunkData, bool) {
	p, ok := srv.findPack(id)
	if !ok || index >= p.chunkCount() {
		return nil, false
	}
	start := int(index) * packChunkSize
	end := start + packChunkSize
	if end > len(p.Content) {
		end = len(p.Content)
	}
	return &proto.ResourcePackChunkData{
		PackID:     p.id(),
		ChunkIndex: index,
		DataOffset: uint64(start),
		Data:       p.Content[start:end],
	}, true
}

func (srv *Server) findPack(id string) (ResourcePack, bool) {
	for _, p := range srv.cfg.Packs {
		if p.id() == id || p.UUID.String() == id {
			return p, true
		}
	}
	return ResourcePack{}, false
}

package proto

import "fmt"

// ResourcePackEntry describes one downloadable pack.
type ResourcePackEntry struct {
	UUID          UUID
	Version       string
	Size          uint64
	EncryptionKey string
	SubPackName   string
	ContentID     string
	HasScripts    bool
	AddonPack     bool
	RTXEnabled    bool
	CDNURL        string
}

// ResourcePacksInfo announces the packs a joining client may need.
type ResourcePacksInfo struct {
	TexturePackRequired  bool
	HasAddons            bool
	HasScripts           bool
	DisableVibrantVisual bool
	WorldTemplateID      UUID
	WorldTemplateVersion string
	Packs                []ResourcePackEntry
}

func (*ResourcePacksInfo) ID() uint32 { return IDResourcePacksInfo }

func (pk *ResourcePacksInfo) Marshal(w *Writer) {
	w.Bool(pk.TexturePackRequired)
	w.Bool(pk.HasAddons)
	w.Bool(pk.HasScripts)
	w.Bool(pk.DisableVibrantVisual)
	w.UUID(pk.WorldTemplateID)
	w.String(pk.WorldTemplateVersion)
	// Pack count is a fixed 16-bit field, unlike most list lengths.
	w.U16LE(uint16(len(pk.Packs)))
	for _, p := range pk.Packs {
		w.UUID(p.UUID)
		w.String(p.Version)
		w.U64LE(p.Size)
		w.String(p.EncryptionKey)
		w.String(p.SubPackName)
		w.String(p.ContentID)
		w.Bool(p.HasScripts)
		w.Bool(p.AddonPack)
		w.Bool(p.RTXEnabled)
		w.String(p.CDNURL)
	}
}

func (pk *ResourcePacksInfo) Unmarshal(r *Reader) error {
	var err error
	if pk.TexturePackRequired, err = r.Bool(); err != nil {
		return err
	}
	if pk.HasAddons, err = r.Bool(); err != nil {
		return err
	}
	if pk.HasScripts, err = r.Bool(); err != nil {
		return err
	}
	if pk.DisableVibrantVisual, err = r.Bool(); err != nil {
		return err
	}
	if pk.WorldTemplateID, err = r.UUID(); err != nil {
		return err
	}
	if pk.WorldTemplateVersion, err = r.String(); err != nil {
		return err
	}
	n, err := r.U16LE()
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	pk.Packs = make([]ResourcePackEntry, n)
	for i := range pk.Packs {
		p := &pk.Packs[i]
		if p.UUID, err = r.UUID(); err != nil {
			return err
		}
		if p.Version, err = r.String(); err != nil {
			return err
		}
		if p.Size, err = r.U64LE(); err != nil {
			return err
		}
		if p.EncryptionKey, err = r.String(); err != nil {
			return err
		}
		if p.SubPackName, err = r.String(); err != nil {
			return err
		}
		if p.ContentID, err = r.String(); err != nil {
			return err
		}
		if p.HasScripts, err = r.Bool(); err != nil {
			return err
		}
		if p.AddonPack, err = r.Bool(); err != nil {
			return err
		}
		if p.RTXEnabled, err = r.Bool(); err != nil {
			return err
		}
		if p.CDNURL, err = r.String(); err != nil {
			return err
		}
	}
	return nil
}

// StackEntry is one pack in the applied stack order.
type StackEntry struct {
	UUID        string
	Version     string
	SubPackName string
}

// ExperimentEntry toggles an experimental feature.
type ExperimentEntry struct {
	Name    string
	Enabled bool
}

// ResourcePackStack fixes the order packs apply in.
type ResourcePackStack struct {
	TexturePackRequired bool
	BehaviourPacks      []StackEntry
	TexturePacks        []StackEntry
	BaseGameVersion     string
	Experiments         []ExperimentEntry
	ExperimentsUsed     bool
	UseVanillaEditor    bool
}

func (*ResourcePackStack) ID() uint32 { return IDResourcePackStack }

func marshalStackEntries(w *Writer, entries []StackEntry) {
	w.Uvarint32(uint32(len(entries)))
	for _, e := range entries {
		w.String(e.UUID)
		w.String(e.Version)
		w.String(e.SubPackName)
	}
}

func unmarshalStackEntries(r *Reader) ([]StackEntry, error) {
	n, err := r.Uvarint32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	entries := make([]StackEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		var e StackEntry
		if e.UUID, err = r.String(); err != nil {
			return nil, err
		}
		if e.Version, err = r.String(); err != nil {
			return nil, err
		}
		if e.SubPackName, err = r.String(); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (pk *ResourcePackStack) Marshal(w *Writer) {
	w.Bool(pk.TexturePackRequired)
	marshalStackEntries(w, pk.BehaviourPacks)
	marshalStackEntries(w, pk.TexturePacks)
	w.String(pk.BaseGameVersion)
	w.Uvarint32(uint32(len(pk.Experiments)))
	for _, e := range pk.Experiments {
		w.String(e.Name)
		w.Bool(e.Enabled)
	}
	w.Bool(pk.ExperimentsUsed)
	w.Bool(pk.UseVanillaEditor)
}

func (pk *ResourcePackStack) Unmarshal(r *Reader) error {
	var err error
	if pk.TexturePackRequired, err = r.Bool(); err != nil {
		return err
	}
	if pk.BehaviourPacks, err = unmarshalStackEntries(r); err != nil {
		return err
	}
	if pk.TexturePacks, err = unmarshalStackEntries(r); err != nil {
		return err
	}
	if pk.BaseGameVersion, err = r.String(); err != nil {
		return err
	}
	n, err := r.Uvarint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var e ExperimentEntry
		if e.Name, err = r.String(); err != nil {
			return err
		}
		if e.Enabled, err = r.Bool(); err != nil {
			return err
		}
		pk.Experiments = append(pk.Experiments, e)
	}
	if pk.ExperimentsUsed, err = r.Bool(); err != nil {
		return err
	}
	pk.UseVanillaEditor, err = r.Bool()
	return err
}

// Client responses to the pack negotiation.
const (
	PackResponseNone uint8 = iota
	PackResponseRefused
	PackResponseSendPacks
	PackResponseAllPacksDownloaded
	PackResponseCompleted
)

// ResourcePackClientResponse drives the pack negotiation loop.
type ResourcePackClientResponse struct {
	Response uint8
	PacksToDownload []string
}

func (*ResourcePackClientResponse) ID() uint32 { return IDResourcePackClientResponse }

func (pk *ResourcePackClientResponse) Marshal(w *Writer) {
	w.U8(pk.Response)
	w.U16LE(uint16(len(pk.PacksToDownload)))
	for _, id := range pk.PacksToDownload {
		w.String(id)
	}
}

func (pk *ResourcePackClientResponse) Unmarshal(r *Reader) error {
	var err error
	if pk.Response, err = r.U8(); err != nil {
		return err
	}
	if pk.Response > PackResponseCompleted {
		return fmt.Errorf("pack response status %d out of range", pk.Response)
	}
	n, err := r.U16LE()
	if err != nil {
		return err
	}
	for i := uint16(0); i < n; i++ {
		s, err := r.String()
		if err != nil {
			return err
		}
		pk.PacksToDownload = append(pk.PacksToDownload, s)
	}
	return nil
}

// ResourcePackDataInfo describes a pack the client is about to pull
// in chunks.
type ResourcePackDataInfo struct {
	PackID        string
	MaxChunkSize  uint32
	ChunkCount    uint32
	Size          uint64
	Hash          []byte
	Premium       bool
	PackType      uint8
}

func (*ResourcePackDataInfo) ID() uint32 { return IDResourcePackDataInfo }

func (pk *ResourcePackDataInfo) Marshal(w *Writer) {
	w.String(pk.PackID)
	w.U32LE(pk.MaxChunkSize)
	w.U32LE(pk.ChunkCount)
	w.U64LE(pk.Size)
	w.ByteSlice(pk.Hash)
	w.Bool(pk.Premium)
	w.U8(pk.PackType)
}

func (pk *ResourcePackDataInfo) Unmarshal(r *Reader) error {
	var err error
	if pk.PackID, err = r.String(); err != nil {
		return err
	}
	if pk.MaxChunkSize, err = r.U32LE(); err != nil {
		return err
	}
	if pk.ChunkCount, err = r.U32LE(); err != nil {
		return err
	}
	if pk.Size, err = r.U64LE(); err != nil {
		return err
	}
	if pk.Hash, err = r.ByteSlice(); err != nil {
		return err
	}
	if pk.Premium, err = r.Bool(); err != nil {
		return err
	}
	pk.PackType, err = r.U8()
	return err
}

// ResourcePackChunkRequest asks for one indexed slice of a pack.
type ResourcePackChunkRequest struct {
	PackID     string
	ChunkIndex uint32
}

func (*ResourcePackChunkRequest) ID() uint32 { return IDResourcePackChunkRequest }

func (pk *ResourcePackChunkRequest) Marshal(w *Writer) {
	w.String(pk.PackID)
	w.U32LE(pk.ChunkIndex)
}

func (pk *ResourcePackChunkRequest) Unmarshal(r *Reader) error {
	var err error
	if pk.PackID, err = r.String(); err != nil {
		return err
	}
	pk.ChunkIndex, err = r.U32LE()
	return err
}

// ResourcePackChunkData carries one slice of pack data, under 1 MiB.
type ResourcePackChunkData struct {
	PackID     string
	ChunkIndex uint32
	DataOffset uint64
	Data       []byte
}

func (*ResourcePackChunkData) ID() uint32 { return IDResourcePackChunkData }

func (pk *ResourcePackChunkData) Marshal(w *Writer) {
	w.String(pk.PackID)
	w.U32LE(pk.ChunkIndex)
	w.U64LE(pk.DataOffset)
	w.ByteSlice(pk.Data)
}

func (pk *ResourcePackChunkData) Unmarshal(r *Reader) error {
	var err error
	if pk.PackID, err = r.String(); err != nil {
		return err
	}
	if pk.ChunkIndex, err = r.U32LE(); err != nil {
		return err
	}
	if pk.DataOffset, err = r.U64LE(); err != nil {
		return err
	}
	pk.Data, err = r.ByteSlice()
	return err
}

package proto

// Text message types.
const (
	TextRaw uint8 = iota
	TextChat
	TextTranslation
	TextPopup
	TextJukeboxPopup
	TextTip
	TextSystem
	TextWhisper
	TextAnnouncement
	TextObjectWhisper
	TextObject
	TextObjectAnnouncement
)

// Text carries chat and system messages.
type Text struct {
	TextType         uint8
	NeedsTranslation bool
	SourceName       string
	Message          string
	Parameters       []string
	XUID             string
	PlatformChatID   string
	FilteredMessage  string
}

func (*Text) ID() uint32 { return IDText }

func (pk *Text) Marshal(w *Writer) {
	w.U8(pk.TextType)
	w.Bool(pk.NeedsTranslation)
	switch pk.TextType {
	case TextChat, TextWhisper, TextAnnouncement:
		w.String(pk.SourceName)
		w.String(pk.Message)
	case TextTranslation, TextPopup, TextJukeboxPopup:
		w.String(pk.Message)
		w.Uvarint32(uint32(len(pk.Parameters)))
		for _, p := range pk.Parameters {
			w.String(p)
		}
	default:
		w.String(pk.Message)
	}
	w.String(pk.XUID)
	w.String(pk.PlatformChatID)
	w.String(pk.FilteredMessage)
}

func (pk *Text) Unmarshal(r *Reader) error {
	var err error
	if pk.TextType, err = r.U8(); err != nil {
		return err
	}
	if pk.NeedsTranslation, err = r.Bool(); err != nil {
		return err
	}
	switch pk.TextType {
	case TextChat, TextWhisper, TextAnnouncement:
		if pk.SourceName, err = r.String(); err != nil {
			return err
		}
		if pk.Message, err = r.String(); err != nil {
			return err
		}
	case TextTranslation, TextPopup, TextJukeboxPopup:
		if pk.Message, err = r.String(); err != nil {
			return err
		}
		n, err := r.Uvarint32()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			p, err := r.String()
			if err != nil {
				return err
			}
			pk.Parameters = append(pk.Parameters, p)
		}
	default:
		if pk.Message, err = r.String(); err != nil {
			return err
		}
	}
	if pk.XUID, err = r.String(); err != nil {
		return err
	}
	if pk.PlatformChatID, err = r.String(); err != nil {
		return err
	}
	pk.FilteredMessage, err = r.String()
	return err
}

// SetTime synchronizes the world clock.
type SetTime struct {
	Time int32
}

func (*SetTime) ID() uint32 { return IDSetTime }

func (pk *SetTime) Marshal(w *Writer) { w.Varint32(pk.Time) }

func (pk *SetTime) Unmarshal(r *Reader) error {
	var err error
	pk.Time, err = r.Varint32()
	return err
}

// MovePlayer move modes.
const (
	MoveModeNormal uint8 = iota
	MoveModeReset
	MoveModeTeleport
	MoveModeRotation
)

// MovePlayer is an absolute player position update.
type MovePlayer struct {
	EntityRuntimeID     uint64
	Position            Vec3
	Pitch, Yaw, HeadYaw float32
	Mode                uint8
	OnGround            bool
	RiddenRuntimeID     uint64
	TeleportCause       int32
	TeleportSourceType  int32
	Tick                uint64
}

func (*MovePlayer) ID() uint32 { return IDMovePlayer }

func (pk *MovePlayer) Marshal(w *Writer) {
	w.Uvarint64(pk.EntityRuntimeID)
	w.Vec3(pk.Position)
	w.F32LE(pk.Pitch)
	w.F32LE(pk.Yaw)
	w.F32LE(pk.HeadYaw)
	w.U8(pk.Mode)
	w.Bool(pk.OnGround)
	w.Uvarint64(pk.RiddenRuntimeID)
	if pk.Mode == MoveModeTeleport {
		w.I32LE(pk.TeleportCause)
		w.I32LE(pk.TeleportSourceType)
	}
	w.Uvarint64(pk.Tick)
}

func (pk *MovePlayer) Unmarshal(r *Reader) error {
	var err error
	if pk.EntityRuntimeID, err = r.Uvarint64(); err != nil {
		return err
	}
	if pk.Position, err = r.Vec3(); err != nil {
		return err
	}
	if pk.Pitch, err = r.F32LE(); err != nil {
		return err
	}
	if pk.Yaw, err = r.F32LE(); err != nil {
		return err
	}
	if pk.HeadYaw, err = r.F32LE(); err != nil {
		return err
	}
	if pk.Mode, err = r.U8(); err != nil {
		return err
	}
	if pk.OnGround, err = r.Bool(); err != nil {
		return err
	}
	if pk.RiddenRuntimeID, err = r.Uvarint64(); err != nil {
		return err
	}
	if pk.Mode == MoveModeTeleport {
		if pk.TeleportCause, err = r.I32LE(); err != nil {
			return err
		}
		if pk.TeleportSourceType, err = r.I32LE(); err != nil {
			return err
		}
	}
	pk.Tick, err = r.Uvarint64()
	return err
}

// UpdateBlock replaces one block on one storage layer.
type UpdateBlock struct {
	Position      BlockPos
	BlockRuntimeID uint32
	Flags         uint32
	Layer         uint32
}

func (*UpdateBlock) ID() uint32 { return IDUpdateBlock }

func (pk *UpdateBlock) Marshal(w *Writer) {
	w.BlockPos(pk.Position)
	w.Uvarint32(pk.BlockRuntimeID)
	w.Uvarint32(pk.Flags)
	w.Uvarint32(pk.Layer)
}

func (pk *UpdateBlock) Unmarshal(r *Reader) error {
	var err error
	if pk.Position, err = r.BlockPos(); err != nil {
		return err
	}
	if pk.BlockRuntimeID, err = r.Uvarint32(); err != nil {
		return err
	}
	if pk.Flags, err = r.Uvarint32(); err != nil {
		return err
	}
	pk.Layer, err = r.Uvarint32()
	return err
}

// SetEntityMotion pushes a velocity to one entity. Droppable under
// back-pressure.
type SetEntityMotion struct {
	EntityRuntimeID uint64
	Motion          Vec3
	Tick            uint64
}

func (*SetEntityMotion) ID() uint32 { return IDSetEntityMotion }

func (pk *SetEntityMotion) Marshal(w *Writer) {
	w.Uvarint64(pk.EntityRuntimeID)
	w.Vec3(pk.Motion)
	w.Uvarint64(pk.Tick)
}

func (pk *SetEntityMotion) Unmarshal(r *Reader) error {
	var err error
	if pk.EntityRuntimeID, err = r.Uvarint64(); err != nil {
		return err
	}
	if pk.Motion, err = r.Vec3(); err != nil {
		return err
	}
	pk.Tick, err = r.Uvarint64()
	return err
}

// LevelChunk ships one serialized chunk column.
type LevelChunk struct {
	ChunkX        int32
	ChunkZ        int32
	Dimension     int32
	SubChunkCount uint32
	CacheEnabled  bool
	// RawPayload is the serialized column: sections, biomes, border
	// byte. Produced by the world package.
	RawPayload []byte
}

func (*LevelChunk) ID() uint32 { return IDLevelChunk }

func (pk *LevelChunk) Marshal(w *Writer) {
	w.Varint32(pk.ChunkX)
	w.Varint32(pk.ChunkZ)
	w.Varint32(pk.Dimension)
	w.Uvarint32(pk.SubChunkCount)
	w.Bool(pk.CacheEnabled)
	w.ByteSlice(pk.RawPayload)
}

func (pk *LevelChunk) Unmarshal(r *Reader) error {
	var err error
	if pk.ChunkX, err = r.Varint32(); err != nil {
		return err
	}
	if pk.ChunkZ, err = r.Varint32(); err != nil {
		return err
	}
	if pk.Dimension, err = r.Varint32(); err != nil {
		return err
	}
	if pk.SubChunkCount, err = r.Uvarint32(); err != nil {
		return err
	}
	if pk.CacheEnabled, err = r.Bool(); err != nil {
		return err
	}
	pk.RawPayload, err = r.ByteSlice()
	return err
}

// PlayerAction reports block breaking, jumping, respawning and such.
type PlayerAction struct {
	EntityRuntimeID uint64
	Action          int32
	Position        BlockPos
	ResultPosition  BlockPos
	Face            int32
}

func (*PlayerAction) ID() uint32 { return IDPlayerAction }

func (pk *PlayerAction) Marshal(w *Writer) {
	w.Uvarint64(pk.EntityRuntimeID)
	w.Varint32(pk.Action)
	w.BlockPos(pk.Position)
	w.BlockPos(pk.ResultPosition)
	w.Varint32(pk.Face)
}

func (pk *PlayerAction) Unmarshal(r *Reader) error {
	var err error
	if pk.EntityRuntimeID, err = r.Uvarint64(); err != nil {
		return err
	}
	if pk.Action, err = r.Varint32(); err != nil {
		return err
	}
	if pk.Position, err = r.BlockPos(); err != nil {
		return err
	}
	if pk.ResultPosition, err = r.BlockPos(); err != nil {
		return err
	}
	pk.Face, err = r.Varint32()
	return err
}

// RequestChunkRadius is the client's view-distance wish.
type RequestChunkRadius struct {
	ChunkRadius    int32
	MaxChunkRadius uint8
}

func (*RequestChunkRadius) ID() uint32 { return IDRequestChunkRadius }

func (pk *RequestChunkRadius) Marshal(w *Writer) {
	w.Varint32(pk.ChunkRadius)
	w.U8(pk.MaxChunkRadius)
}

func (pk *RequestChunkRadius) Unmarshal(r *Reader) error {
	var err error
	if pk.ChunkRadius, err = r.Varint32(); err != nil {
		return err
	}
	pk.MaxChunkRadius, err = r.U8()
	return err
}

// ChunkRadiusUpdated is the server's accepted view distance.
type ChunkRadiusUpdated struct {
	ChunkRadius int32
}

func (*ChunkRadiusUpdated) ID() uint32 { return IDChunkRadiusUpdated }

func (pk *ChunkRadiusUpdated) Marshal(w *Writer) { w.Varint32(pk.ChunkRadius) }

func (pk *ChunkRadiusUpdated) Unmarshal(r *Reader) error {
	var err error
	pk.ChunkRadius, err = r.Varint32()
	return err
}

// NetworkChunkPublisherUpdate tells the client which chunks around
// which center are authoritative.
type NetworkChunkPublisherUpdate struct {
	Position BlockPos
	Radius   uint32
	// SavedChunks is a list of chunk coordinates with cached blobs.
	SavedChunks []ChunkCoord
}

// ChunkCoord addresses a chunk column.
type ChunkCoord struct {
	X, Z int32
}

func (*NetworkChunkPublisherUpdate) ID() uint32 { return IDNetworkChunkPublisherUpdate }

func (pk *NetworkChunkPublisherUpdate) Marshal(w *Writer) {
	// Position here is signed on all three axes.
	w.Varint32(pk.Position.X)
	w.Varint32(pk.Position.Y)
	w.Varint32(pk.Position.Z)
	w.Uvarint32(pk.Radius)
	w.U32LE(uint32(len(pk.SavedChunks)))
	for _, c := range pk.SavedChunks {
		w.Varint32(c.X)
		w.Varint32(c.Z)
	}
}

func (pk *NetworkChunkPublisherUpdate) Unmarshal(r *Reader) error {
	var err error
	if pk.Position.X, err = r.Varint32(); err != nil {
		return err
	}
	if pk.Position.Y, err = r.Varint32(); err != nil {
		return err
	}
	if pk.Position.Z, err = r.Varint32(); err != nil {
		return err
	}
	if pk.Radius, err = r.Uvarint32(); err != nil {
		return err
	}
	n, err := r.U32LE()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var c ChunkCoord
		if c.X, err = r.Varint32(); err != nil {
			return err
		}
		if c.Z, err = r.Varint32(); err != nil {
			return err
		}
		pk.SavedChunks = append(pk.SavedChunks, c)
	}
	return nil
}

// SetLocalPlayerAsInitialized is the client's readiness signal after
// chunk sync.
type SetLocalPlayerAsInitialized struct {
	EntityRuntimeID uint64
}

func (*SetLocalPlayerAsInitialized) ID() uint32 { return IDSetLocalPlayerAsInitialized }

func (pk *SetLocalPlayerAsInitialized) Marshal(w *Writer) { w.Uvarint64(pk.EntityRuntimeID) }

func (pk *SetLocalPlayerAsInitialized) Unmarshal(r *Reader) error {
	var err error
	pk.EntityRuntimeID, err = r.Uvarint64()
	return err
}

// AvailableEntityIdentifiers ships the entity identifier table as a
// raw network-NBT compound.
type AvailableEntityIdentifiers struct {
	SerialisedEntityData []byte
}

func (*AvailableEntityIdentifiers) ID() uint32 { return IDAvailableEntityIdentifiers }

func (pk *AvailableEntityIdentifiers) Marshal(w *Writer) { w.Raw(pk.SerialisedEntityData) }

func (pk *AvailableEntityIdentifiers) Unmarshal(r *Reader) error {
	pk.SerialisedEntityData = r.Rest()
	return nil
}

// BiomeDefinitionList ships biome definitions as raw network NBT.
type BiomeDefinitionList struct {
	SerialisedBiomeDefinitions []byte
}

func (*BiomeDefinitionList) ID() uint32 { return IDBiomeDefinitionList }

func (pk *BiomeDefinitionList) Marshal(w *Writer) { w.Raw(pk.SerialisedBiomeDefinitions) }

func (pk *BiomeDefinitionList) Unmarshal(r *Reader) error {
	pk.SerialisedBiomeDefinitions = r.Rest()
	return nil
}

// CraftingData ships the recipe tables. The vanilla tail fields are
// kept raw; an empty packet is four zero counts followed by the
// ClearRecipes flag.
type CraftingData struct {
	Recipes                   []byte
	ClearRecipes              bool
}

func (*CraftingData) ID() uint32 { return IDCraftingData }

func (pk *CraftingData) Marshal(w *Writer) {
	if len(pk.Recipes) == 0 {
		// recipe, potion, container and material-reducer counts
		w.Uvarint32(0)
		w.Uvarint32(0)
		w.Uvarint32(0)
		w.Uvarint32(0)
		w.Bool(pk.ClearRecipes)
		return
	}
	w.Raw(pk.Recipes)
}

func (pk *CraftingData) Unmarshal(r *Reader) error {
	pk.Recipes = r.Rest()
	return nil
}

// CreativeContent ships the creative inventory. An empty groups and
// items table is valid and is what this server sends.
type CreativeContent struct {
	Groups []byte
	Items  []byte
}

func (*CreativeContent) ID() uint32 { return IDCreativeContent }

func (pk *CreativeContent) Marshal(w *Writer) {
	if len(pk.Groups) == 0 && len(pk.Items) == 0 {
		w.Uvarint32(0)
		w.Uvarint32(0)
		return
	}
	w.Raw(pk.Groups)
	w.Raw(pk.Items)
}

func (pk *CreativeContent) Unmarshal(r *Reader) error {
	pk.Groups = r.Rest()
	return nil
}

// AvailableCommands advertises the command tree. This server sends
// an empty table; the full structure stays raw for forwarding.
type AvailableCommands struct {
	Raw []byte
}

func (*AvailableCommands) ID() uint32 { return IDAvailableCommands }

func (pk *AvailableCommands) Marshal(w *Writer) {
	if len(pk.Raw) == 0 {
		// enum values, chained subcommand values, suffixes, enums,
		// subcommands, commands, dynamic enums
		for i := 0; i < 7; i++ {
			w.Uvarint32(0)
		}
		return
	}
	w.Raw(pk.Raw)
}

func (pk *AvailableCommands) Unmarshal(r *Reader) error {
	pk.Raw = r.Rest()
	return nil
}

// PlayerAuthInput is the client's per-tick movement report under
// server-authoritative movement. Unhandled trailing fields are kept
// raw so the packet round-trips.
type PlayerAuthInput struct {
	Pitch, Yaw    float32
	Position      Vec3
	MoveVector    Vec2
	HeadYaw       float32
	InputData     uint64
	InputMode     uint32
	PlayMode      uint32
	InteractionModel uint32
	InteractPitch float32
	InteractYaw   float32
	Tick          uint64
	Delta         Vec3
	// Extra carries conditional trailing fields verbatim.
	Extra []byte
}

func (*PlayerAuthInput) ID() uint32 { return IDPlayerAuthInput }

func (pk *PlayerAuthInput) Marshal(w *Writer) {
	w.F32LE(pk.Pitch)
	w.F32LE(pk.Yaw)
	w.Vec3(pk.Position)
	w.Vec2(pk.MoveVector)
	w.F32LE(pk.HeadYaw)
	w.Uvarint64(pk.InputData)
	w.Uvarint32(pk.InputMode)
	w.Uvarint32(pk.PlayMode)
	w.Uvarint32(pk.InteractionModel)
	w.F32LE(pk.InteractPitch)
	w.F32LE(pk.InteractYaw)
	w.Uvarint64(pk.Tick)
	w.Vec3(pk.Delta)
	w.Raw(pk.Extra)
}

func (pk *PlayerAuthInput) Unmarshal(r *Reader) error {
	var err error
	if pk.Pitch, err = r.F32LE(); err != nil {
		return err
	}
	if pk.Yaw, err = r.F32LE(); err != nil {
		return err
	}
	if pk.Position, err = r.Vec3(); err != nil {
		return err
	}
	if pk.MoveVector, err = r.Vec2(); err != nil {
		return err
	}
	if pk.HeadYaw, err = r.F32LE(); err != nil {
		return err
	}
	if pk.InputData, err = r.Uvarint64(); err != nil {
		return err
	}
	if pk.InputMode, err = r.Uvarint32(); err != nil {
		return err
	}
	if pk.PlayMode, err = r.Uvarint32(); err != nil {
		return err
	}
	if pk.InteractionModel, err = r.Uvarint32(); err != nil {
		return err
	}
	if pk.InteractPitch, err = r.F32LE(); err != nil {
		return err
	}
	if pk.InteractYaw, err = r.F32LE(); err != nil {
		return err
	}
	if pk.Tick, err = r.Uvarint64(); err != nil {
		return err
	}
	if pk.Delta, err = r.Vec3(); err != nil {
		return err
	}
	pk.Extra = r.Rest()
	return nil
}

package proto

// GameRule value type tags.
const (
	GameRuleBool uint32 = iota + 1
	GameRuleInt
	GameRuleFloat
)

// GameRule is one named world rule with a typed value.
type GameRule struct {
	Name     string
	Editable bool
	Type     uint32
	Bool     bool
	Int      int32
	Float    float32
}

func (g *GameRule) marshal(w *Writer) {
	w.String(g.Name)
	w.Bool(g.Editable)
	w.Uvarint32(g.Type)
	switch g.Type {
	case GameRuleBool:
		w.Bool(g.Bool)
	case GameRuleInt:
		w.Varint32(g.Int)
	case GameRuleFloat:
		w.F32LE(g.Float)
	}
}

func (g *GameRule) unmarshal(r *Reader) error {
	var err error
	if g.Name, err = r.String(); err != nil {
		return err
	}
	if g.Editable, err = r.Bool(); err != nil {
		return err
	}
	if g.Type, err = r.Uvarint32(); err != nil {
		return err
	}
	switch g.Type {
	case GameRuleBool:
		g.Bool, err = r.Bool()
	case GameRuleInt:
		g.Int, err = r.Varint32()
	case GameRuleFloat:
		g.Float, err = r.F32LE()
	}
	return err
}

// ItemEntry maps a string item id to its numeric network id.
type ItemEntry struct {
	Name           string
	RuntimeID      int16
	ComponentBased bool
}

// StartGame is the monolithic world-configuration packet that moves
// the session into chunk sync. Field order is load-bearing.
type StartGame struct {
	EntityUniqueID           int64
	EntityRuntimeID          uint64
	PlayerGameMode           int32
	PlayerPosition           Vec3
	Rotation                 Vec2
	WorldSeed                uint64
	BiomeType                int16
	BiomeName                string
	Dimension                int32
	Generator                int32
	WorldGameMode            int32
	Difficulty               int32
	SpawnPosition            BlockPos
	AchievementsDisabled     bool
	EditorWorldType          int32
	CreatedInEditor          bool
	ExportedFromEditor       bool
	DayCycleLockTime         int32
	EducationEditionOffer    int32
	EducationFeaturesEnabled bool
	EducationProductID       string
	RainLevel                float32
	LightningLevel           float32
	ConfirmedPlatformLocked  bool
	MultiPlayerGame          bool
	LANBroadcastEnabled      bool
	XBLBroadcastMode         uint32
	PlatformBroadcastMode    uint32
	CommandsEnabled          bool
	TexturePackRequired      bool
	GameRules                []GameRule
	Experiments              []ExperimentEntry
	ExperimentsPreviouslyUsed bool
	BonusChestEnabled        bool
	StartWithMapEnabled      bool
	PlayerPermissions        int32
	ServerChunkTickRadius    int32
	HasLockedBehaviourPack   bool
	HasLockedTexturePack     bool
	FromLockedWorldTemplate  bool
	MSAGamerTagsOnly         bool
	FromWorldTemplate        bool
	WorldTemplateSettingsLocked bool
	OnlySpawnV1Villagers     bool
	PersonaDisabled          bool
	CustomSkinsDisabled      bool
	EmoteChatMuted           bool
	BaseGameVersion          string
	LimitedWorldWidth        int32
	LimitedWorldDepth        int32
	NewNether                bool
	EducationSharedResourceURI struct {
		ButtonName string
		LinkURI    string
	}
	ForceExperimentalGameplay bool
	ChatRestrictionLevel      uint8
	DisablePlayerInteractions bool
	ServerID                  string
	WorldID                   string
	ScenarioID                string
	LevelID                   string
	WorldName                 string
	TemplateContentIdentity   string
	Trial                     bool
	// Server-authoritative movement.
	MovementType             int32
	RewindHistorySize        int32
	ServerAuthBlockBreaking  bool
	CurrentTick              int64
	EnchantmentSeed          int32
	BlockProperties          []BlockProperty
	Items                    []ItemEntry
	MultiPlayerCorrelationID string
	ServerAuthInventory      bool
	GameVersion              string
	// PropertyData is a network-NBT compound, raw.
	PropertyData             []byte
	ServerBlockStateChecksum uint64
	WorldTemplateID          UUID
	ClientSideGeneration     bool
	// BlockNetworkIDsAreHashes makes the client compute runtime ids
	// by FNV-hashing block state NBT; always true here.
	BlockNetworkIDsAreHashes bool
	ServerControlledSounds   bool
}

// BlockProperty is a custom block definition entry.
type BlockProperty struct {
	Name string
	// NBT holds the raw network-NBT definition compound.
	NBT []byte
}

func (*StartGame) ID() uint32 { return IDStartGame }

func (pk *StartGame) Marshal(w *Writer) {
	w.Varint64(pk.EntityUniqueID)
	w.Uvarint64(pk.EntityRuntimeID)
	w.Varint32(pk.PlayerGameMode)
	w.Vec3(pk.PlayerPosition)
	w.Vec2(pk.Rotation)
	w.U64LE(pk.WorldSeed)
	w.U16LE(uint16(pk.BiomeType))
	w.String(pk.BiomeName)
	w.Varint32(pk.Dimension)
	w.Varint32(pk.Generator)
	w.Varint32(pk.WorldGameMode)
	w.Varint32(pk.Difficulty)
	w.BlockPos(pk.SpawnPosition)
	w.Bool(pk.AchievementsDisabled)
	w.Varint32(pk.EditorWorldType)
	w.Bool(pk.CreatedInEditor)
	w.Bool(pk.ExportedFromEditor)
	w.Varint32(pk.DayCycleLockTime)
	w.Varint32(pk.EducationEditionOffer)
	w.Bool(pk.EducationFeaturesEnabled)
	w.String(pk.EducationProductID)
	w.F32LE(pk.RainLevel)
	w.F32LE(pk.LightningLevel)
	w.Bool(pk.ConfirmedPlatformLocked)
	w.Bool(pk.MultiPlayerGame)
	w.Bool(pk.LANBroadcastEnabled)
	w.Uvarint32(pk.XBLBroadcastMode)
	w.Uvarint32(pk.PlatformBroadcastMode)
	w.Bool(pk.CommandsEnabled)
	w.Bool(pk.TexturePackRequired)
	w.Uvarint32(uint32(len(pk.GameRules)))
	for i := range pk.GameRules {
		pk.GameRules[i].marshal(w)
	}
	w.Uvarint32(uint32(len(pk.Experiments)))
	for _, e := range pk.Experiments {
		w.String(e.Name)
		w.Bool(e.Enabled)
	}
	w.Bool(pk.ExperimentsPreviouslyUsed)
	w.Bool(pk.BonusChestEnabled)
	w.Bool(pk.StartWithMapEnabled)
	w.Varint32(pk.PlayerPermissions)
	w.I32LE(pk.ServerChunkTickRadius)
	w.Bool(pk.HasLockedBehaviourPack)
	w.Bool(pk.HasLockedTexturePack)
	w.Bool(pk.FromLockedWorldTemplate)
	w.Bool(pk.MSAGamerTagsOnly)
	w.Bool(pk.FromWorldTemplate)
	w.Bool(pk.WorldTemplateSettingsLocked)
	w.Bool(pk.OnlySpawnV1Villagers)
	w.Bool(pk.PersonaDisabled)
	w.Bool(pk.CustomSkinsDisabled)
	w.Bool(pk.EmoteChatMuted)
	w.String(pk.BaseGameVersion)
	w.I32LE(pk.LimitedWorldWidth)
	w.I32LE(pk.LimitedWorldDepth)
	w.Bool(pk.NewNether)
	w.String(pk.EducationSharedResourceURI.ButtonName)
	w.String(pk.EducationSharedResourceURI.LinkURI)
	w.Bool(pk.ForceExperimentalGameplay)
	w.U8(pk.ChatRestrictionLevel)
	w.Bool(pk.DisablePlayerInteractions)
	w.String(pk.ServerID)
	w.String(pk.WorldID)
	w.String(pk.ScenarioID)
	w.String(pk.LevelID)
	w.String(pk.WorldName)
	w.String(pk.TemplateContentIdentity)
	w.Bool(pk.Trial)
	w.Varint32(pk.MovementType)
	w.Varint32(pk.RewindHistorySize)
	w.Bool(pk.ServerAuthBlockBreaking)
	w.I64LE(pk.CurrentTick)
	w.Varint32(pk.EnchantmentSeed)
	w.Uvarint32(uint32(len(pk.BlockProperties)))
	for _, bp := range pk.BlockProperties {
		w.String(bp.Name)
		w.Raw(bp.NBT)
	}
	w.Uvarint32(uint32(len(pk.Items)))
	for _, it := range pk.Items {
		w.String(it.Name)
		w.U16LE(uint16(it.RuntimeID))
		w.Bool(it.ComponentBased)
	}
	w.String(pk.MultiPlayerCorrelationID)
	w.Bool(pk.ServerAuthInventory)
	w.String(pk.GameVersion)
	w.Raw(pk.PropertyData)
	w.U64LE(pk.ServerBlockStateChecksum)
	w.UUID(pk.WorldTemplateID)
	w.Bool(pk.ClientSideGeneration)
	w.Bool(pk.BlockNetworkIDsAreHashes)
	w.Bool(pk.ServerControlledSounds)
}

func (pk *StartGame) Unmarshal(r *Reader) error {
	var err error
	if pk.EntityUniqueID, err = r.Varint64(); err != nil {
		return err
	}
	if pk.EntityRuntimeID, err = r.Uvarint64(); err != nil {
		return err
	}
	if pk.PlayerGameMode, err = r.Varint32(); err != nil {
		return err
	}
	if pk.PlayerPosition, err = r.Vec3(); err != nil {
		return err
	}
	if pk.Rotation, err = r.Vec2(); err != nil {
		return err
	}
	if pk.WorldSeed, err = r.U64LE(); err != nil {
		return err
	}
	bt, err := r.U16LE()
	if err != nil {
		return err
	}
	pk.BiomeType = int16(bt)
	if pk.BiomeName, err = r.String(); err != nil {
		return err
	}
	if pk.Dimension, err = r.Varint32(); err != nil {
		return err
	}
	if pk.Generator, err = r.Varint32(); err != nil {
		return err
	}
	if pk.WorldGameMode, err = r.Varint32(); err != nil {
		return err
	}
	if pk.Difficulty, err = r.Varint32(); err != nil {
		return err
	}
	if pk.SpawnPosition, err = r.BlockPos(); err != nil {
		return err
	}
	if pk.AchievementsDisabled, err = r.Bool(); err != nil {
		return err
	}
	if pk.EditorWorldType, err = r.Varint32(); err != nil {
		return err
	}
	if pk.CreatedInEditor, err = r.Bool(); err != nil {
		return err
	}
	if pk.ExportedFromEditor, err = r.Bool(); err != nil {
		return err
	}
	if pk.DayCycleLockTime, err = r.Varint32(); err != nil {
		return err
	}
	if pk.EducationEditionOffer, err = r.Varint32(); err != nil {
		return err
	}
	if pk.EducationFeaturesEnabled, err = r.Bool(); err != nil {
		return err
	}
	if pk.EducationProductID, err = r.String(); err != nil {
		return err
	}
	if pk.RainLevel, err = r.F32LE(); err != nil {
		return err
	}
	if pk.LightningLevel, err = r.F32LE(); err != nil {
		return err
	}
	if pk.ConfirmedPlatformLocked, err = r.Bool(); err != nil {
		return err
	}
	if pk.MultiPlayerGame, err = r.Bool(); err != nil {
		return err
	}
	if pk.LANBroadcastEnabled, err = r.Bool(); err != nil {
		return err
	}
	if pk.XBLBroadcastMode, err = r.Uvarint32(); err != nil {
		return err
	}
	if pk.PlatformBroadcastMode, err = r.Uvarint32(); err != nil {
		return err
	}
	if pk.CommandsEnabled, err = r.Bool(); err != nil {
		return err
	}
	if pk.TexturePackRequired, err = r.Bool(); err != nil {
		return err
	}
	n, err := r.Uvarint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var g GameRule
		if err := g.unmarshal(r); err != nil {
			return err
		}
		pk.GameRules = append(pk.GameRules, g)
	}
	if n, err = r.Uvarint32(); err != nil {
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
	if pk.ExperimentsPreviouslyUsed, err = r.Bool(); err != nil {
		return err
	}
	if pk.BonusChestEnabled, err = r.Bool(); err != nil {
		return err
	}
	if pk.StartWithMapEnabled, err = r.Bool(); err != nil {
		return err
	}
	if pk.PlayerPermissions, err = r.Varint32(); err != nil {
		return err
	}
	if pk.ServerChunkTickRadius, err = r.I32LE(); err != nil {
		return err
	}
	if pk.HasLockedBehaviourPack, err = r.Bool(); err != nil {
		return err
	}
	if pk.HasLockedTexturePack, err = r.Bool(); err != nil {
		return err
	}
	if pk.FromLockedWorldTemplate, err = r.Bool(); err != nil {
		return err
	}
	if pk.MSAGamerTagsOnly, err = r.Bool(); err != nil {
		return err
	}
	if pk.FromWorldTemplate, err = r.Bool(); err != nil {
		return err
	}
	if pk.WorldTemplateSettingsLocked, err = r.Bool(); err != nil {
		return err
	}
	if pk.OnlySpawnV1Villagers, err = r.Bool(); err != nil {
		return err
	}
	if pk.PersonaDisabled, err = r.Bool(); err != nil {
		return err
	}
	if pk.CustomSkinsDisabled, err = r.Bool(); err != nil {
		return err
	}
	if pk.EmoteChatMuted, err = r.Bool(); err != nil {
		return err
	}
	if pk.BaseGameVersion, err = r.String(); err != nil {
		return err
	}
	if pk.LimitedWorldWidth, err = r.I32LE(); err != nil {
		return err
	}
	if pk.LimitedWorldDepth, err = r.I32LE(); err != nil {
		return err
	}
	if pk.NewNether, err = r.Bool(); err != nil {
		return err
	}
	if pk.EducationSharedResourceURI.ButtonName, err = r.String(); err != nil {
		return err
	}
	if pk.EducationSharedResourceURI.LinkURI, err = r.String(); err != nil {
		return err
	}
	if pk.ForceExperimentalGameplay, err = r.Bool(); err != nil {
		return err
	}
	if pk.ChatRestrictionLevel, err = r.U8(); err != nil {
		return err
	}
	if pk.DisablePlayerInteractions, err = r.Bool(); err != nil {
		return err
	}
	if pk.ServerID, err = r.String(); err != nil {
		return err
	}
	if pk.WorldID, err = r.String(); err != nil {
		return err
	}
	if pk.ScenarioID, err = r.String(); err != nil {
		return err
	}
	if pk.LevelID, err = r.String(); err != nil {
		return err
	}
	if pk.WorldName, err = r.String(); err != nil {
		return err
	}
	if pk.TemplateContentIdentity, err = r.String(); err != nil {
		return err
	}
	if pk.Trial, err = r.Bool(); err != nil {
		return err
	}
	if pk.MovementType, err = r.Varint32(); err != nil {
		return err
	}
	if pk.RewindHistorySize, err = r.Varint32(); err != nil {
		return err
	}
	if pk.ServerAuthBlockBreaking, err = r.Bool(); err != nil {
		return err
	}
	if pk.CurrentTick, err = r.I64LE(); err != nil {
		return err
	}
	if pk.EnchantmentSeed, err = r.Varint32(); err != nil {
		return err
	}
	if n, err = r.Uvarint32(); err != nil {
		return err
	}
	if n > 0 {
		// Block property compounds have no length prefix; decoding
		// them requires the NBT parser, which the session layer owns.
		// A vanilla server sends none.
		return ErrLengthOverflow
	}
	pk.BlockProperties = nil
	if n, err = r.Uvarint32(); err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var it ItemEntry
		if it.Name, err = r.String(); err != nil {
			return err
		}
		rid, err := r.U16LE()
		if err != nil {
			return err
		}
		it.RuntimeID = int16(rid)
		if it.ComponentBased, err = r.Bool(); err != nil {
			return err
		}
		pk.Items = append(pk.Items, it)
	}
	if pk.MultiPlayerCorrelationID, err = r.String(); err != nil {
		return err
	}
	if pk.ServerAuthInventory, err = r.Bool(); err != nil {
		return err
	}
	if pk.GameVersion, err = r.String(); err != nil {
		return err
	}
	// PropertyData is the only unprefixed NBT in the packet; the
	// remaining fixed-size tail lets us slice it off.
	tail := 8 + 16 + 3
	if r.Remaining() < tail {
		return ErrLengthOverflow
	}
	if pk.PropertyData, err = r.Bytes(r.Remaining() - tail); err != nil {
		return err
	}
	if pk.ServerBlockStateChecksum, err = r.U64LE(); err != nil {
		return err
	}
	if pk.WorldTemplateID, err = r.UUID(); err != nil {
		return err
	}
	if pk.ClientSideGeneration, err = r.Bool(); err != nil {
		return err
	}
	if pk.BlockNetworkIDsAreHashes, err = r.Bool(); err != nil {
		return err
	}
	pk.ServerControlledSounds, err = r.Bool()
	return err
}

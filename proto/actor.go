package proto

// Additional packet ids for the actor and UI traffic below.
const (
	IDAddPlayer         uint32 = 0x0c
	IDAddActor          uint32 = 0x0d
	IDRemoveEntity      uint32 = 0x0e
	IDMoveActorAbsolute uint32 = 0x10
	IDLevelEvent        uint32 = 0x19
	IDEntityEvent       uint32 = 0x1b
	IDMobEquipment      uint32 = 0x1f
	IDContainerOpen     uint32 = 0x2e
	IDContainerClose    uint32 = 0x2f
	IDAnimate           uint32 = 0x2c
	IDRespawn           uint32 = 0x2d
	IDChangeDimension   uint32 = 0x3d
	IDSetPlayerGameType uint32 = 0x3e
	IDTransfer          uint32 = 0x55
	IDPlaySound         uint32 = 0x56
	IDSetTitle          uint32 = 0x58
)

func init() {
	for id, mk := range map[uint32]func() Packet{
		IDAddPlayer:         func() Packet { return &AddPlayer{} },
		IDAddActor:          func() Packet { return &AddActor{} },
		IDRemoveEntity:      func() Packet { return &RemoveEntity{} },
		IDMoveActorAbsolute: func() Packet { return &MoveActorAbsolute{} },
		IDLevelEvent:        func() Packet { return &LevelEvent{} },
		IDEntityEvent:       func() Packet { return &EntityEvent{} },
		IDMobEquipment:      func() Packet { return &MobEquipment{} },
		IDContainerOpen:     func() Packet { return &ContainerOpen{} },
		IDContainerClose:    func() Packet { return &ContainerClose{} },
		IDAnimate:           func() Packet { return &Animate{} },
		IDRespawn:           func() Packet { return &Respawn{} },
		IDChangeDimension:   func() Packet { return &ChangeDimension{} },
		IDSetPlayerGameType: func() Packet { return &SetPlayerGameType{} },
		IDTransfer:          func() Packet { return &Transfer{} },
		IDPlaySound:         func() Packet { return &PlaySound{} },
		IDSetTitle:          func() Packet { return &SetTitle{} },
	} {
		newPacket[id] = mk
	}
}

// AddPlayer spawns another player's entity for this client. The
// held item is always written as an empty stack (a single zero id)
// and the metadata, synced-property and entity-link tables as empty;
// decoding expects them in that empty form and keeps none of them.
type AddPlayer struct {
	UUID            UUID
	Username        string
	EntityRuntimeID uint64
	PlatformChatID  string
	Position        Vec3
	Velocity        Vec3
	Pitch, Yaw      float32
	HeadYaw         float32
	GameMode        int32
	AbilityData     AbilityData
	DeviceID        string
	DeviceOS        int32
}

// AbilityData is the ability block trailing AddPlayer.
type AbilityData struct {
	EntityUniqueID     int64
	PlayerPermissions  uint8
	CommandPermissions uint8
}

func (*AddPlayer) ID() uint32 { return IDAddPlayer }

func (pk *AddPlayer) Marshal(w *Writer) {
	w.UUID(pk.UUID)
	w.String(pk.Username)
	w.Uvarint64(pk.EntityRuntimeID)
	w.String(pk.PlatformChatID)
	w.Vec3(pk.Position)
	w.Vec3(pk.Velocity)
	w.F32LE(pk.Pitch)
	w.F32LE(pk.Yaw)
	w.F32LE(pk.HeadYaw)
	w.Uvarint32(0) // empty held item
	w.Varint32(pk.GameMode)
	w.Uvarint32(0) // metadata
	w.Uvarint32(0) // synced properties: ints
	w.Uvarint32(0) // synced properties: floats
	w.I64LE(pk.AbilityData.EntityUniqueID)
	w.U8(pk.AbilityData.PlayerPermissions)
	w.U8(pk.AbilityData.CommandPermissions)
	w.U8(0) // ability layers
	w.Uvarint32(0) // entity links
	w.String(pk.DeviceID)
	w.I32LE(pk.DeviceOS)
}

func (pk *AddPlayer) Unmarshal(r *Reader) error {
	var err error
	if pk.UUID, err = r.UUID(); err != nil {
		return err
	}
	if pk.Username, err = r.String(); err != nil {
		return err
	}
	if pk.EntityRuntimeID, err = r.Uvarint64(); err != nil {
		return err
	}
	if pk.PlatformChatID, err = r.String(); err != nil {
		return err
	}
	if pk.Position, err = r.Vec3(); err != nil {
		return err
	}
	if pk.Velocity, err = r.Vec3(); err != nil {
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
	if _, err = r.Uvarint32(); err != nil { // held item
		return err
	}
	if pk.GameMode, err = r.Varint32(); err != nil {
		return err
	}
	for i := 0; i < 3; i++ { // metadata + synced properties
		if _, err = r.Uvarint32(); err != nil {
			return err
		}
	}
	if pk.AbilityData.EntityUniqueID, err = r.I64LE(); err != nil {
		return err
	}
	if pk.AbilityData.PlayerPermissions, err = r.U8(); err != nil {
		return err
	}
	if pk.AbilityData.CommandPermissions, err = r.U8(); err != nil {
		return err
	}
	if _, err = r.U8(); err != nil { // ability layers
		return err
	}
	if _, err = r.Uvarint32(); err != nil { // entity links
		return err
	}
	if pk.DeviceID, err = r.String(); err != nil {
		return err
	}
	pk.DeviceOS, err = r.I32LE()
	return err
}

// ActorAttribute is one entry of an AddActor attribute table.
type ActorAttribute struct {
	Name                string
	Min, Max            float32
	Current, Default    float32
}

// AddActor spawns a non-player entity.
type AddActor struct {
	EntityUniqueID  int64
	EntityRuntimeID uint64
	EntityType      string
	Position        Vec3
	Velocity        Vec3
	Pitch, Yaw      float32
	HeadYaw         float32
	BodyYaw         float32
	Attributes      []ActorAttribute
}

func (*AddActor) ID() uint32 { return IDAddActor }

func (pk *AddActor) Marshal(w *Writer) {
	w.Varint64(pk.EntityUniqueID)
	w.Uvarint64(pk.EntityRuntimeID)
	w.String(pk.EntityType)
	w.Vec3(pk.Position)
	w.Vec3(pk.Velocity)
	w.F32LE(pk.Pitch)
	w.F32LE(pk.Yaw)
	w.F32LE(pk.HeadYaw)
	w.F32LE(pk.BodyYaw)
	w.Uvarint32(uint32(len(pk.Attributes)))
	for _, a := range pk.Attributes {
		w.String(a.Name)
		w.F32LE(a.Min)
		w.F32LE(a.Max)
		w.F32LE(a.Current)
		w.F32LE(a.Default)
	}
	w.Uvarint32(0) // metadata
	w.Uvarint32(0) // synced properties: ints
	w.Uvarint32(0) // synced properties: floats
	w.Uvarint32(0) // entity links
}

func (pk *AddActor) Unmarshal(r *Reader) error {
	var err error
	if pk.EntityUniqueID, err = r.Varint64(); err != nil {
		return err
	}
	if pk.EntityRuntimeID, err = r.Uvarint64(); err != nil {
		return err
	}
	if pk.EntityType, err = r.String(); err != nil {
		return err
	}
	if pk.Position, err = r.Vec3(); err != nil {
		return err
	}
	if pk.Velocity, err = r.Vec3(); err != nil {
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
	if pk.BodyYaw, err = r.F32LE(); err != nil {
		return err
	}
	n, err := r.Uvarint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var a ActorAttribute
		if a.Name, err = r.String(); err != nil {
			return err
		}
		if a.Min, err = r.F32LE(); err != nil {
			return err
		}
		if a.Max, err = r.F32LE(); err != nil {
			return err
		}
		if a.Current, err = r.F32LE(); err != nil {
			return err
		}
		if a.Default, err = r.F32LE(); err != nil {
			return err
		}
		pk.Attributes = append(pk.Attributes, a)
	}
	for i := 0; i < 4; i++ { // metadata, properties, links
		if _, err = r.Uvarint32(); err != nil {
			return err
		}
	}
	return nil
}

// RemoveEntity despawns an entity by its unique id.
type RemoveEntity struct {
	EntityUniqueID int64
}

func (*RemoveEntity) ID() uint32 { return IDRemoveEntity }

func (pk *RemoveEntity) Marshal(w *Writer) { w.Varint64(pk.EntityUniqueID) }

func (pk *RemoveEntity) Unmarshal(r *Reader) error {
	var err error
	pk.EntityUniqueID, err = r.Varint64()
	return err
}

// MoveActorAbsolute repositions an entity. Rotations travel as
// bytes of 360/256 degree steps. Droppable under back-pressure.
type MoveActorAbsolute struct {
	EntityRuntimeID uint64
	Flags           uint8
	Position        Vec3
	Rotation        [3]uint8 // pitch, head yaw, yaw
}

func (*MoveActorAbsolute) ID() uint32 { return IDMoveActorAbsolute }

func (pk *MoveActorAbsolute) Marshal(w *Writer) {
	w.Uvarint64(pk.EntityRuntimeID)
	w.U8(pk.Flags)
	w.Vec3(pk.Position)
	w.U8(pk.Rotation[0])
	w.U8(pk.Rotation[1])
	w.U8(pk.Rotation[2])
}

func (pk *MoveActorAbsolute) Unmarshal(r *Reader) error {
	var err error
	if pk.EntityRuntimeID, err = r.Uvarint64(); err != nil {
		return err
	}
	if pk.Flags, err = r.U8(); err != nil {
		return err
	}
	if pk.Position, err = r.Vec3(); err != nil {
		return err
	}
	for i := range pk.Rotation {
		if pk.Rotation[i], err = r.U8(); err != nil {
			return err
		}
	}
	return nil
}

// LevelEvent fires a world effect, block-break particles and such.
type LevelEvent struct {
	EventID  int32
	Position Vec3
	Data     int32
}

func (*LevelEvent) ID() uint32 { return IDLevelEvent }

func (pk *LevelEvent) Marshal(w *Writer) {
	w.Varint32(pk.EventID)
	w.Vec3(pk.Position)
	w.Varint32(pk.Data)
}

func (pk *LevelEvent) Unmarshal(r *Reader) error {
	var err error
	if pk.EventID, err = r.Varint32(); err != nil {
		return err
	}
	if pk.Position, err = r.Vec3(); err != nil {
		return err
	}
	pk.Data, err = r.Varint32()
	return err
}

// EntityEvent triggers an entity status animation.
type EntityEvent struct {
	EntityRuntimeID uint64
	EventID         uint8
	Data            int32
}

func (*EntityEvent) ID() uint32 { return IDEntityEvent }

func (pk *EntityEvent) Marshal(w *Writer) {
	w.Uvarint64(pk.EntityRuntimeID)
	w.U8(pk.EventID)
	w.Varint32(pk.Data)
}

func (pk *EntityEvent) Unmarshal(r *Reader) error {
	var err error
	if pk.EntityRuntimeID, err = r.Uvarint64(); err != nil {
		return err
	}
	if pk.EventID, err = r.U8(); err != nil {
		return err
	}
	pk.Data, err = r.Varint32()
	return err
}

// MobEquipment reports a held-item change. The item stack is kept
// raw.
type MobEquipment struct {
	EntityRuntimeID uint64
	Item            []byte
	InventorySlot   uint8
	HotbarSlot      uint8
	WindowID        uint8
}

func (*MobEquipment) ID() uint32 { return IDMobEquipment }

func (pk *MobEquipment) Marshal(w *Writer) {
	w.Uvarint64(pk.EntityRuntimeID)
	if len(pk.Item) == 0 {
		w.Uvarint32(0) // empty stack
	} else {
		w.Raw(pk.Item)
	}
	w.U8(pk.InventorySlot)
	w.U8(pk.HotbarSlot)
	w.U8(pk.WindowID)
}

func (pk *MobEquipment) Unmarshal(r *Reader) error {
	var err error
	if pk.EntityRuntimeID, err = r.Uvarint64(); err != nil {
		return err
	}
	if r.Remaining() < 3 {
		return ErrLengthOverflow
	}
	if pk.Item, err = r.Bytes(r.Remaining() - 3); err != nil {
		return err
	}
	if pk.InventorySlot, err = r.U8(); err != nil {
		return err
	}
	if pk.HotbarSlot, err = r.U8(); err != nil {
		return err
	}
	pk.WindowID, err = r.U8()
	return err
}

// ContainerOpen shows a container UI.
type ContainerOpen struct {
	WindowID       uint8
	ContainerType  uint8
	Position       BlockPos
	EntityUniqueID int64
}

func (*ContainerOpen) ID() uint32 { return IDContainerOpen }

func (pk *ContainerOpen) Marshal(w *Writer) {
	w.U8(pk.WindowID)
	w.U8(pk.ContainerType)
	w.BlockPos(pk.Position)
	w.Varint64(pk.EntityUniqueID)
}

func (pk *ContainerOpen) Unmarshal(r *Reader) error {
	var err error
	if pk.WindowID, err = r.U8(); err != nil {
		return err
	}
	if pk.ContainerType, err = r.U8(); err != nil {
		return err
	}
	if pk.Position, err = r.BlockPos(); err != nil {
		return err
	}
	pk.EntityUniqueID, err = r.Varint64()
	return err
}

// ContainerClose dismisses a container UI, from either side.
type ContainerClose struct {
	WindowID      uint8
	ContainerType uint8
	ServerSide    bool
}

func (*ContainerClose) ID() uint32 { return IDContainerClose }

func (pk *ContainerClose) Marshal(w *Writer) {
	w.U8(pk.WindowID)
	w.U8(pk.ContainerType)
	w.Bool(pk.ServerSide)
}

func (pk *ContainerClose) Unmarshal(r *Reader) error {
	var err error
	if pk.WindowID, err = r.U8(); err != nil {
		return err
	}
	if pk.ContainerType, err = r.U8(); err != nil {
		return err
	}
	pk.ServerSide, err = r.Bool()
	return err
}

// Animate plays an arm-swing style animation.
type Animate struct {
	ActionType      int32
	EntityRuntimeID uint64
}

func (*Animate) ID() uint32 { return IDAnimate }

func (pk *Animate) Marshal(w *Writer) {
	w.Varint32(pk.ActionType)
	w.Uvarint64(pk.EntityRuntimeID)
}

func (pk *Animate) Unmarshal(r *Reader) error {
	var err error
	if pk.ActionType, err = r.Varint32(); err != nil {
		return err
	}
	pk.EntityRuntimeID, err = r.Uvarint64()
	return err
}

// Respawn negotiates the death/respawn position handshake.
type Respawn struct {
	Position        Vec3
	State           uint8
	EntityRuntimeID uint64
}

func (*Respawn) ID() uint32 { return IDRespawn }

func (pk *Respawn) Marshal(w *Writer) {
	w.Vec3(pk.Position)
	w.U8(pk.State)
	w.Uvarint64(pk.EntityRuntimeID)
}

func (pk *Respawn) Unmarshal(r *Reader) error {
	var err error
	if pk.Position, err = r.Vec3(); err != nil {
		return err
	}
	if pk.State, err = r.U8(); err != nil {
		return err
	}
	pk.EntityRuntimeID, err = r.Uvarint64()
	return err
}

// ChangeDimension moves the player between dimensions.
type ChangeDimension struct {
	Dimension    int32
	Position     Vec3
	Respawn      bool
	LoadingScreenID uint32
	HasLoadingScreen bool
}

func (*ChangeDimension) ID() uint32 { return IDChangeDimension }

func (pk *ChangeDimension) Marshal(w *Writer) {
	w.Varint32(pk.Dimension)
	w.Vec3(pk.Position)
	w.Bool(pk.Respawn)
	w.Bool(pk.HasLoadingScreen)
	if pk.HasLoadingScreen {
		w.U32LE(pk.LoadingScreenID)
	}
}

func (pk *ChangeDimension) Unmarshal(r *Reader) error {
	var err error
	if pk.Dimension, err = r.Varint32(); err != nil {
		return err
	}
	if pk.Position, err = r.Vec3(); err != nil {
		return err
	}
	if pk.Respawn, err = r.Bool(); err != nil {
		return err
	}
	if pk.HasLoadingScreen, err = r.Bool(); err != nil {
		return err
	}
	if pk.HasLoadingScreen {
		pk.LoadingScreenID, err = r.U32LE()
	}
	return err
}

// SetPlayerGameType switches the local player's gamemode.
type SetPlayerGameType struct {
	GameType int32
}

func (*SetPlayerGameType) ID() uint32 { return IDSetPlayerGameType }

func (pk *SetPlayerGameType) Marshal(w *Writer) { w.Varint32(pk.GameType) }

func (pk *SetPlayerGameType) Unmarshal(r *Reader) error {
	var err error
	pk.GameType, err = r.Varint32()
	return err
}

// Transfer sends the client to another server.
type Transfer struct {
	Address     string
	Port        uint16
	ReloadWorld bool
}

func (*Transfer) ID() uint32 { return IDTransfer }

func (pk *Transfer) Marshal(w *Writer) {
	w.String(pk.Address)
	w.U16LE(pk.Port)
	w.Bool(pk.ReloadWorld)
}

func (pk *Transfer) Unmarshal(r *Reader) error {
	var err error
	if pk.Address, err = r.String(); err != nil {
		return err
	}
	if pk.Port, err = r.U16LE(); err != nil {
		return err
	}
	pk.ReloadWorld, err = r.Bool()
	return err
}

// PlaySound plays a named sound at a position. Callers pass block
// coordinates already scaled by eight, as the client expects.
type PlaySound struct {
	SoundName string
	Position  BlockPos
	Volume    float32
	Pitch     float32
}

func (*PlaySound) ID() uint32 { return IDPlaySound }

func (pk *PlaySound) Marshal(w *Writer) {
	w.String(pk.SoundName)
	w.Varint32(pk.Position.X)
	w.Uvarint32(uint32(pk.Position.Y))
	w.Varint32(pk.Position.Z)
	w.F32LE(pk.Volume)
	w.F32LE(pk.Pitch)
}

func (pk *PlaySound) Unmarshal(r *Reader) error {
	var err error
	if pk.SoundName, err = r.String(); err != nil {
		return err
	}
	if pk.Position.X, err = r.Varint32(); err != nil {
		return err
	}
	y, err := r.Uvarint32()
	if err != nil {
		return err
	}
	pk.Position.Y = int32(y)
	if pk.Position.Z, err = r.Varint32(); err != nil {
		return err
	}
	if pk.Volume, err = r.F32LE(); err != nil {
		return err
	}
	pk.Pitch, err = r.F32LE()
	return err
}

// SetTitle action types.
const (
	TitleClear int32 = iota
	TitleReset
	TitleSet
	TitleSubtitle
	TitleActionbar
	TitleTimes
)

// SetTitle drives the on-screen title UI.
type SetTitle struct {
	TitleType      int32
	Text           string
	FadeIn         int32
	Stay           int32
	FadeOut        int32
	XUID           string
	PlatformChatID string
	FilteredText   string
}

func (*SetTitle) ID() uint32 { return IDSetTitle }

func (pk *SetTitle) Marshal(w *Writer) {
	w.Varint32(pk.TitleType)
	w.String(pk.Text)
	w.Varint32(pk.FadeIn)
	w.Varint32(pk.Stay)
	w.Varint32(pk.FadeOut)
	w.String(pk.XUID)
	w.String(pk.PlatformChatID)
	w.String(pk.FilteredText)
}

func (pk *SetTitle) Unmarshal(r *Reader) error {
	var err error
	if pk.TitleType, err = r.Varint32(); err != nil {
		return err
	}
	if pk.Text, err = r.String(); err != nil {
		return err
	}
	if pk.FadeIn, err = r.Varint32(); err != nil {
		return err
	}
	if pk.Stay, err = r.Varint32(); err != nil {
		return err
	}
	if pk.FadeOut, err = r.Varint32(); err != nil {
		return err
	}
	if pk.XUID, err = r.String(); err != nil {
		return err
	}
	if pk.PlatformChatID, err = r.String(); err != nil {
		return err
	}
	pk.FilteredText, err = r.String()
	return err
}

package proto

import "fmt"

// CurrentProtocol is the pinned game protocol version.
const CurrentProtocol int32 = 924

// CurrentVersion is the matching game version string.
const CurrentVersion = "1.26.0"

// Game packet ids. Ids above 0x7f occupy more than one byte of the
// uvarint id field.
const (
	IDLogin                       uint32 = 0x01
	IDPlayStatus                  uint32 = 0x02
	IDServerToClientHandshake     uint32 = 0x03
	IDClientToServerHandshake     uint32 = 0x04
	IDDisconnect                  uint32 = 0x05
	IDResourcePacksInfo           uint32 = 0x06
	IDResourcePackStack           uint32 = 0x07
	IDResourcePackClientResponse  uint32 = 0x08
	IDText                        uint32 = 0x09
	IDSetTime                     uint32 = 0x0a
	IDStartGame                   uint32 = 0x0b
	IDMovePlayer                  uint32 = 0x13
	IDUpdateBlock                 uint32 = 0x15
	IDSetEntityMotion             uint32 = 0x12
	IDLevelChunk                  uint32 = 0x3a
	IDPlayerAction                uint32 = 0x24
	IDRequestChunkRadius          uint32 = 0x45
	IDChunkRadiusUpdated          uint32 = 0x46
	IDAvailableCommands           uint32 = 0x4c
	IDResourcePackDataInfo        uint32 = 0x52
	IDResourcePackChunkData       uint32 = 0x53
	IDResourcePackChunkRequest    uint32 = 0x54
	IDSetLocalPlayerAsInitialized uint32 = 0x71
	IDAvailableEntityIdentifiers  uint32 = 0x78
	IDNetworkChunkPublisherUpdate uint32 = 0x7a
	IDBiomeDefinitionList         uint32 = 0x7b
	IDCraftingData                uint32 = 0x34
	IDNetworkSettings             uint32 = 0x8f
	IDPlayerAuthInput             uint32 = 0x90
	IDCreativeContent             uint32 = 0x91
	IDRequestNetworkSettings      uint32 = 0xc1
)

// GamePacketEnvelope is the byte prefixed to every batch on the
// reliability layer.
const GamePacketEnvelope = 0xfe

// A Packet is one variant of the logical packet union.
type Packet interface {
	// ID returns the packet's uvarint identifier.
	ID() uint32
	// Marshal appends the packet body, id excluded.
	Marshal(w *Writer)
	// Unmarshal decodes the packet body, id excluded.
	Unmarshal(r *Reader) error
}

// newPacket maps ids to constructors; Unmarshal looks decoders up
// here.
var newPacket = map[uint32]func() Packet{
	IDLogin:                       func() Packet { return &Login{} },
	IDPlayStatus:                  func() Packet { return &PlayStatus{} },
	IDServerToClientHandshake:     func() Packet { return &ServerToClientHandshake{} },
	IDClientToServerHandshake:     func() Packet { return &ClientToServerHandshake{} },
	IDDisconnect:                  func() Packet { return &Disconnect{} },
	IDResourcePacksInfo:           func() Packet { return &ResourcePacksInfo{} },
	IDResourcePackStack:           func() Packet { return &ResourcePackStack{} },
	IDResourcePackClientResponse:  func() Packet { return &ResourcePackClientResponse{} },
	IDText:                        func() Packet { return &Text{} },
	IDSetTime:                     func() Packet { return &SetTime{} },
	IDStartGame:                   func() Packet { return &StartGame{} },
	IDMovePlayer:                  func() Packet { return &MovePlayer{} },
	IDUpdateBlock:                 func() Packet { return &UpdateBlock{} },
	IDSetEntityMotion:             func() Packet { return &SetEntityMotion{} },
	IDLevelChunk:                  func() Packet { return &LevelChunk{} },
	IDPlayerAction:                func() Packet { return &PlayerAction{} },
	IDRequestChunkRadius:          func() Packet { return &RequestChunkRadius{} },
	IDChunkRadiusUpdated:          func() Packet { return &ChunkRadiusUpdated{} },
	IDAvailableCommands:           func() Packet { return &AvailableCommands{} },
	IDResourcePackDataInfo:        func() Packet { return &ResourcePackDataInfo{} },
	IDResourcePackChunkData:       func() Packet { return &ResourcePackChunkData{} },
	IDResourcePackChunkRequest:    func() Packet { return &ResourcePackChunkRequest{} },
	IDSetLocalPlayerAsInitialized: func() Packet { return &SetLocalPlayerAsInitialized{} },
	IDAvailableEntityIdentifiers:  func() Packet { return &AvailableEntityIdentifiers{} },
	IDNetworkChunkPublisherUpdate: func() Packet { return &NetworkChunkPublisherUpdate{} },
	IDBiomeDefinitionList:         func() Packet { return &BiomeDefinitionList{} },
	IDCraftingData:                func() Packet { return &CraftingData{} },
	IDNetworkSettings:             func() Packet { return &NetworkSettings{} },
	IDPlayerAuthInput:             func() Packet { return &PlayerAuthInput{} },
	IDCreativeContent:             func() Packet { return &CreativeContent{} },
	IDRequestNetworkSettings:      func() Packet { return &RequestNetworkSettings{} },
}

// Marshal encodes id + body for inclusion in a batch.
func Marshal(pk Packet) []byte {
	w := NewWriter()
	w.Uvarint32(pk.ID())
	pk.Marshal(w)
	return w.Bytes()
}

// Unmarshal decodes one id-prefixed packet. An id without a
// registered decoder yields an Unknown packet and no error; the
// caller logs and drops it.
func Unmarshal(data []byte) (Packet, error) {
	r := NewReader(data)
	id, err := r.Uvarint32()
	if err != nil {
		return nil, fmt.Errorf("packet id: %w", err)
	}
	// The two high bits of the id field carry the sender/target
	// sub-client ids; the packet id proper is the low 10 bits.
	id &= 0x3ff

	mk, ok := newPacket[id]
	if !ok {
		return &Unknown{IDField: id, Payload: r.Rest()}, nil
	}
	pk := mk()
	if err := pk.Unmarshal(r); err != nil {
		return nil, fmt.Errorf("%T: %w: %w", pk, err, ErrProtocolViolation)
	}
	return pk, nil
}

// Unknown holds a packet with an unregistered id. It round-trips
// byte-exactly so proxies can forward what they don't understand.
type Unknown struct {
	IDField uint32
	Payload []byte
}

func (u *Unknown) ID() uint32 { return u.IDField }

func (u *Unknown) Marshal(w *Writer) { w.Raw(u.Payload) }

func (u *Unknown) Unmarshal(r *Reader) error {
	u.Payload = r.Rest()
	return nil
}

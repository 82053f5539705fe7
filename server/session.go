// Package server drives accepted peers through the Bedrock session
// state machine — network settings, login, encryption, resource
// packs, start game, chunk sync — and multiplexes in-game traffic
// between the transport and the game layer.
package server

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pterm/pterm"

	"github.com/quarrymc/quarry/nbt"
	"github.com/quarrymc/quarry/proto"
	"github.com/quarrymc/quarry/raknet"
	"github.com/quarrymc/quarry/world"
)

// State is a session's position in the one-way login pipeline. The
// offline and connected RakNet handshakes have already run by the
// time Accept returns, so a fresh Session starts at NetworkSettings.
type State int

const (
	StateOfflineHandshake State = iota
	StateConnectedHandshake
	StateNetworkSettings
	StateLogin
	StateEncryption
	StateResourcePacks
	StateStartGame
	StateChunkSync
	StateInGame
	StateDisconnecting
)

func (s State) String() string {
	names := [...]string{
		"OfflineHandshake", "ConnectedHandshake", "NetworkSettings",
		"Login", "Encryption", "ResourcePacks", "StartGame",
		"ChunkSync", "InGame", "Disconnecting",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// outboundCap bounds each peer's queued outbound packets.
const outboundCap = 512

// A Session is one authenticated peer.
type Session struct {
	srv  *Server
	conn *raknet.Conn

	mu       sync.Mutex
	state    State
	codec    proto.BatchCodec
	identity *proto.Identity

	serverKey *ecdsa.PrivateKey
	salt      []byte

	entityUniqueID  int64
	entityRuntimeID uint64
	chunkRadius     int32
	position        proto.Vec3

	outbound []outPacket
	dropped  int
}

type outPacket struct {
	data      []byte
	droppable bool
}

// Identity returns what the login chain proved, nil before Login.
func (s *Session) Identity() *proto.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// State returns the session's current pipeline state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// GUID returns the peer's RakNet identifier.
func (s *Session) GUID() int64 { return s.conn.GUID() }

// EntityRuntimeID returns the runtime id assigned at login.
func (s *Session) EntityRuntimeID() uint64 { return s.entityRuntimeID }

// advanceLocked moves to the next state. Transitions are strictly one-way;
// no state is ever re-entered, reconnects build a fresh session.
func (s *Session) advanceLocked(from, to State) error {
	if s.state != from {
		return fmt.Errorf("transition %v -> %v in state %v: %w", from, to, s.state, proto.ErrProtocolViolation)
	}
	s.state = to
	return nil
}

// writePacket marshals, batches and sends one packet immediately.
func (s *Session) writePacket(pk proto.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writePacketLocked(pk)
}

func (s *Session) writePacketLocked(pk proto.Packet) error {
	payload, err := s.codec.Encode([][]byte{proto.Marshal(pk)})
	if err != nil {
		return err
	}
	return s.conn.WritePacket(payload, raknet.ReliableOrdered, 0)
}

// Enqueue queues a packet for the next tick flush. Fire and forget:
// when a slow peer's queue is full, droppable packets are shed first
// and the rest overwrite nothing — the call reports the drop only
// through the counter.
func (s *Session) Enqueue(pk proto.Packet) {
	s.enqueue(pk, droppable(pk))
}

func (s *Session) enqueue(pk proto.Packet, droppableHint bool) {
	data := proto.Marshal(pk)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outbound) >= outboundCap {
		if droppableHint {
			s.dropped++
			return
		}
		// Shed queued droppable traffic to make room.
		kept := s.outbound[:0]
		for _, o := range s.outbound {
			if !o.droppable {
				kept = append(kept, o)
			} else {
				s.dropped++
			}
		}
		s.outbound = kept
	}
	s.outbound = append(s.outbound, outPacket{data: data, droppable: droppableHint})
}

// droppable marks packet classes that may be shed under
// back-pressure without desyncing the client.
func droppable(pk proto.Packet) bool {
	switch pk.(type) {
	case *proto.SetEntityMotion, *proto.MovePlayer, *proto.MoveActorAbsolute:
		return true
	}
	return false
}

// flushOutbound sends everything queued since the last tick as one
// batch. Called once per game tick.
func (s *Session) flushOutbound() error {
	s.mu.Lock()
	if len(s.outbound) == 0 {
		s.mu.Unlock()
		return nil
	}
	packets := make([][]byte, len(s.outbound))
	for i, o := range s.outbound {
		packets[i] = o.data
	}
	s.outbound = s.outbound[:0]
	payload, err := s.codec.Encode(packets)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.conn.WritePacket(payload, raknet.ReliableOrdered, 0)
}

// Disconnect sends the reason to the client and tears the session
// down.
func (s *Session) Disconnect(message string) {
	s.mu.Lock()
	if s.state == StateDisconnecting {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnecting
	s.writePacketLocked(&proto.Disconnect{
		Message:         message,
		FilteredMessage: message,
	})
	s.mu.Unlock()
	s.conn.Close()
}

// readLoop is the peer task: it decodes inbound batches and feeds
// the state machine until the transport dies.
func (s *Session) readLoop() {
	defer s.srv.dropSession(s)
	for {
		payload, err := s.conn.ReadPacket()
		if err != nil {
			var pe raknet.PktError
			if errors.As(err, &pe) {
				s.srv.log.Warn("packet error", s.logArgs("err", err))
				continue
			}
			return
		}
		if err := s.handlePayload(payload); err != nil {
			if errors.Is(err, proto.ErrProtocolViolation) {
				s.srv.log.Warn("protocol violation", s.logArgs("err", err))
				s.Disconnect("Protocol error.")
				return
			}
			s.srv.log.Warn("session error", s.logArgs("err", err))
		}
	}
}

func (s *Session) logArgs(extra ...any) []pterm.LoggerArgument {
	args := []any{"peer", s.conn.RemoteAddr().String()}
	return s.srv.log.Args(append(args, extra...)...)
}

func (s *Session) handlePayload(payload []byte) error {
	s.mu.Lock()
	packets, err := s.codec.Decode(payload)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	for _, data := range packets {
		pk, err := proto.Unmarshal(data)
		if err != nil {
			return err
		}
		if unknown, ok := pk.(*proto.Unknown); ok {
			// Forward compatibility: log and drop.
			s.srv.log.Debug("unknown packet", s.logArgs("id", unknown.IDField))
			continue
		}
		if err := s.handlePacket(pk); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) handlePacket(pk proto.Packet) error {
	switch pk := pk.(type) {
	case *proto.RequestNetworkSettings:
		return s.handleRequestNetworkSettings(pk)
	case *proto.Login:
		return s.handleLogin(pk)
	case *proto.ClientToServerHandshake:
		return s.handleClientToServerHandshake(pk)
	case *proto.ResourcePackClientResponse:
		return s.handleResourcePackClientResponse(pk)
	case *proto.ResourcePackChunkRequest:
		return s.handleResourcePackChunkRequest(pk)
	case *proto.RequestChunkRadius:
		return s.handleRequestChunkRadius(pk)
	case *proto.SetLocalPlayerAsInitialized:
		return s.handleSetLocalPlayerAsInitialized(pk)
	case *proto.Disconnect:
		s.conn.Close()
		return nil
	default:
		return s.handleGamePacket(pk)
	}
}

// handleGamePacket forwards in-game traffic to the game layer; any
// game packet before InGame is out of order and fatal.
func (s *Session) handleGamePacket(pk proto.Packet) error {
	s.mu.Lock()
	inGame := s.state == StateInGame
	s.mu.Unlock()
	if !inGame {
		return fmt.Errorf("%T before spawn: %w", pk, proto.ErrProtocolViolation)
	}
	s.srv.deliver(s, pk)
	return nil
}

func (s *Session) handleRequestNetworkSettings(pk *proto.RequestNetworkSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.advanceLocked(StateNetworkSettings, StateLogin); err != nil {
		return err
	}

	if pk.ClientProtocol != proto.CurrentProtocol {
		status := proto.PlayStatusLoginFailedClient
		if pk.ClientProtocol > proto.CurrentProtocol {
			status = proto.PlayStatusLoginFailedServer
		}
		s.writePacketLocked(&proto.PlayStatus{Status: status})
		s.state = StateDisconnecting
		s.mu.Unlock()
		s.conn.Close()
		s.mu.Lock()
		return nil
	}

	err := s.writePacketLocked(&proto.NetworkSettings{
		CompressionThreshold: s.srv.cfg.CompressionThreshold,
		CompressionAlgorithm: s.srv.cfg.Compression,
	})
	// Compression covers every batch after the settings packet.
	s.codec.EnableCompression(s.srv.cfg.Compression, int(s.srv.cfg.CompressionThreshold))
	return err
}

func (s *Session) handleLogin(pk *proto.Login) error {
	s.mu.Lock()
	if err := s.advanceLocked(StateLogin, StateEncryption); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	ident, err := proto.ParseLoginChain(pk.ChainData, s.srv.cfg.OnlineMode)
	if err != nil {
		if s.srv.cfg.OnlineMode {
			s.Disconnect("Login failed.")
			return fmt.Errorf("login chain: %w: %w", err, proto.ErrProtocolViolation)
		}
		// Offline mode tolerates unverifiable chains but still
		// needs an identity to attach.
		s.Disconnect("Login failed.")
		return fmt.Errorf("login chain: %w", err)
	}

	s.mu.Lock()
	s.identity = ident
	s.mu.Unlock()
	s.srv.log.Info("player logging in", s.logArgs("name", ident.DisplayName, "xuid", ident.XUID))

	if s.srv.cfg.OnlineMode && ident.PublicKey != nil {
		return s.startEncryption(ident.PublicKey)
	}

	// No encryption handshake: jump straight past Encryption.
	s.mu.Lock()
	if err := s.advanceLocked(StateEncryption, StateResourcePacks); err != nil {
		s.mu.Unlock()
		return err
	}
	err = s.writePacketLocked(&proto.PlayStatus{Status: proto.PlayStatusLoginSuccess})
	if err == nil {
		err = s.writePacketLocked(s.srv.packsInfo())
	}
	s.mu.Unlock()
	return err
}

func (s *Session) startEncryption(clientKey *ecdsa.PublicKey) error {
	key, err := proto.NewEphemeralKey()
	if err != nil {
		return err
	}
	salt, err := proto.NewSalt()
	if err != nil {
		return err
	}
	token, err := proto.HandshakeJWT(key, salt)
	if err != nil {
		return err
	}
	secret, err := proto.SharedSecret(key, clientKey)
	if err != nil {
		return fmt.Errorf("%w: %w", err, proto.ErrProtocolViolation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverKey, s.salt = key, salt
	if err := s.writePacketLocked(&proto.ServerToClientHandshake{JWT: token}); err != nil {
		return err
	}
	// Everything after the handshake packet is encrypted.
	aesKey, iv := proto.DeriveKey(salt, secret)
	cipher, err := proto.NewCipher(aesKey, iv)
	if err != nil {
		return err
	}
	s.codec.EnableEncryption(cipher)
	return nil
}

func (s *Session) handleClientToServerHandshake(*proto.ClientToServerHandshake) error {
	s.mu.Lock()
	if err := s.advanceLocked(StateEncryption, StateResourcePacks); err != nil {
		s.mu.Unlock()
		return err
	}
	err := s.writePacketLocked(&proto.PlayStatus{Status: proto.PlayStatusLoginSuccess})
	if err == nil {
		err = s.writePacketLocked(s.srv.packsInfo())
	}
	s.mu.Unlock()
	return err
}

func (s *Session) handleResourcePackClientResponse(pk *proto.ResourcePackClientResponse) error {
	switch pk.Response {
	case proto.PackResponseRefused:
		s.Disconnect("You must accept the resource packs to play.")
		return nil

	case proto.PackResponseSendPacks:
		for _, id := range pk.PacksToDownload {
			info, ok := s.srv.packData(id)
			if !ok {
				return fmt.Errorf("requested pack %q not offered: %w", id, proto.ErrProtocolViolation)
			}
			if err := s.writePacket(info); err != nil {
				return err
			}
		}
		return nil

	case proto.PackResponseAllPacksDownloaded:
		return s.writePacket(s.srv.packStack())

	case proto.PackResponseCompleted:
		s.mu.Lock()
		if err := s.advanceLocked(StateResourcePacks, StateStartGame); err != nil {
			s.mu.Unlock()
			return err
		}
		s.mu.Unlock()
		return s.startGame()

	default:
		return fmt.Errorf("pack response %d: %w", pk.Response, proto.ErrProtocolViolation)
	}
}

func (s *Session) handleResourcePackChunkRequest(pk *proto.ResourcePackChunkRequest) error {
	chunk, ok := s.srv.packChunk(pk.PackID, pk.ChunkIndex)
	if !ok {
		return fmt.Errorf("pack chunk %q/%d not available: %w", pk.PackID, pk.ChunkIndex, proto.ErrProtocolViolation)
	}
	return s.writePacket(chunk)
}

// startGame sends the world configuration and the data tables, then
// waits in ChunkSync for the client's radius request.
func (s *Session) startGame() error {
	cfg := s.srv.cfg
	spawn := cfg.Spawn

	emptyNBT := nbt.Marshal("", nbt.NewCompound(), nbt.Network)

	start := &proto.StartGame{
		EntityUniqueID:  s.entityUniqueID,
		EntityRuntimeID: s.entityRuntimeID,
		PlayerGameMode:  cfg.GameModeNumeric,
		PlayerPosition:  spawn,
		WorldSeed:       cfg.Seed,
		Dimension:       0,
		Generator:       1,
		WorldGameMode:   cfg.GameModeNumeric,
		Difficulty:      1,
		SpawnPosition: proto.BlockPos{
			X: int32(spawn.X), Y: int32(spawn.Y), Z: int32(spawn.Z),
		},
		AchievementsDisabled: true,
		MultiPlayerGame:      true,
		LANBroadcastEnabled:  true,
		XBLBroadcastMode:     4,
		PlatformBroadcastMode: 4,
		CommandsEnabled:      true,
		GameRules: []proto.GameRule{
			{Name: "dodaylightcycle", Type: proto.GameRuleBool, Bool: true},
			{Name: "domobspawning", Type: proto.GameRuleBool, Bool: true},
			{Name: "doweathercycle", Type: proto.GameRuleBool, Bool: true},
			{Name: "pvp", Type: proto.GameRuleBool, Bool: true},
			{Name: "showcoordinates", Type: proto.GameRuleBool, Bool: true},
		},
		PlayerPermissions:     1,
		ServerChunkTickRadius: 4,
		BaseGameVersion:       proto.CurrentVersion,
		NewNether:             true,
		LevelID:               "level",
		WorldName:             cfg.WorldName,
		MovementType:          1, // server authoritative
		RewindHistorySize:     40,
		CurrentTick:           s.srv.CurrentTick(),
		GameVersion:           proto.CurrentVersion,
		PropertyData:          emptyNBT,
		WorldTemplateID:       proto.UUID(uuid.Nil),
		// The client derives block runtime ids by hashing states;
		// any disagreement freezes it at "creating world".
		BlockNetworkIDsAreHashes: true,
	}

	if err := s.writePacket(start); err != nil {
		return err
	}

	// Data tables follow start-game in vanilla order.
	for _, pk := range []proto.Packet{
		&proto.AvailableEntityIdentifiers{SerialisedEntityData: emptyNBT},
		&proto.BiomeDefinitionList{SerialisedBiomeDefinitions: emptyNBT},
		&proto.CreativeContent{},
		&proto.AvailableCommands{},
		&proto.CraftingData{},
	} {
		if err := s.writePacket(pk); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(StateStartGame, StateChunkSync)
}

func (s *Session) handleRequestChunkRadius(pk *proto.RequestChunkRadius) error {
	s.mu.Lock()
	if s.state != StateChunkSync && s.state != StateInGame {
		s.mu.Unlock()
		return fmt.Errorf("chunk radius request in %v: %w", s.state, proto.ErrProtocolViolation)
	}
	radius := pk.ChunkRadius
	if radius > s.srv.cfg.MaxChunkRadius {
		radius = s.srv.cfg.MaxChunkRadius
	}
	if radius < 1 {
		radius = 1
	}
	s.chunkRadius = radius
	syncing := s.state == StateChunkSync
	s.mu.Unlock()

	if err := s.writePacket(&proto.ChunkRadiusUpdated{ChunkRadius: radius}); err != nil {
		return err
	}
	if syncing {
		s.srv.streamChunks(s, radius)
	}
	return nil
}

func (s *Session) handleSetLocalPlayerAsInitialized(pk *proto.SetLocalPlayerAsInitialized) error {
	if pk.EntityRuntimeID != s.entityRuntimeID {
		return fmt.Errorf("initialized with runtime id %d, want %d: %w",
			pk.EntityRuntimeID, s.entityRuntimeID, proto.ErrProtocolViolation)
	}
	s.mu.Lock()
	if err := s.advanceLocked(StateChunkSync, StateInGame); err != nil {
		s.mu.Unlock()
		return err
	}
	err := s.writePacketLocked(&proto.PlayStatus{Status: proto.PlayStatusPlayerSpawn})
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.srv.log.Info("player spawned", s.logArgs("name", s.identity.DisplayName))
	s.srv.joined(s)
	return nil
}

// sendChunk ships one serialized column during chunk sync.
func (s *Session) sendChunk(pos world.ChunkPos, subChunks uint32, payload []byte) error {
	return s.writePacket(&proto.LevelChunk{
		ChunkX:        pos.X,
		ChunkZ:        pos.Z,
		SubChunkCount: subChunks,
		RawPayload:    payload,
	})
}

package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"

	"github.com/quarrymc/quarry/proto"
	"github.com/quarrymc/quarry/raknet"
	"github.com/quarrymc/quarry/world"
)

// TickInterval is the game tick period: 20 Hz.
const TickInterval = 50 * time.Millisecond

// inboundCap bounds the queue between peer tasks and the tick task.
const inboundCap = 4096

// Config carries everything a Server needs to run.
type Config struct {
	// Name shows in the server list; WorldName in the pause menu.
	Name      string
	WorldName string

	// PortV4 and PortV6 are the UDP listen ports. Zero disables the
	// respective socket; with both zero, Listen binds 19132 and 19133.
	PortV4 uint16
	PortV6 uint16

	MaxPlayers int

	// OnlineMode verifies login chains against the pinned root key
	// and runs the encryption handshake.
	OnlineMode bool

	Compression          uint16
	CompressionThreshold uint16

	GameMode        string
	GameModeNumeric int32

	Seed  uint64
	Spawn proto.Vec3

	MaxChunkRadius int32

	TexturePackRequired bool
	Packs               []ResourcePack

	// Source supplies chunk columns; nil falls back to the flat
	// generator.
	Source world.ChunkSource

	// Game receives in-game packets and join/quit events.
	// HandlePacket runs on the tick task and must return within the
	// tick; HandleJoin and HandleQuit run on the session's read loop.
	Game GameHandler

	// Log defaults to a discarding logger.
	Log *pterm.Logger
}

// GameHandler is the external game layer on the far side of the
// deliver/enqueue contracts.
type GameHandler interface {
	// HandleJoin runs when a session reaches InGame.
	HandleJoin(s *Session)
	// HandleQuit runs when an in-game session goes away.
	HandleQuit(s *Session)
	// HandlePacket receives each in-game packet in client send
	// order. It must not block.
	HandlePacket(s *Session, pk proto.Packet)
}

// NopGame ignores every event; it stands in when no game layer is
// attached.
type NopGame struct{}

func (NopGame) HandleJoin(*Session)                 {}
func (NopGame) HandleQuit(*Session)                 {}
func (NopGame) HandlePacket(*Session, proto.Packet) {}

type inboundPacket struct {
	s  *Session
	pk proto.Packet
}

// Server binds the UDP endpoints, owns all sessions and runs the
// game tick.
type Server struct {
	cfg      Config
	log      *pterm.Logger
	registry *world.Registry
	source   world.ChunkSource
	cache    *chunkCache
	workers  *workerPool

	listeners []*raknet.Listener

	mu       sync.Mutex
	sessions map[int64]*Session
	nextEID  int64

	inbound chan inboundPacket

	tick   atomic.Int64
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// Listen builds the block registry, binds the default sockets and
// starts the accept loops and the tick task.
func Listen(cfg Config) (*Server, error) {
	if cfg.PortV4 == 0 && cfg.PortV6 == 0 {
		cfg.PortV4, cfg.PortV6 = 19132, 19133
	}
	srv := newServer(cfg)

	if cfg.PortV4 != 0 {
		pc, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", cfg.PortV4))
		if err != nil {
			return nil, fmt.Errorf("bind udp4: %w", err)
		}
		srv.addListener(pc)
	}
	if cfg.PortV6 != 0 {
		pc, err := net.ListenPacket("udp6", fmt.Sprintf("[::]:%d", cfg.PortV6))
		if err != nil {
			if cfg.PortV4 == 0 {
				return nil, fmt.Errorf("bind udp6: %w", err)
			}
			// IPv6 is best effort when IPv4 is up.
			srv.log.Warn("udp6 bind failed", srv.log.Args("err", err))
		} else {
			srv.addListener(pc)
		}
	}

	srv.start()
	return srv, nil
}

// Serve runs a server on an already bound socket. The server owns
// the socket from here on.
func Serve(pc net.PacketConn, cfg Config) *Server {
	srv := newServer(cfg)
	srv.addListener(pc)
	srv.start()
	return srv
}

func newServer(cfg Config) *Server {
	if cfg.MaxPlayers == 0 {
		cfg.MaxPlayers = 20
	}
	if cfg.MaxChunkRadius == 0 {
		cfg.MaxChunkRadius = 8
	}
	if cfg.CompressionThreshold == 0 {
		cfg.CompressionThreshold = 256
	}
	if cfg.GameMode == "" {
		cfg.GameMode = "Survival"
	}
	if cfg.Game == nil {
		cfg.Game = NopGame{}
	}
	log := cfg.Log
	if log == nil {
		l := pterm.DefaultLogger.WithLevel(pterm.LogLevelDisabled)
		log = l
	}

	srv := &Server{
		cfg:      cfg,
		log:      log,
		registry: world.DefaultRegistry(),
		source:   cfg.Source,
		cache:    newChunkCache(),
		workers:  newWorkerPool(0),
		sessions: make(map[int64]*Session),
		nextEID:  1,
		inbound:  make(chan inboundPacket, inboundCap),
		closed:   make(chan struct{}),
	}
	if srv.source == nil {
		srv.source = &world.FlatSource{Registry: srv.registry, Biome: 1}
	}
	return srv
}

func (srv *Server) start() {
	srv.wg.Add(1)
	go srv.tickLoop()
	srv.log.Info("server listening",
		srv.log.Args("v4", srv.cfg.PortV4, "v6", srv.cfg.PortV6, "protocol", proto.CurrentProtocol))
}

// LocalAddr returns the first listener's bound address.
func (srv *Server) LocalAddr() net.Addr {
	if len(srv.listeners) == 0 {
		return nil
	}
	return srv.listeners[0].Addr()
}

func (srv *Server) addListener(pc net.PacketConn) {
	l := raknet.Listen(pc, raknet.ListenConfig{Pong: srv.pong()})
	srv.listeners = append(srv.listeners, l)
	srv.wg.Add(1)
	go srv.acceptLoop(l)
}

func (srv *Server) pong() raknet.Pong {
	srv.mu.Lock()
	online := len(srv.sessions)
	srv.mu.Unlock()
	return raknet.Pong{
		ServerName:      srv.cfg.Name,
		ProtocolVersion: int(proto.CurrentProtocol),
		GameVersion:     proto.CurrentVersion,
		PlayerCount:     online,
		MaxPlayers:      srv.cfg.MaxPlayers,
		WorldName:       srv.cfg.WorldName,
		GameMode:        srv.cfg.GameMode,
		GameModeNumeric: int(srv.cfg.GameModeNumeric),
		PortV4:          srv.cfg.PortV4,
		PortV6:          srv.cfg.PortV6,
	}
}

// CurrentTick returns the game tick counter.
func (srv *Server) CurrentTick() int64 { return srv.tick.Load() }

// Sessions snapshots the live sessions.
func (srv *Server) Sessions() []*Session {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	out := make([]*Session, 0, len(srv.sessions))
	for _, s := range srv.sessions {
		out = append(out, s)
	}
	return out
}

// Broadcast queues a packet for every in-game peer, fire and
// forget.
func (srv *Server) Broadcast(pk proto.Packet) {
	drop := droppable(pk)
	for _, s := range srv.Sessions() {
		if s.State() == StateInGame {
			s.enqueue(pk, drop)
		}
	}
}

func (srv *Server) acceptLoop(l *raknet.Listener) {
	defer srv.wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		srv.handleConn(conn)
	}
}

func (srv *Server) handleConn(conn *raknet.Conn) {
	srv.mu.Lock()
	if len(srv.sessions) >= srv.cfg.MaxPlayers {
		srv.mu.Unlock()
		srv.log.Info("server full, rejecting", srv.log.Args("peer", conn.RemoteAddr().String()))
		conn.Close()
		return
	}
	eid := srv.nextEID
	srv.nextEID++
	s := &Session{
		srv:             srv,
		conn:            conn,
		state:           StateNetworkSettings,
		entityUniqueID:  eid,
		entityRuntimeID: uint64(eid),
		chunkRadius:     4,
	}
	srv.sessions[conn.GUID()] = s
	srv.mu.Unlock()

	srv.log.Info("session connected",
		srv.log.Args("peer", conn.RemoteAddr().String(), "guid", conn.GUID(), "mtu", conn.MTU()))
	srv.updatePong()

	go s.readLoop()
}

func (srv *Server) dropSession(s *Session) {
	srv.mu.Lock()
	cur, ok := srv.sessions[s.conn.GUID()]
	if ok && cur == s {
		delete(srv.sessions, s.conn.GUID())
	}
	srv.mu.Unlock()
	if !ok {
		return
	}
	if err := s.conn.WhyClosed(); err != nil {
		srv.log.Info("session lost", s.logArgs("err", err))
	} else {
		srv.log.Info("session closed", s.logArgs())
	}
	srv.updatePong()
	if s.State() == StateInGame {
		srv.cfg.Game.HandleQuit(s)
	}
}

func (srv *Server) updatePong() {
	pong := srv.pong()
	for _, l := range srv.listeners {
		l.SetPong(pong)
	}
}

// deliver hands an in-game packet to the tick task. When the queue
// is saturated the packet is dropped rather than blocking the peer
// task past its back-pressure bound.
func (srv *Server) deliver(s *Session, pk proto.Packet) {
	select {
	case srv.inbound <- inboundPacket{s: s, pk: pk}:
	default:
		srv.log.Warn("inbound queue full, dropping", s.logArgs("packet", fmt.Sprintf("%T", pk)))
	}
}

func (srv *Server) joined(s *Session) {
	srv.cfg.Game.HandleJoin(s)
}

// tickLoop is the 20 Hz task owning game state: it drains inbound
// packets, runs the game layer and flushes every peer's outbound
// queue before the next tick.
func (srv *Server) tickLoop() {
	defer srv.wg.Done()
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			srv.tick.Add(1)

			// Drain what peers queued since the last tick.
			for {
				select {
				case in := <-srv.inbound:
					srv.cfg.Game.HandlePacket(in.s, in.pk)
				default:
					goto drained
				}
			}
		drained:
			for _, s := range srv.Sessions() {
				if err := s.flushOutbound(); err != nil {
					srv.log.Warn("outbound flush", s.logArgs("err", err))
				}
			}

		case <-srv.closed:
			return
		}
	}
}

// streamChunks serializes and ships the square of columns around
// the spawn point. Serialization runs on the worker pool; once every
// column is done, they are sent in coordinate order.
func (srv *Server) streamChunks(s *Session, radius int32) {
	center := world.ChunkPos{
		X: int32(s.srv.cfg.Spawn.X) >> 4,
		Z: int32(s.srv.cfg.Spawn.Z) >> 4,
	}

	var coords []world.ChunkPos
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			coords = append(coords, world.ChunkPos{X: center.X + dx, Z: center.Z + dz})
		}
	}

	if err := s.writePacket(&proto.NetworkChunkPublisherUpdate{
		Position: proto.BlockPos{
			X: int32(srv.cfg.Spawn.X), Y: int32(srv.cfg.Spawn.Y), Z: int32(srv.cfg.Spawn.Z),
		},
		Radius: uint32(radius) << 4,
	}); err != nil {
		srv.log.Warn("chunk publisher update", s.logArgs("err", err))
		return
	}

	var wg sync.WaitGroup
	results := make([]chunkResult, len(coords))
	for i, pos := range coords {
		i, pos := i, pos
		wg.Add(1)
		srv.workers.submit(func() {
			defer wg.Done()
			payload, subChunks, err := srv.chunkPayload(pos)
			results[i] = chunkResult{pos: pos, payload: payload, subChunks: subChunks, err: err}
		})
	}
	wg.Wait()

	for _, res := range results {
		if res.err != nil {
			srv.log.Warn("chunk serialize", s.logArgs("pos", res.pos, "err", res.err))
			continue
		}
		if err := s.sendChunk(res.pos, res.subChunks, res.payload); err != nil {
			srv.log.Warn("chunk send", s.logArgs("err", err))
			return
		}
	}
}

type chunkResult struct {
	pos       world.ChunkPos
	payload   []byte
	subChunks uint32
	err       error
}

// chunkPayload serializes one column, via the lz4 snapshot cache.
func (srv *Server) chunkPayload(pos world.ChunkPos) ([]byte, uint32, error) {
	if payload, subChunks, ok := srv.cache.get(pos); ok {
		return payload, subChunks, nil
	}
	col, err := srv.source.Fetch(pos)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch %v: %w", pos, err)
	}
	payload, err := col.SerializeNetwork()
	if err != nil {
		return nil, 0, fmt.Errorf("serialize %v: %w", pos, err)
	}
	if err := srv.cache.put(pos, payload, world.SubChunkCount); err != nil {
		srv.log.Warn("chunk cache", srv.log.Args("pos", pos, "err", err))
	}
	return payload, world.SubChunkCount, nil
}

// Close broadcasts a disconnect, drains outbound queues for at most
// two seconds and tears everything down.
func (srv *Server) Close() error {
	srv.once.Do(func() {
		srv.log.Info("server shutting down")

		sessions := srv.Sessions()
		for _, s := range sessions {
			s.Enqueue(&proto.Disconnect{
				Message:         "Server closed.",
				FilteredMessage: "Server closed.",
			})
		}
		deadline := time.After(2 * time.Second)
		done := make(chan struct{})
		go func() {
			for _, s := range sessions {
				s.flushOutbound()
				s.conn.Close()
			}
			close(done)
		}()
		select {
		case <-done:
		case <-deadline:
		}

		close(srv.closed)
		for _, l := range srv.listeners {
			l.Close()
		}
		srv.workers.close()
	})
	srv.wg.Wait()
	return nil
}

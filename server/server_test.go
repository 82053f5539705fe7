package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrymc/quarry/proto"
	"github.com/quarrymc/quarry/raknet"
	"github.com/quarrymc/quarry/world"
)

// recordingGame captures what the server delivers to the game layer.
type recordingGame struct {
	mu      sync.Mutex
	joined  []string
	quit    []string
	packets []proto.Packet
}

func (g *recordingGame) HandleJoin(s *Session) {
	g.mu.Lock()
	g.joined = append(g.joined, s.Identity().DisplayName)
	g.mu.Unlock()
}

func (g *recordingGame) HandleQuit(s *Session) {
	g.mu.Lock()
	g.quit = append(g.quit, s.Identity().DisplayName)
	g.mu.Unlock()
}

func (g *recordingGame) HandlePacket(_ *Session, pk proto.Packet) {
	g.mu.Lock()
	g.packets = append(g.packets, pk)
	g.mu.Unlock()
}

func testServer(t *testing.T, game GameHandler) *Server {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := Serve(pc, Config{
		Name:           "Quarry Test",
		WorldName:      "world",
		MaxPlayers:     4,
		OnlineMode:     false,
		Compression:    proto.CompressionFlate,
		Spawn:          proto.Vec3{X: 0.5, Y: 6.62, Z: 0.5},
		MaxChunkRadius: 2,
		Game:           game,
	})
	t.Cleanup(func() { srv.Close() })
	return srv
}

// testClient speaks the client half of the session pipeline.
type testClient struct {
	t       *testing.T
	conn    *raknet.Conn
	codec   proto.BatchCodec
	pending []proto.Packet
	key     *ecdsa.PrivateKey
}

func dialClient(t *testing.T, srv *Server) *testClient {
	t.Helper()
	conn, err := raknet.Dial(srv.LocalAddr().String(), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	return &testClient{t: t, conn: conn, key: key}
}

func (c *testClient) write(pk proto.Packet) {
	c.t.Helper()
	payload, err := c.codec.Encode([][]byte{proto.Marshal(pk)})
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WritePacket(payload, raknet.ReliableOrdered, 0))
}

// next returns the next decoded packet from the server, reading
// further batches as needed.
func (c *testClient) next() proto.Packet {
	c.t.Helper()
	for len(c.pending) == 0 {
		payload, err := c.conn.ReadPacket()
		require.NoError(c.t, err)
		packets, err := c.codec.Decode(payload)
		require.NoError(c.t, err)
		for _, data := range packets {
			pk, err := proto.Unmarshal(data)
			require.NoError(c.t, err)
			c.pending = append(c.pending, pk)
		}
	}
	pk := c.pending[0]
	c.pending = c.pending[1:]
	return pk
}

func (c *testClient) chainJSON() []byte {
	c.t.Helper()
	pub, err := proto.MarshalPublicKey(&c.key.PublicKey)
	require.NoError(c.t, err)
	token := jwt.NewWithClaims(jwt.SigningMethodES384, jwt.MapClaims{
		"extraData": map[string]any{
			"XUID":        "2535400000000000",
			"identity":    "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			"displayName": "Steve",
		},
		"identityPublicKey": pub,
	})
	token.Header["x5u"] = pub
	signed, err := token.SignedString(c.key)
	require.NoError(c.t, err)
	data, err := json.Marshal(map[string]any{"chain": []string{signed}})
	require.NoError(c.t, err)
	return data
}

// login walks the client through network settings and login in
// offline mode.
func (c *testClient) login() {
	c.t.Helper()

	c.write(&proto.RequestNetworkSettings{ClientProtocol: proto.CurrentProtocol})
	settings, ok := c.next().(*proto.NetworkSettings)
	require.True(c.t, ok, "expected NetworkSettings")
	c.codec.EnableCompression(settings.CompressionAlgorithm, int(settings.CompressionThreshold))

	c.write(&proto.Login{
		ClientProtocol: proto.CurrentProtocol,
		ChainData:      c.chainJSON(),
		ClientData:     []byte("client.data.jwt"),
	})

	status, ok := c.next().(*proto.PlayStatus)
	require.True(c.t, ok, "expected PlayStatus")
	require.Equal(c.t, proto.PlayStatusLoginSuccess, status.Status)
}

// completePacks drives the empty pack negotiation to Completed.
func (c *testClient) completePacks() {
	c.t.Helper()
	_, ok := c.next().(*proto.ResourcePacksInfo)
	require.True(c.t, ok, "expected ResourcePacksInfo")

	c.write(&proto.ResourcePackClientResponse{Response: proto.PackResponseAllPacksDownloaded})
	_, ok = c.next().(*proto.ResourcePackStack)
	require.True(c.t, ok, "expected ResourcePackStack")

	c.write(&proto.ResourcePackClientResponse{Response: proto.PackResponseCompleted})
}

func TestFullLoginFlowOffline(t *testing.T) {
	game := &recordingGame{}
	srv := testServer(t, game)
	c := dialClient(t, srv)

	c.login()
	c.completePacks()

	start, ok := c.next().(*proto.StartGame)
	require.True(t, ok, "expected StartGame, got %T", start)
	assert.True(t, start.BlockNetworkIDsAreHashes)
	assert.Equal(t, proto.CurrentVersion, start.GameVersion)
	assert.Equal(t, int32(1), start.MovementType, "movement is server authoritative")
	assert.NotZero(t, start.EntityRuntimeID)

	// The data tables follow in vanilla order.
	_, ok = c.next().(*proto.AvailableEntityIdentifiers)
	require.True(t, ok)
	_, ok = c.next().(*proto.BiomeDefinitionList)
	require.True(t, ok)
	_, ok = c.next().(*proto.CreativeContent)
	require.True(t, ok)
	_, ok = c.next().(*proto.AvailableCommands)
	require.True(t, ok)
	_, ok = c.next().(*proto.CraftingData)
	require.True(t, ok)

	// Chunk sync: the radius is clamped to the server cap and the
	// full square of columns arrives.
	c.write(&proto.RequestChunkRadius{ChunkRadius: 16, MaxChunkRadius: 16})
	radius, ok := c.next().(*proto.ChunkRadiusUpdated)
	require.True(t, ok)
	assert.Equal(t, int32(2), radius.ChunkRadius)

	var chunks int
	sawPublisher := false
	want := (2*2 + 1) * (2*2 + 1)
	for chunks < want {
		switch pk := c.next().(type) {
		case *proto.NetworkChunkPublisherUpdate:
			sawPublisher = true
		case *proto.LevelChunk:
			chunks++
			assert.Equal(t, uint32(world.SubChunkCount), pk.SubChunkCount)
			assert.Equal(t, byte(9), pk.RawPayload[0], "section version")
			assert.Equal(t, byte(0x00), pk.RawPayload[len(pk.RawPayload)-1], "border byte")
		default:
			t.Fatalf("unexpected packet during chunk sync: %T", pk)
		}
	}
	assert.True(t, sawPublisher)

	// Readiness handshake finishes the pipeline.
	c.write(&proto.SetLocalPlayerAsInitialized{EntityRuntimeID: start.EntityRuntimeID})
	status, ok := c.next().(*proto.PlayStatus)
	require.True(t, ok)
	assert.Equal(t, proto.PlayStatusPlayerSpawn, status.Status)

	require.Eventually(t, func() bool {
		game.mu.Lock()
		defer game.mu.Unlock()
		return len(game.joined) == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"Steve"}, game.joined)

	// In-game traffic reaches the game layer in send order.
	c.write(&proto.Text{TextType: proto.TextChat, SourceName: "Steve", Message: "hello"})
	c.write(&proto.PlayerAction{EntityRuntimeID: start.EntityRuntimeID, Action: 5})
	require.Eventually(t, func() bool {
		game.mu.Lock()
		defer game.mu.Unlock()
		return len(game.packets) == 2
	}, 3*time.Second, 20*time.Millisecond)
	game.mu.Lock()
	_, isText := game.packets[0].(*proto.Text)
	_, isAction := game.packets[1].(*proto.PlayerAction)
	game.mu.Unlock()
	assert.True(t, isText)
	assert.True(t, isAction)

	// Outbound: a broadcast queued by the game layer arrives on the
	// next tick flush.
	srv.Broadcast(&proto.SetTime{Time: 6000})
	st, ok := c.next().(*proto.SetTime)
	require.True(t, ok, "expected SetTime")
	assert.Equal(t, int32(6000), st.Time)
}

func TestProtocolVersionMismatch(t *testing.T) {
	srv := testServer(t, nil)
	c := dialClient(t, srv)

	c.write(&proto.RequestNetworkSettings{ClientProtocol: 748})
	status, ok := c.next().(*proto.PlayStatus)
	require.True(t, ok)
	assert.Equal(t, proto.PlayStatusLoginFailedClient, status.Status)

	newer := dialClient(t, srv)
	newer.write(&proto.RequestNetworkSettings{ClientProtocol: 2000})
	status, ok = newer.next().(*proto.PlayStatus)
	require.True(t, ok)
	assert.Equal(t, proto.PlayStatusLoginFailedServer, status.Status)
}

func TestOutOfOrderPacketDisconnects(t *testing.T) {
	srv := testServer(t, nil)
	c := dialClient(t, srv)

	// Login before RequestNetworkSettings is a protocol violation;
	// the server answers with a disconnect.
	c.write(&proto.Login{ClientProtocol: proto.CurrentProtocol, ChainData: c.chainJSON()})

	pk := c.next()
	dc, ok := pk.(*proto.Disconnect)
	require.True(t, ok, "expected Disconnect, got %T", pk)
	assert.NotEmpty(t, dc.Message)

	select {
	case <-c.conn.Closed():
	case <-time.After(3 * time.Second):
		t.Fatal("connection not torn down after protocol violation")
	}
}

func TestGamePacketBeforeSpawnDisconnects(t *testing.T) {
	srv := testServer(t, nil)
	c := dialClient(t, srv)
	c.login()

	c.write(&proto.Text{TextType: proto.TextChat, Message: "too early"})

	deadline := time.After(3 * time.Second)
	for {
		select {
		case <-c.conn.Closed():
			return
		case <-deadline:
			t.Fatal("connection not torn down")
		default:
		}
		payload, err := c.conn.ReadPacket()
		if err != nil {
			return // closed
		}
		if packets, err := c.codec.Decode(payload); err == nil {
			for range packets {
			}
		}
	}
}

func TestResourcePackDownload(t *testing.T) {
	content := make([]byte, packChunkSize+100)
	for i := range content {
		content[i] = byte(i)
	}
	pack := ResourcePack{UUID: uuid.New(), Version: "1.0.0", Content: content}

	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := Serve(pc, Config{
		Name:        "Packs",
		Compression: proto.CompressionSnappy,
		Packs:       []ResourcePack{pack},
	})
	t.Cleanup(func() { srv.Close() })

	c := dialClient(t, srv)
	c.login()

	info, ok := c.next().(*proto.ResourcePacksInfo)
	require.True(t, ok)
	require.Len(t, info.Packs, 1)
	assert.Equal(t, uint64(len(content)), info.Packs[0].Size)

	c.write(&proto.ResourcePackClientResponse{
		Response:        proto.PackResponseSendPacks,
		PacksToDownload: []string{pack.id()},
	})
	dataInfo, ok := c.next().(*proto.ResourcePackDataInfo)
	require.True(t, ok)
	assert.Equal(t, uint32(2), dataInfo.ChunkCount)
	assert.Less(t, dataInfo.MaxChunkSize, uint32(1<<20), "chunks stay under a mebibyte")

	var got []byte
	for i := uint32(0); i < dataInfo.ChunkCount; i++ {
		c.write(&proto.ResourcePackChunkRequest{PackID: pack.id(), ChunkIndex: i})
		chunk, ok := c.next().(*proto.ResourcePackChunkData)
		require.True(t, ok)
		assert.Equal(t, uint64(len(got)), chunk.DataOffset)
		got = append(got, chunk.Data...)
	}
	assert.Equal(t, content, got)
}


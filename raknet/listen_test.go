package raknet

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testListener(t *testing.T) *Listener {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	l := Listen(pc, ListenConfig{
		GUID: 0x1234,
		Pong: Pong{
			ServerName:      "Quarry Test",
			ProtocolVersion: 924,
			GameVersion:     "1.26.0",
			MaxPlayers:      20,
			ServerGUID:      0x1234,
			WorldName:       "world",
			GameMode:        "Survival",
			GameModeNumeric: 0,
			PortV4:          19132,
			PortV6:          19133,
		},
	})
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAddrRoundTrip(t *testing.T) {
	for _, s := range []string{"127.0.0.1:19132", "[::1]:19133", "0.0.0.0:0"} {
		addr := netip.MustParseAddrPort(s)
		buf := putAddr(nil, addr)
		got, err := readAddr(&frameReader{data: buf})
		require.NoError(t, err)
		assert.Equal(t, addr, got)
	}
}

func TestAddrV4OctetsInverted(t *testing.T) {
	buf := putAddr(nil, netip.MustParseAddrPort("127.0.0.1:19132"))
	require.Len(t, buf, 7)
	assert.Equal(t, byte(4), buf[0])
	assert.Equal(t, []byte{^byte(127), 0xff, 0xff, ^byte(1)}, buf[1:5])
}

func TestPongStringTwelveFields(t *testing.T) {
	p := Pong{
		ServerName:      "A Server",
		ProtocolVersion: 924,
		GameVersion:     "1.26.0",
		PlayerCount:     3,
		MaxPlayers:      20,
		ServerGUID:      42,
		WorldName:       "world",
		GameMode:        "Survival",
		GameModeNumeric: 0,
		PortV4:          19132,
		PortV6:          19133,
	}
	s := p.String()
	fields := strings.Split(s, ";")
	require.Len(t, fields, 12)
	assert.Equal(t, "MCPE", fields[0])
	assert.Equal(t, "924", fields[2])

	got, err := ParsePong(s)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestOfflinePingRoundTrip(t *testing.T) {
	l := testListener(t)

	uc, err := net.Dial("udp", l.Addr().String())
	require.NoError(t, err)
	defer uc.Close()
	uc.SetDeadline(time.Now().Add(2 * time.Second))

	// Unconnected ping with timestamp 1234 and guid 0xDEADBEEF.
	req := []byte{idUnconnectedPing}
	req = binary.BigEndian.AppendUint64(req, 1234)
	req = append(req, magic[:]...)
	req = binary.BigEndian.AppendUint64(req, 0xDEADBEEF)
	_, err = uc.Write(req)
	require.NoError(t, err)

	buf := make([]byte, 2048)
	n, err := uc.Read(buf)
	require.NoError(t, err)
	data := buf[:n]

	require.Equal(t, byte(idUnconnectedPong), data[0])
	assert.Equal(t, uint64(1234), binary.BigEndian.Uint64(data[1:9]), "timestamp echoed")
	assert.Equal(t, uint64(0x1234), binary.BigEndian.Uint64(data[9:17]), "server guid")
	assert.True(t, bytes.Equal(magic[:], data[17:33]), "magic present")

	motdLen := binary.BigEndian.Uint16(data[33:35])
	motd := string(data[35 : 35+int(motdLen)])
	fields := strings.Split(motd, ";")
	require.Len(t, fields, 12)
	assert.Equal(t, "MCPE", fields[0])
	assert.Equal(t, "924", fields[2])
}

func TestPingHelper(t *testing.T) {
	l := testListener(t)
	pong, err := Ping(l.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Quarry Test", pong.ServerName)
	assert.Equal(t, 924, pong.ProtocolVersion)
	assert.Equal(t, int64(0x1234), pong.ServerGUID)
}

func TestMTUNegotiation(t *testing.T) {
	l := testListener(t)

	uc, err := net.Dial("udp", l.Addr().String())
	require.NoError(t, err)
	defer uc.Close()
	uc.SetDeadline(time.Now().Add(2 * time.Second))

	// Request 1 padded so the datagram plus IP/UDP overhead claims
	// an MTU of 1500; the server must cap its answer.
	req1 := make([]byte, 1500-28)
	req1[0] = idOpenConnectionRequest1
	copy(req1[1:], magic[:])
	req1[17] = ProtocolVersion
	_, err = uc.Write(req1)
	require.NoError(t, err)

	buf := make([]byte, 2048)
	n, err := uc.Read(buf)
	require.NoError(t, err)
	require.Equal(t, byte(idOpenConnectionReply1), buf[0])
	mtu := binary.BigEndian.Uint16(buf[26:28])
	assert.LessOrEqual(t, int(mtu), 1500)
	assert.Equal(t, uint16(MaxMTU), mtu)

	// Request 2 asks for 1500 as well; the reply echoes the capped
	// value.
	req2 := []byte{idOpenConnectionRequest2}
	req2 = append(req2, magic[:]...)
	req2 = putAddr(req2, udpAddrPort(uc.RemoteAddr()))
	req2 = binary.BigEndian.AppendUint16(req2, 1500)
	req2 = binary.BigEndian.AppendUint64(req2, uint64(rand.Int63()))
	_, err = uc.Write(req2)
	require.NoError(t, err)

	n, err = uc.Read(buf)
	require.NoError(t, err)
	require.Equal(t, byte(idOpenConnectionReply2), buf[0])
	r := &frameReader{data: buf[:n], off: 1}
	require.NoError(t, checkMagic(r))
	_, err = r.take(8) // server guid
	require.NoError(t, err)
	_, err = readAddr(r)
	require.NoError(t, err)
	replyMTU, err := r.take(2)
	require.NoError(t, err)
	assert.Equal(t, uint16(MaxMTU), binary.BigEndian.Uint16(replyMTU))
}

func TestIncompatibleRakNetProtocol(t *testing.T) {
	l := testListener(t)

	uc, err := net.Dial("udp", l.Addr().String())
	require.NoError(t, err)
	defer uc.Close()
	uc.SetDeadline(time.Now().Add(2 * time.Second))

	req1 := make([]byte, 600)
	req1[0] = idOpenConnectionRequest1
	copy(req1[1:], magic[:])
	req1[17] = 5 // ancient raknet
	_, err = uc.Write(req1)
	require.NoError(t, err)

	buf := make([]byte, 64)
	_, err = uc.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, byte(0x19), buf[0])
	assert.Equal(t, byte(ProtocolVersion), buf[1])
}

func TestDialAcceptExchange(t *testing.T) {
	l := testListener(t)

	type result struct {
		conn *Conn
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		c, err := l.Accept()
		accepted <- result{c, err}
	}()

	client, err := Dial(l.Addr().String(), 5*time.Second)
	require.NoError(t, err)
	defer client.Close()

	res := <-accepted
	require.NoError(t, res.err)
	srvConn := res.conn
	assert.Equal(t, client.GUID(), srvConn.GUID())
	assert.Equal(t, client.MTU(), srvConn.MTU())

	// Client to server.
	require.NoError(t, client.WritePacket([]byte{0xfe, 0xab}, ReliableOrdered, 0))
	pkt, err := srvConn.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xfe, 0xab}, pkt)

	// Server to client, fragmented.
	big := make([]byte, 100_000)
	rand.New(rand.NewSource(1)).Read(big)
	big[0] = 0xfe
	require.NoError(t, srvConn.WritePacket(big, ReliableOrdered, 0))
	pkt, err = client.ReadPacket()
	require.NoError(t, err)
	assert.True(t, bytes.Equal(big, pkt))
}

func TestDisconnectNotification(t *testing.T) {
	l := testListener(t)

	accepted := make(chan *Conn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	client, err := Dial(l.Addr().String(), 5*time.Second)
	require.NoError(t, err)

	srvConn := <-accepted
	client.Close()

	select {
	case <-srvConn.Closed():
		assert.NoError(t, srvConn.WhyClosed())
	case <-time.After(3 * time.Second):
		t.Fatal("server conn not closed after client disconnect")
	}
}
